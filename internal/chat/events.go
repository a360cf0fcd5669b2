package chat

// Events accepted by the coordinator loop. Every state change arrives
// through one channel so they are applied in arrival order.
type (
	connectEvent struct {
		connID     string
		remoteAddr string
	}

	joinEvent struct {
		connID string
		pseudo string
	}

	messageEvent struct {
		connID string
		text   string
	}

	typingEvent struct {
		connID string
	}

	stopTypingEvent struct {
		connID string
	}

	disconnectEvent struct {
		connID string
		reason string
	}

	typingExpiredEvent struct {
		connID string
		gen    uint64
	}

	statsRequest struct {
		reply chan Stats
	}
)

// Stats is a snapshot of coordinator state.
type Stats struct {
	JoinedUsers     int      `json:"joined_users"`
	LiveConnections int      `json:"live_connections"`
	Sessions        int      `json:"sessions"`
	TypingUsers     []string `json:"typing_users"`
	Pseudos         []string `json:"pseudos"`
}
