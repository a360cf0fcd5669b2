package chat

import "time"

type sessionState int

const (
	stateConnected sessionState = iota
	stateJoined
	stateClosed
)

func (s sessionState) String() string {
	switch s {
	case stateConnected:
		return "connected"
	case stateJoined:
		return "joined"
	case stateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// session is the coordinator's view of one connection. It is only touched
// from the event loop.
type session struct {
	id          string
	remoteAddr  string
	connectedAt time.Time
	state       sessionState
	pseudo      string

	typing      bool
	typingTimer Timer
	// typingGen invalidates expiry events of timers that were replaced or
	// cancelled after they fired.
	typingGen uint64
}

// cancelTyping stops the pending expiry, if any.
func (s *session) cancelTyping() {
	if s.typingTimer != nil {
		s.typingTimer.Stop()
		s.typingTimer = nil
	}
	s.typingGen++
}
