package integration

import (
	"context"
	"encoding/json"
	"net/http"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"livechat/internal/app"
	"livechat/internal/chat"
	"livechat/internal/config"
	"livechat/internal/store"
	"livechat/pkg/types"
)

const waitTimeout = 3 * time.Second

// startServer runs the full application on an ephemeral port.
func startServer(t *testing.T, mutate func(*config.Config)) *app.Application {
	t.Helper()

	cfg := config.DefaultConfig()
	require.NoError(t, cfg.SetListenAddr("127.0.0.1:0"))
	cfg.Store.Driver = store.DriverSQLite
	cfg.Store.Path = filepath.Join(t.TempDir(), "livechat.db")
	if mutate != nil {
		mutate(cfg)
	}

	ctx := context.Background()
	application, err := app.NewApplication(ctx, cfg, nil)
	require.NoError(t, err)
	require.NoError(t, application.Start(ctx))
	t.Cleanup(func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = application.Stop(stopCtx)
	})
	return application
}

// client is a websocket peer that queues every envelope it receives.
type client struct {
	t     *testing.T
	ws    *websocket.Conn
	inbox chan types.Envelope
}

func dial(t *testing.T, application *app.Application) *client {
	t.Helper()
	url := "ws://" + application.Addr() + "/ws"
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)

	c := &client{t: t, ws: ws, inbox: make(chan types.Envelope, 256)}
	go c.readLoop()
	t.Cleanup(func() { _ = ws.Close() })
	return c
}

func (c *client) readLoop() {
	defer close(c.inbox)
	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			return
		}
		var env types.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			continue
		}
		c.inbox <- env
	}
}

func (c *client) send(event string, payload any) {
	c.t.Helper()
	frame := map[string]any{"event": event}
	if payload != nil {
		frame["data"] = payload
	}
	require.NoError(c.t, c.ws.WriteJSON(frame))
}

func (c *client) join(pseudo string) {
	c.t.Helper()
	c.send(types.EventJoinChat, types.JoinChatPayload{Pseudo: pseudo})
}

func (c *client) say(text string) {
	c.t.Helper()
	c.send(types.EventChatMessage, types.ChatMessagePayload{Message: text})
}

// expect skips frames until one named event arrives and decodes it into v.
func (c *client) expect(event string, v any) {
	c.t.Helper()
	deadline := time.After(waitTimeout)
	for {
		select {
		case env, ok := <-c.inbox:
			if !ok {
				c.t.Fatalf("connection closed while waiting for %s", event)
			}
			if env.Event != event {
				continue
			}
			if v != nil {
				require.NoError(c.t, json.Unmarshal(env.Data, v))
			}
			return
		case <-deadline:
			c.t.Fatalf("timed out waiting for %s", event)
		}
	}
}

// expectMatch waits for an event whose payload satisfies match.
func expectMatch[T any](c *client, event string, match func(T) bool) T {
	c.t.Helper()
	deadline := time.After(waitTimeout)
	for {
		select {
		case env, ok := <-c.inbox:
			if !ok {
				c.t.Fatalf("connection closed while waiting for %s", event)
			}
			if env.Event != event {
				continue
			}
			var v T
			require.NoError(c.t, json.Unmarshal(env.Data, &v))
			if match(v) {
				return v
			}
		case <-deadline:
			c.t.Fatalf("timed out waiting for matching %s", event)
		}
	}
}

// expectClosed waits for the server to end the session.
func (c *client) expectClosed() {
	c.t.Helper()
	deadline := time.After(waitTimeout)
	for {
		select {
		case _, ok := <-c.inbox:
			if !ok {
				return
			}
		case <-deadline:
			c.t.Fatal("timed out waiting for the server to close the connection")
		}
	}
}

func fetchStats(t *testing.T, application *app.Application) chat.Stats {
	t.Helper()
	resp, err := http.Get("http://" + application.Addr() + "/api/chat/stats")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var stats chat.Stats
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&stats))
	return stats
}

func joinedNames(users []string) string {
	return strings.Join(users, ",")
}
