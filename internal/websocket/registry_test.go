package websocket

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"livechat/pkg/interfaces"
	"livechat/pkg/types"
)

func TestRegistry_InterfaceCompliance(t *testing.T) {
	var _ interfaces.Transport = &Registry{}
}

func TestRegistry_RegisterValidation(t *testing.T) {
	registry := NewRegistry(nil)

	if err := registry.Register(nil); err != ErrNilConnection {
		t.Errorf("Expected ErrNilConnection, got %v", err)
	}

	server, _ := createTestConnectionPair(t)
	conn := NewConnection(server, "", DefaultConfig(), nil)
	defer conn.Close()

	if err := registry.Register(conn); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if err := registry.Register(conn); err != ErrDuplicateConnection {
		t.Errorf("Expected ErrDuplicateConnection, got %v", err)
	}
	if registry.Count() != 1 {
		t.Errorf("Expected 1 connection, got %d", registry.Count())
	}
}

func TestRegistry_LookupAndUnregister(t *testing.T) {
	registry := NewRegistry(nil)
	server, _ := createTestConnectionPair(t)
	conn := NewConnection(server, "", DefaultConfig(), nil)
	defer conn.Close()

	_ = registry.Register(conn)

	found, ok := registry.Lookup(conn.ID())
	if !ok || found.ID() != conn.ID() {
		t.Fatal("Lookup did not return the registered connection")
	}

	registry.Unregister(conn)
	registry.Unregister(conn)
	if _, ok := registry.Lookup(conn.ID()); ok {
		t.Error("Connection still registered after Unregister")
	}
	if registry.Count() != 0 {
		t.Errorf("Expected 0 connections, got %d", registry.Count())
	}
}

func TestRegistry_UnregisterIgnoresOtherInstance(t *testing.T) {
	registry := NewRegistry(nil)
	server, _ := createTestConnectionPair(t)
	conn := NewConnection(server, "", DefaultConfig(), nil)
	defer conn.Close()
	_ = registry.Register(conn)

	impostor := &Connection{id: conn.ID()}
	registry.Unregister(impostor)

	if _, ok := registry.Get(conn.ID()); !ok {
		t.Error("Unregister removed a connection it did not own")
	}
}

func TestRegistry_SendUnknownConnection(t *testing.T) {
	registry := NewRegistry(nil)

	err := registry.Send("missing", types.Event{Name: types.EventUserCount, Payload: types.UserCountPayload{}})
	if err != interfaces.ErrConnectionNotFound {
		t.Errorf("Expected ErrConnectionNotFound, got %v", err)
	}
	if registry.Disconnect("missing") {
		t.Error("Disconnect of an unknown id should report false")
	}
}

func TestRegistry_BroadcastReachesEveryConnection(t *testing.T) {
	registry := NewRegistry(nil)

	var clients []*Connection
	var peers = make(map[string]func() types.Envelope)
	for i := 0; i < 3; i++ {
		server, client := createTestConnectionPair(t)
		conn := NewConnection(server, "", DefaultConfig(), nil)
		defer conn.Close()
		if err := registry.Register(conn); err != nil {
			t.Fatalf("Register failed: %v", err)
		}
		clients = append(clients, conn)
		peer := client
		peers[conn.ID()] = func() types.Envelope { return readEnvelope(t, peer) }
	}

	delivered := registry.Broadcast(types.Event{Name: types.EventTypingUsers, Payload: types.TypingUsersPayload{Users: []string{"alice"}}})
	if delivered != 3 {
		t.Errorf("Expected delivery to 3 connections, got %d", delivered)
	}

	for _, conn := range clients {
		env := peers[conn.ID()]()
		if env.Event != types.EventTypingUsers {
			t.Errorf("Expected %s, got %s", types.EventTypingUsers, env.Event)
		}
		var payload types.TypingUsersPayload
		if err := json.Unmarshal(env.Data, &payload); err != nil {
			t.Fatalf("Failed to decode payload: %v", err)
		}
		if len(payload.Users) != 1 || payload.Users[0] != "alice" {
			t.Errorf("Unexpected typing users %v", payload.Users)
		}
	}
}

func TestRegistry_DisconnectClosesWithReason(t *testing.T) {
	registry := NewRegistry(nil)
	server, _ := createTestConnectionPair(t)
	conn := NewConnection(server, "", DefaultConfig(), nil)
	_ = registry.Register(conn)

	if !registry.Disconnect(conn.ID()) {
		t.Fatal("Disconnect should report true for a live id")
	}

	select {
	case <-conn.Done():
	case <-time.After(time.Second):
		t.Fatal("Connection not closed")
	}
	if reason, _ := conn.serverCloseReason(); reason != ReasonServerDisconnect {
		t.Errorf("Expected reason %q, got %q", ReasonServerDisconnect, reason)
	}
}

func TestRegistry_CloseAll(t *testing.T) {
	registry := NewRegistry(nil)
	var conns []*Connection
	for i := 0; i < 3; i++ {
		server, _ := createTestConnectionPair(t)
		conn := NewConnection(server, "", DefaultConfig(), nil)
		_ = registry.Register(conn)
		conns = append(conns, conn)
	}

	registry.CloseAll(ReasonServerShutdown)

	for _, conn := range conns {
		select {
		case <-conn.Done():
		case <-time.After(time.Second):
			t.Fatal("Connection not closed by CloseAll")
		}
	}
}

func TestRegistry_ConcurrentRegistrationAndLookup(t *testing.T) {
	registry := NewRegistry(nil)

	const numConnections = 20
	conns := make([]*Connection, numConnections)
	for i := range conns {
		conns[i] = &Connection{id: string(rune('a' + i))}
	}

	var wg sync.WaitGroup
	wg.Add(numConnections * 2)
	for _, conn := range conns {
		go func(c *Connection) {
			defer wg.Done()
			_ = registry.Register(c)
		}(conn)
		go func(c *Connection) {
			defer wg.Done()
			registry.Lookup(c.id)
			registry.Count()
		}(conn)
	}
	wg.Wait()

	if registry.Count() != numConnections {
		t.Errorf("Expected %d connections, got %d", numConnections, registry.Count())
	}

	wg.Add(numConnections)
	for _, conn := range conns {
		go func(c *Connection) {
			defer wg.Done()
			registry.Unregister(c)
		}(conn)
	}
	wg.Wait()

	if registry.Count() != 0 {
		t.Errorf("Expected 0 connections, got %d", registry.Count())
	}
}
