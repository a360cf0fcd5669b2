package interfaces_test

import (
	"context"
	"testing"

	"livechat/pkg/interfaces"
	"livechat/pkg/types"
)

type mockConnection struct{}

func (m *mockConnection) ID() string                { return "" }
func (m *mockConnection) Send(ev types.Event) error { return nil }
func (m *mockConnection) Close() error              { return nil }
func (m *mockConnection) RemoteAddr() string        { return "" }

type mockTransport struct{}

func (m *mockTransport) Lookup(connID string) (interfaces.Connection, bool) { return nil, false }
func (m *mockTransport) Send(connID string, ev types.Event) error           { return nil }
func (m *mockTransport) Broadcast(ev types.Event) int                       { return 0 }
func (m *mockTransport) Disconnect(connID string) bool                      { return false }
func (m *mockTransport) Count() int                                         { return 0 }

type mockStore struct{}

func (m *mockStore) Append(ctx context.Context, msg *types.ChatMessage) error { return nil }
func (m *mockStore) Recent(ctx context.Context, limit int) ([]types.ChatMessage, error) {
	return nil, nil
}
func (m *mockStore) HealthCheck(ctx context.Context) error { return nil }
func (m *mockStore) Close() error                          { return nil }

type mockFilter struct{}

func (m *mockFilter) Filter(text string) string  { return text }
func (m *mockFilter) IsProfane(text string) bool { return false }

func TestInterfaces_Compliance(t *testing.T) {
	var _ interfaces.Connection = &mockConnection{}
	var _ interfaces.Transport = &mockTransport{}
	var _ interfaces.MessageStore = &mockStore{}
	var _ interfaces.Filter = &mockFilter{}
}

func TestInterfaces_ErrorsDistinct(t *testing.T) {
	if interfaces.ErrConnectionNotFound == interfaces.ErrStoreClosed {
		t.Error("interface errors must be distinct")
	}
}
