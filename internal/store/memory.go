package store

import (
	"context"
	"sync"

	"livechat/pkg/interfaces"
	"livechat/pkg/types"
)

// MemoryStore keeps the history in process memory. Nothing survives a
// restart.
type MemoryStore struct {
	mx        *sync.Mutex
	retention int
	seq       int64
	messages  []types.ChatMessage
	closed    bool
}

func NewMemoryStore(retention int) *MemoryStore {
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &MemoryStore{
		mx:        &sync.Mutex{},
		retention: retention,
		messages:  make([]types.ChatMessage, 0, retention+1),
	}
}

func (ms *MemoryStore) Append(_ context.Context, msg *types.ChatMessage) error {
	ms.mx.Lock()
	defer ms.mx.Unlock()

	if ms.closed {
		return interfaces.ErrStoreClosed
	}
	ms.seq++
	msg.ID = ms.seq
	ms.messages = append(ms.messages, *msg)
	if over := len(ms.messages) - ms.retention; over > 0 {
		ms.messages = append(ms.messages[:0], ms.messages[over:]...)
	}
	return nil
}

func (ms *MemoryStore) Recent(_ context.Context, limit int) ([]types.ChatMessage, error) {
	ms.mx.Lock()
	defer ms.mx.Unlock()

	if ms.closed {
		return nil, interfaces.ErrStoreClosed
	}
	limit = clampLimit(limit, ms.retention)
	start := 0
	if len(ms.messages) > limit {
		start = len(ms.messages) - limit
	}
	out := make([]types.ChatMessage, len(ms.messages)-start)
	copy(out, ms.messages[start:])
	return out, nil
}

func (ms *MemoryStore) HealthCheck(_ context.Context) error {
	ms.mx.Lock()
	defer ms.mx.Unlock()
	if ms.closed {
		return interfaces.ErrStoreClosed
	}
	return nil
}

func (ms *MemoryStore) Close() error {
	ms.mx.Lock()
	defer ms.mx.Unlock()
	ms.closed = true
	return nil
}
