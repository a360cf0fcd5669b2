package chat

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"livechat/internal/filter"
	"livechat/internal/store"
	"livechat/pkg/interfaces"
	"livechat/pkg/types"
)

// fakeTransport records everything the coordinator sends. Broadcasts reach
// every open connection, joined or not.
type fakeTransport struct {
	mu           sync.Mutex
	live         map[string]bool
	inbox        map[string][]types.Event
	broadcasts   []types.Event
	disconnected []string
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		live:  make(map[string]bool),
		inbox: make(map[string][]types.Event),
	}
}

type fakeConn struct{ id string }

func (f fakeConn) ID() string                { return f.id }
func (f fakeConn) Send(ev types.Event) error { return nil }
func (f fakeConn) Close() error              { return nil }
func (f fakeConn) RemoteAddr() string        { return "127.0.0.1:0" }

func (f *fakeTransport) open(connID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.live[connID] = true
}

func (f *fakeTransport) Lookup(connID string) (interfaces.Connection, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.live[connID] {
		return nil, false
	}
	return fakeConn{id: connID}, true
}

func (f *fakeTransport) Send(connID string, ev types.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.live[connID] {
		return interfaces.ErrConnectionNotFound
	}
	f.inbox[connID] = append(f.inbox[connID], ev)
	return nil
}

func (f *fakeTransport) Broadcast(ev types.Event) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.broadcasts = append(f.broadcasts, ev)
	for id := range f.live {
		f.inbox[id] = append(f.inbox[id], ev)
	}
	return len(f.live)
}

func (f *fakeTransport) Disconnect(connID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.live[connID] {
		return false
	}
	delete(f.live, connID)
	f.disconnected = append(f.disconnected, connID)
	return true
}

func (f *fakeTransport) Count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.live)
}

// received returns the events of the given name delivered to connID.
func (f *fakeTransport) received(connID, name string) []types.Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []types.Event
	for _, ev := range f.inbox[connID] {
		if ev.Name == name {
			out = append(out, ev)
		}
	}
	return out
}

func (f *fakeTransport) names(connID string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.inbox[connID]))
	for _, ev := range f.inbox[connID] {
		out = append(out, ev.Name)
	}
	return out
}

func (f *fakeTransport) broadcastsOf(name string) []types.Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []types.Event
	for _, ev := range f.broadcasts {
		if ev.Name == name {
			out = append(out, ev)
		}
	}
	return out
}

func (f *fakeTransport) evicted() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.disconnected...)
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// fakeScheduler keeps timers until the test fires them.
type fakeScheduler struct {
	mu     sync.Mutex
	timers []*fakeTimer
}

type fakeTimer struct {
	mu      sync.Mutex
	d       time.Duration
	f       func()
	stopped bool
	fired   bool
}

func (t *fakeTimer) Stop() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	active := !t.stopped && !t.fired
	t.stopped = true
	return active
}

func (s *fakeScheduler) AfterFunc(d time.Duration, f func()) Timer {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := &fakeTimer{d: d, f: f}
	s.timers = append(s.timers, t)
	return t
}

// fireActive runs every timer that was neither stopped nor fired.
func (s *fakeScheduler) fireActive() int {
	s.mu.Lock()
	timers := append([]*fakeTimer(nil), s.timers...)
	s.mu.Unlock()

	n := 0
	for _, t := range timers {
		t.mu.Lock()
		run := !t.stopped && !t.fired
		t.fired = t.fired || run
		t.mu.Unlock()
		if run {
			t.f()
			n++
		}
	}
	return n
}

// fireStale runs a timer even though it was stopped, like a timer whose
// callback was already on its way when Stop was called.
func (s *fakeScheduler) fireStale(i int) {
	s.mu.Lock()
	t := s.timers[i]
	s.mu.Unlock()
	t.f()
}

func (s *fakeScheduler) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

// failingStore fails every call.
type failingStore struct{}

var errStoreDown = errors.New("store is down")

func (failingStore) Append(context.Context, *types.ChatMessage) error { return errStoreDown }
func (failingStore) Recent(context.Context, int) ([]types.ChatMessage, error) {
	return nil, errStoreDown
}
func (failingStore) HealthCheck(context.Context) error { return errStoreDown }
func (failingStore) Close() error                      { return nil }

type harness struct {
	t     *testing.T
	c     *Coordinator
	tr    *fakeTransport
	store interfaces.MessageStore
	clock *fakeClock
	sched *fakeScheduler
}

func newHarness(t *testing.T, st interfaces.MessageStore) *harness {
	t.Helper()
	if st == nil {
		st = store.NewMemoryStore(store.DefaultRetention)
	}
	h := &harness{
		t:     t,
		tr:    newFakeTransport(),
		store: st,
		clock: newFakeClock(),
		sched: &fakeScheduler{},
	}

	c, err := NewCoordinator(DefaultConfig(), h.tr, st, filter.NewDefault(nil, nil), nil,
		WithClock(h.clock.Now), WithScheduler(h.sched))
	require.NoError(t, err)
	require.NoError(t, c.Start(context.Background()))
	t.Cleanup(func() { _ = c.Stop() })

	h.c = c
	return h
}

func (h *harness) connect(connID string) {
	h.t.Helper()
	h.tr.open(connID)
	require.NoError(h.t, h.c.Connect(context.Background(), connID, "127.0.0.1:5000"))
}

func (h *harness) join(connID, pseudo string) {
	h.t.Helper()
	require.NoError(h.t, h.c.Join(context.Background(), connID, pseudo))
}

func (h *harness) say(connID, text string) {
	h.t.Helper()
	require.NoError(h.t, h.c.Message(context.Background(), connID, text))
}

// sync waits until every event submitted so far has been applied.
func (h *harness) sync() Stats {
	h.t.Helper()
	stats, err := h.c.Stats(context.Background())
	require.NoError(h.t, err)
	return stats
}

func (h *harness) recent() []types.ChatMessage {
	h.t.Helper()
	msgs, err := h.store.Recent(context.Background(), store.DefaultRetention)
	require.NoError(h.t, err)
	return msgs
}
