package presence

import (
	"fmt"
	"sync"
	"testing"
)

func TestRegistry_NewRegistryInitialization(t *testing.T) {
	r := NewRegistry()
	if r == nil {
		t.Fatal("NewRegistry returned nil")
	}
	if r.Count() != 0 {
		t.Errorf("Expected 0 joined connections, got %d", r.Count())
	}
}

func TestRegistry_Join(t *testing.T) {
	r := NewRegistry()

	res := r.Join("c1", "alice")
	if res.Evicted != "" || res.PreviousName != "" {
		t.Errorf("Expected clean join, got %+v", res)
	}
	if pseudo, ok := r.PseudoOf("c1"); !ok || pseudo != "alice" {
		t.Errorf("Expected c1 -> alice, got %q %v", pseudo, ok)
	}
	if conn, ok := r.ConnectionOf("alice"); !ok || conn != "c1" {
		t.Errorf("Expected alice -> c1, got %q %v", conn, ok)
	}
	if r.Count() != 1 {
		t.Errorf("Expected count 1, got %d", r.Count())
	}
}

func TestRegistry_DuplicateNameEvictsPreviousHolder(t *testing.T) {
	r := NewRegistry()
	r.Join("c1", "alice")

	res := r.Join("c2", "alice")
	if res.Evicted != "c1" {
		t.Errorf("Expected c1 to be evicted, got %q", res.Evicted)
	}
	if _, ok := r.PseudoOf("c1"); ok {
		t.Error("Evicted connection must lose its mapping")
	}
	if conn, _ := r.ConnectionOf("alice"); conn != "c2" {
		t.Errorf("Expected alice -> c2, got %q", conn)
	}
	if r.Count() != 1 {
		t.Errorf("Expected count 1 after eviction, got %d", r.Count())
	}

	// late leave of the evicted connection is a no-op
	if _, removed := r.Leave("c1"); removed {
		t.Error("Leave of evicted connection should report nothing removed")
	}
	if conn, _ := r.ConnectionOf("alice"); conn != "c2" {
		t.Error("Late leave must not remove the newer holder")
	}
}

func TestRegistry_SameConnectionRejoinSameName(t *testing.T) {
	r := NewRegistry()
	r.Join("c1", "alice")

	res := r.Join("c1", "alice")
	if res.Evicted != "" {
		t.Errorf("Rejoining with own name must not evict, got %q", res.Evicted)
	}
	if r.Count() != 1 {
		t.Errorf("Expected count 1, got %d", r.Count())
	}
}

func TestRegistry_RejoinUnderNewNameReleasesOld(t *testing.T) {
	r := NewRegistry()
	r.Join("c1", "alice")

	res := r.Join("c1", "alicia")
	if res.PreviousName != "alice" {
		t.Errorf("Expected previous name alice, got %q", res.PreviousName)
	}
	if _, ok := r.ConnectionOf("alice"); ok {
		t.Error("Old name should be released")
	}
	if r.Count() != 1 {
		t.Errorf("Expected count 1, got %d", r.Count())
	}

	// name is free for someone else now
	if res := r.Join("c2", "alice"); res.Evicted != "" {
		t.Errorf("Released name must not evict, got %q", res.Evicted)
	}
}

func TestRegistry_LeaveIdempotent(t *testing.T) {
	r := NewRegistry()
	if _, removed := r.Leave("unknown"); removed {
		t.Error("Leave on unknown connection should be a no-op")
	}

	r.Join("c1", "alice")
	pseudo, removed := r.Leave("c1")
	if !removed || pseudo != "alice" {
		t.Errorf("Expected alice removed, got %q %v", pseudo, removed)
	}
	if _, removed := r.Leave("c1"); removed {
		t.Error("Second leave should be a no-op")
	}
	if r.Count() != 0 {
		t.Errorf("Expected count 0, got %d", r.Count())
	}
}

func TestRegistry_Pseudos(t *testing.T) {
	r := NewRegistry()
	r.Join("c3", "carol")
	r.Join("c1", "alice")
	r.Join("c2", "bob")

	got := r.Pseudos()
	want := []string{"alice", "bob", "carol"}
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Errorf("Expected %v, got %v", want, got)
	}
}

func TestRegistry_ConcurrentJoinSameName(t *testing.T) {
	r := NewRegistry()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			r.Join(fmt.Sprintf("c%d", i), "alice")
		}(i)
	}
	wg.Wait()

	if r.Count() != 1 {
		t.Errorf("At most one connection may hold a name, got %d", r.Count())
	}
}
