package registry

import (
	"context"
	"testing"

	"podcastle/pkg/model"
)

func TestRegistry_RegisterUnregister(t *testing.T) {
	r := New(nil)
	ctx := context.Background()

	if r.Count() != 0 {
		t.Fatal("expected empty registry")
	}

	r.Register(ctx, "j1", model.StateQueued)
	r.Register(ctx, "j2", model.StateGenerating)

	if !r.Contains("j1") || !r.Contains("j2") {
		t.Error("expected both jobs registered")
	}

	members := r.Members()
	if len(members) != 2 || members[0] != "j1" || members[1] != "j2" {
		t.Errorf("Members() = %v", members)
	}

	r.Unregister(ctx, "j1")
	if r.Contains("j1") {
		t.Error("expected j1 removed")
	}

	// Unregistering twice is a no-op
	r.Unregister(ctx, "j1")
	if r.Count() != 1 {
		t.Errorf("Count() = %d, want 1", r.Count())
	}
}

func TestRegistry_RegisterTerminalIsNoOp(t *testing.T) {
	r := New(nil)
	ctx := context.Background()

	r.Register(ctx, "done", model.StateCompleted)
	r.Register(ctx, "broken", model.StateFailed)

	if r.Count() != 0 {
		t.Errorf("terminal jobs must not be registered, got %v", r.Members())
	}
}

func TestRegistry_RegisterIdempotent(t *testing.T) {
	r := New(nil)
	ctx := context.Background()

	r.Register(ctx, "j1", model.StateQueued)
	r.Register(ctx, "j1", model.StateGenerating)

	if r.Count() != 1 {
		t.Errorf("Count() = %d, want 1", r.Count())
	}
}

func TestRegistry_AcquireRelease(t *testing.T) {
	r := New(nil)
	ctx := context.Background()
	r.Register(ctx, "j1", model.StateQueued)

	if !r.Acquire("j1") {
		t.Fatal("first Acquire should succeed")
	}
	if r.Acquire("j1") {
		t.Error("second Acquire must fail while poll in flight")
	}

	r.Release("j1")
	if !r.Acquire("j1") {
		t.Error("Acquire should succeed after Release")
	}
}

func TestRegistry_AcquireNonMember(t *testing.T) {
	r := New(nil)
	if r.Acquire("ghost") {
		t.Error("Acquire must fail for ids not in the poll set")
	}
}

func TestRegistry_UnregisterClearsInFlight(t *testing.T) {
	r := New(nil)
	ctx := context.Background()
	r.Register(ctx, "j1", model.StateQueued)
	r.Acquire("j1")

	r.Unregister(ctx, "j1")
	r.Register(ctx, "j1", model.StateQueued)

	if !r.Acquire("j1") {
		t.Error("re-registered job must start with a clear in-flight flag")
	}
}

type memState struct {
	m map[string]string
}

func (s *memState) GetState(_ context.Context, key string) (string, bool) {
	v, ok := s.m[key]
	return v, ok
}

func (s *memState) SetState(_ context.Context, key, val string) error {
	s.m[key] = val
	return nil
}

func (s *memState) DeleteState(_ context.Context, key string) error {
	delete(s.m, key)
	return nil
}

func TestRegistry_PersistAndRestore(t *testing.T) {
	st := &memState{m: make(map[string]string)}
	ctx := context.Background()

	first := New(st)
	first.Register(ctx, "j1", model.StateQueued)
	first.Register(ctx, "j2", model.StateGenerating)
	first.Unregister(ctx, "j1")

	second := New(st)
	second.Restore(ctx)

	if second.Count() != 1 || !second.Contains("j2") {
		t.Errorf("restored members = %v, want [j2]", second.Members())
	}
}
