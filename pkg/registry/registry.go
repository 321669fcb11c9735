// Package registry tracks the working set of job ids still being polled.
package registry

import (
	"context"
	"encoding/json"
	"log/slog"
	"sort"
	"sync"

	"podcastle/pkg/model"
	"podcastle/pkg/store"
)

const stateKeyPollSet = "poller.pollset"

// Registry is the poll set: a job id is a member iff its last known state
// is still active. It also owns the per-id in-flight flags the scheduler
// uses to keep polls strictly sequential per id.
type Registry struct {
	mu       sync.RWMutex
	members  map[string]struct{}
	inFlight map[string]bool
	state    store.StateStore // optional, persists membership across restarts
}

// New creates an empty registry. st may be nil (no persistence).
func New(st store.StateStore) *Registry {
	return &Registry{
		members:  make(map[string]struct{}),
		inFlight: make(map[string]bool),
		state:    st,
	}
}

// Restore reloads the persisted poll set from a previous run.
func (r *Registry) Restore(ctx context.Context) {
	if r.state == nil {
		return
	}
	raw, ok := r.state.GetState(ctx, stateKeyPollSet)
	if !ok || raw == "" {
		return
	}
	var ids []string
	if err := json.Unmarshal([]byte(raw), &ids); err != nil {
		slog.Warn("Registry: Discarding corrupt persisted poll set", "error", err)
		return
	}

	r.mu.Lock()
	for _, id := range ids {
		r.members[id] = struct{}{}
	}
	n := len(r.members)
	r.mu.Unlock()

	if n > 0 {
		slog.Info("Registry: Resumed polling for in-flight jobs", "count", n)
	}
}

// Register adds a job id to the poll set. Registering a job already in a
// terminal state is a guarded no-op.
func (r *Registry) Register(ctx context.Context, id string, lastKnown model.JobState) {
	if lastKnown.Terminal() {
		slog.Warn("Registry: Refusing to register terminal job", "id", id, "state", lastKnown)
		return
	}

	r.mu.Lock()
	_, existed := r.members[id]
	r.members[id] = struct{}{}
	r.mu.Unlock()

	if !existed {
		slog.Debug("Registry: Registered job", "id", id)
		r.persist(ctx)
	}
}

// Unregister removes a job id from the poll set. Unknown ids are a no-op,
// which makes terminal-transition handling idempotent.
func (r *Registry) Unregister(ctx context.Context, id string) {
	r.mu.Lock()
	_, existed := r.members[id]
	delete(r.members, id)
	delete(r.inFlight, id)
	r.mu.Unlock()

	if existed {
		slog.Debug("Registry: Unregistered job", "id", id)
		r.persist(ctx)
	}
}

// Members returns a snapshot of the poll set, sorted for determinism.
func (r *Registry) Members() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.members))
	for id := range r.members {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Contains reports membership.
func (r *Registry) Contains(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.members[id]
	return ok
}

// Count returns the number of members.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.members)
}

// Acquire marks a poll in flight for id. It returns false if the id is no
// longer a member or a previous poll has not resolved yet, so replies for
// the same id can never be applied out of order.
func (r *Registry) Acquire(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.members[id]; !ok {
		return false
	}
	if r.inFlight[id] {
		return false
	}
	r.inFlight[id] = true
	return true
}

// Release clears the in-flight flag for id.
func (r *Registry) Release(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.inFlight, id)
}

func (r *Registry) persist(ctx context.Context) {
	if r.state == nil {
		return
	}
	data, err := json.Marshal(r.Members())
	if err != nil {
		return
	}
	if err := r.state.SetState(ctx, stateKeyPollSet, string(data)); err != nil {
		slog.Warn("Registry: Failed to persist poll set", "error", err)
	}
}
