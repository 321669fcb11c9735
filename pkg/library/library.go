// Package library holds the canonical job list: the reconciliation engine
// that merges status replies, the transient completion markers, and the
// render-facing view partitions.
package library

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"podcastle/pkg/model"
	"podcastle/pkg/store"
)

// Unregisterer removes a job id from the poll set on terminal transitions.
type Unregisterer interface {
	Unregister(ctx context.Context, id string)
}

// Library is the canonical, render-facing collection of jobs. It is the
// only component that mutates the job list; the poll scheduler and user
// actions feed it.
type Library struct {
	mu       sync.RWMutex
	jobs     map[string]*model.Job
	markers  map[string]time.Time // id -> marker expiry
	ttl      time.Duration
	registry Unregisterer
	store    store.JobStore // optional, survives restarts

	// injectable time for deterministic tests
	now      func() time.Time
	schedule func(time.Duration, func())
}

// New creates a library. reg must not be nil; st may be nil.
func New(reg Unregisterer, st store.JobStore, markerTTL time.Duration) *Library {
	return &Library{
		jobs:     make(map[string]*model.Job),
		markers:  make(map[string]time.Time),
		ttl:      markerTTL,
		registry: reg,
		store:    st,
		now:      time.Now,
		schedule: func(d time.Duration, f func()) { time.AfterFunc(d, f) },
	}
}

// Restore reloads persisted jobs from a previous run.
func (l *Library) Restore(ctx context.Context) {
	if l.store == nil {
		return
	}
	jobs, err := l.store.ListJobs(ctx)
	if err != nil {
		slog.Warn("Library: Failed to restore jobs", "error", err)
		return
	}

	l.mu.Lock()
	for _, j := range jobs {
		l.jobs[j.ID] = j
	}
	n := len(l.jobs)
	l.mu.Unlock()

	if n > 0 {
		slog.Info("Library: Restored job list", "count", n)
	}
}

// Add inserts a freshly accepted job.
func (l *Library) Add(ctx context.Context, job *model.Job) {
	cp := *job

	l.mu.Lock()
	l.jobs[cp.ID] = &cp
	l.mu.Unlock()

	l.persist(ctx, &cp)
	slog.Info("Library: Added job", "id", cp.ID, "topic", cp.Topic)
}

// Get returns a copy of the job, or nil if unknown.
func (l *Library) Get(id string) *model.Job {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if j, ok := l.jobs[id]; ok {
		cp := *j
		return &cp
	}
	return nil
}

// Apply merges one fresh status reply into the canonical list. It is
// idempotent per reply: applying the same reply twice ends in the same
// state with no duplicate side effects.
func (l *Library) Apply(ctx context.Context, reply *model.StatusReply) bool {
	l.mu.Lock()

	job, ok := l.jobs[reply.ID]
	if !ok {
		// Job deleted by the user mid-flight, or reply raced a teardown.
		l.mu.Unlock()
		slog.Debug("Library: Ignoring reply for unknown job", "id", reply.ID)
		return false
	}

	if !job.State.CanAdvanceTo(reply.State) {
		// Stale or illegal observation; jobs never move backward.
		l.mu.Unlock()
		slog.Warn("Library: Dropping backward status reply", "id", reply.ID, "have", job.State, "got", reply.State)
		return false
	}

	wasActive := job.State.Active()
	wasGenerating := job.State == model.StateGenerating

	job.State = reply.State
	job.Stage = reply.Stage
	job.ResultURL = reply.ResultURL
	job.ErrorMessage = reply.ErrorMessage
	job.UpdatedAt = l.now()

	switch {
	case reply.State == model.StateCompleted:
		job.Progress = 100
	case reply.State.Active():
		// Progress is monotonic while the job is active.
		p := reply.Progress
		if p < 0 {
			p = 0
		} else if p > 100 {
			p = 100
		}
		if p > job.Progress {
			job.Progress = p
		}
	}

	completedNow := wasGenerating && reply.State == model.StateCompleted
	if completedNow {
		l.markers[job.ID] = l.now().Add(l.ttl)
	}
	cp := *job
	l.mu.Unlock()

	if reply.State.Terminal() && wasActive {
		l.registry.Unregister(ctx, reply.ID)
	}
	if completedNow {
		l.schedule(l.ttl, func() { l.pruneMarkers() })
		slog.Info("Library: Job completed", "id", reply.ID)
	}

	l.persist(ctx, &cp)
	return true
}

// Remove drops a job optimistically (user deletion). The returned copy
// lets the caller roll back on a definitive server-side rejection.
func (l *Library) Remove(ctx context.Context, id string) *model.Job {
	l.mu.Lock()
	job, ok := l.jobs[id]
	var cp *model.Job
	if ok {
		c := *job
		cp = &c
		delete(l.jobs, id)
		delete(l.markers, id)
	}
	l.mu.Unlock()

	if !ok {
		return nil
	}

	l.registry.Unregister(ctx, id)
	if l.store != nil {
		if err := l.store.DeleteJob(ctx, id); err != nil {
			slog.Warn("Library: Failed to delete persisted job", "id", id, "error", err)
		}
	}
	slog.Info("Library: Removed job", "id", id)
	return cp
}

// Reinstate puts a removed job back (rollback of an optimistic delete).
func (l *Library) Reinstate(ctx context.Context, job *model.Job) {
	if job == nil {
		return
	}
	l.Add(ctx, job)
}

// JustCompleted reports whether id carries a live completion marker.
func (l *Library) JustCompleted(id string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	expiry, ok := l.markers[id]
	return ok && l.now().Before(expiry)
}

// pruneMarkers drops expired markers.
func (l *Library) pruneMarkers() {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	for id, expiry := range l.markers {
		if !now.Before(expiry) {
			delete(l.markers, id)
		}
	}
}

// View is the pure derived projection consumed by presentation.
type View struct {
	Active        []model.Job `json:"active"`    // queued + generating, oldest first
	Failed        []model.Job `json:"failed"`    // newest first
	Completed     []model.Job `json:"completed"` // newest first
	JustCompleted []string    `json:"just_completed"`
}

// Snapshot recomputes the view from the canonical list. No mutation.
func (l *Library) Snapshot() View {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var v View
	now := l.now()
	for id, expiry := range l.markers {
		if now.Before(expiry) {
			v.JustCompleted = append(v.JustCompleted, id)
		}
	}
	sort.Strings(v.JustCompleted)

	for _, j := range l.jobs {
		cp := *j
		switch {
		case cp.State.Active():
			v.Active = append(v.Active, cp)
		case cp.State == model.StateFailed:
			v.Failed = append(v.Failed, cp)
		default:
			v.Completed = append(v.Completed, cp)
		}
	}

	sort.Slice(v.Active, func(i, k int) bool { return v.Active[i].CreatedAt.Before(v.Active[k].CreatedAt) })
	sort.Slice(v.Failed, func(i, k int) bool { return v.Failed[i].CreatedAt.After(v.Failed[k].CreatedAt) })
	sort.Slice(v.Completed, func(i, k int) bool { return v.Completed[i].CreatedAt.After(v.Completed[k].CreatedAt) })

	return v
}

// CompletedByCategory groups completed jobs by category id, each group
// sorted by recency.
func (l *Library) CompletedByCategory() map[string][]model.Job {
	snap := l.Snapshot()
	out := make(map[string][]model.Job)
	for _, j := range snap.Completed {
		out[j.CategoryID] = append(out[j.CategoryID], j)
	}
	return out
}

func (l *Library) persist(ctx context.Context, job *model.Job) {
	if l.store == nil {
		return
	}
	if err := l.store.SaveJob(ctx, job); err != nil {
		slog.Warn("Library: Failed to persist job", "id", job.ID, "error", err)
	}
}
