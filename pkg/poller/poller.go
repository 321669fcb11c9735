// Package poller drives the recurring status polls for in-flight jobs.
package poller

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"

	"podcastle/pkg/backend"
	"podcastle/pkg/model"
	"podcastle/pkg/registry"
)

// StatusClient queries one job's current status.
type StatusClient interface {
	Status(ctx context.Context, id string) (*model.StatusReply, error)
}

// Reconciler merges a status reply into the canonical job list.
type Reconciler interface {
	Apply(ctx context.Context, reply *model.StatusReply) bool
	Remove(ctx context.Context, id string) *model.Job
}

// Poller fans out one status query per registered job on each tick.
// Polls for different ids are unordered; polls for the same id are kept
// strictly sequential by the registry's in-flight flags.
type Poller struct {
	reg    *registry.Registry
	client StatusClient
	lib    Reconciler
	ticks  TickSource

	// onUnauthorized is invoked once when the credential is rejected;
	// polling halts until Resume.
	onUnauthorized func()

	halted       atomic.Bool
	authNotified atomic.Bool
	stopOnce     sync.Once
	wg           sync.WaitGroup
}

// New creates a poller.
func New(reg *registry.Registry, client StatusClient, lib Reconciler, ticks TickSource, onUnauthorized func()) *Poller {
	return &Poller{
		reg:            reg,
		client:         client,
		lib:            lib,
		ticks:          ticks,
		onUnauthorized: onUnauthorized,
	}
}

// Run blocks until ctx is cancelled, polling on every tick.
func (p *Poller) Run(ctx context.Context) {
	slog.Info("Poller started")
	for {
		select {
		case <-ctx.Done():
			p.Stop()
			p.wg.Wait()
			slog.Info("Poller stopped")
			return
		case <-p.ticks.C():
			p.tick(ctx)
		}
	}
}

// Stop cancels the tick source. Safe to call more than once; the source
// is stopped exactly once.
func (p *Poller) Stop() {
	p.stopOnce.Do(p.ticks.Stop)
}

// Resume re-enables polling after re-authentication.
func (p *Poller) Resume() {
	if p.halted.CompareAndSwap(true, false) {
		p.authNotified.Store(false)
		slog.Info("Poller resumed after re-authentication")
	}
}

// tick snapshots the poll set and fans out one query per member that has
// no poll in flight. An empty snapshot issues no network calls. Re-entrant
// ticks are safe: the per-id flags keep replies sequential per job and
// reconciliation is idempotent.
func (p *Poller) tick(ctx context.Context) {
	if p.halted.Load() {
		return
	}

	ids := p.reg.Members()
	if len(ids) == 0 {
		return
	}

	for _, id := range ids {
		if !p.reg.Acquire(id) {
			// Previous poll for this id has not resolved yet.
			continue
		}

		p.wg.Add(1)
		go func(id string) {
			defer p.wg.Done()
			defer p.reg.Release(id)
			p.poll(ctx, id)
		}(id)
	}
}

// poll issues one status query and feeds the result to the reconciler.
// Failure domains are isolated per id: one job's failure never affects
// another job's polling.
func (p *Poller) poll(ctx context.Context, id string) {
	reply, err := p.client.Status(ctx, id)
	if err != nil {
		switch {
		case errors.Is(err, backend.ErrUnauthorized):
			p.halted.Store(true)
			slog.Warn("Poller: Credential rejected, halting polls", "id", id)
			if p.authNotified.CompareAndSwap(false, true) && p.onUnauthorized != nil {
				p.onUnauthorized()
			}
		case errors.Is(err, backend.ErrNotFound):
			// The job vanished server-side; drop it without surfacing an error.
			slog.Info("Poller: Job gone server-side, dropping", "id", id)
			p.reg.Unregister(ctx, id)
			p.lib.Remove(ctx, id)
		default:
			// Transient: skip this tick, retry on the next one.
			slog.Debug("Poller: Transient poll failure", "id", id, "error", err)
		}
		return
	}

	// A teardown may have raced the reply; do not apply it.
	if ctx.Err() != nil {
		return
	}

	p.lib.Apply(ctx, reply)
}
