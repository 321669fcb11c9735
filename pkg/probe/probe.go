// Package probe runs startup checks before the app goes live.
package probe

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

const checkTimeout = 5 * time.Second

// Check verifies one dependency. Nil means healthy.
type Check func(ctx context.Context) error

// Probe is a single named startup check. A failing critical probe
// prevents startup; a failing optional one is only logged.
type Probe struct {
	Name     string
	Check    Check
	Critical bool
}

// Result is the outcome of one probe.
type Result struct {
	Name     string
	Critical bool
	Err      error
	Elapsed  time.Duration
}

// Run executes the probes in order, each under its own timeout so one
// hung dependency cannot stall startup forever.
func Run(ctx context.Context, probes []Probe) []Result {
	results := make([]Result, 0, len(probes))
	for _, p := range probes {
		start := time.Now()
		checkCtx, cancel := context.WithTimeout(ctx, checkTimeout)
		err := p.Check(checkCtx)
		cancel()

		results = append(results, Result{
			Name:     p.Name,
			Critical: p.Critical,
			Err:      err,
			Elapsed:  time.Since(start),
		})
	}
	return results
}

// Evaluate logs every result and returns the joined critical failures,
// or nil if the app is clear to start.
func Evaluate(results []Result) error {
	var fatal []error

	slog.Info("Startup checks")
	for _, r := range results {
		elapsed := r.Elapsed.Round(time.Millisecond)
		if r.Err == nil {
			slog.Info(fmt.Sprintf("[PASS] %-16s (%v)", r.Name, elapsed))
			continue
		}
		slog.Error(fmt.Sprintf("[FAIL] %-16s (%v)", r.Name, elapsed), "error", r.Err)
		if r.Critical {
			fatal = append(fatal, fmt.Errorf("%s: %w", r.Name, r.Err))
		}
	}

	return errors.Join(fatal...)
}
