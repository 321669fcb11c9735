package backend

import (
	"errors"
	"fmt"

	"podcastle/pkg/request"
)

// Failure taxonomy for backend calls. Polling behavior hangs off these:
// Transient leaves the job registered for the next tick, Unauthorized
// halts the polling session, NotFound unregisters silently.
var (
	ErrUnauthorized = errors.New("backend: unauthorized")
	ErrNotFound     = errors.New("backend: not found")
	ErrTransient    = errors.New("backend: transient failure")
)

// classify maps a raw request error onto the taxonomy.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if se, ok := request.AsStatusError(err); ok {
		switch se.Code {
		case 401, 403:
			return fmt.Errorf("%w: status %d", ErrUnauthorized, se.Code)
		case 404:
			return ErrNotFound
		}
	}
	// Network failures, timeouts, exhausted retries on 5xx/429.
	return fmt.Errorf("%w: %v", ErrTransient, err)
}
