// Package auth resolves the application's single canonical credential.
// Consumers read one immutable Credential value and never learn which
// path (stored session, env token) produced it.
package auth

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"podcastle/pkg/store"
)

const stateKeyToken = "auth.token"

// Credential is the canonical bearer credential. Immutable; a change
// produces a new value.
type Credential struct {
	Token     string
	ExpiresAt time.Time // zero if the token carries no expiry
}

// Valid reports whether the credential can be used for a request.
func (c Credential) Valid() bool {
	if c.Token == "" {
		return false
	}
	if c.ExpiresAt.IsZero() {
		return true
	}
	return time.Now().Before(c.ExpiresAt)
}

// Header returns the Authorization header map for this credential.
func (c Credential) Header() map[string]string {
	return map[string]string{"Authorization": "Bearer " + c.Token}
}

// Resolver owns the credential lifecycle: init on load, teardown on logout.
type Resolver struct {
	mu    sync.RWMutex
	cred  Credential
	state store.StateStore // optional, persists the session across restarts
	subs  []func(Credential)
}

// NewResolver creates a resolver. st may be nil (no persistence).
func NewResolver(st store.StateStore) *Resolver {
	return &Resolver{state: st}
}

// Restore loads a previously stored session token, if any.
func (r *Resolver) Restore(ctx context.Context) {
	if r.state == nil {
		return
	}
	if tok, ok := r.state.GetState(ctx, stateKeyToken); ok && tok != "" {
		r.SetToken(ctx, tok)
		slog.Info("Auth: Restored stored session")
	}
}

// SetToken installs a new bearer token as the canonical credential.
// JWT registered claims are parsed (unverified; the client does not hold
// the signing key) solely to surface the expiry. Opaque tokens are
// accepted with no expiry.
func (r *Resolver) SetToken(ctx context.Context, token string) {
	cred := Credential{Token: token, ExpiresAt: tokenExpiry(token)}

	r.mu.Lock()
	changed := cred != r.cred
	r.cred = cred
	subs := r.subs
	r.mu.Unlock()

	if !changed {
		return
	}

	if r.state != nil {
		if err := r.state.SetState(ctx, stateKeyToken, token); err != nil {
			slog.Warn("Auth: Failed to persist session", "error", err)
		}
	}

	for _, fn := range subs {
		fn(cred)
	}
}

// Clear tears the session down (logout). Subscribers observe the empty
// credential.
func (r *Resolver) Clear(ctx context.Context) {
	r.mu.Lock()
	had := r.cred.Token != ""
	r.cred = Credential{}
	subs := r.subs
	r.mu.Unlock()

	if !had {
		return
	}

	if r.state != nil {
		if err := r.state.DeleteState(ctx, stateKeyToken); err != nil {
			slog.Warn("Auth: Failed to clear stored session", "error", err)
		}
	}

	for _, fn := range subs {
		fn(Credential{})
	}
}

// Current returns the canonical credential.
func (r *Resolver) Current() Credential {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.cred
}

// Subscribe registers fn to be called whenever the credential changes.
func (r *Resolver) Subscribe(fn func(Credential)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.subs = append(r.subs, fn)
}

// tokenExpiry extracts the exp claim from a JWT, or zero for opaque tokens.
func tokenExpiry(token string) time.Time {
	parser := jwt.NewParser()
	var claims jwt.RegisteredClaims
	if _, _, err := parser.ParseUnverified(token, &claims); err != nil {
		return time.Time{}
	}
	if claims.ExpiresAt == nil {
		return time.Time{}
	}
	return claims.ExpiresAt.Time
}
