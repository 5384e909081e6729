// Package session guards every media server call with a cached, single-flight refreshed credential.
//
// A [Guard] owns one [Session] at a time. Concurrent callers that find it missing or expired share a
// single credential exchange. [Guard.Do] and [Call] retry an operation exactly once after it fails with
// an error [IsAuthError] classifies as an authentication failure.
package session

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/curate/internal/shared"
	"golang.org/x/sync/singleflight"
)

const (
	DefaultLifetime = 24 * time.Hour
	DefaultMargin   = time.Hour
)

const refreshKey = "refresh"

// Credentials is the result of a credential exchange.
type Credentials struct {
	Token  string
	UserID string
}

// Session is a snapshot of a credential and the instant it stops being trusted.
type Session struct {
	Token     string
	UserID    string
	ExpiresAt time.Time
}

// Authenticator performs the credential exchange.
type Authenticator interface {
	Authenticate(ctx context.Context) (*Credentials, error)
}

// AuthenticatorFunc adapts a function to [Authenticator].
type AuthenticatorFunc func(ctx context.Context) (*Credentials, error)

func (f AuthenticatorFunc) Authenticate(ctx context.Context) (*Credentials, error) { return f(ctx) }

// Options configures a [Guard]. Zero values select the defaults.
type Options struct {
	Lifetime time.Duration    // nominal server session lifetime
	Margin   time.Duration    // subtracted from Lifetime when computing expiry
	Now      func() time.Time // clock
	Logger   *log.Logger
}

// Guard caches one [Session] and collapses concurrent refreshes into a single exchange.
type Guard struct {
	auth   Authenticator
	ttl    time.Duration
	now    func() time.Time
	logger *log.Logger

	mu      sync.Mutex
	current *Session

	flight    singleflight.Group
	refreshes atomic.Int64
}

// NewGuard creates a [Guard] around auth.
func NewGuard(auth Authenticator, opts Options) *Guard {
	if opts.Lifetime <= 0 {
		opts.Lifetime = DefaultLifetime
	}
	if opts.Margin <= 0 || opts.Margin >= opts.Lifetime {
		opts.Margin = DefaultMargin
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return &Guard{
		auth:   auth,
		ttl:    opts.Lifetime - opts.Margin,
		now:    opts.Now,
		logger: shared.WithLogger(opts.Logger, "component", "session"),
	}
}

// Session returns the cached session while it is valid, otherwise waits on the one in-flight refresh,
// starting it if none is pending.
func (g *Guard) Session(ctx context.Context) (Session, error) {
	if s, ok := g.cached(); ok {
		return s, nil
	}

	// The exchange outlives whichever caller started it.
	detached := context.WithoutCancel(ctx)
	ch := g.flight.DoChan(refreshKey, func() (any, error) {
		if s, ok := g.cached(); ok {
			return s, nil
		}
		return g.refresh(detached)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return Session{}, res.Err
		}
		return res.Val.(Session), nil
	case <-ctx.Done():
		return Session{}, ctx.Err()
	}
}

// Token returns a valid access token.
func (g *Guard) Token(ctx context.Context) (string, error) {
	s, err := g.Session(ctx)
	if err != nil {
		return "", err
	}
	return s.Token, nil
}

// Invalidate drops the cached session if it still carries token. An empty token drops it unconditionally.
// A session refreshed by another caller in the meantime survives.
func (g *Guard) Invalidate(token string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.current != nil && (token == "" || g.current.Token == token) {
		g.current = nil
	}
}

// Refreshes reports how many credential exchanges have succeeded.
func (g *Guard) Refreshes() int64 {
	return g.refreshes.Load()
}

// Do runs op with a valid session and retries it once after an authentication failure.
func (g *Guard) Do(ctx context.Context, op func(ctx context.Context, s Session) error) error {
	_, err := Call(ctx, g, func(ctx context.Context, s Session) (struct{}, error) {
		return struct{}{}, op(ctx, s)
	})
	return err
}

// Call is [Guard.Do] for operations that return a value.
func Call[T any](ctx context.Context, g *Guard, op func(ctx context.Context, s Session) (T, error)) (T, error) {
	s, err := g.Session(ctx)
	if err != nil {
		var zero T
		return zero, err
	}

	v, err := op(ctx, s)
	if err == nil || !IsAuthError(err) {
		return v, err
	}

	g.logger.Warn("request rejected, refreshing session", "error", err)
	g.Invalidate(s.Token)

	s, err = g.Session(ctx)
	if err != nil {
		var zero T
		return zero, err
	}
	return op(ctx, s)
}

func (g *Guard) cached() (Session, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.current == nil || !g.now().Before(g.current.ExpiresAt) {
		return Session{}, false
	}
	return *g.current, true
}

func (g *Guard) refresh(ctx context.Context) (Session, error) {
	g.logger.Debug("refreshing session")
	if g.auth == nil {
		return Session{}, fmt.Errorf("%w: no authenticator configured", shared.ErrNotAuthenticated)
	}

	creds, err := g.auth.Authenticate(ctx)
	if err != nil {
		g.logger.Error("session refresh failed", "error", err)
		return Session{}, fmt.Errorf("%w: %w", shared.ErrRefreshFailed, err)
	}
	if creds == nil || creds.Token == "" {
		return Session{}, fmt.Errorf("%w: exchange returned no token", shared.ErrRefreshFailed)
	}

	s := Session{Token: creds.Token, UserID: creds.UserID, ExpiresAt: g.now().Add(g.ttl)}

	g.mu.Lock()
	g.current = &s
	g.mu.Unlock()

	g.refreshes.Add(1)
	g.logger.Info("session refreshed", "user_id", s.UserID, "expires_at", s.ExpiresAt.Format(time.RFC3339))
	return s, nil
}

var authKeywords = []string{"unauthorized", "forbidden", "authentication", "token"}

// IsAuthError classifies err as an authentication failure.
//
// A [shared.StatusError] decides by status code alone (401 or 403). Other errors match
// [shared.ErrAuthFailed] or, as a fallback, mention one of the auth keywords.
func IsAuthError(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var status *shared.StatusError
	if errors.As(err, &status) {
		return status.StatusCode == http.StatusUnauthorized || status.StatusCode == http.StatusForbidden
	}

	if errors.Is(err, shared.ErrAuthFailed) {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, kw := range authKeywords {
		if strings.Contains(msg, kw) {
			return true
		}
	}
	return false
}
