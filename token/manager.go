// Package token decides when the session's access token must be refreshed and
// performs the refresh. A failed refresh always ends the session; it never
// leaves a soon-to-expire token in place.
package token

import (
	"context"
	"fmt"
	"time"

	"github.com/jrsteele09/go-auth-guard/internal/clock"
	"github.com/jrsteele09/go-auth-guard/internal/config"
	guarderrors "github.com/jrsteele09/go-auth-guard/internal/errors"
	"github.com/jrsteele09/go-auth-guard/session"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
)

// Refresher exchanges a refresh token for a new token set.
type Refresher interface {
	Refresh(ctx context.Context, refreshToken string) (session.TokenSet, error)
}

// RetryPolicy controls how often a failing refresh call is attempted before
// the session is cleared. The zero value means a single attempt.
type RetryPolicy struct {
	Attempts int
	Backoff  time.Duration
}

func (p RetryPolicy) attempts() int {
	if p.Attempts < 1 {
		return 1
	}
	return p.Attempts
}

type Manager struct {
	store     *session.Store
	refresher Refresher
	clock     clock.Clock
	threshold time.Duration
	minDelay  time.Duration
	retry     RetryPolicy
	logger    zerolog.Logger
	scheduler *Scheduler
	inflight  singleflight.Group
}

type ManagerOption func(*Manager)

func WithClock(c clock.Clock) ManagerOption {
	return func(m *Manager) {
		m.clock = c
	}
}

func WithRefreshThreshold(d time.Duration) ManagerOption {
	return func(m *Manager) {
		m.threshold = d
	}
}

func WithMinRefreshDelay(d time.Duration) ManagerOption {
	return func(m *Manager) {
		m.minDelay = d
	}
}

func WithRetryPolicy(p RetryPolicy) ManagerOption {
	return func(m *Manager) {
		m.retry = p
	}
}

func WithLogger(logger zerolog.Logger) ManagerOption {
	return func(m *Manager) {
		m.logger = logger
	}
}

// NewManager wires a scheduler into store so that every SetTokens re-arms the
// refresh timer and every ClearTokens cancels it.
func NewManager(store *session.Store, refresher Refresher, opts ...ManagerOption) *Manager {
	m := &Manager{
		store:     store,
		refresher: refresher,
		clock:     clock.Real{},
		threshold: config.DefaultRefreshThreshold,
		minDelay:  config.DefaultMinRefreshDelay,
		logger:    log.Logger,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.scheduler = NewScheduler(m.clock, m.threshold, m.minDelay, m.refreshFromTimer, m.logger)
	store.AttachScheduler(m.scheduler)
	return m
}

func (m *Manager) Scheduler() *Scheduler {
	return m.scheduler
}

// ShouldRefreshNow reports whether the current access token is inside the
// refresh threshold.
func (m *Manager) ShouldRefreshNow() bool {
	tokens, ok := m.store.Tokens()
	if !ok || tokens.AccessToken == "" {
		return false
	}
	return IsRefreshDue(tokens.AccessToken, m.clock.Now(), m.threshold)
}

// StartAutoRefresh arms the timer for the current tokens.
func (m *Manager) StartAutoRefresh() {
	m.scheduler.Cancel()
	if tokens, ok := m.store.Tokens(); ok {
		m.scheduler.Schedule(tokens)
	}
}

func (m *Manager) StopAutoRefresh() {
	m.scheduler.Cancel()
}

// RefreshNow refreshes the session unconditionally. With no refresh token it
// does nothing. On failure the session is cleared and the error returned.
func (m *Manager) RefreshNow(ctx context.Context) error {
	tokens, ok := m.store.Tokens()
	if !ok || tokens.RefreshToken == "" {
		return nil
	}
	if err := m.refresh(ctx, tokens.RefreshToken); err != nil {
		m.logger.Warn().Err(err).Msg("token refresh failed, clearing session")
		if clearErr := m.store.ClearTokens(ctx); clearErr != nil {
			m.logger.Err(clearErr).Msg("failed to clear session after refresh failure")
		}
		return err
	}
	m.logger.Debug().Msg("token refreshed")
	return nil
}

// MaybeRefreshNow is the pre-navigation check. It reports whether the session
// is usable after refreshing inline if the access token is about to expire.
func (m *Manager) MaybeRefreshNow(ctx context.Context) (bool, error) {
	tokens, ok := m.store.Tokens()
	if !ok || tokens.AccessToken == "" {
		return false, nil
	}
	if tokens.RefreshToken == "" {
		return true, nil
	}
	if !IsRefreshDue(tokens.AccessToken, m.clock.Now(), m.threshold) {
		return true, nil
	}
	if err := m.RefreshNow(ctx); err != nil {
		return false, err
	}
	return true, nil
}

func (m *Manager) refreshFromTimer() {
	// Timer-driven refreshes have no caller to cancel them.
	_ = m.RefreshNow(context.Background())
}

// refresh performs the refresh call and stores the result. Concurrent calls
// for the same refresh token share one request.
func (m *Manager) refresh(ctx context.Context, refreshToken string) error {
	_, err, _ := m.inflight.Do(refreshToken, func() (any, error) {
		tokens, err := m.callWithRetry(ctx, refreshToken)
		if err != nil {
			return nil, err
		}
		if tokens.AccessToken == "" {
			return nil, guarderrors.ErrIncompleteTokenSet
		}
		if err := m.store.SetTokens(ctx, tokens); err != nil {
			return nil, err
		}
		return nil, nil
	})
	if err != nil {
		return fmt.Errorf("%w: %w", guarderrors.ErrRefreshFailed, err)
	}
	return nil
}

func (m *Manager) callWithRetry(ctx context.Context, refreshToken string) (session.TokenSet, error) {
	var lastErr error
	attempts := m.retry.attempts()
	for i := 0; i < attempts; i++ {
		if i > 0 {
			if err := m.wait(ctx, m.retry.Backoff); err != nil {
				return session.TokenSet{}, err
			}
			m.logger.Debug().Int("attempt", i+1).Msg("retrying token refresh")
		}
		tokens, err := m.refresher.Refresh(ctx, refreshToken)
		if err == nil {
			return tokens, nil
		}
		lastErr = err
	}
	return session.TokenSet{}, lastErr
}

func (m *Manager) wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	done := make(chan struct{})
	t := m.clock.AfterFunc(d, func() { close(done) })
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		t.Stop()
		return ctx.Err()
	}
}
