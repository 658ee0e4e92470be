package profile

import (
	"context"
	"sync"

	"github.com/jrsteele09/go-auth-guard/internal/config"
	"github.com/jrsteele09/go-auth-guard/session"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Store holds the profile for the session's current ID token. Results of
// verifications overtaken by a newer token are discarded.
type Store struct {
	verifier *Verifier
	logger   zerolog.Logger

	mu       sync.RWMutex
	cfg      config.Guard
	idToken  string
	gen      uint64
	inflight int
	idle     chan struct{}
	profile  *Profile
	errMsg   string
}

type StoreOption func(*Store)

func WithLogger(logger zerolog.Logger) StoreOption {
	return func(s *Store) {
		s.logger = logger
	}
}

func NewStore(verifier *Verifier, cfg config.Guard, opts ...StoreOption) *Store {
	idle := make(chan struct{})
	close(idle)
	s := &Store{verifier: verifier, cfg: cfg, logger: log.Logger, idle: idle}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Follow keeps the profile in step with sess and returns the unsubscribe
// function. Verification runs in the background so session writers are never
// held up by the key fetch; use Wait to observe the result.
func (s *Store) Follow(ctx context.Context, sess *session.Store) func() {
	apply := func(state session.State) {
		idToken := ""
		if state.Tokens != nil {
			idToken = state.Tokens.IDToken
		}
		gen, cfg, ok := s.begin(idToken, false)
		if !ok {
			return
		}
		go func() {
			defer s.finish()
			s.verify(ctx, cfg, idToken, gen)
		}()
	}
	apply(sess.State())
	return sess.Subscribe(apply)
}

// SetConfig changes the expected issuer and audience and re-verifies the
// current token against them.
func (s *Store) SetConfig(ctx context.Context, cfg config.Guard) {
	s.mu.Lock()
	s.cfg = cfg
	idToken := s.idToken
	s.mu.Unlock()
	s.update(ctx, idToken, true)
}

// Update verifies idToken and replaces the profile. An empty token clears
// both profile and error. The same token is not verified twice.
func (s *Store) Update(ctx context.Context, idToken string) {
	s.update(ctx, idToken, false)
}

func (s *Store) update(ctx context.Context, idToken string, force bool) {
	gen, cfg, ok := s.begin(idToken, force)
	if !ok {
		return
	}
	defer s.finish()
	s.verify(ctx, cfg, idToken, gen)
}

// Wait blocks until no verification is in flight or ctx is done.
func (s *Store) Wait(ctx context.Context) error {
	s.mu.RLock()
	idle := s.idle
	s.mu.RUnlock()
	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// begin claims a new generation for idToken. ok is false when idToken is
// already current or being verified.
func (s *Store) begin(idToken string, force bool) (gen uint64, cfg config.Guard, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if idToken == s.idToken && !force {
		return 0, config.Guard{}, false
	}
	s.idToken = idToken
	s.gen++
	if s.inflight == 0 {
		s.idle = make(chan struct{})
	}
	s.inflight++
	return s.gen, s.cfg, true
}

func (s *Store) finish() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inflight--
	if s.inflight == 0 {
		close(s.idle)
	}
}

func (s *Store) verify(ctx context.Context, cfg config.Guard, idToken string, gen uint64) {
	if idToken == "" {
		s.set(gen, nil, "")
		return
	}
	p, err := s.verifier.Verify(ctx, cfg, idToken)
	if err != nil {
		s.logger.Warn().Err(err).Msg("ID token verification failed")
		s.set(gen, nil, Message(err))
		return
	}
	s.set(gen, p, "")
}

func (s *Store) set(gen uint64, p *Profile, errMsg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.gen {
		return
	}
	s.profile = p
	s.errMsg = errMsg
}

// Profile returns the verified profile, or nil.
func (s *Store) Profile() *Profile {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.profile == nil {
		return nil
	}
	p := *s.profile
	return &p
}

// Error is the user-facing reason the last token could not be verified.
func (s *Store) Error() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.errMsg
}

func (s *Store) IsOnboarded() bool {
	p := s.Profile()
	return p != nil && p.Onboarded
}

func (s *Store) HasMultiTenantAccess() bool {
	p := s.Profile()
	return p != nil && p.MultiTenantAccess
}

func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gen++
	s.idToken = ""
	s.profile = nil
	s.errMsg = ""
}
