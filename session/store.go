package session

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/jrsteele09/go-auth-guard/internal/config"
	"github.com/jrsteele09/go-auth-guard/storage"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type subscription struct {
	id       string
	listener Listener
}

// Store is the single owner of the session's token set.
type Store struct {
	storage storage.Storage
	key     string
	logger  zerolog.Logger

	// writeMu orders whole mutations: persist, memory, notify and schedule.
	writeMu sync.Mutex

	mu        sync.RWMutex
	tokens    *TokenSet
	lastError string
	scheduler RefreshScheduler

	subsMu sync.Mutex
	subs   []subscription
}

type Option func(*Store)

// WithStorageKey overrides the key the token set is persisted under.
func WithStorageKey(key string) Option {
	return func(s *Store) {
		s.key = key
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// NewStore creates an empty store. Call Load to restore a persisted session.
func NewStore(st storage.Storage, opts ...Option) *Store {
	s := &Store{
		storage: st,
		key:     config.DefaultStorageKey,
		logger:  log.Logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// AttachScheduler connects the refresh timer. Passing nil detaches it.
func (s *Store) AttachScheduler(scheduler RefreshScheduler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scheduler = scheduler
}

// Load restores the persisted token set. A missing or unreadable entry leaves
// the store empty; only a storage failure is returned.
func (s *Store) Load(ctx context.Context) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	raw, ok, err := s.storage.Get(ctx, s.key)
	if err != nil {
		return fmt.Errorf("[Store.Load] %w", err)
	}

	var tokens *TokenSet
	if ok && raw != "" {
		var decoded TokenSet
		if err := json.Unmarshal([]byte(raw), &decoded); err != nil {
			s.logger.Warn().Err(err).Str("key", s.key).Msg("ignoring malformed stored session")
		} else {
			tokens = &decoded
		}
	}

	s.mu.Lock()
	s.tokens = tokens
	state := newState(s.tokens, s.lastError)
	s.mu.Unlock()

	s.logger.Debug().Bool("authenticated", state.IsAuthenticated).Msg("session restored")
	s.notify(state)
	return nil
}

// SetTokens persists tokens, makes them current, and re-arms the refresh timer.
// If persisting fails the current state is left unchanged.
func (s *Store) SetTokens(ctx context.Context, tokens TokenSet) error {
	data, err := json.Marshal(tokens)
	if err != nil {
		return fmt.Errorf("[Store.SetTokens] encode: %w", err)
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := s.storage.Set(ctx, s.key, string(data)); err != nil {
		return fmt.Errorf("[Store.SetTokens] persist: %w", err)
	}

	s.mu.Lock()
	s.tokens = &tokens
	s.lastError = ""
	state := newState(s.tokens, s.lastError)
	scheduler := s.scheduler
	s.mu.Unlock()

	s.notify(state)
	if scheduler != nil {
		scheduler.Schedule(tokens)
	}
	return nil
}

// ClearTokens forgets the session and cancels the refresh timer. Memory is
// always cleared; a storage failure is still reported.
func (s *Store) ClearTokens(ctx context.Context) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.Lock()
	s.tokens = nil
	state := newState(nil, s.lastError)
	scheduler := s.scheduler
	s.mu.Unlock()

	if scheduler != nil {
		scheduler.Cancel()
	}
	s.notify(state)

	if err := s.storage.Remove(ctx, s.key); err != nil {
		return fmt.Errorf("[Store.ClearTokens] %w", err)
	}
	return nil
}

// SetError records a user-facing error without touching the tokens.
func (s *Store) SetError(msg string) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.Lock()
	s.lastError = msg
	state := newState(s.tokens, s.lastError)
	s.mu.Unlock()
	s.notify(state)
}

// Tokens returns a copy of the current token set.
func (s *Store) Tokens() (TokenSet, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.tokens == nil {
		return TokenSet{}, false
	}
	return *s.tokens, true
}

func (s *Store) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return newState(s.tokens, s.lastError)
}

func (s *Store) IsAuthenticated() bool {
	return s.State().IsAuthenticated
}

// Subscribe registers listener and returns a function that removes it.
// Listeners run synchronously on the goroutine that made the change and must
// not write to the store from that goroutine.
func (s *Store) Subscribe(listener Listener) func() {
	id := uuid.NewString()
	s.subsMu.Lock()
	s.subs = append(s.subs, subscription{id: id, listener: listener})
	s.subsMu.Unlock()

	return func() {
		s.subsMu.Lock()
		defer s.subsMu.Unlock()
		for i, sub := range s.subs {
			if sub.id == id {
				s.subs = append(s.subs[:i:i], s.subs[i+1:]...)
				return
			}
		}
	}
}

func (s *Store) notify(state State) {
	s.subsMu.Lock()
	subs := append([]subscription(nil), s.subs...)
	s.subsMu.Unlock()

	for _, sub := range subs {
		sub.listener(state)
	}
}
