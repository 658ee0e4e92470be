package session_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/jrsteele09/go-auth-guard/session"
	"github.com/jrsteele09/go-auth-guard/storage"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

type fakeScheduler struct {
	scheduled []session.TokenSet
	cancelled int
}

func (f *fakeScheduler) Schedule(tokens session.TokenSet) { f.scheduled = append(f.scheduled, tokens) }
func (f *fakeScheduler) Cancel()                          { f.cancelled++ }

type failingStorage struct {
	storage.Storage
	err error
}

func (f failingStorage) Set(context.Context, string, string) error { return f.err }
func (f failingStorage) Remove(context.Context, string) error      { return f.err }

type testFixture struct {
	storage   *storage.Memory
	store     *session.Store
	scheduler *fakeScheduler
}

func setupTestFixture(t *testing.T) *testFixture {
	t.Helper()
	mem := storage.NewMemory()
	store := session.NewStore(mem, session.WithStorageKey("tokens"), session.WithLogger(zerolog.Nop()))
	scheduler := &fakeScheduler{}
	store.AttachScheduler(scheduler)
	return &testFixture{storage: mem, store: store, scheduler: scheduler}
}

func TestStore_SetTokensPersistsAndSchedules(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()
	tokens := session.TokenSet{AccessToken: "a.b.c", RefreshToken: "r", IDToken: "i.d.t"}

	require.NoError(t, f.store.SetTokens(ctx, tokens))

	raw, ok, err := f.storage.Get(ctx, "tokens")
	require.NoError(t, err)
	require.True(t, ok)
	require.JSONEq(t, `{"accessToken":"a.b.c","refreshToken":"r","idToken":"i.d.t"}`, raw)

	got, ok := f.store.Tokens()
	require.True(t, ok)
	require.Equal(t, tokens, got)
	require.True(t, f.store.IsAuthenticated())
	require.Equal(t, []session.TokenSet{tokens}, f.scheduler.scheduled)
}

func TestStore_IsAuthenticatedIsDerived(t *testing.T) {
	f := setupTestFixture(t)
	require.NoError(t, f.store.SetTokens(context.Background(), session.TokenSet{RefreshToken: "r"}))

	state := f.store.State()
	require.NotNil(t, state.Tokens)
	require.False(t, state.IsAuthenticated)
}

func TestStore_ClearTokens(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()
	require.NoError(t, f.store.SetTokens(ctx, session.TokenSet{AccessToken: "a"}))

	require.NoError(t, f.store.ClearTokens(ctx))

	_, ok := f.store.Tokens()
	require.False(t, ok)
	require.False(t, f.store.IsAuthenticated())
	_, ok, err := f.storage.Get(ctx, "tokens")
	require.NoError(t, err)
	require.False(t, ok)
	require.Equal(t, 1, f.scheduler.cancelled)
}

func TestStore_Load(t *testing.T) {
	t.Run("restores", func(t *testing.T) {
		f := setupTestFixture(t)
		ctx := context.Background()
		require.NoError(t, f.storage.Set(ctx, "tokens", `{"accessToken":"a","refreshToken":"r"}`))

		require.NoError(t, f.store.Load(ctx))
		got, ok := f.store.Tokens()
		require.True(t, ok)
		require.Equal(t, session.TokenSet{AccessToken: "a", RefreshToken: "r"}, got)
		require.Empty(t, f.scheduler.scheduled, "loading does not arm the timer")
	})

	t.Run("malformed is absent", func(t *testing.T) {
		f := setupTestFixture(t)
		ctx := context.Background()
		require.NoError(t, f.storage.Set(ctx, "tokens", `{not json`))

		require.NoError(t, f.store.Load(ctx))
		_, ok := f.store.Tokens()
		require.False(t, ok)
	})

	t.Run("missing is absent", func(t *testing.T) {
		f := setupTestFixture(t)
		require.NoError(t, f.store.Load(context.Background()))
		require.False(t, f.store.IsAuthenticated())
	})
}

func TestStore_SetTokensStorageFailureKeepsState(t *testing.T) {
	boom := errors.New("disk full")
	store := session.NewStore(failingStorage{Storage: storage.NewMemory(), err: boom}, session.WithLogger(zerolog.Nop()))

	err := store.SetTokens(context.Background(), session.TokenSet{AccessToken: "a"})
	require.ErrorIs(t, err, boom)
	require.False(t, store.IsAuthenticated())
}

func TestStore_ClearTokensStorageFailureStillClearsMemory(t *testing.T) {
	boom := errors.New("read only")
	mem := storage.NewMemory()
	store := session.NewStore(mem, session.WithLogger(zerolog.Nop()))
	require.NoError(t, store.SetTokens(context.Background(), session.TokenSet{AccessToken: "a"}))

	failing := session.NewStore(failingStorage{Storage: mem, err: boom}, session.WithLogger(zerolog.Nop()))
	require.NoError(t, failing.Load(context.Background()))
	require.True(t, failing.IsAuthenticated())

	require.ErrorIs(t, failing.ClearTokens(context.Background()), boom)
	require.False(t, failing.IsAuthenticated())
}

func TestStore_Subscribe(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()

	var states []session.State
	unsubscribe := f.store.Subscribe(func(s session.State) { states = append(states, s) })

	require.NoError(t, f.store.SetTokens(ctx, session.TokenSet{AccessToken: "a"}))
	f.store.SetError("callback failed")
	require.NoError(t, f.store.ClearTokens(ctx))

	require.Len(t, states, 3)
	require.True(t, states[0].IsAuthenticated)
	require.Equal(t, "callback failed", states[1].LastError)
	require.True(t, states[1].IsAuthenticated)
	require.False(t, states[2].IsAuthenticated)

	unsubscribe()
	require.NoError(t, f.store.SetTokens(ctx, session.TokenSet{AccessToken: "b"}))
	require.Len(t, states, 3)
}

func TestStore_SetTokensClearsLastError(t *testing.T) {
	f := setupTestFixture(t)
	f.store.SetError("boom")
	require.NoError(t, f.store.SetTokens(context.Background(), session.TokenSet{AccessToken: "a"}))
	require.Empty(t, f.store.State().LastError)
}

func TestStore_StateIsACopy(t *testing.T) {
	f := setupTestFixture(t)
	require.NoError(t, f.store.SetTokens(context.Background(), session.TokenSet{AccessToken: "a"}))

	state := f.store.State()
	state.Tokens.AccessToken = "mutated"

	got, _ := f.store.Tokens()
	require.Equal(t, "a", got.AccessToken)
}

func TestTokenSet_OAuth2Token(t *testing.T) {
	tok := session.TokenSet{AccessToken: "a", RefreshToken: "r", IDToken: "i"}.OAuth2Token()
	require.Equal(t, "a", tok.AccessToken)
	require.Equal(t, "r", tok.RefreshToken)
	require.Equal(t, "Bearer", tok.TokenType)
	require.Equal(t, "i", tok.Extra("id_token"))
}

func TestStore_ConcurrentSetTokensStayConsistent(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()
	var notified []session.State
	f.store.Subscribe(func(state session.State) { notified = append(notified, state) })

	var wg sync.WaitGroup
	errs := make(chan error, 50)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tokens := session.TokenSet{AccessToken: fmt.Sprintf("access-%d", i), RefreshToken: fmt.Sprintf("refresh-%d", i)}
			errs <- f.store.SetTokens(ctx, tokens)
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	current, ok := f.store.Tokens()
	require.True(t, ok)

	raw, ok, err := f.storage.Get(ctx, "tokens")
	require.NoError(t, err)
	require.True(t, ok)
	var persisted session.TokenSet
	require.NoError(t, json.Unmarshal([]byte(raw), &persisted))
	require.Equal(t, current, persisted)

	require.Len(t, f.scheduler.scheduled, 50)
	require.Equal(t, current, f.scheduler.scheduled[len(f.scheduler.scheduled)-1])

	require.Len(t, notified, 50)
	require.Equal(t, current, *notified[len(notified)-1].Tokens)
}
