package app_test

import (
	"context"
	"crypto"
	"encoding/json"
	"errors"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/jrsteele09/go-auth-guard/app"
	"github.com/jrsteele09/go-auth-guard/flags"
	"github.com/jrsteele09/go-auth-guard/guard"
	"github.com/jrsteele09/go-auth-guard/internal/clock/clockfake"
	"github.com/jrsteele09/go-auth-guard/internal/config"
	guarderrors "github.com/jrsteele09/go-auth-guard/internal/errors"
	"github.com/jrsteele09/go-auth-guard/internal/tokentest"
	"github.com/jrsteele09/go-auth-guard/routes"
	"github.com/jrsteele09/go-auth-guard/session"
	"github.com/jrsteele09/go-auth-guard/storage"
	"github.com/jrsteele09/go-auth-guard/transport/transportfake"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

const (
	authBase  = "https://auth.test"
	flagsBase = "https://flags.test"
	appID     = "app-1"

	codeURL    = authBase + "/token/code/" + appID
	refreshURL = authBase + "/token"
	bulkURL    = flagsBase + "/flags/bulkEvaluate/" + appID
)

var start = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func testConfig() config.Guard {
	return config.Guard{
		AppID:              appID,
		AuthBaseURL:        authBase,
		BackendlessBaseURL: flagsBase,
		CallbackURL:        "http://localhost:8080/auth/callback",
	}
}

func testRoutes() routes.GuardConfig {
	return routes.GuardConfig{
		Rules: []routes.Rule{
			{Match: routes.Literal("/login"), Public: true},
			{Match: routes.Literal("/auth/callback"), Public: true},
			{Match: routes.Literal("/upgrade"), FeatureFlag: flags.Flag("pro"), RedirectTo: "/upgrade"},
			{Match: routes.Literal("/beta*"), FeatureFlag: flags.Flag("beta"), RedirectTo: "/upgrade"},
		},
		DefaultAccess: routes.AccessProtected,
	}
}

type testFixture struct {
	clock   *clockfake.Clock
	poster  *transportfake.Poster
	storage *storage.Memory
	keys    *tokentest.KeyPair
	client  *app.Client
}

func setupTestFixture(t *testing.T, seed *session.TokenSet) *testFixture {
	t.Helper()
	f := &testFixture{
		clock:   clockfake.New(start),
		poster:  transportfake.New(),
		storage: storage.NewMemory(),
		keys:    tokentest.NewKeyPair(t, "key-1"),
	}
	if seed != nil {
		data, err := json.Marshal(seed)
		require.NoError(t, err)
		require.NoError(t, f.storage.Set(context.Background(), config.DefaultStorageKey, string(data)))
	}
	f.poster.Respond(bulkURL, map[string]any{"flags": []map[string]any{
		{"flag": "beta", "evaluation": map[string]any{"enabled": false}},
		{"flag": "pro", "evaluation": map[string]any{"enabled": false}},
	}})

	client, err := app.New(context.Background(), testConfig(),
		app.WithStorage(f.storage),
		app.WithPoster(f.poster),
		app.WithClock(f.clock),
		app.WithLogger(zerolog.Nop()),
		app.WithRoutes(testRoutes()),
		app.WithKeySetFactory(func(string) oidc.KeySet {
			return &oidc.StaticKeySet{PublicKeys: []crypto.PublicKey{f.keys.PublicKey()}}
		}),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	f.client = client
	return f
}

func (f *testFixture) tokenResponse(t *testing.T, accessExp time.Time, refreshToken string) map[string]any {
	t.Helper()
	now := f.clock.Now()
	return map[string]any{
		"access_token":  tokentest.AccessToken(t, accessExp),
		"refresh_token": refreshToken,
		"id_token":      f.keys.Sign(t, tokentest.IDTokenClaims(authBase, appID, now, now.Add(time.Hour))),
		"token_type":    "Bearer",
	}
}

func mustURL(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return u
}

func TestNew_RequiresAppID(t *testing.T) {
	_, err := app.New(context.Background(), config.Guard{}, app.WithStorage(storage.NewMemory()), app.WithLogger(zerolog.Nop()))
	require.ErrorIs(t, err, guarderrors.ErrMissingAppID)
}

func TestNew_RejectsInvalidRoutes(t *testing.T) {
	_, err := app.New(context.Background(), testConfig(),
		app.WithStorage(storage.NewMemory()),
		app.WithPoster(transportfake.New()),
		app.WithLogger(zerolog.Nop()),
		app.WithRoutes(routes.GuardConfig{DefaultAccess: "sometimes"}),
	)
	require.Error(t, err)
}

func TestNew_LoadsRoutesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "routes.yaml")
	require.NoError(t, os.WriteFile(path, []byte("defaultAccess: public\nrules:\n  - match: /admin*\n"), 0o600))

	cfg := testConfig()
	cfg.RoutesFile = path
	client, err := app.New(context.Background(), cfg,
		app.WithStorage(storage.NewMemory()),
		app.WithPoster(transportfake.New()),
		app.WithLogger(zerolog.Nop()),
	)
	require.NoError(t, err)
	defer client.Close()

	require.True(t, client.Engine().IsPublicRoute("/about"))
	require.False(t, client.Engine().IsPublicRoute("/admin/users"))
}

func TestBootstrap_CallbackSuccess(t *testing.T) {
	f := setupTestFixture(t, nil)
	f.poster.Respond(codeURL, f.tokenResponse(t, start.Add(time.Hour), "rt-1"))

	outcome, err := f.client.Bootstrap(context.Background(), mustURL(t, "http://localhost:8080/auth/callback?code=abc"))
	require.NoError(t, err)
	require.Equal(t, "/", outcome.Redirect)
	require.Equal(t, guard.Redirect("/"), outcome.Decision)

	require.True(t, f.client.IsAuthenticated())
	require.Empty(t, f.client.State().LastError)

	calls := f.poster.CallsTo(codeURL)
	require.Len(t, calls, 1)
	require.JSONEq(t, `{"code":"abc","redirect_uri":"http://localhost:8080/auth/callback"}`, string(calls[0].Body))

	require.NoError(t, f.client.WaitProfile(context.Background()))
	p := f.client.Profile()
	require.NotNil(t, p)
	require.Equal(t, "user-1", p.ID)
	require.Equal(t, "ada@example.com", p.Email)

	deadline, ok := f.client.Tokens().Scheduler().Pending()
	require.True(t, ok)
	require.True(t, deadline.Equal(start.Add(55*time.Minute)), "got %s", deadline)
}

func TestBootstrap_CallbackFailureContinues(t *testing.T) {
	f := setupTestFixture(t, nil)
	f.poster.Fail(codeURL, errors.New("connection refused"))

	outcome, err := f.client.Bootstrap(context.Background(), mustURL(t, "http://localhost:8080/auth/callback?code=bad"))
	require.NoError(t, err)
	require.Equal(t, guard.Allow(), outcome.Decision)
	require.Empty(t, outcome.Redirect)

	require.False(t, f.client.IsAuthenticated())
	require.Contains(t, f.client.State().LastError, "failed to exchange code for tokens")
}

func TestBootstrap_UnauthenticatedProtectedRoute(t *testing.T) {
	f := setupTestFixture(t, nil)

	outcome, err := f.client.Bootstrap(context.Background(), mustURL(t, "http://localhost:8080/dashboard"))
	require.NoError(t, err)
	require.Equal(t, guard.DecisionLogin, outcome.Decision.Type)
	require.Equal(t, authBase+"/url/login/"+appID+"?redirect_uri="+url.QueryEscape("http://localhost:8080/auth/callback"), outcome.Redirect)
	require.Empty(t, f.poster.CallsTo(refreshURL))
}

func TestBootstrap_FlagRedirect(t *testing.T) {
	f := setupTestFixture(t, &session.TokenSet{AccessToken: tokentest.AccessToken(t, start.Add(time.Hour)), RefreshToken: "rt-1"})

	outcome, err := f.client.Bootstrap(context.Background(), mustURL(t, "http://localhost:8080/beta/page"))
	require.NoError(t, err)
	require.Equal(t, guard.Redirect("/upgrade"), outcome.Decision)
	require.Equal(t, "/upgrade", outcome.Redirect)
	require.Len(t, f.poster.CallsTo(bulkURL), 1)
	require.Empty(t, f.poster.CallsTo(refreshURL))
}

func TestBootstrap_RedirectToCurrentPathIsSuppressed(t *testing.T) {
	f := setupTestFixture(t, &session.TokenSet{AccessToken: tokentest.AccessToken(t, start.Add(time.Hour)), RefreshToken: "rt-1"})

	outcome, err := f.client.Bootstrap(context.Background(), mustURL(t, "http://localhost:8080/upgrade"))
	require.NoError(t, err)
	require.Equal(t, guard.Redirect("/upgrade"), outcome.Decision)
	require.Empty(t, outcome.Redirect)
}

func TestBootstrap_RefreshesExpiringToken(t *testing.T) {
	f := setupTestFixture(t, &session.TokenSet{AccessToken: tokentest.AccessToken(t, start.Add(time.Minute)), RefreshToken: "rt-old"})
	f.poster.Respond(refreshURL, f.tokenResponse(t, start.Add(time.Hour), "rt-new"))

	outcome, err := f.client.Bootstrap(context.Background(), mustURL(t, "http://localhost:8080/dashboard"))
	require.NoError(t, err)
	require.Equal(t, guard.Allow(), outcome.Decision)

	calls := f.poster.CallsTo(refreshURL)
	require.Len(t, calls, 1)
	require.JSONEq(t, `{"client_id":"app-1","grant_type":"refresh_token","refresh_token":"rt-old"}`, string(calls[0].Body))

	tokens, ok := f.client.Session().Tokens()
	require.True(t, ok)
	require.Equal(t, "rt-new", tokens.RefreshToken)
}

func TestBootstrap_FailedRefreshEndsSession(t *testing.T) {
	f := setupTestFixture(t, &session.TokenSet{AccessToken: tokentest.AccessToken(t, start.Add(time.Minute)), RefreshToken: "rt-old"})
	f.poster.Fail(refreshURL, errors.New("invalid_grant"))

	outcome, err := f.client.Bootstrap(context.Background(), mustURL(t, "http://localhost:8080/dashboard"))
	require.NoError(t, err)
	require.Equal(t, guard.DecisionLogin, outcome.Decision.Type)
	require.False(t, f.client.IsAuthenticated())

	_, pending := f.client.Tokens().Scheduler().Pending()
	require.False(t, pending)
}

func TestBootstrap_FlagServiceDownIsNotFatal(t *testing.T) {
	f := setupTestFixture(t, &session.TokenSet{AccessToken: tokentest.AccessToken(t, start.Add(time.Hour))})
	f.poster.Fail(bulkURL, errors.New("unavailable"))

	outcome, err := f.client.Bootstrap(context.Background(), mustURL(t, "http://localhost:8080/dashboard"))
	require.NoError(t, err)
	require.Equal(t, guard.Allow(), outcome.Decision)
}

func TestNavigate_UsesFlagCache(t *testing.T) {
	f := setupTestFixture(t, &session.TokenSet{AccessToken: tokentest.AccessToken(t, start.Add(time.Hour))})
	ctx := context.Background()

	_, err := f.client.Bootstrap(ctx, mustURL(t, "http://localhost:8080/"))
	require.NoError(t, err)
	require.Len(t, f.poster.CallsTo(bulkURL), 1)

	for i := 0; i < 3; i++ {
		outcome, err := f.client.Navigate(ctx, "/beta")
		require.NoError(t, err)
		require.Equal(t, "/upgrade", outcome.Redirect)
	}
	require.Len(t, f.poster.CallsTo(bulkURL), 1)
}

func TestLogout_StopsRefresh(t *testing.T) {
	f := setupTestFixture(t, nil)
	f.poster.Respond(codeURL, f.tokenResponse(t, start.Add(time.Hour), "rt-1"))
	ctx := context.Background()

	require.NoError(t, f.client.HandleCallback(ctx, "abc"))
	require.True(t, f.client.IsAuthenticated())
	require.NoError(t, f.client.WaitProfile(ctx))
	require.NotNil(t, f.client.Profile())

	require.NoError(t, f.client.Logout(ctx))
	require.False(t, f.client.IsAuthenticated())
	require.Nil(t, f.client.Profile())

	_, ok, err := f.storage.Get(ctx, config.DefaultStorageKey)
	require.NoError(t, err)
	require.False(t, ok)

	f.poster.Reset()
	f.clock.Advance(2 * time.Hour)
	require.Empty(t, f.poster.Calls())
}

// blockingKeySet never answers until its context ends or the test finishes.
type blockingKeySet struct {
	release chan struct{}
}

func (k *blockingKeySet) VerifySignature(ctx context.Context, _ string) ([]byte, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-k.release:
		return nil, errors.New("released")
	}
}

func TestHandleCallback_SlowKeyFetchDoesNotBlock(t *testing.T) {
	keys := &blockingKeySet{release: make(chan struct{})}
	t.Cleanup(func() { close(keys.release) })
	f := &testFixture{
		clock:   clockfake.New(start),
		poster:  transportfake.New(),
		storage: storage.NewMemory(),
		keys:    tokentest.NewKeyPair(t, "key-1"),
	}
	client, err := app.New(context.Background(), testConfig(),
		app.WithStorage(f.storage),
		app.WithPoster(f.poster),
		app.WithClock(f.clock),
		app.WithLogger(zerolog.Nop()),
		app.WithRoutes(testRoutes()),
		app.WithKeySetFactory(func(string) oidc.KeySet { return keys }),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	f.client = client
	f.poster.Respond(codeURL, f.tokenResponse(t, start.Add(time.Hour), "rt-1"))

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- client.HandleCallback(ctx, "abc") }()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("HandleCallback blocked on the key fetch")
	}
	require.True(t, client.IsAuthenticated())
	require.Nil(t, client.Profile())

	waitCtx, waitCancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer waitCancel()
	require.ErrorIs(t, client.WaitProfile(waitCtx), context.DeadlineExceeded)
}

func TestReconfigure(t *testing.T) {
	f := setupTestFixture(t, nil)
	f.poster.Respond(codeURL, f.tokenResponse(t, start.Add(time.Hour), "rt-1"))
	ctx := context.Background()
	require.NoError(t, f.client.HandleCallback(ctx, "abc"))
	require.NoError(t, f.client.WaitProfile(ctx))

	t.Run("invalid config is rejected", func(t *testing.T) {
		err := f.client.Reconfigure(ctx, config.Guard{})
		require.ErrorIs(t, err, guarderrors.ErrMissingAppID)
		require.Equal(t, appID, f.client.Config().AppID)
	})

	t.Run("new app id", func(t *testing.T) {
		cfg := testConfig()
		cfg.AppID = "app-2"
		require.NoError(t, f.client.Reconfigure(ctx, cfg))

		require.True(t, strings.HasPrefix(f.client.Login(""), authBase+"/url/login/app-2?"))
		require.True(t, f.client.IsAuthenticated())

		_, pending := f.client.Tokens().Scheduler().Pending()
		require.True(t, pending)

		// The ID token was issued for app-1.
		require.NoError(t, f.client.WaitProfile(ctx))
		require.Nil(t, f.client.Profile())
		require.NotEmpty(t, f.client.ProfileStore().Error())
	})
}

func TestSetRoutes_RejectsInvalidTable(t *testing.T) {
	f := setupTestFixture(t, nil)

	err := f.client.SetRoutes(routes.GuardConfig{DefaultAccess: "sometimes"})
	require.Error(t, err)
	require.True(t, f.client.Engine().IsPublicRoute("/login"))

	require.NoError(t, f.client.SetRoutes(routes.GuardConfig{DefaultAccess: routes.AccessPublic}))
	require.True(t, f.client.Engine().IsPublicRoute("/dashboard"))
}

func TestOpenStorage(t *testing.T) {
	ctx := context.Background()

	t.Run("memory by default", func(t *testing.T) {
		st, closer, err := app.OpenStorage(ctx, config.Guard{})
		require.NoError(t, err)
		require.IsType(t, &storage.Memory{}, st)
		require.NoError(t, closer())
	})

	t.Run("directory", func(t *testing.T) {
		st, closer, err := app.OpenStorage(ctx, config.Guard{StorageDir: t.TempDir()})
		require.NoError(t, err)
		require.IsType(t, &storage.File{}, st)
		require.NoError(t, closer())
	})

	t.Run("redis wins", func(t *testing.T) {
		mr := miniredis.RunT(t)
		st, closer, err := app.OpenStorage(ctx, config.Guard{RedisAddr: mr.Addr(), StorageDir: t.TempDir()})
		require.NoError(t, err)
		require.IsType(t, &storage.Redis{}, st)
		require.NoError(t, st.Set(ctx, "k", "v"))
		require.True(t, mr.Exists(storage.DefaultRedisPrefix+"k"))
		require.NoError(t, closer())
	})
}
