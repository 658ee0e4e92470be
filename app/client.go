// Package app assembles the session store, token manager, flag cache, route
// guard, and profile store into one client. Each Client owns its own session;
// nothing here is global.
package app

import (
	"context"
	"net/url"
	"sync"
	"time"

	"github.com/jrsteele09/go-auth-guard/auth"
	"github.com/jrsteele09/go-auth-guard/flags"
	"github.com/jrsteele09/go-auth-guard/guard"
	"github.com/jrsteele09/go-auth-guard/internal/clock"
	"github.com/jrsteele09/go-auth-guard/internal/config"
	"github.com/jrsteele09/go-auth-guard/profile"
	"github.com/jrsteele09/go-auth-guard/routes"
	"github.com/jrsteele09/go-auth-guard/session"
	"github.com/jrsteele09/go-auth-guard/storage"
	"github.com/jrsteele09/go-auth-guard/token"
	"github.com/jrsteele09/go-auth-guard/transport"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Outcome is the result of Bootstrap or Navigate. Redirect is empty when the
// current page may be shown.
type Outcome struct {
	Decision guard.Decision `json:"decision"`
	Redirect string         `json:"redirect,omitempty"`
}

type Client struct {
	storage      storage.Storage
	poster       transport.Poster
	clock        clock.Clock
	logger       zerolog.Logger
	keySets      profile.KeySetFactory
	routes       *routes.GuardConfig
	closeStorage func() error

	mu          sync.RWMutex
	cfg         config.Guard
	routeConfig routes.GuardConfig
	session     *session.Store
	auth        *auth.Client
	tokens      *token.Manager
	flags       *flags.Cache
	engine      *guard.Engine
	profile     *profile.Store
	unfollow    func()
}

type Option func(*Client)

func WithStorage(st storage.Storage) Option {
	return func(c *Client) {
		c.storage = st
	}
}

func WithPoster(p transport.Poster) Option {
	return func(c *Client) {
		c.poster = p
	}
}

func WithClock(clk clock.Clock) Option {
	return func(c *Client) {
		c.clock = clk
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithRoutes sets the rule table. Without it the table is read from
// cfg.RoutesFile, or every route is protected when no file is configured.
func WithRoutes(cfg routes.GuardConfig) Option {
	return func(c *Client) {
		c.routes = &cfg
	}
}

func WithKeySetFactory(f profile.KeySetFactory) Option {
	return func(c *Client) {
		c.keySets = f
	}
}

// New validates cfg, builds every component, and loads the persisted session.
func New(ctx context.Context, cfg config.Guard, opts ...Option) (*Client, error) {
	c := &Client{
		clock:  clock.Real{},
		logger: log.Logger,
	}
	for _, opt := range opts {
		opt(c)
	}

	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "[app.New]")
	}

	if c.storage == nil {
		st, closer, err := OpenStorage(ctx, cfg)
		if err != nil {
			return nil, errors.Wrap(err, "[app.New] failed to open storage")
		}
		c.storage = st
		c.closeStorage = closer
	}
	if c.poster == nil {
		c.poster = transport.NewHTTPClient()
	}

	routeConfig, err := c.initialRoutes(cfg)
	if err != nil {
		return nil, errors.Wrap(err, "[app.New]")
	}

	c.session = session.NewStore(c.storage,
		session.WithStorageKey(cfg.StorageKey),
		session.WithLogger(c.logger),
	)
	if err := c.build(ctx, cfg, routeConfig); err != nil {
		return nil, errors.Wrap(err, "[app.New]")
	}
	if err := c.session.Load(ctx); err != nil {
		return nil, errors.Wrap(err, "[app.New] failed to load session")
	}
	c.logger.Debug().Str("appId", cfg.AppID).Bool("authenticated", c.session.IsAuthenticated()).Msg("auth guard client ready")
	return c, nil
}

func (c *Client) initialRoutes(cfg config.Guard) (routes.GuardConfig, error) {
	if c.routes != nil {
		return *c.routes, nil
	}
	if cfg.RoutesFile != "" {
		return routes.LoadFile(cfg.RoutesFile)
	}
	return routes.DefaultGuardConfig(), nil
}

// build creates every component that depends on cfg. The session store is
// kept across rebuilds so the tokens survive a reconfiguration.
func (c *Client) build(ctx context.Context, cfg config.Guard, routeConfig routes.GuardConfig) error {
	authClient := auth.NewClient(cfg, c.poster, auth.WithLogger(c.logger))

	manager := token.NewManager(c.session, authClient,
		token.WithClock(c.clock),
		token.WithRefreshThreshold(cfg.RefreshThreshold),
		token.WithMinRefreshDelay(cfg.MinRefreshDelay),
		token.WithRetryPolicy(token.RetryPolicy{Attempts: cfg.RefreshRetryAttempts, Backoff: cfg.RefreshRetryBackoff}),
		token.WithLogger(c.logger),
	)

	cache := flags.NewCache(cfg, c.poster, c.session,
		flags.WithClock(c.clock),
		flags.WithTTL(cfg.FlagCacheTTL),
		flags.WithLogger(c.logger),
	)

	engine, err := guard.NewEngine(routeConfig, c.session, cache, authClient, guard.WithLogger(c.logger))
	if err != nil {
		return err
	}

	c.mu.Lock()
	previous := c.unfollow
	if c.profile == nil {
		verifierOpts := []profile.VerifierOption{profile.WithClock(c.clock)}
		if c.keySets != nil {
			verifierOpts = append(verifierOpts, profile.WithKeySetFactory(c.keySets))
		}
		c.profile = profile.NewStore(profile.NewVerifier(verifierOpts...), cfg, profile.WithLogger(c.logger))
	}
	c.cfg = cfg
	c.routeConfig = routeConfig
	c.auth = authClient
	c.tokens = manager
	c.flags = cache
	c.engine = engine
	profiles := c.profile
	c.mu.Unlock()

	if previous != nil {
		profiles.SetConfig(ctx, cfg)
		return nil
	}
	c.mu.Lock()
	c.unfollow = profiles.Follow(ctx, c.session)
	c.mu.Unlock()
	return nil
}

// Reconfigure replaces the configuration. The pending refresh timer is
// cancelled and a new one armed for the current tokens; cached flags are
// dropped because they belong to the old application.
func (c *Client) Reconfigure(ctx context.Context, cfg config.Guard) error {
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return errors.Wrap(err, "[app.Reconfigure]")
	}
	c.Tokens().StopAutoRefresh()

	c.mu.RLock()
	routeConfig := c.routeConfig
	c.mu.RUnlock()

	if err := c.build(ctx, cfg, routeConfig); err != nil {
		return errors.Wrap(err, "[app.Reconfigure]")
	}
	c.Tokens().StartAutoRefresh()
	c.logger.Info().Str("appId", cfg.AppID).Msg("auth guard reconfigured")
	return nil
}

// SetRoutes swaps the rule table. A table that fails to compile is rejected
// and the current one stays in force.
func (c *Client) SetRoutes(cfg routes.GuardConfig) error {
	if err := c.Engine().SetRoutes(cfg); err != nil {
		return errors.Wrap(err, "[app.SetRoutes]")
	}
	c.mu.Lock()
	c.routeConfig = cfg
	c.mu.Unlock()
	return nil
}

// WatchRoutes reloads the rule table whenever path changes on disk.
func (c *Client) WatchRoutes(ctx context.Context, path string) (*routes.Watcher, error) {
	return routes.Watch(ctx, path, func(cfg routes.GuardConfig) {
		if err := c.SetRoutes(cfg); err != nil {
			c.logger.Warn().Err(err).Str("path", path).Msg("rejected reloaded route rules")
		}
	}, c.logger)
}

// Bootstrap runs the first-load sequence for u: finish a pending login when u
// is the callback route, refresh an expiring token, load the flags, and decide
// whether u may be shown. Auto refresh is running when it returns.
func (c *Client) Bootstrap(ctx context.Context, u *url.URL) (Outcome, error) {
	cfg := c.Config()

	if callbackPath := cfg.CallbackPath(); callbackPath != "" && u.Path == callbackPath {
		if code := u.Query().Get("code"); code != "" {
			if err := c.HandleCallback(ctx, code); err != nil {
				c.logger.Err(err).Msg("failed to handle auth callback")
			} else {
				c.Tokens().StartAutoRefresh()
				return Outcome{Decision: guard.Redirect(cfg.DefaultRedirectRoute), Redirect: cfg.DefaultRedirectRoute}, nil
			}
		}
	}

	if _, err := c.Tokens().MaybeRefreshNow(ctx); err != nil {
		c.logger.Warn().Err(err).Msg("pre-navigation refresh failed")
	}
	if err := c.Flags().Load(ctx); err != nil {
		c.logger.Warn().Err(err).Msg("failed to load feature flags")
	}

	outcome, err := c.decide(ctx, u.Path)
	if err != nil {
		return Outcome{}, err
	}
	c.Tokens().StartAutoRefresh()
	return outcome, nil
}

// Navigate is the per-navigation check. Unlike Bootstrap it trusts the flag
// cache TTL instead of reloading the flags.
func (c *Client) Navigate(ctx context.Context, path string) (Outcome, error) {
	if _, err := c.Tokens().MaybeRefreshNow(ctx); err != nil {
		c.logger.Warn().Err(err).Msg("pre-navigation refresh failed")
	}
	return c.decide(ctx, path)
}

func (c *Client) decide(ctx context.Context, path string) (Outcome, error) {
	decision, err := c.Engine().Decide(ctx, path)
	if err != nil {
		return Outcome{}, errors.Wrap(err, "[app.decide]")
	}
	outcome := Outcome{Decision: decision}
	if decision.Applies(path) {
		outcome.Redirect = decision.Target()
	}
	return outcome, nil
}

// HandleCallback exchanges an authorization code and stores the tokens. A
// failure is recorded in the session's LastError as well as returned.
func (c *Client) HandleCallback(ctx context.Context, code string) error {
	tokens, err := c.Auth().ExchangeCode(ctx, code)
	if err != nil {
		c.session.SetError(err.Error())
		return err
	}
	if err := c.session.SetTokens(ctx, tokens); err != nil {
		c.session.SetError(err.Error())
		return errors.Wrap(err, "[app.HandleCallback] failed to store tokens")
	}
	c.logger.Info().Bool("refreshToken", tokens.RefreshToken != "").Bool("idToken", tokens.IDToken != "").Msg("login completed")
	return nil
}

// Login returns the provider URL to send the user to.
func (c *Client) Login(redirectURI string) string {
	return c.Auth().LoginURL(redirectURI)
}

// Logout ends the session. The refresh timer is cancelled and no further
// provider calls are made for the old tokens.
func (c *Client) Logout(ctx context.Context) error {
	if err := c.session.ClearTokens(ctx); err != nil {
		return errors.Wrap(err, "[app.Logout]")
	}
	c.ProfileStore().Clear()
	c.logger.Info().Msg("logged out")
	return nil
}

// Refresh forces a refresh-token grant.
func (c *Client) Refresh(ctx context.Context) error {
	return c.Tokens().RefreshNow(ctx)
}

func (c *Client) IsAuthenticated() bool {
	return c.session.IsAuthenticated()
}

func (c *Client) State() session.State {
	return c.session.State()
}

func (c *Client) Subscribe(listener session.Listener) func() {
	return c.session.Subscribe(listener)
}

func (c *Client) IsFeatureEnabled(ctx context.Context, flag string, forceLive bool) bool {
	return c.Flags().IsEnabled(ctx, flag, forceLive)
}

func (c *Client) Profile() *profile.Profile {
	return c.ProfileStore().Profile()
}

// WaitProfile blocks until the profile reflects the current ID token.
func (c *Client) WaitProfile(ctx context.Context) error {
	return c.ProfileStore().Wait(ctx)
}

func (c *Client) Config() config.Guard {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cfg
}

func (c *Client) Session() *session.Store {
	return c.session
}

func (c *Client) Auth() *auth.Client {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.auth
}

func (c *Client) Tokens() *token.Manager {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.tokens
}

func (c *Client) Flags() *flags.Cache {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.flags
}

func (c *Client) Engine() *guard.Engine {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.engine
}

func (c *Client) ProfileStore() *profile.Store {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.profile
}

// Close stops the refresh timer and the profile subscription. Storage opened
// by New is closed too; storage passed in with WithStorage is left alone.
func (c *Client) Close() error {
	c.Tokens().StopAutoRefresh()
	c.mu.Lock()
	unfollow := c.unfollow
	c.unfollow = nil
	c.mu.Unlock()
	if unfollow != nil {
		unfollow()
	}
	if c.closeStorage != nil {
		return c.closeStorage()
	}
	return nil
}

// OpenStorage picks the storage backend from cfg: Redis when RedisAddr is
// set, a directory of files when StorageDir is set, memory otherwise. The
// returned function releases the backend.
func OpenStorage(ctx context.Context, cfg config.Guard) (storage.Storage, func() error, error) {
	switch {
	case cfg.RedisAddr != "":
		dialCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		st, err := storage.DialRedis(dialCtx, cfg.RedisAddr)
		if err != nil {
			return nil, nil, err
		}
		return st, st.Close, nil
	case cfg.StorageDir != "":
		st, err := storage.NewFile(cfg.StorageDir)
		if err != nil {
			return nil, nil, err
		}
		return st, func() error { return nil }, nil
	default:
		return storage.NewMemory(), func() error { return nil }, nil
	}
}
