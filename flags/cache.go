// Package flags caches feature flag evaluations and evaluates the flag
// requirements attached to route rules.
//
// The cache keeps one freshness stamp for the whole map. A bulk load stamps
// it; a forced live lookup of a single flag updates that flag only and leaves
// the stamp alone, so the map can look fresh while holding one value newer
// than the rest.
package flags

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/jrsteele09/go-auth-guard/internal/clock"
	"github.com/jrsteele09/go-auth-guard/internal/config"
	guarderrors "github.com/jrsteele09/go-auth-guard/internal/errors"
	"github.com/jrsteele09/go-auth-guard/session"
	"github.com/jrsteele09/go-auth-guard/transport"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

// TokenSource supplies the access token sent with evaluation requests.
type TokenSource interface {
	Tokens() (session.TokenSet, bool)
}

type evaluateRequest struct {
	AccessToken string `json:"accessToken,omitempty"`
}

type bulkResponse struct {
	Flags []struct {
		Flag       string `json:"flag"`
		Evaluation struct {
			Enabled bool `json:"enabled"`
		} `json:"evaluation"`
	} `json:"flags"`
}

type singleResponse struct {
	Enabled bool `json:"enabled"`
}

// Snapshot is a copy of the cache contents.
type Snapshot struct {
	Flags         map[string]bool `json:"flags"`
	LastFetchTime time.Time       `json:"lastFetchTime"`
}

type Cache struct {
	baseURL string
	appID   string
	poster  transport.Poster
	tokens  TokenSource
	clock   clock.Clock
	ttl     time.Duration
	logger  zerolog.Logger
	stale   singleflight.Group

	mu        sync.RWMutex
	values    map[string]bool
	lastFetch time.Time
}

type Option func(*Cache)

func WithClock(c clock.Clock) Option {
	return func(fc *Cache) {
		fc.clock = c
	}
}

func WithTTL(ttl time.Duration) Option {
	return func(fc *Cache) {
		fc.ttl = ttl
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(fc *Cache) {
		fc.logger = logger
	}
}

// NewCache creates an empty cache. tokens may be nil, in which case requests
// are sent anonymously.
func NewCache(cfg config.Guard, poster transport.Poster, tokens TokenSource, opts ...Option) *Cache {
	c := &Cache{
		baseURL: cfg.BackendlessBaseURL,
		appID:   cfg.AppID,
		poster:  poster,
		tokens:  tokens,
		clock:   clock.Real{},
		ttl:     config.DefaultFlagCacheTTL,
		logger:  log.Logger,
		values:  make(map[string]bool),
	}
	if cfg.FlagCacheTTL > 0 {
		c.ttl = cfg.FlagCacheTTL
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Cache) request() evaluateRequest {
	if c.tokens == nil {
		return evaluateRequest{}
	}
	if t, ok := c.tokens.Tokens(); ok {
		return evaluateRequest{AccessToken: t.AccessToken}
	}
	return evaluateRequest{}
}

// Load replaces the whole cache with a bulk evaluation and stamps the fetch
// time. On failure the cache is left untouched.
func (c *Cache) Load(ctx context.Context) error {
	if c.appID == "" {
		return guarderrors.ErrMissingAppID
	}
	endpoint := fmt.Sprintf("%s/flags/bulkEvaluate/%s", c.baseURL, url.PathEscape(c.appID))

	raw, err := c.poster.Post(ctx, endpoint, c.request())
	if err != nil {
		return fmt.Errorf("%w: %w", guarderrors.ErrFlagService, err)
	}
	var resp bulkResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return fmt.Errorf("%w: decode: %w", guarderrors.ErrFlagService, err)
	}

	values := make(map[string]bool, len(resp.Flags))
	for _, f := range resp.Flags {
		values[f.Flag] = f.Evaluation.Enabled
	}

	c.mu.Lock()
	c.values = values
	c.lastFetch = c.clock.Now()
	c.mu.Unlock()

	c.logger.Debug().Int("flags", len(values)).Msg("feature flags loaded")
	return nil
}

// IsEnabled answers from the cache while it is fresh and reloads it first
// when it is stale. forceLive always asks the flag service for this flag and
// falls back to the cached value if that fails. Unknown flags are false.
func (c *Cache) IsEnabled(ctx context.Context, flag string, forceLive bool) bool {
	if forceLive {
		return c.evaluateLive(ctx, flag)
	}
	if !c.fresh() {
		c.refreshStale(ctx)
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.values[flag]
}

func (c *Cache) fresh() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return !c.lastFetch.IsZero() && c.clock.Now().Sub(c.lastFetch) < c.ttl
}

// refreshStale collapses concurrent stale lookups into one bulk load.
func (c *Cache) refreshStale(ctx context.Context) {
	_, _, _ = c.stale.Do("bulk", func() (any, error) {
		if c.fresh() {
			return nil, nil
		}
		if err := c.Load(ctx); err != nil {
			c.logger.Warn().Err(err).Msg("feature flag refresh failed, using cached values")
		}
		return nil, nil
	})
}

func (c *Cache) evaluateLive(ctx context.Context, flag string) bool {
	endpoint := fmt.Sprintf("%s/flags/evaluate/%s/%s", c.baseURL, url.PathEscape(c.appID), url.PathEscape(flag))

	raw, err := c.poster.Post(ctx, endpoint, c.request())
	if err == nil {
		var resp singleResponse
		if err = json.Unmarshal(raw, &resp); err == nil {
			c.mu.Lock()
			c.values[flag] = resp.Enabled
			c.mu.Unlock()
			return resp.Enabled
		}
	}

	c.logger.Warn().Err(err).Str("flag", flag).Msg("live flag evaluation failed, using cached value")
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.values[flag]
}

// Evaluate reports whether req is satisfied. A nil or empty requirement is
// satisfied. Flags of an any/all requirement are looked up concurrently.
func (c *Cache) Evaluate(ctx context.Context, req *Requirement) bool {
	if req == nil {
		return true
	}
	switch {
	case req.Flag != "":
		return c.IsEnabled(ctx, req.Flag, false)
	case req.Any != nil:
		results := c.evaluateAll(ctx, req.Any)
		for _, ok := range results {
			if ok {
				return true
			}
		}
		return false
	case req.All != nil:
		results := c.evaluateAll(ctx, req.All)
		for _, ok := range results {
			if !ok {
				return false
			}
		}
		return true
	default:
		return true
	}
}

func (c *Cache) evaluateAll(ctx context.Context, names []string) []bool {
	results := make([]bool, len(names))
	var g errgroup.Group
	for i, name := range names {
		g.Go(func() error {
			results[i] = c.IsEnabled(ctx, name, false)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func (c *Cache) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	values := make(map[string]bool, len(c.values))
	for k, v := range c.values {
		values[k] = v
	}
	return Snapshot{Flags: values, LastFetchTime: c.lastFetch}
}
