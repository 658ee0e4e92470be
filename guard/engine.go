// Package guard decides, for one path at a time, whether navigation is
// allowed, needs a login, or must be redirected because a feature flag
// requirement failed. The engine keeps no state between calls.
package guard

import (
	"context"
	"sync/atomic"

	"github.com/jrsteele09/go-auth-guard/flags"
	"github.com/jrsteele09/go-auth-guard/routes"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type Authenticator interface {
	IsAuthenticated() bool
}

type FlagEvaluator interface {
	Evaluate(ctx context.Context, req *flags.Requirement) bool
}

type LoginURLBuilder interface {
	LoginURL(redirectURI string) string
}

type Engine struct {
	matcher atomic.Pointer[routes.Matcher]
	session Authenticator
	flags   FlagEvaluator
	login   LoginURLBuilder
	logger  zerolog.Logger
}

type Option func(*Engine)

func WithLogger(logger zerolog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// NewEngine compiles cfg. An invalid rule table is a configuration error.
func NewEngine(cfg routes.GuardConfig, session Authenticator, evaluator FlagEvaluator, login LoginURLBuilder, opts ...Option) (*Engine, error) {
	e := &Engine{
		session: session,
		flags:   evaluator,
		login:   login,
		logger:  log.Logger,
	}
	for _, opt := range opts {
		opt(e)
	}
	if err := e.SetRoutes(cfg); err != nil {
		return nil, err
	}
	return e, nil
}

// SetRoutes swaps the rule table. Checks already running keep the old one.
func (e *Engine) SetRoutes(cfg routes.GuardConfig) error {
	m, err := routes.Compile(cfg)
	if err != nil {
		return err
	}
	e.matcher.Store(m)
	return nil
}

func (e *Engine) IsPublicRoute(path string) bool {
	m := e.matcher.Load()
	if rule, ok := m.Find(path); ok {
		e.logger.Debug().Str("path", path).Str("rule", rule.Match.String()).Bool("public", rule.Public).Msg("route classified by rule")
		return rule.Public
	}
	public := m.DefaultAccess() == routes.AccessPublic
	e.logger.Debug().Str("path", path).Str("defaultAccess", string(m.DefaultAccess())).Msg("route classified by default access")
	return public
}

func (e *Engine) IsProtectedRoute(path string) bool {
	return !e.IsPublicRoute(path)
}

func (e *Engine) ShouldRedirectToLogin(path string) bool {
	return e.IsProtectedRoute(path) && !e.session.IsAuthenticated()
}

// CheckRouteRestrictions evaluates the flag requirement of the rule matching
// path and returns where to send the user if it fails.
func (e *Engine) CheckRouteRestrictions(ctx context.Context, path string) (string, bool) {
	rule, ok := e.matcher.Load().Find(path)
	if !ok || rule.FeatureFlag == nil {
		return "", false
	}
	passed := e.flags.Evaluate(ctx, rule.FeatureFlag)
	e.logger.Debug().Str("path", path).Stringer("requirement", rule.FeatureFlag).Bool("passed", passed).Msg("feature flag requirement evaluated")
	if passed {
		return "", false
	}
	return rule.RedirectTarget(), true
}

func (e *Engine) LoginRedirect() string {
	return e.login.LoginURL("")
}

// Decide classifies a navigation to path. The only error is ctx's.
func (e *Engine) Decide(ctx context.Context, path string) (Decision, error) {
	if err := ctx.Err(); err != nil {
		return Decision{}, err
	}
	if e.ShouldRedirectToLogin(path) {
		return Login(e.LoginRedirect()), nil
	}
	if to, redirect := e.CheckRouteRestrictions(ctx, path); redirect {
		return Redirect(to), nil
	}
	return Allow(), nil
}
