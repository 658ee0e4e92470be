package config

import (
	"fmt"
	"net/url"
	"time"

	guarderrors "github.com/jrsteele09/go-auth-guard/internal/errors"
)

// Guard holds everything the session guard needs from the host application.
// It is a plain value: components receive a copy at construction time and a
// new value through Reconfigure, never a global.
type Guard struct {
	AppID                string `json:"appId" yaml:"appId"`
	AuthBaseURL          string `json:"authBaseUrl,omitempty" yaml:"authBaseUrl,omitempty"`
	BackendlessBaseURL   string `json:"backendlessBaseUrl,omitempty" yaml:"backendlessBaseUrl,omitempty"`
	CallbackURL          string `json:"callbackUrl,omitempty" yaml:"callbackUrl,omitempty"`
	TeamManagementURL    string `json:"teamManagementUrl,omitempty" yaml:"teamManagementUrl,omitempty"`
	DefaultRedirectRoute string `json:"defaultRedirectRoute,omitempty" yaml:"defaultRedirectRoute,omitempty"`
	LoginRoute           string `json:"loginRoute,omitempty" yaml:"loginRoute,omitempty"`
	Debug                bool   `json:"debug,omitempty" yaml:"debug,omitempty"`

	RefreshThreshold     time.Duration `json:"refreshThreshold,omitempty" yaml:"refreshThreshold,omitempty"`
	MinRefreshDelay      time.Duration `json:"minRefreshDelay,omitempty" yaml:"minRefreshDelay,omitempty"`
	FlagCacheTTL         time.Duration `json:"flagCacheTtl,omitempty" yaml:"flagCacheTtl,omitempty"`
	RefreshRetryAttempts int           `json:"refreshRetryAttempts,omitempty" yaml:"refreshRetryAttempts,omitempty"`
	RefreshRetryBackoff  time.Duration `json:"refreshRetryBackoff,omitempty" yaml:"refreshRetryBackoff,omitempty"`

	StorageKey string `json:"storageKey,omitempty" yaml:"storageKey,omitempty"`
	RedisAddr  string `json:"redisAddr,omitempty" yaml:"redisAddr,omitempty"`
	StorageDir string `json:"storageDir,omitempty" yaml:"storageDir,omitempty"`
	RoutesFile string `json:"routesFile,omitempty" yaml:"routesFile,omitempty"`
}

// WithDefaults returns a copy of g with every unset field replaced by its
// default. AppID has no default.
func (g Guard) WithDefaults() Guard {
	if g.AuthBaseURL == "" {
		g.AuthBaseURL = DefaultAuthBaseURL
	}
	if g.BackendlessBaseURL == "" {
		g.BackendlessBaseURL = DefaultBackendlessBaseURL
	}
	if g.TeamManagementURL == "" {
		g.TeamManagementURL = DefaultTeamManagementURL
	}
	if g.DefaultRedirectRoute == "" {
		g.DefaultRedirectRoute = "/"
	}
	if g.LoginRoute == "" {
		g.LoginRoute = "/login"
	}
	if g.RefreshThreshold <= 0 {
		g.RefreshThreshold = DefaultRefreshThreshold
	}
	if g.MinRefreshDelay <= 0 {
		g.MinRefreshDelay = DefaultMinRefreshDelay
	}
	if g.FlagCacheTTL <= 0 {
		g.FlagCacheTTL = DefaultFlagCacheTTL
	}
	if g.RefreshRetryAttempts <= 0 {
		g.RefreshRetryAttempts = DefaultRefreshRetryAttempts
	}
	if g.StorageKey == "" {
		g.StorageKey = DefaultStorageKey
	}
	return g
}

// Validate reports configuration errors. A missing AppID is always fatal.
func (g Guard) Validate() error {
	if g.AppID == "" {
		return guarderrors.ErrMissingAppID
	}
	for name, raw := range map[string]string{
		"authBaseUrl":        g.AuthBaseURL,
		"backendlessBaseUrl": g.BackendlessBaseURL,
	} {
		if raw == "" {
			continue
		}
		u, err := url.Parse(raw)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("%s %q: %w", name, raw, guarderrors.ErrInvalidBaseURL)
		}
	}
	if g.CallbackURL != "" {
		if _, err := url.Parse(g.CallbackURL); err != nil {
			return fmt.Errorf("callbackUrl %q: %w", g.CallbackURL, guarderrors.ErrInvalidBaseURL)
		}
	}
	return nil
}

// CallbackPath returns the path component of CallbackURL, or "" when no
// callback URL is configured or it cannot be parsed.
func (g Guard) CallbackPath() string {
	if g.CallbackURL == "" {
		return ""
	}
	u, err := url.Parse(g.CallbackURL)
	if err != nil {
		return ""
	}
	return u.Path
}

// JWKSURL is where the provider publishes the ID token signing keys.
func (g Guard) JWKSURL() string {
	return g.AuthBaseURL + "/.well-known/jwks.json"
}
