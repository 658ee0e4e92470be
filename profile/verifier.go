package profile

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/golang-jwt/jwt/v5"
	"github.com/jrsteele09/go-auth-guard/internal/clock"
	"github.com/jrsteele09/go-auth-guard/internal/config"
	guarderrors "github.com/jrsteele09/go-auth-guard/internal/errors"
)

// KeySetFactory builds the key set for a JWKS URL.
type KeySetFactory func(jwksURL string) oidc.KeySet

// RemoteKeySet fetches and caches keys from the provider. Each key fetch is
// bounded by config.DefaultVerifyTimeout.
func RemoteKeySet(jwksURL string) oidc.KeySet {
	client := &http.Client{Timeout: config.DefaultVerifyTimeout}
	return oidc.NewRemoteKeySet(oidc.ClientContext(context.Background(), client), jwksURL)
}

// Verifier checks ID tokens against the provider's published keys. The key
// set is built on first use and rebuilt only when the issuer or audience
// changes.
type Verifier struct {
	newKeySet KeySetFactory
	clock     clock.Clock
	timeout   time.Duration

	mu       sync.Mutex
	issuer   string
	audience string
	verifier *oidc.IDTokenVerifier
}

type VerifierOption func(*Verifier)

func WithKeySetFactory(f KeySetFactory) VerifierOption {
	return func(v *Verifier) {
		v.newKeySet = f
	}
}

func WithClock(c clock.Clock) VerifierOption {
	return func(v *Verifier) {
		v.clock = c
	}
}

// WithVerifyTimeout bounds each Verify call. Zero or less disables the bound.
func WithVerifyTimeout(d time.Duration) VerifierOption {
	return func(v *Verifier) {
		v.timeout = d
	}
}

func NewVerifier(opts ...VerifierOption) *Verifier {
	v := &Verifier{
		newKeySet: RemoteKeySet,
		clock:     clock.Real{},
		timeout:   config.DefaultVerifyTimeout,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

func (v *Verifier) ensure(cfg config.Guard) *oidc.IDTokenVerifier {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.verifier != nil && v.issuer == cfg.AuthBaseURL && v.audience == cfg.AppID {
		return v.verifier
	}
	keySet := v.newKeySet(cfg.JWKSURL())
	v.verifier = oidc.NewVerifier(cfg.AuthBaseURL, keySet, &oidc.Config{
		ClientID: cfg.AppID,
		Now:      v.clock.Now,
	})
	v.issuer = cfg.AuthBaseURL
	v.audience = cfg.AppID
	return v.verifier
}

// Verify checks rawIDToken's signature, issuer (the auth base URL), audience
// (the app ID) and expiry, and returns the profile it describes. Errors wrap
// ErrInvalidToken, ErrTokenExpired or ErrTokenVerification.
func (v *Verifier) Verify(ctx context.Context, cfg config.Guard, rawIDToken string) (*Profile, error) {
	if _, _, err := jwt.NewParser().ParseUnverified(rawIDToken, jwt.MapClaims{}); err != nil {
		return nil, fmt.Errorf("%w: %w", guarderrors.ErrInvalidToken, err)
	}

	if v.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, v.timeout)
		defer cancel()
	}
	idToken, err := v.ensure(cfg).Verify(ctx, rawIDToken)
	if err != nil {
		var expired *oidc.TokenExpiredError
		if errors.As(err, &expired) {
			return nil, fmt.Errorf("%w: %w", guarderrors.ErrTokenExpired, err)
		}
		return nil, fmt.Errorf("%w: %w", guarderrors.ErrTokenVerification, err)
	}

	var claims idTokenClaims
	if err := idToken.Claims(&claims); err != nil {
		return nil, fmt.Errorf("%w: %w", guarderrors.ErrInvalidToken, err)
	}
	return claims.profile(), nil
}

// Message is the user-facing text for a Verify error.
func Message(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, guarderrors.ErrTokenExpired):
		return "Token expired"
	case errors.Is(err, guarderrors.ErrInvalidToken):
		return "Invalid token"
	default:
		return "Token verification failed"
	}
}
