// Package auth talks to the identity provider: it builds the login URL,
// exchanges authorization codes, and performs the refresh-token grant.
package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/jrsteele09/go-auth-guard/internal/config"
	guarderrors "github.com/jrsteele09/go-auth-guard/internal/errors"
	"github.com/jrsteele09/go-auth-guard/session"
	"github.com/jrsteele09/go-auth-guard/transport"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const refreshGrantType = "refresh_token"

// Client is bound to one provider base URL and application ID.
type Client struct {
	authBaseURL string
	appID       string
	callbackURL string
	poster      transport.Poster
	logger      zerolog.Logger
}

type Option func(*Client)

func WithLogger(logger zerolog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

func NewClient(cfg config.Guard, poster transport.Poster, opts ...Option) *Client {
	c := &Client{
		authBaseURL: cfg.AuthBaseURL,
		appID:       cfg.AppID,
		callbackURL: cfg.CallbackURL,
		poster:      poster,
		logger:      log.Logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// LoginURL is where the browser is sent to sign in. redirectURI overrides the
// configured callback URL; with neither, no redirect_uri is appended.
func (c *Client) LoginURL(redirectURI string) string {
	base := fmt.Sprintf("%s/url/login/%s", c.authBaseURL, url.PathEscape(c.appID))
	if redirectURI == "" {
		redirectURI = c.callbackURL
	}
	if redirectURI == "" {
		return base
	}
	return base + "?redirect_uri=" + url.QueryEscape(redirectURI)
}

// ExchangeCode trades an authorization code for a token set. The error carries
// the provider's message when it sent one.
func (c *Client) ExchangeCode(ctx context.Context, code string) (session.TokenSet, error) {
	endpoint := fmt.Sprintf("%s/token/code/%s", c.authBaseURL, url.PathEscape(c.appID))
	body := codeExchangeRequest{Code: code, RedirectURI: c.callbackURL}

	raw, err := c.poster.Post(ctx, endpoint, body)
	if err != nil {
		c.logger.Err(err).Str("url", endpoint).Msg("code exchange failed")
		return session.TokenSet{}, fmt.Errorf("%w: %s", guarderrors.ErrCodeExchange, exchangeErrorDetail(err))
	}

	tokens, err := decodeTokens(raw)
	if err != nil {
		return session.TokenSet{}, fmt.Errorf("%w: %w", guarderrors.ErrCodeExchange, err)
	}
	return tokens, nil
}

// Refresh performs the refresh-token grant. Any transport or decoding failure
// is returned; the caller decides what happens to the session.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (session.TokenSet, error) {
	if refreshToken == "" {
		return session.TokenSet{}, guarderrors.ErrNoRefreshToken
	}
	endpoint := c.authBaseURL + "/token"
	body := refreshRequest{
		ClientID:     c.appID,
		GrantType:    refreshGrantType,
		RefreshToken: refreshToken,
	}

	raw, err := c.poster.Post(ctx, endpoint, body)
	if err != nil {
		c.logger.Err(err).Str("url", endpoint).Msg("failed to refresh token")
		return session.TokenSet{}, errors.Wrap(err, "[auth.Refresh]")
	}
	tokens, err := decodeTokens(raw)
	if err != nil {
		return session.TokenSet{}, errors.Wrap(err, "[auth.Refresh]")
	}
	return tokens, nil
}

func decodeTokens(raw json.RawMessage) (session.TokenSet, error) {
	var resp TokenResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return session.TokenSet{}, errors.Wrap(err, "decode token response")
	}
	tokens := resp.TokenSet()
	if tokens.AccessToken == "" {
		return session.TokenSet{}, guarderrors.ErrIncompleteTokenSet
	}
	return tokens, nil
}

// exchangeErrorDetail prefers the provider's message, then a bare JSON
// string body, then the HTTP status text.
func exchangeErrorDetail(err error) string {
	var httpErr *transport.HTTPError
	if !errors.As(err, &httpErr) {
		return err.Error()
	}
	if msg := httpErr.Message(); msg != "" {
		return msg
	}
	var s string
	if json.Unmarshal(httpErr.Body, &s) == nil && s != "" {
		return s
	}
	if text := http.StatusText(httpErr.StatusCode); text != "" {
		return text
	}
	return "Unknown error"
}
