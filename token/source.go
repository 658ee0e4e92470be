package token

import (
	"context"

	guarderrors "github.com/jrsteele09/go-auth-guard/internal/errors"
	"golang.org/x/oauth2"
)

type source struct {
	ctx context.Context
	m   *Manager
}

// TokenSource adapts the session to golang.org/x/oauth2 so that
// oauth2.NewClient can attach the access token to outgoing requests. Each
// Token call refreshes first if the token is about to expire.
func (m *Manager) TokenSource(ctx context.Context) oauth2.TokenSource {
	return &source{ctx: ctx, m: m}
}

func (s *source) Token() (*oauth2.Token, error) {
	ok, err := s.m.MaybeRefreshNow(s.ctx)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, guarderrors.ErrNoSession
	}
	tokens, ok := s.m.store.Tokens()
	if !ok {
		return nil, guarderrors.ErrNoSession
	}
	tok := tokens.OAuth2Token()
	if exp, known := DecodeExpiry(tokens.AccessToken); known {
		tok.Expiry = exp
	}
	return tok, nil
}
