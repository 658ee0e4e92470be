package auth

import (
	"github.com/jrsteele09/go-auth-guard/internal/utils"
	"github.com/jrsteele09/go-auth-guard/session"
)

// TokenResponse is the identity provider's answer to both the code exchange
// and the refresh grant.
type TokenResponse struct {
	// AccessToken is the short-lived bearer credential. Expiry is read from its
	// exp claim, not from ExpiresIn.
	AccessToken *string `json:"access_token,omitempty"`

	// RefreshToken is exchanged at /token for a new set. It rotates on each use.
	RefreshToken *string `json:"refresh_token,omitempty"`

	// IdToken carries the identity claims used to build the profile.
	IdToken *string `json:"id_token,omitempty"`

	TokenType string `json:"token_type,omitempty"`
	ExpiresIn int    `json:"expires_in,omitempty"`
}

// TokenSet converts the response, treating missing fields as empty.
func (r TokenResponse) TokenSet() session.TokenSet {
	return session.TokenSet{
		AccessToken:  utils.Value(r.AccessToken),
		RefreshToken: utils.Value(r.RefreshToken),
		IDToken:      utils.Value(r.IdToken),
	}
}

type codeExchangeRequest struct {
	Code        string `json:"code"`
	RedirectURI string `json:"redirect_uri,omitempty"`
}

type refreshRequest struct {
	ClientID     string `json:"client_id"`
	GrantType    string `json:"grant_type"`
	RefreshToken string `json:"refresh_token"`
}
