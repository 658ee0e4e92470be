// Package session holds the current token set, persists it, and notifies
// subscribers when it changes. Every token mutation goes through SetTokens or
// ClearTokens so that memory, storage, and the refresh timer stay in step.
package session

import (
	"golang.org/x/oauth2"
)

// TokenSet is replaced as a whole; there are no partial updates.
type TokenSet struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken,omitempty"`
	IDToken      string `json:"idToken,omitempty"`
}

// OAuth2Token converts the set for use with golang.org/x/oauth2 clients. The
// ID token is carried as the "id_token" extra. Expiry is left zero; callers
// that know it set it themselves.
func (t TokenSet) OAuth2Token() *oauth2.Token {
	tok := &oauth2.Token{
		AccessToken:  t.AccessToken,
		RefreshToken: t.RefreshToken,
		TokenType:    "Bearer",
	}
	if t.IDToken != "" {
		tok = tok.WithExtra(map[string]any{"id_token": t.IDToken})
	}
	return tok
}

// State is a point-in-time view of the session.
type State struct {
	Tokens          *TokenSet `json:"tokens"`
	IsAuthenticated bool      `json:"isAuthenticated"`
	LastError       string    `json:"lastError,omitempty"`
}

func newState(tokens *TokenSet, lastError string) State {
	var copied *TokenSet
	if tokens != nil {
		t := *tokens
		copied = &t
	}
	return State{
		Tokens:          copied,
		IsAuthenticated: copied != nil && copied.AccessToken != "",
		LastError:       lastError,
	}
}

// Listener receives the state after each change.
type Listener func(State)

// RefreshScheduler arms and cancels the proactive refresh timer.
type RefreshScheduler interface {
	Schedule(tokens TokenSet)
	Cancel()
}
