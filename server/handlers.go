package server

import (
	"encoding/json"
	"fmt"
	"html"
	"net/http"
	"time"

	"github.com/jrsteele09/go-auth-guard/flags"
	"github.com/jrsteele09/go-auth-guard/internal/utils"
	"github.com/jrsteele09/go-auth-guard/profile"
)

const contentTypeJSON = "application/json; charset=utf-8"

// IndexHandler is the default content: a page naming the path that passed.
func (s *Server) IndexHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		name := "guest"
		if p := s.client.Profile(); p != nil && p.FullName != "" {
			name = p.FullName
		}
		_, _ = fmt.Fprintf(w, "<!doctype html><title>%s</title><p>Hello %s, you are viewing %s.</p><p><a href=%q>Log out</a></p>",
			html.EscapeString(r.URL.Path), html.EscapeString(name), html.EscapeString(r.URL.Path), RouteAuthLogout)
	}
}

// LoginHandler sends the browser to the provider. A redirect_uri query
// parameter overrides the configured callback URL.
func (s *Server) LoginHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		redirectURI := r.URL.Query().Get("redirect_uri")
		if redirectURI == "" && s.client.Config().CallbackURL == "" {
			redirectURI = fmt.Sprintf("%s://%s%s", getScheme(r), r.Host, RouteCallback)
		}
		http.Redirect(w, r, s.client.Login(redirectURI), http.StatusSeeOther)
	}
}

func (s *Server) LogoutHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := s.client.Logout(r.Context()); err != nil {
			// The in-memory session is gone either way.
			s.logger.Err(err).Msg("failed to remove stored session")
		}
		http.Redirect(w, r, s.client.Config().LoginRoute, http.StatusSeeOther)
	}
}

// StatusResponse is the body of RouteStatus.
type StatusResponse struct {
	AppID         string           `json:"appId"`
	Authenticated bool             `json:"authenticated"`
	LastError     string           `json:"lastError,omitempty"`
	RefreshAt     *time.Time       `json:"refreshAt,omitempty"`
	Profile       *profile.Profile `json:"profile,omitempty"`
	ProfileError  string           `json:"profileError,omitempty"`
	Flags         flags.Snapshot   `json:"flags"`
}

func (s *Server) StatusHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		state := s.client.State()
		resp := StatusResponse{
			AppID:         s.client.Config().AppID,
			Authenticated: state.IsAuthenticated,
			LastError:     state.LastError,
			Profile:       s.client.Profile(),
			ProfileError:  s.client.ProfileStore().Error(),
			Flags:         s.client.Flags().Snapshot(),
		}
		if at, ok := s.client.Tokens().Scheduler().Pending(); ok {
			resp.RefreshAt = utils.Ptr(at)
		}
		writeJSON(w, resp, http.StatusOK)
	}
}

func writeJSON(w http.ResponseWriter, v any, statusCode int) {
	w.Header().Set("Content-Type", contentTypeJSON)
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(v)
}

func writeJSONError(w http.ResponseWriter, errorCode, description string, statusCode int) {
	writeJSON(w, map[string]string{
		"error":             errorCode,
		"error_description": description,
	}, statusCode)
}
