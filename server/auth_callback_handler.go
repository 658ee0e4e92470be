package server

import (
	"fmt"
	"net/http"
	"net/url"
)

// CallbackHandler completes the login started at RouteAuthLogin. On success the
// browser goes to the default route; on failure back to the login route with
// the reason in the error query parameter.
func (s *Server) CallbackHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cfg := s.client.Config()
		code := r.URL.Query().Get("code")
		errorParam := r.URL.Query().Get("error")
		errorDesc := r.URL.Query().Get("error_description")

		if errorParam != "" {
			writeJSONError(w, errorParam, fmt.Sprintf("Authorization failed: %s", errorDesc), http.StatusBadRequest)
			return
		}
		if code == "" {
			writeJSONError(w, "invalid_request", "Missing code parameter", http.StatusBadRequest)
			return
		}

		if err := s.client.HandleCallback(r.Context(), code); err != nil {
			s.logger.Err(err).Msg("auth callback failed")
			http.Redirect(w, r, cfg.LoginRoute+"?error="+url.QueryEscape(err.Error()), http.StatusSeeOther)
			return
		}
		s.client.Tokens().StartAutoRefresh()
		http.Redirect(w, r, cfg.DefaultRedirectRoute, http.StatusSeeOther)
	}
}
