package server

import (
	"net/http"
	"strings"

	"github.com/fatih/color"
)

func (s *Server) initRoutes() {
	callback := s.client.Config().CallbackPath()
	if callback == "" {
		callback = RouteCallback
	}

	s.RegisterRouteHandler("GET "+callback, ChainMiddleware(s.CallbackHandler(), s.StdMiddleware()...))
	s.RegisterRouteHandler("GET "+RouteAuthLogin, ChainMiddleware(s.LoginHandler(), s.StdMiddleware()...))
	s.RegisterRouteHandler("GET "+RouteAuthLogout, ChainMiddleware(s.LogoutHandler(), s.StdMiddleware()...))
	s.RegisterRouteHandler("POST "+RouteAuthLogout, ChainMiddleware(s.LogoutHandler(), s.StdMiddleware()...))
	s.RegisterRouteHandler("GET "+RouteStatus, ChainMiddleware(s.StatusHandler(), s.StdMiddleware()...))

	// Everything else is a page and goes through the guard.
	s.RegisterRouteHandler("/", ChainMiddleware(s.content.ServeHTTP, s.StdMiddleware(s.GuardMiddleware)...))
}

var methodColors = map[string]*color.Color{
	"GET":    color.New(color.FgGreen),
	"POST":   color.New(color.FgBlue),
	"PUT":    color.New(color.FgCyan),
	"DELETE": color.New(color.FgYellow),
	"PATCH":  color.New(color.FgMagenta),
}

var defaultMethodColor = color.New(color.FgHiBlack)

func (s *Server) logRoutes() {
	if !s.debug {
		return
	}
	for _, route := range s.routes {
		parts := strings.SplitN(route, " ", 2)

		if len(parts) > 1 {
			s.logRoute(parts[0], parts[1])
		} else {
			s.logRoute("", parts[0])
		}
	}
}

func (s *Server) logRoute(method, path string) {
	c, ok := methodColors[method]
	if !ok {
		c = defaultMethodColor
	}
	s.logger.Debug().Msgf("[%s] %s", c.Sprintf(" %-7s", method), path)
}

// Helper function to determine the scheme (http/https)
func getScheme(r *http.Request) string {
	if r.TLS != nil {
		return "https"
	}
	if scheme := r.Header.Get("X-Forwarded-Proto"); scheme != "" {
		return scheme
	}
	return "http"
}
