// Package server hosts a web application behind the auth guard. Every page
// request is checked against the route rules before the content handler sees
// it; the /auth routes drive the login flow.
package server

import (
	"net/http"
	"sync/atomic"

	"github.com/jrsteele09/go-auth-guard/app"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type Server struct {
	mux          *http.ServeMux
	routes       []string
	client       *app.Client
	content      http.Handler
	logger       zerolog.Logger
	debug        bool
	bootstrapped atomic.Bool
}

type Option func(*Server)

func WithLogger(logger zerolog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithContent sets the handler for pages that pass the guard.
func WithContent(h http.Handler) Option {
	return func(s *Server) {
		s.content = h
	}
}

// WithDebug logs every request and the registered routes.
func WithDebug(debug bool) Option {
	return func(s *Server) {
		s.debug = debug
	}
}

func New(client *app.Client, opts ...Option) *Server {
	s := &Server{
		mux:    http.NewServeMux(),
		client: client,
		logger: log.Logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.content == nil {
		s.content = s.IndexHandler()
	}

	s.initRoutes()
	s.logRoutes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) RegisterRouteHandler(pattern string, handler http.Handler) {
	s.routes = append(s.routes, pattern)
	s.mux.Handle(pattern, handler)
}

func (s *Server) RegisterRouteFunc(pattern string, handler func(http.ResponseWriter, *http.Request)) {
	s.routes = append(s.routes, pattern)
	s.mux.HandleFunc(pattern, handler)
}
