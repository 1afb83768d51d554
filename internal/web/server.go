package web

import (
	"fmt"
	"html/template"
	"log/slog"
	"net/http"

	"babil/internal/audio"
	"babil/internal/identity"
	"babil/internal/wiki"
)

// Options holds the dependencies for the web server.
type Options struct {
	Engine   *wiki.Engine
	Gate     *identity.Gate
	Sessions *identity.Sessions
	// Audio serves rendered titles. Nil disables the audio route.
	Audio  *audio.FileSink
	Logger *slog.Logger

	FeedLimit    int
	ProfileLimit int
}

// Server holds the dependencies for the web server.
type Server struct {
	opts      Options
	templates map[string]*template.Template
	handler   http.Handler
}

// NewServer creates a new server with the given dependencies.
func NewServer(opts Options) (*Server, error) {
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	templates, err := parseTemplates()
	if err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}
	s := &Server{opts: opts, templates: templates}
	s.handler = s.routes()
	return s, nil
}

// ServeHTTP implements the http.Handler interface.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}
