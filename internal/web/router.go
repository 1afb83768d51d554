package web

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"babil/internal/web/controller"
	"babil/internal/web/middleware"
)

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("GET /static/", http.StripPrefix("/static/", StaticFileServer()))
	mux.Handle("GET /metrics", promhttp.Handler())

	view := controller.View{Templates: s.templates, Gate: s.opts.Gate, Logger: s.opts.Logger}

	authController := controller.Auth{View: view, Sessions: s.opts.Sessions, ProfileLimit: s.opts.ProfileLimit}
	authController.Register(mux)

	pageController := controller.Page{View: view, Engine: s.opts.Engine, Sink: s.opts.Audio}
	pageController.Register(mux)

	miscController := controller.Misc{View: view, Engine: s.opts.Engine, FeedLimit: s.opts.FeedLimit}
	miscController.Register(mux)

	mux.HandleFunc("/", view.NotFound)

	return middleware.Logger(s.opts.Logger)(middleware.WithIdentity(s.opts.Sessions)(mux))
}
