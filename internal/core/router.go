package core

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handler returns an http.Handler serving the cache, asset, status and
// metrics endpoints.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// Content-addressed binaries
	mux.HandleFunc("GET /cache/{hash}", func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		hash := r.PathValue("hash")
		s.handleCacheGet(ctx, w, r, hash)
	})
	mux.HandleFunc("HEAD /cache/{hash}", func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		hash := r.PathValue("hash")
		s.handleCacheHead(ctx, w, r, hash)
	})
	mux.HandleFunc("PUT /cache/{hash}", func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		hash := r.PathValue("hash")
		s.handleCachePut(ctx, w, r, hash)
	})

	// Named assets
	mux.HandleFunc("PUT /asset/{name}", func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		name := r.PathValue("name")
		s.handleAssetPut(ctx, w, r, name)
	})

	mux.HandleFunc("GET /status", s.handleStatus)
	mux.Handle("GET /metrics", promhttp.HandlerFor(s.config.Registry, promhttp.HandlerOpts{}))

	// Add middleware
	handler := s.LogRequest(mux)
	handler = s.Recoverer(handler)
	return handler
}
