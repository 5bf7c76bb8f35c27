package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"stash/internal/storage"

	"github.com/prometheus/client_golang/prometheus"
)

// Root labels name the two storage roots in metrics and the ledger.
const (
	RootBinaries = "cache"
	RootAssets   = "asset"
)

const statusBody = "online"

// Server exposes the binary cache and asset store over HTTP.
type Server struct {
	config  Config
	metrics *metrics
}

// NewServer validates cfg and returns a new Server.
func NewServer(cfg Config) (*Server, error) {
	if cfg.Binaries == nil {
		return nil, errors.New("binary storage must be configured")
	}

	if cfg.Assets == nil {
		return nil, errors.New("asset storage must be configured")
	}

	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = storage.DefaultChunkSize
	}

	if cfg.Registry == nil {
		cfg.Registry = prometheus.NewRegistry()
	}

	m, err := newMetrics(cfg.Registry)
	if err != nil {
		return nil, err
	}

	return &Server{config: cfg, metrics: m}, nil
}

// Config returns the configuration the server was built with.
func (s *Server) Config() Config {
	return s.config
}

// statusForError maps storage errors onto HTTP status codes.
func statusForError(err error) int {
	switch {
	case errors.Is(err, storage.ErrHashTooShort), errors.Is(err, storage.ErrInvalidKey):
		return http.StatusBadRequest
	case errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// writeError writes a plain text error response for err. Internal errors are
// logged and reported with a generic message.
func writeError(w http.ResponseWriter, r *http.Request, key string, err error) {
	status := statusForError(err)
	switch status {
	case http.StatusBadRequest:
		http.Error(w, err.Error(), status)
	case http.StatusNotFound:
		http.Error(w, fmt.Sprintf("%s does not exist", key), status)
	default:
		slog.Error("Storage failure", "method", r.Method, "path", r.URL.Path, "key", key, "err", err)
		http.Error(w, "We encountered an internal error. Please try again.", status)
	}
}

// record journals a completed store. Failures are logged only.
func (s *Server) record(ctx context.Context, root string, key string, size int64) {
	s.metrics.storedBytes.WithLabelValues(root).Add(float64(size))

	if s.config.Ledger == nil {
		return
	}

	if err := s.config.Ledger.Record(ctx, root, key, size, time.Now()); err != nil {
		slog.Warn("Record store in ledger", "root", root, "key", key, "err", err)
	}
}

// ------ Individual API HTTP handlers ------

// handleCacheGet implements GET /cache/{hash}, streaming the stored archive.
// Content-Length is the size observed when the file was opened.
func (s *Server) handleCacheGet(ctx context.Context, w http.ResponseWriter, r *http.Request, hash string) {
	key, err := storage.ObjectKey(hash)
	if err != nil {
		writeError(w, r, hash, err)
		return
	}

	rc, size, err := s.config.Binaries.Open(ctx, key)
	if err != nil {
		writeError(w, r, key, err)
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Length", strconv.FormatInt(size, 10))
	w.WriteHeader(http.StatusOK)

	n, err := storage.Copy(ctx, w, rc, s.config.ChunkSize)
	s.metrics.fetchedBytes.WithLabelValues(RootBinaries).Add(float64(n))
	if err != nil {
		// The status line is already out; all we can do is cut the body short.
		slog.Error("Stream object", "key", key, "written", n, "size", size, "err", err)
	}
}

// handleCacheHead implements HEAD /cache/{hash}.
func (s *Server) handleCacheHead(ctx context.Context, w http.ResponseWriter, r *http.Request, hash string) {
	key, err := storage.ObjectKey(hash)
	if err != nil {
		writeError(w, r, hash, err)
		return
	}

	size, err := s.config.Binaries.Stat(ctx, key)
	if err != nil {
		writeError(w, r, key, err)
		return
	}

	w.Header().Set("Content-Length", strconv.FormatInt(size, 10))
	w.WriteHeader(http.StatusOK)
}

// handleCachePut implements PUT /cache/{hash}. The archive only becomes
// visible once the whole body has been stored.
func (s *Server) handleCachePut(ctx context.Context, w http.ResponseWriter, r *http.Request, hash string) {
	defer r.Body.Close()

	key, err := storage.ObjectKey(hash)
	if err != nil {
		writeError(w, r, hash, err)
		return
	}

	s.store(ctx, w, r, RootBinaries, s.config.Binaries, key)
}

// handleAssetPut implements PUT /asset/{name}. Assets are written in place
// with no atomicity guarantee.
func (s *Server) handleAssetPut(ctx context.Context, w http.ResponseWriter, r *http.Request, name string) {
	defer r.Body.Close()

	s.store(ctx, w, r, RootAssets, s.config.Assets, name)
}

func (s *Server) store(ctx context.Context, w http.ResponseWriter, r *http.Request, root string, engine storage.StorageEngine, key string) {
	n, err := engine.Put(ctx, key, r.Body, r.ContentLength)
	if err != nil {
		writeError(w, r, key, err)
		return
	}

	slog.Info("Stored object", "root", root, "key", key, "bytes", n)
	s.record(ctx, root, key, n)

	w.WriteHeader(http.StatusOK)
}

// handleStatus implements GET /status.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, statusBody)
}
