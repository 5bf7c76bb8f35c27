package core

import (
	"context"
	"time"

	"stash/internal/storage"

	"github.com/prometheus/client_golang/prometheus"
)

// Recorder receives an entry for every completed store.
type Recorder interface {
	Record(ctx context.Context, root string, key string, size int64, storedAt time.Time) error
}

// Config is fixed once the Server is built and shared read-only by every
// request.
type Config struct {
	// Binaries holds content-addressed archives; it must write atomically.
	Binaries storage.StorageEngine

	// Assets holds named assets written in place.
	Assets storage.StorageEngine

	// ChunkSize bounds the buffer used to stream a response body.
	ChunkSize int

	// Ledger is optional.
	Ledger Recorder

	// Registry receives the server metrics. A private registry is created
	// when nil.
	Registry *prometheus.Registry
}

type ConfigOption func(*Config)

func WithBinaryStorage(engine storage.StorageEngine) ConfigOption {
	return func(cfg *Config) {
		cfg.Binaries = engine
	}
}

func WithAssetStorage(engine storage.StorageEngine) ConfigOption {
	return func(cfg *Config) {
		cfg.Assets = engine
	}
}

func WithChunkSize(chunkSize int) ConfigOption {
	return func(cfg *Config) {
		cfg.ChunkSize = chunkSize
	}
}

func WithLedger(recorder Recorder) ConfigOption {
	return func(cfg *Config) {
		cfg.Ledger = recorder
	}
}

func WithRegistry(registry *prometheus.Registry) ConfigOption {
	return func(cfg *Config) {
		cfg.Registry = registry
	}
}

func NewConfig(opts ...ConfigOption) Config {
	cfg := Config{}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}
