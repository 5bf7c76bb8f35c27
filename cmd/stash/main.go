package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"stash/internal/core"
	"stash/internal/ledger"
	"stash/internal/storage"

	"github.com/charmbracelet/log"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"
)

type options struct {
	root         string
	assetRoot    string
	address      string
	port         uint16
	chunkSize    int
	ledgerPath   string
	logLevel     string
	readTimeout  time.Duration
	writeTimeout time.Duration
	bucket       storage.BucketConfig
}

func parseFlags(args []string) (options, error) {
	var opts options

	flagSet := pflag.NewFlagSet("stash", pflag.ContinueOnError)
	flagSet.StringVar(&opts.root, "root", "", "directory holding content-addressed binaries (must exist)")
	flagSet.StringVar(&opts.assetRoot, "asset-root", "", "directory holding named assets (must exist)")
	flagSet.StringVar(&opts.address, "address", "127.0.0.1", "listen address")
	flagSet.Uint16Var(&opts.port, "port", 3000, "listen port")
	flagSet.IntVar(&opts.chunkSize, "chunk-size", storage.DefaultChunkSize, "transfer buffer size in bytes")
	flagSet.StringVar(&opts.ledgerPath, "ledger", "", "optional SQLite file journaling completed stores")
	flagSet.StringVar(&opts.logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	flagSet.DurationVar(&opts.readTimeout, "read-timeout", 0, "maximum duration for reading a request, 0 for none")
	flagSet.DurationVar(&opts.writeTimeout, "write-timeout", 0, "maximum duration for writing a response, 0 for none")
	flagSet.StringVar(&opts.bucket.Endpoint, "s3-endpoint", "", "store binaries in this S3-compatible endpoint instead of --root")
	flagSet.StringVar(&opts.bucket.Bucket, "s3-bucket", "", "bucket for binaries when --s3-endpoint is set")
	flagSet.StringVar(&opts.bucket.Prefix, "s3-prefix", "", "key prefix for binaries in the bucket")
	flagSet.StringVar(&opts.bucket.AccessKey, "s3-access-key", "", "S3 access key")
	flagSet.StringVar(&opts.bucket.SecretKey, "s3-secret-key", "", "S3 secret key")
	flagSet.StringVar(&opts.bucket.Region, "s3-region", "", "S3 region")
	flagSet.BoolVar(&opts.bucket.Secure, "s3-secure", true, "use TLS for the S3 endpoint")
	flagSet.Uint64Var(&opts.bucket.PartSize, "s3-part-size", 0, "multipart part size in bytes, buffered in memory per upload (minimum 5 MiB)")

	if err := flagSet.Parse(args); err != nil {
		return opts, err
	}

	if rest := flagSet.Args(); len(rest) > 0 {
		return opts, fmt.Errorf("unexpected argument: %s", rest[0])
	}

	if opts.bucket.Endpoint == "" && opts.root == "" {
		return opts, errors.New("--root is required")
	}

	if opts.bucket.Endpoint != "" && opts.root != "" {
		return opts, errors.New("--root and --s3-endpoint are mutually exclusive")
	}

	if opts.assetRoot == "" {
		return opts, errors.New("--asset-root is required")
	}

	if opts.chunkSize <= 0 {
		return opts, fmt.Errorf("--chunk-size must be positive, got %d", opts.chunkSize)
	}

	return opts, nil
}

// existingDir resolves dir to an absolute path and checks that it is a
// directory. Roots are never created implicitly.
func existingDir(flagName string, dir string) (string, error) {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("failed to resolve %s: %w", flagName, err)
	}

	info, err := os.Stat(absDir)
	if err != nil {
		return "", fmt.Errorf("%s: %w", flagName, err)
	}

	if !info.IsDir() {
		return "", fmt.Errorf("%s: %s is not a directory", flagName, absDir)
	}

	return absDir, nil
}

func Run(ctx context.Context, args []string) error {

	opts, err := parseFlags(args)
	if err != nil {
		return err
	}

	level, err := log.ParseLevel(opts.logLevel)
	if err != nil {
		return fmt.Errorf("invalid --log-level: %w", err)
	}

	handler := log.NewWithOptions(os.Stdout, log.Options{
		Level:           level,
		TimeFormat:      time.RFC3339,
		ReportTimestamp: true,
		TimeFunction:    log.NowUTC,
		ReportCaller:    true,
	})

	slog.SetDefault(slog.New(handler))

	var binaries storage.StorageEngine
	if opts.bucket.Endpoint != "" {
		bucket, err := storage.NewBucketStorage(opts.bucket)
		if err != nil {
			return fmt.Errorf("failed to create bucket storage: %w", err)
		}
		binaries = bucket
		slog.Info("Storing binaries in bucket", "endpoint", opts.bucket.Endpoint, "bucket", opts.bucket.Bucket, "prefix", opts.bucket.Prefix, "partSize", bucket.PartSize())
	} else {
		root, err := existingDir("--root", opts.root)
		if err != nil {
			return err
		}
		binaries = storage.NewLocalFileStorage(root,
			storage.WithWriteMode(storage.WriteModeAtomic),
			storage.WithChunkSize(opts.chunkSize),
		)
		slog.Info("Storing binaries on disk", "root", root)
	}

	assetRoot, err := existingDir("--asset-root", opts.assetRoot)
	if err != nil {
		return err
	}

	cfgOpts := []core.ConfigOption{
		core.WithBinaryStorage(binaries),
		core.WithAssetStorage(storage.NewLocalFileStorage(assetRoot,
			storage.WithWriteMode(storage.WriteModeDirect),
			storage.WithChunkSize(opts.chunkSize),
		)),
		core.WithChunkSize(opts.chunkSize),
	}

	if opts.ledgerPath != "" {
		journal, err := ledger.Open(ctx, opts.ledgerPath)
		if err != nil {
			return fmt.Errorf("failed to open ledger: %w", err)
		}
		defer journal.Close()

		count, size, err := journal.Totals(ctx, core.RootBinaries)
		if err != nil {
			return fmt.Errorf("failed to read ledger: %w", err)
		}
		slog.Info("Opened ledger", "path", opts.ledgerPath, "binaries", count, "bytes", size)

		cfgOpts = append(cfgOpts, core.WithLedger(journal))
	}

	server, err := core.NewServer(core.NewConfig(cfgOpts...))
	if err != nil {
		return fmt.Errorf("failed to create stash server: %w", err)
	}

	addr := net.JoinHostPort(opts.address, strconv.Itoa(int(opts.port)))

	// Bind before serving so an unusable address fails startup.
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	httpServer := &http.Server{
		Handler:           server.Handler(),
		ReadHeaderTimeout: 20 * time.Second,
		ReadTimeout:       opts.readTimeout,
		WriteTimeout:      opts.writeTimeout,
	}

	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	eg.Go(func() error {
		slog.Info("Starting Stash HTTP server", "addr", listener.Addr().String())
		err := httpServer.Serve(listener)
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}

		return nil
	})

	slog.Info("Stash Started")
	return eg.Wait()

}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := Run(ctx, os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		slog.Error("Stash exited with error", "error", err)
		os.Exit(1)
	}
}
