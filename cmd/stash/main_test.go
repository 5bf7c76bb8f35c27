package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/require"
)

func TestParseFlagsDefaults(t *testing.T) {
	t.Parallel()

	opts, err := parseFlags([]string{"--root", "/data/cache", "--asset-root", "/data/assets"})
	require.NoError(t, err, "parseFlags error")
	require.Equal(t, "/data/cache", opts.root, "root")
	require.Equal(t, "/data/assets", opts.assetRoot, "asset root")
	require.Equal(t, "127.0.0.1", opts.address, "default address")
	require.Equal(t, uint16(3000), opts.port, "default port")
	require.Equal(t, 32*1024, opts.chunkSize, "default chunk size")
	require.Empty(t, opts.ledgerPath, "ledger disabled by default")
}

func TestParseFlagsErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		args []string
	}{
		{name: "missing root", args: []string{"--asset-root", "/a"}},
		{name: "missing asset root", args: []string{"--root", "/r"}},
		{name: "bad chunk size", args: []string{"--root", "/r", "--asset-root", "/a", "--chunk-size", "0"}},
		{name: "bad port", args: []string{"--root", "/r", "--asset-root", "/a", "--port", "70000"}},
		{name: "extra argument", args: []string{"--root", "/r", "--asset-root", "/a", "serve"}},
		{name: "root with bucket", args: []string{"--root", "/r", "--asset-root", "/a", "--s3-endpoint", "localhost:9000", "--s3-bucket", "cache"}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			_, err := parseFlags(tc.args)
			require.Error(t, err, "parseFlags should fail")
		})
	}
}

func TestParseFlagsBucketReplacesRoot(t *testing.T) {
	t.Parallel()

	opts, err := parseFlags([]string{"--asset-root", "/a", "--s3-endpoint", "localhost:9000", "--s3-bucket", "cache"})
	require.NoError(t, err, "parseFlags error")
	require.Equal(t, "localhost:9000", opts.bucket.Endpoint, "endpoint")
	require.Equal(t, "cache", opts.bucket.Bucket, "bucket")
	require.True(t, opts.bucket.Secure, "TLS on by default")
	require.Zero(t, opts.bucket.PartSize, "part size defaults to the backend minimum")

	opts, err = parseFlags([]string{"--asset-root", "/a", "--s3-endpoint", "localhost:9000", "--s3-bucket", "cache", "--s3-part-size", "16777216"})
	require.NoError(t, err, "parseFlags error")
	require.Equal(t, uint64(16*1024*1024), opts.bucket.PartSize, "part size")
}

func TestParseFlagsHelp(t *testing.T) {
	t.Parallel()

	_, err := parseFlags([]string{"--help"})
	require.ErrorIs(t, err, pflag.ErrHelp, "help flag")
}

func TestExistingDir(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	got, err := existingDir("--root", dir)
	require.NoError(t, err, "existing directory")
	require.Equal(t, dir, got, "absolute path")

	_, err = existingDir("--root", filepath.Join(dir, "missing"))
	require.Error(t, err, "missing directory must not be created")
	_, statErr := os.Stat(filepath.Join(dir, "missing"))
	require.True(t, os.IsNotExist(statErr), "directory should not have been created")

	file := filepath.Join(dir, "file")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o644), "writing file")
	_, err = existingDir("--root", file)
	require.Error(t, err, "regular file is not a root")
}

func TestRunFailsOnMissingRoot(t *testing.T) {
	t.Parallel()

	err := Run(t.Context(), []string{"--root", filepath.Join(t.TempDir(), "missing"), "--asset-root", t.TempDir()})
	require.Error(t, err, "Run should abort when a root is missing")
}
