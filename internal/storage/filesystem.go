package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
)

const (
	objectFileMode = 0o644
	shardDirMode   = 0o755

	stagingPattern = ".stage-*"
)

// EnsureDir creates dir if it is missing. Only the last path element is
// created; its parent must already exist. Losing a creation race to another
// writer counts as success.
func EnsureDir(dir string) error {
	err := os.Mkdir(dir, shardDirMode)
	if err == nil || errors.Is(err, fs.ErrExist) {
		return nil
	}
	return fmt.Errorf("create directory %s: %w", dir, err)
}

// WriteAtomic streams r into path so that readers of path observe either its
// previous content or the complete new content, never a partial file.
//
// The payload is staged in a uniquely named file next to path and renamed
// over it once fully written and synced. Concurrent writers to the same path
// stage independently; the last rename wins. If anything fails before the
// rename, including ctx being cancelled, path is left untouched and the
// staging file is removed on a best-effort basis.
func WriteAtomic(ctx context.Context, path string, r io.Reader, chunkSize int) (int64, error) {
	dir := filepath.Dir(path)
	if err := EnsureDir(dir); err != nil {
		return 0, err
	}

	tmp, err := os.CreateTemp(dir, stagingPattern)
	if err != nil {
		return 0, fmt.Errorf("create staging file: %w", err)
	}
	tmpName := tmp.Name()

	promoted := false
	defer func() {
		if promoted {
			return
		}

		_ = tmp.Close()

		if err := os.Remove(tmpName); err != nil && !os.IsNotExist(err) {
			slog.Debug("Failed to remove staging file", "path", tmpName, "err", err)
		}
	}()

	if err := tmp.Chmod(objectFileMode); err != nil {
		return 0, fmt.Errorf("chmod staging file: %w", err)
	}

	written, err := Copy(ctx, tmp, r, chunkSize)
	if err != nil {
		return written, fmt.Errorf("write staging file: %w", err)
	}

	if err := tmp.Sync(); err != nil {
		return written, fmt.Errorf("sync staging file: %w", err)
	}

	if err := tmp.Close(); err != nil {
		return written, fmt.Errorf("close staging file: %w", err)
	}

	// A cancelled upload must never be promoted, even if the body happened to
	// be fully read before cancellation was observed.
	if err := ctx.Err(); err != nil {
		return written, err
	}

	if err := os.Rename(tmpName, path); err != nil {
		return written, fmt.Errorf("promote staging file: %w", err)
	}
	promoted = true

	return written, nil
}

// WriteDirect truncates path and streams r into it in place.
//
// Unlike WriteAtomic there is no isolation: concurrent readers can observe a
// partially written file, concurrent writers interleave, and a failed or
// cancelled write leaves whatever was written so far at path.
func WriteDirect(ctx context.Context, path string, r io.Reader, chunkSize int) (int64, error) {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, objectFileMode)
	if err != nil {
		return 0, fmt.Errorf("open %s: %w", path, err)
	}

	written, err := Copy(ctx, f, r, chunkSize)
	if closeErr := f.Close(); err == nil && closeErr != nil {
		err = closeErr
	}
	if err != nil {
		return written, fmt.Errorf("write %s: %w", path, err)
	}

	return written, nil
}
