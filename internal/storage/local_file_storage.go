package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"syscall"
)

const (
	// MinHashLength is the shortest hash accepted as an object identifier.
	MinHashLength = 20

	// ShardPrefixLength is the number of leading hash characters used to name
	// the shard directory.
	ShardPrefixLength = 2

	// BinaryExt is appended to the hash to form the stored file name.
	BinaryExt = ".zip"
)

// ErrHashTooShort is returned for hashes shorter than MinHashLength.
var ErrHashTooShort = errors.New("hash too short")

// ObjectKey maps a hash to its slash-separated key relative to the binary
// root: the first two characters name the shard directory and the file is
// the hash with BinaryExt appended. Hashes whose key would leave the root
// fail with ErrInvalidKey; the content is not otherwise validated.
func ObjectKey(hash string) (string, error) {
	if len(hash) < MinHashLength {
		return "", ErrHashTooShort
	}

	key := hash[:ShardPrefixLength] + "/" + hash + BinaryExt
	if strings.ContainsAny(hash, `/\`) || !fs.ValidPath(key) {
		return "", fmt.Errorf("%w: hash %q", ErrInvalidKey, hash)
	}
	return key, nil
}

// ObjectPath computes the full filesystem path for the object identified by
// hash under root.
func ObjectPath(root string, hash string) (string, error) {
	key, err := ObjectKey(hash)
	if err != nil {
		return "", err
	}
	return filepath.Join(root, filepath.FromSlash(key)), nil
}

// WriteMode selects how LocalFileStorage writes payloads.
type WriteMode int

const (
	// WriteModeAtomic stages each payload and renames it into place.
	WriteModeAtomic WriteMode = iota

	// WriteModeDirect truncates and writes the destination in place.
	WriteModeDirect
)

func (m WriteMode) String() string {
	switch m {
	case WriteModeAtomic:
		return "atomic"
	case WriteModeDirect:
		return "direct"
	default:
		return fmt.Sprintf("WriteMode(%d)", int(m))
	}
}

// LocalFileStorage is a StorageEngine implementation that stores object
// payloads as plain files under root. Keys map directly onto relative paths.
type LocalFileStorage struct {
	root      string
	mode      WriteMode
	chunkSize int
}

type LocalFileStorageOption func(*LocalFileStorage)

func WithWriteMode(mode WriteMode) LocalFileStorageOption {
	return func(s *LocalFileStorage) {
		s.mode = mode
	}
}

func WithChunkSize(chunkSize int) LocalFileStorageOption {
	return func(s *LocalFileStorage) {
		s.chunkSize = chunkSize
	}
}

// NewLocalFileStorage creates a new LocalFileStorage rooted at root. The
// default is atomic writes with DefaultChunkSize transfers.
func NewLocalFileStorage(root string, opts ...LocalFileStorageOption) *LocalFileStorage {
	s := &LocalFileStorage{
		root:      root,
		mode:      WriteModeAtomic,
		chunkSize: DefaultChunkSize,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Root returns the directory the storage is rooted at.
func (s *LocalFileStorage) Root() string {
	return s.root
}

// Mode returns the write policy used by Put.
func (s *LocalFileStorage) Mode() WriteMode {
	return s.mode
}

func (s *LocalFileStorage) objectPath(key string) (string, error) {
	rel := filepath.FromSlash(key)
	if key == "" || !filepath.IsLocal(rel) {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return filepath.Join(s.root, rel), nil
}

// isMissing reports whether err means nothing is stored at a path. A shard
// entry that is a regular file leaves the object just as absent.
func isMissing(err error) bool {
	return errors.Is(err, fs.ErrNotExist) || errors.Is(err, syscall.ENOTDIR)
}

func (s *LocalFileStorage) Stat(ctx context.Context, key string) (int64, error) {
	objPath, err := s.objectPath(key)
	if err != nil {
		return 0, err
	}

	info, err := os.Stat(objPath)
	if isMissing(err) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, err
	}

	if !info.Mode().IsRegular() {
		return 0, ErrNotFound
	}

	return info.Size(), nil
}

func (s *LocalFileStorage) Open(ctx context.Context, key string) (io.ReadCloser, int64, error) {
	objPath, err := s.objectPath(key)
	if err != nil {
		return nil, 0, err
	}

	f, err := os.Open(objPath)
	if isMissing(err) {
		return nil, 0, ErrNotFound
	}
	if err != nil {
		return nil, 0, err
	}

	// The size is taken from the opened descriptor. For atomic writes a later
	// rename does not affect it; a direct write to the same file can.
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, 0, err
	}

	if !info.Mode().IsRegular() {
		_ = f.Close()
		return nil, 0, ErrNotFound
	}

	return f, info.Size(), nil
}

func (s *LocalFileStorage) Put(ctx context.Context, key string, r io.Reader, size int64) (int64, error) {
	objPath, err := s.objectPath(key)
	if err != nil {
		return 0, err
	}

	switch s.mode {
	case WriteModeDirect:
		return WriteDirect(ctx, objPath, r, s.chunkSize)
	default:
		return WriteAtomic(ctx, objPath, r, s.chunkSize)
	}
}
