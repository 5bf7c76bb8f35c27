package storage_test

import (
	"bytes"
	"context"
	"crypto/rand"
	"errors"
	"io"
	"stash/internal/storage"
	"testing"
	"testing/iotest"

	"github.com/stretchr/testify/require"
)

// countingReader records how many Read calls reached the underlying reader.
type countingReader struct {
	r     io.Reader
	reads int
}

func (c *countingReader) Read(p []byte) (int, error) {
	c.reads++
	return c.r.Read(p)
}

// recordingWriter records the size of every Write it receives.
type recordingWriter struct {
	buf    bytes.Buffer
	writes []int
}

func (w *recordingWriter) Write(p []byte) (int, error) {
	w.writes = append(w.writes, len(p))
	return w.buf.Write(p)
}

type shortWriter struct{}

func (shortWriter) Write(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	return len(p) - 1, nil
}

func randomPayload(t *testing.T, size int) []byte {
	t.Helper()
	payload := make([]byte, size)
	_, err := rand.Read(payload)
	require.NoError(t, err, "generating random payload")
	return payload
}

func TestChunksBoundedByChunkSize(t *testing.T) {
	t.Parallel()

	const chunkSize = 32 * 1024
	payload := randomPayload(t, 10*1024*1024)

	var (
		got    bytes.Buffer
		chunks int
	)
	for chunk, err := range storage.Chunks(bytes.NewReader(payload), chunkSize) {
		require.NoError(t, err, "chunk error")
		require.LessOrEqual(t, len(chunk), chunkSize, "chunk exceeds chunk size")
		got.Write(chunk)
		chunks++
	}

	require.Equal(t, len(payload)/chunkSize, chunks, "chunk count")
	require.True(t, bytes.Equal(payload, got.Bytes()), "reassembled payload mismatch")
}

func TestChunksIsLazy(t *testing.T) {
	t.Parallel()

	src := &countingReader{r: bytes.NewReader(randomPayload(t, 1024*1024))}

	seen := 0
	for _, err := range storage.Chunks(src, 4096) {
		require.NoError(t, err, "chunk error")
		seen++
		if seen == 2 {
			break
		}
	}

	require.Equal(t, 2, src.reads, "reads should only happen on demand")
}

func TestChunksYieldsReadError(t *testing.T) {
	t.Parallel()

	boom := errors.New("boom")
	src := io.MultiReader(bytes.NewReader([]byte("abc")), iotest.ErrReader(boom))

	var (
		data    []byte
		lastErr error
	)
	for chunk, err := range storage.Chunks(src, 2) {
		if err != nil {
			lastErr = err
			continue
		}
		data = append(data, chunk...)
	}

	require.Equal(t, "abc", string(data), "data before error")
	require.ErrorIs(t, lastErr, boom, "read error should be yielded")
}

func TestChunksDefaultSize(t *testing.T) {
	t.Parallel()

	payload := randomPayload(t, storage.DefaultChunkSize*3)

	chunks := 0
	for chunk, err := range storage.Chunks(bytes.NewReader(payload), 0) {
		require.NoError(t, err, "chunk error")
		require.LessOrEqual(t, len(chunk), storage.DefaultChunkSize, "chunk exceeds default size")
		chunks++
	}
	require.Equal(t, 3, chunks, "chunk count")
}

func TestCopyWritesInChunks(t *testing.T) {
	t.Parallel()

	const chunkSize = 64 * 1024
	payload := randomPayload(t, 10*1024*1024)

	dst := &recordingWriter{}
	n, err := storage.Copy(t.Context(), dst, bytes.NewReader(payload), chunkSize)
	require.NoError(t, err, "Copy error")
	require.Equal(t, int64(len(payload)), n, "bytes copied")
	require.True(t, bytes.Equal(payload, dst.buf.Bytes()), "copied payload mismatch")

	require.Len(t, dst.writes, len(payload)/chunkSize, "write count")
	for _, size := range dst.writes {
		require.LessOrEqual(t, size, chunkSize, "write exceeds chunk size")
	}
}

func TestCopyStopsOnCancel(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	dst := &recordingWriter{}
	n, err := storage.Copy(ctx, dst, bytes.NewReader([]byte("payload")), 4)
	require.ErrorIs(t, err, context.Canceled, "Copy should report cancellation")
	require.Zero(t, n, "nothing should be written after cancellation")
	require.Empty(t, dst.writes, "no writes after cancellation")
}

func TestCopyShortWrite(t *testing.T) {
	t.Parallel()

	_, err := storage.Copy(t.Context(), shortWriter{}, bytes.NewReader([]byte("payload")), 4)
	require.ErrorIs(t, err, io.ErrShortWrite, "short write should be reported")
}

func TestCopyEmpty(t *testing.T) {
	t.Parallel()

	dst := &recordingWriter{}
	n, err := storage.Copy(t.Context(), dst, bytes.NewReader(nil), 4)
	require.NoError(t, err, "Copy error")
	require.Zero(t, n, "bytes copied")
	require.Empty(t, dst.writes, "empty source should produce no writes")
}
