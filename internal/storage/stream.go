package storage

import (
	"context"
	"io"
	"iter"
)

// DefaultChunkSize is the transfer buffer used when no chunk size is given.
const DefaultChunkSize = 32 * 1024

// Chunks returns a lazy sequence over r that yields at most chunkSize bytes
// per step. The next read from r only happens once the consumer asks for the
// next chunk, so a slow consumer throttles the producer. The yielded slice is
// reused between steps and must not be retained.
//
// A read error other than io.EOF is yielded once as the final element.
func Chunks(r io.Reader, chunkSize int) iter.Seq2[[]byte, error] {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}

	return func(yield func([]byte, error) bool) {
		buf := make([]byte, chunkSize)
		for {
			n, err := r.Read(buf)
			if n > 0 {
				if !yield(buf[:n], nil) {
					return
				}
			}

			if err == io.EOF {
				return
			}

			if err != nil {
				yield(nil, err)
				return
			}
		}
	}
}

// Copy streams src into dst one chunk at a time and returns the number of
// bytes written. It stops at the first read or write error, or as soon as
// ctx is done.
func Copy(ctx context.Context, dst io.Writer, src io.Reader, chunkSize int) (int64, error) {
	var written int64

	for chunk, err := range Chunks(src, chunkSize) {
		if err != nil {
			return written, err
		}

		if err := ctx.Err(); err != nil {
			return written, err
		}

		n, err := dst.Write(chunk)
		written += int64(n)
		if err != nil {
			return written, err
		}

		if n != len(chunk) {
			return written, io.ErrShortWrite
		}
	}

	return written, nil
}
