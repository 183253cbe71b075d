// Package blob downloads uploaded document files from object storage.
package blob

import (
	"context"
	"io"

	"github.com/rotisserie/eris"
)

// DefaultMaxBytes caps a single download.
const DefaultMaxBytes = 25 << 20

var (
	// ErrNotFound is returned when the object does not exist.
	ErrNotFound = eris.New("blob: object not found")
	// ErrTooLarge is returned when the object exceeds the size cap.
	ErrTooLarge = eris.New("blob: object too large")
)

// Downloader fetches the bytes stored at path.
type Downloader interface {
	Download(ctx context.Context, path string) ([]byte, error)
}

func readLimited(r io.Reader, maxBytes int64) ([]byte, error) {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	data, err := io.ReadAll(io.LimitReader(r, maxBytes+1))
	if err != nil {
		return nil, eris.Wrap(err, "blob: read")
	}
	if int64(len(data)) > maxBytes {
		return nil, ErrTooLarge
	}
	return data, nil
}
