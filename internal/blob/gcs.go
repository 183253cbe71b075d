package blob

import (
	"context"
	"errors"

	"cloud.google.com/go/storage"
	"github.com/rotisserie/eris"
	"google.golang.org/api/option"
)

// GCS downloads from a Google Cloud Storage bucket.
type GCS struct {
	client   *storage.Client
	bucket   string
	maxBytes int64
}

// NewGCS creates a GCS downloader. An empty credentialsJSON falls back to
// application default credentials.
func NewGCS(ctx context.Context, bucket, credentialsJSON string, maxBytes int64) (*GCS, error) {
	var opts []option.ClientOption
	if credentialsJSON != "" {
		opts = append(opts, option.WithCredentialsJSON([]byte(credentialsJSON)))
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, eris.Wrap(err, "blob: gcs client")
	}
	return &GCS{client: client, bucket: bucket, maxBytes: maxBytes}, nil
}

// Download implements Downloader.
func (g *GCS) Download(ctx context.Context, path string) ([]byte, error) {
	r, err := g.client.Bucket(g.bucket).Object(path).NewReader(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil, eris.Wrap(ErrNotFound, path)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "blob: open %s", path)
	}
	defer r.Close() //nolint:errcheck

	if g.maxBytes > 0 && r.Attrs.Size > g.maxBytes {
		return nil, ErrTooLarge
	}
	return readLimited(r, g.maxBytes)
}

// Close releases the client.
func (g *GCS) Close() error {
	return g.client.Close()
}
