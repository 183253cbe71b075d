package blob

import (
	"context"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/rotisserie/eris"
)

// MinioConfig configures an S3-compatible bucket.
type MinioConfig struct {
	Endpoint  string `yaml:"endpoint" mapstructure:"endpoint"`
	AccessKey string `yaml:"access_key" mapstructure:"access_key"`
	SecretKey string `yaml:"secret_key" mapstructure:"secret_key"`
	Bucket    string `yaml:"bucket" mapstructure:"bucket"`
	UseSSL    bool   `yaml:"use_ssl" mapstructure:"use_ssl"`
}

// Minio downloads from an S3-compatible store.
type Minio struct {
	client   *minio.Client
	bucket   string
	maxBytes int64
}

// NewMinio connects to the store and checks that the bucket exists.
func NewMinio(ctx context.Context, cfg MinioConfig, maxBytes int64) (*Minio, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, eris.Wrap(err, "blob: minio client")
	}
	ok, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, eris.Wrapf(err, "blob: check bucket %s", cfg.Bucket)
	}
	if !ok {
		return nil, eris.Errorf("blob: bucket %s does not exist", cfg.Bucket)
	}
	return &Minio{client: client, bucket: cfg.Bucket, maxBytes: maxBytes}, nil
}

// Download implements Downloader.
func (m *Minio) Download(ctx context.Context, path string) ([]byte, error) {
	obj, err := m.client.GetObject(ctx, m.bucket, path, minio.GetObjectOptions{})
	if err != nil {
		return nil, minioError(err, path)
	}
	defer obj.Close() //nolint:errcheck

	// GetObject is lazy; Stat surfaces a missing key before reading.
	info, err := obj.Stat()
	if err != nil {
		return nil, minioError(err, path)
	}
	if m.maxBytes > 0 && info.Size > m.maxBytes {
		return nil, ErrTooLarge
	}
	return readLimited(obj, m.maxBytes)
}

func minioError(err error, path string) error {
	if minio.ToErrorResponse(err).Code == "NoSuchKey" {
		return eris.Wrap(ErrNotFound, path)
	}
	return eris.Wrapf(err, "blob: get %s", path)
}
