package delivery

import (
	"context"
	"fmt"
	"log/slog"
	"path"
	"path/filepath"
	"strings"
	"sync"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"meshforge/internal/config"
	"meshforge/internal/logging"
	"meshforge/internal/services"
)

// ObjectStore is the subset of the MinIO client the publisher uses.
type ObjectStore interface {
	BucketExists(ctx context.Context, bucket string) (bool, error)
	MakeBucket(ctx context.Context, bucket string, opts minio.MakeBucketOptions) error
	FPutObject(ctx context.Context, bucket, object, filePath string, opts minio.PutObjectOptions) (minio.UploadInfo, error)
}

// Publisher uploads run artifacts to an S3-compatible bucket.
type Publisher struct {
	store  ObjectStore
	bucket string
	prefix string
	region string
	logger *slog.Logger

	bucketOnce sync.Once
	bucketErr  error
}

// Option configures a Publisher.
type Option func(*Publisher)

// WithObjectStore replaces the MinIO client (tests).
func WithObjectStore(store ObjectStore) Option {
	return func(p *Publisher) {
		if store != nil {
			p.store = store
		}
	}
}

// WithLogger attaches a logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Publisher) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// NewPublisher builds a publisher for the [delivery] settings.
func NewPublisher(cfg config.Delivery, opts ...Option) (*Publisher, error) {
	p := &Publisher{
		bucket: cfg.Bucket,
		prefix: strings.Trim(cfg.Prefix, "/"),
		region: cfg.Region,
		logger: logging.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.store == nil {
		client, err := minio.New(cfg.Endpoint, &minio.Options{
			Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
			Secure: cfg.UseSSL,
			Region: cfg.Region,
		})
		if err != nil {
			return nil, services.Wrap(services.ErrConfiguration, "deliver", "connect", "invalid object storage settings", err)
		}
		p.store = client
	}
	p.logger = logging.NewComponentLogger(p.logger, "delivery")
	return p, nil
}

// ObjectKey returns "{prefix}/{run_id}/{filename}", omitting an empty prefix.
func ObjectKey(prefix, runID, filePath string) string {
	parts := make([]string, 0, 3)
	if prefix = strings.Trim(prefix, "/"); prefix != "" {
		parts = append(parts, prefix)
	}
	parts = append(parts, runID, filepath.Base(filePath))
	return path.Join(parts...)
}

// ContentType maps artifact extensions to MIME types.
func ContentType(filePath string) string {
	switch strings.ToLower(filepath.Ext(filePath)) {
	case ".png":
		return "image/png"
	case ".glb":
		return "model/gltf-binary"
	case ".obj":
		return "model/obj"
	case ".json":
		return "application/json"
	default:
		return "application/octet-stream"
	}
}

// Publish uploads each non-empty path and returns "s3://bucket/key" locations.
func (p *Publisher) Publish(ctx context.Context, runID string, paths ...string) ([]string, error) {
	if strings.TrimSpace(runID) == "" {
		return nil, services.Wrap(services.ErrConfiguration, "deliver", "publish", "run id required", nil)
	}
	if err := p.ensureBucket(ctx); err != nil {
		return nil, err
	}
	logger := logging.WithContext(ctx, p.logger)
	var locations []string
	for _, filePath := range paths {
		if strings.TrimSpace(filePath) == "" {
			continue
		}
		key := ObjectKey(p.prefix, runID, filePath)
		info, err := p.store.FPutObject(ctx, p.bucket, key, filePath, minio.PutObjectOptions{ContentType: ContentType(filePath)})
		if err != nil {
			return locations, services.Wrap(services.ErrTransient, "deliver", "upload", key, err)
		}
		logger.Info("artifact uploaded",
			logging.String("bucket", p.bucket),
			logging.String("key", key),
			logging.Int64("size", info.Size),
			logging.String(logging.FieldEventType, "artifact_uploaded"),
		)
		locations = append(locations, fmt.Sprintf("s3://%s/%s", p.bucket, key))
	}
	return locations, nil
}

func (p *Publisher) ensureBucket(ctx context.Context) error {
	p.bucketOnce.Do(func() {
		exists, err := p.store.BucketExists(ctx, p.bucket)
		if err != nil {
			p.bucketErr = services.Wrap(services.ErrTransient, "deliver", "check bucket", p.bucket, err)
			return
		}
		if exists {
			return
		}
		if err := p.store.MakeBucket(ctx, p.bucket, minio.MakeBucketOptions{Region: p.region}); err != nil {
			p.bucketErr = services.Wrap(services.ErrTransient, "deliver", "create bucket", p.bucket, err)
		}
	})
	return p.bucketErr
}
