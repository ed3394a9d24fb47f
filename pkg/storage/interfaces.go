// Package storage defines the storage-facing contracts shared by the rest of
// the application: the object store used for product image blobs, the storage
// configuration, and the sentinel errors every backend must surface.
package storage

import (
	"context"
	"errors"
	"time"
)

// Sentinel errors returned by storage backends. Callers translate these into
// HTTP status codes at the API boundary; backends translate driver-specific
// failures (e.g. unique-constraint violations) into them.
var (
	// ErrNotFound indicates the requested record does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrConflict indicates a uniqueness violation (email, title or slug).
	ErrConflict = errors.New("record already exists")
)

// UploadResult is the stable handle returned for an uploaded blob. StorageID
// is the key needed to delete the blob later; URL is publicly reachable.
type UploadResult struct {
	URL       string
	StorageID string
}

// ObjectStore is the remote blob store used for product images. Each call can
// fail independently; callers decide whether a failure is fatal for the
// enclosing operation.
type ObjectStore interface {
	// Upload stores a blob and returns its URL and storage identifier.
	Upload(ctx context.Context, data []byte, contentType string) (UploadResult, error)

	// Delete removes a blob by its storage identifier. Deleting a missing
	// blob is not an error.
	Delete(ctx context.Context, storageID string) error
}

// Config holds storage backend configuration.
type Config struct {
	// PostgreSQL config
	PostgresURL      string        `yaml:"postgres_url"`
	PostgresMaxConns int           `yaml:"postgres_max_conns"`
	PostgresMinConns int           `yaml:"postgres_min_conns"`
	PostgresTimeout  time.Duration `yaml:"postgres_timeout"`

	// S3 config
	S3Endpoint      string `yaml:"s3_endpoint"`
	S3Region        string `yaml:"s3_region"`
	S3Bucket        string `yaml:"s3_bucket"`
	S3AccessKey     string `yaml:"s3_access_key"`
	S3SecretKey     string `yaml:"s3_secret_key"`
	S3UsePathStyle  bool   `yaml:"s3_use_path_style"`
	S3PublicBaseURL string `yaml:"s3_public_base_url"` // overrides the derived public URL, e.g. a CDN front

	S3OperationTimeout time.Duration `yaml:"s3_operation_timeout"`

	// Redis config
	RedisURL      string `yaml:"redis_url"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`

	// Cache config
	CacheEnabled bool          `yaml:"cache_enabled"`
	CacheTTL     time.Duration `yaml:"cache_ttl"`
	L1CacheSize  int           `yaml:"l1_cache_size"` // entries
}

// DefaultConfig returns sensible default configuration.
func DefaultConfig() Config {
	return Config{
		PostgresMaxConns:   20,
		PostgresMinConns:   2,
		PostgresTimeout:    10 * time.Second,
		S3Region:           "us-east-1",
		S3Bucket:           "threadline-images",
		S3OperationTimeout: 30 * time.Second,
		RedisDB:            0,
		CacheEnabled:       true,
		CacheTTL:           5 * time.Minute,
		L1CacheSize:        1024,
	}
}
