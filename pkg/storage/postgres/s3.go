package postgres

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/storefront-labs/threadline/pkg/storage"
)

var s3Tracer = tracer // reuse the package tracer

// keyPrefix namespaces product image blobs inside the bucket.
const keyPrefix = "product-images/"

// S3Client implements storage.ObjectStore against an S3-compatible endpoint
// (AWS S3 or MinIO for local development).
type S3Client struct {
	client *s3.Client
	bucket string
	cfg    storage.Config
}

// NewS3Client creates an object store client and ensures the bucket exists.
func NewS3Client(cfg storage.Config) (*S3Client, error) {
	ctx := context.Background()

	var awsCfg aws.Config
	var err error
	if cfg.S3AccessKey != "" && cfg.S3SecretKey != "" {
		// Static credentials, used for MinIO or explicit AWS keys.
		awsCfg, err = awsconfig.LoadDefaultConfig(ctx,
			awsconfig.WithRegion(cfg.S3Region),
			awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
				cfg.S3AccessKey,
				cfg.S3SecretKey,
				"",
			)),
		)
	} else {
		// Default credential chain (IAM roles, env vars).
		awsCfg, err = awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.S3Region))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.S3Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.S3Endpoint)
		}
		if cfg.S3UsePathStyle {
			o.UsePathStyle = true
		}
	})

	if err := createBucketIfNotExists(ctx, client, cfg.S3Bucket); err != nil {
		return nil, fmt.Errorf("failed to ensure bucket exists: %w", err)
	}

	return &S3Client{client: client, bucket: cfg.S3Bucket, cfg: cfg}, nil
}

// Upload stores the blob under a fresh key and returns its public URL and
// storage identifier.
func (c *S3Client) Upload(ctx context.Context, data []byte, contentType string) (storage.UploadResult, error) {
	key := keyPrefix + uuid.NewString() + extensionFor(contentType)

	ctx, cancel := c.opContext(ctx)
	defer cancel()
	ctx, span := s3Tracer.Start(ctx, "S3.Upload",
		trace.WithAttributes(
			attribute.String("s3.bucket", c.bucket),
			attribute.String("s3.key", key),
			attribute.Int("content.size", len(data)),
			attribute.String("content.type", contentType),
		),
	)
	defer span.End()

	_, err := c.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(c.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to upload to s3")
		return storage.UploadResult{}, fmt.Errorf("failed to upload to s3: %w", err)
	}

	span.SetStatus(codes.Ok, "object uploaded")
	return storage.UploadResult{URL: c.publicURL(key), StorageID: key}, nil
}

// Delete removes a blob by its key. Deleting a missing key succeeds.
func (c *S3Client) Delete(ctx context.Context, storageID string) error {
	ctx, cancel := c.opContext(ctx)
	defer cancel()
	ctx, span := s3Tracer.Start(ctx, "S3.Delete",
		trace.WithAttributes(
			attribute.String("s3.bucket", c.bucket),
			attribute.String("s3.key", storageID),
		),
	)
	defer span.End()

	_, err := c.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(storageID),
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to delete object")
		return fmt.Errorf("failed to delete object: %w", err)
	}
	return nil
}

// ObjectInfo describes a stored blob, used by the janitor to find orphans.
type ObjectInfo struct {
	Key          string
	LastModified time.Time
}

// ListImages pages through all product image blobs in the bucket.
func (c *S3Client) ListImages(ctx context.Context) ([]ObjectInfo, error) {
	var objects []ObjectInfo

	paginator := s3.NewListObjectsV2Paginator(c.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(c.bucket),
		Prefix: aws.String(keyPrefix),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list objects: %w", err)
		}
		for _, obj := range page.Contents {
			info := ObjectInfo{Key: aws.ToString(obj.Key)}
			if obj.LastModified != nil {
				info.LastModified = *obj.LastModified
			}
			objects = append(objects, info)
		}
	}
	return objects, nil
}

// HealthCheck verifies bucket reachability.
func (c *S3Client) HealthCheck(ctx context.Context) error {
	_, err := c.client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(c.bucket),
	})
	if err != nil {
		return fmt.Errorf("s3 health check failed: %w", err)
	}
	return nil
}

// opContext bounds a single object-store call so one slow upload or delete
// cannot hold a request open past the configured limit.
func (c *S3Client) opContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.cfg.S3OperationTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, c.cfg.S3OperationTimeout)
}

// publicURL derives the externally reachable URL for a key.
func (c *S3Client) publicURL(key string) string {
	if c.cfg.S3PublicBaseURL != "" {
		return strings.TrimSuffix(c.cfg.S3PublicBaseURL, "/") + "/" + key
	}
	if c.cfg.S3Endpoint != "" {
		// Path-style for custom endpoints (MinIO).
		return strings.TrimSuffix(c.cfg.S3Endpoint, "/") + "/" + c.bucket + "/" + key
	}
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", c.bucket, c.cfg.S3Region, key)
}

func extensionFor(contentType string) string {
	switch contentType {
	case "image/jpeg":
		return ".jpg"
	case "image/png":
		return ".png"
	case "image/gif":
		return ".gif"
	}
	return ""
}

func createBucketIfNotExists(ctx context.Context, client *s3.Client, bucket string) error {
	_, err := client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(bucket),
	})
	if err == nil {
		return nil
	}

	_, err = client.CreateBucket(ctx, &s3.CreateBucketInput{
		Bucket: aws.String(bucket),
	})
	if err != nil && !isBucketAlreadyExistsError(err) {
		return fmt.Errorf("failed to create bucket: %w", err)
	}
	return nil
}

func isBucketAlreadyExistsError(err error) bool {
	return err != nil && (strings.Contains(err.Error(), "BucketAlreadyExists") ||
		strings.Contains(err.Error(), "BucketAlreadyOwnedByYou"))
}
