package storage

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/ruteri/storage-router/interfaces"
)

// MinioOptions configures a MinioDriver.
type MinioOptions struct {
	Endpoint  string
	Bucket    string
	Prefix    string
	Region    string
	AccessKey string
	SecretKey string
	Secure    bool

	// PublicBase enables PublicURL; empty means objects are not publicly addressable.
	PublicBase string
}

// MinioDriver implements the driver contract on MinIO and other S3-compatible stores.
type MinioDriver struct {
	client     *minio.Client
	bucket     string
	prefix     string
	publicBase string
	log        *slog.Logger
}

var (
	_ interfaces.Driver            = (*MinioDriver)(nil)
	_ interfaces.Presigner         = (*MinioDriver)(nil)
	_ interfaces.PublicURLResolver = (*MinioDriver)(nil)
	_ interfaces.SignedURLResolver = (*MinioDriver)(nil)
)

// NewMinioDriver creates a MinIO driver. No network calls are made until the first operation.
func NewMinioDriver(opts MinioOptions, log *slog.Logger) (*MinioDriver, error) {
	if opts.Endpoint == "" || opts.Bucket == "" {
		return nil, fmt.Errorf("%w: minio provider needs endpoint and bucket", interfaces.ErrConfiguration)
	}
	if log == nil {
		log = slog.Default()
	}
	if opts.Region == "" {
		// A fixed region skips the bucket-location lookup when presigning.
		opts.Region = "us-east-1"
	}

	client, err := minio.New(opts.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(opts.AccessKey, opts.SecretKey, ""),
		Secure: opts.Secure,
		Region: opts.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}

	return &MinioDriver{
		client:     client,
		bucket:     opts.Bucket,
		prefix:     strings.Trim(opts.Prefix, "/"),
		publicBase: strings.TrimSuffix(opts.PublicBase, "/"),
		log:        log,
	}, nil
}

func (d *MinioDriver) Put(ctx context.Context, key string, data []byte, contentType string) (*interfaces.PutResult, error) {
	objectKey := d.objectKey(key)
	info, err := d.client.PutObject(ctx, d.bucket, objectKey, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to upload object to minio: %w", err)
	}

	d.log.Debug("Stored blob in minio",
		slog.String("bucket", d.bucket),
		slog.String("key", objectKey),
		slog.String("etag", info.ETag))

	u, _ := d.PublicURL(key)
	return &interfaces.PutResult{Key: key, URL: u}, nil
}

func (d *MinioDriver) Presign(ctx context.Context, key string, opts interfaces.PresignOptions) (*interfaces.PresignResult, error) {
	expires := opts.ExpiresIn
	if expires <= 0 {
		expires = interfaces.DefaultPresignExpiry
	}

	u, err := d.client.PresignedPutObject(ctx, d.bucket, d.objectKey(key), expires)
	if err != nil {
		return nil, fmt.Errorf("failed to presign minio upload: %w", err)
	}

	var headers map[string]string
	if opts.ContentType != "" {
		headers = map[string]string{"Content-Type": opts.ContentType}
	}
	publicURL, _ := d.PublicURL(key)
	return &interfaces.PresignResult{
		Key:       key,
		UploadURL: u.String(),
		Method:    http.MethodPut,
		Headers:   headers,
		PublicURL: publicURL,
	}, nil
}

func (d *MinioDriver) PublicURL(key string) (string, bool) {
	if d.publicBase == "" || key == "" {
		return "", false
	}
	return d.publicBase + "/" + escapeKeyPath(d.objectKey(key)), true
}

func (d *MinioDriver) SignedURL(ctx context.Context, key string, expiresIn time.Duration) (string, error) {
	if expiresIn <= 0 {
		expiresIn = interfaces.DefaultPresignExpiry
	}
	u, err := d.client.PresignedGetObject(ctx, d.bucket, d.objectKey(key), expiresIn, url.Values{})
	if err != nil {
		return "", fmt.Errorf("failed to presign minio download: %w", err)
	}
	return u.String(), nil
}

// Delete removes the object, treating NoSuchKey as already gone.
func (d *MinioDriver) Delete(ctx context.Context, key string) error {
	err := d.client.RemoveObject(ctx, d.bucket, d.objectKey(key), minio.RemoveObjectOptions{})
	if err != nil {
		errResp := minio.ToErrorResponse(err)
		if errResp.Code == "NoSuchKey" || errResp.Code == "NotFound" {
			return nil
		}
		return fmt.Errorf("failed to delete object from minio: %w", err)
	}
	return nil
}

func (d *MinioDriver) Health(ctx context.Context) interfaces.HealthStatus {
	exists, err := d.client.BucketExists(ctx, d.bucket)
	if err != nil {
		d.log.Warn("Minio backend unavailable", slog.String("bucket", d.bucket), "err", err)
		return interfaces.Unhealthy(err)
	}
	if !exists {
		return interfaces.HealthStatus{OK: false, Message: fmt.Sprintf("bucket %s does not exist", d.bucket)}
	}
	return interfaces.Healthy()
}

func (d *MinioDriver) objectKey(key string) string {
	key = strings.TrimPrefix(key, "/")
	if d.prefix == "" {
		return key
	}
	return path.Join(d.prefix, key)
}
