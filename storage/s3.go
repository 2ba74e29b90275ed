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

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/ruteri/storage-router/interfaces"
)

// S3Options configures an S3Driver.
type S3Options struct {
	Bucket   string
	Prefix   string
	Region   string
	Endpoint string

	// AccessKey and SecretKey enable writes and signing. Without them the
	// driver can only resolve public URLs and probe the bucket.
	AccessKey string
	SecretKey string

	// PublicBase is the URL objects are publicly reachable under.
	PublicBase string
	PathStyle  bool
}

// S3Driver implements the driver contract on Amazon S3 or a compatible service.
type S3Driver struct {
	client         *s3.S3
	bucket         string
	prefix         string
	publicBase     string
	hasWriteAccess bool
	log            *slog.Logger
}

var (
	_ interfaces.Driver            = (*S3Driver)(nil)
	_ interfaces.Presigner         = (*S3Driver)(nil)
	_ interfaces.PublicURLResolver = (*S3Driver)(nil)
	_ interfaces.SignedURLResolver = (*S3Driver)(nil)
)

// NewS3Driver creates an S3 driver.
func NewS3Driver(opts S3Options, log *slog.Logger) (*S3Driver, error) {
	if opts.Bucket == "" {
		return nil, fmt.Errorf("%w: empty S3 bucket", interfaces.ErrConfiguration)
	}
	if log == nil {
		log = slog.Default()
	}
	if opts.Region == "" {
		opts.Region = "us-east-1"
	}

	cfg := aws.Config{
		Region:           aws.String(opts.Region),
		S3ForcePathStyle: aws.Bool(opts.PathStyle),
	}
	if opts.Endpoint != "" {
		cfg.Endpoint = aws.String(opts.Endpoint)
	}

	hasWriteAccess := opts.AccessKey != "" && opts.SecretKey != ""
	if hasWriteAccess {
		cfg.Credentials = credentials.NewStaticCredentials(opts.AccessKey, opts.SecretKey, "")
	} else {
		cfg.Credentials = credentials.AnonymousCredentials
		log.Debug("No S3 credentials provided, driver limited to public URLs",
			slog.String("bucket", opts.Bucket))
	}

	sess, err := session.NewSession(&cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS session: %w", err)
	}

	publicBase := opts.PublicBase
	if publicBase == "" {
		if opts.Endpoint != "" {
			publicBase = strings.TrimSuffix(opts.Endpoint, "/") + "/" + opts.Bucket
		} else {
			publicBase = fmt.Sprintf("https://%s.s3.%s.amazonaws.com", opts.Bucket, opts.Region)
		}
	}

	return &S3Driver{
		client:         s3.New(sess),
		bucket:         opts.Bucket,
		prefix:         strings.Trim(opts.Prefix, "/"),
		publicBase:     strings.TrimSuffix(publicBase, "/"),
		hasWriteAccess: hasWriteAccess,
		log:            log,
	}, nil
}

// Put uploads data with PutObject. Requires credentials.
func (d *S3Driver) Put(ctx context.Context, key string, data []byte, contentType string) (*interfaces.PutResult, error) {
	if !d.hasWriteAccess {
		return nil, fmt.Errorf("%w: s3 bucket %s has no write credentials", interfaces.ErrUnsupported, d.bucket)
	}

	input := &s3.PutObjectInput{
		Bucket: aws.String(d.bucket),
		Key:    aws.String(d.objectKey(key)),
		Body:   bytes.NewReader(data),
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}

	start := time.Now()
	if _, err := d.client.PutObjectWithContext(ctx, input); err != nil {
		return nil, fmt.Errorf("failed to upload object to S3: %w", err)
	}

	d.log.Debug("Stored blob in S3",
		slog.String("bucket", d.bucket),
		slog.String("key", d.objectKey(key)),
		slog.Duration("duration", time.Since(start)))

	u, _ := d.PublicURL(key)
	return &interfaces.PutResult{Key: key, URL: u}, nil
}

// Presign returns a presigned PUT URL for a direct client upload.
func (d *S3Driver) Presign(ctx context.Context, key string, opts interfaces.PresignOptions) (*interfaces.PresignResult, error) {
	if !d.hasWriteAccess {
		return nil, fmt.Errorf("%w: s3 bucket %s has no signing credentials", interfaces.ErrUnsupported, d.bucket)
	}

	expires := opts.ExpiresIn
	if expires <= 0 {
		expires = interfaces.DefaultPresignExpiry
	}

	input := &s3.PutObjectInput{
		Bucket: aws.String(d.bucket),
		Key:    aws.String(d.objectKey(key)),
	}
	var headers map[string]string
	if opts.ContentType != "" {
		input.ContentType = aws.String(opts.ContentType)
		headers = map[string]string{"Content-Type": opts.ContentType}
	}

	req, _ := d.client.PutObjectRequest(input)
	req.SetContext(ctx)
	uploadURL, err := req.Presign(expires)
	if err != nil {
		return nil, fmt.Errorf("failed to presign S3 upload: %w", err)
	}

	publicURL, _ := d.PublicURL(key)
	return &interfaces.PresignResult{
		Key:       key,
		UploadURL: uploadURL,
		Method:    http.MethodPut,
		Headers:   headers,
		PublicURL: publicURL,
	}, nil
}

// PublicURL synthesizes publicBase/urlencode(objectKey) without I/O.
func (d *S3Driver) PublicURL(key string) (string, bool) {
	if key == "" {
		return "", false
	}
	return d.publicBase + "/" + url.PathEscape(d.objectKey(key)), true
}

// SignedURL returns a presigned GET URL.
func (d *S3Driver) SignedURL(ctx context.Context, key string, expiresIn time.Duration) (string, error) {
	if !d.hasWriteAccess {
		return "", fmt.Errorf("%w: s3 bucket %s has no signing credentials", interfaces.ErrUnsupported, d.bucket)
	}
	if expiresIn <= 0 {
		expiresIn = interfaces.DefaultPresignExpiry
	}

	req, _ := d.client.GetObjectRequest(&s3.GetObjectInput{
		Bucket: aws.String(d.bucket),
		Key:    aws.String(d.objectKey(key)),
	})
	req.SetContext(ctx)
	return req.Presign(expiresIn)
}

// Delete removes the object. S3 deletes are idempotent; NoSuchKey is ignored as well.
func (d *S3Driver) Delete(ctx context.Context, key string) error {
	if !d.hasWriteAccess {
		return fmt.Errorf("%w: s3 bucket %s has no write credentials", interfaces.ErrUnsupported, d.bucket)
	}

	_, err := d.client.DeleteObjectWithContext(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(d.bucket),
		Key:    aws.String(d.objectKey(key)),
	})
	if err != nil {
		if aerr, ok := err.(awserr.Error); ok && aerr.Code() == s3.ErrCodeNoSuchKey {
			return nil
		}
		return fmt.Errorf("failed to delete object from S3: %w", err)
	}
	return nil
}

// Health heads the bucket.
func (d *S3Driver) Health(ctx context.Context) interfaces.HealthStatus {
	start := time.Now()
	_, err := d.client.HeadBucketWithContext(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(d.bucket),
	})
	if err != nil {
		d.log.Warn("S3 backend unavailable",
			slog.String("bucket", d.bucket),
			"err", err,
			slog.Duration("duration", time.Since(start)))
		return interfaces.Unhealthy(err)
	}
	return interfaces.Healthy()
}

func (d *S3Driver) objectKey(key string) string {
	key = strings.TrimPrefix(key, "/")
	if d.prefix == "" {
		return key
	}
	return path.Join(d.prefix, key)
}
