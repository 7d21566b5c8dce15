// Package objectstore moves backup artifacts to and from S3-compatible
// object storage. Missing configuration degrades gracefully: the caller gets
// no client at all and simply skips cross-region steps.
package objectstore

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/sethvargo/go-retry"
)

// KeyPrefix is the bucket-side namespace for replicated artifacts.
const KeyPrefix = "backups/"

const uploadAttempts = 3

// uploadBackoff is a hook so tests can drop the retry delays.
var uploadBackoff = func() retry.Backoff {
	return retry.WithMaxRetries(uploadAttempts-1, retry.NewExponential(time.Second))
}

// api is the subset of the S3 client used here, as an interface for testability.
type api interface {
	PutObject(ctx context.Context, input *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, input *s3.GetObjectInput, opts ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	DeleteObject(ctx context.Context, input *s3.DeleteObjectInput, opts ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// Config holds S3-compatible storage configuration.
type Config struct {
	Endpoint  string
	Bucket    string
	Region    string
	AccessKey string
	SecretKey string
}

// Enabled reports whether replication credentials were supplied at startup.
// The bucket is checked separately at upload time so a missing bucket name
// surfaces as an upload error rather than silently disabling replication.
func (c Config) Enabled() bool {
	return c.AccessKey != "" && c.SecretKey != "" && c.Region != ""
}

// Client wraps the S3 API for single-artifact transfers.
type Client struct {
	api    api
	bucket string
}

// New builds a Client from the given configuration, or nil if replication
// is not configured.
func New(cfg Config) *Client {
	if !cfg.Enabled() {
		return nil
	}
	opts := s3.Options{
		Region:       cfg.Region,
		Credentials:  credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		UsePathStyle: true,
	}
	if cfg.Endpoint != "" {
		opts.BaseEndpoint = aws.String(cfg.Endpoint)
	}
	return &Client{api: s3.New(opts), bucket: cfg.Bucket}
}

// Upload streams the local artifact to the bucket under backups/{filename}
// with server-side encryption and returns the object key. Transient errors
// are retried with capped exponential backoff.
func (c *Client) Upload(ctx context.Context, localPath string) (string, error) {
	if c.bucket == "" {
		return "", fmt.Errorf("upload %s: no bucket configured", filepath.Base(localPath))
	}

	key := KeyPrefix + filepath.Base(localPath)

	err := retry.Do(ctx, uploadBackoff(), func(ctx context.Context) error {
		f, err := os.Open(localPath)
		if err != nil {
			return err
		}
		defer f.Close()

		stat, err := f.Stat()
		if err != nil {
			return err
		}

		_, err = c.api.PutObject(ctx, &s3.PutObjectInput{
			Bucket:               aws.String(c.bucket),
			Key:                  aws.String(key),
			Body:                 f,
			ContentLength:        aws.Int64(stat.Size()),
			ServerSideEncryption: types.ServerSideEncryptionAes256,
		})
		if err != nil {
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("upload %s: %w", key, err)
	}
	return key, nil
}

// Download fetches the object and streams its body into a newly created
// local file at destPath, creating the destination directory first.
func (c *Client) Download(ctx context.Context, key, destPath string) error {
	result, err := c.api.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("download %s: %w", key, err)
	}
	if result.Body == nil {
		return fmt.Errorf("download %s: empty response body", key)
	}
	defer result.Body.Close()

	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return fmt.Errorf("create destination dir: %w", err)
	}

	out, err := os.Create(destPath)
	if err != nil {
		return fmt.Errorf("create %s: %w", destPath, err)
	}
	if _, err := io.Copy(out, result.Body); err != nil {
		out.Close()
		os.Remove(destPath)
		return fmt.Errorf("write %s: %w", destPath, err)
	}
	return out.Close()
}

// Delete removes the object. Missing objects are not an error on S3.
func (c *Client) Delete(ctx context.Context, key string) error {
	_, err := c.api.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}
