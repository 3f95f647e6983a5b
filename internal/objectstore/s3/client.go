package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awssdkconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	awsconfig "github.com/scttfrdmn/cargoship/pkg/aws/config"
	cargoships3 "github.com/scttfrdmn/cargoship/pkg/aws/s3"

	"github.com/s3fs-go/s3fs/internal/objectstore"
	"github.com/s3fs-go/s3fs/internal/retry"
)

// Client wraps the AWS S3 SDK client to satisfy objectstore.Client,
// applying a bounded retry policy around every call and using cargoship's
// transporter to optimize whole-object uploads from the cache store's
// staged files.
type Client struct {
	client      *s3.Client
	bucket      string
	transporter *cargoships3.Transporter
	cfg         *Config
	retryCfg    retry.Config
	log         *slog.Logger
}

// New creates a Client for bucket using the given static credentials and
// configuration.
func New(ctx context.Context, bucket, accessKeyID, secretAccessKey string, cfg *Config, log *slog.Logger) (*Client, error) {
	if bucket == "" {
		return nil, fmt.Errorf("s3: bucket name cannot be empty")
	}
	if cfg == nil {
		cfg = NewDefaultConfig()
	}

	awsCfg, err := awssdkconfig.LoadDefaultConfig(ctx,
		awssdkconfig.WithRegion(cfg.Region),
		awssdkconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(accessKeyID, secretAccessKey, "")),
		awssdkconfig.WithRetryMaxAttempts(cfg.MaxRetries),
	)
	if err != nil {
		return nil, fmt.Errorf("s3: loading AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		if cfg.ForcePathStyle {
			o.UsePathStyle = true
		}
	})

	var transporter *cargoships3.Transporter
	if cfg.EnableCargoShipOptimization {
		cargoCfg := awsconfig.S3Config{
			Bucket:             bucket,
			StorageClass:       awsconfig.StorageClassStandard,
			MultipartThreshold: 32 * 1024 * 1024,
			MultipartChunkSize: 16 * 1024 * 1024,
			Concurrency:        4,
		}
		transporter = cargoships3.NewTransporter(client, cargoCfg)
	}

	retryCfg := retry.DefaultConfig()
	retryCfg.MaxAttempts = cfg.MaxRetries + 1
	retryCfg.PerCallTimeout = cfg.RequestTimeout

	return &Client{
		client:      client,
		bucket:      bucket,
		transporter: transporter,
		cfg:         cfg,
		retryCfg:    retryCfg,
		log:         log,
	}, nil
}

func isNoSuchKey(err error) bool {
	var nsk *s3types.NoSuchKey
	if errors.As(err, &nsk) {
		return true
	}
	var notFound *s3types.NotFound
	return errors.As(err, &notFound)
}

// doRetry wraps fn with the configured retry budget, classifying
// ErrNotFound as terminal (never worth retrying).
func (c *Client) doRetry(ctx context.Context, fn func(context.Context) error) error {
	return retry.Do(ctx, c.retryCfg, func(err error) bool {
		return !errors.Is(err, objectstore.ErrNotFound)
	}, fn)
}

func extractMetadata(headers map[string]string) map[string]string {
	out := make(map[string]string, len(headers))
	for k, v := range headers {
		out[strings.ToLower(k)] = v
	}
	return out
}

func (c *Client) Head(ctx context.Context, key string) (objectstore.HeadResult, error) {
	var result objectstore.HeadResult
	err := c.doRetry(ctx, func(ctx context.Context) error {
		out, err := c.client.HeadObject(ctx, &s3.HeadObjectInput{
			Bucket: aws.String(c.bucket),
			Key:    aws.String(key),
		})
		if err != nil {
			if isNoSuchKey(err) {
				return objectstore.ErrNotFound
			}
			return err
		}
		result = objectstore.HeadResult{
			Headers:      headersWithMeta(out.Metadata),
			Size:         aws.ToInt64(out.ContentLength),
			LastModified: aws.ToTime(out.LastModified),
		}
		return nil
	})
	return result, err
}

func headersWithMeta(metadata map[string]string) map[string]string {
	out := make(map[string]string, len(metadata))
	for k, v := range metadata {
		out["x-amz-meta-"+strings.ToLower(k)] = v
	}
	return out
}

func (c *Client) Get(ctx context.Context, key string) ([]byte, error) {
	body, _, err := c.GetHeaders(ctx, key)
	return body, err
}

func (c *Client) GetHeaders(ctx context.Context, key string) ([]byte, map[string]string, error) {
	var body []byte
	var headers map[string]string
	err := c.doRetry(ctx, func(ctx context.Context) error {
		out, err := c.client.GetObject(ctx, &s3.GetObjectInput{
			Bucket: aws.String(c.bucket),
			Key:    aws.String(key),
		})
		if err != nil {
			if isNoSuchKey(err) {
				return objectstore.ErrNotFound
			}
			return err
		}
		defer out.Body.Close()
		data, readErr := io.ReadAll(out.Body)
		if readErr != nil {
			return readErr
		}
		body = data
		headers = headersWithMeta(out.Metadata)
		return nil
	})
	return body, headers, err
}

func (c *Client) GetRange(ctx context.Context, key string, offset, size int64) ([]byte, error) {
	rangeHeader := fmt.Sprintf("bytes=%d-%d", offset, offset+size-1)
	var body []byte
	err := c.doRetry(ctx, func(ctx context.Context) error {
		out, err := c.client.GetObject(ctx, &s3.GetObjectInput{
			Bucket: aws.String(c.bucket),
			Key:    aws.String(key),
			Range:  aws.String(rangeHeader),
		})
		if err != nil {
			if isNoSuchKey(err) {
				return objectstore.ErrNotFound
			}
			return err
		}
		defer out.Body.Close()
		data, readErr := io.ReadAll(out.Body)
		if readErr != nil {
			return readErr
		}
		body = data
		return nil
	})
	return body, err
}

func (c *Client) Put(ctx context.Context, key string, body []byte, headers map[string]string) error {
	return c.doRetry(ctx, func(ctx context.Context) error {
		_, err := c.client.PutObject(ctx, &s3.PutObjectInput{
			Bucket:   aws.String(c.bucket),
			Key:      aws.String(key),
			Body:     bytes.NewReader(body),
			Metadata: extractMetadata(stripMetaPrefix(headers)),
		})
		return err
	})
}

// stripMetaPrefix strips only the SDK-level "x-amz-meta-" prefix, leaving
// the envelope's own "s3fs-" namespace intact, so headersWithMeta can
// reconstruct the exact header FromHeaders looks up.
func stripMetaPrefix(headers map[string]string) map[string]string {
	out := make(map[string]string, len(headers))
	for k, v := range headers {
		out[strings.TrimPrefix(k, "x-amz-meta-")] = v
	}
	return out
}

// PutFromFile uploads localPath's contents as key, using cargoship's
// optimized transporter when available and falling back to a plain PUT
// otherwise.
func (c *Client) PutFromFile(ctx context.Context, key, localPath string, headers map[string]string) error {
	info, err := os.Stat(localPath)
	if err != nil {
		return err
	}

	if c.transporter != nil {
		if c.log != nil {
			c.log.Debug("uploading via cargoship transporter", "key", key, "size", info.Size())
		}
		f, err := os.Open(localPath)
		if err == nil {
			defer f.Close()
			archive := cargoships3.Archive{
				Key:      key,
				Reader:   f,
				Size:     info.Size(),
				Metadata: stripMetaPrefix(headers),
			}
			uploadErr := c.doRetry(ctx, func(ctx context.Context) error {
				_, err := c.transporter.Upload(ctx, archive)
				return err
			})
			if uploadErr == nil {
				return nil
			}
			if c.log != nil {
				c.log.Warn("cargoship upload failed, falling back to plain PUT", "key", key, "error", uploadErr)
			}
		}
	}

	body, err := os.ReadFile(localPath)
	if err != nil {
		return err
	}
	return c.Put(ctx, key, body, headers)
}

func (c *Client) PutCopy(ctx context.Context, key, copySource string, headers map[string]string) error {
	return c.doRetry(ctx, func(ctx context.Context) error {
		_, err := c.client.CopyObject(ctx, &s3.CopyObjectInput{
			Bucket:            aws.String(c.bucket),
			Key:               aws.String(key),
			CopySource:        aws.String(copySource),
			Metadata:          extractMetadata(stripMetaPrefix(headers)),
			MetadataDirective: s3types.MetadataDirectiveReplace,
		})
		if err != nil && isNoSuchKey(err) {
			return objectstore.ErrNotFound
		}
		return err
	})
}

func (c *Client) Delete(ctx context.Context, key string) error {
	// DeleteObject succeeds whether or not the key exists, so check first
	// in order to report a missing key as ErrNotFound.
	if _, err := c.Head(ctx, key); err != nil {
		return err
	}
	return c.doRetry(ctx, func(ctx context.Context) error {
		_, err := c.client.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(c.bucket),
			Key:    aws.String(key),
		})
		return err
	})
}

func (c *Client) ListPrefix(ctx context.Context, prefix, delimiter string) ([]objectstore.ListEntry, error) {
	var entries []objectstore.ListEntry
	err := c.doRetry(ctx, func(ctx context.Context) error {
		entries = nil
		var token *string
		for {
			out, err := c.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
				Bucket:            aws.String(c.bucket),
				Prefix:            aws.String(prefix),
				Delimiter:         aws.String(delimiter),
				ContinuationToken: token,
			})
			if err != nil {
				return err
			}
			for _, obj := range out.Contents {
				entries = append(entries, objectstore.ListEntry{
					Key:     aws.ToString(obj.Key),
					Size:    aws.ToInt64(obj.Size),
					ModTime: aws.ToTime(obj.LastModified),
				})
			}
			for _, p := range out.CommonPrefixes {
				entries = append(entries, objectstore.ListEntry{Key: aws.ToString(p.Prefix)})
			}
			if !aws.ToBool(out.IsTruncated) {
				return nil
			}
			token = out.NextContinuationToken
		}
	})
	return entries, err
}

func (c *Client) HealthCheck(ctx context.Context) error {
	return c.doRetry(ctx, func(ctx context.Context) error {
		_, err := c.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(c.bucket)})
		return err
	})
}
