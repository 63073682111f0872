// Package objectstore provides async blob lookup against the private
// MinIO/S3-compatible bucket that holds the transcoded HLS hierarchy.
package objectstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"

	"github.com/laurikarhu/streamcdn/internal/apperr"
)

// Reader reads manifest text and media byte streams from the bucket. An
// object_key is the signed resource path with its leading "/" stripped.
type Reader interface {
	// ReadText fully materializes the object as UTF-8. Used for .m3u8
	// manifests only.
	ReadText(ctx context.Context, key string) (string, error)
	// Stream returns a reader over the object's bytes; the caller drains
	// and closes it. Closing releases the underlying connection on both
	// normal completion and early abort.
	Stream(ctx context.Context, key string) (io.ReadCloser, error)
}

// S3Reader is the MinIO-backed Reader used in production.
type S3Reader struct {
	client *s3.Client
	bucket string
}

// Config configures the MinIO/S3-compatible endpoint.
type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseTLS    bool
	Region    string
}

// NewS3Reader builds an S3Reader addressed at a path-style MinIO endpoint,
// following the same endpoint-resolver pattern used to target MinIO with the
// AWS SDK.
func NewS3Reader(ctx context.Context, cfg Config) (*S3Reader, error) {
	scheme := "http"
	if cfg.UseTLS {
		scheme = "https"
	}
	endpointURL := fmt.Sprintf("%s://%s", scheme, cfg.Endpoint)

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")),
	)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = true
		o.BaseEndpoint = &endpointURL
	})

	return &S3Reader{client: client, bucket: cfg.Bucket}, nil
}

// ReadText fully materializes the object as UTF-8 text.
func (r *S3Reader) ReadText(ctx context.Context, key string) (string, error) {
	body, err := r.Stream(ctx, key)
	if err != nil {
		return "", err
	}
	defer body.Close()

	data, err := io.ReadAll(body)
	if err != nil {
		return "", apperr.Wrap(apperr.ErrStorage, err)
	}
	return string(data), nil
}

// Stream opens a reader over the object's bytes via the SDK's streaming
// GetObject call. The caller must Close the returned reader on every exit
// path, including early abort, to release the underlying connection.
func (r *S3Reader) Stream(ctx context.Context, key string) (io.ReadCloser, error) {
	out, err := r.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: &r.bucket,
		Key:    &key,
	})
	if err != nil {
		if isNoSuchKey(err) {
			return nil, apperr.Wrap(apperr.ErrResourceAbsent, err)
		}
		return nil, apperr.Wrap(apperr.ErrStorage, err)
	}
	return out.Body, nil
}

func isNoSuchKey(err error) bool {
	var nsk *s3.NoSuchKey
	if errors.As(err, &nsk) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		code := apiErr.ErrorCode()
		return code == "NoSuchKey" || code == "NotFound"
	}
	return strings.Contains(err.Error(), "NoSuchKey")
}
