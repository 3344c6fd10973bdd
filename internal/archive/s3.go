// Package archive uploads monitoring-state snapshots to S3-compatible storage.
package archive

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/irfndi/celebrum-arbwatch/internal/config"
)

// PutObjectAPI is the subset of the S3 client used by the archiver.
type PutObjectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Archiver writes snapshots under a key prefix in one bucket.
type S3Archiver struct {
	client PutObjectAPI
	bucket string
	prefix string
}

// NewS3Archiver builds an S3 client from cfg. Static credentials are used when
// an access key is configured; otherwise the default AWS chain applies.
func NewS3Archiver(ctx context.Context, cfg config.ArchiveConfig) (*S3Archiver, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("archive: bucket name is required")
	}
	if cfg.Region == "" {
		return nil, fmt.Errorf("archive: region is required")
	}

	loadOpts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.AccessKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("archive: load aws config: %w", err)
	}

	var s3Opts []func(*s3.Options)
	if cfg.Endpoint != "" {
		endpoint := normaliseEndpoint(cfg.Endpoint)
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(endpoint)
		})
	}
	if cfg.ForcePathStyle {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.UsePathStyle = true
		})
	}

	return NewS3ArchiverWithClient(s3.NewFromConfig(awsCfg, s3Opts...), cfg.Bucket, cfg.Prefix), nil
}

// NewS3ArchiverWithClient wraps an existing client.
func NewS3ArchiverWithClient(client PutObjectAPI, bucket, prefix string) *S3Archiver {
	return &S3Archiver{
		client: client,
		bucket: bucket,
		prefix: strings.Trim(prefix, "/"),
	}
}

// Key returns the object key used for name.
func (a *S3Archiver) Key(name string) string {
	if a.prefix == "" {
		return name
	}
	return path.Join(a.prefix, name)
}

// Archive uploads data as a JSON object named name.
func (a *S3Archiver) Archive(ctx context.Context, name string, data []byte) error {
	_, err := a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(a.bucket),
		Key:           aws.String(a.Key(name)),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
		ContentType:   aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("archive: put %s/%s: %w", a.bucket, a.Key(name), err)
	}
	return nil
}

// normaliseEndpoint prepends https:// when the endpoint has no scheme.
func normaliseEndpoint(endpoint string) string {
	if strings.Contains(endpoint, "://") {
		return endpoint
	}
	return "https://" + endpoint
}
