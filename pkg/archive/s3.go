// Package archive ships processed exchange files to long-term object
// storage. The local archive folder stays authoritative; the S3 copy is
// best-effort and its failures never fail ingestion.
package archive

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"path"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// ObjectPutter is the slice of the S3 client the sink needs.
type ObjectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// SinkConfig holds S3 sink configuration.
type SinkConfig struct {
	Bucket   string
	Region   string
	Endpoint string // custom endpoint for MinIO/LocalStack
	Prefix   string // optional key prefix
}

// S3Sink uploads processed files under
// <prefix><company>/<store>/<yyyy>/<mm>/<dd>/<name>.
type S3Sink struct {
	client ObjectPutter
	bucket string
	prefix string
	log    *slog.Logger
	now    func() time.Time
}

// NewS3Sink builds a sink over the default AWS credential chain.
func NewS3Sink(ctx context.Context, cfg SinkConfig, log *slog.Logger) (*S3Sink, error) {
	var loadOpts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(cfg.Region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})
	return NewS3SinkWithClient(client, cfg, log), nil
}

// NewS3SinkWithClient builds a sink over an existing client.
func NewS3SinkWithClient(client ObjectPutter, cfg SinkConfig, log *slog.Logger) *S3Sink {
	return &S3Sink{
		client: client,
		bucket: cfg.Bucket,
		prefix: cfg.Prefix,
		log:    log.With("component", "archive"),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Upload stores one processed file. The key is date-partitioned by
// upload time so lifecycle rules can expire whole days.
func (s *S3Sink) Upload(ctx context.Context, companyID, storeID, name string, data []byte) error {
	day := s.now()
	key := path.Join(s.prefix, companyID, storeID,
		fmt.Sprintf("%04d/%02d/%02d", day.Year(), day.Month(), day.Day()), name)

	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("text/xml"),
	})
	if err != nil {
		return fmt.Errorf("s3 put %s: %w", key, err)
	}
	s.log.Debug("file archived to object storage", "bucket", s.bucket, "key", key)
	return nil
}
