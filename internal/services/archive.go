package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/localnerve/autogift/internal/config"
	"github.com/localnerve/autogift/internal/models"
	"github.com/rs/zerolog/log"
)

// ObjectPutter is the slice of the S3 client the archiver needs
type ObjectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Archiver writes expired events to object storage as JSON lines
type S3Archiver struct {
	client ObjectPutter
	bucket string
	prefix string
	now    func() time.Time
}

// NewS3Archiver wraps an existing client
func NewS3Archiver(client ObjectPutter, bucket, prefix string) *S3Archiver {
	return &S3Archiver{
		client: client,
		bucket: bucket,
		prefix: prefix,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// NewArchiverFromConfig builds the S3 archiver, or returns nil when ARCHIVE_BUCKET is unset.
func NewArchiverFromConfig(ctx context.Context, cfg *config.Config) (EventArchiver, error) {
	if cfg.ArchiveBucket == "" {
		log.Info().Msg("Event archive disabled, expired events will be deleted")
		return nil, nil
	}

	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.ArchiveRegion),
	}
	if cfg.ArchiveAccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.ArchiveAccessKeyID, cfg.ArchiveSecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.ArchiveEndpoint != "" {
			o.BaseEndpoint = aws.String(cfg.ArchiveEndpoint)
			o.UsePathStyle = true
		}
	})

	log.Info().Str("bucket", cfg.ArchiveBucket).Str("prefix", cfg.ArchivePrefix).Msg("Event archive enabled")

	return NewS3Archiver(client, cfg.ArchiveBucket, cfg.ArchivePrefix), nil
}

// Key returns the object key for a batch written at t
func (a *S3Archiver) Key(t time.Time) string {
	return path.Join(a.prefix, t.Format("2006/01/02"), fmt.Sprintf("%d.jsonl", t.UnixNano()))
}

// Archive implements EventArchiver
func (a *S3Archiver) Archive(ctx context.Context, events []models.AutoGiftEventLog) error {
	if len(events) == 0 {
		return nil
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for i := range events {
		if err := enc.Encode(&events[i]); err != nil {
			return fmt.Errorf("failed to encode event %s: %w", events[i].ID, err)
		}
	}

	key := a.Key(a.now())
	_, err := a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(buf.Bytes()),
		ContentType: aws.String("application/x-ndjson"),
	})
	if err != nil {
		return fmt.Errorf("failed to put %s: %w", key, err)
	}

	log.Debug().Str("key", key).Int("events", len(events)).Msg("Archived expired events")
	return nil
}
