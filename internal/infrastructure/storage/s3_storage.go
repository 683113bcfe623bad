// Package storage archives raw feed payloads in S3-compatible object storage.
package storage

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/notaria/backend/internal/infrastructure/config"
	"github.com/notaria/backend/internal/infrastructure/logger"
	"go.uber.org/zap"
)

// objectAPI is the subset of *s3.Client the archive needs
type objectAPI interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	HeadBucket(ctx context.Context, in *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
	CreateBucket(ctx context.Context, in *s3.CreateBucketInput, optFns ...func(*s3.Options)) (*s3.CreateBucketOutput, error)
}

// S3ArchiveStore writes every ingested file under
// <prefix>/<yyyy>/<mm>/<dd>/<hhmmss>_<sha8>_<name>.
// It works with AWS S3 and compatible servers such as MinIO.
type S3ArchiveStore struct {
	client objectAPI
	bucket string
	prefix string
	now    func() time.Time
	logger *zap.Logger
}

// S3ArchiveOption configures an S3ArchiveStore
type S3ArchiveOption func(*S3ArchiveStore)

// WithLogger sets the logger
func WithLogger(l *zap.Logger) S3ArchiveOption {
	return func(s *S3ArchiveStore) {
		s.logger = l
	}
}

// WithClock overrides time.Now for key generation
func WithClock(now func() time.Time) S3ArchiveOption {
	return func(s *S3ArchiveStore) {
		s.now = now
	}
}

// NewS3ArchiveStore builds a store from cfg. Without static keys the
// default AWS credential chain is used.
func NewS3ArchiveStore(ctx context.Context, cfg *config.StorageConfig, opts ...S3ArchiveOption) (*S3ArchiveStore, error) {
	if cfg == nil {
		return nil, errors.New("storage configuration is required")
	}
	if cfg.Bucket == "" {
		return nil, errors.New("storage bucket is required")
	}
	if (cfg.AccessKeyID == "") != (cfg.SecretAccessKey == "") {
		return nil, errors.New("storage access key and secret key must be set together")
	}

	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}
	loadOpts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(region)}
	if cfg.AccessKeyID != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS config: %w", err)
	}

	endpoint := normalizeEndpoint(cfg.Endpoint)
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.UsePathStyle
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	})
	return newS3ArchiveStore(client, cfg.Bucket, cfg.Prefix, opts...), nil
}

func newS3ArchiveStore(client objectAPI, bucket, prefix string, opts ...S3ArchiveOption) *S3ArchiveStore {
	s := &S3ArchiveStore{
		client: client,
		bucket: bucket,
		prefix: strings.Trim(prefix, "/"),
		now:    time.Now,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func normalizeEndpoint(endpoint string) string {
	if endpoint == "" || strings.HasPrefix(endpoint, "http://") || strings.HasPrefix(endpoint, "https://") {
		return endpoint
	}
	return "https://" + endpoint
}

// EnsureBucket creates the bucket when it does not exist yet
func (s *S3ArchiveStore) EnsureBucket(ctx context.Context) error {
	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(s.bucket)})
	if err == nil {
		return nil
	}
	var notFound *types.NotFound
	var noSuchBucket *types.NoSuchBucket
	if !errors.As(err, &notFound) && !errors.As(err, &noSuchBucket) {
		return fmt.Errorf("failed to check bucket existence: %w", err)
	}

	s.logger.Info("Creating archive bucket", zap.String("bucket", s.bucket))
	_, err = s.client.CreateBucket(ctx, &s3.CreateBucketInput{Bucket: aws.String(s.bucket)})
	var owned *types.BucketAlreadyOwnedByYou
	if err != nil && !errors.As(err, &owned) {
		return fmt.Errorf("failed to create bucket: %w", err)
	}
	return nil
}

// Archive stores data and returns the object key
func (s *S3ArchiveStore) Archive(ctx context.Context, fileName string, data []byte) (string, error) {
	sum := sha256.Sum256(data)
	digest := hex.EncodeToString(sum[:])
	key := s.objectKey(fileName, digest[:8])

	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
		ContentType:   aws.String("application/xml"),
		Metadata: map[string]string{
			"original-name": fileName,
			"sha256":        digest,
		},
	})
	if err != nil {
		return "", fmt.Errorf("failed to archive %s: %w", fileName, err)
	}

	logger.L(ctx, s.logger).Debug("Archived feed file",
		zap.String("key", key),
		zap.Int("bytes", len(data)))
	return key, nil
}

func (s *S3ArchiveStore) objectKey(fileName, digest string) string {
	now := s.now().UTC()
	name := sanitizeFileName(fileName)
	return path.Join(s.prefix, now.Format("2006/01/02"), now.Format("150405")+"_"+digest+"_"+name)
}

// sanitizeFileName drops directories and anything outside [A-Za-z0-9._-]
func sanitizeFileName(name string) string {
	name = path.Base(strings.ReplaceAll(name, "\\", "/"))
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			b.WriteRune(r)
		case r == ' ':
			b.WriteByte('_')
		}
	}
	if b.Len() == 0 || name == "." || name == "/" {
		return "feed.xml"
	}
	return b.String()
}
