package store

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3Config holds S3 client configuration.
type S3Config struct {
	// Region is the AWS region (e.g., "us-east-1")
	Region string

	// Bucket is the bucket to read from
	Bucket string

	// Endpoint overrides the default S3 endpoint (for S3-compatible services)
	Endpoint string

	// UsePathStyle forces path-style addressing (for MinIO, LocalStack)
	UsePathStyle bool

	// Credentials (optional - uses default chain if not provided)
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string

	// Timeouts
	ListTimeout     time.Duration
	DownloadTimeout time.Duration

	// PageSize bounds ListObjectsV2 page sizes (0 = service default)
	PageSize int32
}

// DefaultS3Config returns sensible defaults.
func DefaultS3Config(bucket, region string) S3Config {
	return S3Config{
		Bucket:          bucket,
		Region:          region,
		ListTimeout:     30 * time.Second,
		DownloadTimeout: 15 * time.Minute,
	}
}

// S3Store reads objects from an S3 bucket.
type S3Store struct {
	cfg    S3Config
	client *s3.Client
}

// NewS3Store creates an S3-backed object store.
func NewS3Store(ctx context.Context, cfg S3Config) (*S3Store, error) {
	var opts []func(*awsconfig.LoadOptions) error

	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}

	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(
				cfg.AccessKeyID,
				cfg.SecretAccessKey,
				cfg.SessionToken,
			),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	s3Opts := []func(*s3.Options){}

	if cfg.Endpoint != "" {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		})
	}

	if cfg.UsePathStyle {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.UsePathStyle = true
		})
	}

	return &S3Store{
		cfg:    cfg,
		client: s3.NewFromConfig(awsCfg, s3Opts...),
	}, nil
}

// Bucket returns the configured bucket name.
func (s *S3Store) Bucket() string {
	return s.cfg.Bucket
}

// List returns a paginated lister over keys with the given prefix.
func (s *S3Store) List(ctx context.Context, prefix string) Lister {
	return &s3Lister{store: s, prefix: prefix}
}

type s3Lister struct {
	store  *S3Store
	prefix string

	token *string
	done  bool
}

func (l *s3Lister) Next(ctx context.Context) ([]Object, bool, error) {
	if l.done {
		return nil, false, nil
	}

	ctx, cancel := context.WithTimeout(ctx, l.store.cfg.ListTimeout)
	defer cancel()

	input := &s3.ListObjectsV2Input{
		Bucket:            aws.String(l.store.cfg.Bucket),
		ContinuationToken: l.token,
	}
	if l.prefix != "" {
		input.Prefix = aws.String(l.prefix)
	}
	if l.store.cfg.PageSize > 0 {
		input.MaxKeys = aws.Int32(l.store.cfg.PageSize)
	}

	output, err := l.store.client.ListObjectsV2(ctx, input)
	if err != nil {
		return nil, false, classify("list", err)
	}

	objects := make([]Object, len(output.Contents))
	for i, obj := range output.Contents {
		objects[i] = Object{
			Key:          aws.ToString(obj.Key),
			Size:         aws.ToInt64(obj.Size),
			LastModified: aws.ToTime(obj.LastModified),
			ETag:         aws.ToString(obj.ETag),
		}
	}

	if aws.ToBool(output.IsTruncated) {
		l.token = output.NextContinuationToken
	} else {
		l.done = true
	}

	return objects, true, nil
}

// Open returns a reader for the object at key.
func (s *S3Store) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.DownloadTimeout)

	output, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.cfg.Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		cancel()
		return nil, classify("get "+key, err)
	}

	// Wrap to cancel context on close
	return &cancelOnCloseReader{
		ReadCloser: output.Body,
		cancel:     cancel,
	}, nil
}

type cancelOnCloseReader struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (r *cancelOnCloseReader) Close() error {
	r.cancel()
	return r.ReadCloser.Close()
}
