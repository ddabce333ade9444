package storage

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	apperrors "go-image-editor/internal/errors"
	"go-image-editor/pkg/models"
)

// S3Config holds S3 connection parameters
type S3Config struct {
	Bucket          string
	Region          string
	Endpoint        string // optional: MinIO, localstack, etc.
	AccessKeyID     string
	SecretAccessKey string
	PublicBaseURL   string
}

// S3API is the slice of the S3 client the store needs
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Store keeps images in one S3 (or S3-compatible) bucket
type S3Store struct {
	client  S3API
	cfg     S3Config
	fetcher ImageFetcher
}

// NewS3Client builds an S3 client. Explicit keys take precedence over the
// default credential chain; a custom endpoint switches to path-style addressing.
func NewS3Client(ctx context.Context, cfg S3Config) (*s3.Client, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")))
	}
	if cfg.Endpoint != "" {
		opts = append(opts, awsconfig.WithHTTPClient(&http.Client{
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		}))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, apperrors.NewInternalError("failed to load aws config", err)
	}

	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	}), nil
}

// NewS3Storage creates a store on top of client
func NewS3Storage(client S3API, cfg S3Config, fetcher ImageFetcher) (*S3Store, error) {
	if client == nil {
		return nil, apperrors.NewInternalError("s3 storage: client must not be nil", nil)
	}
	if cfg.Bucket == "" {
		return nil, apperrors.NewValidationError("s3 storage: bucket is required", nil)
	}
	return &S3Store{client: client, cfg: cfg, fetcher: fetcher}, nil
}

// Name identifies the backend
func (s *S3Store) Name() string { return "s3" }

// Upload stores an original image and returns its URL and asset id
func (s *S3Store) Upload(ctx context.Context, filename, contentType string, data []byte) (*models.UploadResult, error) {
	return upload(ctx, s.put, filename, contentType, data)
}

// Persist stores the bytes behind imageURL as the final image
func (s *S3Store) Persist(ctx context.Context, imageURL string, transformations []models.Transformation, metadata map[string]string) (*models.SaveResult, error) {
	return persist(ctx, s.fetcher, s.put, imageURL, transformations, metadata)
}

func (s *S3Store) put(ctx context.Context, key, contentType string, data []byte, metadata map[string]string) (string, error) {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.cfg.Bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
		Metadata:    metadata,
	})
	if err != nil {
		if ctx.Err() != nil {
			return "", apperrors.NewCancellationError("s3 upload aborted", ctx.Err())
		}
		return "", apperrors.NewNetworkError("s3 upload failed", err)
	}
	return s.objectURL(key), nil
}

func (s *S3Store) objectURL(key string) string {
	switch {
	case s.cfg.PublicBaseURL != "":
		return strings.TrimRight(s.cfg.PublicBaseURL, "/") + "/" + key
	case s.cfg.Endpoint != "":
		return fmt.Sprintf("%s/%s/%s", strings.TrimRight(s.cfg.Endpoint, "/"), s.cfg.Bucket, key)
	}
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", s.cfg.Bucket, s.cfg.Region, key)
}
