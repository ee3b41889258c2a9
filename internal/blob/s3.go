package blob

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3BlobStore stores payloads in an S3-compatible bucket. Works with AWS S3,
// Cloudflare R2 and MinIO; non-AWS services use a custom endpoint with
// path-style addressing.
type S3BlobStore struct {
	client     *s3.Client
	presign    *s3.PresignClient
	bucket     string
	presignTTL time.Duration
}

// S3Options configures an S3BlobStore
type S3Options struct {
	Endpoint   string
	AccessKey  string
	SecretKey  string
	Bucket     string
	Region     string
	PresignTTL time.Duration
}

// NewS3BlobStore creates a bucket-backed blob store. Put returns presigned
// GET URLs so documents stay fetchable without public bucket access.
func NewS3BlobStore(ctx context.Context, opts S3Options) (*S3BlobStore, error) {
	region := opts.Region
	if region == "" {
		region = "auto"
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			opts.AccessKey, opts.SecretKey, "",
		)),
		awsconfig.WithRegion(region),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to configure S3 client: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
			o.UsePathStyle = true
		}
	})

	ttl := opts.PresignTTL
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}

	return &S3BlobStore{
		client:     client,
		presign:    s3.NewPresignClient(client),
		bucket:     opts.Bucket,
		presignTTL: ttl,
	}, nil
}

// Put stores the content at path and returns a presigned URL for it
func (s *S3BlobStore) Put(ctx context.Context, path string, r io.Reader, size int64) (string, error) {
	input := &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(path),
		Body:   r,
	}
	if size > 0 {
		input.ContentLength = aws.Int64(size)
	}
	if _, err := s.client.PutObject(ctx, input); err != nil {
		return "", fmt.Errorf("failed to upload blob: %w", err)
	}
	return s.PresignGet(ctx, path)
}

// Delete removes the stored content. Deleting a missing key is not an error
// on S3-compatible services.
func (s *S3BlobStore) Delete(ctx context.Context, path string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(path),
	})
	if err != nil {
		return fmt.Errorf("failed to delete blob: %w", err)
	}
	return nil
}

// Open returns a reader over the stored content, used by the download handler
func (s *S3BlobStore) Open(ctx context.Context, path string) (io.ReadCloser, error) {
	result, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(path),
	})
	if err != nil {
		if strings.Contains(err.Error(), "NoSuchKey") || strings.Contains(err.Error(), "NotFound") {
			return nil, fmt.Errorf("blob %s not found: %w", path, err)
		}
		return nil, fmt.Errorf("failed to fetch blob: %w", err)
	}
	return result.Body, nil
}

// PresignGet builds a fresh time-limited download URL for a stored object
func (s *S3BlobStore) PresignGet(ctx context.Context, path string) (string, error) {
	req, err := s.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(path),
	}, s3.WithPresignExpires(s.presignTTL))
	if err != nil {
		return "", fmt.Errorf("failed to presign blob URL: %w", err)
	}
	return req.URL, nil
}
