package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// ErrObjectTooLarge is returned by GetObject when the object exceeds the read limit.
var ErrObjectTooLarge = errors.New("object exceeds size limit")

// S3ClientConfig holds configuration for S3Client
type S3ClientConfig struct {
	Endpoint        string
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	Bucket          string
	UsePathStyle    bool
	UploadURLExpiry time.Duration
}

// S3Client stores knowledge document uploads in an S3-compatible bucket.
type S3Client struct {
	client          *s3.Client
	presignClient   *s3.PresignClient
	bucket          string
	uploadURLExpiry time.Duration
}

// NewS3Client creates a new S3Client with the given configuration
func NewS3Client(ctx context.Context, cfg S3ClientConfig) (*S3Client, error) {
	awsCfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(cfg.Region),
		config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})

	expiry := cfg.UploadURLExpiry
	if expiry <= 0 {
		expiry = 15 * time.Minute
	}

	return &S3Client{
		client:          client,
		presignClient:   s3.NewPresignClient(client),
		bucket:          cfg.Bucket,
		uploadURLExpiry: expiry,
	}, nil
}

// GenerateUploadURL creates a presigned PUT URL. The uploader must send the same content type.
func (c *S3Client) GenerateUploadURL(ctx context.Context, key string, contentType string) (string, error) {
	input := &s3.PutObjectInput{
		Bucket:      aws.String(c.bucket),
		Key:         aws.String(key),
		ContentType: aws.String(contentType),
	}

	presignedReq, err := c.presignClient.PresignPutObject(ctx, input, func(opts *s3.PresignOptions) {
		opts.Expires = c.uploadURLExpiry
	})
	if err != nil {
		return "", fmt.Errorf("failed to generate upload URL: %w", err)
	}

	return presignedReq.URL, nil
}

// GetObject reads an object fully, refusing objects larger than maxBytes.
func (c *S3Client) GetObject(ctx context.Context, key string, maxBytes int64) ([]byte, error) {
	output, err := c.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get object: %w", err)
	}
	defer output.Body.Close()

	if aws.ToInt64(output.ContentLength) > maxBytes {
		return nil, ErrObjectTooLarge
	}
	return readLimited(output.Body, maxBytes)
}

func readLimited(r io.Reader, maxBytes int64) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read object: %w", err)
	}
	if int64(len(data)) > maxBytes {
		return nil, ErrObjectTooLarge
	}
	return data, nil
}

// DeleteObject removes an object from storage
func (c *S3Client) DeleteObject(ctx context.Context, key string) error {
	input := &s3.DeleteObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	}

	_, err := c.client.DeleteObject(ctx, input)
	if err != nil {
		return fmt.Errorf("failed to delete object: %w", err)
	}

	return nil
}

// HeadObject checks if an object exists and returns its metadata
func (c *S3Client) HeadObject(ctx context.Context, key string) (*ObjectMetadata, error) {
	input := &s3.HeadObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	}

	output, err := c.client.HeadObject(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("failed to head object: %w", err)
	}

	return &ObjectMetadata{
		ContentLength: aws.ToInt64(output.ContentLength),
		ContentType:   aws.ToString(output.ContentType),
		ETag:          aws.ToString(output.ETag),
	}, nil
}

// ObjectMetadata contains metadata about an S3 object
type ObjectMetadata struct {
	ContentLength int64
	ContentType   string
	ETag          string
}

// EnsureBucket creates the bucket if it doesn't exist
func (c *S3Client) EnsureBucket(ctx context.Context) error {
	_, err := c.client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(c.bucket),
	})
	if err == nil {
		return nil
	}

	_, err = c.client.CreateBucket(ctx, &s3.CreateBucketInput{
		Bucket: aws.String(c.bucket),
	})
	if err != nil {
		return fmt.Errorf("failed to create bucket: %w", err)
	}

	return nil
}
