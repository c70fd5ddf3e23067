package blob

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3 implements Store on an S3-compatible backend. Single bucket; keys map
// to object keys directly. Credentials come from the default chain.
type S3 struct {
	client *s3.Client
	bucket string
}

// NewS3 creates an S3 blob store.
func NewS3(ctx context.Context, bucket, region string) (*S3, error) {
	if bucket == "" {
		return nil, fmt.Errorf("s3 bucket required")
	}
	if region == "" {
		region = "us-east-1"
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return &S3{client: s3.NewFromConfig(awsCfg), bucket: bucket}, nil
}

func (s *S3) Driver() Driver { return DriverS3 }

func (s *S3) Put(ctx context.Context, key string, r io.Reader, contentType string) (Info, error) {
	// Create-only is emulated via Head; object keys are ULIDs so races are
	// not a practical concern.
	if _, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{Bucket: &s.bucket, Key: &key}); err == nil {
		return Info{}, ErrExists
	}

	input := &s3.PutObjectInput{Bucket: &s.bucket, Key: &key, Body: r}
	if contentType != "" {
		input.ContentType = &contentType
	}
	if _, err := s.client.PutObject(ctx, input); err != nil {
		return Info{}, fmt.Errorf("put object: %w", err)
	}
	return s.Head(ctx, key)
}

func (s *S3) Get(ctx context.Context, key string) (Info, io.ReadCloser, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{Bucket: &s.bucket, Key: &key})
	if err != nil {
		return Info{}, nil, ErrNotFound
	}
	return infoFromObject(key, out.ContentLength, out.ContentType, out.LastModified), out.Body, nil
}

func (s *S3) Head(ctx context.Context, key string) (Info, error) {
	out, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{Bucket: &s.bucket, Key: &key})
	if err != nil {
		return Info{}, ErrNotFound
	}
	return infoFromObject(key, out.ContentLength, out.ContentType, out.LastModified), nil
}

func (s *S3) Delete(ctx context.Context, key string) (bool, error) {
	if _, err := s.Head(ctx, key); err != nil {
		return false, nil
	}
	if _, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{Bucket: &s.bucket, Key: &key}); err != nil {
		return false, fmt.Errorf("delete object: %w", err)
	}
	return true, nil
}

func infoFromObject(key string, length *int64, contentType *string, modified *time.Time) Info {
	return Info{
		Key:          key,
		Size:         aws.ToInt64(length),
		ContentType:  aws.ToString(contentType),
		LastModified: aws.ToTime(modified).UTC(),
	}
}
