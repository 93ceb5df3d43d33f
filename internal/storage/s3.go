package storage

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3API is the subset of the S3 client used for uploads.
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Presigner is the subset of the presign client used for links.
type S3Presigner interface {
	PresignGetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

// S3Store stores objects in an S3 bucket.
type S3Store struct {
	bucket    string
	client    S3API
	presigner S3Presigner
}

// NewS3Store builds a store from an AWS config.
func NewS3Store(cfg aws.Config, bucket string) *S3Store {
	client := s3.NewFromConfig(cfg)
	return NewS3StoreWithClients(bucket, client, s3.NewPresignClient(client))
}

// NewS3StoreWithClients builds a store from explicit clients.
func NewS3StoreWithClients(bucket string, client S3API, presigner S3Presigner) *S3Store {
	return &S3Store{bucket: bucket, client: client, presigner: presigner}
}

// Put uploads data to the bucket under key.
func (s *S3Store) Put(ctx context.Context, key string, data []byte) error {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
		ContentType:   aws.String("application/octet-stream"),
	})
	if err != nil {
		return fmt.Errorf("put object %q to bucket %q: %w", key, s.bucket, err)
	}
	return nil
}

// SignedURL returns a presigned GET URL valid for ttl.
func (s *S3Store) SignedURL(ctx context.Context, key string, ttl time.Duration) (string, error) {
	req, err := s.presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(ttl))
	if err != nil {
		return "", fmt.Errorf("presign object %q in bucket %q: %w", key, s.bucket, err)
	}
	return req.URL, nil
}
