package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	gcs "cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

// gcsBucket abstracts a GCS bucket handle for testability.
type gcsBucket interface {
	Object(name string) gcsObject
	SignedURL(name string, opts *gcs.SignedURLOptions) (string, error)
}

// gcsObject abstracts a GCS object handle.
type gcsObject interface {
	NewWriter(ctx context.Context) io.WriteCloser
}

type realBucket struct{ bh *gcs.BucketHandle }

func (r realBucket) Object(name string) gcsObject { return realObject{r.bh.Object(name)} }

func (r realBucket) SignedURL(name string, opts *gcs.SignedURLOptions) (string, error) {
	return r.bh.SignedURL(name, opts)
}

type realObject struct{ oh *gcs.ObjectHandle }

func (r realObject) NewWriter(ctx context.Context) io.WriteCloser {
	w := r.oh.NewWriter(ctx)
	w.ContentType = "application/octet-stream"
	return w
}

// GCSStore stores objects in a Google Cloud Storage bucket.
type GCSStore struct {
	bucketName string
	client     *gcs.Client
	bucket     gcsBucket
}

// NewGCSStore opens a GCS client. credentialsJSON is a service account key;
// when empty, application default credentials are used.
func NewGCSStore(ctx context.Context, bucket, project string, credentialsJSON []byte) (*GCSStore, error) {
	opts := []option.ClientOption{}
	if len(credentialsJSON) > 0 {
		opts = append(opts, option.WithAuthCredentialsJSON(option.ServiceAccount, credentialsJSON))
	}
	if project != "" {
		opts = append(opts, option.WithQuotaProject(project))
	}

	client, err := gcs.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create GCS client: %w", err)
	}
	return &GCSStore{
		bucketName: bucket,
		client:     client,
		bucket:     realBucket{client.Bucket(bucket)},
	}, nil
}

// Put uploads data to the bucket under key.
func (g *GCSStore) Put(ctx context.Context, key string, data []byte) error {
	w := g.bucket.Object(key).NewWriter(ctx)
	if _, err := io.Copy(w, bytes.NewReader(data)); err != nil {
		_ = w.Close()
		return fmt.Errorf("write object %q to bucket %q: %w", key, g.bucketName, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("close writer for object %q in bucket %q: %w", key, g.bucketName, err)
	}
	return nil
}

// SignedURL returns a V4 signed GET URL valid for ttl.
func (g *GCSStore) SignedURL(_ context.Context, key string, ttl time.Duration) (string, error) {
	url, err := g.bucket.SignedURL(key, &gcs.SignedURLOptions{
		Scheme:  gcs.SigningSchemeV4,
		Method:  http.MethodGet,
		Expires: time.Now().Add(ttl),
	})
	if err != nil {
		return "", fmt.Errorf("sign object %q in bucket %q: %w", key, g.bucketName, err)
	}
	return url, nil
}

// Close releases the GCS client.
func (g *GCSStore) Close() error {
	if g.client == nil {
		return nil
	}
	if err := g.client.Close(); err != nil {
		return fmt.Errorf("close GCS client: %w", err)
	}
	g.client = nil
	return nil
}
