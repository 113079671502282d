// Package s3 opens pipeline input stored in an S3-compatible bucket.
package s3

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Config locates one object.
type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Region    string
	UseSSL    bool
	Bucket    string
	Key       string
}

// getter is the part of the minio client the source needs.
type getter interface {
	GetObject(ctx context.Context, bucket, key string, opts minio.GetObjectOptions) (io.ReadCloser, error)
}

type minioGetter struct{ *minio.Client }

// GetObject stats the object before returning it so that a missing key
// fails at open time rather than on the first read.
func (m minioGetter) GetObject(ctx context.Context, bucket, key string, opts minio.GetObjectOptions) (io.ReadCloser, error) {
	obj, err := m.Client.GetObject(ctx, bucket, key, opts)
	if err != nil {
		return nil, err
	}
	if _, err := obj.Stat(); err != nil {
		_ = obj.Close()
		return nil, err
	}
	return obj, nil
}

// Object is a datasource reading a single object.
type Object struct {
	client getter
	bucket string
	key    string
}

// New creates a minio client for cfg.
func New(cfg Config) (*Object, error) {
	if cfg.Bucket == "" || cfg.Key == "" {
		return nil, fmt.Errorf("s3: bucket and key are required")
	}
	endpoint := strings.TrimPrefix(strings.TrimPrefix(cfg.Endpoint, "http://"), "https://")
	c, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("s3: client for %s: %w", endpoint, err)
	}
	return &Object{client: minioGetter{c}, bucket: cfg.Bucket, key: cfg.Key}, nil
}

// Open streams the object.
func (o *Object) Open(ctx context.Context) (io.ReadCloser, error) {
	rc, err := o.client.GetObject(ctx, o.bucket, o.key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("s3: get %s/%s: %w", o.bucket, o.key, err)
	}
	return rc, nil
}
