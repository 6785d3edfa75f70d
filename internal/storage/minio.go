// Package storage archives acceptance signature images in object storage.
package storage

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// SignatureStore stores signature PNGs under a per-quote key.
type SignatureStore struct {
	client *minio.Client
	bucket string
}

// Config carries the object storage settings.
type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// NewSignatureStore constructs the store and ensures the bucket exists.
func NewSignatureStore(ctx context.Context, cfg Config) (*SignatureStore, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("storage: bucket name is required")
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("storage: create client: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("storage: check bucket: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("storage: create bucket: %w", err)
		}
	}

	return &SignatureStore{client: client, bucket: cfg.Bucket}, nil
}

// PutSignature stores the PNG and returns the object path recorded on the
// acceptance. Keys are timestamped so a retried acceptance never overwrites
// an earlier upload.
func (s *SignatureStore) PutSignature(ctx context.Context, devisID string, png []byte) (string, error) {
	key := fmt.Sprintf("%s/signature-%d.png", devisID, time.Now().UnixMilli())
	_, err := s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(png), int64(len(png)),
		minio.PutObjectOptions{ContentType: "image/png"})
	if err != nil {
		return "", fmt.Errorf("storage: put signature: %w", err)
	}
	return s.bucket + "/" + key, nil
}
