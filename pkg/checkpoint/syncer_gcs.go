// Copyright 2025 Certen Protocol

package checkpoint

import (
	"context"
	"errors"
	"fmt"
	"io"

	"cloud.google.com/go/storage"
)

// GCSSyncer publishes checkpoints to a Google Cloud Storage bucket, the
// production medium relayers fetch validator signatures from.
type GCSSyncer struct {
	client *storage.Client
	bucket string
	prefix string
}

// NewGCSSyncer wraps an already-authenticated storage.Client. prefix is
// prepended to every object path (e.g. the validator's own address), so
// one bucket can host announcements for many validators.
func NewGCSSyncer(client *storage.Client, bucket, prefix string) *GCSSyncer {
	return &GCSSyncer{client: client, bucket: bucket, prefix: prefix}
}

func (s *GCSSyncer) objectPath(path string) string {
	if s.prefix == "" {
		return path
	}
	return s.prefix + "/" + path
}

func (s *GCSSyncer) Write(ctx context.Context, path string, data []byte) error {
	obj := s.client.Bucket(s.bucket).Object(s.objectPath(path))
	w := obj.NewWriter(ctx)
	w.ContentType = "application/json"
	if _, err := w.Write(data); err != nil {
		w.Close()
		return fmt.Errorf("checkpoint: gcs write %s: %w", path, err)
	}
	return w.Close()
}

func (s *GCSSyncer) Read(ctx context.Context, path string) ([]byte, error) {
	obj := s.client.Bucket(s.bucket).Object(s.objectPath(path))
	r, err := obj.NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("checkpoint: gcs read %s: %w", path, err)
	}
	defer r.Close()
	return io.ReadAll(r)
}

func (s *GCSSyncer) Exists(ctx context.Context, path string) (bool, error) {
	obj := s.client.Bucket(s.bucket).Object(s.objectPath(path))
	_, err := obj.Attrs(ctx)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, storage.ErrObjectNotExist) {
		return false, nil
	}
	return false, fmt.Errorf("checkpoint: gcs stat %s: %w", path, err)
}
