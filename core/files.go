package core

import (
	"context"
	"io"
	"time"
)

// FileStore archives generated files (exports, reports) and hands out temporary download links.
type FileStore interface {
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	URL(ctx context.Context, key string, ttl time.Duration) (string, error)
}
