package storage

import (
	"context"
	"time"

	"github.com/its-jojoo/otterclipd/internal/core"
)

const (
	DefaultLimit = 50
	MaxLimit     = 1000
)

// Store is the durable clip history. Implementations are safe for
// concurrent use and keep at most one item per content hash.
type Store interface {
	// Record inserts a new item or, if hash is already stored, bumps its
	// LastUsedAt and returns the existing id.
	Record(ctx context.Context, payload []byte, kind core.Kind, mime, hash string) (int64, error)

	List(ctx context.Context, limit int, starredOnly bool) ([]core.Item, error)
	Search(ctx context.Context, query string, limit int) ([]core.Item, error)
	Gallery(ctx context.Context, limit int) ([]core.Item, error)

	SetStarred(ctx context.Context, id int64, starred bool) error
	Payload(ctx context.Context, id int64) (core.Payload, error)
	Touch(ctx context.Context, id int64) error

	Delete(ctx context.Context, ids []int64) (int, error)
	DeleteUnstarred(ctx context.Context) (core.DeleteCounts, error)
	DeleteOlderThan(ctx context.Context, maxAge time.Duration, protectStarred bool) (int, error)

	Stats(ctx context.Context) (core.Stats, error)
	Now() time.Time
	Close() error
}

// Thumbnailer turns encoded image bytes into an encoded thumbnail.
type Thumbnailer func(data []byte) ([]byte, error)

// ClampLimit applies the default and upper bound to a requested limit.
func ClampLimit(limit int) int {
	if limit <= 0 {
		return DefaultLimit
	}
	if limit > MaxLimit {
		return MaxLimit
	}
	return limit
}
