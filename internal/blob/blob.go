package blob

import (
	"context"
	"errors"
)

// Store is the remote object store the session layer persists to. Paths are
// slash-separated, opaque strings; List returns every stored path under a prefix.
type Store interface {
	Write(ctx context.Context, path string, data []byte) error
	Read(ctx context.Context, path string) ([]byte, error)
	Delete(ctx context.Context, path string) error
	List(ctx context.Context, prefix string) ([]string, error)
}

// Sentinel conditions surfaced by implementations. Callers match with errors.Is.
var (
	ErrNotFound      = errors.New("object not found")
	ErrUnauthorized  = errors.New("unauthorized")
	ErrQuotaExceeded = errors.New("storage quota exceeded")
)
