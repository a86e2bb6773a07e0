// Package storage holds the persistence ports used by the garage and the
// scanner, together with their local, Redis and S3 adapters.
package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/menta2k/carvision/pkg/types"
)

// ObjectPrefix is the folder all car images are stored under
const ObjectPrefix = "cars"

var (
	// ErrNotFound is returned when a document or object does not exist
	ErrNotFound = errors.New("not found")
	// ErrInvalidKey is returned for ids or keys that would escape the store
	ErrInvalidKey = errors.New("invalid key")
)

// DocumentStore persists car records keyed by their ID. Put replaces the
// whole document.
type DocumentStore interface {
	List(ctx context.Context) ([]types.Car, error)
	Put(ctx context.Context, car types.Car) error
	Delete(ctx context.Context, id string) error
}

// ObjectStore keeps image bytes and hands back a URL that can later be used
// to fetch or delete them.
type ObjectStore interface {
	Put(ctx context.Context, key string, data []byte) (string, error)
	Get(ctx context.Context, url string) ([]byte, error)
	Delete(ctx context.Context, url string) error
}

// ObjectKey returns the key an image for the given record is stored under
func ObjectKey(id, ext string) string {
	ext = strings.TrimPrefix(ext, ".")
	if ext == "" {
		ext = "jpg"
	}
	return fmt.Sprintf("%s/%s.%s", ObjectPrefix, id, ext)
}

func validateID(id string) error {
	if id == "" || id == "." || id == ".." || strings.ContainsAny(id, `/\`) {
		return fmt.Errorf("%w: %q", ErrInvalidKey, id)
	}
	return nil
}

func validateKey(key string) error {
	if key == "" || strings.HasPrefix(key, "/") {
		return fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	for _, part := range strings.Split(key, "/") {
		if part == "" || part == "." || part == ".." {
			return fmt.Errorf("%w: %q", ErrInvalidKey, key)
		}
	}
	return nil
}
