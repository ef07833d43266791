// Package storage keeps uploaded documents and photos in an object store:
// an S3-compatible bucket (R2, MinIO, AWS) or a local directory.
package storage

import (
	"context"
	"io"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
)

// ErrNotFound is returned by Get for a missing key.
var ErrNotFound = eris.New("storage: object not found")

// Storage is an object store addressed by slash-separated keys.
type Storage interface {
	// Put stores the object and returns the URL it can be fetched from.
	Put(ctx context.Context, key string, body io.ReadSeeker, size int64, contentType string) (string, error)
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
}

// Config selects and configures a backend.
type Config struct {
	Driver        string // "local" | "s3"
	Dir           string
	Endpoint      string
	Region        string
	Bucket        string
	AccessKey     string
	SecretKey     string
	PublicBaseURL string
}

// New builds the backend named by cfg.Driver.
func New(ctx context.Context, cfg Config) (Storage, error) {
	switch cfg.Driver {
	case "", "local":
		return NewLocal(cfg.Dir, cfg.PublicBaseURL)
	case "s3", "r2":
		return NewS3(ctx, cfg)
	default:
		return nil, eris.Errorf("storage: unknown driver %q", cfg.Driver)
	}
}

// NewKey builds a unique key under prefix keeping the original extension,
// e.g. "documents/6f1c...e2.pdf".
func NewKey(prefix, filename string) string {
	ext := strings.ToLower(filepath.Ext(filename))
	return path.Join(prefix, uuid.New().String()+ext)
}

// ключ без "..", ведущих "/" и обратных слэшей
func cleanKey(key string) (string, error) {
	k := path.Clean("/" + strings.ReplaceAll(key, "\\", "/"))
	k = strings.TrimPrefix(k, "/")
	if k == "" || k == "." {
		return "", eris.Errorf("storage: invalid key %q", key)
	}
	return k, nil
}

func joinURL(base, key string) string {
	return strings.TrimRight(base, "/") + "/" + key
}
