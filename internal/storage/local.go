package storage

import (
	"context"
	"io"
	"os"
	"path"

	"github.com/rotisserie/eris"
	"github.com/spf13/afero"
)

// Local stores objects under a directory through afero.
type Local struct {
	fs      afero.Fs
	baseURL string
}

// NewLocal roots an OS-backed store at dir. baseURL prefixes returned URLs
// ("/files" when empty).
func NewLocal(dir, baseURL string) (*Local, error) {
	if dir == "" {
		dir = "data/files"
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, eris.Wrapf(err, "storage: create dir %s", dir)
	}
	return NewLocalFs(afero.NewBasePathFs(afero.NewOsFs(), dir), baseURL), nil
}

// NewLocalFs wraps an arbitrary afero filesystem (tests use afero.NewMemMapFs).
func NewLocalFs(fs afero.Fs, baseURL string) *Local {
	if baseURL == "" {
		baseURL = "/files"
	}
	return &Local{fs: fs, baseURL: baseURL}
}

func (l *Local) Put(_ context.Context, key string, body io.ReadSeeker, _ int64, _ string) (string, error) {
	k, err := cleanKey(key)
	if err != nil {
		return "", err
	}
	if err := l.fs.MkdirAll(path.Dir(k), 0o755); err != nil {
		return "", eris.Wrapf(err, "storage: mkdir for %s", k)
	}
	f, err := l.fs.Create(k)
	if err != nil {
		return "", eris.Wrapf(err, "storage: create %s", k)
	}
	if _, err := io.Copy(f, body); err != nil {
		f.Close()
		return "", eris.Wrapf(err, "storage: write %s", k)
	}
	if err := f.Close(); err != nil {
		return "", eris.Wrapf(err, "storage: close %s", k)
	}
	return joinURL(l.baseURL, k), nil
}

func (l *Local) Get(_ context.Context, key string) (io.ReadCloser, error) {
	k, err := cleanKey(key)
	if err != nil {
		return nil, err
	}
	f, err := l.fs.Open(k)
	if os.IsNotExist(err) {
		return nil, eris.Wrapf(ErrNotFound, "%s", k)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "storage: open %s", k)
	}
	return f, nil
}

func (l *Local) Delete(_ context.Context, key string) error {
	k, err := cleanKey(key)
	if err != nil {
		return err
	}
	if err := l.fs.Remove(k); err != nil && !os.IsNotExist(err) {
		return eris.Wrapf(err, "storage: remove %s", k)
	}
	return nil
}
