// Package artifacts stores what a failing browser test leaves behind: a
// screenshot, the page HTML and the browser console log.
package artifacts

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/kuitang/mlocid-e2e/internal/config"
)

// ErrObjectNotFound is returned when a requested artifact does not exist.
var ErrObjectNotFound = errors.New("artifacts: object not found")

// Store persists artifacts under slash-separated keys.
type Store interface {
	Put(ctx context.Context, key string, content []byte, contentType string) error
	Get(ctx context.Context, key string) ([]byte, error)
	// Location describes where key ends up, for test logs.
	Location(key string) string
}

// DirStore writes artifacts below a local directory.
type DirStore struct {
	Root string
}

var _ Store = (*DirStore)(nil)

// NewDirStore returns a DirStore rooted at root, creating it if needed.
func NewDirStore(root string) (*DirStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("artifacts: create %s: %w", root, err)
	}
	return &DirStore{Root: root}, nil
}

func (d *DirStore) path(key string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(key))
	if filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("artifacts: key %q escapes the artifact directory", key)
	}
	return filepath.Join(d.Root, clean), nil
}

func (d *DirStore) Put(_ context.Context, key string, content []byte, _ string) error {
	p, err := d.path(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return fmt.Errorf("artifacts: create directory for %q: %w", key, err)
	}
	if err := os.WriteFile(p, content, 0o644); err != nil {
		return fmt.Errorf("artifacts: write %q: %w", key, err)
	}
	return nil
}

func (d *DirStore) Get(_ context.Context, key string) ([]byte, error) {
	p, err := d.path(key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(p)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrObjectNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("artifacts: read %q: %w", key, err)
	}
	return data, nil
}

func (d *DirStore) Location(key string) string {
	p, err := d.path(key)
	if err != nil {
		return key
	}
	return p
}

// FromConfig picks the store the suite configuration asks for. The bucket
// wins over the directory; nil means artifact capture is disabled.
func FromConfig(ctx context.Context, cfg *config.Suite) (Store, error) {
	switch {
	case cfg.ArtifactBucket != "":
		store, err := NewS3Store(ctx, S3Config{
			Endpoint:        cfg.AWSEndpointS3,
			Region:          cfg.AWSRegion,
			AccessKeyID:     cfg.AWSAccessKeyID,
			SecretAccessKey: cfg.AWSSecretKey,
			BucketName:      cfg.ArtifactBucket,
			UsePathStyle:    cfg.AWSEndpointS3 != "",
		})
		if err != nil {
			return nil, err
		}
		return store, nil
	case cfg.ArtifactDir != "":
		store, err := NewDirStore(cfg.ArtifactDir)
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, nil
	}
}
