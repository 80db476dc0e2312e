// Package upload stores files on local disk or in S3 and resizes images
// before they are stored.
package upload

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrInvalidKey is returned for keys that escape the upload root.
var ErrInvalidKey = errors.New("invalid upload key")

// Uploader stores a blob under key and returns its location.
type Uploader interface {
	Upload(ctx context.Context, key string, body []byte, contentType string) (string, error)
}

// SanitizeKey cleans key into a relative, slash-separated path.
func SanitizeKey(key string) (string, error) {
	key = strings.ReplaceAll(key, "\\", "/")
	key = filepath.ToSlash(filepath.Clean("/" + key))
	key = strings.TrimPrefix(key, "/")
	if key == "" || key == "." {
		return "", ErrInvalidKey
	}
	return key, nil
}

// Local writes uploads below a base directory.
type Local struct {
	baseDir string
}

// NewLocal returns an uploader rooted at baseDir.
func NewLocal(baseDir string) *Local {
	if baseDir == "" {
		baseDir = "./uploads"
	}
	return &Local{baseDir: baseDir}
}

func (l *Local) Upload(_ context.Context, key string, body []byte, _ string) (string, error) {
	key, err := SanitizeKey(key)
	if err != nil {
		return "", err
	}
	path := filepath.Join(l.baseDir, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("create dirs: %w", err)
	}
	if err := os.WriteFile(path, body, 0o644); err != nil {
		return "", fmt.Errorf("write file: %w", err)
	}
	return path, nil
}

// Router picks an uploader by destination name ("local" or "s3").
type Router struct {
	local Uploader
	s3    Uploader
}

// NewRouter combines the configured uploaders. s3 may be nil.
func NewRouter(local, s3 Uploader) *Router {
	return &Router{local: local, s3: s3}
}

// Pick returns the uploader for destination. An empty destination prefers S3
// when it is configured.
func (r *Router) Pick(destination string) (Uploader, error) {
	switch strings.ToLower(destination) {
	case "s3":
		if r.s3 != nil {
			return r.s3, nil
		}
		return nil, errors.New("destination s3 requested but S3_BUCKET is not configured")
	case "local":
		if r.local != nil {
			return r.local, nil
		}
		return nil, errors.New("no local upload directory configured")
	case "":
		if r.s3 != nil {
			return r.s3, nil
		}
		if r.local != nil {
			return r.local, nil
		}
		return nil, errors.New("no uploader configured")
	default:
		return nil, fmt.Errorf("unknown upload destination %q", destination)
	}
}
