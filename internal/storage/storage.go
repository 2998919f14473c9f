// Package storage stores uploaded images (avatars, cover art) in a gocloud
// blob bucket and hands out their public URLs.
package storage

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"gameshelf/backend/internal/logging"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	gobreaker "github.com/sony/gobreaker/v2"
	"gocloud.dev/blob"
	_ "gocloud.dev/blob/fileblob"
	_ "gocloud.dev/blob/memblob"
	_ "gocloud.dev/blob/s3blob"
)

var (
	ErrUnsupportedType = errors.New("unsupported file type")
	ErrTooLarge        = errors.New("file too large")
	ErrEmpty           = errors.New("empty file")
	ErrUnavailable     = errors.New("storage temporarily unavailable")
)

// AllowedImageTypes maps accepted MIME types to the extension used in keys.
var AllowedImageTypes = map[string]string{
	"image/png":  ".png",
	"image/jpeg": ".jpg",
	"image/gif":  ".gif",
	"image/webp": ".webp",
}

// Default is the process-wide store.
var Default *Store

// Store wraps a bucket with URL building and a circuit breaker on writes.
type Store struct {
	bucket    *blob.Bucket
	publicURL string
	localDir  string
	maxBytes  int64
	breaker   *gobreaker.CircuitBreaker[struct{}]
}

// Options configure Open.
type Options struct {
	// PublicURL is the prefix objects are reachable under, e.g. "/uploads"
	// or "https://cdn.example.com/gameshelf".
	PublicURL string
	// MaxBytes caps a single object; zero means 5 MiB.
	MaxBytes int64
}

// Open opens the bucket at bucketURL ("file:///var/lib/gameshelf", "s3://bucket?region=eu-west-1", "mem://").
func Open(ctx context.Context, bucketURL string, opts Options) (*Store, error) {
	u, err := url.Parse(bucketURL)
	if err != nil {
		return nil, fmt.Errorf("parse storage url: %w", err)
	}

	var localDir string
	if u.Scheme == "file" {
		localDir = filepath.FromSlash(u.Path)
		if err := os.MkdirAll(localDir, 0o755); err != nil {
			return nil, fmt.Errorf("ensure storage dir: %w", err)
		}
	}

	bucket, err := blob.OpenBucket(ctx, bucketURL)
	if err != nil {
		return nil, fmt.Errorf("open bucket: %w", err)
	}

	maxBytes := opts.MaxBytes
	if maxBytes <= 0 {
		maxBytes = 5 << 20
	}

	return &Store{
		bucket:    bucket,
		publicURL: strings.TrimRight(opts.PublicURL, "/"),
		localDir:  localDir,
		maxBytes:  maxBytes,
		breaker:   newBreaker("object-storage"),
	}, nil
}

func newBreaker(name string) *gobreaker.CircuitBreaker[struct{}] {
	return gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Logger().Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("circuit breaker state changed")
		},
	})
}

// LocalDir is the directory behind a file:// bucket, or "".
func (s *Store) LocalDir() string {
	return s.localDir
}

// MaxBytes is the per-object size cap.
func (s *Store) MaxBytes() int64 {
	return s.maxBytes
}

// Close releases the bucket.
func (s *Store) Close() error {
	return s.bucket.Close()
}

// SniffImage checks data against the allowed image types and returns the
// detected MIME type and key extension.
func (s *Store) SniffImage(data []byte) (string, string, error) {
	if len(data) == 0 {
		return "", "", ErrEmpty
	}
	if int64(len(data)) > s.maxBytes {
		return "", "", fmt.Errorf("%w: %d bytes (max %d)", ErrTooLarge, len(data), s.maxBytes)
	}
	mt := mimetype.Detect(data)
	for m := mt; m != nil; m = m.Parent() {
		if ext, ok := AllowedImageTypes[m.String()]; ok {
			return m.String(), ext, nil
		}
	}
	return "", "", fmt.Errorf("%w: %s", ErrUnsupportedType, mt.String())
}

// PutImage validates data as an image and stores it under prefix with a
// random name. It returns the object key and its public URL.
func (s *Store) PutImage(ctx context.Context, prefix string, data []byte) (string, string, error) {
	contentType, ext, err := s.SniffImage(data)
	if err != nil {
		return "", "", err
	}
	key := NewKey(prefix, ext)
	if err := s.Put(ctx, key, data, contentType); err != nil {
		return "", "", err
	}
	return key, s.URL(key), nil
}

// Put writes data under key.
func (s *Store) Put(ctx context.Context, key string, data []byte, contentType string) error {
	key = sanitizeKey(key)
	_, err := s.breaker.Execute(func() (struct{}, error) {
		return struct{}{}, s.bucket.WriteAll(ctx, key, data, &blob.WriterOptions{ContentType: contentType})
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return ErrUnavailable
	}
	if err != nil {
		return fmt.Errorf("write %s: %w", key, err)
	}
	return nil
}

// Delete removes key. Missing objects are not an error.
func (s *Store) Delete(ctx context.Context, key string) error {
	key = sanitizeKey(key)
	exists, err := s.bucket.Exists(ctx, key)
	if err != nil {
		return fmt.Errorf("stat %s: %w", key, err)
	}
	if !exists {
		return nil
	}
	return s.bucket.Delete(ctx, key)
}

// URL is the public URL of key.
func (s *Store) URL(key string) string {
	return s.publicURL + "/" + sanitizeKey(key)
}

// KeyFromURL reverses URL for objects that live in this store.
func (s *Store) KeyFromURL(u string) (string, bool) {
	prefix := s.publicURL + "/"
	if !strings.HasPrefix(u, prefix) {
		return "", false
	}
	key := sanitizeKey(strings.TrimPrefix(u, prefix))
	return key, key != ""
}

// NewKey builds "<prefix>/<uuid><ext>".
func NewKey(prefix, ext string) string {
	return sanitizeKey(path.Join(prefix, uuid.NewString()+ext))
}

// sanitizeKey prevents path traversal.
func sanitizeKey(key string) string {
	key = filepath.ToSlash(key)
	key = strings.TrimLeft(key, "/")
	parts := strings.Split(key, "/")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p == "" || p == "." || p == ".." {
			continue
		}
		out = append(out, p)
	}
	return strings.Join(out, "/")
}
