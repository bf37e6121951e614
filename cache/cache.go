// Package cache persists downloaded artifacts on go-cloud blob storage, so a
// process restart or an offline run can skip the CDN entirely.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"gocloud.dev/blob"
	"gocloud.dev/gcerrors"
)

// ErrMiss is returned when no cached copy exists for a URL.
var ErrMiss = errors.New("cache: artifact not cached")

// Metadata recorded with every cached artifact. Keys are lowercased by the
// blob drivers, so they start out that way.
const (
	metaSourceURL  = "source_url"
	metaSourceETag = "source_etag"
)

// Store is an artifact cache on top of a blob bucket. Artifacts are keyed by
// the SHA-256 of their source URL, so arbitrary URLs map to filesystem-safe
// object names.
type Store struct {
	bucket *blob.Bucket
}

// Open opens a store on the bucket named by url, e.g. "file:///var/cache/rive"
// or "mem://". The driver must be linked into the binary with a blank import.
// The store owns the bucket and releases it on Close.
func Open(ctx context.Context, url string) (*Store, error) {
	bucket, err := blob.OpenBucket(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("open cache bucket: %w", err)
	}
	return &Store{bucket: bucket}, nil
}

// NewStore wraps an already opened bucket. The store takes ownership.
func NewStore(bucket *blob.Bucket) *Store {
	return &Store{bucket: bucket}
}

// OpenDirectory opens a store on a local directory, creating it if needed.
// The fileblob driver must be linked in.
func OpenDirectory(ctx context.Context, dir string) (*Store, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve cache dir: %w", err)
	}
	p := filepath.ToSlash(abs)
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return Open(ctx, "file://"+p+"?create_dir=true")
}

// Get returns the cached artifact bytes and the source ETag recorded when the
// artifact was stored. A missing entry returns ErrMiss.
func (s *Store) Get(ctx context.Context, url string) ([]byte, string, error) {
	key := Key(url)

	data, err := s.bucket.ReadAll(ctx, key)
	if err != nil {
		if gcerrors.Code(err) == gcerrors.NotFound {
			return nil, "", ErrMiss
		}
		return nil, "", fmt.Errorf("read cached artifact: %w", err)
	}

	// Attributes are best-effort; a cache without provenance still serves.
	etag := ""
	if attrs, err := s.bucket.Attributes(ctx, key); err == nil {
		etag = attrs.Metadata[metaSourceETag]
	}

	return data, etag, nil
}

// Put stores artifact bytes for url together with its source ETag.
func (s *Store) Put(ctx context.Context, url string, data []byte, etag string) error {
	opts := &blob.WriterOptions{
		ContentType: "application/wasm",
		Metadata: map[string]string{
			metaSourceURL: url,
		},
	}
	if etag != "" {
		opts.Metadata[metaSourceETag] = etag
	}

	if err := s.bucket.WriteAll(ctx, Key(url), data, opts); err != nil {
		return fmt.Errorf("write cached artifact: %w", err)
	}
	return nil
}

// Evict removes the cached copy for url. Evicting a URL that was never
// cached is not an error.
func (s *Store) Evict(ctx context.Context, url string) error {
	err := s.bucket.Delete(ctx, Key(url))
	if err != nil && gcerrors.Code(err) != gcerrors.NotFound {
		return fmt.Errorf("evict cached artifact: %w", err)
	}
	return nil
}

// Close releases the underlying bucket.
func (s *Store) Close() error {
	return s.bucket.Close()
}

// Key returns the object name a source URL is cached under.
func Key(url string) string {
	sum := sha256.Sum256([]byte(url))
	return hex.EncodeToString(sum[:]) + ".wasm"
}
