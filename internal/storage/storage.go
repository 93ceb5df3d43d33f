// Package storage persists fetched artifacts and mints signed retrieval links.
package storage

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"release-ingest/internal/models"
)

// ObjectStore is the object storage capability used by the Storer.
type ObjectStore interface {
	Put(ctx context.Context, key string, data []byte) error
	SignedURL(ctx context.Context, key string, ttl time.Duration) (string, error)
}

// KeyGenerator derives object keys of the form <prefix>-<unix-millis>[-<suffix>].
type KeyGenerator struct {
	Prefix string
	Now    func() time.Time
	// Suffix adds a random component so invocations within the same
	// millisecond do not collide. Nil disables it.
	Suffix func() string
}

// NewKeyGenerator returns a generator using the wall clock and, when random
// is set, an 8 character suffix taken from a v4 UUID.
func NewKeyGenerator(prefix string, random bool) KeyGenerator {
	g := KeyGenerator{Prefix: prefix, Now: time.Now}
	if random {
		g.Suffix = func() string {
			return strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
		}
	}
	return g
}

// Next returns a fresh object key.
func (g KeyGenerator) Next() string {
	now := time.Now
	if g.Now != nil {
		now = g.Now
	}
	key := g.Prefix + "-" + strconv.FormatInt(now().UnixMilli(), 10)
	if g.Suffix != nil {
		key += "-" + g.Suffix()
	}
	return key
}

// Storer writes artifacts under unique keys and optionally links them.
type Storer struct {
	store       ObjectStore
	keys        KeyGenerator
	linkEnabled bool
	linkTTL     time.Duration
	now         func() time.Time
}

// NewStorer wires an object store. linkTTL is only used when linkEnabled is set.
func NewStorer(store ObjectStore, keys KeyGenerator, linkEnabled bool, linkTTL time.Duration) *Storer {
	return &Storer{
		store:       store,
		keys:        keys,
		linkEnabled: linkEnabled,
		linkTTL:     linkTTL,
		now:         time.Now,
	}
}

// LinkEnabled reports whether Link mints URLs.
func (s *Storer) LinkEnabled() bool { return s.linkEnabled }

// Put persists data under a new key. Once it returns nil the object is durable
// regardless of what happens downstream.
func (s *Storer) Put(ctx context.Context, data []byte) (models.StoredArtifact, error) {
	key := s.keys.Next()
	if err := s.store.Put(ctx, key, data); err != nil {
		return models.StoredArtifact{}, fmt.Errorf("put object %q: %w", key, err)
	}
	return models.StoredArtifact{ObjectKey: key, SizeBytes: int64(len(data))}, nil
}

// Link mints a signed read URL for the artifact. It is a no-op when link
// generation is disabled.
func (s *Storer) Link(ctx context.Context, artifact models.StoredArtifact) (models.StoredArtifact, error) {
	if !s.linkEnabled {
		return artifact, nil
	}
	expires := s.now().Add(s.linkTTL)
	url, err := s.store.SignedURL(ctx, artifact.ObjectKey, s.linkTTL)
	if err != nil {
		return artifact, fmt.Errorf("sign url for %q: %w", artifact.ObjectKey, err)
	}
	artifact.RetrievalURL = url
	artifact.ExpiresAt = expires
	return artifact, nil
}

// Close releases the underlying store client if it holds one.
func (s *Storer) Close() error {
	if c, ok := s.store.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
