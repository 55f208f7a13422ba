// Package keyset fetches and caches the provider's published signing keys.
package keyset

import (
	"context"
	"crypto"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	bridgeerrors "github.com/rleekg/craft-cognito/internal/errors"
	"github.com/rleekg/craft-cognito/internal/metrics"
)

// SigningKey is a verification-ready public key from the provider's key
// set. Immutable once fetched.
type SigningKey struct {
	KeyID     string
	Algorithm string
	Key       crypto.PublicKey
}

// Cache caches the provider's key set, keyed by key identifier.
//
// Entries are not evicted on a timer. A full refresh runs whenever a
// requested key identifier is absent from the cached set, which covers
// provider key rotation without a scheduled job. Concurrent callers
// during a refresh share a single outbound fetch.
type Cache struct {
	url    string
	client *http.Client
	logger *slog.Logger

	mu        sync.RWMutex
	keys      map[string]SigningKey
	fetchedAt time.Time

	group singleflight.Group
}

// Option configures the Cache.
type Option func(*Cache)

// WithHTTPClient sets the HTTP client used for key set fetches.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Cache) {
		c.client = client
	}
}

// WithLogger sets the logger for the cache.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Cache) {
		c.logger = logger
	}
}

// New creates a Cache for the key set document at url. The first fetch
// happens lazily on the first key lookup.
func New(url string, opts ...Option) *Cache {
	c := &Cache{
		url:    url,
		client: http.DefaultClient,
		logger: slog.Default(),
		keys:   map[string]SigningKey{},
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// GetKey returns the signing key with the given key identifier. A miss
// triggers exactly one full key set refresh shared by all concurrent
// callers; if the key is still absent afterwards the lookup fails with
// unknown_signing_key. Fetch failures surface as the transient
// keyset_unavailable error.
func (c *Cache) GetKey(ctx context.Context, kid string) (SigningKey, error) {
	c.mu.RLock()
	key, ok := c.keys[kid]
	c.mu.RUnlock()
	if ok {
		return key, nil
	}

	if err := c.refresh(ctx); err != nil {
		return SigningKey{}, err
	}

	c.mu.RLock()
	key, ok = c.keys[kid]
	c.mu.RUnlock()
	if !ok {
		return SigningKey{}, bridgeerrors.New(bridgeerrors.CodeUnknownSigningKey,
			fmt.Sprintf("no signing key with id %q in key set", kid))
	}
	return key, nil
}

// FetchedAt returns the time of the last successful fetch.
func (c *Cache) FetchedAt() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.fetchedAt
}

// Len returns the number of cached keys.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.keys)
}

// refresh replaces the cached key set with a freshly fetched one. All
// concurrent callers share one in-flight fetch.
func (c *Cache) refresh(ctx context.Context) error {
	_, err, _ := c.group.Do("refresh", func() (any, error) {
		return nil, c.fetch(ctx)
	})
	return err
}

func (c *Cache) fetch(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		metrics.RecordKeySetFetch(false)
		return bridgeerrors.Wrap(err, bridgeerrors.CodeKeySetUnavailable, "invalid key set URL")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		metrics.RecordKeySetFetch(false)
		return bridgeerrors.Wrap(err, bridgeerrors.CodeKeySetUnavailable, "key set fetch failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		metrics.RecordKeySetFetch(false)
		return bridgeerrors.New(bridgeerrors.CodeKeySetUnavailable,
			fmt.Sprintf("key set endpoint returned status %d", resp.StatusCode))
	}

	var doc struct {
		Keys []JWK `json:"keys"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		metrics.RecordKeySetFetch(false)
		return bridgeerrors.Wrap(err, bridgeerrors.CodeKeySetUnavailable, "invalid key set document")
	}

	// One unparseable key must not abort loading of the rest.
	keys := make(map[string]SigningKey, len(doc.Keys))
	for _, jwk := range doc.Keys {
		key, err := jwk.PublicKey()
		if err != nil {
			c.logger.Warn("skipping unusable key in key set", "kid", jwk.Kid, "error", err)
			continue
		}
		keys[jwk.Kid] = SigningKey{
			KeyID:     jwk.Kid,
			Algorithm: jwk.Alg,
			Key:       key,
		}
	}

	c.mu.Lock()
	c.keys = keys
	c.fetchedAt = time.Now()
	c.mu.Unlock()

	metrics.RecordKeySetFetch(true)
	metrics.SetKeySetSize(len(keys))

	c.logger.Debug("key set refreshed", "keys", len(keys), "url", c.url)
	return nil
}
