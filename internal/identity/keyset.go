package identity

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	jose "github.com/go-jose/go-jose/v4"
	"golang.org/x/time/rate"

	"github.com/SmitUplenchwar2687/Tollgate/internal/clock"
	"github.com/SmitUplenchwar2687/Tollgate/internal/storage"
)

const (
	DefaultCacheTTL        = time.Hour
	DefaultRefreshInterval = 30 * time.Second

	maxKeySetBytes = 1 << 20
)

// CertsURL returns the conventional key set location for an access issuer.
func CertsURL(issuer string) string {
	return strings.TrimRight(issuer, "/") + "/cdn-cgi/access/certs"
}

// KeySetConfig configures a KeySet.
type KeySetConfig struct {
	URL string

	// Store caches the raw key set document so that restarts and peer
	// processes sharing the store avoid refetching it.
	Store    storage.Storage
	CacheKey string
	CacheTTL time.Duration

	// RefreshInterval is the minimum spacing between fetches triggered by an
	// unknown key id.
	RefreshInterval time.Duration

	HTTPClient *http.Client
	Clock      clock.Clock
}

// KeySet resolves token signing keys by key id from a remote JWKS document.
type KeySet struct {
	url      string
	store    storage.Storage
	cacheKey string
	ttl      time.Duration
	client   *http.Client
	clock    clock.Clock
	refresh  *rate.Limiter

	mu        sync.RWMutex
	keys      map[string]any
	expiresAt time.Time

	fetchMu sync.Mutex
}

// NewKeySet validates cfg and returns an empty KeySet. Keys are loaded on the
// first lookup.
func NewKeySet(cfg KeySetConfig) (*KeySet, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("key set url is required")
	}
	if cfg.Store == nil {
		return nil, fmt.Errorf("key set store is required")
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.NewRealClock()
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 5 * time.Second}
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = DefaultCacheTTL
	}
	if cfg.RefreshInterval <= 0 {
		cfg.RefreshInterval = DefaultRefreshInterval
	}
	if cfg.CacheKey == "" {
		cfg.CacheKey = "jwks:" + cfg.URL
	}

	return &KeySet{
		url:      cfg.URL,
		store:    cfg.Store,
		cacheKey: cfg.CacheKey,
		ttl:      cfg.CacheTTL,
		client:   cfg.HTTPClient,
		clock:    cfg.Clock,
		refresh:  rate.NewLimiter(rate.Every(cfg.RefreshInterval), 1),
	}, nil
}

// Key returns the public key for kid. An unknown kid triggers a refetch,
// subject to the refresh interval.
func (k *KeySet) Key(ctx context.Context, kid string) (any, error) {
	if key, ok, _ := k.lookup(kid); ok {
		return key, nil
	}

	k.fetchMu.Lock()
	defer k.fetchMu.Unlock()

	// Another caller may have loaded the keys while we waited.
	key, ok, fresh := k.lookup(kid)
	if ok {
		return key, nil
	}

	if !fresh {
		if err := k.loadCached(ctx); err != nil {
			log.Printf("key set cache read failed: %v", err)
		} else if key, ok, _ := k.lookup(kid); ok {
			return key, nil
		}
	}

	if !k.refresh.AllowN(k.clock.Now(), 1) {
		if _, _, fresh := k.lookup(kid); !fresh {
			return nil, fmt.Errorf("%w: refresh throttled with no keys loaded", ErrKeySetUnavailable)
		}
		return nil, fmt.Errorf("%w: unknown key id %q", ErrInvalidCredential, kid)
	}

	if err := k.fetch(ctx); err != nil {
		return nil, err
	}
	if key, ok, _ := k.lookup(kid); ok {
		return key, nil
	}
	return nil, fmt.Errorf("%w: unknown key id %q", ErrInvalidCredential, kid)
}

// lookup reports the key for kid and whether the in-process copy is still
// within its TTL.
func (k *KeySet) lookup(kid string) (key any, ok bool, fresh bool) {
	k.mu.RLock()
	defer k.mu.RUnlock()

	if k.keys == nil || !k.clock.Now().Before(k.expiresAt) {
		return nil, false, false
	}
	key, ok = k.keys[kid]
	return key, ok, true
}

func (k *KeySet) loadCached(ctx context.Context) error {
	raw, err := k.store.Get(ctx, k.cacheKey)
	if err != nil {
		return err
	}
	if raw == nil {
		return nil
	}

	keys, err := parseKeySet(raw)
	if err != nil {
		if derr := k.store.Delete(ctx, k.cacheKey); derr != nil {
			log.Printf("dropping unreadable cached key set: %v", derr)
		}
		return fmt.Errorf("cached key set: %w", err)
	}
	k.install(keys)
	return nil
}

func (k *KeySet) fetch(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, k.url, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrKeySetUnavailable, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := k.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrKeySetUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: %s returned %s", ErrKeySetUnavailable, k.url, resp.Status)
	}
	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxKeySetBytes))
	if err != nil {
		return fmt.Errorf("%w: reading key set: %v", ErrKeySetUnavailable, err)
	}

	keys, err := parseKeySet(raw)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrKeySetUnavailable, err)
	}
	k.install(keys)

	if err := k.store.Set(ctx, k.cacheKey, raw, k.ttl); err != nil {
		log.Printf("key set cache write failed: %v", err)
	}
	return nil
}

func (k *KeySet) install(keys map[string]any) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.keys = keys
	k.expiresAt = k.clock.Now().Add(k.ttl)
}

// parseKeySet returns the public signing keys in a JWKS document by key id.
func parseKeySet(raw []byte) (map[string]any, error) {
	var set jose.JSONWebKeySet
	if err := json.Unmarshal(raw, &set); err != nil {
		return nil, fmt.Errorf("parsing key set: %w", err)
	}

	keys := make(map[string]any, len(set.Keys))
	for _, jwk := range set.Keys {
		if jwk.KeyID == "" || (jwk.Use != "" && jwk.Use != "sig") {
			continue
		}
		if !jwk.Valid() {
			continue
		}
		keys[jwk.KeyID] = jwk.Public().Key
	}
	if len(keys) == 0 {
		return nil, fmt.Errorf("key set has no usable signing keys")
	}
	return keys, nil
}
