package identity

import (
	"context"
	"crypto/rsa"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rakutentech/jwk-go/jwk"
	"golang.org/x/sync/singleflight"

	"github.com/srivardhan-kondu/EmpathyAI/pkg/httpclient"
)

// ErrUnknownKey is returned when no published key matches the requested kid,
// even after a refresh.
var ErrUnknownKey = errors.New("signing key not published")

const (
	defaultJWKSTTL       = time.Hour
	minForcedRefreshWait = 30 * time.Second
	maxJWKSBody          = 1 << 20
	upstreamName         = "jwks"
)

// Fetcher performs GET requests. httpclient.CircuitBreakerClient satisfies it.
type Fetcher interface {
	Get(ctx context.Context, url string) (*http.Response, error)
}

// DocumentCache shares fetched key-set documents between replicas. Get
// returns (nil, nil) on a miss.
type DocumentCache interface {
	Get(ctx context.Context) ([]byte, error)
	Set(ctx context.Context, doc []byte, ttl time.Duration) error
}

// JWKSConfig configures a JWKSSource.
type JWKSConfig struct {
	URL string
	// TTL applies when the response carries no usable Cache-Control max-age.
	TTL time.Duration
}

// JWKSSource resolves RSA signing keys from a published JSON Web Key Set.
// Keys are cached for the lifetime the publisher advertises. An unknown kid
// triggers at most one refetch per minForcedRefreshWait, and a failed refresh
// keeps serving the keys already held.
type JWKSSource struct {
	url     string
	ttl     time.Duration
	fetcher Fetcher
	shared  DocumentCache
	logger  *slog.Logger
	now     func() time.Time

	group singleflight.Group

	mu          sync.RWMutex
	keys        map[string]*rsa.PublicKey
	expiresAt   time.Time
	lastFetched time.Time
}

// JWKSOption configures a JWKSSource.
type JWKSOption func(*JWKSSource)

// WithDocumentCache shares fetched documents through cache.
func WithDocumentCache(cache DocumentCache) JWKSOption {
	return func(s *JWKSSource) { s.shared = cache }
}

// WithJWKSClock replaces time.Now.
func WithJWKSClock(now func() time.Time) JWKSOption {
	return func(s *JWKSSource) { s.now = now }
}

// NewJWKSSource creates a key source that fetches cfg.URL through fetcher.
func NewJWKSSource(cfg JWKSConfig, fetcher Fetcher, logger *slog.Logger, opts ...JWKSOption) *JWKSSource {
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = defaultJWKSTTL
	}
	s := &JWKSSource{
		url:     cfg.URL,
		ttl:     ttl,
		fetcher: fetcher,
		logger:  logger,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// PublicKey returns the key published under kid.
func (s *JWKSSource) PublicKey(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	key, fresh, known := s.lookup(kid)
	if known && fresh {
		return key, nil
	}

	forced := fresh && !known
	if forced && !s.mayForceRefresh() {
		return nil, fmt.Errorf("%w: kid %q", ErrUnknownKey, kid)
	}

	if err := s.refresh(ctx, forced); err != nil {
		if known {
			s.logger.WarnContext(ctx, "jwks refresh failed, serving cached key",
				slog.String("kid", kid),
				slog.String("error", err.Error()),
			)
			return key, nil
		}
		return nil, err
	}

	key, _, known = s.lookup(kid)
	if !known {
		return nil, fmt.Errorf("%w: kid %q", ErrUnknownKey, kid)
	}
	return key, nil
}

func (s *JWKSSource) lookup(kid string) (*rsa.PublicKey, bool, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	key, ok := s.keys[kid]
	return key, s.keys != nil && s.now().Before(s.expiresAt), ok
}

func (s *JWKSSource) mayForceRefresh() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.now().Sub(s.lastFetched) >= minForcedRefreshWait
}

// refresh reloads the key set. Concurrent callers share one load. A forced
// refresh skips the shared cache, which may hold the same stale document.
func (s *JWKSSource) refresh(ctx context.Context, forced bool) error {
	key := "load"
	if forced {
		key = "fetch"
	}
	_, err, _ := s.group.Do(key, func() (any, error) {
		if !forced && s.shared != nil {
			if s.loadShared(ctx) {
				jwksRefreshes.WithLabelValues("shared").Inc()
				return nil, nil
			}
		}

		doc, ttl, err := s.fetch(ctx)
		if err != nil {
			jwksRefreshes.WithLabelValues("failed").Inc()
			return nil, err
		}
		keys, err := parseKeySet(doc)
		if err != nil {
			jwksRefreshes.WithLabelValues("failed").Inc()
			return nil, err
		}
		s.store(keys, ttl)
		jwksRefreshes.WithLabelValues("fetched").Inc()

		if s.shared != nil {
			if err := s.shared.Set(ctx, doc, ttl); err != nil {
				s.logger.WarnContext(ctx, "failed to share jwks document", slog.String("error", err.Error()))
			}
		}
		s.logger.InfoContext(ctx, "jwks refreshed",
			slog.Int("keys", len(keys)),
			slog.Duration("ttl", ttl),
		)
		return nil, nil
	})
	return err
}

func (s *JWKSSource) loadShared(ctx context.Context) bool {
	doc, err := s.shared.Get(ctx)
	if err != nil {
		s.logger.WarnContext(ctx, "shared jwks cache unavailable", slog.String("error", err.Error()))
		return false
	}
	if doc == nil {
		return false
	}
	keys, err := parseKeySet(doc)
	if err != nil {
		s.logger.WarnContext(ctx, "discarding unreadable shared jwks document", slog.String("error", err.Error()))
		return false
	}
	// The remaining shared TTL is not tracked, so hold it for the fallback.
	s.store(keys, s.ttl)
	return true
}

func (s *JWKSSource) store(keys map[string]*rsa.PublicKey, ttl time.Duration) {
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.keys = keys
	s.expiresAt = now.Add(ttl)
	s.lastFetched = now
}

func (s *JWKSSource) fetch(ctx context.Context) ([]byte, time.Duration, error) {
	resp, err := s.fetcher.Get(ctx, s.url)
	if err != nil {
		return nil, 0, fmt.Errorf("fetch jwks: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, 0, fmt.Errorf("fetch jwks: %w", httpclient.ParseResponseError(resp, upstreamName))
	}
	defer func() { _ = resp.Body.Close() }()

	doc, err := io.ReadAll(io.LimitReader(resp.Body, maxJWKSBody))
	if err != nil {
		return nil, 0, fmt.Errorf("read jwks body: %w", err)
	}

	ttl := s.ttl
	if maxAge, ok := maxAge(resp.Header.Get("Cache-Control")); ok {
		ttl = maxAge
	}
	return doc, ttl, nil
}

// maxAge extracts a positive max-age directive from a Cache-Control header.
func maxAge(header string) (time.Duration, bool) {
	for _, directive := range strings.Split(header, ",") {
		name, value, found := strings.Cut(strings.TrimSpace(directive), "=")
		if !found || !strings.EqualFold(name, "max-age") {
			continue
		}
		secs, err := strconv.Atoi(strings.Trim(value, `"`))
		if err != nil || secs <= 0 {
			return 0, false
		}
		return time.Duration(secs) * time.Second, true
	}
	return 0, false
}

type keySetDocument struct {
	Keys []json.RawMessage `json:"keys"`
}

type keyHeader struct {
	Kid string `json:"kid"`
	Kty string `json:"kty"`
	Use string `json:"use"`
}

// parseKeySet returns the RSA signing keys of a JWKS document by kid. Keys of
// other types or uses are skipped; a document without any usable key is an
// error.
func parseKeySet(doc []byte) (map[string]*rsa.PublicKey, error) {
	var set keySetDocument
	if err := json.Unmarshal(doc, &set); err != nil {
		return nil, fmt.Errorf("decode jwks: %w", err)
	}

	keys := make(map[string]*rsa.PublicKey, len(set.Keys))
	for _, raw := range set.Keys {
		var hdr keyHeader
		if err := json.Unmarshal(raw, &hdr); err != nil {
			return nil, fmt.Errorf("decode jwk: %w", err)
		}
		if hdr.Kid == "" || hdr.Kty != "RSA" || (hdr.Use != "" && hdr.Use != "sig") {
			continue
		}

		spec, err := jwk.Parse(string(raw))
		if err != nil {
			return nil, fmt.Errorf("parse jwk %q: %w", hdr.Kid, err)
		}
		pub, ok := spec.Key.(*rsa.PublicKey)
		if !ok {
			continue
		}
		keys[hdr.Kid] = pub
	}

	if len(keys) == 0 {
		return nil, errors.New("jwks contains no usable rsa signing keys")
	}
	return keys, nil
}
