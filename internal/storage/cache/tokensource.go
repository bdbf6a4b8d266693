// Package cache shares FCM access tokens between relay replicas so they do
// not each mint their own.
package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/tinywideclouds/go-fcm-relay/pkg/credential"
)

// ErrMiss is returned by Client.Get when the key does not exist.
var ErrMiss = errors.New("cache miss")

// Client is the subset of cache commands the token cache needs.
type Client interface {
	Get(ctx context.Context, key string, dest any) error
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Del(ctx context.Context, key string) error
}

// DefaultSkew is how long before expiry a cached token stops being served.
const DefaultSkew = time.Minute

// CachedTokenSource adds read-aside caching to a credential.Source.
type CachedTokenSource struct {
	source credential.Source
	cache  Client
	key    string
	skew   time.Duration
	now    func() time.Time
	logger *slog.Logger
}

// NewCachedTokenSource caches tokens from source under a key scoped to
// projectID.
func NewCachedTokenSource(source credential.Source, cache Client, projectID string, logger *slog.Logger) *CachedTokenSource {
	return &CachedTokenSource{
		source: source,
		cache:  cache,
		key:    fmt.Sprintf("fcm:token:%s", projectID),
		skew:   DefaultSkew,
		now:    time.Now,
		logger: logger.With("component", "CachedTokenSource"),
	}
}

// Token serves a cached token while it is valid, otherwise fetches a fresh
// one and stores it until shortly before it expires. Cache failures only
// cost a fetch.
func (s *CachedTokenSource) Token(ctx context.Context) (*credential.Token, error) {
	var cached credential.Token
	err := s.cache.Get(ctx, s.key, &cached)
	if err == nil && cached.Valid(s.now(), s.skew) {
		return &cached, nil
	}
	if err != nil && !errors.Is(err, ErrMiss) {
		s.logger.Warn("Token cache read failed", "err", err)
	}

	fresh, err := s.source.Token(ctx)
	if err != nil {
		return nil, err
	}

	ttl := time.Duration(0)
	if !fresh.Expiry.IsZero() {
		ttl = fresh.Expiry.Sub(s.now()) - s.skew
		if ttl <= 0 {
			return fresh, nil
		}
	}
	if err := s.cache.Set(ctx, s.key, fresh, ttl); err != nil {
		s.logger.Warn("Token cache write failed", "err", err)
	}
	return fresh, nil
}

// Invalidate evicts the cached token, e.g. after the backend rejected it.
func (s *CachedTokenSource) Invalidate(ctx context.Context) error {
	return s.cache.Del(ctx, s.key)
}
