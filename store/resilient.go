package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dgraph-io/ristretto/v2"
	"github.com/hashicorp/go-multierror"
	"github.com/ledgerly/sentinel/helper"
	"github.com/ledgerly/sentinel/logger"
)

// blacklistCacheTTL bounds how long a positive blacklist lookup may be served
// from the local cache tier without re-reading the backend. Blacklist entries
// are never removed before their natural expiry, so a short positive cache is
// safe.
const blacklistCacheTTL = time.Minute

// Config holds configuration for the resilient store
type Config struct {
	// CacheMaxCost is the maximum cost of the blacklist cache (in bytes, roughly)
	CacheMaxCost int64

	// CacheNumCounters is the number of keys to track frequency
	CacheNumCounters int64

	// EnableMetrics enables collection of operational metrics
	EnableMetrics bool
}

// DefaultConfig returns a production-ready default configuration
func DefaultConfig() *Config {
	return &Config{
		CacheMaxCost:     10 << 20, // 10 MB
		CacheNumCounters: 1e6,      // 1 million
		EnableMetrics:    true,
	}
}

// ResilientStore is a TTL key-value store backed by a durable remote backend
// with an automatic in-process fallback. A backend failure never reaches a
// caller: the failing operation is retried against the fallback map, trading
// cross-instance consistency for availability during an outage.
//
// Blacklist lookups sit on the request hot path and get a ristretto cache
// tier in front of the backend.
type ResilientStore struct {
	backend  Backend
	fallback *fallbackStore

	blacklistCache *ristretto.Cache[string, struct{}]

	config  *Config
	logger  logger.Logger
	metrics *Metrics

	now func() time.Time
}

// NewResilientStore creates a resilient store. A nil backend means no durable
// store is configured and every operation runs against the fallback map.
func NewResilientStore(backend Backend, log logger.Logger, config *Config) (*ResilientStore, error) {
	if config == nil {
		config = DefaultConfig()
	}

	store := &ResilientStore{
		backend:  backend,
		fallback: newFallbackStore(),
		config:   config,
		logger:   log,
		metrics:  &Metrics{},
		now:      time.Now,
	}

	cache, err := ristretto.NewCache(&ristretto.Config[string, struct{}]{
		NumCounters: config.CacheNumCounters,
		MaxCost:     config.CacheMaxCost,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize blacklist cache: %w", err)
	}
	store.blacklistCache = cache

	if backend == nil {
		log.Info("no durable backend configured, token store runs in-memory only")
	} else {
		log.Info("token store initialized",
			logger.Bool("metrics_enabled", config.EnableMetrics))
	}

	return store, nil
}

// Set stores value under key for ttl. A non-positive ttl means the entry is
// already expired; it is removed rather than written.
func (s *ResilientStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if ttl <= 0 {
		return s.Delete(ctx, key)
	}

	expiresAt := s.now().Add(ttl)

	if s.backend != nil {
		err := s.backend.Set(ctx, key, value, ttl)
		if err == nil {
			return nil
		}
		s.degraded("set", err)
	}

	s.fallback.set(key, value, expiresAt)
	if s.config.EnableMetrics {
		s.metrics.IncrementFallbackWrites()
	}

	return nil
}

// Get retrieves the value under key. The fallback map is consulted when the
// backend errors, and also on a backend miss so entries written during an
// outage stay readable after the backend recovers.
func (s *ResilientStore) Get(ctx context.Context, key string) (string, bool) {
	if s.backend != nil {
		value, found, err := s.backend.Get(ctx, key)
		if err == nil {
			if found {
				return value, true
			}
		} else {
			s.degraded("get", err)
		}
	}

	value, found := s.fallback.get(key, s.now())
	if found && s.config.EnableMetrics {
		s.metrics.IncrementFallbackReads()
	}
	return value, found
}

// Delete removes key from every tier. Deleting an absent key is not an error.
func (s *ResilientStore) Delete(ctx context.Context, key string) error {
	if s.backend != nil {
		if err := s.backend.Delete(ctx, key); err != nil {
			s.degraded("delete", err)
		}
	}

	s.fallback.delete(key)
	s.blacklistCache.Del(key)

	return nil
}

// BlacklistToken marks a bearer token as revoked until expiresAt.
func (s *ResilientStore) BlacklistToken(ctx context.Context, token string, expiresAt time.Time) error {
	ttl := ttlUntil(expiresAt, s.now())
	if ttl <= 0 {
		return nil
	}

	key := blacklistPrefix + token
	if err := s.Set(ctx, key, "blacklisted", ttl); err != nil {
		return err
	}

	cacheTTL := ttl
	if cacheTTL > blacklistCacheTTL {
		cacheTTL = blacklistCacheTTL
	}
	s.blacklistCache.SetWithTTL(key, struct{}{}, 1, cacheTTL)
	s.blacklistCache.Wait()

	if s.config.EnableMetrics {
		s.metrics.IncrementTokensBlacklisted()
	}

	return nil
}

// IsTokenBlacklisted reports whether token has been blacklisted.
func (s *ResilientStore) IsTokenBlacklisted(ctx context.Context, token string) bool {
	key := blacklistPrefix + token

	if _, found := s.blacklistCache.Get(key); found {
		if s.config.EnableMetrics {
			s.metrics.IncrementBlacklistCacheHits()
		}
		return true
	}
	if s.config.EnableMetrics {
		s.metrics.IncrementBlacklistCacheMisses()
	}

	value, found := s.Get(ctx, key)
	if !found || value != "blacklisted" {
		return false
	}

	// Refill the cache tier; only positive results are cached so a fresh
	// blacklisting is always visible.
	s.blacklistCache.SetWithTTL(key, struct{}{}, 1, blacklistCacheTTL)
	s.blacklistCache.Wait()

	return true
}

// StoreRefreshToken persists a refresh-token record keyed by the one-way hash
// of the token value, so a store compromise does not yield usable credentials.
func (s *ResilientStore) StoreRefreshToken(ctx context.Context, token, userID string, expiresAt time.Time) error {
	rec := RefreshRecord{
		UserID:    userID,
		ExpiresAt: expiresAt.UnixMilli(),
	}

	value, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to encode refresh record: %w", err)
	}

	key := refreshPrefix + helper.GetHash(token)
	if err := s.Set(ctx, key, string(value), ttlUntil(expiresAt, s.now())); err != nil {
		return err
	}

	if s.config.EnableMetrics {
		s.metrics.IncrementRefreshTokensStored()
	}

	return nil
}

// ValidateRefreshToken resolves a refresh token to its userID. Expired
// records are removed on first use.
func (s *ResilientStore) ValidateRefreshToken(ctx context.Context, token string) (string, bool) {
	key := refreshPrefix + helper.GetHash(token)

	value, found := s.Get(ctx, key)
	if !found {
		return "", false
	}

	rec, ok := decodeRefreshRecord(value)
	if !ok {
		s.logger.Warn("corrupt refresh record treated as absent",
			logger.String("key_hash", helper.GetHash(key)))
		return "", false
	}

	if s.now().UnixMilli() > rec.ExpiresAt {
		_ = s.RevokeRefreshToken(ctx, token)
		return "", false
	}

	return rec.UserID, true
}

// RevokeRefreshToken removes a stored refresh token.
func (s *ResilientStore) RevokeRefreshToken(ctx context.Context, token string) error {
	return s.Delete(ctx, refreshPrefix+helper.GetHash(token))
}

// RevokeAllUserRefreshTokens removes every stored refresh token belonging to
// userID. O(n) in stored entries; acceptable for an infrequent administrative
// action. Corrupt entries encountered during the scan are removed.
func (s *ResilientStore) RevokeAllUserRefreshTokens(ctx context.Context, userID string) error {
	if s.backend != nil {
		var deleteErrs *multierror.Error

		err := s.backend.Scan(ctx, refreshPrefix+"*", func(key, value string) error {
			rec, ok := decodeRefreshRecord(value)
			if !ok || rec.UserID == userID {
				if err := s.backend.Delete(ctx, key); err != nil {
					deleteErrs = multierror.Append(deleteErrs, err)
				}
			}
			return nil
		})
		if err != nil {
			s.degraded("scan", err)
		}
		if deleteErrs.ErrorOrNil() != nil {
			s.degraded("revoke_all", deleteErrs)
		}
	}

	// Entries written while degraded live in the fallback map regardless of
	// current backend health.
	s.fallback.scanPrefix(refreshPrefix, s.now(), func(key, value string) bool {
		rec, ok := decodeRefreshRecord(value)
		return !ok || rec.UserID == userID
	})

	return nil
}

// Status reports backend reachability and whether the fallback is active.
func (s *ResilientStore) Status(ctx context.Context) (connected bool, fallbackActive bool) {
	if s.backend == nil {
		return false, true
	}

	if err := s.backend.Ping(ctx); err != nil {
		return false, true
	}
	return true, s.fallback.len() > 0
}

// Clear removes all stored data. For tests.
func (s *ResilientStore) Clear(ctx context.Context) {
	if s.backend != nil {
		if err := s.backend.FlushAll(ctx); err != nil {
			s.degraded("flush", err)
		}
	}
	s.fallback.clear()
	s.blacklistCache.Clear()
}

// GetMetrics returns a snapshot of current metrics
func (s *ResilientStore) GetMetrics() map[string]int64 {
	if !s.config.EnableMetrics {
		return nil
	}
	return s.metrics.GetSnapshot()
}

// Close shuts down the store.
func (s *ResilientStore) Close() error {
	s.blacklistCache.Close()

	if s.backend != nil {
		return s.backend.Close()
	}
	return nil
}

// degraded records a backend failure. Storage faults are recovered locally
// and never surfaced to the caller.
func (s *ResilientStore) degraded(op string, err error) {
	if s.config.EnableMetrics {
		s.metrics.IncrementBackendErrors()
	}
	s.logger.Warn("durable backend unavailable, degrading to fallback storage",
		logger.String("op", op),
		logger.Err(err))
}
