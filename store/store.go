package store

import (
	"encoding/json"
	"sync"
	"time"
)

// Key prefixes used across the token store. The layout is shared with the
// durable backend so that entries written during an outage and entries
// written while healthy are interchangeable.
const (
	blacklistPrefix = "blacklist:"
	refreshPrefix   = "refresh:"
)

// RefreshRecord is the typed shape of a stored refresh-token entry. The raw
// token is never stored; entries are keyed by its SHA-256.
type RefreshRecord struct {
	UserID    string `json:"userId"`
	ExpiresAt int64  `json:"expiresAt"` // unix milliseconds
}

// decodeRefreshRecord decodes a stored refresh record, failing closed: a
// corrupt or unexpected shape is reported as absent, never as a crash.
func decodeRefreshRecord(value string) (*RefreshRecord, bool) {
	var rec RefreshRecord
	if err := json.Unmarshal([]byte(value), &rec); err != nil {
		return nil, false
	}
	if rec.UserID == "" || rec.ExpiresAt == 0 {
		return nil, false
	}
	return &rec, true
}

// ttlUntil derives the storage TTL in whole seconds for an entry that should
// vanish at expiresAt. An already-expired entry gets a zero TTL and must not
// be treated as present.
func ttlUntil(expiresAt time.Time, now time.Time) time.Duration {
	secs := expiresAt.Sub(now) / time.Second
	if secs <= 0 {
		return 0
	}
	return secs * time.Second
}

// Metrics tracks operational statistics
type Metrics struct {
	mu                   sync.RWMutex
	BackendErrors        int64
	FallbackWrites       int64
	FallbackReads        int64
	BlacklistCacheHits   int64
	BlacklistCacheMisses int64
	TokensBlacklisted    int64
	RefreshTokensStored  int64
}

func (m *Metrics) IncrementBackendErrors() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.BackendErrors++
}

func (m *Metrics) IncrementFallbackWrites() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.FallbackWrites++
}

func (m *Metrics) IncrementFallbackReads() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.FallbackReads++
}

func (m *Metrics) IncrementBlacklistCacheHits() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.BlacklistCacheHits++
}

func (m *Metrics) IncrementBlacklistCacheMisses() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.BlacklistCacheMisses++
}

func (m *Metrics) IncrementTokensBlacklisted() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.TokensBlacklisted++
}

func (m *Metrics) IncrementRefreshTokensStored() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RefreshTokensStored++
}

func (m *Metrics) GetSnapshot() map[string]int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return map[string]int64{
		"backend_errors":         m.BackendErrors,
		"fallback_writes":        m.FallbackWrites,
		"fallback_reads":         m.FallbackReads,
		"blacklist_cache_hits":   m.BlacklistCacheHits,
		"blacklist_cache_misses": m.BlacklistCacheMisses,
		"tokens_blacklisted":     m.TokensBlacklisted,
		"refresh_tokens_stored":  m.RefreshTokensStored,
	}
}
