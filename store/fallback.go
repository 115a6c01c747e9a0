package store

import (
	"strings"
	"sync"
	"time"
)

type fallbackEntry struct {
	value     string
	expiresAt time.Time
}

// fallbackStore is the in-process degraded substitute for the durable
// backend. It is lossless: every write is retained until its expiry, unlike
// a cache with an admission policy. Expired entries are swept lazily on each
// write and pruned on read.
type fallbackStore struct {
	mu   sync.RWMutex
	data map[string]fallbackEntry
}

func newFallbackStore() *fallbackStore {
	return &fallbackStore{
		data: make(map[string]fallbackEntry),
	}
}

func (f *fallbackStore) set(key, value string, expiresAt time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.data[key] = fallbackEntry{value: value, expiresAt: expiresAt}
	f.sweepLocked(time.Now())
}

func (f *fallbackStore) get(key string, now time.Time) (string, bool) {
	f.mu.RLock()
	entry, ok := f.data[key]
	f.mu.RUnlock()

	if !ok {
		return "", false
	}

	if now.After(entry.expiresAt) {
		f.mu.Lock()
		delete(f.data, key)
		f.mu.Unlock()
		return "", false
	}

	return entry.value, true
}

func (f *fallbackStore) delete(key string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.data, key)
}

// scanPrefix visits every live entry whose key starts with prefix. The
// callback returns true to delete the entry.
func (f *fallbackStore) scanPrefix(prefix string, now time.Time, fn func(key, value string) (remove bool)) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for key, entry := range f.data {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		if now.After(entry.expiresAt) {
			delete(f.data, key)
			continue
		}
		if fn(key, entry.value) {
			delete(f.data, key)
		}
	}
}

func (f *fallbackStore) clear() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.data = make(map[string]fallbackEntry)
}

func (f *fallbackStore) len() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.data)
}

// sweepLocked removes expired entries. Linear scan on write keeps the design
// simple; the map only holds short-lived session material.
func (f *fallbackStore) sweepLocked(now time.Time) {
	for key, entry := range f.data {
		if now.After(entry.expiresAt) {
			delete(f.data, key)
		}
	}
}
