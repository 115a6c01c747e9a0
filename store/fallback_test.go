package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFallbackStore_SetGet(t *testing.T) {
	f := newFallbackStore()
	now := time.Now()

	f.set("k1", "v1", now.Add(time.Minute))

	value, found := f.get("k1", now)
	assert.True(t, found)
	assert.Equal(t, "v1", value)
}

func TestFallbackStore_ExpiryOnRead(t *testing.T) {
	f := newFallbackStore()
	now := time.Now()

	f.set("k1", "v1", now.Add(time.Second))

	_, found := f.get("k1", now.Add(2*time.Second))
	assert.False(t, found)
	assert.Zero(t, f.len())
}

func TestFallbackStore_LazySweepOnWrite(t *testing.T) {
	f := newFallbackStore()

	f.set("old", "v", time.Now().Add(-time.Second))
	f.set("fresh", "v", time.Now().Add(time.Minute))

	assert.Equal(t, 1, f.len())
}

func TestFallbackStore_Delete(t *testing.T) {
	f := newFallbackStore()
	now := time.Now()

	f.set("k1", "v1", now.Add(time.Minute))
	f.delete("k1")
	f.delete("k1") // idempotent

	_, found := f.get("k1", now)
	assert.False(t, found)
}

func TestFallbackStore_ScanPrefix(t *testing.T) {
	f := newFallbackStore()
	now := time.Now()

	f.set("refresh:a", "1", now.Add(time.Minute))
	f.set("refresh:b", "2", now.Add(time.Minute))
	f.set("blacklist:c", "3", now.Add(time.Minute))
	f.set("refresh:expired", "4", now.Add(time.Minute))

	var visited []string
	f.scanPrefix("refresh:", now.Add(2*time.Minute), func(key, value string) bool {
		visited = append(visited, key)
		return value == "1"
	})

	// The expired entry is pruned without a callback; "refresh:a" was removed
	// by the callback's verdict.
	assert.Len(t, visited, 2)
	assert.Equal(t, 2, f.len())

	_, found := f.get("refresh:a", now)
	assert.False(t, found)
	_, found = f.get("blacklist:c", now)
	assert.True(t, found)
}

func TestFallbackStore_Clear(t *testing.T) {
	f := newFallbackStore()

	f.set("k1", "v1", time.Now().Add(time.Minute))
	f.set("k2", "v2", time.Now().Add(time.Minute))
	f.clear()

	assert.Zero(t, f.len())
}
