package fingerprint

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDerive_Deterministic(t *testing.T) {
	first := Derive("192.168.1.10", "Mozilla/5.0")
	second := Derive("192.168.1.10", "Mozilla/5.0")

	assert.Equal(t, first.Hash, second.Hash)
	assert.Len(t, first.Hash, 64)
}

func TestDerive_DistinctInputs(t *testing.T) {
	base := Derive("192.168.1.10", "Mozilla/5.0")

	assert.NotEqual(t, base.Hash, Derive("192.168.1.11", "Mozilla/5.0").Hash)
	assert.NotEqual(t, base.Hash, Derive("192.168.1.10", "curl/8.0").Hash)
}

func TestDerive_MissingParts(t *testing.T) {
	fp := Derive("", "")

	assert.Equal(t, "unknown", fp.IP)
	assert.Equal(t, "unknown", fp.UserAgent)
	assert.Equal(t, Derive("unknown", "unknown").Hash, fp.Hash)
}

func TestDerive_SeparatorMatters(t *testing.T) {
	// "a:b"+":"+"c" and "a"+":"+"b:c" still hash the same raw string, but
	// ip and ua swap must not collide.
	assert.NotEqual(t, Derive("a", "b").Hash, Derive("b", "a").Hash)
}

func TestFromRequest(t *testing.T) {
	r := httptest.NewRequest("GET", "/v1/auth/security-info", nil)
	r.RemoteAddr = "10.1.2.3:54321"
	r.Header.Set("User-Agent", "Mozilla/5.0")

	fp := FromRequest(r)

	require.Equal(t, "10.1.2.3", fp.IP)
	require.Equal(t, "Mozilla/5.0", fp.UserAgent)
	assert.Equal(t, Derive("10.1.2.3", "Mozilla/5.0").Hash, fp.Hash)
}

func TestFromRequest_NoUserAgent(t *testing.T) {
	r := httptest.NewRequest("GET", "/", nil)
	r.RemoteAddr = "10.1.2.3:54321"
	r.Header.Del("User-Agent")

	fp := FromRequest(r)

	assert.Equal(t, "unknown", fp.UserAgent)
}
