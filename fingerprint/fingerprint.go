package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"net/http"

	"github.com/ledgerly/sentinel/helper"
)

// unknownValue substitutes for missing connection metadata so that
// fingerprinting never blocks the authentication flow on its own.
const unknownValue = "unknown"

// Fingerprint identifies the client that presented a request. It is derived
// on every request and never stored on its own; only Hash is persisted as
// part of a token binding.
type Fingerprint struct {
	IP        string
	UserAgent string
	Hash      string
}

// Derive computes a deterministic fingerprint from connection metadata.
// Identical (ip, userAgent) pairs always produce the identical hash.
func Derive(ip, userAgent string) Fingerprint {
	if ip == "" {
		ip = unknownValue
	}
	if userAgent == "" {
		userAgent = unknownValue
	}

	sum := sha256.Sum256([]byte(ip + ":" + userAgent))

	return Fingerprint{
		IP:        ip,
		UserAgent: userAgent,
		Hash:      hex.EncodeToString(sum[:]),
	}
}

// FromRequest derives the fingerprint of an incoming HTTP request.
func FromRequest(r *http.Request) Fingerprint {
	return Derive(helper.ClientIP(r), r.UserAgent())
}
