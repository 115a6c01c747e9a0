package binding

import (
	"encoding/json"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Token kinds sharing the same binding shape but different lifetimes and
// store TTLs.
const (
	TokenTypeAccess  = "access"
	TokenTypeRefresh = "refresh"
)

// Storage key prefixes for binding entries and the per-user registry index.
const (
	bindingPrefix  = "token_binding:"
	registryPrefix = "user_tokens:"
)

// registryTTL pins the registry index to the longest possible token lifetime.
const registryTTL = 7 * 24 * time.Hour

// TokenBinding associates an issued token with the client that requested it.
// A binding exists in the store if and only if its token is still considered
// valid; absence rejects the token regardless of signature validity. Bindings
// are never mutated in place: revoke-and-reissue replaces them under a new
// jti.
type TokenBinding struct {
	JTI         string `json:"jti"`
	UserID      string `json:"userId"`
	Fingerprint string `json:"fingerprint"`
	IP          string `json:"ip"`
	UserAgent   string `json:"userAgent"`
	CreatedAt   int64  `json:"createdAt"` // unix milliseconds
	ExpiresAt   int64  `json:"expiresAt"` // unix milliseconds
	TokenType   string `json:"tokenType"`
}

// decodeBinding decodes a stored binding, failing closed: corrupt or
// unexpected shapes are reported as absent.
func decodeBinding(value string) (*TokenBinding, bool) {
	var b TokenBinding
	if err := json.Unmarshal([]byte(value), &b); err != nil {
		return nil, false
	}
	if b.JTI == "" || b.UserID == "" || b.Fingerprint == "" {
		return nil, false
	}
	return &b, true
}

// decodeRegistry decodes a stored registry entry. A corrupt entry yields an
// empty registry rather than an error.
func decodeRegistry(value string) []string {
	var jtis []string
	if err := json.Unmarshal([]byte(value), &jtis); err != nil {
		return nil
	}
	return jtis
}

// BoundClaims is the signed payload of a bound token.
type BoundClaims struct {
	UserID      string `json:"id"`
	Fingerprint string `json:"fingerprint"`
	jwt.RegisteredClaims
}

// IssuedToken is the result of minting a bound token.
type IssuedToken struct {
	Token string
	JTI   string
}

// ClientContext carries the connection metadata a fingerprint is derived
// from, plus the request id for security logging.
type ClientContext struct {
	IP        string
	UserAgent string
	RequestID string
}

// Validation failure reasons. These are machine-readable outcomes for
// logging and telemetry, not errors: a failed validation is a normal
// negative authentication result.
const (
	ReasonInvalidSignature    = "INVALID_SIGNATURE"
	ReasonMissingBinding      = "MISSING_BINDING"
	ReasonBindingNotFound     = "BINDING_NOT_FOUND"
	ReasonBindingExpired      = "BINDING_EXPIRED"
	ReasonFingerprintMismatch = "FINGERPRINT_MISMATCH"
)

// Result is the single-channel outcome of validating a bound token.
type Result struct {
	IsValid bool
	Payload *BoundClaims
	Reason  string
}

// DeviceInfo describes one distinct client seen among a user's active
// bindings.
type DeviceInfo struct {
	IP              string    `json:"ip"`
	UserAgent       string    `json:"userAgent"`
	LastSeen        time.Time `json:"lastSeen"`
	IsCurrentDevice bool      `json:"isCurrentDevice"`
}

// SecurityInfo summarizes a user's live sessions for a "where you're logged
// in" view. It is introspection data, not an access-control input.
type SecurityInfo struct {
	ActiveTokens  int          `json:"activeTokens"`
	RecentDevices []DeviceInfo `json:"recentDevices"`
}
