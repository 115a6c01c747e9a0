package csrf

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ledgerly/sentinel/helper"
)

// maxTokenAge bounds how long a minted token stays verifiable. Matches the
// lifetime of the secret cookie.
const maxTokenAge = 24 * time.Hour

// secretLength is the length of generated per-session secrets.
const secretLength = 32

// signaturePrefix is mixed into the signed message so a token cannot be
// confused with any other HMAC this process produces over a bare timestamp.
const signaturePrefix = "csrf-"

// Token is a minted double-submit pair: the token travels in a response body
// or header, the secret in an HttpOnly cookie.
type Token struct {
	Token  string
	Secret string
}

// GenerateToken mints a timestamped CSRF token signed with secret. When
// secret is empty a fresh per-session secret is generated and returned
// alongside the token.
func GenerateToken(secret string) (*Token, error) {
	if secret == "" {
		generated, err := helper.GenerateSecret(secretLength)
		if err != nil {
			return nil, fmt.Errorf("failed to generate csrf secret: %w", err)
		}
		secret = generated
	}

	ts := strconv.FormatInt(time.Now().UnixMilli(), 10)
	return &Token{
		Token:  ts + "." + sign(secret, ts),
		Secret: secret,
	}, nil
}

// VerifyToken checks a presented token against the session secret. All
// failure modes collapse to false: malformed shape, unparsable or future
// timestamp, expired age, or signature mismatch.
func VerifyToken(token, secret string) bool {
	if token == "" || secret == "" {
		return false
	}

	ts, signature, ok := strings.Cut(token, ".")
	if !ok || ts == "" || signature == "" {
		return false
	}

	issuedAt, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return false
	}

	age := time.Now().UnixMilli() - issuedAt
	if age < 0 || age > maxTokenAge.Milliseconds() {
		return false
	}

	expected := sign(secret, ts)
	if len(signature) != len(expected) {
		return false
	}
	return hmac.Equal([]byte(signature), []byte(expected))
}

func sign(secret, ts string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(signaturePrefix + ts))
	return hex.EncodeToString(mac.Sum(nil))
}
