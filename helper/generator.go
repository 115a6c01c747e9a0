package helper

import (
	"crypto/rand"

	"github.com/google/uuid"
	"github.com/hashicorp/go-secure-stdlib/base62"
	"github.com/oklog/ulid"
)

// GenerateTokenID mints a unique token identifier (jti) for a signed token.
func GenerateTokenID() string {
	return uuid.NewString()
}

// GenerateSecret generates a cryptographically secure random secret of the
// given length, encoded in base62.
func GenerateSecret(length int) (string, error) {
	return base62.Random(length)
}

func GenerateRequestID() string {
	return ulid.MustNew(ulid.Now(), rand.Reader).String()
}
