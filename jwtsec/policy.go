package jwtsec

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ledgerly/sentinel/logger"
)

const (
	// MinSecretLength is the hard lower bound on signing secret length.
	// Shorter secrets are a configuration error, not a warning.
	MinSecretLength = 32

	// RecommendedSecretLength is the length below which a warning is raised.
	RecommendedSecretLength = 64

	DefaultAccessTTL  = time.Hour
	DefaultRefreshTTL = 7 * 24 * time.Hour

	DefaultIssuer   = "ledgerly-api"
	DefaultAudience = "ledgerly-app"
)

var (
	// ErrMissingSecret is returned when no signing secret is configured.
	ErrMissingSecret = errors.New("jwt signing secret is required")

	// ErrSecretTooShort is returned when the secret is below MinSecretLength.
	ErrSecretTooShort = fmt.Errorf("jwt signing secret must be at least %d characters", MinSecretLength)
)

// Config carries the validated signing material and token lifetimes. A Config
// only exists if the secret passed validation; the service refuses to issue
// tokens otherwise.
type Config struct {
	Secret     string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	Issuer     string
	Audience   string
}

// ValidateSecret checks signing secret strength. A fatal weakness returns an
// error; survivable weaknesses come back as warnings for the caller to log.
func ValidateSecret(secret string) ([]string, error) {
	if secret == "" {
		return nil, ErrMissingSecret
	}

	if len(secret) < MinSecretLength {
		return nil, ErrSecretTooShort
	}

	var warnings []string

	if len(secret) < RecommendedSecretLength {
		warnings = append(warnings,
			fmt.Sprintf("signing secret shorter than recommended %d characters", RecommendedSecretLength))
	}

	lowered := strings.ToLower(secret)
	for _, word := range []string{"secret", "password", "key"} {
		if strings.Contains(lowered, word) {
			warnings = append(warnings,
				fmt.Sprintf("signing secret contains the common word %q", word))
			break
		}
	}

	unique := make(map[rune]struct{}, len(secret))
	for _, c := range secret {
		unique[c] = struct{}{}
	}
	if len(unique) < 16 {
		warnings = append(warnings, "signing secret has low character diversity")
	}

	return warnings, nil
}

// Load validates the secret and builds a Config, applying defaults for any
// unset lifetime. It fails closed: a missing or short secret is an error and
// no Config is produced.
func Load(secret string, accessTTL, refreshTTL time.Duration, log logger.Logger) (*Config, error) {
	warnings, err := ValidateSecret(secret)
	if err != nil {
		return nil, err
	}

	for _, w := range warnings {
		log.Warn("jwt secret policy warning", logger.String("warning", w))
	}

	if accessTTL <= 0 {
		accessTTL = DefaultAccessTTL
	}
	if refreshTTL <= 0 {
		refreshTTL = DefaultRefreshTTL
	}

	return &Config{
		Secret:     secret,
		AccessTTL:  accessTTL,
		RefreshTTL: refreshTTL,
		Issuer:     DefaultIssuer,
		Audience:   DefaultAudience,
	}, nil
}
