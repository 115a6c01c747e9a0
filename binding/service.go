package binding

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/ledgerly/sentinel/fingerprint"
	"github.com/ledgerly/sentinel/helper"
	"github.com/ledgerly/sentinel/jwtsec"
	"github.com/ledgerly/sentinel/logger"
	"github.com/ledgerly/sentinel/store"
)

// maxRecentDevices caps the device list returned by GetClientSecurityInfo.
const maxRecentDevices = 10

// Service issues, validates and revokes tokens cryptographically bound to a
// client fingerprint. Binding entries in the store are the source of truth
// for token validity; the per-user registry is a best-effort secondary index
// used only for introspection and mass revocation.
type Service struct {
	store   *store.ResilientStore
	jwtCfg  *jwtsec.Config
	logger  logger.Logger
	metrics *Metrics

	now func() time.Time
}

// NewService creates a token binding service. The store and signing config
// are injected; their lifecycle belongs to the host process.
func NewService(st *store.ResilientStore, jwtCfg *jwtsec.Config, log logger.Logger) *Service {
	return &Service{
		store:   st,
		jwtCfg:  jwtCfg,
		logger:  log,
		metrics: &Metrics{},
		now:     time.Now,
	}
}

// CreateBoundAccessToken mints a short-lived access token bound to the
// requesting client and records its binding in the store. The caller is
// expected to also register the jti in the user's registry.
func (s *Service) CreateBoundAccessToken(ctx context.Context, userID string, cc ClientContext) (*IssuedToken, error) {
	return s.issueBoundToken(ctx, userID, cc, TokenTypeAccess, s.jwtCfg.AccessTTL)
}

// CreateBoundRefreshToken mints a long-lived refresh token bound to the
// requesting client.
func (s *Service) CreateBoundRefreshToken(ctx context.Context, userID string, cc ClientContext) (*IssuedToken, error) {
	return s.issueBoundToken(ctx, userID, cc, TokenTypeRefresh, s.jwtCfg.RefreshTTL)
}

func (s *Service) issueBoundToken(ctx context.Context, userID string, cc ClientContext, tokenType string, ttl time.Duration) (*IssuedToken, error) {
	fp := fingerprint.Derive(cc.IP, cc.UserAgent)
	jti := helper.GenerateTokenID()
	now := s.now()
	expiresAt := now.Add(ttl)

	claims := BoundClaims{
		UserID:      userID,
		Fingerprint: fp.Hash,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			Issuer:    s.jwtCfg.Issuer,
			Audience:  jwt.ClaimStrings{s.jwtCfg.Audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(s.jwtCfg.Secret))
	if err != nil {
		return nil, fmt.Errorf("failed to sign token: %w", err)
	}

	entry := TokenBinding{
		JTI:         jti,
		UserID:      userID,
		Fingerprint: fp.Hash,
		IP:          fp.IP,
		UserAgent:   fp.UserAgent,
		CreatedAt:   now.UnixMilli(),
		ExpiresAt:   expiresAt.UnixMilli(),
		TokenType:   tokenType,
	}

	value, err := json.Marshal(entry)
	if err != nil {
		return nil, fmt.Errorf("failed to encode token binding: %w", err)
	}

	if err := s.store.Set(ctx, bindingPrefix+jti, string(value), ttl); err != nil {
		return nil, fmt.Errorf("failed to store token binding: %w", err)
	}

	s.metrics.IncrementTokensIssued()

	s.logger.Debug("bound token issued",
		logger.String("jti", jti),
		logger.String("token_type", tokenType),
		logger.String("request_id", cc.RequestID),
		logger.Time("expires_at", expiresAt))

	return &IssuedToken{Token: token, JTI: jti}, nil
}

// ValidateBoundToken verifies a presented token against the current client
// context and the stored binding. Every negative outcome is a normal result
// with a machine-readable reason, never an error: the caller needs a single
// success/failure channel in its authentication gate.
func (s *Service) ValidateBoundToken(ctx context.Context, tokenValue string, cc ClientContext) Result {
	claims := &BoundClaims{}

	_, err := jwt.ParseWithClaims(tokenValue, claims, func(t *jwt.Token) (interface{}, error) {
		return []byte(s.jwtCfg.Secret), nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.jwtCfg.Issuer),
		jwt.WithAudience(s.jwtCfg.Audience),
	)
	if err != nil {
		return s.reject(ReasonInvalidSignature, claims.ID, cc)
	}

	if claims.ID == "" || claims.Fingerprint == "" {
		return s.reject(ReasonMissingBinding, claims.ID, cc)
	}

	value, found := s.store.Get(ctx, bindingPrefix+claims.ID)
	if !found {
		return s.reject(ReasonBindingNotFound, claims.ID, cc)
	}

	entry, ok := decodeBinding(value)
	if !ok {
		// Corrupt binding data fails closed: treat as absent.
		s.logger.Warn("corrupt token binding treated as absent",
			logger.String("jti", claims.ID),
			logger.String("request_id", cc.RequestID))
		return s.reject(ReasonBindingNotFound, claims.ID, cc)
	}

	if s.now().UnixMilli() > entry.ExpiresAt {
		// Expired bindings are actively purged on first use after expiry,
		// not just ignored.
		_ = s.store.Delete(ctx, bindingPrefix+claims.ID)
		s.metrics.IncrementBindingsExpired()
		return s.reject(ReasonBindingExpired, claims.ID, cc)
	}

	current := fingerprint.Derive(cc.IP, cc.UserAgent)
	if current.Hash != entry.Fingerprint {
		s.metrics.IncrementFingerprintMismatches()
		s.logger.Warn("token binding fingerprint mismatch",
			logger.String("jti", claims.ID),
			logger.String("expected_fingerprint", entry.Fingerprint),
			logger.String("actual_fingerprint", current.Hash),
			logger.String("expected_ip", entry.IP),
			logger.String("actual_ip", current.IP),
			logger.String("expected_user_agent", entry.UserAgent),
			logger.String("actual_user_agent", current.UserAgent),
			logger.String("request_id", cc.RequestID))
		return Result{IsValid: false, Reason: ReasonFingerprintMismatch}
	}

	s.metrics.IncrementTokensValidated()

	return Result{IsValid: true, Payload: claims}
}

func (s *Service) reject(reason, jti string, cc ClientContext) Result {
	s.metrics.IncrementValidationFailures()
	s.logger.Debug("bound token rejected",
		logger.String("reason", reason),
		logger.String("jti", jti),
		logger.String("request_id", cc.RequestID))
	return Result{IsValid: false, Reason: reason}
}

// RevokeTokenBinding invalidates the token identified by jti. Idempotent:
// revoking an absent binding is not an error.
func (s *Service) RevokeTokenBinding(ctx context.Context, jti string) error {
	if err := s.store.Delete(ctx, bindingPrefix+jti); err != nil {
		return err
	}

	s.metrics.IncrementBindingsRevoked()

	s.logger.Info("token binding revoked", logger.String("jti", jti))
	return nil
}

// AddTokenToUserRegistry appends jti to the user's registry index. Issuance
// leaves this to the caller so multiple tokens minted in one request can be
// registered together.
func (s *Service) AddTokenToUserRegistry(ctx context.Context, userID, jti string) error {
	key := registryPrefix + userID

	var jtis []string
	if value, found := s.store.Get(ctx, key); found {
		jtis = decodeRegistry(value)
	}
	jtis = append(jtis, jti)

	value, err := json.Marshal(jtis)
	if err != nil {
		return fmt.Errorf("failed to encode token registry: %w", err)
	}

	return s.store.Set(ctx, key, string(value), registryTTL)
}

// RevokeAllUserTokens revokes every binding listed in the user's registry
// and clears the registry. Best-effort: a binding issued but never
// registered ages out via its own TTL instead.
func (s *Service) RevokeAllUserTokens(ctx context.Context, userID string) error {
	key := registryPrefix + userID

	value, found := s.store.Get(ctx, key)
	if !found {
		return nil
	}

	jtis := decodeRegistry(value)
	for _, jti := range jtis {
		if err := s.RevokeTokenBinding(ctx, jti); err != nil {
			return err
		}
	}

	if err := s.store.Delete(ctx, key); err != nil {
		return err
	}

	s.logger.Info("all user tokens revoked",
		logger.String("user_id", userID),
		logger.Int("revoked", len(jtis)))

	return nil
}

// GetClientSecurityInfo enumerates the user's non-expired bindings,
// deduplicated by (ip, userAgent) keeping the most recent, and returns up to
// the ten most recently seen distinct devices plus the live token count.
func (s *Service) GetClientSecurityInfo(ctx context.Context, userID string, cc ClientContext) (*SecurityInfo, error) {
	info := &SecurityInfo{RecentDevices: []DeviceInfo{}}

	value, found := s.store.Get(ctx, registryPrefix+userID)
	if !found {
		return info, nil
	}

	currentHash := fingerprint.Derive(cc.IP, cc.UserAgent).Hash
	nowMillis := s.now().UnixMilli()

	type device struct {
		ip        string
		userAgent string
		lastSeen  int64
		current   bool
	}
	devices := make(map[string]device)

	for _, jti := range decodeRegistry(value) {
		bindingValue, found := s.store.Get(ctx, bindingPrefix+jti)
		if !found {
			continue
		}
		entry, ok := decodeBinding(bindingValue)
		if !ok || nowMillis > entry.ExpiresAt {
			continue
		}

		info.ActiveTokens++

		key := entry.IP + ":" + entry.UserAgent
		if existing, seen := devices[key]; !seen || entry.CreatedAt > existing.lastSeen {
			devices[key] = device{
				ip:        entry.IP,
				userAgent: entry.UserAgent,
				lastSeen:  entry.CreatedAt,
				current:   entry.Fingerprint == currentHash,
			}
		}
	}

	ordered := make([]device, 0, len(devices))
	for _, d := range devices {
		ordered = append(ordered, d)
	}
	sort.Slice(ordered, func(i, j int) bool {
		return ordered[i].lastSeen > ordered[j].lastSeen
	})
	if len(ordered) > maxRecentDevices {
		ordered = ordered[:maxRecentDevices]
	}

	for _, d := range ordered {
		info.RecentDevices = append(info.RecentDevices, DeviceInfo{
			IP:              d.ip,
			UserAgent:       d.userAgent,
			LastSeen:        time.UnixMilli(d.lastSeen).UTC(),
			IsCurrentDevice: d.current,
		})
	}

	return info, nil
}

// GetMetrics returns a snapshot of current metrics
func (s *Service) GetMetrics() map[string]int64 {
	return s.metrics.GetSnapshot()
}
