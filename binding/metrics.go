package binding

import "sync"

// Metrics tracks operational statistics
type Metrics struct {
	mu                    sync.RWMutex
	TokensIssued          int64
	TokensValidated       int64
	ValidationFailures    int64
	FingerprintMismatches int64
	BindingsExpired       int64
	BindingsRevoked       int64
}

func (m *Metrics) IncrementTokensIssued() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.TokensIssued++
}

func (m *Metrics) IncrementTokensValidated() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.TokensValidated++
}

func (m *Metrics) IncrementValidationFailures() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ValidationFailures++
}

func (m *Metrics) IncrementFingerprintMismatches() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.FingerprintMismatches++
}

func (m *Metrics) IncrementBindingsExpired() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.BindingsExpired++
}

func (m *Metrics) IncrementBindingsRevoked() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.BindingsRevoked++
}

func (m *Metrics) GetSnapshot() map[string]int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return map[string]int64{
		"tokens_issued":          m.TokensIssued,
		"tokens_validated":       m.TokensValidated,
		"validation_failures":    m.ValidationFailures,
		"fingerprint_mismatches": m.FingerprintMismatches,
		"bindings_expired":       m.BindingsExpired,
		"bindings_revoked":       m.BindingsRevoked,
	}
}
