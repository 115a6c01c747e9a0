package helper

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net"
	"net/http"
	"strings"
)

// GetHash returns the hex-encoded SHA-256 of value.
func GetHash(value string) string {
	h := sha256.Sum256([]byte(value))

	return hex.EncodeToString(h[:])
}

// ClientIP extracts the remote client address from a request, preferring the
// address chi's RealIP middleware rewrote into RemoteAddr.
func ClientIP(r *http.Request) string {
	addr := r.RemoteAddr
	if addr == "" {
		return ""
	}

	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}

	return strings.TrimSpace(addr)
}

func JSONResponse(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
