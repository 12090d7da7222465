// Package middleware provides HTTP middleware for the feedback engine.
package middleware

import (
	"crypto/rand"
	"encoding/hex"
	"net/http"

	"github.com/agentlens/feedback-engine/internal/logger"
)

const headerRequestID = "X-Request-ID"

// RequestID tags every request with an ID so the request log lines and
// any error responses can be correlated. An incoming X-Request-ID from
// the gateway is honored; otherwise a fresh one is generated. The ID
// lands in the context for slog and is echoed on the response header.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(headerRequestID)
		if id == "" {
			id = newRequestID()
		}

		ctx := logger.WithRequestID(r.Context(), id)
		w.Header().Set(headerRequestID, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// newRequestID returns a 16-byte random hex string (32 chars).
func newRequestID() string {
	b := make([]byte, 16)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
