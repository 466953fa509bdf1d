package main

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Node authentication header names
const (
	NodeSignatureHeader = "X-Node-Signature"
	NodeTimestampHeader = "X-Node-Timestamp"
)

// NodeAuthTimestampTolerance is the maximum age of a signed request (5 minutes)
const NodeAuthTimestampTolerance = 5 * time.Minute

// Package-level auth configuration loaded once, from the node config or the environment
var (
	nodeAuthConfig struct {
		secret   string
		required bool
	}
	nodeAuthConfigOnce sync.Once
)

// loadNodeAuthConfig loads auth configuration from environment variables
func loadNodeAuthConfig() {
	nodeAuthConfigOnce.Do(func() {
		nodeAuthConfig.secret = os.Getenv("NODE_AUTH_SECRET")
		nodeAuthConfig.required = os.Getenv("REQUIRE_NODE_AUTH") == "true"
	})
}

// ConfigureNodeAuth sets the auth configuration unless it was already loaded
func ConfigureNodeAuth(secret string, required bool) {
	nodeAuthConfigOnce.Do(func() {
		nodeAuthConfig.secret = secret
		nodeAuthConfig.required = required
	})
}

// GetNodeAuthSecret returns the node authentication secret
func GetNodeAuthSecret() string {
	loadNodeAuthConfig()
	return nodeAuthConfig.secret
}

// IsNodeAuthRequired returns whether node authentication is required
func IsNodeAuthRequired() bool {
	loadNodeAuthConfig()
	return nodeAuthConfig.required
}

// SignRequest creates an HMAC-SHA256 signature for a request.
// The signature covers: method + path + body + timestamp
func SignRequest(method, path string, body []byte, secret string, timestamp int64) string {
	message := fmt.Sprintf("%s\n%s\n%s\n%d", method, path, string(body), timestamp)
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(message))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// VerifyRequest verifies the HMAC-SHA256 signature of a request.
// Returns false if the timestamp is stale or the signature doesn't match.
func VerifyRequest(method, path string, body []byte, secret string, timestamp int64, signature string) bool {
	// Verify timestamp is within acceptable window
	now := time.Now().Unix()
	toleranceSec := int64(NodeAuthTimestampTolerance.Seconds())
	if timestamp < now-toleranceSec || timestamp > now+toleranceSec {
		return false
	}

	// Compute expected signature
	expectedSig := SignRequest(method, path, body, secret, timestamp)

	// Use constant-time comparison to prevent timing attacks
	return subtle.ConstantTimeCompare([]byte(signature), []byte(expectedSig)) == 1
}

// settlementPrefixes are the resources whose POSTs move value or round state
var settlementPrefixes = []string{
	"/rounds",
	"/refresh",
	"/payroll/",
	"/challenges",
	"/trust",
	"/ledger/",
}

// isSettlementEndpoint reports whether path names a value-moving resource
func isSettlementEndpoint(path string) bool {
	switch {
	case strings.HasPrefix(path, "/api/v1/"):
		path = strings.TrimPrefix(path, "/api/v1")
	case strings.HasPrefix(path, "/api/"):
		path = strings.TrimPrefix(path, "/api")
	default:
		return false
	}

	for _, prefix := range settlementPrefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

// NodeAuthMiddleware rejects unsigned POSTs to settlement endpoints when node
// authentication is required. The body is restored for the next handler.
func NodeAuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !IsNodeAuthRequired() || r.Method != http.MethodPost || !isSettlementEndpoint(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		signature := r.Header.Get(NodeSignatureHeader)
		timestampStr := r.Header.Get(NodeTimestampHeader)
		if signature == "" || timestampStr == "" {
			WriteError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Missing node authentication headers")
			return
		}

		timestamp, err := strconv.ParseInt(timestampStr, 10, 64)
		if err != nil {
			WriteError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Invalid authentication timestamp")
			return
		}

		body, err := io.ReadAll(r.Body)
		if err != nil {
			WriteError(w, http.StatusBadRequest, "INVALID_REQUEST", "Failed to read request body")
			return
		}
		r.Body = io.NopCloser(bytes.NewReader(body))

		if !VerifyRequest(r.Method, r.URL.Path, body, GetNodeAuthSecret(), timestamp, signature) {
			logger.Warn("Rejected unsigned settlement request",
				"path", r.URL.Path,
				"requestId", GetRequestID(r.Context()))
			WriteError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Invalid node signature")
			return
		}

		next.ServeHTTP(w, r)
	})
}

// ResetNodeAuthConfigForTesting resets the auth config for testing purposes.
// This should only be used in tests.
func ResetNodeAuthConfigForTesting() {
	nodeAuthConfigOnce = sync.Once{}
}
