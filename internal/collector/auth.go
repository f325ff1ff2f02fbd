package collector

import (
	"fmt"
	"net/http"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// TokenSet holds bcrypt hashes of the API tokens accepted by the collector.
// An empty set accepts every request.
type TokenSet struct {
	hashes [][]byte
}

// NewTokenSet hashes each plain token.
func NewTokenSet(tokens ...string) (*TokenSet, error) {
	ts := &TokenSet{}
	for _, token := range tokens {
		if token == "" {
			continue
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(token), bcrypt.DefaultCost)
		if err != nil {
			return nil, fmt.Errorf("hashing token: %w", err)
		}
		ts.hashes = append(ts.hashes, hash)
	}
	return ts, nil
}

// NewTokenSetFromHashes uses pre-computed bcrypt hashes.
func NewTokenSetFromHashes(hashes ...string) *TokenSet {
	ts := &TokenSet{}
	for _, h := range hashes {
		ts.hashes = append(ts.hashes, []byte(h))
	}
	return ts
}

// Empty reports whether no tokens are configured.
func (ts *TokenSet) Empty() bool {
	return ts == nil || len(ts.hashes) == 0
}

// Valid reports whether token matches one of the hashes.
func (ts *TokenSet) Valid(token string) bool {
	if ts.Empty() {
		return true
	}
	for _, h := range ts.hashes {
		if bcrypt.CompareHashAndPassword(h, []byte(token)) == nil {
			return true
		}
	}
	return false
}

// AuthMiddleware rejects requests without a valid bearer token.
func (s *Server) AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.tokens.Empty() {
			next.ServeHTTP(w, r)
			return
		}

		authHeader := r.Header.Get("Authorization")
		var token string
		if strings.HasPrefix(authHeader, "Bearer ") {
			token = strings.TrimPrefix(authHeader, "Bearer ")
		} else {
			token = r.URL.Query().Get("token")
		}

		if token == "" {
			w.Header().Set("WWW-Authenticate", `Bearer realm="logbuf"`)
			http.Error(w, "Unauthorized: Missing token", http.StatusUnauthorized)
			return
		}
		if !s.tokens.Valid(token) {
			w.Header().Set("WWW-Authenticate", `Bearer realm="logbuf"`)
			http.Error(w, "Unauthorized: Invalid token", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}
