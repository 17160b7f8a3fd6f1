package api

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"
)

const bearerPrefix = "Bearer "

// Bearer token failures, reported verbatim in 401 responses.
var (
	errNoAuthorization = errors.New("missing Authorization header")
	errNotBearer       = errors.New(`expected "Authorization: Bearer <token>"`)
	errEmptyBearer     = errors.New("missing API token")
	errTokenMismatch   = errors.New("invalid API token")
)

// bearerToken returns the token of an "Authorization: Bearer <token>" header.
func bearerToken(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", errNoAuthorization
	}
	token, ok := strings.CutPrefix(header, bearerPrefix)
	if !ok {
		return "", errNotBearer
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return "", errEmptyBearer
	}
	return token, nil
}

// tokenMatches compares in constant time. An empty want never matches.
func tokenMatches(got, want string) bool {
	if want == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1
}

// requireToken rejects requests without the configured bearer token. With no
// token configured the API is open, which suits a loopback listener.
func (s *Server) requireToken(next http.Handler) http.Handler {
	if s.config.Token == "" {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, err := bearerToken(r)
		if err == nil && !tokenMatches(token, s.config.Token) {
			err = errTokenMismatch
		}
		if err != nil {
			s.writeError(w, http.StatusUnauthorized, err.Error())
			return
		}
		next.ServeHTTP(w, r)
	})
}
