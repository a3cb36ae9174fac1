package server

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// authorized reports whether the request carries the configured token,
// either bare or as a Bearer credential.
func (s *Server) authorized(r *http.Request) bool {
	if s.token == "" {
		return false
	}
	got := strings.TrimSpace(r.Header.Get(s.tokenHeader))
	if after, ok := cutPrefixFold(got, "Bearer "); ok {
		got = strings.TrimSpace(after)
	}
	if got == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(got), []byte(s.token)) == 1
}

func cutPrefixFold(s, prefix string) (string, bool) {
	if len(s) >= len(prefix) && strings.EqualFold(s[:len(prefix)], prefix) {
		return s[len(prefix):], true
	}
	return s, false
}
