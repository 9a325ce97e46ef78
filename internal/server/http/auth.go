package httpserver

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt"
)

// devAccountHeader names the caller when no auth secret is configured. Meant
// for local development only.
const devAccountHeader = "X-Paystream-Account"

var errUnauthenticated = errors.New("unauthenticated")

// callerFromRequest resolves the calling account. With an auth secret set it
// requires a bearer token signed with HS256 whose subject is the account;
// without one it falls back to the dev header.
func (s *Server) callerFromRequest(r *http.Request) (string, error) {
	if s.authSecret == "" {
		account := strings.TrimSpace(r.Header.Get(devAccountHeader))
		if account == "" {
			return "", fmt.Errorf("missing %s header: %w", devAccountHeader, errUnauthenticated)
		}
		return account, nil
	}

	raw := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(raw, prefix) {
		return "", fmt.Errorf("missing bearer token: %w", errUnauthenticated)
	}

	claims := &jwt.StandardClaims{}
	_, err := jwt.ParseWithClaims(strings.TrimPrefix(raw, prefix), claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return []byte(s.authSecret), nil
	})
	if err != nil {
		return "", fmt.Errorf("%v: %w", err, errUnauthenticated)
	}
	if claims.Subject == "" {
		return "", fmt.Errorf("token has no subject: %w", errUnauthenticated)
	}
	return claims.Subject, nil
}
