// internal/transport/auth.go
package transport

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

var errMissingToken = errors.New("missing bearer token")

// hmacMethods are the signing methods accepted for client tokens.
var hmacMethods = []string{
	jwt.SigningMethodHS256.Alg(),
	jwt.SigningMethodHS384.Alg(),
	jwt.SigningMethodHS512.Alg(),
}

// Authenticator verifies HMAC-signed bearer tokens on the upgrade request.
// Browsers cannot set headers on a websocket handshake, so the token may
// also arrive in the "token" query parameter.
type Authenticator struct {
	secret []byte
	parser *jwt.Parser
	logger *zap.Logger
}

// NewAuthenticator returns nil when secret is empty, which disables auth.
func NewAuthenticator(secret string, logger *zap.Logger) *Authenticator {
	if secret == "" {
		return nil
	}
	return &Authenticator{
		secret: []byte(secret),
		parser: jwt.NewParser(jwt.WithValidMethods(hmacMethods), jwt.WithExpirationRequired()),
		logger: logger.Named("auth"),
	}
}

func tokenFromRequest(r *http.Request) (string, error) {
	if h := r.Header.Get("Authorization"); h != "" {
		scheme, token, ok := strings.Cut(h, " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") || token == "" {
			return "", fmt.Errorf("malformed Authorization header")
		}
		return token, nil
	}
	if token := r.URL.Query().Get("token"); token != "" {
		return token, nil
	}
	return "", errMissingToken
}

// Verify checks the request's token and returns its subject.
func (a *Authenticator) Verify(r *http.Request) (string, error) {
	raw, err := tokenFromRequest(r)
	if err != nil {
		return "", err
	}
	claims := &jwt.RegisteredClaims{}
	if _, err := a.parser.ParseWithClaims(raw, claims, func(*jwt.Token) (interface{}, error) {
		return a.secret, nil
	}); err != nil {
		return "", fmt.Errorf("invalid token: %w", err)
	}
	return claims.Subject, nil
}

// Middleware rejects unauthenticated requests with 401. A nil Authenticator
// passes every request through.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	if a == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		subject, err := a.Verify(r)
		if err != nil {
			a.logger.Warn("Rejected websocket handshake", zap.String("remote_addr", r.RemoteAddr), zap.Error(err))
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		a.logger.Debug("Authenticated websocket handshake", zap.String("subject", subject))
		next.ServeHTTP(w, r)
	})
}

// IssueToken signs a token for subject. It backs the CLI's token helper and tests.
func IssueToken(secret, subject string, claims jwt.RegisteredClaims) (string, error) {
	claims.Subject = subject
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}
