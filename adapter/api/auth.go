package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/ins72/mewayz-good-sub001/internal/billing/domain"
	"github.com/ins72/mewayz-good-sub001/pkg/observability"
)

var (
	ErrInvalidToken = errors.New("invalid or expired token")
	ErrNoSecret     = errors.New("jwt secret is not configured")
)

// Claims is the bearer token payload. Subject carries the user id.
type Claims struct {
	Email string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// TokenManager issues and verifies HS256 bearer tokens.
type TokenManager struct {
	secret []byte
	issuer string
	now    func() time.Time
}

// NewTokenManager creates a TokenManager for secret.
func NewTokenManager(secret, issuer string) *TokenManager {
	return &TokenManager{secret: []byte(secret), issuer: issuer, now: time.Now}
}

// Issue signs a token for userID valid for ttl.
func (m *TokenManager) Issue(userID, email string, ttl time.Duration) (string, error) {
	if len(m.secret) == 0 {
		return "", ErrNoSecret
	}
	if strings.TrimSpace(userID) == "" {
		return "", fmt.Errorf("%w: subject is required", ErrInvalidToken)
	}
	now := m.now()
	claims := Claims{
		Email: email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    m.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
}

// Verify parses raw and checks its signature, issuer and expiry.
func (m *TokenManager) Verify(raw string) (*Claims, error) {
	if len(m.secret) == 0 {
		return nil, ErrNoSecret
	}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.now),
	}
	if m.issuer != "" {
		opts = append(opts, jwt.WithIssuer(m.issuer))
	}

	claims := &Claims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return m.secret, nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}
	return claims, nil
}

type emailCtxKey struct{}

// EmailFromContext returns the email claim of the authenticated caller.
func EmailFromContext(ctx context.Context) string {
	email, _ := ctx.Value(emailCtxKey{}).(string)
	return email
}

// RequireAuth rejects requests without a valid bearer token and stores the
// caller's user id and email in the request context.
func RequireAuth(tokens *TokenManager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Format: "Bearer <token>"
			header := r.Header.Get("Authorization")
			if header == "" {
				writeError(w, http.StatusUnauthorized, "missing authorization header")
				return
			}
			parts := strings.SplitN(header, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
				writeError(w, http.StatusUnauthorized, "invalid authorization header format")
				return
			}

			claims, err := tokens.Verify(strings.TrimSpace(parts[1]))
			if err != nil {
				writeError(w, http.StatusUnauthorized, ErrInvalidToken.Error())
				return
			}

			ctx := observability.WithUserID(r.Context(), claims.Subject)
			ctx = context.WithValue(ctx, emailCtxKey{}, claims.Email)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// Authorizer decides whether a user may call a service.
type Authorizer interface {
	Authorize(ctx context.Context, userID, service string) (domain.Decision, error)
}

// RequireService gates next behind an access check for service and
// answers 403 with the deny reason. It must run after RequireAuth. The
// server mounts it in front of every configured service upstream.
func RequireService(gate Authorizer, service string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID := observability.UserIDFromContext(r.Context())
			if userID == "" {
				writeError(w, http.StatusUnauthorized, "authentication required")
				return
			}

			decision, err := gate.Authorize(r.Context(), userID, service)
			if err != nil {
				writeDomainError(w, r, err)
				return
			}
			if !decision.Allowed {
				writeJSON(w, http.StatusForbidden, map[string]string{
					"error":   http.StatusText(http.StatusForbidden),
					"message": "access denied",
					"reason":  string(decision.Reason),
				})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
