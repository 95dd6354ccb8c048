package usermaster

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// TokenSource supplies bearer tokens for service-to-service calls.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// StaticToken is a pre-issued token.
type StaticToken string

func (s StaticToken) Token(context.Context) (string, error) {
	if s == "" {
		return "", errors.New("empty service token")
	}
	return string(s), nil
}

// JWTTokenSource mints HS256 service tokens and reuses them until shortly
// before expiry.
type JWTTokenSource struct {
	secret   []byte
	audience string
	ttl      time.Duration
	now      func() time.Time

	mu      sync.Mutex
	token   string
	expires time.Time
}

// ServiceClaims identifies this service to the identity API.
type ServiceClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

const serviceSubject = "membership-service"

func NewJWTTokenSource(secret, audience string, ttl time.Duration) *JWTTokenSource {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &JWTTokenSource{
		secret:   []byte(strings.TrimSpace(secret)),
		audience: strings.TrimSpace(audience),
		ttl:      ttl,
		now:      time.Now,
	}
}

func (s *JWTTokenSource) Token(context.Context) (string, error) {
	if len(s.secret) == 0 {
		return "", errors.New("SERVICE_TOKEN_SECRET is not configured")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if s.token != "" && now.Add(30*time.Second).Before(s.expires) {
		return s.token, nil
	}

	expires := now.Add(s.ttl)
	claims := ServiceClaims{
		Role: "service",
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   serviceSubject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	}
	if s.audience != "" {
		claims.Audience = jwt.ClaimStrings{s.audience}
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", err
	}
	s.token = signed
	s.expires = expires
	return signed, nil
}
