package webhook

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Credentials resolves the bearer token at dispatch time, so rotating the
// secret never needs a code change.
type Credentials interface {
	Token(ctx context.Context) (string, error)
}

// StaticToken is a token taken verbatim from configuration. An empty token
// disables the Authorization header.
type StaticToken string

// Token implements Credentials.
func (t StaticToken) Token(context.Context) (string, error) {
	return strings.TrimSpace(string(t)), nil
}

// FileToken re-reads a token file on every dispatch.
type FileToken struct {
	Path string
}

// Token implements Credentials.
func (f FileToken) Token(context.Context) (string, error) {
	b, err := os.ReadFile(f.Path)
	if err != nil {
		return "", fmt.Errorf("read token file %s: %w", f.Path, err)
	}
	tok := strings.TrimSpace(string(b))
	if tok == "" {
		return "", fmt.Errorf("%w: %s", ErrEmptyCredential, f.Path)
	}
	return tok, nil
}

// JWTSigner mints a short-lived HS256 token per dispatch.
type JWTSigner struct {
	secret  []byte
	ttl     time.Duration
	issuer  string
	subject string
	now     func() time.Time
}

// SignerOption configures a JWTSigner.
type SignerOption func(*JWTSigner)

// WithIssuer sets the iss claim.
func WithIssuer(issuer string) SignerOption {
	return func(s *JWTSigner) { s.issuer = issuer }
}

// WithSubject sets the sub claim.
func WithSubject(subject string) SignerOption {
	return func(s *JWTSigner) { s.subject = subject }
}

// WithSignerClock overrides the clock used for iat/exp.
func WithSignerClock(now func() time.Time) SignerOption {
	return func(s *JWTSigner) {
		if now != nil {
			s.now = now
		}
	}
}

// NewJWTSigner builds a signer for secret with the given token lifetime.
func NewJWTSigner(secret string, ttl time.Duration, opts ...SignerOption) *JWTSigner {
	s := &JWTSigner{
		secret: []byte(secret),
		ttl:    ttl,
		issuer: "roster",
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Token implements Credentials.
func (s *JWTSigner) Token(context.Context) (string, error) {
	if len(s.secret) == 0 {
		return "", ErrEmptyCredential
	}
	now := s.now()
	claims := jwt.RegisteredClaims{
		ID:        uuid.NewString(),
		Issuer:    s.issuer,
		Subject:   s.subject,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
	}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign webhook token: %w", err)
	}
	return tok, nil
}
