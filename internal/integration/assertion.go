package integration

import (
	"context"
	"crypto/rsa"
	"errors"
	"fmt"
	"os"
	"strings"

	jwt "github.com/golang-jwt/jwt/v5"

	"github.com/spec-kit/auth-core/internal/domain"
)

// Assertion is the verified result of a customer identity assertion.
type Assertion struct {
	ExternalUID string
	PhoneNumber string
}

// AssertionVerifier verifies tokens minted by the external identity provider.
type AssertionVerifier interface {
	VerifyIdentityAssertion(ctx context.Context, token string) (*Assertion, error)
}

// JWTAssertionConfig configures JWTAssertionVerifier.
type JWTAssertionConfig struct {
	Issuer   string
	Audience string
	// Keys maps key ids to provider public keys. A single key may use the empty kid.
	Keys map[string]*rsa.PublicKey
}

type assertionClaims struct {
	PhoneNumber string `json:"phone_number,omitempty"`
	jwt.RegisteredClaims
}

// JWTAssertionVerifier checks RS256 identity assertions against configured provider keys.
type JWTAssertionVerifier struct {
	cfg JWTAssertionConfig
}

// NewJWTAssertionVerifier builds a verifier.
func NewJWTAssertionVerifier(cfg JWTAssertionConfig) (*JWTAssertionVerifier, error) {
	if len(cfg.Keys) == 0 {
		return nil, errors.New("identity assertion keys required")
	}
	if strings.TrimSpace(cfg.Issuer) == "" || strings.TrimSpace(cfg.Audience) == "" {
		return nil, errors.New("identity assertion issuer and audience required")
	}
	return &JWTAssertionVerifier{cfg: cfg}, nil
}

// VerifyIdentityAssertion returns the provider uid of a valid assertion, or ErrInvalidToken.
func (v *JWTAssertionVerifier) VerifyIdentityAssertion(_ context.Context, token string) (*Assertion, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuer(v.cfg.Issuer),
		jwt.WithAudience(v.cfg.Audience),
	)
	parsed, err := parser.ParseWithClaims(token, &assertionClaims{}, func(t *jwt.Token) (interface{}, error) {
		kid, _ := t.Header["kid"].(string)
		if key, ok := v.cfg.Keys[kid]; ok {
			return key, nil
		}
		if len(v.cfg.Keys) == 1 {
			if key, ok := v.cfg.Keys[""]; ok {
				return key, nil
			}
		}
		return nil, fmt.Errorf("unknown kid %q", kid)
	})
	if err != nil {
		return nil, fmt.Errorf("%w: identity assertion: %v", domain.ErrInvalidToken, err)
	}

	claims, ok := parsed.Claims.(*assertionClaims)
	if !ok || !parsed.Valid || strings.TrimSpace(claims.Subject) == "" {
		return nil, fmt.Errorf("%w: identity assertion without subject", domain.ErrInvalidToken)
	}
	return &Assertion{ExternalUID: claims.Subject, PhoneNumber: claims.PhoneNumber}, nil
}

// DisabledAssertionVerifier rejects every assertion; used when no provider key is configured.
type DisabledAssertionVerifier struct{}

// VerifyIdentityAssertion always fails with ErrInvalidToken.
func (DisabledAssertionVerifier) VerifyIdentityAssertion(context.Context, string) (*Assertion, error) {
	return nil, fmt.Errorf("%w: identity provider not configured", domain.ErrInvalidToken)
}

// LoadAssertionKey parses a provider public key from inline PEM or a file. It returns nil
// when neither is configured.
func LoadAssertionKey(pemData, path string) (*rsa.PublicKey, error) {
	if strings.TrimSpace(pemData) == "" && path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read identity key: %w", err)
		}
		pemData = string(raw)
	}
	if strings.TrimSpace(pemData) == "" {
		return nil, nil
	}
	key, err := jwt.ParseRSAPublicKeyFromPEM([]byte(pemData))
	if err != nil {
		return nil, fmt.Errorf("parse identity key: %w", err)
	}
	return key, nil
}
