package auth

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"errors"
	"fmt"
	"math/big"
	"os"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/spec-kit/auth-core/internal/domain"
)

// TokenConfig configures the access token signer.
type TokenConfig struct {
	PrivateKey *rsa.PrivateKey
	KeyID      string
	Issuer     string
	Audience   string
	AccessTTL  time.Duration
}

// TokenManager signs and verifies RS256 access tokens.
type TokenManager struct {
	key      *rsa.PrivateKey
	keyID    string
	issuer   string
	audience string
	ttl      time.Duration
	now      func() time.Time
}

// NewTokenManager builds a new manager.
func NewTokenManager(cfg TokenConfig) (*TokenManager, error) {
	if cfg.PrivateKey == nil {
		return nil, errors.New("signing key required")
	}
	if strings.TrimSpace(cfg.KeyID) == "" {
		return nil, errors.New("key id required")
	}
	if cfg.Issuer == "" || cfg.Audience == "" {
		return nil, errors.New("issuer and audience required")
	}
	if cfg.AccessTTL <= 0 {
		cfg.AccessTTL = 15 * time.Minute
	}
	return &TokenManager{
		key:      cfg.PrivateKey,
		keyID:    strings.TrimSpace(cfg.KeyID),
		issuer:   cfg.Issuer,
		audience: cfg.Audience,
		ttl:      cfg.AccessTTL,
		now:      time.Now,
	}, nil
}

// Claims describes JWT payload.
type Claims struct {
	UserType          domain.SubjectType `json:"userType"`
	Roles             []string           `json:"roles,omitempty"`
	ExternalUID       string             `json:"externalUid,omitempty"`
	DeviceID          string             `json:"deviceId,omitempty"`
	GuestID           string             `json:"guestId,omitempty"`
	ExternalProfileID string             `json:"externalProfileId,omitempty"`
	SessionID         string             `json:"sid"`
	jwt.RegisteredClaims
}

// Payload converts the verified claims back into an access payload.
func (c *Claims) Payload() domain.AccessPayload {
	return domain.AccessPayload{
		SubjectID:         c.Subject,
		UserType:          c.UserType,
		Roles:             c.Roles,
		ExternalUID:       c.ExternalUID,
		DeviceID:          c.DeviceID,
		GuestID:           c.GuestID,
		ExternalProfileID: c.ExternalProfileID,
		SessionID:         c.SessionID,
	}
}

// AccessTTL returns the lifetime of minted access tokens.
func (tm *TokenManager) AccessTTL() time.Duration {
	return tm.ttl
}

// Sign builds and signs a JWT for the payload.
func (tm *TokenManager) Sign(payload domain.AccessPayload) (string, time.Time, error) {
	now := tm.now()
	expiresAt := now.Add(tm.ttl)
	claims := &Claims{
		UserType:          payload.UserType,
		Roles:             payload.Roles,
		ExternalUID:       payload.ExternalUID,
		DeviceID:          payload.DeviceID,
		GuestID:           payload.GuestID,
		ExternalProfileID: payload.ExternalProfileID,
		SessionID:         payload.SessionID,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   payload.SubjectID,
			Issuer:    tm.issuer,
			Audience:  jwt.ClaimStrings{tm.audience},
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = tm.keyID
	tokenString, err := token.SignedString(tm.key)
	if err != nil {
		return "", time.Time{}, err
	}
	return tokenString, expiresAt, nil
}

// Verify validates signature, issuer, audience and expiry. It does not check session liveness.
func (tm *TokenManager) Verify(tokenStr string) (*Claims, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithIssuer(tm.issuer),
		jwt.WithAudience(tm.audience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(tm.now),
	)
	parsed, err := parser.ParseWithClaims(tokenStr, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		kid, _ := token.Header["kid"].(string)
		if kid != tm.keyID {
			return nil, errors.New("unknown kid")
		}
		return &tm.key.PublicKey, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidToken, err)
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid || claims.Subject == "" || !claims.UserType.Valid() {
		return nil, fmt.Errorf("%w: invalid token claims", domain.ErrInvalidToken)
	}
	return claims, nil
}

// JWK is a single RSA public key in JSON Web Key form.
type JWK struct {
	Kty string `json:"kty"`
	Use string `json:"use"`
	Kid string `json:"kid"`
	Alg string `json:"alg"`
	N   string `json:"n"`
	E   string `json:"e"`
}

// JWKSet is the key-set document served for third-party verification.
type JWKSet struct {
	Keys []JWK `json:"keys"`
}

// JWKS exposes the active signing key's public half.
func (tm *TokenManager) JWKS() JWKSet {
	pub := tm.key.PublicKey
	return JWKSet{Keys: []JWK{{
		Kty: "RSA",
		Use: "sig",
		Kid: tm.keyID,
		Alg: jwt.SigningMethodRS256.Alg(),
		N:   base64.RawURLEncoding.EncodeToString(pub.N.Bytes()),
		E:   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(pub.E)).Bytes()),
	}}}
}

// LoadSigningKey parses an RSA private key from inline PEM or a PEM file. It returns nil when
// neither is configured.
func LoadSigningKey(pemData, path string) (*rsa.PrivateKey, error) {
	if strings.TrimSpace(pemData) == "" && path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read signing key: %w", err)
		}
		pemData = string(raw)
	}
	if strings.TrimSpace(pemData) == "" {
		return nil, nil
	}
	key, err := jwt.ParseRSAPrivateKeyFromPEM([]byte(pemData))
	if err != nil {
		return nil, fmt.Errorf("parse signing key: %w", err)
	}
	return key, nil
}

// GenerateSigningKey creates an ephemeral key for development runs.
func GenerateSigningKey() (*rsa.PrivateKey, error) {
	return rsa.GenerateKey(rand.Reader, 2048)
}
