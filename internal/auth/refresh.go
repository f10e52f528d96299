package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
)

const refreshTokenBytes = 32

// NewRefreshToken returns an opaque, URL-safe refresh token and its storage digest.
func NewRefreshToken() (token string, digest string, err error) {
	var raw [refreshTokenBytes]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return "", "", err
	}
	token = base64.RawURLEncoding.EncodeToString(raw[:])
	return token, DigestRefreshToken(token), nil
}

// DigestRefreshToken returns the SHA-256 hex digest under which a refresh token is stored.
func DigestRefreshToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
