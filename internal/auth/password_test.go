package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestPasswordHasher(t *testing.T) {
	hasher := NewPasswordHasher(bcrypt.MinCost)

	digest, err := hasher.Hash("pw12345678")
	require.NoError(t, err)
	assert.NotEqual(t, "pw12345678", digest)

	ok, err := hasher.Verify("pw12345678", digest)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = hasher.Verify("wrong", digest)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = hasher.Verify("pw12345678", "not-a-bcrypt-digest")
	assert.Error(t, err)
}

func TestNewPasswordHasher_CostFallback(t *testing.T) {
	hasher := NewPasswordHasher(99)
	digest, err := hasher.Hash("pw")
	require.NoError(t, err)

	cost, err := bcrypt.Cost([]byte(digest))
	require.NoError(t, err)
	assert.Equal(t, bcrypt.DefaultCost, cost)
}
