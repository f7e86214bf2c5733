package utils

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAccessTokenRoundTrip(t *testing.T) {
	SetJWTSecret("jwt-test-secret")
	userID := uuid.New()

	token, err := GenerateJWT(userID, "analista1", []string{"analista"}, 1)
	require.NoError(t, err)

	claims, err := ValidateJWT(token)
	require.NoError(t, err)
	assert.Equal(t, userID.String(), claims.UserID)
	assert.Equal(t, "analista1", claims.Username)
	assert.Equal(t, []string{"analista"}, claims.Roles)
	assert.Equal(t, tokenIssuer, claims.Issuer)
}

func TestAccessTokenRejections(t *testing.T) {
	SetJWTSecret("jwt-test-secret")
	userID := uuid.New()

	expired, err := GenerateJWT(userID, "analista1", nil, -1)
	require.NoError(t, err)
	_, err = ValidateJWT(expired)
	assert.Error(t, err)

	refresh, err := GenerateRefreshToken(userID, 1)
	require.NoError(t, err)
	_, err = ValidateJWT(refresh)
	assert.Error(t, err)

	token, err := GenerateJWT(userID, "analista1", nil, 1)
	require.NoError(t, err)
	SetJWTSecret("rotated-secret")
	_, err = ValidateJWT(token)
	assert.Error(t, err, "tokens signed with another secret are rejected")

	none := jwt.NewWithClaims(jwt.SigningMethodNone, JWTClaims{Username: "intruso"})
	unsigned, err := none.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = ValidateJWT(unsigned)
	assert.Error(t, err)
}

func TestRefreshToken(t *testing.T) {
	SetJWTSecret("jwt-test-secret")
	userID := uuid.New()

	refresh, err := GenerateRefreshToken(userID, 1)
	require.NoError(t, err)
	subject, err := ValidateRefreshToken(refresh)
	require.NoError(t, err)
	assert.Equal(t, userID.String(), subject)

	access, err := GenerateJWT(userID, "ana.gomez", nil, 1)
	require.NoError(t, err)
	_, err = ValidateRefreshToken(access)
	assert.Error(t, err)

	expired, err := GenerateRefreshToken(userID, -1)
	require.NoError(t, err)
	_, err = ValidateRefreshToken(expired)
	assert.Error(t, err)
}

func TestTokenTimestamps(t *testing.T) {
	SetJWTSecret("jwt-test-secret")
	before := time.Now().Add(-time.Second)

	token, err := GenerateJWT(uuid.New(), "ana.gomez", nil, 2)
	require.NoError(t, err)
	claims, err := ValidateJWT(token)
	require.NoError(t, err)

	assert.True(t, claims.IssuedAt.Time.After(before))
	assert.WithinDuration(t, claims.IssuedAt.Time.Add(2*time.Hour), claims.ExpiresAt.Time, time.Second)
}
