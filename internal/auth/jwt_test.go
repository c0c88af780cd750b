package auth

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fleetd/fleet-server/internal/config"
	"github.com/fleetd/fleet-server/internal/models"
)

func testManager() *JWTManager {
	return NewJWTManager(&config.JWTConfig{
		Secret:          "test-secret",
		AccessTokenTTL:  15 * time.Minute,
		RefreshTokenTTL: 7 * 24 * time.Hour,
	})
}

func testUser() *models.User {
	return &models.User{
		ID:      uuid.New(),
		Email:   "admin@example.com",
		IsAdmin: true,
	}
}

func TestTokenPairRoundtrip(t *testing.T) {
	manager := testManager()
	user := testUser()

	access, refresh, err := manager.GenerateTokenPair(user)
	require.NoError(t, err)
	require.NotEmpty(t, access)
	require.NotEmpty(t, refresh)
	assert.NotEqual(t, access, refresh)

	claims, err := manager.ValidateToken(access)
	require.NoError(t, err)
	assert.Equal(t, user.ID, claims.UserID)
	assert.Equal(t, user.Email, claims.Email)
	assert.True(t, claims.IsAdmin)

	userID, err := manager.ValidateRefreshToken(refresh)
	require.NoError(t, err)
	assert.Equal(t, user.ID, userID)
}

func TestValidateTokenRejectsWrongSecret(t *testing.T) {
	access, _, err := testManager().GenerateTokenPair(testUser())
	require.NoError(t, err)

	other := NewJWTManager(&config.JWTConfig{
		Secret:          "different-secret",
		AccessTokenTTL:  15 * time.Minute,
		RefreshTokenTTL: time.Hour,
	})
	_, err = other.ValidateToken(access)
	assert.Error(t, err)
}

func TestValidateTokenRejectsExpired(t *testing.T) {
	expired := NewJWTManager(&config.JWTConfig{
		Secret:          "test-secret",
		AccessTokenTTL:  -time.Minute,
		RefreshTokenTTL: -time.Minute,
	})
	access, refresh, err := expired.GenerateTokenPair(testUser())
	require.NoError(t, err)

	_, err = expired.ValidateToken(access)
	assert.Error(t, err)
	_, err = expired.ValidateRefreshToken(refresh)
	assert.Error(t, err)
}

func TestValidateTokenRejectsGarbage(t *testing.T) {
	_, err := testManager().ValidateToken("not.a.token")
	assert.Error(t, err)
	_, err = testManager().ValidateRefreshToken("")
	assert.Error(t, err)
}
