package utils

import (
	"testing"
	"time"

	"amerifund/internal/config"
	"amerifund/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testJWTConfig() config.JWTConfig {
	return config.JWTConfig{
		Secret:     "test-secret",
		Issuer:     "amerifund-test",
		AccessTTL:  time.Minute,
		RefreshTTL: time.Hour,
	}
}

func TestGenerateAndParseTokens(t *testing.T) {
	cfg := testJWTConfig()
	claims := &models.UserClaims{
		UserID:       42,
		Email:        "jane@example.com",
		Role:         models.RoleUser,
		Permissions:  models.GetDefaultPermissions(models.RoleUser),
		TokenVersion: 3,
	}

	access, refresh, err := GenerateTokens(cfg, claims)
	require.NoError(t, err)
	assert.NotEqual(t, access, refresh)

	parsed, err := ParseToken(cfg, access)
	require.NoError(t, err)
	assert.Equal(t, uint(42), parsed.UserID)
	assert.Equal(t, 3, parsed.TokenVersion)
	assert.Equal(t, "42", parsed.Subject)
	assert.True(t, parsed.HasPermission(models.PermissionApplicationWrite))
}

func TestParseToken_Rejects(t *testing.T) {
	cfg := testJWTConfig()
	access, _, err := GenerateTokens(cfg, &models.UserClaims{UserID: 1})
	require.NoError(t, err)

	other := cfg
	other.Secret = "another-secret"
	_, err = ParseToken(other, access)
	assert.Error(t, err)

	other = cfg
	other.Issuer = "someone-else"
	_, err = ParseToken(other, access)
	assert.Error(t, err)

	_, err = ParseToken(config.JWTConfig{}, access)
	assert.ErrorIs(t, err, ErrJWTSecretMissing)
}
