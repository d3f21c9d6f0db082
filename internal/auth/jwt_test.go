package auth_test

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lorrc/turnos-queue/internal/auth"
	"github.com/lorrc/turnos-queue/internal/core/domain"
)

func TestTokenManager_UserToken(t *testing.T) {
	tm := auth.NewTokenManager("test-secret-at-least-32-characters!!", time.Hour, 0)
	userID := uuid.New()
	tenantID := uuid.New()

	tokenString, err := tm.GenerateUserToken(userID, tenantID)
	require.NoError(t, err)
	require.NotEmpty(t, tokenString)

	claims, err := tm.ValidateToken(tokenString)
	require.NoError(t, err)
	assert.Equal(t, userID, claims.SubjectID)
	assert.Equal(t, tenantID, claims.TenantID)
	assert.Equal(t, domain.CredentialUser, claims.Kind)
}

func TestTokenManager_DisplayToken(t *testing.T) {
	tm := auth.NewTokenManager("test-secret-at-least-32-characters!!", 0, 0)
	displayID := uuid.New()
	tenantID := uuid.New()

	tokenString, err := tm.IssueDisplayToken(displayID, tenantID)
	require.NoError(t, err)

	claims, err := tm.ValidateToken(tokenString)
	require.NoError(t, err)
	assert.Equal(t, displayID, claims.SubjectID)
	assert.Equal(t, domain.CredentialDisplay, claims.Kind)
	// Device tokens are long-lived
	assert.True(t, claims.ExpiresAt.After(time.Now().Add(90*24*time.Hour)))
}

func TestTokenManager_RejectsInvalidTokens(t *testing.T) {
	tm := auth.NewTokenManager("test-secret-at-least-32-characters!!", time.Hour, 0)

	t.Run("garbage token", func(t *testing.T) {
		_, err := tm.ValidateToken("not-a-token")
		assert.Error(t, err)
	})

	t.Run("wrong secret", func(t *testing.T) {
		other := auth.NewTokenManager("a-different-secret-entirely-32-chars", time.Hour, 0)
		tokenString, err := other.GenerateUserToken(uuid.New(), uuid.New())
		require.NoError(t, err)

		_, err = tm.ValidateToken(tokenString)
		assert.Error(t, err)
	})

	t.Run("expired token", func(t *testing.T) {
		shortLived := auth.NewTokenManager("test-secret-at-least-32-characters!!", time.Nanosecond, 0)
		tokenString, err := shortLived.GenerateUserToken(uuid.New(), uuid.New())
		require.NoError(t, err)

		time.Sleep(5 * time.Millisecond)
		_, err = shortLived.ValidateToken(tokenString)
		assert.Error(t, err)
	})
}
