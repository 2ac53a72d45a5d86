package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenRoundTrip(t *testing.T) {
	InitializeJWT("test-secret")

	token, err := GenerateToken("user-1", "a@example.com", "sess-1", "durable", time.Now().Add(time.Hour))
	require.NoError(t, err)

	claims, err := ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.UserID)
	assert.Equal(t, "sess-1", claims.SessionID())
	assert.Equal(t, "durable", claims.Persistence)
}

func TestValidateToken_Expired(t *testing.T) {
	InitializeJWT("test-secret")

	token, err := GenerateToken("user-1", "a@example.com", "sess-1", "session", time.Now().Add(-time.Minute))
	require.NoError(t, err)

	_, err = ValidateToken(token)
	assert.Error(t, err)
}

func TestValidateToken_WrongSecret(t *testing.T) {
	InitializeJWT("one")
	token, err := GenerateToken("user-1", "a@example.com", "sess-1", "session", time.Now().Add(time.Hour))
	require.NoError(t, err)

	InitializeJWT("two")
	_, err = ValidateToken(token)
	assert.Error(t, err)
}

func TestStateToken(t *testing.T) {
	InitializeJWT("test-secret")

	state, err := GenerateStateToken("http://127.0.0.1:5555/callback", "durable", time.Minute)
	require.NoError(t, err)

	claims, err := ValidateStateToken(state)
	require.NoError(t, err)
	assert.Equal(t, "http://127.0.0.1:5555/callback", claims.RedirectURI)
	assert.Equal(t, "durable", claims.Persistence)

	// A session token is not a valid state.
	session, err := GenerateToken("u", "e", "s", "session", time.Now().Add(time.Hour))
	require.NoError(t, err)
	_, err = ValidateStateToken(session)
	assert.Error(t, err)
}

func TestPasswords(t *testing.T) {
	hash, err := HashPassword("hunter22")
	require.NoError(t, err)

	assert.NoError(t, VerifyPassword("hunter22", hash))
	assert.Error(t, VerifyPassword("hunter23", hash))
	assert.Error(t, VerifyPassword("hunter22", ""))

	assert.ErrorIs(t, CheckPasswordStrength("12345"), ErrWeakPassword)
	assert.NoError(t, CheckPasswordStrength("123456"))
}

func TestOpaqueTokens(t *testing.T) {
	a, err := GenerateOpaqueToken()
	require.NoError(t, err)
	b, err := GenerateOpaqueToken()
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
	assert.Equal(t, HashOpaqueToken(a), HashOpaqueToken(a))
	assert.NotEqual(t, HashOpaqueToken(a), HashOpaqueToken(b))
	assert.Len(t, HashOpaqueToken(a), 64)
}
