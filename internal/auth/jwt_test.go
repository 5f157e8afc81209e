package auth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJWTResolver_RoundTrip(t *testing.T) {
	resolver, err := NewJWTResolver("a-development-signing-key")
	require.NoError(t, err)

	token, err := IssueForTesting("a-development-signing-key", "user-42", "Ada", time.Minute)
	require.NoError(t, err)

	identity, err := resolver.Resolve(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, "user-42", identity.Identity)
	assert.Equal(t, "Ada", identity.DisplayName)
}

func TestJWTResolver_RejectsExpiredToken(t *testing.T) {
	resolver, err := NewJWTResolver("a-development-signing-key")
	require.NoError(t, err)

	token, err := IssueForTesting("a-development-signing-key", "user-42", "Ada", -time.Minute)
	require.NoError(t, err)

	_, err = resolver.Resolve(context.Background(), token)
	assert.Error(t, err)
}

func TestJWTResolver_RejectsWrongKey(t *testing.T) {
	resolver, err := NewJWTResolver("a-different-signing-key-here")
	require.NoError(t, err)

	token, err := IssueForTesting("a-development-signing-key", "user-42", "Ada", time.Minute)
	require.NoError(t, err)

	_, err = resolver.Resolve(context.Background(), token)
	assert.Error(t, err)
}

func TestNewJWTResolver_RejectsShortKey(t *testing.T) {
	_, err := NewJWTResolver("short")
	assert.Error(t, err)
}
