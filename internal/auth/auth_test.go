package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenHash(t *testing.T) {
	token, err := GenerateToken(16)
	require.NoError(t, err)
	assert.Len(t, token, 32)

	hash, err := HashToken(token)
	require.NoError(t, err)
	assert.NotEqual(t, token, hash)

	assert.True(t, CheckTokenHash(token, hash))
	assert.False(t, CheckTokenHash("wrong", hash))
	assert.False(t, CheckTokenHash("", hash))
	assert.False(t, CheckTokenHash(token, ""))
}
