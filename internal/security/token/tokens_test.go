package tokens

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateOpaqueToken_LengthAndUniqueness(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		tok, err := GenerateOpaqueToken(AccessTokenBytes)
		require.NoError(t, err)
		assert.Len(t, tok, 64)
		assert.False(t, seen[tok])
		seen[tok] = true
	}
}

func TestSHA256Base64URL_Deterministic(t *testing.T) {
	assert.Equal(t, SHA256Base64URL("abc"), SHA256Base64URL("abc"))
	assert.NotEqual(t, SHA256Base64URL("abc"), SHA256Base64URL("abd"))
	// sha256("abc") in base64url
	assert.Equal(t, "ungWv48Bz-pBQUDeXa4iI7ADYaOWF3qctBD_YfIAFa0", SHA256Base64URL("abc"))
}

func TestEqual(t *testing.T) {
	assert.True(t, Equal("secret", "secret"))
	assert.False(t, Equal("secret", "secreT"))
	assert.False(t, Equal("secret", "secret2"))
}
