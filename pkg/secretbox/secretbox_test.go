package secretbox

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSealOpen(t *testing.T) {
	key, err := GenerateKey()
	require.NoError(t, err)
	box, err := New(key)
	require.NoError(t, err)

	ct, nonce, err := box.Seal("sk-secret-value", "user-1:openai")
	require.NoError(t, err)
	assert.NotContains(t, ct, "sk-secret")

	pt, err := box.Open(ct, nonce, "user-1:openai")
	require.NoError(t, err)
	assert.Equal(t, "sk-secret-value", pt)

	_, err = box.Open(ct, nonce, "user-2:openai")
	assert.ErrorIs(t, err, ErrInvalidCiphertext)

	other, _ := GenerateKey()
	otherBox, _ := New(other)
	_, err = otherBox.Open(ct, nonce, "user-1:openai")
	assert.ErrorIs(t, err, ErrInvalidCiphertext)
}

func TestNewRejectsBadKeys(t *testing.T) {
	_, err := New("not base64!")
	assert.ErrorIs(t, err, ErrInvalidKey)
	_, err = New("c2hvcnQ=")
	assert.ErrorIs(t, err, ErrInvalidKey)
}

func TestMask(t *testing.T) {
	assert.Equal(t, "****1234", Mask("sk-abcd1234"))
	assert.Equal(t, "****", Mask("abc"))
}
