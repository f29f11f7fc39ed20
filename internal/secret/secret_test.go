package secret

import (
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	tserrors "github.com/customeros/ticketstack/internal/errors"
)

const testKey = "00112233445566778899aabbccddeeff00112233445566778899aabbccddeeff"

func TestEncryptDecrypt_Roundtrip(t *testing.T) {
	key, err := ParseKey(testKey)
	require.NoError(t, err)

	encoded, err := Encrypt(key, "imap-password")
	require.NoError(t, err)
	assert.NotContains(t, encoded, "imap-password")

	plain, err := Decrypt(key, encoded)
	require.NoError(t, err)
	assert.Equal(t, "imap-password", plain)
}

func TestDecrypt_WrongKey(t *testing.T) {
	key, _ := ParseKey(testKey)
	other, _ := ParseKey(strings.Repeat("ab", 32))

	encoded, err := Encrypt(key, "imap-password")
	require.NoError(t, err)

	_, err = Decrypt(other, encoded)
	assert.True(t, errors.Is(err, tserrors.ErrInvalidSecret))
}

func TestDecrypt_Garbage(t *testing.T) {
	key, _ := ParseKey(testKey)

	_, err := Decrypt(key, "not base64!!")
	assert.True(t, errors.Is(err, tserrors.ErrInvalidSecret))

	_, err = Decrypt(key, "c2hvcnQ=")
	assert.True(t, errors.Is(err, tserrors.ErrInvalidSecret))
}

func TestParseKey_Invalid(t *testing.T) {
	_, err := ParseKey("zz")
	assert.Error(t, err)
	_, err = ParseKey("0011")
	assert.Error(t, err)
}
