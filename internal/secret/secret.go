// Package secret protects credentials stored in the settings table.
//
// Values are base64 (std encoding) of nonce || XChaCha20-Poly1305 ciphertext.
package secret

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"io"

	"github.com/pkg/errors"
	"golang.org/x/crypto/chacha20poly1305"

	tserrors "github.com/customeros/ticketstack/internal/errors"
)

// ParseKey decodes a hex encoded 32 byte key.
func ParseKey(hexKey string) ([]byte, error) {
	key, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, errors.Wrap(tserrors.ErrInvalidSecret, "key is not hex")
	}
	if len(key) != chacha20poly1305.KeySize {
		return nil, errors.Wrapf(tserrors.ErrInvalidSecret, "key is %d bytes, want %d", len(key), chacha20poly1305.KeySize)
	}
	return key, nil
}

func Encrypt(key []byte, plaintext string) (string, error) {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return "", errors.Wrap(err, "creating cipher")
	}

	nonce := make([]byte, chacha20poly1305.NonceSizeX, chacha20poly1305.NonceSizeX+len(plaintext)+aead.Overhead())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", errors.Wrap(err, "generating nonce")
	}

	sealed := aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

func Decrypt(key []byte, encoded string) (string, error) {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return "", errors.Wrap(err, "creating cipher")
	}

	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", errors.Wrap(tserrors.ErrInvalidSecret, "value is not base64")
	}
	if len(raw) < chacha20poly1305.NonceSizeX+aead.Overhead() {
		return "", errors.Wrap(tserrors.ErrInvalidSecret, "value too short")
	}

	nonce, ciphertext := raw[:chacha20poly1305.NonceSizeX], raw[chacha20poly1305.NonceSizeX:]
	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", errors.Wrap(tserrors.ErrInvalidSecret, "authentication failed")
	}
	return string(plaintext), nil
}
