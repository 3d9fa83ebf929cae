package service

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"

	"github.com/maxbolgarin/errm"
	"github.com/maxbolgarin/hookflow/internal/model"
)

var _ model.CredentialCipher = (*AESCipher)(nil)

// AESCipher protects connection credentials with AES-256-GCM.
// The key is derived from the configured secret, so any string works as input.
type AESCipher struct {
	key [32]byte
}

// NewAESCipher creates a cipher from the given secret.
func NewAESCipher(secret string) (*AESCipher, error) {
	if secret == "" {
		return nil, errm.New("empty encryption secret")
	}
	return &AESCipher{key: sha256.Sum256([]byte(secret))}, nil
}

// Encrypt seals the plaintext and returns it base64 encoded with the
// nonce prepended.
func (c *AESCipher) Encrypt(plaintext string) (string, error) {
	gcm, err := c.gcm()
	if err != nil {
		return "", err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", errm.Wrap(err, "generate nonce")
	}
	sealed := gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt reverses Encrypt.
func (c *AESCipher) Decrypt(ciphertext string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", errm.Wrap(err, "decode ciphertext")
	}
	gcm, err := c.gcm()
	if err != nil {
		return "", err
	}
	if len(raw) < gcm.NonceSize() {
		return "", errm.New("ciphertext too short")
	}
	nonce, sealed := raw[:gcm.NonceSize()], raw[gcm.NonceSize():]
	plaintext, err := gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", errm.Wrap(err, "open ciphertext")
	}
	return string(plaintext), nil
}

func (c *AESCipher) gcm() (cipher.AEAD, error) {
	block, err := aes.NewCipher(c.key[:])
	if err != nil {
		return nil, errm.Wrap(err, "create cipher")
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, errm.Wrap(err, "create gcm")
	}
	return gcm, nil
}
