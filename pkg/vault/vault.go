package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"

	"golang.org/x/crypto/scrypt"

	"github.com/fleetsafety/immobilizer/pkg/errs"
)

const (
	keyLen = 32 // AES-256

	// scrypt parameters per the package recommendation for interactive use
	scryptN = 32768
	scryptR = 8
	scryptP = 1
)

// Vault encrypts and decrypts vendor API credentials at rest. The AES key is
// derived from a master passphrase via scrypt; every ciphertext carries its
// own random nonce so the round trip is exact for arbitrary byte strings.
type Vault struct {
	aead cipher.AEAD
}

// New creates a vault from a master passphrase and salt
func New(passphrase, salt string) (*Vault, error) {
	if passphrase == "" {
		return nil, fmt.Errorf("vault passphrase is required")
	}

	key, err := scrypt.Key([]byte(passphrase), []byte(salt), scryptN, scryptR, scryptP, keyLen)
	if err != nil {
		return nil, fmt.Errorf("failed to derive vault key: %w", err)
	}

	return NewWithKey(key)
}

// NewWithKey creates a vault from a raw 32-byte key
func NewWithKey(key []byte) (*Vault, error) {
	if len(key) != keyLen {
		return nil, fmt.Errorf("vault key must be %d bytes, got %d", keyLen, len(key))
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	return &Vault{aead: aead}, nil
}

// Encrypt encrypts plaintext and returns an opaque base64 blob of
// nonce||ciphertext
func (v *Vault) Encrypt(plaintext []byte) (string, error) {
	nonce := make([]byte, v.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	sealed := v.aead.Seal(nonce, nonce, plaintext, nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt reverses Encrypt. Malformed or tampered blobs surface as
// configuration errors since they indicate an unusable stored credential.
func (v *Vault) Decrypt(blob string) ([]byte, error) {
	sealed, err := base64.StdEncoding.DecodeString(blob)
	if err != nil {
		return nil, errs.Configuration("credential blob is not valid base64: %v", err)
	}

	nonceSize := v.aead.NonceSize()
	if len(sealed) < nonceSize {
		return nil, errs.Configuration("credential blob too short")
	}

	nonce, ciphertext := sealed[:nonceSize], sealed[nonceSize:]
	plaintext, err := v.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, errs.Configuration("credential blob failed authentication: %v", err)
	}

	return plaintext, nil
}

// EncryptString is a convenience wrapper over Encrypt
func (v *Vault) EncryptString(plaintext string) (string, error) {
	return v.Encrypt([]byte(plaintext))
}

// DecryptString is a convenience wrapper over Decrypt
func (v *Vault) DecryptString(blob string) (string, error) {
	b, err := v.Decrypt(blob)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
