package credentials

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

// hkdfInfo binds derived keys to this use so the same secret yields
// unrelated keys elsewhere.
const hkdfInfo = "ecgdrive token record v1"

// TokenEncryption provides encryption/decryption for token records at rest.
// Uses AES-256-GCM for authenticated encryption: each call to Encrypt uses a
// fresh random nonce, and tampered ciphertext fails to decrypt.
type TokenEncryption struct {
	// key is the AES-256 encryption key (32 bytes)
	key []byte

	// enabled indicates if encryption is active
	enabled bool
}

// NewTokenEncryption creates a new token encryption instance.
// If key is nil or empty, encryption is disabled and data passes through unencrypted.
func NewTokenEncryption(key []byte) (*TokenEncryption, error) {
	if len(key) == 0 {
		return &TokenEncryption{}, nil
	}

	if len(key) != 32 {
		return nil, fmt.Errorf("encryption key must be exactly 32 bytes (256 bits), got %d bytes", len(key))
	}

	return &TokenEncryption{
		key:     key,
		enabled: true,
	}, nil
}

// Enabled reports whether data is encrypted.
func (e *TokenEncryption) Enabled() bool {
	return e != nil && e.enabled
}

// Encrypt encrypts data using AES-256-GCM.
// Returns base64-encoded: nonce || ciphertext || tag
// If encryption is disabled, returns data unchanged.
func (e *TokenEncryption) Encrypt(plaintext []byte) (string, error) {
	if !e.Enabled() {
		return string(plaintext), nil
	}

	gcm, err := e.aead()
	if err != nil {
		return "", err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	// GCM appends the authentication tag to the ciphertext
	sealed := gcm.Seal(nonce, nonce, plaintext, nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt decrypts data encrypted with Encrypt.
// If encryption is disabled, returns data unchanged.
func (e *TokenEncryption) Decrypt(encoded string) ([]byte, error) {
	if !e.Enabled() {
		return []byte(encoded), nil
	}

	ciphertext, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("failed to decode base64: %w", err)
	}

	gcm, err := e.aead()
	if err != nil {
		return nil, err
	}

	nonceSize := gcm.NonceSize()
	if len(ciphertext) < nonceSize {
		return nil, fmt.Errorf("ciphertext too short")
	}

	nonce, ciphertext := ciphertext[:nonceSize], ciphertext[nonceSize:]

	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt: %w", err)
	}

	return plaintext, nil
}

func (e *TokenEncryption) aead() (cipher.AEAD, error) {
	block, err := aes.NewCipher(e.key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return gcm, nil
}

// GenerateEncryptionKey generates a secure 32-byte encryption key.
// The key must be persisted; a new key makes existing records unreadable.
func GenerateEncryptionKey() ([]byte, error) {
	key := make([]byte, 32)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return nil, fmt.Errorf("failed to generate encryption key: %w", err)
	}
	return key, nil
}

// EncryptionKeyFromBase64 converts a base64-encoded 32-byte key to bytes.
// An empty string yields a nil key (encryption disabled).
func EncryptionKeyFromBase64(encoded string) ([]byte, error) {
	if encoded == "" {
		return nil, nil
	}

	key, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("invalid base64 key: %w", err)
	}

	if len(key) != 32 {
		return nil, fmt.Errorf("encryption key must be 32 bytes, got %d bytes", len(key))
	}

	return key, nil
}

// DeriveEncryptionKey turns an operator-supplied secret into a 32-byte key.
// A base64-encoded 32-byte key is used as-is; any other non-empty secret is
// stretched with HKDF-SHA256. An empty secret yields a nil key.
func DeriveEncryptionKey(secret string) ([]byte, error) {
	if secret == "" {
		return nil, nil
	}
	if key, err := EncryptionKeyFromBase64(secret); err == nil {
		return key, nil
	}

	key := make([]byte, 32)
	r := hkdf.New(sha256.New, []byte(secret), nil, []byte(hkdfInfo))
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, fmt.Errorf("failed to derive encryption key: %w", err)
	}
	return key, nil
}
