// Package aesgcm implements the Codec port with AES-256-GCM.
package aesgcm

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"

	"github.com/ericfisherdev/ecovault/internal/domain/port/driven"
)

// KeySize is the required key length in bytes.
const KeySize = 32

// Compile-time interface satisfaction check.
var _ driven.Codec = (*Codec)(nil)

// Codec encrypts secrets with AES-256-GCM. Output is base64 of
// nonce (12 bytes) || ciphertext || tag, so equal plaintexts encrypt to
// different ciphertexts.
type Codec struct {
	aead cipher.AEAD
}

// New creates a Codec for the given 32-byte key. The key is consumed once;
// the Codec keeps only the derived cipher.
func New(key []byte) (*Codec, error) {
	if len(key) == 0 {
		return nil, driven.ErrEncryptionKeyNotSet
	}
	if len(key) != KeySize {
		return nil, fmt.Errorf("encryption key must be %d bytes, got %d", KeySize, len(key))
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("aes.NewCipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("cipher.NewGCM: %w", err)
	}

	return &Codec{aead: gcm}, nil
}

// Encrypt seals plaintext under a fresh random nonce.
func (c *Codec) Encrypt(plaintext string) (string, error) {
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("rand nonce: %w", err)
	}

	// Seal appends the ciphertext to nonce, producing: nonce || ciphertext || tag.
	sealed := c.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt opens a value produced by Encrypt. Any malformed input or tag
// mismatch yields driven.ErrDecryption; the underlying cause is not exposed
// since it may hint at key or plaintext.
func (c *Codec) Decrypt(encoded string) (string, error) {
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("%w: not base64", driven.ErrDecryption)
	}

	nonceSize := c.aead.NonceSize()
	if len(data) < nonceSize+c.aead.Overhead() {
		return "", fmt.Errorf("%w: ciphertext too short", driven.ErrDecryption)
	}

	nonce, sealed := data[:nonceSize], data[nonceSize:]
	plaintext, err := c.aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", fmt.Errorf("%w: authentication failed", driven.ErrDecryption)
	}

	return string(plaintext), nil
}
