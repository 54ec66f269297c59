package driven

import "errors"

// ErrEncryptionKeyNotSet is returned when a codec is constructed without key
// material. ECOVAULT_SECRET_KEY must be configured.
var ErrEncryptionKeyNotSet = errors.New("encryption key not configured: set ECOVAULT_SECRET_KEY")

// ErrDecryption is returned when ciphertext is malformed or fails
// authentication. It never carries key material or plaintext.
var ErrDecryption = errors.New("credential decryption failed")

// Codec reversibly encrypts secret strings with the process-wide key.
type Codec interface {
	Encrypt(plaintext string) (string, error)
	// Decrypt returns ErrDecryption (wrapped) for any malformed or
	// unauthenticated input.
	Decrypt(ciphertext string) (string, error)
}
