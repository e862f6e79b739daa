// Package crypto provides the cryptographic primitives for valvet vaults.
//
// This package implements Argon2id key derivation and AES-256-GCM
// authenticated encryption with associated data. The key derivation
// parameters are carried explicitly through every call so that vaults
// created with different cost settings can coexist in one process.
//
// # Security Properties
//
//   - AES-256-GCM with a fresh random 96-bit nonce per encryption
//   - Argon2id key derivation (default 64MB memory, 3 iterations, 4 threads)
//   - Associated data is authenticated but stored in the clear
//   - Decryption failure is indistinguishable between a wrong password
//     and a tampered ciphertext
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"
	"runtime"

	"golang.org/x/crypto/argon2"
)

const (
	// KeyLength is the length of encryption keys in bytes (256 bits).
	KeyLength = 32

	// SaltLength is the length of KDF salts in bytes (128 bits).
	SaltLength = 16

	// NonceLength is the length of GCM nonces in bytes (96 bits).
	NonceLength = 12

	// TagLength is the length of the GCM authentication tag in bytes.
	TagLength = 16
)

// Default Argon2id parameters following OWASP recommendations.
const (
	DefaultMemory  uint32 = 64 * 1024 // KiB
	DefaultTime    uint32 = 3
	DefaultThreads uint32 = 4
)

// Sentinel errors returned by crypto functions.
var (
	// ErrInvalidKeyLength indicates the key is not 32 bytes.
	ErrInvalidKeyLength = errors.New("crypto: invalid key length, must be 32 bytes")

	// ErrInvalidSaltLength indicates the salt is not 16 bytes.
	ErrInvalidSaltLength = errors.New("crypto: invalid salt length, must be 16 bytes")

	// ErrInvalidNonceLength indicates the nonce is not 12 bytes.
	ErrInvalidNonceLength = errors.New("crypto: invalid nonce length, must be 12 bytes")

	// ErrInvalidParams indicates the Argon2id parameters are out of range.
	ErrInvalidParams = errors.New("crypto: invalid key derivation parameters")

	// ErrDecryptionFailed indicates authentication tag verification failed.
	// A wrong password and a tampered payload both surface as this error.
	ErrDecryptionFailed = errors.New("crypto: decryption failed, authentication tag verification failed")

	// ErrCiphertextTooShort indicates the ciphertext is shorter than the GCM tag.
	ErrCiphertextTooShort = errors.New("crypto: ciphertext too short")
)

// Params holds the Argon2id cost parameters for a vault.
// They are embedded in the container header and never ambient.
type Params struct {
	Memory  uint32 // memory cost in KiB
	Time    uint32 // iteration count
	Threads uint32 // parallelism
}

// DefaultParams returns the OWASP-recommended Argon2id parameters.
func DefaultParams() Params {
	return Params{Memory: DefaultMemory, Time: DefaultTime, Threads: DefaultThreads}
}

// Bounds accepted for parameters recovered from a vault header. Anything
// outside this range is treated as a foreign or corrupted header.
const (
	MinMemory  uint32 = 8 * 1024        // 8 MiB
	MaxMemory  uint32 = 4 * 1024 * 1024 // 4 GiB
	MinTime    uint32 = 1
	MaxTime    uint32 = 64
	MinThreads uint32 = 1
	MaxThreads uint32 = 32
)

// Validate checks that the parameters are within accepted bounds.
func (p Params) Validate() error {
	if p.Memory < MinMemory || p.Memory > MaxMemory {
		return fmt.Errorf("%w: memory %d KiB out of range", ErrInvalidParams, p.Memory)
	}
	if p.Time < MinTime || p.Time > MaxTime {
		return fmt.Errorf("%w: time cost %d out of range", ErrInvalidParams, p.Time)
	}
	if p.Threads < MinThreads || p.Threads > MaxThreads {
		return fmt.Errorf("%w: parallelism %d out of range", ErrInvalidParams, p.Threads)
	}
	return nil
}

// DeriveKey derives a 256-bit encryption key from a password using Argon2id.
//
// The same password, salt, and parameters always yield the same key.
// The salt must be exactly 16 bytes.
func DeriveKey(password, salt []byte, p Params) ([]byte, error) {
	if len(salt) != SaltLength {
		return nil, ErrInvalidSaltLength
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return argon2.IDKey(password, salt, p.Time, p.Memory, uint8(p.Threads), KeyLength), nil
}

// GenerateSalt returns 16 cryptographically secure random bytes.
func GenerateSalt() ([]byte, error) {
	salt := make([]byte, SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("crypto: failed to generate salt: %w", err)
	}
	return salt, nil
}

// GenerateNonce returns 12 cryptographically secure random bytes.
func GenerateNonce() ([]byte, error) {
	nonce := make([]byte, NonceLength)
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("crypto: failed to generate nonce: %w", err)
	}
	return nonce, nil
}

// Encrypt encrypts plaintext using AES-256-GCM with a fresh random nonce.
//
// The associated data is authenticated but not encrypted; tampering with
// it is detected at decryption time. The authentication tag is appended
// to the returned ciphertext.
func Encrypt(plaintext, key, aad []byte) (nonce, ciphertext []byte, err error) {
	if len(key) != KeyLength {
		return nil, nil, ErrInvalidKeyLength
	}

	gcm, err := newGCM(key)
	if err != nil {
		return nil, nil, err
	}

	nonce, err = GenerateNonce()
	if err != nil {
		return nil, nil, err
	}

	ciphertext = gcm.Seal(nil, nonce, plaintext, aad)
	return nonce, ciphertext, nil
}

// Decrypt decrypts ciphertext using AES-256-GCM.
//
// Returns ErrDecryptionFailed if the ciphertext or associated data was
// altered, or if the key was derived from the wrong password. These cases
// are indistinguishable so a wrong password cannot be confirmed cheaply.
func Decrypt(nonce, ciphertext, key, aad []byte) ([]byte, error) {
	if len(key) != KeyLength {
		return nil, ErrInvalidKeyLength
	}
	if len(nonce) != NonceLength {
		return nil, ErrInvalidNonceLength
	}

	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	if len(ciphertext) < gcm.Overhead() {
		return nil, ErrCiphertextTooShort
	}

	plaintext, err := gcm.Open(nil, nonce, ciphertext, aad)
	if err != nil {
		return nil, ErrDecryptionFailed
	}
	return plaintext, nil
}

// VerifyPassword derives a key from the password and compares it against
// the expected key in constant time. It never errors on a mismatch, only
// on malformed input.
func VerifyPassword(password, salt []byte, p Params, expected []byte) (bool, error) {
	if len(expected) != KeyLength {
		return false, ErrInvalidKeyLength
	}
	derived, err := DeriveKey(password, salt, p)
	if err != nil {
		return false, err
	}
	defer SecureWipe(derived)
	return subtle.ConstantTimeCompare(derived, expected) == 1, nil
}

// SecureWipe overwrites a byte slice with zeros in a way that prevents
// compiler optimization from removing the operation.
// This is critical for securely destroying sensitive data like derived keys.
func SecureWipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
	// runtime.KeepAlive ensures the write operations are not optimized away
	// by the compiler since b is still "in use" after the loop.
	runtime.KeepAlive(b)
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("crypto: failed to create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("crypto: failed to create GCM: %w", err)
	}
	return gcm, nil
}
