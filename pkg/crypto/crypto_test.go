package crypto

import (
	"bytes"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"testing"
)

// testParams keeps the Argon2id cost low so the suite stays fast.
var testParams = Params{Memory: 8 * 1024, Time: 1, Threads: 1}

// TestDeriveKey tests the Argon2id key derivation function
func TestDeriveKey(t *testing.T) {
	password := []byte("test-password-123")
	salt, err := GenerateSalt()
	if err != nil {
		t.Fatalf("GenerateSalt failed: %v", err)
	}

	// Test key derivation produces correct length
	key, err := DeriveKey(password, salt, testParams)
	if err != nil {
		t.Fatalf("DeriveKey failed: %v", err)
	}
	if len(key) != KeyLength {
		t.Errorf("DeriveKey() returned key of length %d, want %d", len(key), KeyLength)
	}

	// Test same password + salt + params produces same key (deterministic)
	key2, err := DeriveKey(password, salt, testParams)
	if err != nil {
		t.Fatalf("DeriveKey failed: %v", err)
	}
	if !bytes.Equal(key, key2) {
		t.Error("DeriveKey() with same inputs should produce identical keys")
	}

	// Test different password produces different key
	differentKey, err := DeriveKey([]byte("different-password"), salt, testParams)
	if err != nil {
		t.Fatalf("DeriveKey failed: %v", err)
	}
	if bytes.Equal(key, differentKey) {
		t.Error("DeriveKey() with different password should produce different key")
	}

	// Test different salt produces different key
	differentSalt, err := GenerateSalt()
	if err != nil {
		t.Fatalf("GenerateSalt failed: %v", err)
	}
	differentKey, err = DeriveKey(password, differentSalt, testParams)
	if err != nil {
		t.Fatalf("DeriveKey failed: %v", err)
	}
	if bytes.Equal(key, differentKey) {
		t.Error("DeriveKey() with different salt should produce different key")
	}

	// Test different cost parameters produce different key
	differentKey, err = DeriveKey(password, salt, Params{Memory: 16 * 1024, Time: 1, Threads: 1})
	if err != nil {
		t.Fatalf("DeriveKey failed: %v", err)
	}
	if bytes.Equal(key, differentKey) {
		t.Error("DeriveKey() with different params should produce different key")
	}
}

func TestDeriveKeyInvalidInput(t *testing.T) {
	_, err := DeriveKey([]byte("pw"), make([]byte, 8), testParams)
	if !errors.Is(err, ErrInvalidSaltLength) {
		t.Errorf("expected ErrInvalidSaltLength, got %v", err)
	}

	_, err = DeriveKey([]byte("pw"), make([]byte, SaltLength), Params{Memory: 1, Time: 1, Threads: 1})
	if !errors.Is(err, ErrInvalidParams) {
		t.Errorf("expected ErrInvalidParams, got %v", err)
	}
}

func TestParamsValidate(t *testing.T) {
	tests := []struct {
		name    string
		params  Params
		wantErr bool
	}{
		{"defaults", DefaultParams(), false},
		{"minimum", Params{Memory: MinMemory, Time: MinTime, Threads: MinThreads}, false},
		{"maximum", Params{Memory: MaxMemory, Time: MaxTime, Threads: MaxThreads}, false},
		{"memory too low", Params{Memory: MinMemory - 1, Time: 3, Threads: 4}, true},
		{"memory too high", Params{Memory: MaxMemory + 1, Time: 3, Threads: 4}, true},
		{"zero time", Params{Memory: DefaultMemory, Time: 0, Threads: 4}, true},
		{"time too high", Params{Memory: DefaultMemory, Time: MaxTime + 1, Threads: 4}, true},
		{"zero threads", Params{Memory: DefaultMemory, Time: 3, Threads: 0}, true},
		{"threads too high", Params{Memory: DefaultMemory, Time: 3, Threads: MaxThreads + 1}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.params.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestGenerateSaltNonce(t *testing.T) {
	salt, err := GenerateSalt()
	if err != nil {
		t.Fatalf("GenerateSalt failed: %v", err)
	}
	if len(salt) != SaltLength {
		t.Errorf("salt length = %d, want %d", len(salt), SaltLength)
	}

	nonce, err := GenerateNonce()
	if err != nil {
		t.Fatalf("GenerateNonce failed: %v", err)
	}
	if len(nonce) != NonceLength {
		t.Errorf("nonce length = %d, want %d", len(nonce), NonceLength)
	}

	// Two generations should essentially never collide
	salt2, _ := GenerateSalt()
	if bytes.Equal(salt, salt2) {
		t.Error("two generated salts are identical")
	}
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	key := make([]byte, KeyLength)
	if _, err := rand.Read(key); err != nil {
		t.Fatalf("failed to generate key: %v", err)
	}

	plaintexts := [][]byte{
		[]byte(""),
		[]byte("a"),
		[]byte("hello vault"),
		bytes.Repeat([]byte{0xAB}, 1<<16),
	}
	aad := []byte("header bytes")

	for _, plaintext := range plaintexts {
		nonce, ciphertext, err := Encrypt(plaintext, key, aad)
		if err != nil {
			t.Fatalf("Encrypt failed: %v", err)
		}
		if len(nonce) != NonceLength {
			t.Errorf("nonce length = %d, want %d", len(nonce), NonceLength)
		}
		if len(ciphertext) != len(plaintext)+TagLength {
			t.Errorf("ciphertext length = %d, want %d", len(ciphertext), len(plaintext)+TagLength)
		}

		decrypted, err := Decrypt(nonce, ciphertext, key, aad)
		if err != nil {
			t.Fatalf("Decrypt failed: %v", err)
		}
		if !bytes.Equal(decrypted, plaintext) {
			t.Errorf("round trip mismatch: got %q, want %q", decrypted, plaintext)
		}
	}
}

// TestNonceUniqueness encrypts the same plaintext repeatedly and verifies
// that neither the nonce nor the ciphertext ever repeats.
func TestNonceUniqueness(t *testing.T) {
	key := make([]byte, KeyLength)
	if _, err := rand.Read(key); err != nil {
		t.Fatalf("failed to generate key: %v", err)
	}
	plaintext := []byte("identical plaintext")

	const trials = 256
	seenNonces := make(map[string]bool, trials)
	seenCiphertexts := make(map[string]bool, trials)

	for i := 0; i < trials; i++ {
		nonce, ciphertext, err := Encrypt(plaintext, key, nil)
		if err != nil {
			t.Fatalf("Encrypt failed: %v", err)
		}
		n := hex.EncodeToString(nonce)
		c := hex.EncodeToString(ciphertext)
		if seenNonces[n] {
			t.Fatalf("nonce repeated after %d trials", i)
		}
		if seenCiphertexts[c] {
			t.Fatalf("ciphertext repeated after %d trials", i)
		}
		seenNonces[n] = true
		seenCiphertexts[c] = true
	}
}

func TestDecryptTamper(t *testing.T) {
	key := make([]byte, KeyLength)
	if _, err := rand.Read(key); err != nil {
		t.Fatalf("failed to generate key: %v", err)
	}
	aad := []byte("authenticated header")

	nonce, ciphertext, err := Encrypt([]byte("sensitive data"), key, aad)
	if err != nil {
		t.Fatalf("Encrypt failed: %v", err)
	}

	// Flip one byte of the ciphertext
	tampered := append([]byte(nil), ciphertext...)
	tampered[0] ^= 0x01
	if _, err := Decrypt(nonce, tampered, key, aad); !errors.Is(err, ErrDecryptionFailed) {
		t.Errorf("tampered ciphertext: expected ErrDecryptionFailed, got %v", err)
	}

	// Flip one byte of the nonce
	badNonce := append([]byte(nil), nonce...)
	badNonce[3] ^= 0x01
	if _, err := Decrypt(badNonce, ciphertext, key, aad); !errors.Is(err, ErrDecryptionFailed) {
		t.Errorf("tampered nonce: expected ErrDecryptionFailed, got %v", err)
	}

	// Alter the associated data
	if _, err := Decrypt(nonce, ciphertext, key, []byte("different header")); !errors.Is(err, ErrDecryptionFailed) {
		t.Errorf("tampered aad: expected ErrDecryptionFailed, got %v", err)
	}

	// Wrong key surfaces as the same error
	wrongKey := make([]byte, KeyLength)
	if _, err := rand.Read(wrongKey); err != nil {
		t.Fatalf("failed to generate key: %v", err)
	}
	if _, err := Decrypt(nonce, ciphertext, wrongKey, aad); !errors.Is(err, ErrDecryptionFailed) {
		t.Errorf("wrong key: expected ErrDecryptionFailed, got %v", err)
	}
}

func TestDecryptInvalidInput(t *testing.T) {
	key := make([]byte, KeyLength)

	if _, err := Decrypt(make([]byte, NonceLength), []byte("x"), make([]byte, 16), nil); !errors.Is(err, ErrInvalidKeyLength) {
		t.Errorf("expected ErrInvalidKeyLength, got %v", err)
	}
	if _, err := Decrypt(make([]byte, 8), []byte("x"), key, nil); !errors.Is(err, ErrInvalidNonceLength) {
		t.Errorf("expected ErrInvalidNonceLength, got %v", err)
	}
	if _, err := Decrypt(make([]byte, NonceLength), make([]byte, TagLength-1), key, nil); !errors.Is(err, ErrCiphertextTooShort) {
		t.Errorf("expected ErrCiphertextTooShort, got %v", err)
	}
}

func TestVerifyPassword(t *testing.T) {
	password := []byte("correct horse battery staple")
	salt, err := GenerateSalt()
	if err != nil {
		t.Fatalf("GenerateSalt failed: %v", err)
	}
	expected, err := DeriveKey(password, salt, testParams)
	if err != nil {
		t.Fatalf("DeriveKey failed: %v", err)
	}

	ok, err := VerifyPassword(password, salt, testParams, expected)
	if err != nil {
		t.Fatalf("VerifyPassword failed: %v", err)
	}
	if !ok {
		t.Error("correct password not verified")
	}

	// A mismatch reports false without an error
	ok, err = VerifyPassword([]byte("wrong password"), salt, testParams, expected)
	if err != nil {
		t.Fatalf("VerifyPassword errored on mismatch: %v", err)
	}
	if ok {
		t.Error("wrong password verified")
	}

	// Malformed input errors
	if _, err := VerifyPassword(password, make([]byte, 4), testParams, expected); !errors.Is(err, ErrInvalidSaltLength) {
		t.Errorf("expected ErrInvalidSaltLength, got %v", err)
	}
	if _, err := VerifyPassword(password, salt, testParams, expected[:8]); !errors.Is(err, ErrInvalidKeyLength) {
		t.Errorf("expected ErrInvalidKeyLength, got %v", err)
	}
}

func TestSecureWipe(t *testing.T) {
	data := []byte{1, 2, 3, 4, 5}
	SecureWipe(data)
	for i, b := range data {
		if b != 0 {
			t.Errorf("byte %d not wiped: %d", i, b)
		}
	}
}
