package crypto

import (
	"bytes"
	"crypto/rand"
	"encoding/base64"
	"strings"
	"testing"
)

func testEncryptor(t *testing.T) *AESEncryptor {
	t.Helper()
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		t.Fatalf("generate key: %v", err)
	}
	enc, err := NewAESEncryptor(base64.StdEncoding.EncodeToString(key))
	if err != nil {
		t.Fatalf("NewAESEncryptor: %v", err)
	}
	return enc
}

func TestNewAESEncryptorKeyValidation(t *testing.T) {
	tests := []struct {
		name     string
		key      string
		errorMsg string
	}{
		{"empty key", "", "encryption key is empty"},
		{"invalid base64", "not-valid-base64!@#$", "base64 decode failed"},
		{"key too short", base64.StdEncoding.EncodeToString(make([]byte, 16)), "must be 32 bytes"},
		{"key too long", base64.StdEncoding.EncodeToString(make([]byte, 64)), "must be 32 bytes"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewAESEncryptor(tt.key); err == nil {
				t.Error("expected error, got nil")
			} else if !strings.Contains(err.Error(), tt.errorMsg) {
				t.Errorf("error = %v, want it to contain %q", err, tt.errorMsg)
			}
		})
	}
	if _, err := NewAESEncryptor(base64.StdEncoding.EncodeToString(make([]byte, 32))); err != nil {
		t.Errorf("valid 32-byte key rejected: %v", err)
	}
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	enc := testEncryptor(t)
	for _, plaintext := range []string{
		"hello",
		"oauth-access-token-with-typical-twitch-shape",
		strings.Repeat("a", 1000),
		"héllo wörld 🎉",
	} {
		ciphertext, err := enc.Encrypt([]byte(plaintext))
		if err != nil {
			t.Fatalf("Encrypt(%q): %v", plaintext, err)
		}
		if bytes.Equal(ciphertext, []byte(plaintext)) {
			t.Errorf("ciphertext equals plaintext for %q", plaintext)
		}
		decrypted, err := enc.Decrypt(ciphertext)
		if err != nil {
			t.Fatalf("Decrypt: %v", err)
		}
		if string(decrypted) != plaintext {
			t.Errorf("round trip = %q, want %q", decrypted, plaintext)
		}
	}
}

func TestEncryptUsesFreshNonce(t *testing.T) {
	enc := testEncryptor(t)
	plaintext := []byte("same input twice")
	c1, err := enc.Encrypt(plaintext)
	if err != nil {
		t.Fatal(err)
	}
	c2, err := enc.Encrypt(plaintext)
	if err != nil {
		t.Fatal(err)
	}
	if bytes.Equal(c1, c2) {
		t.Error("two encryptions of the same plaintext produced identical ciphertext")
	}
}

func TestDecryptRejectsBadCiphertext(t *testing.T) {
	enc := testEncryptor(t)
	tests := []struct {
		name       string
		ciphertext []byte
		errorMsg   string
	}{
		{"empty", nil, "ciphertext is empty"},
		{"shorter than nonce", []byte{1, 2, 3}, "ciphertext too short"},
		{"random bytes", make([]byte, 50), "authentication or integrity check failed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := enc.Decrypt(tt.ciphertext)
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.errorMsg) {
				t.Errorf("error = %v, want it to contain %q", err, tt.errorMsg)
			}
		})
	}
}

func TestDecryptDetectsTampering(t *testing.T) {
	enc := testEncryptor(t)
	ciphertext, err := enc.Encrypt([]byte("stored refresh token"))
	if err != nil {
		t.Fatal(err)
	}
	ciphertext[20] ^= 0x01
	if _, err := enc.Decrypt(ciphertext); err == nil {
		t.Error("tampered ciphertext decrypted without error")
	}
}

func TestDecryptWithWrongKeyFails(t *testing.T) {
	enc1 := testEncryptor(t)
	enc2 := testEncryptor(t)
	ciphertext, err := enc1.Encrypt([]byte("secret"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := enc2.Decrypt(ciphertext); err == nil {
		t.Error("decrypting with a different key succeeded")
	}
}

func TestStringWrappers(t *testing.T) {
	enc := testEncryptor(t)

	if got, err := EncryptString(enc, ""); err != nil || got != "" {
		t.Errorf("EncryptString(\"\") = %q, %v; want empty, nil", got, err)
	}
	if got, err := DecryptString(enc, ""); err != nil || got != "" {
		t.Errorf("DecryptString(\"\") = %q, %v; want empty, nil", got, err)
	}
	if _, err := DecryptString(enc, "not-valid-base64!@#"); err == nil || !strings.Contains(err.Error(), "base64 decode failed") {
		t.Errorf("DecryptString(garbage) error = %v, want base64 error", err)
	}

	plaintext := "test-access-token-12345"
	encrypted, err := EncryptString(enc, plaintext)
	if err != nil {
		t.Fatalf("EncryptString: %v", err)
	}
	if _, err := base64.StdEncoding.DecodeString(encrypted); err != nil {
		t.Errorf("EncryptString output is not valid base64: %v", err)
	}
	decrypted, err := DecryptString(enc, encrypted)
	if err != nil {
		t.Fatalf("DecryptString: %v", err)
	}
	if decrypted != plaintext {
		t.Errorf("round trip = %q, want %q", decrypted, plaintext)
	}
}
