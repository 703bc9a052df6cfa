package credential_test

import (
	"bytes"
	"errors"
	"testing"

	"github.com/xraph/weave/credential"
)

var testKey = bytes.Repeat([]byte("k"), 32)

func TestCipherRoundTrip(t *testing.T) {
	c, err := credential.NewCipher(testKey)
	if err != nil {
		t.Fatalf("NewCipher: %v", err)
	}

	encrypted, err := c.Encrypt("sk-secret-value")
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	if encrypted == "sk-secret-value" {
		t.Fatal("ciphertext equals plaintext")
	}

	decrypted, err := c.Decrypt(encrypted)
	if err != nil {
		t.Fatalf("Decrypt: %v", err)
	}
	if decrypted != "sk-secret-value" {
		t.Errorf("decrypted = %q", decrypted)
	}
}

func TestCipherNonceVariesPerEncryption(t *testing.T) {
	c, err := credential.NewCipher(testKey)
	if err != nil {
		t.Fatalf("NewCipher: %v", err)
	}

	first, _ := c.Encrypt("same value")
	second, _ := c.Encrypt("same value")
	if first == second {
		t.Error("two encryptions produced identical ciphertext")
	}
}

func TestCipherRejectsBadKey(t *testing.T) {
	if _, err := credential.NewCipher([]byte("short")); err == nil {
		t.Fatal("want error for invalid key size")
	}
}

func TestCipherRejectsTamperedCiphertext(t *testing.T) {
	c, err := credential.NewCipher(testKey)
	if err != nil {
		t.Fatalf("NewCipher: %v", err)
	}

	for _, bad := range []string{"", "not base64!!", "AAAA"} {
		if _, decErr := c.Decrypt(bad); !errors.Is(decErr, credential.ErrInvalidCiphertext) {
			t.Errorf("Decrypt(%q) = %v, want ErrInvalidCiphertext", bad, decErr)
		}
	}
}

func TestCipherWrongKeyFails(t *testing.T) {
	first, _ := credential.NewCipher(testKey)
	second, _ := credential.NewCipher(bytes.Repeat([]byte("x"), 32))

	encrypted, err := first.Encrypt("value")
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	if _, err := second.Decrypt(encrypted); !errors.Is(err, credential.ErrInvalidCiphertext) {
		t.Errorf("Decrypt with wrong key = %v, want ErrInvalidCiphertext", err)
	}
}
