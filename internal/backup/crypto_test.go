package backup

import (
	"bytes"
	"errors"
	"testing"
)

func TestDeriveKeyDeterminism(t *testing.T) {
	salt := []byte("1234567890abcdef")

	key1 := DeriveKey("mypassphrase", salt)
	key2 := DeriveKey("mypassphrase", salt)
	if !bytes.Equal(key1, key2) {
		t.Error("same passphrase+salt should produce same key")
	}
	if len(key1) != keySize {
		t.Errorf("key length = %d, want %d", len(key1), keySize)
	}
	if bytes.Equal(key1, DeriveKey("other", salt)) {
		t.Error("different passphrases should produce different keys")
	}
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	original := []byte("SQLite format 3\x00 with some stock lines in it")

	enc, err := Encrypt(original, "correct horse")
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	if bytes.Contains(enc, original) {
		t.Error("ciphertext contains the plaintext")
	}

	dec, err := Decrypt(enc, "correct horse")
	if err != nil {
		t.Fatalf("decrypt: %v", err)
	}
	if !bytes.Equal(dec, original) {
		t.Errorf("decrypted = %q, want %q", dec, original)
	}
}

func TestEncryptUsesFreshSalt(t *testing.T) {
	a, err := Encrypt([]byte("same"), "pass")
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	b, err := Encrypt([]byte("same"), "pass")
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	if bytes.Equal(a, b) {
		t.Error("two encryptions of the same data are identical")
	}
}

func TestDecryptRejects(t *testing.T) {
	enc, err := Encrypt([]byte("secret data"), "right")
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	tampered := bytes.Clone(enc)
	tampered[len(tampered)-1] ^= 0xff
	header := bytes.Clone(enc)
	header[len(magic)] ^= 0xff

	tests := []struct {
		name string
		data []byte
		pass string
	}{
		{"wrong passphrase", enc, "wrong"},
		{"tampered ciphertext", tampered, "right"},
		{"tampered salt", header, "right"},
		{"too short", enc[:10], "right"},
		{"not a backup", []byte("SQLite format 3\x00 plus plenty of padding bytes here"), "right"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Decrypt(tt.data, tt.pass); !errors.Is(err, ErrDecrypt) {
				t.Errorf("err = %v, want ErrDecrypt", err)
			}
		})
	}
}

func TestEncryptRequiresPassphrase(t *testing.T) {
	if _, err := Encrypt([]byte("x"), ""); err == nil {
		t.Error("expected error for empty passphrase")
	}
}
