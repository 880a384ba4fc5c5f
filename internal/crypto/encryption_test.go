package encryption

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

// TestGenerateKey tests that key generation produces correct-length keys
func TestGenerateKey(t *testing.T) {
	key, err := GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey() failed: %v", err)
	}

	if len(key) != KeySize {
		t.Errorf("Expected key length %d, got %d", KeySize, len(key))
	}

	// Verify randomness: generate two keys, they should be different
	key2, err := GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey() second call failed: %v", err)
	}

	if bytes.Equal(key, key2) {
		t.Error("Two consecutive key generations produced identical keys (highly unlikely!)")
	}
}

// TestGenerateIV tests that IV generation produces correct-length IVs
func TestGenerateIV(t *testing.T) {
	iv, err := GenerateIV()
	if err != nil {
		t.Fatalf("GenerateIV() failed: %v", err)
	}

	if len(iv) != IVSize {
		t.Errorf("Expected IV length %d, got %d", IVSize, len(iv))
	}

	iv2, err := GenerateIV()
	if err != nil {
		t.Fatalf("GenerateIV() second call failed: %v", err)
	}

	if bytes.Equal(iv, iv2) {
		t.Error("Two consecutive IV generations produced identical IVs (highly unlikely!)")
	}
}

// TestGenerateSecureRandomString tests secure random string generation
func TestGenerateSecureRandomString(t *testing.T) {
	testCases := []struct {
		name   string
		length int
	}{
		{"short", 10},
		{"filename", 20},
		{"long", 50},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			str, err := GenerateSecureRandomString(tc.length)
			if err != nil {
				t.Fatalf("GenerateSecureRandomString(%d) failed: %v", tc.length, err)
			}
			if len(str) != tc.length {
				t.Errorf("Expected string length %d, got %d", tc.length, len(str))
			}
		})
	}
}

// TestEncryptDecryptRoundTrip verifies ciphertext decrypts back to the original
func TestEncryptDecryptRoundTrip(t *testing.T) {
	dir := t.TempDir()
	inputPath := filepath.Join(dir, "plain.txt")
	encryptedPath := filepath.Join(dir, "encrypted.bin")
	decryptedPath := filepath.Join(dir, "decrypted.txt")

	plaintext := []byte("quarterly report contents, definitely confidential")
	if err := os.WriteFile(inputPath, plaintext, 0o600); err != nil {
		t.Fatalf("failed to write test file: %v", err)
	}

	key, err := GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey() failed: %v", err)
	}
	iv, err := GenerateIV()
	if err != nil {
		t.Fatalf("GenerateIV() failed: %v", err)
	}

	tag, size, err := EncryptFile(inputPath, encryptedPath, key, iv)
	if err != nil {
		t.Fatalf("EncryptFile() failed: %v", err)
	}
	if len(tag) != TagSize {
		t.Errorf("Expected tag length %d, got %d", TagSize, len(tag))
	}

	info, err := os.Stat(encryptedPath)
	if err != nil {
		t.Fatalf("failed to stat encrypted file: %v", err)
	}
	if info.Size() != size {
		t.Errorf("Reported size %d does not match file size %d", size, info.Size())
	}
	// GCM ciphertext = plaintext + tag
	if size != int64(len(plaintext)+TagSize) {
		t.Errorf("Expected ciphertext size %d, got %d", len(plaintext)+TagSize, size)
	}

	if err := DecryptFile(encryptedPath, decryptedPath, key, iv, tag); err != nil {
		t.Fatalf("DecryptFile() failed: %v", err)
	}

	decrypted, err := os.ReadFile(decryptedPath)
	if err != nil {
		t.Fatalf("failed to read decrypted file: %v", err)
	}
	if !bytes.Equal(decrypted, plaintext) {
		t.Error("Decrypted content does not match original plaintext")
	}
}

// TestEncryptFileEmptyInput covers zero-length files
func TestEncryptFileEmptyInput(t *testing.T) {
	dir := t.TempDir()
	inputPath := filepath.Join(dir, "empty")
	encryptedPath := filepath.Join(dir, "empty.bin")

	if err := os.WriteFile(inputPath, nil, 0o600); err != nil {
		t.Fatalf("failed to write test file: %v", err)
	}

	key, _ := GenerateKey()
	iv, _ := GenerateIV()

	tag, size, err := EncryptFile(inputPath, encryptedPath, key, iv)
	if err != nil {
		t.Fatalf("EncryptFile() failed: %v", err)
	}
	if size != TagSize {
		t.Errorf("Empty plaintext should produce tag-only ciphertext, got %d bytes", size)
	}
	if len(tag) != TagSize {
		t.Errorf("Expected tag length %d, got %d", TagSize, len(tag))
	}
}

// TestEncryptFileRejectsBadKeySizes checks parameter validation
func TestEncryptFileRejectsBadKeySizes(t *testing.T) {
	dir := t.TempDir()
	inputPath := filepath.Join(dir, "plain")
	if err := os.WriteFile(inputPath, []byte("data"), 0o600); err != nil {
		t.Fatalf("failed to write test file: %v", err)
	}

	iv, _ := GenerateIV()
	if _, _, err := EncryptFile(inputPath, filepath.Join(dir, "out"), make([]byte, 32), iv); err == nil {
		t.Error("Expected error for 32-byte key, got nil")
	}

	key, _ := GenerateKey()
	if _, _, err := EncryptFile(inputPath, filepath.Join(dir, "out"), key, make([]byte, 12)); err == nil {
		t.Error("Expected error for 12-byte IV, got nil")
	}
}

// TestDecryptFileDetectsTampering verifies the tag check fails on modification
func TestDecryptFileDetectsTampering(t *testing.T) {
	dir := t.TempDir()
	inputPath := filepath.Join(dir, "plain")
	encryptedPath := filepath.Join(dir, "encrypted")

	if err := os.WriteFile(inputPath, []byte("tamper target"), 0o600); err != nil {
		t.Fatalf("failed to write test file: %v", err)
	}

	key, _ := GenerateKey()
	iv, _ := GenerateIV()
	tag, _, err := EncryptFile(inputPath, encryptedPath, key, iv)
	if err != nil {
		t.Fatalf("EncryptFile() failed: %v", err)
	}

	// Flip a byte in the ciphertext body
	data, err := os.ReadFile(encryptedPath)
	if err != nil {
		t.Fatalf("failed to read encrypted file: %v", err)
	}
	data[0] ^= 0xff
	if err := os.WriteFile(encryptedPath, data, 0o600); err != nil {
		t.Fatalf("failed to rewrite encrypted file: %v", err)
	}

	if err := DecryptFile(encryptedPath, filepath.Join(dir, "out"), key, iv, tag); err == nil {
		t.Error("Expected decryption of tampered ciphertext to fail")
	}
}
