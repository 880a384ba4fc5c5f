// Package encryption provides the authenticated file-encryption primitive
// used when uploading into end-to-end-encrypted folders.
package encryption

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"math/big"
	"os"
)

const (
	KeySize = 16 // 128-bit key for AES-128-GCM
	IVSize  = 16 // 128-bit IV, stored alongside the key in folder metadata
	TagSize = 16 // 128-bit GCM authentication tag
)

// GenerateKey generates a random 128-bit file encryption key.
func GenerateKey() ([]byte, error) {
	key := make([]byte, KeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("failed to generate key: %w", err)
	}
	return key, nil
}

// GenerateIV generates a random 128-bit initialization vector.
func GenerateIV() ([]byte, error) {
	iv := make([]byte, IVSize)
	if _, err := rand.Read(iv); err != nil {
		return nil, fmt.Errorf("failed to generate IV: %w", err)
	}
	return iv, nil
}

// GenerateSecureRandomString generates a random string of the specified length.
// Used for server-side filenames of encrypted files.
func GenerateSecureRandomString(length int) (string, error) {
	const charset = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	result := make([]byte, length)
	for i := range result {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(charset))))
		if err != nil {
			return "", fmt.Errorf("failed to generate random string: %w", err)
		}
		result[i] = charset[n.Int64()]
	}
	return string(result), nil
}

func newGCM(key, iv []byte) (cipher.AEAD, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("key must be %d bytes", KeySize)
	}
	if len(iv) != IVSize {
		return nil, fmt.Errorf("IV must be %d bytes", IVSize)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	// The folder metadata format carries a 16-byte IV, so GCM runs with a
	// nonce size of 16 instead of the default 12.
	aead, err := cipher.NewGCMWithNonceSize(block, IVSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return aead, nil
}

// EncryptFile encrypts a file using AES-128-GCM. The ciphertext written to
// outputPath includes the trailing authentication tag; the tag is also
// returned separately so it can be recorded in the folder metadata.
// Returns the tag and the ciphertext size in bytes.
func EncryptFile(inputPath, outputPath string, key, iv []byte) ([]byte, int64, error) {
	aead, err := newGCM(key, iv)
	if err != nil {
		return nil, 0, err
	}

	plaintext, err := os.ReadFile(inputPath)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to read input file: %w", err)
	}

	ciphertext := aead.Seal(nil, iv, plaintext, nil)
	tag := ciphertext[len(ciphertext)-TagSize:]

	if err := os.WriteFile(outputPath, ciphertext, 0o600); err != nil {
		return nil, 0, fmt.Errorf("failed to write encrypted file: %w", err)
	}

	return tag, int64(len(ciphertext)), nil
}

// DecryptFile decrypts a file produced by EncryptFile and verifies its
// authentication tag. The expected tag must match the trailing tag embedded
// in the ciphertext.
func DecryptFile(inputPath, outputPath string, key, iv, tag []byte) error {
	aead, err := newGCM(key, iv)
	if err != nil {
		return err
	}

	ciphertext, err := os.ReadFile(inputPath)
	if err != nil {
		return fmt.Errorf("failed to read input file: %w", err)
	}
	if len(ciphertext) < TagSize {
		return fmt.Errorf("ciphertext too short: %d bytes", len(ciphertext))
	}

	embedded := ciphertext[len(ciphertext)-TagSize:]
	if len(tag) != TagSize || !equalBytes(embedded, tag) {
		return fmt.Errorf("authentication tag mismatch")
	}

	plaintext, err := aead.Open(nil, iv, ciphertext, nil)
	if err != nil {
		return fmt.Errorf("failed to decrypt file: %w", err)
	}

	if err := os.WriteFile(outputPath, plaintext, 0o600); err != nil {
		return fmt.Errorf("failed to write decrypted file: %w", err)
	}

	return nil
}

func equalBytes(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	v := byte(0)
	for i := range a {
		v |= a[i] ^ b[i]
	}
	return v == 0
}

// EncodeBase64 encodes bytes to a base64 string.
func EncodeBase64(data []byte) string {
	return base64.StdEncoding.EncodeToString(data)
}

// DecodeBase64 decodes a base64 string to bytes.
func DecodeBase64(data string) ([]byte, error) {
	return base64.StdEncoding.DecodeString(data)
}
