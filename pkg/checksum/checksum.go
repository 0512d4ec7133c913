// Package checksum computes content digests for generated resource files.
package checksum

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
)

// Checksum verification errors.
var (
	ErrNoHash       = errors.New("no hash to compare against")
	ErrHashMismatch = errors.New("hash mismatch")
)

// Bytes returns the hex encoded SHA-256 digest of data.
func Bytes(data []byte) string {
	sum := sha256.Sum256(data)

	return hex.EncodeToString(sum[:])
}

// File returns the hex encoded SHA-256 digest of the file at path.
func File(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("failed to hash %s: %w", path, err)
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}

// Verify checks that the file at path hashes to expected.
func Verify(path, expected string) (bool, error) {
	if expected == "" {
		return false, ErrNoHash
	}

	calculated, err := File(path)
	if err != nil {
		return false, err
	}

	if calculated != expected {
		return false, fmt.Errorf("%w: expected %s, got %s", ErrHashMismatch, expected, calculated)
	}

	return true, nil
}
