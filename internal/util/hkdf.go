package util

import (
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

const HKDFKeyLength = 32

func HKDF(seed []byte, salt []byte, info []byte) ([]byte, error) {
	h := hkdf.New(sha256.New, seed, salt, info)
	k := make([]byte, HKDFKeyLength)
	if _, err := io.ReadFull(h, k); err != nil {
		return nil, fmt.Errorf("reading from HKDF: %w", err)
	}
	return k, nil
}

// DeriveKey expands an operator-supplied secret into a 32-byte key bound to
// purpose. Different purposes never share key material.
func DeriveKey(secret []byte, purpose string) ([]byte, error) {
	return HKDF(secret, []byte("hubuum-bff"), []byte(purpose))
}
