package keyutil

import (
	"crypto/rand"
	"fmt"

	"github.com/andrei-cloud/emv_studio/internal/errorcodes"
)

// MaxGenerateAttempts bounds the regenerate-until-not-weak loop.
const MaxGenerateAttempts = 16

// GenerateKey returns a random key of length bytes (8, 16 or 24) with parity p
// applied that is not weak.
func GenerateKey(length int, p Parity) ([]byte, error) {
	if err := validateKeyLength(length); err != nil {
		return nil, err
	}

	key := make([]byte, length)
	for range MaxGenerateAttempts {
		if _, err := rand.Read(key); err != nil {
			return nil, fmt.Errorf("failed to generate random key: %w", err)
		}
		SetParity(key, p)
		if !IsWeakKey(key) {
			return key, nil
		}
	}
	cleanBytes(key)

	return nil, fmt.Errorf("%w: no usable key after %d attempts", errorcodes.ErrWeakKey, MaxGenerateAttempts)
}

// GenerateIV returns n random bytes.
func GenerateIV(n int) ([]byte, error) {
	if n <= 0 {
		return nil, fmt.Errorf("%w: iv size %d", errorcodes.ErrInvalidIVLength, n)
	}

	iv := make([]byte, n)
	if _, err := rand.Read(iv); err != nil {
		return nil, fmt.Errorf("failed to generate iv: %w", err)
	}

	return iv, nil
}
