package keyutil

import (
	"crypto/rand"
	"errors"
	"fmt"

	"github.com/andrei-cloud/emv_studio/internal/errorcodes"
)

// ErrInvalidComponentCount is returned when fewer than two components are used.
var ErrInvalidComponentCount = errors.New("invalid component count")

// SplitKey splits key into n random components whose XOR is the key.
func SplitKey(key []byte, n int) ([][]byte, error) {
	if n < 2 {
		return nil, ErrInvalidComponentCount
	}
	if err := validateKeyLength(len(key)); err != nil {
		return nil, err
	}

	components := make([][]byte, n)
	last := make([]byte, len(key))
	copy(last, key)
	for i := 0; i < n-1; i++ {
		components[i] = make([]byte, len(key))
		if _, err := rand.Read(components[i]); err != nil {
			for _, c := range components[:i+1] {
				cleanBytes(c)
			}
			cleanBytes(last)

			return nil, fmt.Errorf("failed to generate component: %w", err)
		}
		xorBytes(last, components[i])
	}
	components[n-1] = last

	return components, nil
}

// CombineComponents XORs equal-length components back into a key.
func CombineComponents(components [][]byte) ([]byte, error) {
	if len(components) < 2 {
		return nil, ErrInvalidComponentCount
	}

	keyLength := len(components[0])
	if err := validateKeyLength(keyLength); err != nil {
		return nil, err
	}

	result := make([]byte, keyLength)
	for _, c := range components {
		if len(c) != keyLength {
			cleanBytes(result)
			return nil, fmt.Errorf("%w: component of %d bytes, want %d", errorcodes.ErrInvalidKeyLength, len(c), keyLength)
		}
		xorBytes(result, c)
	}

	return result, nil
}

// xorBytes performs in-place XOR of two byte slices: dst ^= src.
func xorBytes(dst, src []byte) {
	for i := range dst {
		dst[i] ^= src[i]
	}
}
