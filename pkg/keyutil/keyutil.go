// Package keyutil provides key handling for DES-family keys: check values,
// parity, weak-key detection, generation, PKCS#7 padding and XOR components.
package keyutil

import (
	"fmt"

	"github.com/andrei-cloud/emv_studio/internal/errorcodes"
	"github.com/andrei-cloud/emv_studio/pkg/blockcipher"
)

// KCVVariant selects how many bytes of the check value are returned.
type KCVVariant int

const (
	// KCVStandard returns 3 bytes.
	KCVStandard KCVVariant = iota
	// KCVVisa returns 4 bytes.
	KCVVisa
)

// Length returns the number of check value bytes for the variant.
func (v KCVVariant) Length() int {
	if v == KCVVisa {
		return 4
	}

	return 3
}

// KCV encrypts a 16-byte zero block in ECB under key and returns the leading
// bytes for the variant. A nil engine uses blockcipher.Default.
func KCV(e *blockcipher.Engine, key []byte, variant KCVVariant) ([]byte, error) {
	if e == nil {
		e = blockcipher.Default()
	}

	out, err := e.EncryptECB(key, make([]byte, 16))
	if err != nil {
		return nil, fmt.Errorf("kcv: %w", err)
	}
	defer cleanBytes(out)

	kcv := make([]byte, variant.Length())
	copy(kcv, out)

	return kcv, nil
}

// validateKeyLength reports ErrInvalidKeyLength for anything but 8, 16 or 24 bytes.
func validateKeyLength(n int) error {
	switch n {
	case blockcipher.KEY_LENGTH_SINGLE, blockcipher.KEY_LENGTH_DOUBLE, blockcipher.KEY_LENGTH_TRIPLE:
		return nil
	default:
		return fmt.Errorf("%w: got %d bytes", errorcodes.ErrInvalidKeyLength, n)
	}
}

// cleanBytes overwrites a byte slice with zeros.
func cleanBytes(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
