// Package blockcipher implements the DES-family block cipher engine used by the
// key-management code: ECB, CBC, CFB and OFB over Triple-DES (and AES through the
// same Path interface), with a library-backed path and a from-scratch software path
// that produce identical output.
package blockcipher

import (
	"crypto/aes"
	"crypto/des"
	"fmt"
	"strings"

	"github.com/andrei-cloud/emv_studio/internal/errorcodes"
)

const (
	KEY_LENGTH_SINGLE = 8
	KEY_LENGTH_DOUBLE = 16
	KEY_LENGTH_TRIPLE = 24
)

// Mode is a block cipher mode of operation.
type Mode int

const (
	ECB Mode = iota
	CBC
	CFB
	OFB
)

func (m Mode) String() string {
	switch m {
	case ECB:
		return "ECB"
	case CBC:
		return "CBC"
	case CFB:
		return "CFB"
	case OFB:
		return "OFB"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// RequiresIV reports whether the mode needs an initialization vector.
func (m Mode) RequiresIV() bool {
	return m == CBC || m == CFB || m == OFB
}

// IsBlockMode reports whether input must be a whole number of blocks.
func (m Mode) IsBlockMode() bool {
	return m == ECB || m == CBC
}

// ParseMode converts a case-insensitive mode name to a Mode.
func ParseMode(s string) (Mode, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "ECB":
		return ECB, nil
	case "CBC":
		return CBC, nil
	case "CFB":
		return CFB, nil
	case "OFB":
		return OFB, nil
	default:
		return 0, fmt.Errorf("%w: %q", errorcodes.ErrUnsupportedMode, s)
	}
}

// Algorithm selects the block primitive driven by the engine.
type Algorithm int

const (
	TDES Algorithm = iota
	AES
)

func (a Algorithm) String() string {
	if a == AES {
		return "AES"
	}

	return "TDES"
}

// BlockSize returns the primitive's block size in bytes.
func (a Algorithm) BlockSize() int {
	if a == AES {
		return aes.BlockSize
	}

	return des.BlockSize
}

func (a Algorithm) validKeyLength(n int) bool {
	if a == AES {
		return n == 16 || n == 24 || n == 32
	}

	return n == KEY_LENGTH_SINGLE || n == KEY_LENGTH_DOUBLE || n == KEY_LENGTH_TRIPLE
}

// Path is one implementation strategy of the engine. Keys handed to a Path are
// already validated and, for TDES, expanded to 24 bytes.
type Path interface {
	Name() string
	Encrypt(alg Algorithm, mode Mode, key, iv, data []byte) ([]byte, error)
	Decrypt(alg Algorithm, mode Mode, key, iv, data []byte) ([]byte, error)
}

// ExpandKey returns a fresh 24-byte K1K2K3 copy of a single (K1K1K1),
// double (K1K2K1) or triple length key.
func ExpandKey(key []byte) ([]byte, error) {
	key24 := make([]byte, KEY_LENGTH_TRIPLE)
	switch len(key) {
	case KEY_LENGTH_SINGLE:
		copy(key24, key)
		copy(key24[KEY_LENGTH_SINGLE:], key)
		copy(key24[KEY_LENGTH_DOUBLE:], key)
	case KEY_LENGTH_DOUBLE:
		copy(key24, key)
		copy(key24[KEY_LENGTH_DOUBLE:], key[:KEY_LENGTH_SINGLE])
	case KEY_LENGTH_TRIPLE:
		copy(key24, key)
	default:
		return nil, fmt.Errorf("%w: got %d bytes", errorcodes.ErrInvalidKeyLength, len(key))
	}

	return key24, nil
}

func xorInto(dst, a, b []byte) {
	for i := range dst {
		dst[i] = a[i] ^ b[i]
	}
}
