// Package cryptoutils provides the payment primitives built on the block cipher
// engine (MACs, PIN block encryption, working keys) together with the binary
// helpers they share.
package cryptoutils

import (
	"encoding/hex"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/andrei-cloud/emv_studio/internal/errorcodes"
	"github.com/andrei-cloud/emv_studio/pkg/blockcipher"
)

const (
	ISO9797_METHOD2_PADDING_BYTE = 0x80
	BLOCK_SIZE                   = 8
	HEX_TO_DECIMAL_OFFSET        = 10
)

func engineOrDefault(e *blockcipher.Engine) *blockcipher.Engine {
	if e == nil {
		return blockcipher.Default()
	}

	return e
}

// PadISO9797Method2 implements ISO/IEC 9797-1 padding method 2 (EMV padding).
// Appends 0x80 followed by the smallest number of 0x00 bytes to reach a multiple
// of the block size. A full block is added to aligned data.
func PadISO9797Method2(msg []byte, bs int) []byte {
	return PadISO9797Method1(slices.Concat(msg, []byte{ISO9797_METHOD2_PADDING_BYTE}), bs)
}

// PadISO9797Method1 implements ISO/IEC 9797-1 padding method 1.
// Adds the smallest number of 0x00 bytes to make data multiple of block size.
// If data is already a multiple of block size and non-empty, no padding is added.
func PadISO9797Method1(data []byte, blockSize int) []byte {
	remainder := len(data) % blockSize
	if remainder == 0 && len(data) > 0 {
		return slices.Clone(data)
	}

	if len(data) == 0 {
		return make([]byte, blockSize)
	}

	padding := make([]byte, blockSize-remainder)

	return slices.Concat(data, padding)
}

// Raw2Str converts raw binary data to an uppercase hex string.
func Raw2Str(raw []byte) string {
	return strings.ToUpper(hex.EncodeToString(raw))
}

// Str2Raw decodes a hex string, ignoring surrounding whitespace and case.
func Str2Raw(s string) ([]byte, error) {
	raw, err := hex.DecodeString(strings.TrimSpace(s))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errorcodes.ErrInvalidInput, err)
	}

	return raw, nil
}

// EncodeBCD converts an even-length string of decimal digits into BCD bytes.
func EncodeBCD(digits string) ([]byte, error) {
	if len(digits)%2 != 0 {
		return nil, fmt.Errorf("%w: odd number of digits for BCD", errorcodes.ErrInvalidInput)
	}
	out := make([]byte, len(digits)/2)
	for i := range out {
		hi := digits[2*i] - '0'
		lo := digits[2*i+1] - '0'
		if hi > 9 || lo > 9 {
			return nil, fmt.Errorf("%w: invalid digit in %q", errorcodes.ErrInvalidInput, digits)
		}

		out[i] = hi<<4 | lo
	}

	return out, nil
}

// IsDigits reports whether s is a non-empty string of decimal digits.
func IsDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}

	return true
}

// Decimalize turns data into up to n decimal digits in two ordered passes: first
// every nibble 0-9 in order of appearance, then every nibble A-F mapped to 0-5,
// again in order of appearance.
func Decimalize(data []byte, n int) string {
	nibs := make([]byte, 0, len(data)*2)
	for _, b := range data {
		nibs = append(nibs, b>>4, b&0x0F)
	}

	out := make([]byte, 0, n)
	for _, v := range nibs {
		if len(out) == n {
			return string(out)
		}
		if v < HEX_TO_DECIMAL_OFFSET {
			out = append(out, '0'+v)
		}
	}
	for _, v := range nibs {
		if len(out) == n {
			break
		}
		if v >= HEX_TO_DECIMAL_OFFSET {
			out = append(out, '0'+v-HEX_TO_DECIMAL_OFFSET)
		}
	}

	return string(out)
}

// Chunk splits b into blocks of size sz. The last block may be shorter if needed.
func Chunk(b []byte, sz int) [][]byte {
	if sz <= 0 {
		return nil
	}
	n := (len(b) + sz - 1) / sz
	out := make([][]byte, n)
	for i := 0; i < n; i++ {
		start := i * sz
		end := min(start+sz, len(b))
		out[i] = b[start:end]
	}

	return out
}

// XORBytes returns a^b for equal-length slices. Returns error if lengths differ.
func XORBytes(a, b []byte) ([]byte, error) {
	if len(a) != len(b) {
		return nil, errors.New("xor: length mismatch")
	}
	out := make([]byte, len(a))
	for i := range a {
		out[i] = a[i] ^ b[i]
	}

	return out, nil
}
