package keyutil

import (
	"bytes"
	"fmt"

	"github.com/andrei-cloud/emv_studio/internal/errorcodes"
)

// Pad appends PKCS#7 padding for block size n. A full block is added when data
// is already aligned.
func Pad(data []byte, n int) []byte {
	pad := n - len(data)%n
	out := make([]byte, len(data), len(data)+pad)
	copy(out, data)

	return append(out, bytes.Repeat([]byte{byte(pad)}, pad)...)
}

// Unpad strips PKCS#7 padding for block size n.
func Unpad(data []byte, n int) ([]byte, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty input", errorcodes.ErrInvalidPadding)
	}

	pad := int(data[len(data)-1])
	if pad < 1 || pad > n || pad > len(data) {
		return nil, fmt.Errorf("%w: trailing byte %d for block size %d", errorcodes.ErrInvalidPadding, pad, n)
	}

	out := make([]byte, len(data)-pad)
	copy(out, data)

	return out, nil
}
