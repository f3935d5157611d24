// Package pinblock builds and reads clear ISO 9564-1 PIN blocks, formats 0 to 3.
//
// A PIN block is 16 nibbles: the format number, the PIN length, the PIN digits
// and a fill. Formats 0 and 3 are then XORed with the account number field,
// 0000 followed by the 12 rightmost PAN digits excluding the check digit.
package pinblock

import (
	"crypto/rand"
	"fmt"
	"strings"

	"github.com/andrei-cloud/emv_studio/internal/errorcodes"
	"github.com/andrei-cloud/emv_studio/pkg/cryptoutils"
)

// Format is an ISO 9564-1 PIN block format number.
type Format int

// Supported formats.
const (
	ISO0 Format = iota // PIN XOR PAN, F fill.
	ISO1               // random fill, no PAN.
	ISO2               // F fill, no PAN, chip offline PIN.
	ISO3               // PIN XOR PAN, random A-F fill.
)

// BlockSize is the length of a format 0 to 3 PIN block in bytes.
const BlockSize = 8

const (
	minPINLength = 4
	maxPINLength = 12
	minPANLength = 13
	maxPANLength = 19
)

// ParseFormat accepts "0" to "3" with an optional ISO prefix, case-insensitive.
func ParseFormat(s string) (Format, error) {
	v := strings.TrimPrefix(strings.ToUpper(strings.TrimSpace(s)), "ISO")
	switch strings.TrimPrefix(v, "-") {
	case "0":
		return ISO0, nil
	case "1":
		return ISO1, nil
	case "2":
		return ISO2, nil
	case "3":
		return ISO3, nil
	}

	return 0, fmt.Errorf("%w: unknown PIN block format %q", errorcodes.ErrInvalidInput, s)
}

func (f Format) String() string {
	return fmt.Sprintf("ISO%d", int(f))
}

// UsesPAN reports whether the format binds the block to an account number.
func (f Format) UsesPAN() bool {
	return f == ISO0 || f == ISO3
}

func (f Format) valid() error {
	if f < ISO0 || f > ISO3 {
		return fmt.Errorf("%w: unknown PIN block format %d", errorcodes.ErrInvalidInput, int(f))
	}

	return nil
}

// Encode builds the clear PIN block for pin. pan is ignored by formats 1 and 2.
func Encode(f Format, pin, pan string) ([]byte, error) {
	if err := f.valid(); err != nil {
		return nil, err
	}
	if err := checkPIN(pin); err != nil {
		return nil, err
	}

	nibbles := make([]byte, 2*BlockSize)
	nibbles[0] = byte(f)
	nibbles[1] = byte(len(pin))
	for i := range len(pin) {
		nibbles[2+i] = pin[i] - '0'
	}

	fill, err := fillNibbles(f, len(nibbles)-2-len(pin))
	if err != nil {
		return nil, err
	}
	copy(nibbles[2+len(pin):], fill)

	block := pack(nibbles)
	if !f.UsesPAN() {
		return block, nil
	}

	field, err := panField(pan)
	if err != nil {
		return nil, err
	}
	for i := range block {
		block[i] ^= field[i]
	}

	return block, nil
}

// Decode extracts the PIN from a clear PIN block and checks its layout.
func Decode(f Format, block []byte, pan string) (string, error) {
	if err := f.valid(); err != nil {
		return "", err
	}
	if len(block) != BlockSize {
		return "", fmt.Errorf("%w: PIN block of %d bytes, want %d", errorcodes.ErrInvalidInput, len(block), BlockSize)
	}

	plain := make([]byte, BlockSize)
	copy(plain, block)
	if f.UsesPAN() {
		field, err := panField(pan)
		if err != nil {
			return "", err
		}
		for i := range plain {
			plain[i] ^= field[i]
		}
	}

	nibbles := unpack(plain)
	if Format(nibbles[0]) != f {
		return "", fmt.Errorf("%w: PIN block control field %X, want %d", errorcodes.ErrInvalidInput, nibbles[0], int(f))
	}
	n := int(nibbles[1])
	if n < minPINLength || n > maxPINLength {
		return "", fmt.Errorf("%w: PIN length %d out of range", errorcodes.ErrInvalidInput, n)
	}

	var pin strings.Builder
	for _, d := range nibbles[2 : 2+n] {
		if d > 9 {
			return "", fmt.Errorf("%w: PIN digit %X is not decimal", errorcodes.ErrInvalidInput, d)
		}
		pin.WriteByte('0' + d)
	}

	for _, d := range nibbles[2+n:] {
		if !validFill(f, d) {
			return "", fmt.Errorf("%w: fill nibble %X not allowed in %s", errorcodes.ErrInvalidInput, d, f)
		}
	}

	return pin.String(), nil
}

func checkPIN(pin string) error {
	if len(pin) < minPINLength || len(pin) > maxPINLength {
		return fmt.Errorf("%w: PIN must be %d to %d digits", errorcodes.ErrInvalidInput, minPINLength, maxPINLength)
	}
	if !cryptoutils.IsDigits(pin) {
		return fmt.Errorf("%w: PIN must be decimal", errorcodes.ErrInvalidInput)
	}

	return nil
}

// panField returns 0000 followed by the 12 rightmost PAN digits excluding the
// check digit, packed into one block.
func panField(pan string) ([]byte, error) {
	if len(pan) < minPANLength || len(pan) > maxPANLength || !cryptoutils.IsDigits(pan) {
		return nil, fmt.Errorf("%w: PAN must be %d to %d digits", errorcodes.ErrInvalidInput, minPANLength, maxPANLength)
	}

	digits := pan[len(pan)-13 : len(pan)-1]
	nibbles := make([]byte, 2*BlockSize)
	for i := range len(digits) {
		nibbles[4+i] = digits[i] - '0'
	}

	return pack(nibbles), nil
}

func fillNibbles(f Format, n int) ([]byte, error) {
	fill := make([]byte, n)
	switch f {
	case ISO0, ISO2:
		for i := range fill {
			fill[i] = 0xF
		}
	case ISO1:
		if _, err := rand.Read(fill); err != nil {
			return nil, fmt.Errorf("%w: random fill: %v", errorcodes.ErrCipherFailure, err)
		}
		for i := range fill {
			fill[i] &= 0x0F
		}
	case ISO3:
		// Rejection sampling keeps the six fill values uniform.
		buf := make([]byte, 1)
		for i := 0; i < n; {
			if _, err := rand.Read(buf); err != nil {
				return nil, fmt.Errorf("%w: random fill: %v", errorcodes.ErrCipherFailure, err)
			}
			if buf[0] >= 252 {
				continue
			}
			fill[i] = 0xA + buf[0]%6
			i++
		}
	}

	return fill, nil
}

func validFill(f Format, d byte) bool {
	switch f {
	case ISO0, ISO2:
		return d == 0xF
	case ISO3:
		return d >= 0xA
	default:
		return true
	}
}

func pack(nibbles []byte) []byte {
	out := make([]byte, len(nibbles)/2)
	for i := range out {
		out[i] = nibbles[2*i]<<4 | nibbles[2*i+1]
	}

	return out
}

func unpack(b []byte) []byte {
	out := make([]byte, 2*len(b))
	for i, v := range b {
		out[2*i] = v >> 4
		out[2*i+1] = v & 0x0F
	}

	return out
}
