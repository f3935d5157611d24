package keyutil

import (
	"fmt"
	"math/bits"
	"strings"
)

// Parity is the bit parity forced on every key byte.
type Parity int

const (
	ParityOdd Parity = iota
	ParityEven
	ParityNone
)

func (p Parity) String() string {
	switch p {
	case ParityOdd:
		return "odd"
	case ParityEven:
		return "even"
	default:
		return "none"
	}
}

// ParseParity accepts odd, even or none (case-insensitive). Empty means odd.
func ParseParity(s string) (Parity, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "odd":
		return ParityOdd, nil
	case "even":
		return ParityEven, nil
	case "none":
		return ParityNone, nil
	default:
		return ParityNone, fmt.Errorf("unknown parity %q", s)
	}
}

func byteMatches(b byte, p Parity) bool {
	odd := bits.OnesCount8(b)%2 == 1
	if p == ParityEven {
		return !odd
	}

	return odd
}

// SetParity adjusts key in place. Only the least significant bit of a byte is
// ever flipped. ParityNone leaves the key untouched.
func SetParity(key []byte, p Parity) {
	if p == ParityNone {
		return
	}
	for i, b := range key {
		if !byteMatches(b, p) {
			key[i] = b ^ 0x01
		}
	}
}

// AdjustParity returns a parity-adjusted copy of key.
func AdjustParity(key []byte, p Parity) []byte {
	out := make([]byte, len(key))
	copy(out, key)
	SetParity(out, p)

	return out
}

// HasValidParity reports whether every byte of key already has parity p.
// ParityNone is always valid.
func HasValidParity(key []byte, p Parity) bool {
	if p == ParityNone {
		return true
	}
	for _, b := range key {
		if !byteMatches(b, p) {
			return false
		}
	}

	return true
}
