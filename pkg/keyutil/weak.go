package keyutil

import "encoding/binary"

// weakKeys holds the 4 weak and 12 semi-weak single DES keys with parity bits
// cleared.
var weakKeys = func() map[uint64]struct{} {
	table := []uint64{
		// weak
		0x0101010101010101,
		0xFEFEFEFEFEFEFEFE,
		0xE0E0E0E0F1F1F1F1,
		0x1F1F1F1F0E0E0E0E,
		// semi-weak pairs
		0x01FE01FE01FE01FE, 0xFE01FE01FE01FE01,
		0x1FE01FE00EF10EF1, 0xE01FE01FF10EF10E,
		0x01E001E001F101F1, 0xE001E001F101F101,
		0x1FFE1FFE0EFE0EFE, 0xFE1FFE1FFE0EFE0E,
		0x011F011F010E010E, 0x1F011F010E010E01,
		0xE0FEE0FEF1FEF1FE, 0xFEE0FEE0FEF1FEF1,
	}
	m := make(map[uint64]struct{}, len(table))
	for _, k := range table {
		m[k&parityMask] = struct{}{}
	}

	return m
}()

const parityMask = 0xFEFEFEFEFEFEFEFE

func component(key []byte, i int) uint64 {
	return binary.BigEndian.Uint64(key[i*8:i*8+8]) & parityMask
}

// IsWeakKey reports whether any 8-byte component of key is a weak or semi-weak
// DES key, or whether two components are equal. Parity bits are ignored.
// Keys that are not 8, 16 or 24 bytes long are never reported weak.
func IsWeakKey(key []byte) bool {
	if validateKeyLength(len(key)) != nil {
		return false
	}

	n := len(key) / 8
	for i := 0; i < n; i++ {
		ci := component(key, i)
		if _, ok := weakKeys[ci]; ok {
			return true
		}
		for j := i + 1; j < n; j++ {
			if ci == component(key, j) {
				return true
			}
		}
	}

	return false
}
