package cryptoutils

import (
	"crypto/aes"
	"fmt"

	"github.com/andrei-cloud/emv_studio/internal/errorcodes"
	"github.com/andrei-cloud/emv_studio/pkg/blockcipher"
	"github.com/andrei-cloud/emv_studio/pkg/keyutil"
)

// MAC pads data with PKCS#7, CBC-encrypts it under key and iv and returns the
// final 8-byte block. A nil iv means a zero IV.
func MAC(e *blockcipher.Engine, key, iv, data []byte) ([]byte, error) {
	e = engineOrDefault(e)
	if iv == nil {
		iv = make([]byte, BLOCK_SIZE)
	}

	out, err := e.Encrypt(blockcipher.CBC, key, iv, keyutil.Pad(data, BLOCK_SIZE))
	if err != nil {
		return nil, err
	}

	return out[len(out)-BLOCK_SIZE:], nil
}

// RetailMAC computes the ANSI X9.19 retail MAC over PKCS#7 padded data. key must
// be 16 bytes: the left half drives the running single-DES CBC chain, the final
// block is decrypted under the right half and encrypted again under the left.
func RetailMAC(e *blockcipher.Engine, key, data []byte) ([]byte, error) {
	if len(key) != blockcipher.KEY_LENGTH_DOUBLE {
		return nil, fmt.Errorf("%w: retail MAC needs a 16-byte key, got %d", errorcodes.ErrInvalidKeyLength, len(key))
	}

	return retailFinal(engineOrDefault(e), key, keyutil.Pad(data, BLOCK_SIZE))
}

func retailFinal(e *blockcipher.Engine, key, padded []byte) ([]byte, error) {
	left, right := key[:BLOCK_SIZE], key[BLOCK_SIZE:]

	h := make([]byte, BLOCK_SIZE)
	for _, block := range Chunk(padded, BLOCK_SIZE) {
		x, err := XORBytes(block, h)
		if err != nil {
			return nil, err
		}
		if h, err = e.EncryptECB(left, x); err != nil {
			return nil, err
		}
	}

	tmp, err := e.DecryptECB(right, h)
	if err != nil {
		return nil, err
	}

	return e.EncryptECB(left, tmp)
}

// CalculateMAC computes an s-byte MAC (4 ≤ s ≤ 8) over msg using
// ISO/IEC 9797-1 MAC algorithm 1 or 3 (algo == 1 or 3).
// ks must be 8 bytes (single-DES) or 16 bytes (two-key DES: k1||k2).
// msg is already padded data.
func CalculateMAC(e *blockcipher.Engine, msg, ks []byte, s, algo int) ([]byte, error) {
	if s < 4 || s > 8 {
		return nil, fmt.Errorf("%w: invalid MAC length %d", errorcodes.ErrInvalidInput, s)
	}
	if len(ks) != blockcipher.KEY_LENGTH_SINGLE && len(ks) != blockcipher.KEY_LENGTH_DOUBLE {
		return nil, fmt.Errorf("%w: ks must be 8 or 16 bytes, got %d", errorcodes.ErrInvalidKeyLength, len(ks))
	}
	if len(msg) == 0 || len(msg)%BLOCK_SIZE != 0 {
		return nil, fmt.Errorf("%w: MAC input must be padded", errorcodes.ErrInvalidDataLength)
	}
	if algo != 1 && algo != 3 {
		return nil, fmt.Errorf("%w: MAC algorithm %d, must be 1 or 3", errorcodes.ErrInvalidInput, algo)
	}
	e = engineOrDefault(e)

	var (
		result []byte
		err    error
	)
	// with a single key algorithm 3 reduces to algorithm 1
	switch {
	case algo == 1, len(ks) == blockcipher.KEY_LENGTH_SINGLE:
		var out []byte
		out, err = e.Encrypt(blockcipher.CBC, ks[:BLOCK_SIZE], make([]byte, BLOCK_SIZE), msg)
		if err == nil {
			result = out[len(out)-BLOCK_SIZE:]
		}
	default:
		result, err = retailFinal(e, ks, msg)
	}
	if err != nil {
		return nil, err
	}

	return result[:s], nil
}

// CMAC computes an s-byte AES-CMAC (4 ≤ s ≤ 16) over msg using key ks.
// Implements ISO/IEC 9797-1 MAC algorithm 5 with the subkeys of NIST SP 800-38B.
func CMAC(e *blockcipher.Engine, msg, ks []byte, s int) ([]byte, error) {
	const blockSize = aes.BlockSize
	if s < 4 || s > blockSize {
		return nil, fmt.Errorf("%w: invalid MAC length %d", errorcodes.ErrInvalidInput, s)
	}
	aesEngine := engineOrDefault(e).WithAlgorithm(blockcipher.AES)

	k1, k2, err := deriveSubkeys(aesEngine, ks)
	if err != nil {
		return nil, err
	}

	var padded []byte
	var mask []byte
	if len(msg) > 0 && len(msg)%blockSize == 0 {
		padded = PadISO9797Method1(msg, blockSize)
		mask = k1
	} else {
		padded = PadISO9797Method2(msg, blockSize)
		mask = k2
	}
	last := padded[len(padded)-blockSize:]
	for i := range last {
		last[i] ^= mask[i]
	}

	out, err := aesEngine.Encrypt(blockcipher.CBC, ks, make([]byte, blockSize), padded)
	if err != nil {
		return nil, err
	}

	return out[len(out)-blockSize:][:s], nil
}

// deriveSubkeys generates AES-CMAC subkeys k1, k2 per NIST SP 800-38B.
func deriveSubkeys(e *blockcipher.Engine, key []byte) ([]byte, []byte, error) {
	l, err := e.EncryptECB(key, make([]byte, aes.BlockSize))
	if err != nil {
		return nil, nil, err
	}

	k1 := shiftSubkey(l)
	k2 := shiftSubkey(k1)

	return k1, k2, nil
}

// shiftSubkey returns in << 1, reduced by Rb when the top bit was set.
func shiftSubkey(in []byte) []byte {
	const rb = 0x87

	out := make([]byte, len(in))
	var carry byte
	for i := len(in) - 1; i >= 0; i-- {
		out[i] = in[i]<<1 | carry
		carry = in[i] >> 7
	}
	if in[0]>>7 == 1 {
		out[len(out)-1] ^= rb
	}

	return out
}
