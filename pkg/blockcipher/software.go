package blockcipher

import (
	"crypto/aes"
	"crypto/cipher"
	"fmt"

	"github.com/andrei-cloud/emv_studio/internal/errorcodes"
)

// SoftwarePath runs the engine block by block on the from-scratch DES
// implementation and hand-written mode loops. AES has no from-scratch primitive,
// so it reuses crypto/aes under the same mode loops.
type SoftwarePath struct{}

// Name identifies the path in logs.
func (SoftwarePath) Name() string { return "software" }

func (SoftwarePath) newBlock(alg Algorithm, key []byte) (cipher.Block, error) {
	if alg == AES {
		return aes.NewCipher(key)
	}

	return newSoftTripleDES(key)
}

// Encrypt encrypts data in the given mode.
func (p SoftwarePath) Encrypt(alg Algorithm, mode Mode, key, iv, data []byte) ([]byte, error) {
	block, err := p.newBlock(alg, key)
	if err != nil {
		return nil, err
	}

	return cryptBlocks(block, mode, iv, data, true)
}

// Decrypt decrypts data in the given mode.
func (p SoftwarePath) Decrypt(alg Algorithm, mode Mode, key, iv, data []byte) ([]byte, error) {
	block, err := p.newBlock(alg, key)
	if err != nil {
		return nil, err
	}

	return cryptBlocks(block, mode, iv, data, false)
}

func cryptBlocks(b cipher.Block, mode Mode, iv, data []byte, encrypt bool) ([]byte, error) {
	bs := b.BlockSize()
	out := make([]byte, len(data))

	switch mode {
	case ECB:
		for i := 0; i < len(data); i += bs {
			if encrypt {
				b.Encrypt(out[i:i+bs], data[i:i+bs])
			} else {
				b.Decrypt(out[i:i+bs], data[i:i+bs])
			}
		}
	case CBC:
		prev := make([]byte, bs)
		copy(prev, iv)
		tmp := make([]byte, bs)
		for i := 0; i < len(data); i += bs {
			if encrypt {
				xorInto(tmp, data[i:i+bs], prev)
				b.Encrypt(out[i:i+bs], tmp)
				copy(prev, out[i:i+bs])
			} else {
				b.Decrypt(tmp, data[i:i+bs])
				xorInto(out[i:i+bs], tmp, prev)
				copy(prev, data[i:i+bs])
			}
		}
	case CFB, OFB:
		register := make([]byte, bs)
		copy(register, iv)
		keystream := make([]byte, bs)
		for i := 0; i < len(data); i += bs {
			b.Encrypt(keystream, register)
			n := min(bs, len(data)-i)
			xorInto(out[i:i+n], data[i:i+n], keystream[:n])

			switch {
			case mode == OFB:
				copy(register, keystream)
			case encrypt:
				copy(register, out[i:i+n])
			default:
				copy(register, data[i:i+n])
			}
		}
	default:
		return nil, errUnsupportedMode(mode)
	}

	return out, nil
}

func errUnsupportedMode(mode Mode) error {
	return fmt.Errorf("%w: %s", errorcodes.ErrUnsupportedMode, mode)
}
