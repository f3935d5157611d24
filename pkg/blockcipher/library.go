package blockcipher

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/des"
)

// LibraryPath runs the engine on the Go standard library block ciphers and modes.
type LibraryPath struct{}

// Name identifies the path in logs.
func (LibraryPath) Name() string { return "library" }

func (LibraryPath) newBlock(alg Algorithm, key []byte) (cipher.Block, error) {
	if alg == AES {
		return aes.NewCipher(key)
	}

	return des.NewTripleDESCipher(key)
}

// Encrypt encrypts data in the given mode.
func (p LibraryPath) Encrypt(alg Algorithm, mode Mode, key, iv, data []byte) ([]byte, error) {
	block, err := p.newBlock(alg, key)
	if err != nil {
		return nil, err
	}

	out := make([]byte, len(data))
	switch mode {
	case ECB:
		NewECBEncrypter(block).CryptBlocks(out, data)
	case CBC:
		cipher.NewCBCEncrypter(block, iv).CryptBlocks(out, data)
	case CFB:
		//nolint:staticcheck // full-block CFB is required for interoperability.
		cipher.NewCFBEncrypter(block, iv).XORKeyStream(out, data)
	case OFB:
		//nolint:staticcheck // OFB is required for interoperability.
		cipher.NewOFB(block, iv).XORKeyStream(out, data)
	default:
		return nil, errUnsupportedMode(mode)
	}

	return out, nil
}

// Decrypt decrypts data in the given mode.
func (p LibraryPath) Decrypt(alg Algorithm, mode Mode, key, iv, data []byte) ([]byte, error) {
	block, err := p.newBlock(alg, key)
	if err != nil {
		return nil, err
	}

	out := make([]byte, len(data))
	switch mode {
	case ECB:
		NewECBDecrypter(block).CryptBlocks(out, data)
	case CBC:
		cipher.NewCBCDecrypter(block, iv).CryptBlocks(out, data)
	case CFB:
		//nolint:staticcheck // full-block CFB is required for interoperability.
		cipher.NewCFBDecrypter(block, iv).XORKeyStream(out, data)
	case OFB:
		//nolint:staticcheck // OFB is required for interoperability.
		cipher.NewOFB(block, iv).XORKeyStream(out, data)
	default:
		return nil, errUnsupportedMode(mode)
	}

	return out, nil
}
