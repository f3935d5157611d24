package cryptoutils

import (
	"fmt"
	"slices"

	"github.com/andrei-cloud/emv_studio/internal/errorcodes"
	"github.com/andrei-cloud/emv_studio/pkg/blockcipher"
)

// EncryptPINBlock encrypts a formatted 8-byte PIN block with a single ECB pass.
func EncryptPINBlock(e *blockcipher.Engine, key, pinBlock []byte) ([]byte, error) {
	if len(pinBlock) != BLOCK_SIZE {
		return nil, fmt.Errorf("%w: pin block must be 8 bytes, got %d", errorcodes.ErrInvalidDataLength, len(pinBlock))
	}

	return engineOrDefault(e).EncryptECB(key, pinBlock)
}

// DecryptPINBlock reverses EncryptPINBlock.
func DecryptPINBlock(e *blockcipher.Engine, key, encrypted []byte) ([]byte, error) {
	if len(encrypted) != BLOCK_SIZE {
		return nil, fmt.Errorf("%w: pin block must be 8 bytes, got %d", errorcodes.ErrInvalidDataLength, len(encrypted))
	}

	return engineOrDefault(e).DecryptECB(key, encrypted)
}

// DeriveWorkingKey encrypts the 8-byte key serial number under master[0:16] and
// under the overlapping window master[8:24], and joins the first half of each.
func DeriveWorkingKey(e *blockcipher.Engine, master, ksn []byte) ([]byte, error) {
	if len(master) != blockcipher.KEY_LENGTH_TRIPLE {
		return nil, fmt.Errorf("%w: master must be 24 bytes, got %d", errorcodes.ErrInvalidKeyLength, len(master))
	}
	if len(ksn) != BLOCK_SIZE {
		return nil, fmt.Errorf("%w: ksn must be 8 bytes, got %d", errorcodes.ErrInvalidDataLength, len(ksn))
	}
	e = engineOrDefault(e)

	left, err := e.EncryptECB(master[:16], ksn)
	if err != nil {
		return nil, err
	}
	right, err := e.EncryptECB(master[8:24], ksn)
	if err != nil {
		return nil, err
	}

	return slices.Concat(left[:4], right[:4]), nil
}
