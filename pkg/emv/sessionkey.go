package emv

import (
	"encoding/binary"
	"fmt"
	"slices"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/andrei-cloud/emv_studio/internal/errorcodes"
	"github.com/andrei-cloud/emv_studio/pkg/blockcipher"
	"github.com/andrei-cloud/emv_studio/pkg/keyutil"
)

// Scheme selects the session key derivation.
type Scheme int

const (
	// SchemeFlat is the EMV common session key derivation.
	SchemeFlat Scheme = iota
	// SchemeTree is the EMV2000 tree derivation indexed by ATC.
	SchemeTree
)

func (s Scheme) String() string {
	if s == SchemeTree {
		return "tree"
	}

	return "flat"
}

// ParseScheme accepts flat or tree. Empty means flat.
func ParseScheme(s string) (Scheme, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "flat", "csk":
		return SchemeFlat, nil
	case "tree":
		return SchemeTree, nil
	default:
		return SchemeFlat, fmt.Errorf("%w: session key scheme %q", errorcodes.ErrInvalidInput, s)
	}
}

// KeyType selects the diversification seed.
type KeyType int

const (
	// KeyTypeAC seeds with ATC||^ATC for AC and ARPC keys.
	KeyTypeAC KeyType = iota
	// KeyTypeSM seeds with the application cryptogram for secure messaging keys.
	KeyTypeSM
)

func (k KeyType) String() string {
	if k == KeyTypeSM {
		return "SM"
	}

	return "AC"
}

// ParseKeyType accepts AC or SM. Empty means AC.
func ParseKeyType(s string) (KeyType, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "", "AC":
		return KeyTypeAC, nil
	case "SM", "SMI", "SMC":
		return KeyTypeSM, nil
	default:
		return KeyTypeAC, fmt.Errorf("%w: session key type %q", errorcodes.ErrInvalidInput, s)
	}
}

const (
	treeKeyLength     = blockcipher.KEY_LENGTH_DOUBLE
	defaultKeyLength  = blockcipher.KEY_LENGTH_DOUBLE
	diversifyBlockLen = 8

	maxBranchFactor = 0xFFFF
	maxTreeHeight   = 32
	powerCap        = uint64(1) << 33
)

// SessionKeyParams is the input of DeriveSessionKey.
type SessionKeyParams struct {
	MasterKey    []byte
	Scheme       Scheme
	KeyType      KeyType
	ATC          uint32
	Cryptogram   []byte // 8 bytes, KeyTypeSM only
	BranchFactor int    // tree only
	Height       int    // tree only
	IV           []byte // tree only, 16 bytes, nil means zero
	KeyLength    int    // 8 or 16, zero means 16
	Parity       keyutil.Parity
}

// DeriveSessionKey derives a single-transaction key from a card master key.
func DeriveSessionKey(e *blockcipher.Engine, p SessionKeyParams) ([]byte, error) {
	if e == nil {
		e = blockcipher.Default()
	}
	keyLen := p.KeyLength
	if keyLen == 0 {
		keyLen = defaultKeyLength
	}
	if keyLen != blockcipher.KEY_LENGTH_SINGLE && keyLen != blockcipher.KEY_LENGTH_DOUBLE {
		return nil, fmt.Errorf("%w: session key length %d", errorcodes.ErrInvalidKeyLength, keyLen)
	}
	if p.KeyType == KeyTypeSM && len(p.Cryptogram) != diversifyBlockLen {
		return nil, fmt.Errorf("%w: SM key needs an 8-byte cryptogram, got %d", errorcodes.ErrInvalidInput, len(p.Cryptogram))
	}

	log.Debug().
		Str("event", "session_key_derive").
		Str("scheme", p.Scheme.String()).
		Str("key_type", p.KeyType.String()).
		Uint32("atc", p.ATC).
		Msg("deriving session key")

	var (
		sk  []byte
		err error
	)
	switch p.Scheme {
	case SchemeFlat:
		sk, err = deriveFlat(e, p, keyLen)
	case SchemeTree:
		sk, err = deriveTreeSessionKey(e, p, keyLen)
	default:
		return nil, fmt.Errorf("%w: scheme %d", errorcodes.ErrInvalidInput, p.Scheme)
	}
	if err != nil {
		return nil, err
	}
	keyutil.SetParity(sk, p.Parity)

	return sk, nil
}

func deriveFlat(e *blockcipher.Engine, p SessionKeyParams, keyLen int) ([]byte, error) {
	if len(p.MasterKey) != blockcipher.KEY_LENGTH_DOUBLE {
		return nil, fmt.Errorf("%w: master key must be 16 bytes, got %d", errorcodes.ErrInvalidKeyLength, len(p.MasterKey))
	}

	var r []byte
	if p.KeyType == KeyTypeSM {
		r = p.Cryptogram
	} else {
		if p.ATC > 0xFFFF {
			return nil, fmt.Errorf("%w: ATC %d exceeds 2 bytes", errorcodes.ErrInvalidInput, p.ATC)
		}
		r = ATCDiversifier(uint16(p.ATC))
	}

	return DeriveCommonSessionKey(e, p.MasterKey, r[:diversifyBlockLen], keyLen)
}

// ATCDiversifier returns ATC || ^ATC || 00..00 as a 16-byte block.
func ATCDiversifier(atc uint16) []byte {
	r := make([]byte, 16)
	binary.BigEndian.PutUint16(r, atc)
	binary.BigEndian.PutUint16(r[2:], ^atc)

	return r
}

// DeriveCommonSessionKey encrypts the 8-byte diversifier r under mk. For keys
// longer than one block, r is split into F1 (byte 2 = F0) and F2 (byte 2 = 0F) and
// the encryptions are concatenated and truncated to keyLen.
func DeriveCommonSessionKey(e *blockcipher.Engine, mk, r []byte, keyLen int) ([]byte, error) {
	if e == nil {
		e = blockcipher.Default()
	}
	if len(r) != diversifyBlockLen {
		return nil, fmt.Errorf("%w: diversifier must be 8 bytes, got %d", errorcodes.ErrInvalidDataLength, len(r))
	}
	if keyLen == diversifyBlockLen {
		return e.EncryptECB(mk, r)
	}

	f1 := slices.Clone(r)
	f2 := slices.Clone(r)
	f1[2] = 0xF0
	f2[2] = 0x0F

	blk1, err := e.EncryptECB(mk, f1)
	if err != nil {
		return nil, err
	}
	blk2, err := e.EncryptECB(mk, f2)
	if err != nil {
		return nil, err
	}

	return slices.Concat(blk1, blk2)[:keyLen], nil
}

func deriveTreeSessionKey(e *blockcipher.Engine, p SessionKeyParams, keyLen int) ([]byte, error) {
	leaf, err := DeriveTreeKey(e, p.MasterKey, p.ATC, p.BranchFactor, p.Height, p.IV)
	if err != nil {
		return nil, err
	}
	if p.KeyType == KeyTypeSM {
		return DeriveCommonSessionKey(e, leaf, p.Cryptogram, keyLen)
	}

	return leaf[:keyLen], nil
}

// TreeF is the EMV2000 tree diversification function
// F(X, Y, j) = E_X(YL xor (j mod b)) || E_X(YR xor (j mod b) xor 'F0'),
// with j mod b and 'F0' right-aligned in 8 bytes.
func TreeF(e *blockcipher.Engine, x, y []byte, j uint32, b int) ([]byte, error) {
	if e == nil {
		e = blockcipher.Default()
	}
	if len(y) != treeKeyLength {
		return nil, fmt.Errorf("%w: tree input must be 16 bytes, got %d", errorcodes.ErrInvalidDataLength, len(y))
	}

	var idx [8]byte
	binary.BigEndian.PutUint32(idx[4:], j%uint32(b))

	left := make([]byte, 8)
	right := make([]byte, 8)
	for i := range 8 {
		left[i] = y[i] ^ idx[i]
		right[i] = y[8+i] ^ idx[i]
	}
	right[7] ^= 0xF0

	zl, err := e.EncryptECB(x, left)
	if err != nil {
		return nil, err
	}
	zr, err := e.EncryptECB(x, right)
	if err != nil {
		return nil, err
	}

	return slices.Concat(zl, zr), nil
}

// DeriveTreeKey walks the tree of branch factor b and height h down to the leaf
// for atc. IK(-1) is iv (zero when nil) and IK(0) is mk. Level i uses index
// atc div b^(h-i). The result is F(P, GP, atc) xor GP where P and GP are the
// keys at levels h-1 and h-2.
func DeriveTreeKey(e *blockcipher.Engine, mk []byte, atc uint32, b, h int, iv []byte) ([]byte, error) {
	if len(mk) != treeKeyLength {
		return nil, fmt.Errorf("%w: tree master key must be 16 bytes, got %d", errorcodes.ErrInvalidKeyLength, len(mk))
	}
	if b < 2 || b > maxBranchFactor || h < 1 || h > maxTreeHeight {
		return nil, fmt.Errorf("%w: branch factor %d and height %d", errorcodes.ErrInvalidInput, b, h)
	}
	if e == nil {
		e = blockcipher.Default()
	}
	if iv == nil {
		iv = make([]byte, treeKeyLength)
	}
	if len(iv) != treeKeyLength {
		return nil, fmt.Errorf("%w: tree IV must be 16 bytes, got %d", errorcodes.ErrInvalidIVLength, len(iv))
	}

	// powers[k] = b^k saturated above any 32-bit ATC.
	powers := make([]uint64, h+1)
	powers[0] = 1
	for k := 1; k <= h; k++ {
		powers[k] = min(powers[k-1]*uint64(b), powerCap)
	}
	if uint64(atc) >= powers[h] {
		return nil, fmt.Errorf("%w: ATC %d does not fit a tree of %d^%d leaves", errorcodes.ErrInvalidInput, atc, b, h)
	}

	grandparent := slices.Clone(iv)
	parent := slices.Clone(mk)
	for i := 1; i <= h-1; i++ {
		idx := uint64(atc) / powers[h-i]
		next, err := TreeF(e, parent, grandparent, uint32(idx), b)
		if err != nil {
			return nil, err
		}
		grandparent, parent = parent, next
	}

	leaf, err := TreeF(e, parent, grandparent, atc, b)
	if err != nil {
		return nil, err
	}
	for i := range leaf {
		leaf[i] ^= grandparent[i]
	}

	return leaf, nil
}
