// Package emv derives card and session keys and computes application
// cryptograms over EMV tag data.
package emv

import (
	"crypto/sha1" //nolint:gosec // SHA-1 is mandated by EMV Option B.
	"encoding/hex"
	"fmt"
	"slices"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/andrei-cloud/emv_studio/internal/errorcodes"
	"github.com/andrei-cloud/emv_studio/pkg/blockcipher"
	"github.com/andrei-cloud/emv_studio/pkg/cryptoutils"
	"github.com/andrei-cloud/emv_studio/pkg/keyutil"
)

// Option selects the EMV card key derivation method.
type Option int

const (
	OptionA Option = iota
	OptionB
)

func (o Option) String() string {
	if o == OptionB {
		return "B"
	}

	return "A"
}

// ParseOption accepts "A" or "B" (case-insensitive). Empty means A.
func ParseOption(s string) (Option, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "", "A":
		return OptionA, nil
	case "B":
		return OptionB, nil
	default:
		return OptionA, fmt.Errorf("%w: derivation option %q", errorcodes.ErrInvalidInput, s)
	}
}

const udkDigits = 16

// UDKParams is the input of DeriveUDK.
type UDKParams struct {
	MasterKey   []byte
	PAN         string
	PANSequence string // two digits, empty means "00"
	Option      Option
	Parity      keyutil.Parity
}

// DeriveUDK derives the 16-byte card key ZL||ZR from an issuer master key.
func DeriveUDK(e *blockcipher.Engine, p UDKParams) ([]byte, error) {
	if len(p.MasterKey) != blockcipher.KEY_LENGTH_DOUBLE && len(p.MasterKey) != blockcipher.KEY_LENGTH_TRIPLE {
		return nil, fmt.Errorf("%w: master key must be 16 or 24 bytes, got %d", errorcodes.ErrInvalidKeyLength, len(p.MasterKey))
	}
	if !cryptoutils.IsDigits(p.PAN) {
		return nil, fmt.Errorf("%w: PAN must be decimal digits", errorcodes.ErrInvalidInput)
	}
	psn := p.PANSequence
	if psn == "" {
		psn = "00"
	}
	if len(psn) != 2 || !cryptoutils.IsDigits(psn) {
		return nil, fmt.Errorf("%w: PAN sequence must be 2 digits", errorcodes.ErrInvalidInput)
	}
	if e == nil {
		e = blockcipher.Default()
	}

	digits := p.PAN + psn
	option := p.Option
	if option == OptionB && len(digits) <= udkDigits {
		option = OptionA
	}

	var (
		y   []byte
		err error
	)
	switch option {
	case OptionA:
		y, err = optionAInput(digits)
	case OptionB:
		y, err = optionBInput(digits)
	default:
		return nil, fmt.Errorf("%w: derivation option %d", errorcodes.ErrInvalidInput, p.Option)
	}
	if err != nil {
		return nil, err
	}

	log.Debug().
		Str("event", "udk_derive").
		Str("option", option.String()).
		Msg("deriving card key")

	udk, err := zlzr(e, p.MasterKey, y)
	if err != nil {
		return nil, err
	}
	keyutil.SetParity(udk, p.Parity)

	return udk, nil
}

// optionAInput takes the rightmost 16 digits of PAN||PSN, left-padded with zeros.
func optionAInput(digits string) ([]byte, error) {
	if len(digits) < udkDigits {
		digits = strings.Repeat("0", udkDigits-len(digits)) + digits
	} else {
		digits = digits[len(digits)-udkDigits:]
	}

	return cryptoutils.EncodeBCD(digits)
}

// optionBInput hashes PAN||PSN packed as BCD and decimalizes the digest.
func optionBInput(digits string) ([]byte, error) {
	if len(digits)%2 != 0 {
		digits = "0" + digits
	}
	raw, err := hex.DecodeString(digits)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errorcodes.ErrInvalidInput, err)
	}
	h := sha1.Sum(raw) //nolint:gosec // see import.

	return cryptoutils.EncodeBCD(cryptoutils.Decimalize(h[:], udkDigits))
}

// zlzr returns E(mk, y) || E(mk, y xor FF..FF).
func zlzr(e *blockcipher.Engine, mk, y []byte) ([]byte, error) {
	zl, err := e.EncryptECB(mk, y)
	if err != nil {
		return nil, err
	}

	inv := make([]byte, len(y))
	for i := range y {
		inv[i] = y[i] ^ 0xFF
	}
	zr, err := e.EncryptECB(mk, inv)
	if err != nil {
		return nil, err
	}

	return slices.Concat(zl, zr), nil
}
