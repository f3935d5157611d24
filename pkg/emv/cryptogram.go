package emv

import (
	"crypto/subtle"
	"fmt"
	"slices"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/andrei-cloud/emv_studio/internal/errorcodes"
	"github.com/andrei-cloud/emv_studio/pkg/blockcipher"
	"github.com/andrei-cloud/emv_studio/pkg/cryptoutils"
)

// CryptogramType is the kind of application cryptogram requested.
type CryptogramType int

const (
	ARQC CryptogramType = iota
	TC
	AAC
)

func (c CryptogramType) String() string {
	switch c {
	case TC:
		return "TC"
	case AAC:
		return "AAC"
	default:
		return "ARQC"
	}
}

// ParseCryptogramType accepts ARQC, TC or AAC. Empty means ARQC.
func ParseCryptogramType(s string) (CryptogramType, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "", "ARQC":
		return ARQC, nil
	case "TC":
		return TC, nil
	case "AAC":
		return AAC, nil
	default:
		return ARQC, fmt.Errorf("%w: cryptogram type %q", errorcodes.ErrInvalidInput, s)
	}
}

// MACAlgorithm selects how the cryptogram data block is MACed.
type MACAlgorithm int

const (
	// MACDefault pads with PKCS#7 and takes the last CBC block under the session key.
	MACDefault MACAlgorithm = iota
	// MACRetail pads with ISO 9797-1 method 2 and applies MAC algorithm 3.
	MACRetail
)

// ParseMACAlgorithm accepts default or retail. Empty means default.
func ParseMACAlgorithm(s string) (MACAlgorithm, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "default", "cbc":
		return MACDefault, nil
	case "retail", "alg3", "emv":
		return MACRetail, nil
	default:
		return MACDefault, fmt.Errorf("%w: MAC algorithm %q", errorcodes.ErrInvalidInput, s)
	}
}

// ACOptions tune GenerateAC.
type ACOptions struct {
	Algorithm MACAlgorithm
	IV        []byte // MACDefault only, nil means zero
}

var (
	terminalMandatory = []uint32{
		TagAmountAuthorised,
		TagAmountOther,
		TagTerminalCountryCode,
		TagTransactionDate,
		TagTransactionType,
		TagUnpredictableNumber,
		TagTransactionCurrency,
		TagTVR,
	}
	iccMandatory = []uint32{TagATC, TagAIP}

	terminalDataOrder = []uint32{
		TagAmountAuthorised,
		TagAmountOther,
		TagTerminalCountryCode,
		TagTVR,
		TagTransactionCurrency,
		TagTransactionDate,
		TagTransactionType,
		TagUnpredictableNumber,
	}
	iccDataOrder = []uint32{TagAIP, TagATC}
)

// ValidateACInput reports every mandatory tag missing from terminal and icc data.
func ValidateACInput(terminal, icc TagList) error {
	var missing []string
	for _, tag := range terminal.Missing(terminalMandatory...) {
		missing = append(missing, "terminal "+TagString(tag))
	}
	for _, tag := range icc.Missing(iccMandatory...) {
		missing = append(missing, "icc "+TagString(tag))
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", errorcodes.ErrMissingMandatoryTag, strings.Join(missing, ", "))
	}

	return nil
}

// BuildACData concatenates the tag values in cryptogram order: 9F02 9F03 9F1A 95
// 5F2A 9A 9C 9F37 from the terminal, 82 9F36 from the card, then 9F10 when either
// side supplies it.
func BuildACData(terminal, icc TagList) ([]byte, error) {
	if err := ValidateACInput(terminal, icc); err != nil {
		return nil, err
	}

	var data []byte
	for _, tag := range terminalDataOrder {
		v, _ := terminal.Value(tag)
		data = append(data, v...)
	}
	for _, tag := range iccDataOrder {
		v, _ := icc.Value(tag)
		data = append(data, v...)
	}
	if v, ok := icc.Value(TagIssuerAppData); ok {
		data = append(data, v...)
	} else if v, ok := terminal.Value(TagIssuerAppData); ok {
		data = append(data, v...)
	}

	return data, nil
}

// GenerateAC computes the application cryptogram over terminal and card tag data
// under the session key. Tag validation runs before any cipher work.
func GenerateAC(
	e *blockcipher.Engine,
	sessionKey []byte,
	terminal, icc TagList,
	typ CryptogramType,
	opts ACOptions,
) ([]byte, error) {
	logger := log.With().Str("event", "generate_ac").Str("type", typ.String()).Logger()

	logger.Debug().Str("stage", "validating").Msg("")
	data, err := BuildACData(terminal, icc)
	if err != nil {
		logger.Debug().Str("stage", "failed").Err(err).Msg("")
		return nil, err
	}
	logger.Debug().Str("stage", "deriving-input").Int("data_len", len(data)).Msg("")

	logger.Debug().Str("stage", "ciphering").Msg("")
	ac, err := macACData(e, sessionKey, data, opts)
	if err != nil {
		logger.Debug().Str("stage", "failed").Err(err).Msg("")
		return nil, err
	}
	logger.Debug().Str("stage", "done").Msg("")

	return ac, nil
}

func macACData(e *blockcipher.Engine, sessionKey, data []byte, opts ACOptions) ([]byte, error) {
	switch opts.Algorithm {
	case MACDefault:
		return cryptoutils.MAC(e, sessionKey, opts.IV, data)
	case MACRetail:
		padded := cryptoutils.PadISO9797Method2(data, cryptoutils.BLOCK_SIZE)
		return cryptoutils.CalculateMAC(e, padded, sessionKey, 8, 3)
	default:
		return nil, fmt.Errorf("%w: MAC algorithm %d", errorcodes.ErrInvalidInput, opts.Algorithm)
	}
}

// VerifyAC recomputes the cryptogram and compares it in constant time.
func VerifyAC(
	e *blockcipher.Engine,
	sessionKey []byte,
	terminal, icc TagList,
	typ CryptogramType,
	opts ACOptions,
	ac []byte,
) (bool, error) {
	want, err := GenerateAC(e, sessionKey, terminal, icc, typ, opts)
	if err != nil {
		return false, err
	}

	return subtle.ConstantTimeCompare(want, ac) == 1, nil
}

// ARPCMethod selects the EMV ARPC construction.
type ARPCMethod int

const (
	// ARPCMethod1 encrypts ARQC xor (ARC || 00..00).
	ARPCMethod1 ARPCMethod = 1
	// ARPCMethod2 MACs ARQC || CSU || proprietary data and keeps 4 bytes.
	ARPCMethod2 ARPCMethod = 2
)

// ARPCParams is the input of GenerateARPC.
type ARPCParams struct {
	Method       ARPCMethod
	ARC          []byte // 2 bytes, method 1
	CSU          []byte // 4 bytes, method 2
	PropAuthData []byte // 0-8 bytes, method 2
}

// GenerateARPC computes the authorisation response cryptogram for arqc.
func GenerateARPC(e *blockcipher.Engine, sessionKey, arqc []byte, p ARPCParams) ([]byte, error) {
	if len(arqc) != cryptoutils.BLOCK_SIZE {
		return nil, fmt.Errorf("%w: ARQC must be 8 bytes, got %d", errorcodes.ErrInvalidDataLength, len(arqc))
	}
	if e == nil {
		e = blockcipher.Default()
	}

	switch p.Method {
	case ARPCMethod1:
		if len(p.ARC) != 2 {
			return nil, fmt.Errorf("%w: ARC must be 2 bytes, got %d", errorcodes.ErrInvalidInput, len(p.ARC))
		}
		x := slices.Clone(arqc)
		x[0] ^= p.ARC[0]
		x[1] ^= p.ARC[1]

		return e.EncryptECB(sessionKey, x)
	case ARPCMethod2:
		if len(p.CSU) != 4 {
			return nil, fmt.Errorf("%w: CSU must be 4 bytes, got %d", errorcodes.ErrInvalidInput, len(p.CSU))
		}
		if len(p.PropAuthData) > 8 {
			return nil, fmt.Errorf("%w: proprietary data exceeds 8 bytes", errorcodes.ErrInvalidInput)
		}
		padded := cryptoutils.PadISO9797Method2(slices.Concat(arqc, p.CSU, p.PropAuthData), cryptoutils.BLOCK_SIZE)

		return cryptoutils.CalculateMAC(e, padded, sessionKey, 4, 3)
	default:
		return nil, fmt.Errorf("%w: ARPC method %d", errorcodes.ErrUnsupportedOperation, p.Method)
	}
}

// IssuerAuthData returns the tag 91 value carried back to the card: ARPC || ARC
// for method 1, ARPC || CSU || proprietary data for method 2.
func IssuerAuthData(arpc []byte, p ARPCParams) []byte {
	if p.Method == ARPCMethod2 {
		return slices.Concat(arpc, p.CSU, p.PropAuthData)
	}

	return slices.Concat(arpc, p.ARC)
}
