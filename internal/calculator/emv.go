package calculator

import (
	"context"
	"fmt"
	"strconv"

	"github.com/andrei-cloud/emv_studio/internal/errorcodes"
	"github.com/andrei-cloud/emv_studio/pkg/blockcipher"
	"github.com/andrei-cloud/emv_studio/pkg/emv"
)

// UDKCalculator derives card keys.
type UDKCalculator struct {
	base
}

// NewUDKCalculator builds the card key calculator over engine e.
func NewUDKCalculator(e *blockcipher.Engine) *UDKCalculator {
	c := &UDKCalculator{base{
		id:          "udk",
		description: "EMV card key (UDK) derivation, Option A and B",
		engine:      e,
	}}
	c.ops = map[string]operation{
		"DERIVE": {
			description: "Derive the card key from an issuer master key, PAN and PAN sequence number",
			params: []Param{
				hexParam("master_key", "issuer master key, 16 or 24 bytes", 16, 24),
				{Name: "pan", Type: TypeString, Description: "primary account number", Required: true, Pattern: `^\d{1,19}$`},
				{Name: "psn", Type: TypeString, Description: "PAN sequence number", Pattern: `^\d{2}$`, Default: "00"},
				option("derivation", "derivation option", "A", "A", "B"),
				parityOption(),
			},
			run: c.derive,
		},
	}

	return c
}

func (c *UDKCalculator) derive(_ context.Context, v Values) (map[string]string, error) {
	opt, err := emv.ParseOption(v.String("derivation"))
	if err != nil {
		return nil, err
	}

	udk, err := emv.DeriveUDK(c.engine, emv.UDKParams{
		MasterKey:   v.Hex("master_key"),
		PAN:         v.String("pan"),
		PANSequence: v.String("psn"),
		Option:      opt,
		Parity:      parity(v),
	})
	if err != nil {
		return nil, err
	}

	return c.withKCV(map[string]string{"udk": hexOut(udk)}, "kcv", udk)
}

// SessionCalculator derives session keys.
type SessionCalculator struct {
	base
}

// NewSessionCalculator builds the session key calculator over engine e.
func NewSessionCalculator(e *blockcipher.Engine) *SessionCalculator {
	c := &SessionCalculator{base{
		id:          "session",
		description: "EMV session key derivation, common session key and tree schemes",
		engine:      e,
	}}
	c.ops = map[string]operation{
		"SESSION": {
			description: "Derive a session key from a card master key",
			params: []Param{
				hexParam("master_key", "card master key", 16, 16),
				optional(hexParam("atc", "application transaction counter, required for AC keys and the tree scheme", 2, 4)),
				optional(hexParam("cryptogram", "application cryptogram, seeds SM keys", 8, 8)),
				option("scheme", "derivation scheme", "flat", "flat", "tree"),
				option("key_type", "diversification seed", "AC", "AC", "SM"),
				{
					Name: "branch_factor", Type: TypeInteger, Description: "tree branch factor",
					Option: true, Min: int64p(2), Max: int64p(0xFFFF), Default: "2",
				},
				{
					Name: "height", Type: TypeInteger, Description: "tree height",
					Option: true, Min: int64p(1), Max: int64p(32), Default: "16",
				},
				optional(hexParam("iv", "tree IV, zero when omitted", 16, 16)),
				{
					Name: "key_length", Type: TypeInteger, Description: "session key length in bytes",
					Option: true, Allowed: []string{"8", "16"}, Default: "16",
				},
				parityOption(),
			},
			run: c.session,
		},
	}

	return c
}

func (c *SessionCalculator) session(_ context.Context, v Values) (map[string]string, error) {
	scheme, err := emv.ParseScheme(v.String("scheme"))
	if err != nil {
		return nil, err
	}
	keyType, err := emv.ParseKeyType(v.String("key_type"))
	if err != nil {
		return nil, err
	}

	// SM keys of the flat scheme are seeded by the cryptogram alone.
	if _, ok := v["atc"]; !ok && (keyType == emv.KeyTypeAC || scheme == emv.SchemeTree) {
		return nil, fmt.Errorf("%w: atc is required for %s keys of the %s scheme",
			errorcodes.ErrValidationFailed, keyType, scheme)
	}

	var atc uint32
	for _, b := range v.Hex("atc") {
		atc = atc<<8 | uint32(b)
	}

	sk, err := emv.DeriveSessionKey(c.engine, emv.SessionKeyParams{
		MasterKey:    v.Hex("master_key"),
		Scheme:       scheme,
		KeyType:      keyType,
		ATC:          atc,
		Cryptogram:   v.Hex("cryptogram"),
		BranchFactor: v.Int("branch_factor"),
		Height:       v.Int("height"),
		IV:           v.Hex("iv"),
		KeyLength:    v.Int("key_length"),
		Parity:       parity(v),
	})
	if err != nil {
		return nil, err
	}

	return c.withKCV(map[string]string{"session_key": hexOut(sk)}, "kcv", sk)
}

// CryptogramCalculator generates and verifies application cryptograms.
type CryptogramCalculator struct {
	base
}

// NewCryptogramCalculator builds the cryptogram calculator over engine e.
func NewCryptogramCalculator(e *blockcipher.Engine) *CryptogramCalculator {
	c := &CryptogramCalculator{base{
		id:          "cryptogram",
		description: "EMV application cryptogram and ARPC generation",
		engine:      e,
	}}

	acParams := []Param{
		hexParam("session_key", "AC session key", 16, 16),
		hexParam("terminal_data", "terminal BER-TLV data", 1, 0),
		hexParam("icc_data", "card BER-TLV data", 1, 0),
		option("type", "cryptogram type", "ARQC", "ARQC", "TC", "AAC"),
		option("algorithm", "MAC algorithm over the data block", "default", "default", "retail"),
		optional(hexParam("iv", "CBC IV for the default algorithm", 8, 8)),
	}
	c.ops = map[string]operation{
		"GENERATE": {
			description: "Generate an application cryptogram",
			params:      acParams,
			run:         c.generate,
		},
		"VERIFY": {
			description: "Verify an application cryptogram",
			params:      append(cloneParams(acParams), hexParam("cryptogram", "cryptogram to verify", 8, 8)),
			run:         c.verify,
		},
		"ARPC": {
			description: "Generate the authorisation response cryptogram",
			params: []Param{
				hexParam("session_key", "AC session key", 16, 16),
				hexParam("arqc", "authorisation request cryptogram", 8, 8),
				{
					Name: "method", Type: TypeInteger, Description: "ARPC method",
					Option: true, Allowed: []string{"1", "2"}, Default: "1",
				},
				optional(hexParam("arc", "authorisation response code, method 1", 2, 2)),
				optional(hexParam("csu", "card status update, method 2", 4, 4)),
				optional(hexParam("proprietary_data", "proprietary authentication data, method 2", 1, 8)),
			},
			run: c.arpc,
		},
	}

	return c
}

func cloneParams(p []Param) []Param {
	out := make([]Param, len(p), len(p)+1)
	copy(out, p)

	return out
}

type acRequest struct {
	key           []byte
	terminal, icc emv.TagList
	typ           emv.CryptogramType
	opts          emv.ACOptions
}

func parseACRequest(v Values) (acRequest, error) {
	terminal, err := emv.ParseTLV(v.Hex("terminal_data"))
	if err != nil {
		return acRequest{}, err
	}
	icc, err := emv.ParseTLV(v.Hex("icc_data"))
	if err != nil {
		return acRequest{}, err
	}
	typ, err := emv.ParseCryptogramType(v.String("type"))
	if err != nil {
		return acRequest{}, err
	}
	alg, err := emv.ParseMACAlgorithm(v.String("algorithm"))
	if err != nil {
		return acRequest{}, err
	}

	return acRequest{
		key:      v.Hex("session_key"),
		terminal: terminal,
		icc:      icc,
		typ:      typ,
		opts:     emv.ACOptions{Algorithm: alg, IV: v.Hex("iv")},
	}, nil
}

func (c *CryptogramCalculator) generate(_ context.Context, v Values) (map[string]string, error) {
	req, err := parseACRequest(v)
	if err != nil {
		return nil, err
	}
	ac, err := emv.GenerateAC(c.engine, req.key, req.terminal, req.icc, req.typ, req.opts)
	if err != nil {
		return nil, err
	}
	data, err := emv.BuildACData(req.terminal, req.icc)
	if err != nil {
		return nil, err
	}

	return map[string]string{
		"cryptogram": hexOut(ac),
		"type":       req.typ.String(),
		"data":       hexOut(data),
	}, nil
}

func (c *CryptogramCalculator) verify(_ context.Context, v Values) (map[string]string, error) {
	req, err := parseACRequest(v)
	if err != nil {
		return nil, err
	}
	ok, err := emv.VerifyAC(c.engine, req.key, req.terminal, req.icc, req.typ, req.opts, v.Hex("cryptogram"))
	if err != nil {
		return nil, err
	}

	return map[string]string{"valid": strconv.FormatBool(ok), "type": req.typ.String()}, nil
}

func (c *CryptogramCalculator) arpc(_ context.Context, v Values) (map[string]string, error) {
	p := emv.ARPCParams{
		Method:       emv.ARPCMethod(v.Int("method")),
		ARC:          v.Hex("arc"),
		CSU:          v.Hex("csu"),
		PropAuthData: v.Hex("proprietary_data"),
	}
	arpc, err := emv.GenerateARPC(c.engine, v.Hex("session_key"), v.Hex("arqc"), p)
	if err != nil {
		return nil, err
	}

	return map[string]string{
		"arpc":             hexOut(arpc),
		"issuer_auth_data": hexOut(emv.IssuerAuthData(arpc, p)),
	}, nil
}
