package calculator

import (
	"context"
	"strings"

	"github.com/andrei-cloud/emv_studio/pkg/blockcipher"
	"github.com/andrei-cloud/emv_studio/pkg/cryptoutils"
	"github.com/andrei-cloud/emv_studio/pkg/pinblock"
)

// MACCalculator computes MACs and handles PIN blocks and working keys.
type MACCalculator struct {
	base
}

// NewMACCalculator builds the payment primitives calculator over engine e.
func NewMACCalculator(e *blockcipher.Engine) *MACCalculator {
	c := &MACCalculator{base{
		id:          "mac",
		description: "MACs, PIN blocks and working key derivation",
		engine:      e,
	}}

	data := hexParam("data", "message data", 0, 0)
	pinFormat := option("format", "ISO 9564-1 PIN block format", "0", "0", "1", "2", "3")
	pan := Param{
		Name: "pan", Type: TypeString, Description: "account number, formats 0 and 3",
		Pattern: `^\d{13,19}$`,
	}
	c.ops = map[string]operation{
		"MAC": {
			description: "PKCS#7 padded CBC MAC, last block",
			params: []Param{
				keyParam("key"),
				data,
				optional(hexParam("iv", "CBC IV, zero when omitted", 8, 8)),
			},
			run: c.mac,
		},
		"RETAIL_MAC": {
			description: "ANSI X9.19 retail MAC over PKCS#7 padded data",
			params:      []Param{hexParam("key", "double length key", 16, 16), data},
			run:         c.retail,
		},
		"ISO9797_MAC": {
			description: "ISO/IEC 9797-1 MAC algorithm 1 or 3",
			params: []Param{
				hexParam("key", "single or double length key", 8, 16),
				data,
				{
					Name: "algorithm", Type: TypeInteger, Description: "MAC algorithm",
					Option: true, Allowed: []string{"1", "3"}, Default: "3",
				},
				option("padding", "padding applied before the MAC", "method2", "method1", "method2", "none"),
				{
					Name: "size", Type: TypeInteger, Description: "MAC length in bytes",
					Min: int64p(4), Max: int64p(8), Default: "8",
				},
			},
			run: c.iso9797,
		},
		"CMAC": {
			description: "AES-CMAC",
			params: []Param{
				hexParam("key", "AES key of 16, 24 or 32 bytes", 16, 32),
				data,
				{
					Name: "size", Type: TypeInteger, Description: "MAC length in bytes",
					Min: int64p(4), Max: int64p(16), Default: "16",
				},
			},
			run: c.cmac,
		},
		"FORMAT_PIN": {
			description: "Build a clear PIN block",
			params: []Param{
				{Name: "pin", Type: TypeString, Description: "clear PIN", Required: true, Pattern: `^\d{4,12}$`},
				pan,
				pinFormat,
			},
			run: c.formatPIN,
		},
		"EXTRACT_PIN": {
			description: "Read the PIN from a clear PIN block",
			params:      []Param{hexParam("pin_block", "clear PIN block", 8, 8), pan, pinFormat},
			run:         c.extractPIN,
		},
		"ENCRYPT_PIN": {
			description: "Encrypt a formatted PIN block",
			params:      []Param{keyParam("key"), hexParam("pin_block", "formatted PIN block", 8, 8)},
			run:         c.encryptPIN,
		},
		"DECRYPT_PIN": {
			description: "Decrypt an encrypted PIN block",
			params:      []Param{keyParam("key"), hexParam("pin_block", "encrypted PIN block", 8, 8)},
			run:         c.decryptPIN,
		},
		"WORKING_KEY": {
			description: "Derive an 8-byte working key from a triple length master key and a KSN",
			params: []Param{
				hexParam("master_key", "triple length master key", 24, 24),
				hexParam("ksn", "key serial number", 8, 8),
			},
			run: c.workingKey,
		},
	}

	return c
}

func (c *MACCalculator) mac(_ context.Context, v Values) (map[string]string, error) {
	mac, err := cryptoutils.MAC(c.engine, v.Hex("key"), v.Hex("iv"), v.Hex("data"))
	if err != nil {
		return nil, err
	}

	return map[string]string{"mac": hexOut(mac)}, nil
}

func (c *MACCalculator) retail(_ context.Context, v Values) (map[string]string, error) {
	mac, err := cryptoutils.RetailMAC(c.engine, v.Hex("key"), v.Hex("data"))
	if err != nil {
		return nil, err
	}

	return map[string]string{"mac": hexOut(mac)}, nil
}

func (c *MACCalculator) iso9797(_ context.Context, v Values) (map[string]string, error) {
	data := v.Hex("data")
	switch strings.ToLower(v.String("padding")) {
	case "method1":
		data = cryptoutils.PadISO9797Method1(data, cryptoutils.BLOCK_SIZE)
	case "method2":
		data = cryptoutils.PadISO9797Method2(data, cryptoutils.BLOCK_SIZE)
	}

	mac, err := cryptoutils.CalculateMAC(c.engine, data, v.Hex("key"), v.Int("size"), v.Int("algorithm"))
	if err != nil {
		return nil, err
	}

	return map[string]string{"mac": hexOut(mac)}, nil
}

func (c *MACCalculator) cmac(_ context.Context, v Values) (map[string]string, error) {
	mac, err := cryptoutils.CMAC(c.engine, v.Hex("data"), v.Hex("key"), v.Int("size"))
	if err != nil {
		return nil, err
	}

	return map[string]string{"mac": hexOut(mac)}, nil
}

func (c *MACCalculator) formatPIN(_ context.Context, v Values) (map[string]string, error) {
	f, err := pinblock.ParseFormat(v.String("format"))
	if err != nil {
		return nil, err
	}
	block, err := pinblock.Encode(f, v.String("pin"), v.String("pan"))
	if err != nil {
		return nil, err
	}

	return map[string]string{"pin_block": hexOut(block)}, nil
}

func (c *MACCalculator) extractPIN(_ context.Context, v Values) (map[string]string, error) {
	f, err := pinblock.ParseFormat(v.String("format"))
	if err != nil {
		return nil, err
	}
	pin, err := pinblock.Decode(f, v.Hex("pin_block"), v.String("pan"))
	if err != nil {
		return nil, err
	}

	return map[string]string{"pin": pin}, nil
}

func (c *MACCalculator) encryptPIN(_ context.Context, v Values) (map[string]string, error) {
	out, err := cryptoutils.EncryptPINBlock(c.engine, v.Hex("key"), v.Hex("pin_block"))
	if err != nil {
		return nil, err
	}

	return map[string]string{"encrypted_pin_block": hexOut(out)}, nil
}

func (c *MACCalculator) decryptPIN(_ context.Context, v Values) (map[string]string, error) {
	out, err := cryptoutils.DecryptPINBlock(c.engine, v.Hex("key"), v.Hex("pin_block"))
	if err != nil {
		return nil, err
	}

	return map[string]string{"pin_block": hexOut(out)}, nil
}

func (c *MACCalculator) workingKey(_ context.Context, v Values) (map[string]string, error) {
	wk, err := cryptoutils.DeriveWorkingKey(c.engine, v.Hex("master_key"), v.Hex("ksn"))
	if err != nil {
		return nil, err
	}

	return map[string]string{"working_key": hexOut(wk)}, nil
}
