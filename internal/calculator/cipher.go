package calculator

import (
	"context"
	"strings"

	"github.com/andrei-cloud/emv_studio/pkg/blockcipher"
	"github.com/andrei-cloud/emv_studio/pkg/keyutil"
)

// CipherCalculator runs raw block cipher operations.
type CipherCalculator struct {
	base
}

// NewCipherCalculator builds the cipher calculator over engine e.
func NewCipherCalculator(e *blockcipher.Engine) *CipherCalculator {
	c := &CipherCalculator{base{
		id:          "cipher",
		description: "Triple-DES and AES encryption in ECB, CBC, CFB and OFB",
		engine:      e,
	}}

	params := []Param{
		hexParam("key", "TDES key of 8, 16 or 24 bytes, AES key of 16, 24 or 32 bytes", 8, 32),
		hexParam("data", "input data", 1, 0),
		optional(hexParam("iv", "initialization vector, required by CBC, CFB and OFB", 8, 16)),
		option("mode", "cipher mode", "ECB", "ECB", "CBC", "CFB", "OFB"),
		option("algorithm", "block primitive", "TDES", "TDES", "AES"),
		{
			Name:        "padding",
			Type:        TypeBoolean,
			Description: "apply PKCS#7 padding on encrypt and strip it on decrypt",
			Option:      true,
			Default:     "false",
		},
	}
	c.ops = map[string]operation{
		"ENCRYPT": {description: "Encrypt data", params: params, run: c.crypt(true)},
		"DECRYPT": {description: "Decrypt data", params: params, run: c.crypt(false)},
	}

	return c
}

func (c *CipherCalculator) crypt(encrypt bool) runFunc {
	return func(_ context.Context, v Values) (map[string]string, error) {
		mode, err := blockcipher.ParseMode(v.String("mode"))
		if err != nil {
			return nil, err
		}
		e := c.engine
		if strings.EqualFold(v.String("algorithm"), blockcipher.AES.String()) {
			e = e.WithAlgorithm(blockcipher.AES)
		}
		bs := e.Algorithm.BlockSize()
		pad := v.Bool("padding")

		data := v.Hex("data")
		if encrypt && pad {
			data = keyutil.Pad(data, bs)
		}

		var out []byte
		if encrypt {
			out, err = e.Encrypt(mode, v.Hex("key"), v.Hex("iv"), data)
		} else {
			out, err = e.Decrypt(mode, v.Hex("key"), v.Hex("iv"), data)
		}
		if err != nil {
			return nil, err
		}
		if !encrypt && pad {
			if out, err = keyutil.Unpad(out, bs); err != nil {
				return nil, err
			}
		}

		return map[string]string{"result": hexOut(out)}, nil
	}
}
