package calculator

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/andrei-cloud/emv_studio/pkg/blockcipher"
	"github.com/andrei-cloud/emv_studio/pkg/cryptoutils"
	"github.com/andrei-cloud/emv_studio/pkg/keyutil"
)

const maxComponents = 9

// KeysCalculator generates, checks and splits DES keys.
type KeysCalculator struct {
	base
}

// NewKeysCalculator builds the key utilities calculator over engine e.
func NewKeysCalculator(e *blockcipher.Engine) *KeysCalculator {
	c := &KeysCalculator{base{
		id:          "keys",
		description: "DES key generation, check values, parity and components",
		engine:      e,
	}}

	key := keyParam("key")
	c.ops = map[string]operation{
		"GENERATE_KEY": {
			description: "Generate a random non-weak key with the requested parity",
			params: []Param{
				{
					Name: "length", Type: TypeInteger, Description: "key length in bytes",
					Allowed: []string{"8", "16", "24"}, Default: "16",
				},
				parityOption(),
			},
			run: c.generate,
		},
		"KCV": {
			description: "Key check value",
			params: []Param{
				key,
				option("variant", "standard returns 3 bytes, visa returns 4", "standard", "standard", "visa"),
			},
			run: c.kcv,
		},
		"ADJUST_PARITY": {
			description: "Force the parity bit of every key byte",
			params:      []Param{key, parityOption()},
			run:         c.adjustParity,
		},
		"VALIDATE_KEY": {
			description: "Report parity, weakness and check value of a key",
			params:      []Param{key, parityOption()},
			run:         c.validateKey,
		},
		"COMBINE": {
			description: "XOR key components into a key",
			params: []Param{{
				Name:        "components",
				Type:        TypeString,
				Description: "comma separated hex components",
				Required:    true,
				Pattern:     `^[0-9A-Fa-f]+(\s*,\s*[0-9A-Fa-f]+)+$`,
			}},
			run: c.combine,
		},
		"SPLIT": {
			description: "Split a key into random XOR components",
			params: []Param{
				key,
				{
					Name: "count", Type: TypeInteger, Description: "number of components",
					Min: int64p(2), Max: int64p(maxComponents), Default: "2",
				},
			},
			run: c.split,
		},
	}

	return c
}

func (c *KeysCalculator) generate(_ context.Context, v Values) (map[string]string, error) {
	key, err := keyutil.GenerateKey(v.Int("length"), parity(v))
	if err != nil {
		return nil, err
	}

	return c.withKCV(map[string]string{"key": hexOut(key)}, "kcv", key)
}

func (c *KeysCalculator) kcv(_ context.Context, v Values) (map[string]string, error) {
	variant := keyutil.KCVStandard
	if strings.EqualFold(v.String("variant"), "visa") {
		variant = keyutil.KCVVisa
	}
	kcv, err := keyutil.KCV(c.engine, v.Hex("key"), variant)
	if err != nil {
		return nil, err
	}

	return map[string]string{"kcv": hexOut(kcv)}, nil
}

func (c *KeysCalculator) adjustParity(_ context.Context, v Values) (map[string]string, error) {
	key := keyutil.AdjustParity(v.Hex("key"), parity(v))

	return c.withKCV(map[string]string{"key": hexOut(key)}, "kcv", key)
}

func (c *KeysCalculator) validateKey(_ context.Context, v Values) (map[string]string, error) {
	key := v.Hex("key")
	p := parity(v)

	return c.withKCV(map[string]string{
		"length":       strconv.Itoa(len(key)),
		"parity":       p.String(),
		"parity_valid": strconv.FormatBool(keyutil.HasValidParity(key, p)),
		"weak":         strconv.FormatBool(keyutil.IsWeakKey(key)),
	}, "kcv", key)
}

func (c *KeysCalculator) combine(_ context.Context, v Values) (map[string]string, error) {
	fields := strings.Split(v.String("components"), ",")
	parts := make([][]byte, 0, len(fields))
	for _, f := range fields {
		b, err := cryptoutils.Str2Raw(f)
		if err != nil {
			return nil, err
		}
		parts = append(parts, b)
	}

	key, err := keyutil.CombineComponents(parts)
	if err != nil {
		return nil, err
	}

	return c.withKCV(map[string]string{"key": hexOut(key)}, "kcv", key)
}

func (c *KeysCalculator) split(_ context.Context, v Values) (map[string]string, error) {
	key := v.Hex("key")
	parts, err := keyutil.SplitKey(key, v.Int("count"))
	if err != nil {
		return nil, err
	}

	out := make(map[string]string, len(parts)+1)
	for i, p := range parts {
		out[fmt.Sprintf("component_%d", i+1)] = hexOut(p)
	}

	return c.withKCV(out, "kcv", key)
}
