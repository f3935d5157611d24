package calculator

import (
	"fmt"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/andrei-cloud/emv_studio/internal/errorcodes"
	"github.com/andrei-cloud/emv_studio/pkg/cryptoutils"
)

// ParamType is the wire type of a parameter value.
type ParamType string

const (
	TypeHex     ParamType = "hex"
	TypeString  ParamType = "string"
	TypeInteger ParamType = "integer"
	TypeBoolean ParamType = "boolean"
)

// Param describes one named parameter. For hex values MinLength and MaxLength
// count bytes, for strings they count characters. Min and Max bound integers
// when non-nil.
type Param struct {
	Name        string    `json:"name" yaml:"name"`
	Type        ParamType `json:"type" yaml:"type"`
	Description string    `json:"description,omitempty" yaml:"description,omitempty"`
	Required    bool      `json:"required" yaml:"required"`
	Option      bool      `json:"option,omitempty" yaml:"option,omitempty"`
	MinLength   int       `json:"min_length,omitempty" yaml:"min_length,omitempty"`
	MaxLength   int       `json:"max_length,omitempty" yaml:"max_length,omitempty"`
	Min         *int64    `json:"min,omitempty" yaml:"min,omitempty"`
	Max         *int64    `json:"max,omitempty" yaml:"max,omitempty"`
	Pattern     string    `json:"pattern,omitempty" yaml:"pattern,omitempty"`
	Allowed     []string  `json:"allowed,omitempty" yaml:"allowed,omitempty"`
	Default     string    `json:"default,omitempty" yaml:"default,omitempty"`
}

// Schema describes the parameters of one calculator operation.
type Schema struct {
	Calculator  string  `json:"calculator" yaml:"calculator"`
	Operation   string  `json:"operation" yaml:"operation"`
	Description string  `json:"description" yaml:"description"`
	Params      []Param `json:"params" yaml:"params"`
}

// Values holds validated parameter values with defaults applied.
type Values map[string]string

// Resolve checks in against the schema and returns the values to execute with.
// Every problem is reported in one ErrValidationFailed error.
func (s Schema) Resolve(in Input) (Values, error) {
	var problems []string
	values := make(Values, len(s.Params))
	known := make(map[string]bool, len(s.Params))

	for _, p := range s.Params {
		known[p.Name] = true

		raw, ok := lookup(in, p)
		if !ok || raw == "" {
			if p.Required {
				problems = append(problems, p.Name+" is required")
				continue
			}
			if p.Default == "" {
				continue
			}
			raw = p.Default
		}
		if err := p.check(raw); err != nil {
			problems = append(problems, err.Error())
			continue
		}
		values[p.Name] = raw
	}

	for name := range in.Params {
		if !known[name] {
			problems = append(problems, "unknown parameter "+name)
		}
	}
	for name := range in.Options {
		if !known[name] {
			problems = append(problems, "unknown option "+name)
		}
	}

	if len(problems) > 0 {
		slices.Sort(problems)
		return nil, fmt.Errorf("%w: %s", errorcodes.ErrValidationFailed, strings.Join(problems, "; "))
	}

	return values, nil
}

// lookup reads options from Options before Params and everything else from
// Params before Options.
func lookup(in Input, p Param) (string, bool) {
	first, second := in.Params, in.Options
	if p.Option {
		first, second = in.Options, in.Params
	}
	if v, ok := first[p.Name]; ok {
		return strings.TrimSpace(v), true
	}
	v, ok := second[p.Name]

	return strings.TrimSpace(v), ok
}

func (p Param) check(raw string) error {
	switch p.Type {
	case TypeHex:
		b, err := cryptoutils.Str2Raw(raw)
		if err != nil {
			return fmt.Errorf("%s must be hex", p.Name)
		}
		if err := p.checkLength(len(b), "bytes"); err != nil {
			return err
		}
	case TypeInteger:
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return fmt.Errorf("%s must be an integer", p.Name)
		}
		if p.Min != nil && n < *p.Min {
			return fmt.Errorf("%s must be at least %d", p.Name, *p.Min)
		}
		if p.Max != nil && n > *p.Max {
			return fmt.Errorf("%s must be at most %d", p.Name, *p.Max)
		}
	case TypeBoolean:
		if _, err := strconv.ParseBool(raw); err != nil {
			return fmt.Errorf("%s must be true or false", p.Name)
		}
	case TypeString:
		if err := p.checkLength(len(raw), "characters"); err != nil {
			return err
		}
	default:
		return fmt.Errorf("%s has unknown type %q", p.Name, p.Type)
	}

	if p.Pattern != "" {
		re, err := regexp.Compile(p.Pattern)
		if err != nil || !re.MatchString(raw) {
			return fmt.Errorf("%s does not match %s", p.Name, p.Pattern)
		}
	}
	if len(p.Allowed) > 0 && !slices.ContainsFunc(p.Allowed, func(a string) bool {
		return strings.EqualFold(a, raw)
	}) {
		return fmt.Errorf("%s must be one of %s", p.Name, strings.Join(p.Allowed, ", "))
	}

	return nil
}

func (p Param) checkLength(n int, unit string) error {
	if p.MinLength > 0 && n < p.MinLength {
		return fmt.Errorf("%s must be at least %d %s", p.Name, p.MinLength, unit)
	}
	if p.MaxLength > 0 && n > p.MaxLength {
		return fmt.Errorf("%s must be at most %d %s", p.Name, p.MaxLength, unit)
	}

	return nil
}

// Has reports whether name was supplied or defaulted.
func (v Values) Has(name string) bool {
	_, ok := v[name]

	return ok
}

// String returns the raw value of name, empty when absent.
func (v Values) String(name string) string {
	return v[name]
}

// Hex decodes name. Absent values decode to nil.
func (v Values) Hex(name string) []byte {
	raw, ok := v[name]
	if !ok {
		return nil
	}
	b, _ := cryptoutils.Str2Raw(raw)

	return b
}

// Int parses name. Absent values are zero.
func (v Values) Int(name string) int {
	n, _ := strconv.Atoi(v[name])

	return n
}

// Bool parses name. Absent values are false.
func (v Values) Bool(name string) bool {
	b, _ := strconv.ParseBool(v[name])

	return b
}

// int64p is a helper for schema literals.
func int64p(n int64) *int64 {
	return &n
}

// hexParam is a required hex parameter of exact or bounded byte length.
func hexParam(name, desc string, minLen, maxLen int) Param {
	return Param{Name: name, Type: TypeHex, Description: desc, Required: true, MinLength: minLen, MaxLength: maxLen}
}

// optional clears Required.
func optional(p Param) Param {
	p.Required = false

	return p
}

// option builds a processing option with allowed values and a default.
func option(name, desc, def string, allowed ...string) Param {
	return Param{Name: name, Type: TypeString, Description: desc, Option: true, Allowed: allowed, Default: def}
}

// keyParam is the usual 8/16/24-byte DES key parameter.
func keyParam(name string) Param {
	return hexParam(name, "DES key, 8, 16 or 24 bytes", 8, 24)
}

func parityOption() Param {
	return option("parity", "parity applied to the derived key", "odd", "odd", "even", "none")
}
