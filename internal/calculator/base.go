package calculator

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"golang.org/x/exp/maps"

	"github.com/andrei-cloud/emv_studio/internal/errorcodes"
	"github.com/andrei-cloud/emv_studio/pkg/blockcipher"
	"github.com/andrei-cloud/emv_studio/pkg/cryptoutils"
	"github.com/andrei-cloud/emv_studio/pkg/keyutil"
)

type runFunc func(ctx context.Context, v Values) (map[string]string, error)

type operation struct {
	description string
	params      []Param
	run         runFunc
}

// base implements Calculator over a table of operations.
type base struct {
	id          string
	description string
	engine      *blockcipher.Engine
	ops         map[string]operation
}

func (b *base) ID() string { return b.id }

func (b *base) Description() string { return b.description }

func (b *base) Capabilities() []string {
	names := maps.Keys(b.ops)
	slices.Sort(names)

	return names
}

func (b *base) Schema(op string) (Schema, bool) {
	name := strings.ToUpper(strings.TrimSpace(op))
	o, ok := b.ops[name]
	if !ok {
		return Schema{}, false
	}

	return Schema{
		Calculator:  b.id,
		Operation:   name,
		Description: o.description,
		Params:      slices.Clone(o.params),
	}, true
}

func (b *base) Validate(in Input) error {
	_, err := b.resolve(in)

	return err
}

func (b *base) Execute(ctx context.Context, in Input) (map[string]string, error) {
	v, err := b.resolve(in)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", errorcodes.ErrCipherFailure, err)
	}

	return b.ops[strings.ToUpper(strings.TrimSpace(in.Operation))].run(ctx, v)
}

func (b *base) resolve(in Input) (Values, error) {
	s, ok := b.Schema(in.Operation)
	if !ok {
		return nil, fmt.Errorf("%w: %s has no operation %q", errorcodes.ErrUnsupportedOperation, b.id, in.Operation)
	}

	return s.Resolve(in)
}

func hexOut(b []byte) string {
	return cryptoutils.Raw2Str(b)
}

func parity(v Values) keyutil.Parity {
	p, _ := keyutil.ParseParity(v.String("parity"))

	return p
}

// withKCV adds the standard check value of key to out under name.
func (b *base) withKCV(out map[string]string, name string, key []byte) (map[string]string, error) {
	kcv, err := keyutil.KCV(b.engine, key, keyutil.KCVStandard)
	if err != nil {
		return nil, err
	}
	out[name] = hexOut(kcv)

	return out, nil
}
