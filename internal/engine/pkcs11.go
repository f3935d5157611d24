//go:build pkcs11

package engine

import (
	"errors"
	"fmt"

	"github.com/andrei-cloud/emv_studio/pkg/blockcipher"
	"github.com/andrei-cloud/emv_studio/pkg/blockcipher/p11"
)

func buildPKCS11(opts Options) (*blockcipher.Engine, func(), error) {
	if opts.Library == "" {
		return nil, nil, errors.New("engine.pkcs11.library is required for the pkcs11 provider")
	}

	p := p11.New(opts.Library, opts.Slot, opts.Pin)
	if err := p.Open(); err != nil {
		return nil, nil, fmt.Errorf("open pkcs11 token: %w", err)
	}

	return blockcipher.New(p, blockcipher.LibraryPath{}), p.Close, nil
}
