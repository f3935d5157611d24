// Package engine builds the block cipher engine selected by configuration.
package engine

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/andrei-cloud/emv_studio/internal/config"
	"github.com/andrei-cloud/emv_studio/pkg/blockcipher"
)

// Providers accepted in engine.provider.
const (
	ProviderLibrary  = "library"
	ProviderSoftware = "software"
	ProviderPKCS11   = "pkcs11"
)

// Options select the primary cipher path.
type Options struct {
	Provider string
	Library  string
	Slot     uint
	Pin      string
}

// FromConfig reads the engine section of cfg.
func FromConfig(cfg *config.Config) Options {
	return Options{
		Provider: cfg.Engine.Provider,
		Library:  cfg.Engine.PKCS11.Library,
		Slot:     cfg.Engine.PKCS11.Slot,
		Pin:      cfg.Engine.PKCS11.Pin,
	}
}

// Build returns the engine for opts and a function releasing its resources.
// The standard library path is always the fallback of a token path.
func Build(opts Options) (*blockcipher.Engine, func(), error) {
	provider := strings.ToLower(strings.TrimSpace(opts.Provider))

	var e *blockcipher.Engine
	release := func() {}
	switch provider {
	case "", ProviderLibrary:
		e = blockcipher.Default()
	case ProviderSoftware:
		e = blockcipher.New(blockcipher.SoftwarePath{}, blockcipher.LibraryPath{})
	case ProviderPKCS11:
		var err error
		e, release, err = buildPKCS11(opts)
		if err != nil {
			return nil, nil, err
		}
	default:
		return nil, nil, fmt.Errorf("unknown engine provider %q", opts.Provider)
	}

	log.Debug().
		Str("event", "engine_build").
		Str("primary", e.Primary.Name()).
		Str("fallback", e.Fallback.Name()).
		Msg("cipher engine ready")

	return e, release, nil
}
