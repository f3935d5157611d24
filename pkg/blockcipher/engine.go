package blockcipher

import (
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/andrei-cloud/emv_studio/internal/errorcodes"
)

// Engine validates requests and runs them on the primary path, retrying on the
// fallback path when the primary fails. Engine holds no mutable state and is safe
// for concurrent use.
type Engine struct {
	Algorithm Algorithm
	Primary   Path
	Fallback  Path
}

// New returns a TDES engine with the given strategy. Either path may be nil.
func New(primary, fallback Path) *Engine {
	return &Engine{Algorithm: TDES, Primary: primary, Fallback: fallback}
}

// NewWithAlgorithm returns an engine driving alg with the given strategy.
func NewWithAlgorithm(alg Algorithm, primary, fallback Path) *Engine {
	return &Engine{Algorithm: alg, Primary: primary, Fallback: fallback}
}

// Default returns a TDES engine backed by the standard library with the software
// implementation as fallback.
func Default() *Engine {
	return New(LibraryPath{}, SoftwarePath{})
}

// WithAlgorithm returns a copy of the engine driving alg on the same paths.
func (e *Engine) WithAlgorithm(alg Algorithm) *Engine {
	return &Engine{Algorithm: alg, Primary: e.Primary, Fallback: e.Fallback}
}

// Encrypt encrypts data with key in the given mode.
func (e *Engine) Encrypt(mode Mode, key, iv, data []byte) ([]byte, error) {
	return e.run(true, mode, key, iv, data)
}

// Decrypt decrypts data with key in the given mode.
func (e *Engine) Decrypt(mode Mode, key, iv, data []byte) ([]byte, error) {
	return e.run(false, mode, key, iv, data)
}

// EncryptECB is Encrypt in ECB mode.
func (e *Engine) EncryptECB(key, data []byte) ([]byte, error) {
	return e.run(true, ECB, key, nil, data)
}

// DecryptECB is Decrypt in ECB mode.
func (e *Engine) DecryptECB(key, data []byte) ([]byte, error) {
	return e.run(false, ECB, key, nil, data)
}

func (e *Engine) validate(mode Mode, key, iv, data []byte) error {
	if mode < ECB || mode > OFB {
		return errUnsupportedMode(mode)
	}

	if !e.Algorithm.validKeyLength(len(key)) {
		return fmt.Errorf("%w: %s key of %d bytes", errorcodes.ErrInvalidKeyLength, e.Algorithm, len(key))
	}

	bs := e.Algorithm.BlockSize()
	if mode.RequiresIV() && len(iv) != bs {
		return fmt.Errorf("%w: %s requires %d bytes, got %d", errorcodes.ErrInvalidIVLength, mode, bs, len(iv))
	}
	if !mode.RequiresIV() && len(iv) != 0 {
		return fmt.Errorf("%w: %s takes no IV", errorcodes.ErrInvalidIVLength, mode)
	}

	if mode.IsBlockMode() && len(data)%bs != 0 {
		return fmt.Errorf(
			"%w: %s requires a multiple of %d bytes, got %d",
			errorcodes.ErrInvalidDataLength, mode, bs, len(data),
		)
	}

	return nil
}

func (e *Engine) run(encrypt bool, mode Mode, key, iv, data []byte) ([]byte, error) {
	if err := e.validate(mode, key, iv, data); err != nil {
		return nil, err
	}

	k := key
	if e.Algorithm == TDES {
		var err error
		if k, err = ExpandKey(key); err != nil {
			return nil, err
		}
	}

	var primaryErr error
	if e.Primary != nil {
		out, err := try(e.Primary, encrypt, e.Algorithm, mode, k, iv, data)
		if err == nil {
			return out, nil
		}
		primaryErr = err
		log.Debug().
			Str("event", "cipher_fallback").
			Str("path", e.Primary.Name()).
			Str("mode", mode.String()).
			Err(err).
			Msg("primary cipher path failed")
	}

	if e.Fallback == nil {
		if primaryErr == nil {
			primaryErr = fmt.Errorf("no cipher path configured")
		}

		return nil, fmt.Errorf("%w: %w", errorcodes.ErrCipherFailure, primaryErr)
	}

	out, err := try(e.Fallback, encrypt, e.Algorithm, mode, k, iv, data)
	if err != nil {
		return nil, fmt.Errorf("%w: %s path: %w", errorcodes.ErrCipherFailure, e.Fallback.Name(), err)
	}

	return out, nil
}

// try runs one path and turns a panic into an error.
func try(p Path, encrypt bool, alg Algorithm, mode Mode, key, iv, data []byte) (out []byte, err error) {
	defer func() {
		if r := recover(); r != nil {
			out, err = nil, fmt.Errorf("%s path panicked: %v", p.Name(), r)
		}
	}()

	if encrypt {
		return p.Encrypt(alg, mode, key, iv, data)
	}

	return p.Decrypt(alg, mode, key, iv, data)
}
