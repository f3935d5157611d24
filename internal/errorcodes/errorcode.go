// Package errorcodes defines engine errors using a structured type.
// EngineError holds a stable code and a human-readable description.
package errorcodes

import "errors"

// Predefined engine error instances.
var (
	ErrInvalidKeyLength     = EngineError{"E01", "Key length must be 8, 16 or 24 bytes"}
	ErrInvalidIVLength      = EngineError{"E02", "IV missing, unexpected or not one block long"}
	ErrInvalidDataLength    = EngineError{"E03", "Data length is not a multiple of the block size"}
	ErrInvalidPadding       = EngineError{"E04", "Padding length outside of the block size range"}
	ErrMissingMandatoryTag  = EngineError{"E05", "Mandatory EMV tag missing from input data"}
	ErrUnsupportedOperation = EngineError{"E06", "Operation not supported by calculator"}
	ErrValidationFailed     = EngineError{"E07", "Parameter validation failed"}
	ErrWeakKey              = EngineError{"E08", "Key is weak or semi-weak"}
	ErrInvalidInput         = EngineError{"E09", "Invalid input data"}
	ErrCipherFailure        = EngineError{"E10", "Cipher provider failure"}
	ErrUnsupportedMode      = EngineError{"E11", "Unsupported cipher mode"}
)

// EngineError represents an engine error with its code and description.
type EngineError struct {
	Code        string // stable error code
	Description string // human-readable description
}

// Error implements the Go error interface: "<Code>: <Description>".
func (e EngineError) Error() string {
	return e.Code + ": " + e.Description
}

// CodeOf returns the code of the first EngineError in err's chain,
// or ErrCipherFailure's code when none is present.
func CodeOf(err error) string {
	var ee EngineError
	if errors.As(err, &ee) {
		return ee.Code
	}

	return ErrCipherFailure.Code
}
