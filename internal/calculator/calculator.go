// Package calculator exposes the engine operations as a closed set of named
// calculators, each with a typed parameter schema, behind a registry that
// validates, executes and times every request.
package calculator

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Calculator is one family of engine operations.
type Calculator interface {
	ID() string
	Description() string
	// Capabilities lists the operation names, sorted.
	Capabilities() []string
	Schema(op string) (Schema, bool)
	Validate(in Input) error
	Execute(ctx context.Context, in Input) (map[string]string, error)
}

// Input is a single calculator request. Params carry data and keys, Options
// carry processing choices such as mode or padding.
type Input struct {
	Calculator string            `json:"calculator" yaml:"calculator"`
	Operation  string            `json:"operation" yaml:"operation"`
	Params     map[string]string `json:"params,omitempty" yaml:"params,omitempty"`
	Options    map[string]string `json:"options,omitempty" yaml:"options,omitempty"`
}

// Result is the outcome of one executed Input. Data values are uppercase hex
// unless the schema says otherwise.
type Result struct {
	ID         uuid.UUID         `json:"id" yaml:"id"`
	Calculator string            `json:"calculator" yaml:"calculator"`
	Operation  string            `json:"operation" yaml:"operation"`
	Success    bool              `json:"success" yaml:"success"`
	Data       map[string]string `json:"data,omitempty" yaml:"data,omitempty"`
	Error      string            `json:"error,omitempty" yaml:"error,omitempty"`
	Code       string            `json:"code,omitempty" yaml:"code,omitempty"`
	StartedAt  time.Time         `json:"started_at" yaml:"started_at"`
	Duration   time.Duration     `json:"duration" yaml:"duration"`
}
