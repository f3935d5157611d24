package calculator

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/exp/maps"
	"golang.org/x/sync/errgroup"

	"github.com/andrei-cloud/emv_studio/internal/errorcodes"
	"github.com/andrei-cloud/emv_studio/pkg/blockcipher"
)

// DefaultMaxConcurrency bounds ExecuteBatch when the registry is built with a
// non-positive limit.
const DefaultMaxConcurrency = 8

// Registry manages the calculator set and runs requests against it.
type Registry struct {
	calculators    map[string]Calculator
	mu             sync.RWMutex
	maxConcurrency int
}

// NewRegistry creates an empty registry.
func NewRegistry(maxConcurrency int) *Registry {
	if maxConcurrency <= 0 {
		maxConcurrency = DefaultMaxConcurrency
	}

	return &Registry{
		calculators:    make(map[string]Calculator),
		maxConcurrency: maxConcurrency,
	}
}

// NewDefaultRegistry registers every built-in calculator over engine e.
func NewDefaultRegistry(e *blockcipher.Engine, maxConcurrency int) *Registry {
	if e == nil {
		e = blockcipher.Default()
	}

	r := NewRegistry(maxConcurrency)
	r.Register(NewCipherCalculator(e))
	r.Register(NewKeysCalculator(e))
	r.Register(NewMACCalculator(e))
	r.Register(NewUDKCalculator(e))
	r.Register(NewSessionCalculator(e))
	r.Register(NewCryptogramCalculator(e))

	return r
}

// Register adds or replaces a calculator under its ID.
func (r *Registry) Register(c Calculator) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.calculators[c.ID()] = c
}

// Get retrieves a calculator by ID, case-insensitively.
func (r *Registry) Get(id string) (Calculator, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.calculators[strings.ToLower(strings.TrimSpace(id))]

	return c, ok
}

// List returns all registered calculators ordered by ID.
func (r *Registry) List() []Calculator {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := maps.Keys(r.calculators)
	slices.Sort(ids)

	result := make([]Calculator, 0, len(ids))
	for _, id := range ids {
		result = append(result, r.calculators[id])
	}

	return result
}

// MaxConcurrency returns the batch concurrency limit.
func (r *Registry) MaxConcurrency() int {
	return r.maxConcurrency
}

// Execute validates and runs in. Failures, including panics inside a
// calculator, are reported in the Result and never returned or propagated.
func (r *Registry) Execute(ctx context.Context, in Input) (res Result) {
	in.Calculator = strings.ToLower(strings.TrimSpace(in.Calculator))
	in.Operation = strings.ToUpper(strings.TrimSpace(in.Operation))

	res = Result{
		ID:         uuid.New(),
		Calculator: in.Calculator,
		Operation:  in.Operation,
		StartedAt:  time.Now(),
	}
	logger := log.With().
		Str("event", "calculator_execute").
		Str("request_id", res.ID.String()).
		Str("calculator", in.Calculator).
		Str("operation", in.Operation).
		Logger()

	defer func() {
		if rec := recover(); rec != nil {
			res.fail(fmt.Errorf("%w: panic: %v", errorcodes.ErrCipherFailure, rec))
		}
		res.Duration = time.Since(res.StartedAt)

		ev := logger.Debug()
		if !res.Success {
			ev = logger.Info().Str("code", res.Code).Str("error", res.Error)
		}
		ev.Bool("success", res.Success).Dur("duration", res.Duration).Msg("calculator finished")
	}()

	if err := ctx.Err(); err != nil {
		res.fail(fmt.Errorf("%w: %w", errorcodes.ErrCipherFailure, err))
		return res
	}

	c, ok := r.Get(in.Calculator)
	if !ok {
		res.fail(fmt.Errorf("%w: unknown calculator %q", errorcodes.ErrUnsupportedOperation, in.Calculator))
		return res
	}
	if err := c.Validate(in); err != nil {
		res.fail(err)
		return res
	}

	data, err := c.Execute(ctx, in)
	if err != nil {
		res.fail(err)
		return res
	}
	res.Success = true
	res.Data = data

	return res
}

// ExecuteAsync runs in on its own goroutine. The channel yields exactly one
// Result and is then closed.
func (r *Registry) ExecuteAsync(ctx context.Context, in Input) <-chan Result {
	ch := make(chan Result, 1)
	go func() {
		defer close(ch)
		ch <- r.Execute(ctx, in)
	}()

	return ch
}

// ExecuteBatch runs inputs with at most MaxConcurrency in flight. Results keep
// the input order. Inputs not started before ctx is done fail with the
// context error.
func (r *Registry) ExecuteBatch(ctx context.Context, inputs []Input) []Result {
	results := make([]Result, len(inputs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.maxConcurrency)
	for i, in := range inputs {
		g.Go(func() error {
			results[i] = r.Execute(gctx, in)
			return nil
		})
	}
	_ = g.Wait()

	log.Debug().
		Str("event", "calculator_batch").
		Int("inputs", len(inputs)).
		Int("limit", r.maxConcurrency).
		Msg("batch finished")

	return results
}

func (res *Result) fail(err error) {
	res.Success = false
	res.Data = nil
	res.Error = err.Error()
	res.Code = errorcodes.CodeOf(err)
}
