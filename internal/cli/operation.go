package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/andrei-cloud/emv_studio/internal/calculator"
	"github.com/andrei-cloud/emv_studio/internal/config"
	"github.com/andrei-cloud/emv_studio/internal/engine"
	"github.com/andrei-cloud/emv_studio/internal/server"
)

// Persistent flags read by every operation command.
const (
	FlagOutput = "output"
	FlagRemote = "remote"
)

const remoteTimeout = 10 * time.Second

// schemas describes the built-in calculators. Schemas do not depend on the
// engine, so commands are built before configuration is loaded.
var schemas = calculator.NewDefaultRegistry(nil, 1)

// Schemas returns the registry used for command construction and schema listing.
func Schemas() *calculator.Registry {
	return schemas
}

// LocalRegistry builds a registry over the configured engine. The returned
// function releases the engine.
func LocalRegistry() (*calculator.Registry, func(), error) {
	cfg := config.Get()
	e, release, err := engine.Build(engine.FromConfig(cfg))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to build cipher engine: %w", err)
	}

	return calculator.NewDefaultRegistry(e, cfg.Calculator.MaxConcurrency), release, nil
}

// NewOperationCommand builds a command running one calculator operation with a
// flag per schema parameter. Parameter names map to flags with dashes, so
// master_key becomes --master-key.
func NewOperationCommand(calcID, op, use, short string) *cobra.Command {
	c, ok := schemas.Get(calcID)
	if !ok {
		panic(fmt.Sprintf("unknown calculator %q", calcID))
	}
	s, ok := c.Schema(op)
	if !ok {
		panic(fmt.Sprintf("calculator %s has no operation %s", calcID, op))
	}

	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Long:  fmt.Sprintf("%s.\nRuns %s %s. Key and PIN flags accept %q to read the value from stdin.", s.Description, calcID, s.Operation, SecretPrompt),
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			in, err := InputFromFlags(cmd, s)
			if err != nil {
				return err
			}

			return Run(cmd, in)
		},
	}

	for _, p := range s.Params {
		usage := p.Description
		if len(p.Allowed) > 0 {
			usage += " (" + strings.Join(p.Allowed, ", ") + ")"
		}
		if p.Required {
			usage += " [required]"
		}
		if p.Type == calculator.TypeBoolean {
			cmd.Flags().Bool(FlagName(p.Name), p.Default == "true", usage)
			continue
		}
		cmd.Flags().String(FlagName(p.Name), p.Default, usage)
	}

	return cmd
}

// FlagName maps a parameter name to its flag.
func FlagName(param string) string {
	return strings.ReplaceAll(param, "_", "-")
}

// InputFromFlags collects the flags set on cmd into an input for schema s.
func InputFromFlags(cmd *cobra.Command, s calculator.Schema) (calculator.Input, error) {
	in := calculator.Input{
		Calculator: s.Calculator,
		Operation:  s.Operation,
		Params:     map[string]string{},
		Options:    map[string]string{},
	}

	for _, p := range s.Params {
		f := cmd.Flags().Lookup(FlagName(p.Name))
		if f == nil || !f.Changed {
			continue
		}

		value := f.Value.String()
		if value == SecretPrompt && isSecret(p.Name) {
			secret, err := ReadSecret(cmd.InOrStdin(), cmd.ErrOrStderr(), p.Name)
			if err != nil {
				return calculator.Input{}, err
			}
			value = secret
		}

		if p.Option {
			in.Options[p.Name] = value
		} else {
			in.Params[p.Name] = value
		}
	}

	return in, nil
}

// Run executes in locally or on the server named by --remote and prints the
// result in the --output format.
func Run(cmd *cobra.Command, in calculator.Input) error {
	format, _ := cmd.Flags().GetString(FlagOutput)
	remote, _ := cmd.Flags().GetString(FlagRemote)

	res, err := Execute(cmdContext(cmd), remote, in)
	if err != nil {
		return err
	}

	return PrintResult(cmd.OutOrStdout(), format, res)
}

// Execute runs one input locally or remotely.
func Execute(ctx context.Context, remote string, in calculator.Input) (calculator.Result, error) {
	if remote != "" {
		client := server.Dial(remote, remoteTimeout)
		defer client.Close()

		return client.Execute(in)
	}

	r, release, err := LocalRegistry()
	if err != nil {
		return calculator.Result{}, err
	}
	defer release()

	return r.Execute(ctx, in), nil
}

// ExecuteBatch runs inputs locally or remotely, keeping their order.
func ExecuteBatch(ctx context.Context, remote string, inputs []calculator.Input) ([]calculator.Result, error) {
	if remote != "" {
		client := server.Dial(remote, remoteTimeout)
		defer client.Close()

		return client.ExecuteBatch(inputs)
	}

	r, release, err := LocalRegistry()
	if err != nil {
		return nil, err
	}
	defer release()

	return r.ExecuteBatch(ctx, inputs), nil
}

func cmdContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}

	return context.Background()
}
