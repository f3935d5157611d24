// Package calc provides generic calculator commands.
package calc

import (
	"errors"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/andrei-cloud/emv_studio/internal/calculator"
	"github.com/andrei-cloud/emv_studio/internal/cli"
)

// NewCalcCommand creates the calc command group.
func NewCalcCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "calc",
		Short: "List, describe and run calculators",
		Long: `Generic access to the calculator registry. Every engine operation is reachable
through "calc run", locally or on a server started with "emvstudio serve".`,
		Example: `  # List calculators and their operations
  emvstudio calc list

  # Parameter schema of one calculator as YAML
  emvstudio calc schema udk --format yaml

  # Run one operation
  emvstudio calc run keys KCV --param key=0123456789ABCDEFFEDCBA9876543210

  # Run a batch file against a server
  emvstudio calc run --file batch.yaml --remote localhost:1600`,
	}

	// Add subcommands.
	cmd.AddCommand(newListCommand())
	cmd.AddCommand(newSchemaCommand())
	cmd.AddCommand(newRunCommand())

	return cmd
}

func newListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List calculators and their operations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 3, ' ', 0)
			defer w.Flush()

			fmt.Fprintln(w, "Calculator\tOperations\tDescription")
			fmt.Fprintln(w, "----------\t----------\t-----------")
			for _, c := range cli.Schemas().List() {
				for i, op := range c.Capabilities() {
					if i == 0 {
						fmt.Fprintf(w, "%s\t%s\t%s\n", c.ID(), op, c.Description())
						continue
					}
					fmt.Fprintf(w, "\t%s\t\n", op)
				}
			}

			return nil
		},
	}
}

func newSchemaCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schema [calculator] [operation]",
		Short: "Print parameter schemas",
		Long: `Print the parameter schemas of every calculator, of one calculator or of one
operation as JSON or YAML.`,
		Args: cobra.MaximumNArgs(2),
		RunE: runSchema,
	}

	cmd.Flags().String("format", cli.FormatJSON, "schema format (json, yaml)")

	return cmd
}

func runSchema(cmd *cobra.Command, args []string) error {
	format, _ := cmd.Flags().GetString("format")

	calcs := cli.Schemas().List()
	if len(args) > 0 {
		c, ok := cli.Schemas().Get(args[0])
		if !ok {
			return fmt.Errorf("unknown calculator %q", args[0])
		}
		calcs = []calculator.Calculator{c}
	}

	var schemas []calculator.Schema
	for _, c := range calcs {
		ops := c.Capabilities()
		if len(args) > 1 {
			ops = []string{args[1]}
		}
		for _, op := range ops {
			s, ok := c.Schema(op)
			if !ok {
				return fmt.Errorf("calculator %s has no operation %q", c.ID(), op)
			}
			schemas = append(schemas, s)
		}
	}

	return cli.Encode(cmd.OutOrStdout(), format, schemas)
}

func newRunCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run [calculator operation]",
		Short: "Run a calculator operation or a batch file",
		Long: `Run one calculator operation given as arguments with --param and --option
values, or every request of a JSON or YAML file. A file holds one request object
or a list of requests run as a batch.`,
		Args: func(cmd *cobra.Command, args []string) error {
			file, _ := cmd.Flags().GetString("file")
			if file != "" {
				return cobra.NoArgs(cmd, args)
			}

			return cobra.ExactArgs(2)(cmd, args)
		},
		RunE: runRun,
	}

	cmd.Flags().String("file", "", `request file, "-" reads stdin`)
	cmd.Flags().StringToString("param", nil, "parameter as name=value, repeatable")
	cmd.Flags().StringToString("option", nil, "option as name=value, repeatable")

	return cmd
}

func runRun(cmd *cobra.Command, args []string) error {
	file, _ := cmd.Flags().GetString("file")
	format, _ := cmd.Flags().GetString(cli.FlagOutput)
	remote, _ := cmd.Flags().GetString(cli.FlagRemote)

	if file == "" {
		params, _ := cmd.Flags().GetStringToString("param")
		options, _ := cmd.Flags().GetStringToString("option")

		return cli.Run(cmd, calculator.Input{
			Calculator: args[0],
			Operation:  args[1],
			Params:     params,
			Options:    options,
		})
	}

	inputs, batch, err := readInputs(cmd.InOrStdin(), file)
	if err != nil {
		return err
	}

	if !batch {
		return cli.Run(cmd, inputs[0])
	}

	results, err := cli.ExecuteBatch(cmd.Context(), remote, inputs)
	if err != nil {
		return err
	}

	return cli.PrintResults(cmd.OutOrStdout(), format, results)
}

// readInputs decodes a request file. batch is true when the file holds a list.
func readInputs(stdin io.Reader, file string) ([]calculator.Input, bool, error) {
	var (
		raw []byte
		err error
	)
	if file == "-" {
		raw, err = io.ReadAll(stdin)
	} else {
		raw, err = os.ReadFile(file)
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read requests: %w", err)
	}

	var doc yaml.Node
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, false, fmt.Errorf("failed to parse requests: %w", err)
	}
	if len(doc.Content) == 0 {
		return nil, false, errors.New("request file is empty")
	}

	root := doc.Content[0]
	if root.Kind == yaml.SequenceNode {
		var inputs []calculator.Input
		if err := root.Decode(&inputs); err != nil {
			return nil, false, fmt.Errorf("failed to decode requests: %w", err)
		}
		if len(inputs) == 0 {
			return nil, false, errors.New("request file holds no requests")
		}

		return inputs, true, nil
	}

	var in calculator.Input
	if err := root.Decode(&in); err != nil {
		return nil, false, fmt.Errorf("failed to decode request: %w", err)
	}

	return []calculator.Input{in}, false, nil
}
