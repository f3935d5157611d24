// Package keys provides key management commands.
package keys

import (
	"github.com/spf13/cobra"

	"github.com/andrei-cloud/emv_studio/internal/cli"
)

// NewKeysCommand creates the keys command group.
func NewKeysCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "keys",
		Short: "Key generation, check values, parity and components",
		Long: `Key generation and inspection for single, double and triple length DES keys.
Generated keys are never weak or semi-weak. Every command prints the key check
value (KCV) of the key it produces.`,
		Example: `  # Generate a double length key with odd parity
  emvstudio keys generate --length 16

  # Key check value, Visa variant
  emvstudio keys kcv --key 0123456789ABCDEFFEDCBA9876543210 --variant visa

  # Combine components, reading them from stdin
  emvstudio keys combine --components -`,
	}

	// Add subcommands.
	cmd.AddCommand(cli.NewOperationCommand("keys", "GENERATE_KEY", "generate", "Generate a random key"))
	cmd.AddCommand(cli.NewOperationCommand("keys", "KCV", "kcv", "Calculate a key check value"))
	cmd.AddCommand(cli.NewOperationCommand("keys", "ADJUST_PARITY", "parity", "Force key parity"))
	cmd.AddCommand(cli.NewOperationCommand("keys", "VALIDATE_KEY", "check", "Report parity, weakness and KCV of a key"))
	cmd.AddCommand(cli.NewOperationCommand("keys", "COMBINE", "combine", "Combine key components"))
	cmd.AddCommand(cli.NewOperationCommand("keys", "SPLIT", "split", "Split a key into components"))

	return cmd
}
