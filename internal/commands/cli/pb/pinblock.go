// Package pb provides PIN block related commands.
package pb

import (
	"github.com/spf13/cobra"

	"github.com/andrei-cloud/emv_studio/internal/cli"
)

// NewPinBlockCommand creates the pinblock command with subcommands.
func NewPinBlockCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pinblock",
		Short: "PIN blocks and working keys",
		Long: `Build and read ISO 9564-1 format 0 to 3 PIN blocks, encrypt and decrypt them
under a DES key and derive working keys from a triple length master key and a key
serial number.`,
		Example: `  # Format 0 PIN block
  emvstudio pinblock format --pin 1234 --pan 4111111111111111

  # Read a format 3 block
  emvstudio pinblock extract --pin-block <block> --pan 4111111111111111 --format 3

  # Encrypt a PIN block
  emvstudio pinblock encrypt --key 0123456789ABCDEFFEDCBA9876543210 --pin-block 041234FFFFFFFFFF

  # Derive a working key, entering the master key without echo
  emvstudio pinblock working-key --master-key - --ksn FFFF9876543210E0`,
	}

	// Add subcommands.
	cmd.AddCommand(cli.NewOperationCommand("mac", "FORMAT_PIN", "format", "Build a clear PIN block"))
	cmd.AddCommand(cli.NewOperationCommand("mac", "EXTRACT_PIN", "extract", "Read the PIN from a clear PIN block"))
	cmd.AddCommand(cli.NewOperationCommand("mac", "ENCRYPT_PIN", "encrypt", "Encrypt a PIN block"))
	cmd.AddCommand(cli.NewOperationCommand("mac", "DECRYPT_PIN", "decrypt", "Decrypt a PIN block"))
	cmd.AddCommand(cli.NewOperationCommand("mac", "WORKING_KEY", "working-key", "Derive a working key"))

	return cmd
}
