// Package cipher provides block cipher commands.
package cipher

import (
	"github.com/spf13/cobra"

	"github.com/andrei-cloud/emv_studio/internal/cli"
)

// NewCipherCommand creates the cipher command group.
func NewCipherCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cipher",
		Short: "Encrypt and decrypt data",
		Long: `Triple-DES and AES encryption and decryption in ECB, CBC, CFB and OFB modes.
Chained modes need an IV of one block. Enable --padding to apply PKCS#7 padding
on encryption and remove it on decryption.`,
		Example: `  # TDES ECB
  emvstudio cipher encrypt --key 0123456789ABCDEFFEDCBA9876543210 --data 0000000000000000

  # TDES CBC with padding
  emvstudio cipher encrypt --key 0123456789ABCDEFFEDCBA9876543210 --data 31323334 \
    --mode CBC --iv 0000000000000000 --padding`,
	}

	// Add subcommands.
	cmd.AddCommand(cli.NewOperationCommand("cipher", "ENCRYPT", "encrypt", "Encrypt data"))
	cmd.AddCommand(cli.NewOperationCommand("cipher", "DECRYPT", "decrypt", "Decrypt data"))

	return cmd
}
