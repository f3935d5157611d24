// Package mac provides message authentication commands.
package mac

import (
	"github.com/spf13/cobra"

	"github.com/andrei-cloud/emv_studio/internal/cli"
)

// NewMACCommand creates the mac command group.
func NewMACCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mac",
		Short: "Message authentication codes",
		Long: `CBC MAC, ANSI X9.19 retail MAC, ISO/IEC 9797-1 MAC algorithms 1 and 3
and AES-CMAC over hex data.`,
		Example: `  # Retail MAC
  emvstudio mac retail --key 0123456789ABCDEFFEDCBA9876543210 --data 4E6F77206973207468652074696D6520

  # ISO 9797-1 algorithm 3, method 2 padding
  emvstudio mac iso9797 --key 0123456789ABCDEFFEDCBA9876543210 --data 01020304 --padding method2`,
	}

	// Add subcommands.
	cmd.AddCommand(cli.NewOperationCommand("mac", "MAC", "cbc", "PKCS#7 padded CBC MAC"))
	cmd.AddCommand(cli.NewOperationCommand("mac", "RETAIL_MAC", "retail", "ANSI X9.19 retail MAC"))
	cmd.AddCommand(cli.NewOperationCommand("mac", "ISO9797_MAC", "iso9797", "ISO/IEC 9797-1 MAC"))
	cmd.AddCommand(cli.NewOperationCommand("mac", "CMAC", "cmac", "AES-CMAC"))

	return cmd
}
