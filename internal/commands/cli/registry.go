// Package cli provides centralized command registration.
package cli

import (
	"github.com/spf13/cobra"

	"github.com/andrei-cloud/emv_studio/internal/commands/cli/calc"
	"github.com/andrei-cloud/emv_studio/internal/commands/cli/cipher"
	"github.com/andrei-cloud/emv_studio/internal/commands/cli/emv"
	"github.com/andrei-cloud/emv_studio/internal/commands/cli/keys"
	"github.com/andrei-cloud/emv_studio/internal/commands/cli/mac"
	"github.com/andrei-cloud/emv_studio/internal/commands/cli/pb"
	"github.com/andrei-cloud/emv_studio/internal/commands/cli/server"
)

// RegisterCommands registers all root commands.
func RegisterCommands(root *cobra.Command) error {
	root.AddCommand(cipher.NewCipherCommand())
	root.AddCommand(keys.NewKeysCommand())
	root.AddCommand(mac.NewMACCommand())
	root.AddCommand(pb.NewPinBlockCommand())
	root.AddCommand(emv.NewEMVCommand())
	root.AddCommand(calc.NewCalcCommand())
	root.AddCommand(server.NewServeCommand())

	return nil
}
