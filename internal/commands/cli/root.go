// Package cli provides the CLI command structure for emvstudio.
package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/andrei-cloud/emv_studio/internal/cli"
	"github.com/andrei-cloud/emv_studio/internal/config"
	"github.com/andrei-cloud/emv_studio/internal/logging"
)

// NewRootCommand creates and returns the root command with all subcommands.
func NewRootCommand() (*cobra.Command, error) {
	var cfgFile string

	rootCmd := &cobra.Command{
		Use:   "emvstudio",
		Short: "EMV key management and block cipher engine",
		Long: `A studio for payment terminal and host testing: Triple-DES and AES block
ciphers, key check values and components, MACs, PIN blocks, EMV card and session
key derivation, application cryptograms and ARPCs.`,
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			// Initialize configuration before running any command.
			if err := config.Initialize(cfgFile); err != nil {
				return fmt.Errorf("failed to initialize configuration: %w", err)
			}

			// Bind flags to viper.
			v := config.GetViper()
			if err := v.BindPFlag("log.level", cmd.Flags().Lookup("log-level")); err != nil {
				return err
			}
			if err := v.BindPFlag("log.format", cmd.Flags().Lookup("log-format")); err != nil {
				return err
			}
			if err := config.Reload(); err != nil {
				return fmt.Errorf("failed to reload configuration: %w", err)
			}

			// Command output owns stdout, logs go to stderr.
			cfg := config.Get()
			logging.InitLoggerTo(cmd.ErrOrStderr(), cfg.Log.Level, cfg.Log.Format == "human")

			return nil
		},
	}

	// Add persistent flags that affect all commands.
	rootCmd.PersistentFlags().
		StringVar(&cfgFile, "config", "", "config file (default is $HOME/.emvstudio/config.yaml)")

	// Add global flags that can override config file settings.
	rootCmd.PersistentFlags().
		String("log-level", "info", "logging level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "human", "logging format (human, json)")
	rootCmd.PersistentFlags().
		StringP(cli.FlagOutput, "o", cli.FormatText, "result format (text, json, yaml)")
	rootCmd.PersistentFlags().
		String(cli.FlagRemote, "", "run operations on a calculator server at host:port")

	// Register all commands.
	if err := RegisterCommands(rootCmd); err != nil {
		return nil, fmt.Errorf("failed to register commands: %w", err)
	}

	return rootCmd, nil
}
