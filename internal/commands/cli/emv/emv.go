// Package emv provides EMV key derivation and cryptogram commands.
package emv

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/andrei-cloud/emv_studio/internal/cli"
	"github.com/andrei-cloud/emv_studio/internal/config"
	"github.com/andrei-cloud/emv_studio/internal/engine"
	"github.com/andrei-cloud/emv_studio/internal/isobridge"
	"github.com/andrei-cloud/emv_studio/pkg/cryptoutils"
	"github.com/andrei-cloud/emv_studio/pkg/emv"
)

// NewEMVCommand creates the emv command group.
func NewEMVCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "emv",
		Short: "EMV card keys, session keys and cryptograms",
		Long: `EMV issuer operations: card key (UDK) derivation, session key derivation,
application cryptogram generation and verification, ARPC generation and
authorisation of packed ISO 8583 requests.`,
		Example: `  # Card key, option A
  emvstudio emv udk --master-key 0123456789ABCDEF0123456789ABCDEF --pan 4111111111111111 --psn 01

  # Common session key for ATC 001C
  emvstudio emv session --master-key <udk> --atc 001C

  # Answer a packed 0100 read from a file
  emvstudio emv authorize --master-key - --message-file request.iso`,
	}

	// Add subcommands.
	cmd.AddCommand(cli.NewOperationCommand("udk", "DERIVE", "udk", "Derive a card key"))
	cmd.AddCommand(cli.NewOperationCommand("session", "SESSION", "session", "Derive a session key"))
	cmd.AddCommand(cli.NewOperationCommand("cryptogram", "GENERATE", "ac", "Generate an application cryptogram"))
	cmd.AddCommand(cli.NewOperationCommand("cryptogram", "VERIFY", "verify", "Verify an application cryptogram"))
	cmd.AddCommand(cli.NewOperationCommand("cryptogram", "ARPC", "arpc", "Generate an ARPC"))
	cmd.AddCommand(newAuthorizeCommand())

	return cmd
}

func newAuthorizeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "authorize",
		Short: "Answer a packed ISO 8583 authorisation request",
		Long: `Unpack an ISO 8583 (1987, ASCII) authorisation request, derive the card and
session keys from the issuer master key, verify the ARQC carried in field 55 and
print the packed response. Field 39 is 00 when the ARQC verifies, 05 when it does
not and 30 when card data is missing. Field 55 of the response carries the ARPC in
tag 91.`,
		Args: cobra.NoArgs,
		RunE: runAuthorize,
	}

	// Add flags.
	cmd.Flags().String("master-key", "", `issuer AC master key, "-" reads it from stdin`)
	cmd.Flags().String("message", "", "packed request as hex")
	cmd.Flags().String("message-file", "", "file holding the packed request")
	cmd.Flags().String("derivation", "A", "card key derivation option (A, B)")
	cmd.Flags().String("algorithm", "default", "cryptogram MAC algorithm (default, retail)")

	if err := cmd.MarkFlagRequired("master-key"); err != nil {
		panic(err)
	}
	cmd.MarkFlagsMutuallyExclusive("message", "message-file")
	cmd.MarkFlagsOneRequired("message", "message-file")

	return cmd
}

func runAuthorize(cmd *cobra.Command, _ []string) error {
	// Get command flags.
	keyHex, _ := cmd.Flags().GetString("master-key")
	msgHex, _ := cmd.Flags().GetString("message")
	msgFile, _ := cmd.Flags().GetString("message-file")
	derivation, _ := cmd.Flags().GetString("derivation")
	algorithm, _ := cmd.Flags().GetString("algorithm")

	if keyHex == cli.SecretPrompt {
		secret, err := cli.ReadSecret(cmd.InOrStdin(), cmd.ErrOrStderr(), "master key")
		if err != nil {
			return err
		}
		keyHex = secret
	}
	masterKey, err := cryptoutils.Str2Raw(keyHex)
	if err != nil {
		return fmt.Errorf("invalid master key: %w", err)
	}

	option, err := emv.ParseOption(derivation)
	if err != nil {
		return err
	}
	alg, err := emv.ParseMACAlgorithm(algorithm)
	if err != nil {
		return err
	}

	packed, err := readMessage(msgHex, msgFile)
	if err != nil {
		return err
	}

	e, release, err := engine.Build(engine.FromConfig(config.Get()))
	if err != nil {
		return fmt.Errorf("failed to build cipher engine: %w", err)
	}
	defer release()

	issuer := isobridge.NewIssuer(e, masterKey, isobridge.WithDerivation(option), isobridge.WithMACAlgorithm(alg))
	resp, err := issuer.Authorize(cmd.Context(), packed)
	if err != nil {
		return fmt.Errorf("failed to authorize: %w", err)
	}

	// Output results.
	cmd.Printf("Response: %s\n", string(resp))
	cmd.Printf("Response Hex: %s\n", cryptoutils.Raw2Str(resp))

	return nil
}

func readMessage(msgHex, msgFile string) ([]byte, error) {
	if msgFile != "" {
		b, err := os.ReadFile(msgFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read message: %w", err)
		}

		return []byte(strings.TrimRight(string(b), "\r\n")), nil
	}

	if msgHex == "" {
		return nil, errors.New("message is empty")
	}
	b, err := cryptoutils.Str2Raw(msgHex)
	if err != nil {
		return nil, fmt.Errorf("invalid message: %w", err)
	}

	return b, nil
}
