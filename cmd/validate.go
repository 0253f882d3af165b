package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"firestige.xyz/tcpedit/internal/config"
	"firestige.xyz/tcpedit/internal/tcpedit"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check that the configured decoder and encoder can be paired",
	Long: `Open and close a datalink session from the configuration without touching
any packets. Fails if a plugin is unknown, rejects its options, or the encoder
requires fields the decoder does not provide.

Examples:
  tcpedit validate -c tcpedit.yml`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		return runValidate(cfg, cmd.OutOrStdout())
	},
}

func runValidate(cfg *config.GlobalConfig, out io.Writer) error {
	if cfg.DLT.Decoder == "" {
		return fmt.Errorf("INVALID: dlt.decoder is not set")
	}
	reg, err := tcpedit.NewBuiltinRegistry()
	if err != nil {
		return err
	}
	s, err := tcpedit.Open(reg, cfg.DLT.SessionConfig())
	if err != nil {
		return fmt.Errorf("INVALID: %w", err)
	}
	fmt.Fprintf(out, "VALID: decoder %s provides %s, encoder %s requires %s, output DLT %d\n",
		s.Decoder(), s.Decoder().Provides, s.Encoder(), s.Requires(), int(s.OutDLT()))
	return s.Close()
}
