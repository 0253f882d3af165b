// Package cmd implements CLI commands using cobra framework.
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"firestige.xyz/tcpedit/internal/config"
	"firestige.xyz/tcpedit/internal/log"
	_ "firestige.xyz/tcpedit/plugins/dlt/all"
)

var (
	// Global flags
	configFile string
	logLevel   string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "tcpedit",
	Short: "tcpedit - rewrite the datalink layer of captured packets",
	Long: `tcpedit decodes the link-layer header of every packet in a capture file and
re-encodes it for the same or a different datalink, e.g. replaying an Ethernet
capture as Cisco HDLC or stripping VLAN tags.

Datalinks are implemented by plugins. An encoder can only be paired with a
decoder that extracts every field it needs; run "tcpedit plugins" to list what
each plugin requires and provides.`,
	Version:       "0.1.0",
	SilenceUsage:  true,
	SilenceErrors: false,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "",
		"config file path (defaults only when empty)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "",
		"override log.level")

	rootCmd.AddCommand(rewriteCmd)
	rootCmd.AddCommand(pluginsCmd)
	rootCmd.AddCommand(validateCmd)
}

// loadConfig loads the config file, applies global flag overrides and
// initializes the logger.
func loadConfig() (*config.GlobalConfig, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
		if err := cfg.ValidateAndApplyDefaults(); err != nil {
			return nil, err
		}
	}
	if err := log.Init(&cfg.Log); err != nil {
		return nil, fmt.Errorf("failed to init logger: %w", err)
	}
	return cfg, nil
}
