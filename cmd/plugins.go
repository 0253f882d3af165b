package cmd

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"firestige.xyz/tcpedit/internal/tcpedit"
	"firestige.xyz/tcpedit/pkg/dlt"
)

var pluginsFormat string

var pluginsCmd = &cobra.Command{
	Use:   "plugins",
	Short: "List the datalink plugins",
	Long: `List every compiled-in datalink plugin with its DLT, address type and the
fields it requires as an encoder and provides as a decoder.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runPlugins(cmd.OutOrStdout(), pluginsFormat)
	},
}

func init() {
	pluginsCmd.Flags().StringVarP(&pluginsFormat, "output", "o", "table", "output format: table/yaml")
}

// pluginInfo is the listing form of a descriptor.
type pluginInfo struct {
	DLT         int      `yaml:"dlt"`
	Name        string   `yaml:"name"`
	Description string   `yaml:"description"`
	AddrType    string   `yaml:"addr_type"`
	Requires    []string `yaml:"requires"`
	Provides    []string `yaml:"provides"`
}

func describe(d *dlt.Descriptor) pluginInfo {
	return pluginInfo{
		DLT:         int(d.DLT),
		Name:        d.Name,
		Description: d.Description,
		AddrType:    d.AddrType.String(),
		Requires:    d.Requires.Names(),
		Provides:    d.Provides.Names(),
	}
}

func runPlugins(out io.Writer, format string) error {
	reg, err := tcpedit.NewBuiltinRegistry()
	if err != nil {
		return err
	}

	switch format {
	case "yaml":
		infos := make([]pluginInfo, 0, reg.Len())
		for _, d := range reg.List() {
			infos = append(infos, describe(d))
		}
		enc := yaml.NewEncoder(out)
		enc.SetIndent(2)
		if err := enc.Encode(infos); err != nil {
			return fmt.Errorf("failed to encode plugin list: %w", err)
		}
		return enc.Close()

	case "table", "":
		tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "DLT\tNAME\tADDR\tREQUIRES\tPROVIDES\tDESCRIPTION")
		for _, d := range reg.List() {
			fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\n",
				int(d.DLT), d.Name, d.AddrType, d.Requires, d.Provides, d.Description)
		}
		return tw.Flush()

	default:
		return fmt.Errorf("invalid output format %q (must be table/yaml)", format)
	}
}
