package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
	"github.com/spf13/cobra"

	"firestige.xyz/tcpedit/internal/config"
	"firestige.xyz/tcpedit/internal/log"
	"firestige.xyz/tcpedit/internal/metrics"
	"firestige.xyz/tcpedit/internal/rewrite"
	"firestige.xyz/tcpedit/internal/tcpedit"
	"firestige.xyz/tcpedit/internal/utils"
	"firestige.xyz/tcpedit/pkg/dlt"
)

type rewriteFlags struct {
	input         string
	output        string
	decoder       string
	encoder       string
	skipBroadcast bool
	forceAlign    string
	direction     string
	proto         string
	filter        string
}

var rwFlags rewriteFlags

var rewriteCmd = &cobra.Command{
	Use:   "rewrite",
	Short: "Rewrite the datalink layer of a pcap file",
	Long: `Decode every packet of the input capture with the decoder plugin and write it
out re-encoded by the encoder plugin.

Examples:
  tcpedit rewrite -i in.pcap -o out.pcap --encoder chdlc
  tcpedit rewrite -c tcpedit.yml -i in.pcap -o out.pcap --proto ipv4`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		applyRewriteFlags(cmd, cfg, rwFlags)

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return runRewrite(ctx, cfg, rwFlags, cmd.OutOrStdout())
	},
}

func init() {
	f := rewriteCmd.Flags()
	f.StringVarP(&rwFlags.input, "input", "i", "", "input pcap file (required)")
	f.StringVarP(&rwFlags.output, "output", "o", "", "output pcap file (required)")
	f.StringVar(&rwFlags.decoder, "decoder", "", "decoder plugin name or DLT (default: input file's DLT)")
	f.StringVar(&rwFlags.encoder, "encoder", "", "encoder plugin name or DLT (default: decoder)")
	f.BoolVar(&rwFlags.skipBroadcast, "skip-broadcast", false, "do not rewrite broadcast/multicast addresses")
	f.StringVar(&rwFlags.forceAlign, "force-align", "", "copy layer 3 into an aligned buffer: auto/on/off")
	f.StringVar(&rwFlags.direction, "direction", "none", "packet direction for address policies: c2s/s2c/none")
	f.StringVar(&rwFlags.proto, "proto", "", "only keep packets of this protocol: ipv4/ipv6/arp or an ethertype")
	f.StringVar(&rwFlags.filter, "filter", "", "only keep packets matching this BPF expression")
	_ = rewriteCmd.MarkFlagRequired("input")
	_ = rewriteCmd.MarkFlagRequired("output")
}

// applyRewriteFlags lets explicitly set flags override the config file.
func applyRewriteFlags(cmd *cobra.Command, cfg *config.GlobalConfig, f rewriteFlags) {
	flags := cmd.Flags()
	if flags.Changed("decoder") {
		cfg.DLT.Decoder = f.decoder
	}
	if flags.Changed("encoder") {
		cfg.DLT.Encoder = f.encoder
	}
	if flags.Changed("skip-broadcast") {
		cfg.DLT.SkipBroadcast = f.skipBroadcast
	}
	if flags.Changed("force-align") {
		cfg.DLT.ForceAlign = f.forceAlign
	}
}

func runRewrite(ctx context.Context, cfg *config.GlobalConfig, f rewriteFlags, out io.Writer) error {
	dir, err := dlt.ParseDirection(f.direction)
	if err != nil {
		return err
	}
	proto, err := parseProto(f.proto)
	if err != nil {
		return err
	}
	align, err := tcpedit.ParseAlignMode(cfg.DLT.ForceAlign)
	if err != nil {
		return err
	}

	in, err := os.Open(f.input)
	if err != nil {
		return fmt.Errorf("failed to open input: %w", err)
	}
	defer in.Close()
	src, err := pcapgo.NewReader(in)
	if err != nil {
		return fmt.Errorf("failed to read pcap header of %s: %w", f.input, err)
	}

	sc := cfg.DLT.SessionConfig()
	sc.ForceAlign = align
	sc.InputDLT = src.LinkType()
	if sc.Decoder == "" {
		sc.Decoder = strconv.Itoa(int(src.LinkType()))
	}

	reg, err := tcpedit.NewBuiltinRegistry()
	if err != nil {
		return err
	}
	s, err := tcpedit.Open(reg, sc)
	if err != nil {
		return err
	}
	defer s.Close()

	if cfg.Metrics.Enabled {
		srv := metrics.NewServer(cfg.Metrics.Listen, cfg.Metrics.Path)
		if err := srv.Start(ctx); err != nil {
			return err
		}
		defer srv.Stop(context.Background())
	}

	outFile, err := os.Create(f.output)
	if err != nil {
		return fmt.Errorf("failed to create output: %w", err)
	}
	defer outFile.Close()
	dst, err := rewrite.NewWriter(outFile, s, src.Snaplen())
	if err != nil {
		return err
	}

	opts := rewrite.Options{
		Direction: dir,
		Proto:     proto,
		Logger:    log.GetLogger(),
	}
	if f.filter != "" {
		if opts.Filter, err = utils.NewBpfVM(f.filter, src.LinkType(), int(src.Snaplen())); err != nil {
			return err
		}
	}

	stats, err := rewrite.Run(ctx, s, src, dst, opts)
	fmt.Fprintf(out, "%s -> %s: read %d, written %d, skipped %d, filtered %d\n",
		s.Decoder(), s.Encoder(), stats.Read, stats.Written, stats.Skipped, stats.Filtered)
	if err != nil {
		return fmt.Errorf("rewrite stopped: %w", err)
	}
	if err := s.Close(); err != nil {
		return err
	}
	return outFile.Close()
}

// parseProto accepts a protocol name or an ethertype in any Go integer
// syntax.
func parseProto(s string) (layers.EthernetType, error) {
	switch strings.ToLower(s) {
	case "", "all":
		return 0, nil
	case "ipv4", "ip":
		return layers.EthernetTypeIPv4, nil
	case "ipv6":
		return layers.EthernetTypeIPv6, nil
	case "arp":
		return layers.EthernetTypeARP, nil
	}
	n, err := strconv.ParseUint(s, 0, 16)
	if err != nil {
		return 0, fmt.Errorf("invalid protocol %q (must be ipv4/ipv6/arp or an ethertype)", s)
	}
	return layers.EthernetType(n), nil
}
