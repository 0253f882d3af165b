// Package rewrite drives a datalink session over a stream of captured
// packets: every packet is decoded, its layer 3 payload handed to an
// optional hook, and the result re-encoded for the output datalink.
package rewrite

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
	"golang.org/x/net/bpf"

	"firestige.xyz/tcpedit/internal/log"
	"firestige.xyz/tcpedit/internal/metrics"
	"firestige.xyz/tcpedit/internal/tcpedit"
	"firestige.xyz/tcpedit/pkg/dlt"
)

// DefaultSnaplen is written to output file headers.
const DefaultSnaplen = 262144

// headroom is the most an encoded header can grow past the decoded one.
const headroom = 64 + dlt.MaxExtraLen

// Reader is satisfied by *pcapgo.Reader and *pcapgo.NgReader.
type Reader interface {
	ReadPacketData() ([]byte, gopacket.CaptureInfo, error)
	LinkType() layers.LinkType
}

// Writer is satisfied by *pcapgo.Writer.
type Writer interface {
	WritePacket(ci gopacket.CaptureInfo, data []byte) error
}

// L3Func may rewrite the layer 3 payload of a packet. It returns the
// payload to merge back, which may be l3 itself.
type L3Func func(l3 []byte, dir dlt.Direction) ([]byte, error)

type Options struct {
	Direction dlt.Direction
	// Proto keeps only packets of this protocol; zero keeps all.
	Proto layers.EthernetType
	// Filter keeps only packets it accepts, evaluated on the input bytes.
	Filter *bpf.VM
	L3     L3Func
	Logger log.Logger
}

type Stats struct {
	Read     uint64
	Written  uint64
	Skipped  uint64
	Filtered uint64
}

// NewWriter writes a pcap file header for the session's output datalink.
func NewWriter(w io.Writer, s *tcpedit.Session, snaplen uint32) (*pcapgo.Writer, error) {
	if snaplen == 0 {
		snaplen = DefaultSnaplen
	}
	pw := pcapgo.NewWriter(w)
	if err := pw.WriteFileHeader(snaplen, s.OutDLT()); err != nil {
		return nil, fmt.Errorf("write pcap header: %w", err)
	}
	return pw, nil
}

// Run rewrites every packet from src into dst until src is exhausted or ctx
// is done. Packets that fail to decode or encode are skipped; a lifecycle
// error from the session stops the run.
func Run(ctx context.Context, s *tcpedit.Session, src Reader, dst Writer, opts Options) (Stats, error) {
	var stats Stats
	logger := opts.Logger
	if logger == nil {
		logger = log.GetLogger()
	}
	logger = logger.WithField("component", "rewrite")

	if !linkCompatible(src.LinkType(), s.OrigDLT()) {
		return stats, fmt.Errorf("input link type %d does not match decoder %s", src.LinkType(), s.Decoder())
	}

	var buf []byte
	for {
		select {
		case <-ctx.Done():
			return stats, ctx.Err()
		default:
		}

		data, ci, err := src.ReadPacketData()
		if errors.Is(err, io.EOF) {
			return stats, nil
		}
		if err != nil {
			return stats, fmt.Errorf("read packet %d: %w", stats.Read+1, err)
		}
		stats.Read++

		if need := len(data) + headroom; cap(buf) < need {
			buf = make([]byte, need)
		}
		buf = buf[:cap(buf)]
		pkt := buf[:copy(buf, data)]

		n, outcome, err := rewritePacket(s, buf, pkt, opts)
		if err != nil {
			if errors.Is(err, dlt.ErrState) {
				return stats, err
			}
			logger.WithError(err).Warnf("skipping packet %d", stats.Read)
		}
		metrics.RewritePacketsTotal.WithLabelValues(outcome).Inc()

		switch outcome {
		case metrics.OutcomeFiltered:
			stats.Filtered++
			continue
		case metrics.OutcomeSkipped:
			stats.Skipped++
			continue
		}

		ci.Length += n - len(data)
		ci.CaptureLength = n
		if err := dst.WritePacket(ci, buf[:n]); err != nil {
			return stats, fmt.Errorf("write packet %d: %w", stats.Read, err)
		}
		stats.Written++
	}
}

func rewritePacket(s *tcpedit.Session, buf, pkt []byte, opts Options) (int, string, error) {
	if opts.Filter != nil {
		keep, err := opts.Filter.Run(pkt)
		if err != nil {
			return 0, metrics.OutcomeSkipped, fmt.Errorf("bpf filter: %w", err)
		}
		if keep == 0 {
			return 0, metrics.OutcomeFiltered, nil
		}
	}
	if opts.Proto != 0 {
		proto, err := s.Proto(pkt)
		if err != nil {
			return 0, metrics.OutcomeSkipped, err
		}
		if proto != opts.Proto {
			return 0, metrics.OutcomeFiltered, nil
		}
	}

	if err := s.Decode(pkt); err != nil {
		return 0, metrics.OutcomeSkipped, err
	}
	l3, err := s.GetLayer3(pkt)
	if err != nil {
		return 0, metrics.OutcomeSkipped, err
	}
	if opts.L3 != nil {
		if l3, err = opts.L3(l3, opts.Direction); err != nil {
			return 0, metrics.OutcomeSkipped, fmt.Errorf("layer 3 rewrite: %w", err)
		}
	}
	n, err := s.Encode(buf, opts.Direction, l3)
	if err != nil {
		return 0, metrics.OutcomeSkipped, err
	}
	return n, metrics.OutcomeWritten, nil
}

// linkCompatible accepts any DLT_USERn input for the user decoder.
func linkCompatible(in, decoder layers.LinkType) bool {
	if in == decoder {
		return true
	}
	return dlt.IsUserDLT(in) && dlt.IsUserDLT(decoder)
}
