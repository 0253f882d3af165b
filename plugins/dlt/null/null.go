// Package null implements the BSD loopback datalinks. Both carry a 4 byte
// address family: DLT_NULL in the byte order of the capturing host,
// DLT_LOOP in network byte order.
package null

import (
	"encoding/binary"
	"fmt"
	"math/bits"

	"github.com/google/gopacket/layers"

	"firestige.xyz/tcpedit/pkg/dlt"
)

const (
	NullName = "null"
	LoopName = "loop"

	headerLen = 4
)

func init() {
	dlt.RegisterBuiltin(NullDescriptor())
	dlt.RegisterBuiltin(LoopDescriptor())
}

func NullDescriptor() dlt.Descriptor {
	return descriptor(layers.LinkTypeNull, NullName, "BSD loopback, host byte order", binary.NativeEndian)
}

func LoopDescriptor() dlt.Descriptor {
	return descriptor(layers.LinkTypeLoop, LoopName, "OpenBSD loopback, network byte order", binary.BigEndian)
}

func descriptor(t layers.LinkType, name, desc string, order binary.ByteOrder) dlt.Descriptor {
	return dlt.Descriptor{
		DLT:         t,
		Name:        name,
		Description: desc,
		Requires:    dlt.CapProto,
		Provides:    dlt.CapProto,
		AddrType:    dlt.AddrUser,
		New:         func() dlt.Plugin { return New(t, order) },
	}
}

type Options struct {
	// AFInet6 is the family value written for IPv6: 10 (Linux), 24 (BSD),
	// 28 (FreeBSD) or 30 (Darwin).
	AFInet6 uint32 `mapstructure:"af_inet6"`
}

type Plugin struct {
	dlt.Base

	dlt     layers.LinkType
	order   binary.ByteOrder
	afInet6 layers.ProtocolFamily
}

func New(t layers.LinkType, order binary.ByteOrder) *Plugin {
	return &Plugin{dlt: t, order: order, afInet6: layers.ProtocolFamilyIPv6BSD}
}

func (p *Plugin) ParseOptions(opts map[string]any) error {
	var o Options
	if err := dlt.DecodeOptions(opts, &o); err != nil {
		return err
	}
	if o.AFInet6 == 0 {
		return nil
	}
	if o.AFInet6 > 0xFF {
		return dlt.BadOption("af_inet6", fmt.Errorf("%d is not an IPv6 address family", o.AFInet6))
	}
	switch af := layers.ProtocolFamily(o.AFInet6); af {
	case layers.ProtocolFamilyIPv6Linux, layers.ProtocolFamilyIPv6BSD,
		layers.ProtocolFamilyIPv6FreeBSD, layers.ProtocolFamilyIPv6Darwin:
		p.afInet6 = af
		return nil
	default:
		return dlt.BadOption("af_inet6", fmt.Errorf("%d is not an IPv6 address family", o.AFInet6))
	}
}

func (p *Plugin) Requires() dlt.Capability {
	return dlt.CapProto
}

// family reads the address family. DLT_NULL files written on a host of the
// other endianness are detected by a non-zero upper half.
func (p *Plugin) family(pkt []byte) (layers.ProtocolFamily, error) {
	if len(pkt) < headerLen {
		return 0, dlt.Truncated(headerLen, len(pkt))
	}
	v := p.order.Uint32(pkt[:headerLen])
	if p.dlt == layers.LinkTypeNull && v&0xFFFF0000 != 0 {
		v = bits.ReverseBytes32(v)
	}
	if v > 0xFF {
		return 0, dlt.Malformed("address family %#08x", v)
	}
	return layers.ProtocolFamily(v), nil
}

func familyProto(af layers.ProtocolFamily) (layers.EthernetType, bool) {
	switch af {
	case layers.ProtocolFamilyIPv4:
		return layers.EthernetTypeIPv4, true
	case layers.ProtocolFamilyIPv6Linux, layers.ProtocolFamilyIPv6BSD,
		layers.ProtocolFamilyIPv6FreeBSD, layers.ProtocolFamilyIPv6Darwin:
		return layers.EthernetTypeIPv6, true
	}
	return 0, false
}

func (p *Plugin) Decode(st *dlt.State, pkt []byte) error {
	proto, err := p.Proto(pkt)
	if err != nil {
		return err
	}
	st.SetProto(proto)
	st.SetL2Len(headerLen)
	return st.SetExtra(pkt[:headerLen])
}

// Encode reuses the decoded header verbatim when it came from the same
// datalink and still matches the protocol.
func (p *Plugin) Encode(st *dlt.State, dir dlt.Direction, hdr []byte) (int, error) {
	if len(hdr) < headerLen {
		return 0, fmt.Errorf("%w: need %d bytes, have %d", dlt.ErrBufferTooSmall, headerLen, len(hdr))
	}
	proto := st.Proto()

	if extra := st.Extra(); p.Env.OrigDLT == p.dlt && len(extra) == headerLen {
		if af, err := p.family(extra); err == nil {
			if orig, ok := familyProto(af); ok && orig == proto {
				return copy(hdr, extra), nil
			}
		}
	}

	var af layers.ProtocolFamily
	switch proto {
	case layers.EthernetTypeIPv4:
		af = layers.ProtocolFamilyIPv4
	case layers.EthernetTypeIPv6:
		af = p.afInet6
	default:
		return 0, fmt.Errorf("%w: no address family for protocol 0x%04x", dlt.ErrUnsupported, uint16(proto))
	}
	p.order.PutUint32(hdr[:headerLen], uint32(af))
	return headerLen, nil
}

func (p *Plugin) Proto(pkt []byte) (layers.EthernetType, error) {
	af, err := p.family(pkt)
	if err != nil {
		return 0, err
	}
	proto, ok := familyProto(af)
	if !ok {
		return 0, dlt.Malformed("unknown address family %d", uint32(af))
	}
	return proto, nil
}

func (p *Plugin) L2Len(pkt []byte) (int, error) {
	if len(pkt) < headerLen {
		return 0, dlt.Truncated(headerLen, len(pkt))
	}
	return headerLen, nil
}
