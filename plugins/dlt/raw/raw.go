// Package raw implements the raw IP datalinks, which carry no link-layer
// header at all. The protocol is taken from the IP version nibble.
package raw

import (
	"fmt"
	"runtime"

	"github.com/google/gopacket/layers"

	"firestige.xyz/tcpedit/pkg/dlt"
)

const (
	Name    = "raw"
	BSDName = "raw-bsd"
)

// LinkTypeBSDRaw is the historical DLT_RAW value from bpf.h, 14 on OpenBSD
// and 12 everywhere else.
var LinkTypeBSDRaw = bsdRaw(runtime.GOOS)

func bsdRaw(goos string) layers.LinkType {
	if goos == "openbsd" {
		return 14
	}
	return 12
}

func init() {
	dlt.RegisterBuiltin(Descriptor())
	dlt.RegisterBuiltin(BSDDescriptor())
}

func Descriptor() dlt.Descriptor {
	return descriptor(layers.LinkTypeRaw, Name, "raw IPv4/IPv6 (LINKTYPE_RAW)")
}

func BSDDescriptor() dlt.Descriptor {
	return descriptor(LinkTypeBSDRaw, BSDName, "raw IPv4/IPv6 (DLT_RAW)")
}

func descriptor(t layers.LinkType, name, desc string) dlt.Descriptor {
	return dlt.Descriptor{
		DLT:         t,
		Name:        name,
		Description: desc,
		Requires:    dlt.CapProto,
		Provides:    dlt.CapProto,
		AddrType:    dlt.AddrUser,
		New:         func() dlt.Plugin { return New() },
	}
}

type Plugin struct {
	dlt.Base
}

func New() *Plugin {
	return &Plugin{}
}

func (p *Plugin) Requires() dlt.Capability {
	return dlt.CapProto
}

func (p *Plugin) Decode(st *dlt.State, pkt []byte) error {
	proto, err := p.Proto(pkt)
	if err != nil {
		return err
	}
	st.SetProto(proto)
	st.SetL2Len(0)
	return nil
}

// Encode writes no header. Only IP can be carried.
func (p *Plugin) Encode(st *dlt.State, dir dlt.Direction, hdr []byte) (int, error) {
	switch proto := st.Proto(); proto {
	case layers.EthernetTypeIPv4, layers.EthernetTypeIPv6:
		return 0, nil
	default:
		return 0, fmt.Errorf("%w: raw IP cannot carry protocol 0x%04x", dlt.ErrUnsupported, uint16(proto))
	}
}

func (p *Plugin) Proto(pkt []byte) (layers.EthernetType, error) {
	if len(pkt) < 1 {
		return 0, dlt.Truncated(1, len(pkt))
	}
	switch v := pkt[0] >> 4; v {
	case 4:
		return layers.EthernetTypeIPv4, nil
	case 6:
		return layers.EthernetTypeIPv6, nil
	default:
		return 0, dlt.Malformed("IP version %d", v)
	}
}

func (p *Plugin) L2Len(pkt []byte) (int, error) {
	return 0, nil
}
