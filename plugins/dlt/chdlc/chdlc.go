// Package chdlc implements the Cisco HDLC (DLT_C_HDLC) datalink plugin.
package chdlc

import (
	"encoding/binary"
	"fmt"

	"github.com/google/gopacket/layers"

	"firestige.xyz/tcpedit/pkg/dlt"
)

const (
	Name      = "chdlc"
	headerLen = 4
)

func init() {
	dlt.RegisterBuiltin(Descriptor())
}

func Descriptor() dlt.Descriptor {
	return dlt.Descriptor{
		DLT:         layers.LinkTypeC_HDLC,
		Name:        Name,
		Description: "Cisco HDLC",
		Requires:    dlt.CapProto,
		Provides:    dlt.CapProto | dlt.CapDstAddr,
		AddrType:    dlt.AddrCHDLC,
		New:         func() dlt.Plugin { return New() },
	}
}

type Options struct {
	Address *uint8 `mapstructure:"address"`
	Control *uint8 `mapstructure:"control"`
}

type Plugin struct {
	dlt.Base

	address *dlt.HDLCAddr
	control *uint8
}

func New() *Plugin {
	return &Plugin{}
}

func (p *Plugin) ParseOptions(opts map[string]any) error {
	var o Options
	if err := dlt.DecodeOptions(opts, &o); err != nil {
		return err
	}
	if o.Address != nil {
		a := dlt.HDLCAddr(*o.Address)
		if err := validAddr(a); err != nil {
			return dlt.BadOption("address", err)
		}
		p.address = &a
	}
	p.control = o.Control
	return nil
}

func validAddr(a dlt.HDLCAddr) error {
	if a != dlt.HDLCUnicast && a != dlt.HDLCBroadcast {
		return fmt.Errorf("address %s is neither 0x0F nor 0x8F", a)
	}
	return nil
}

func (p *Plugin) Requires() dlt.Capability {
	return dlt.CapProto
}

func (p *Plugin) Decode(st *dlt.State, pkt []byte) error {
	if len(pkt) < headerLen {
		return dlt.Truncated(headerLen, len(pkt))
	}
	addr := dlt.HDLCAddr(pkt[0])
	if err := validAddr(addr); err != nil {
		return dlt.Malformed("%v", err)
	}
	st.SetDstAddr(addr)
	st.SetProto(layers.EthernetType(binary.BigEndian.Uint16(pkt[2:4])))
	st.SetL2Len(headerLen)
	return st.SetExtra(pkt[1:2])
}

// Encode picks the address from the option, a decoded HDLC address, or the
// cast type of a decoded Ethernet destination, in that order.
func (p *Plugin) Encode(st *dlt.State, dir dlt.Direction, hdr []byte) (int, error) {
	if !st.Provided().Has(dlt.CapProto) {
		return 0, fmt.Errorf("no protocol to encode")
	}
	if len(hdr) < headerLen {
		return 0, fmt.Errorf("%w: need %d bytes, have %d", dlt.ErrBufferTooSmall, headerLen, len(hdr))
	}

	addr := dlt.HDLCUnicast
	switch a := st.DstAddr().(type) {
	case dlt.HDLCAddr:
		addr = a
	case dlt.MAC:
		if a.IsMulticast() {
			addr = dlt.HDLCBroadcast
		}
	}
	if p.address != nil {
		addr = *p.address
	}

	var control uint8
	if extra := st.Extra(); p.Env.OrigDLT == layers.LinkTypeC_HDLC && len(extra) == 1 {
		control = extra[0]
	}
	if p.control != nil {
		control = *p.control
	}

	hdr[0] = uint8(addr)
	hdr[1] = control
	binary.BigEndian.PutUint16(hdr[2:4], uint16(st.Proto()))
	return headerLen, nil
}

func (p *Plugin) Proto(pkt []byte) (layers.EthernetType, error) {
	if len(pkt) < headerLen {
		return 0, dlt.Truncated(headerLen, len(pkt))
	}
	return layers.EthernetType(binary.BigEndian.Uint16(pkt[2:4])), nil
}

func (p *Plugin) L2Len(pkt []byte) (int, error) {
	if len(pkt) < headerLen {
		return 0, dlt.Truncated(headerLen, len(pkt))
	}
	return headerLen, nil
}
