// Package en10mb implements the Ethernet (DLT_EN10MB) datalink plugin.
// 802.1Q and QinQ tags are stripped on decode and carried in the extra
// slot as (TPID, TCI) pairs so the encoder can reproduce them.
package en10mb

import (
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/google/gopacket/layers"

	"firestige.xyz/tcpedit/pkg/dlt"
)

const (
	Name = "en10mb"

	headerLen = 14
	tagLen    = 4
	maxTags   = dlt.MaxExtraLen / tagLen

	etherTypeQinQ layers.EthernetType = 0x88A8
)

func init() {
	dlt.RegisterBuiltin(Descriptor())
}

func Descriptor() dlt.Descriptor {
	return dlt.Descriptor{
		DLT:         layers.LinkTypeEthernet,
		Name:        Name,
		Description: "Ethernet II, 802.1Q/QinQ tags preserved",
		Requires:    dlt.CapAll,
		Provides:    dlt.CapAll,
		AddrType:    dlt.AddrEthernet,
		New:         func() dlt.Plugin { return New() },
	}
}

// VLANMode controls what happens to 802.1Q tags on encode.
type VLANMode string

const (
	VLANKeep VLANMode = ""
	VLANAdd  VLANMode = "add"
	VLANDel  VLANMode = "del"
)

// Options are the en10mb plugin options.
type Options struct {
	SMAC    string   `mapstructure:"smac"`    // "mac" or "c2s_mac,s2c_mac"
	DMAC    string   `mapstructure:"dmac"`    // "mac" or "c2s_mac,s2c_mac"
	SubSMAC []string `mapstructure:"subsmac"` // "old_mac,new_mac"
	VLAN    string   `mapstructure:"vlan"`
	VLANTag uint16   `mapstructure:"vlan_tag"`
	VLANPri uint8    `mapstructure:"vlan_pri"`
	VLANCFI uint8    `mapstructure:"vlan_cfi"`
}

// macPair holds per-direction replacement addresses.
type macPair struct {
	c2s dlt.MAC
	s2c dlt.MAC
	set bool
}

func (p macPair) pick(dir dlt.Direction) dlt.MAC {
	if dir == dlt.DirServerToClient {
		return p.s2c
	}
	return p.c2s
}

type Plugin struct {
	dlt.Base

	smac    macPair
	dmac    macPair
	subsmac map[dlt.MAC]dlt.MAC
	vlan    VLANMode
	tci     uint16
}

func New() *Plugin {
	return &Plugin{}
}

func (p *Plugin) ParseOptions(opts map[string]any) error {
	var o Options
	if err := dlt.DecodeOptions(opts, &o); err != nil {
		return err
	}

	var err error
	if p.smac, err = parseMACPair(o.SMAC); err != nil {
		return dlt.BadOption("smac", err)
	}
	if p.dmac, err = parseMACPair(o.DMAC); err != nil {
		return dlt.BadOption("dmac", err)
	}

	for _, pair := range o.SubSMAC {
		from, to, ok := strings.Cut(pair, ",")
		if !ok {
			return dlt.BadOption("subsmac", fmt.Errorf("%q is not old,new", pair))
		}
		oldMAC, err := dlt.ParseMAC(strings.TrimSpace(from))
		if err != nil {
			return dlt.BadOption("subsmac", err)
		}
		newMAC, err := dlt.ParseMAC(strings.TrimSpace(to))
		if err != nil {
			return dlt.BadOption("subsmac", err)
		}
		if p.subsmac == nil {
			p.subsmac = make(map[dlt.MAC]dlt.MAC)
		}
		p.subsmac[oldMAC] = newMAC
	}

	switch mode := VLANMode(strings.ToLower(o.VLAN)); mode {
	case VLANKeep, VLANDel:
		p.vlan = mode
	case VLANAdd:
		if o.VLANTag > 0x0FFF {
			return dlt.BadOption("vlan_tag", fmt.Errorf("%d exceeds 4095", o.VLANTag))
		}
		if o.VLANPri > 7 {
			return dlt.BadOption("vlan_pri", fmt.Errorf("%d exceeds 7", o.VLANPri))
		}
		if o.VLANCFI > 1 {
			return dlt.BadOption("vlan_cfi", fmt.Errorf("%d is not 0 or 1", o.VLANCFI))
		}
		p.vlan = mode
		p.tci = uint16(o.VLANPri)<<13 | uint16(o.VLANCFI)<<12 | o.VLANTag
	default:
		return dlt.BadOption("vlan", fmt.Errorf("%q (must be add/del)", o.VLAN))
	}
	return nil
}

func parseMACPair(s string) (macPair, error) {
	if s == "" {
		return macPair{}, nil
	}
	first, second, two := strings.Cut(s, ",")
	c2s, err := dlt.ParseMAC(strings.TrimSpace(first))
	if err != nil {
		return macPair{}, err
	}
	s2c := c2s
	if two {
		if s2c, err = dlt.ParseMAC(strings.TrimSpace(second)); err != nil {
			return macPair{}, err
		}
	}
	return macPair{c2s: c2s, s2c: s2c, set: true}, nil
}

// Requires drops the address bits the options supply themselves.
func (p *Plugin) Requires() dlt.Capability {
	req := dlt.CapAll
	if p.smac.set {
		req &^= dlt.CapSrcAddr
	}
	if p.dmac.set {
		req &^= dlt.CapDstAddr
	}
	return req
}

type header struct {
	proto layers.EthernetType
	l2len int
	tags  int
}

func parse(pkt []byte) (header, error) {
	if len(pkt) < headerLen {
		return header{}, dlt.Truncated(headerLen, len(pkt))
	}
	h := header{
		proto: layers.EthernetType(binary.BigEndian.Uint16(pkt[12:14])),
		l2len: headerLen,
	}
	for h.proto == layers.EthernetTypeDot1Q || h.proto == etherTypeQinQ {
		if h.tags == maxTags {
			return header{}, dlt.Malformed("more than %d VLAN tags", maxTags)
		}
		if len(pkt) < h.l2len+tagLen {
			return header{}, dlt.Truncated(h.l2len+tagLen, len(pkt))
		}
		h.proto = layers.EthernetType(binary.BigEndian.Uint16(pkt[h.l2len+2 : h.l2len+4]))
		h.l2len += tagLen
		h.tags++
	}
	return h, nil
}

func (p *Plugin) Decode(st *dlt.State, pkt []byte) error {
	h, err := parse(pkt)
	if err != nil {
		return err
	}

	var dst, src dlt.MAC
	copy(dst[:], pkt[0:6])
	copy(src[:], pkt[6:12])
	st.SetDstAddr(dst)
	st.SetSrcAddr(src)
	st.SetProto(h.proto)
	st.SetL2Len(h.l2len)

	if h.tags > 0 {
		// Each tag is stored as the TPID that announced it plus its TCI.
		var tags [maxTags * tagLen]byte
		for i := 0; i < h.tags; i++ {
			off := headerLen + i*tagLen
			copy(tags[i*tagLen:], pkt[off-2:off+2])
		}
		return st.SetExtra(tags[:h.tags*tagLen])
	}
	return nil
}

func (p *Plugin) Encode(st *dlt.State, dir dlt.Direction, hdr []byte) (int, error) {
	if !st.Provided().Has(dlt.CapProto) {
		return 0, fmt.Errorf("no protocol to encode")
	}

	dst, _ := dlt.AsMAC(st.DstAddr())
	src, _ := dlt.AsMAC(st.SrcAddr())
	dst = p.rewrite(dst, p.dmac, dir)
	src = p.rewrite(src, p.smac, dir)

	tags := p.tags(st)
	n := headerLen + len(tags)
	if len(hdr) < n {
		return 0, fmt.Errorf("%w: need %d bytes, have %d", dlt.ErrBufferTooSmall, n, len(hdr))
	}

	copy(hdr[0:6], dst[:])
	copy(hdr[6:12], src[:])
	copy(hdr[12:], tags)
	binary.BigEndian.PutUint16(hdr[12+len(tags):], uint16(st.Proto()))
	return n, nil
}

// rewrite applies subsmac substitution and then the configured address.
// With skip_broadcast, broadcast and multicast addresses are left alone.
func (p *Plugin) rewrite(mac dlt.MAC, repl macPair, dir dlt.Direction) dlt.MAC {
	if p.Env.SkipBroadcast && mac.IsMulticast() {
		return mac
	}
	if sub, ok := p.subsmac[mac]; ok {
		mac = sub
	}
	if repl.set {
		mac = repl.pick(dir)
	}
	return mac
}

// tags returns the TPID/TCI pairs to write after the addresses.
func (p *Plugin) tags(st *dlt.State) []byte {
	switch p.vlan {
	case VLANDel:
		return nil
	case VLANAdd:
		var tag [tagLen]byte
		binary.BigEndian.PutUint16(tag[0:2], uint16(layers.EthernetTypeDot1Q))
		binary.BigEndian.PutUint16(tag[2:4], p.tci)
		return tag[:]
	}
	// Extra bytes are only ours if the decoder was Ethernet too.
	if p.Env.OrigDLT != layers.LinkTypeEthernet {
		return nil
	}
	extra := st.Extra()
	return extra[:len(extra)/tagLen*tagLen]
}

func (p *Plugin) Proto(pkt []byte) (layers.EthernetType, error) {
	h, err := parse(pkt)
	if err != nil {
		return 0, err
	}
	return h.proto, nil
}

func (p *Plugin) L2Len(pkt []byte) (int, error) {
	h, err := parse(pkt)
	if err != nil {
		return 0, err
	}
	return h.l2len, nil
}
