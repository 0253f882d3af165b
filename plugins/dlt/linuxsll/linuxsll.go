// Package linuxsll implements the Linux cooked capture (DLT_LINUX_SLL)
// plugin. The 16 byte header is packet type, ARPHRD type, address length,
// 8 address bytes and the protocol.
package linuxsll

import (
	"encoding/binary"
	"fmt"

	"github.com/google/gopacket/layers"

	"firestige.xyz/tcpedit/pkg/dlt"
)

const (
	Name = "linuxsll"

	headerLen   = 16
	extraLen    = 14 // everything but the protocol
	arphrdEther = 1
	arphrdNone  = 0xFFFE
)

func init() {
	dlt.RegisterBuiltin(Descriptor())
}

func Descriptor() dlt.Descriptor {
	return dlt.Descriptor{
		DLT:         layers.LinkTypeLinuxSLL,
		Name:        Name,
		Description: "Linux cooked capture",
		Requires:    dlt.CapProto,
		Provides:    dlt.CapProto | dlt.CapSrcAddr,
		AddrType:    dlt.AddrEthernet,
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
	if len(pkt) < headerLen {
		return dlt.Truncated(headerLen, len(pkt))
	}
	hatype := binary.BigEndian.Uint16(pkt[2:4])
	halen := binary.BigEndian.Uint16(pkt[4:6])
	if halen > 8 {
		return dlt.Malformed("address length %d", halen)
	}
	if hatype == arphrdEther && halen == 6 {
		var src dlt.MAC
		copy(src[:], pkt[6:12])
		st.SetSrcAddr(src)
	}
	st.SetProto(layers.EthernetType(binary.BigEndian.Uint16(pkt[14:16])))
	st.SetL2Len(headerLen)
	return st.SetExtra(pkt[:extraLen])
}

// Encode keeps a decoded SLL header and otherwise synthesizes one from the
// direction and the source MAC, if any.
func (p *Plugin) Encode(st *dlt.State, dir dlt.Direction, hdr []byte) (int, error) {
	if len(hdr) < headerLen {
		return 0, fmt.Errorf("%w: need %d bytes, have %d", dlt.ErrBufferTooSmall, headerLen, len(hdr))
	}

	if extra := st.Extra(); p.Env.OrigDLT == layers.LinkTypeLinuxSLL && len(extra) == extraLen {
		copy(hdr, extra)
	} else {
		clear(hdr[:extraLen])
		pktType := layers.LinuxSLLPacketTypeOutgoing
		if dir == dlt.DirServerToClient {
			pktType = layers.LinuxSLLPacketTypeHost
		}
		binary.BigEndian.PutUint16(hdr[0:2], uint16(pktType))
		if src, ok := dlt.AsMAC(st.SrcAddr()); ok {
			binary.BigEndian.PutUint16(hdr[2:4], arphrdEther)
			binary.BigEndian.PutUint16(hdr[4:6], 6)
			copy(hdr[6:12], src[:])
		} else {
			binary.BigEndian.PutUint16(hdr[2:4], arphrdNone)
		}
	}
	binary.BigEndian.PutUint16(hdr[14:16], uint16(st.Proto()))
	return headerLen, nil
}

func (p *Plugin) Proto(pkt []byte) (layers.EthernetType, error) {
	if len(pkt) < headerLen {
		return 0, dlt.Truncated(headerLen, len(pkt))
	}
	return layers.EthernetType(binary.BigEndian.Uint16(pkt[14:16])), nil
}

func (p *Plugin) L2Len(pkt []byte) (int, error) {
	if len(pkt) < headerLen {
		return 0, dlt.Truncated(headerLen, len(pkt))
	}
	return headerLen, nil
}
