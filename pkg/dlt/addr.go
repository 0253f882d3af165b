package dlt

import (
	"fmt"
	"net"
)

// AddrType names the representation used for link-layer addresses.
type AddrType int

const (
	AddrEthernet AddrType = iota
	AddrCHDLC             // Cisco HDLC, a single byte: 0x0F unicast, 0x8F broadcast
	AddrUser              // no address
)

func (t AddrType) String() string {
	switch t {
	case AddrEthernet:
		return "ETHERNET"
	case AddrCHDLC:
		return "C_HDLC"
	case AddrUser:
		return "USER"
	default:
		return fmt.Sprintf("AddrType(%d)", int(t))
	}
}

// L2Addr is a link-layer address. The concrete types are MAC and HDLCAddr;
// a nil L2Addr means the datalink has no address.
type L2Addr interface {
	AddrType() AddrType
	String() string
	l2addr()
}

// MAC is a 6 byte Ethernet hardware address.
type MAC [6]byte

// BroadcastMAC is ff:ff:ff:ff:ff:ff.
var BroadcastMAC = MAC{0xff, 0xff, 0xff, 0xff, 0xff, 0xff}

func (MAC) AddrType() AddrType { return AddrEthernet }
func (MAC) l2addr()            {}

func (m MAC) String() string {
	return net.HardwareAddr(m[:]).String()
}

// IsBroadcast reports whether m is the all-ones address.
func (m MAC) IsBroadcast() bool {
	return m == BroadcastMAC
}

// IsMulticast reports whether the group bit of m is set. Broadcast is a
// multicast address.
func (m MAC) IsMulticast() bool {
	return m[0]&0x01 != 0
}

// IsUnicast is the complement of IsMulticast.
func (m MAC) IsUnicast() bool {
	return !m.IsMulticast()
}

// ParseMAC parses s in any format accepted by net.ParseMAC, restricted to
// 48-bit addresses.
func ParseMAC(s string) (MAC, error) {
	hw, err := net.ParseMAC(s)
	if err != nil {
		return MAC{}, err
	}
	if len(hw) != 6 {
		return MAC{}, fmt.Errorf("%q is not a 48-bit MAC address", s)
	}
	var m MAC
	copy(m[:], hw)
	return m, nil
}

// HDLCAddr is a Cisco HDLC address byte.
type HDLCAddr uint8

const (
	HDLCUnicast   HDLCAddr = 0x0F
	HDLCBroadcast HDLCAddr = 0x8F
)

func (HDLCAddr) AddrType() AddrType { return AddrCHDLC }
func (HDLCAddr) l2addr()            {}

func (a HDLCAddr) String() string {
	return fmt.Sprintf("0x%02X", uint8(a))
}

// AsMAC returns a as a MAC if it holds one.
func AsMAC(a L2Addr) (MAC, bool) {
	m, ok := a.(MAC)
	return m, ok
}

// AsHDLC returns a as an HDLCAddr if it holds one.
func AsHDLC(a L2Addr) (HDLCAddr, bool) {
	h, ok := a.(HDLCAddr)
	return h, ok
}
