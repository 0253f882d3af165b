package dlt

import "github.com/google/gopacket/layers"

// MaxExtraLen caps the auxiliary link-layer data a decoder may stash for
// its encoder (VLAN tags, control bytes, opaque user headers).
const MaxExtraLen = 255

// State is the per-packet decode result. A decoder fills it, the encoder
// for the same packet reads it, and the next decode overwrites it. A
// single State is reused for every packet of a session.
type State struct {
	srcAddr  L2Addr
	dstAddr  L2Addr
	l2len    int
	proto    layers.EthernetType
	addrType AddrType
	provided Capability

	extra    [MaxExtraLen]byte
	extraLen int
	hasExtra bool
}

// Reset returns s to the "no valid decode" state. Extra bytes from the
// previous packet are zeroed so they cannot leak into the next one.
func (s *State) Reset() {
	*s = State{addrType: s.addrType}
}

func (s *State) SetL2Len(n int) { s.l2len = n }

// L2Len is the length of the original link-layer header.
func (s *State) L2Len() int { return s.l2len }

func (s *State) SetProto(p layers.EthernetType) {
	s.proto = p
	s.provided |= CapProto
}

// Proto is the upper-layer protocol, valid if Provided has CapProto.
func (s *State) Proto() layers.EthernetType { return s.proto }

func (s *State) SetSrcAddr(a L2Addr) {
	if a == nil {
		return
	}
	s.srcAddr = a
	s.provided |= CapSrcAddr
}

func (s *State) SrcAddr() L2Addr { return s.srcAddr }

func (s *State) SetDstAddr(a L2Addr) {
	if a == nil {
		return
	}
	s.dstAddr = a
	s.provided |= CapDstAddr
}

func (s *State) DstAddr() L2Addr { return s.dstAddr }

// Provided reports which fields the decoder actually populated.
func (s *State) Provided() Capability { return s.provided }

// AddrType is the address representation of the active decoder.
func (s *State) AddrType() AddrType { return s.addrType }

// SetAddrType is called by the framework when a decoder is selected.
func (s *State) SetAddrType(t AddrType) { s.addrType = t }

// SetExtra copies b into the extra slot, replacing any previous content.
func (s *State) SetExtra(b []byte) error {
	if len(b) > MaxExtraLen {
		return ErrExtraTooLarge
	}
	clear(s.extra[:s.extraLen])
	s.extraLen = copy(s.extra[:], b)
	s.hasExtra = true
	return nil
}

// Extra returns the decoder's auxiliary bytes, or nil if it produced none.
// The slice is only valid until the next decode.
func (s *State) Extra() []byte {
	if !s.hasExtra {
		return nil
	}
	return s.extra[:s.extraLen:s.extraLen]
}
