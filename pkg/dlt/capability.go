// Package dlt defines the datalink plugin contract shared by the rewrite
// framework and the concrete DLT plugins.
package dlt

import "strings"

// Capability is a bit mask over the canonical link-layer fields a decoder
// can extract and an encoder can consume.
type Capability uint32

const (
	CapProto Capability = 1 << iota
	CapSrcAddr
	CapDstAddr
)

// CapNone is the empty mask.
const CapNone Capability = 0

// capabilityInfo must hold one row per Capability bit.
var capabilityInfo = []struct {
	bit  Capability
	name string
	desc string
}{
	{CapProto, "PROTO", "protocol field"},
	{CapSrcAddr, "SRCADDR", "source address"},
	{CapDstAddr, "DSTADDR", "destination address"},
}

// CapAll is the union of every known capability bit.
var CapAll = func() Capability {
	var all Capability
	for _, info := range capabilityInfo {
		all |= info.bit
	}
	return all
}()

// Has reports whether every bit of o is set in c.
func (c Capability) Has(o Capability) bool {
	return c&o == o
}

// Missing returns the bits of c not present in provided.
func (c Capability) Missing(provided Capability) Capability {
	return c &^ provided
}

// Names returns the short names of the set bits, in table order.
func (c Capability) Names() []string {
	var names []string
	for _, info := range capabilityInfo {
		if c&info.bit != 0 {
			names = append(names, info.name)
		}
	}
	return names
}

// Describe returns the human readable descriptions of the set bits.
func (c Capability) Describe() []string {
	var descs []string
	for _, info := range capabilityInfo {
		if c&info.bit != 0 {
			descs = append(descs, info.desc)
		}
	}
	return descs
}

func (c Capability) String() string {
	if c == CapNone {
		return "NONE"
	}
	return strings.Join(c.Names(), "|")
}
