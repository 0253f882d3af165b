// Package user implements the DLT_USER0..DLT_USER15 plugin. The datalink
// header is an opaque byte string: on decode its length comes from the
// l2len option, on encode its bytes come from the dlink options.
package user

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/google/gopacket/layers"

	"firestige.xyz/tcpedit/pkg/dlt"
)

const Name = "user"

func init() {
	dlt.RegisterBuiltin(Descriptor())
}

func Descriptor() dlt.Descriptor {
	return dlt.Descriptor{
		DLT:         dlt.LinkTypeUser0,
		Name:        Name,
		Description: "user-defined datalink (DLT_USER0-15)",
		Requires:    dlt.CapNone,
		Provides:    dlt.CapNone,
		AddrType:    dlt.AddrUser,
		New:         func() dlt.Plugin { return New() },
	}
}

// Options are the user plugin options. DLink and DLinkS2C are hex strings;
// ':' ',' and ' ' separators are ignored.
type Options struct {
	DLT      int    `mapstructure:"dlt"`
	L2Len    int    `mapstructure:"l2len"`
	DLink    string `mapstructure:"dlink"`
	DLinkS2C string `mapstructure:"dlink_s2c"`
}

type Plugin struct {
	dlt.Base

	out      layers.LinkType
	l2len    int
	dlinkC2S []byte
	dlinkS2C []byte
	hasDLink bool
}

func New() *Plugin {
	return &Plugin{}
}

func (p *Plugin) ParseOptions(opts map[string]any) error {
	var o Options
	if err := dlt.DecodeOptions(opts, &o); err != nil {
		return err
	}

	if o.DLT != 0 {
		if o.DLT < int(dlt.LinkTypeUser0) || o.DLT > int(dlt.LinkTypeUser15) {
			return dlt.BadOption("dlt", fmt.Errorf("%d is outside DLT_USER0-15 (%d-%d)",
				o.DLT, dlt.LinkTypeUser0, dlt.LinkTypeUser15))
		}
		p.out = layers.LinkType(o.DLT)
	}

	if o.L2Len < 0 || o.L2Len > dlt.MaxExtraLen {
		return dlt.BadOption("l2len", fmt.Errorf("%d is outside 0-%d", o.L2Len, dlt.MaxExtraLen))
	}
	p.l2len = o.L2Len

	var err error
	if o.DLink != "" {
		if p.dlinkC2S, err = parseHex(o.DLink); err != nil {
			return dlt.BadOption("dlink", err)
		}
		p.dlinkS2C = p.dlinkC2S
		p.hasDLink = true
	}
	if o.DLinkS2C != "" {
		if !p.hasDLink {
			return dlt.BadOption("dlink_s2c", fmt.Errorf("requires dlink"))
		}
		if p.dlinkS2C, err = parseHex(o.DLinkS2C); err != nil {
			return dlt.BadOption("dlink_s2c", err)
		}
	}
	return nil
}

func parseHex(s string) ([]byte, error) {
	s = strings.NewReplacer(":", "", ",", "", " ", "").Replace(s)
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, err
	}
	if len(b) > dlt.MaxExtraLen {
		return nil, fmt.Errorf("%d bytes exceeds %d", len(b), dlt.MaxExtraLen)
	}
	return b, nil
}

func (p *Plugin) Requires() dlt.Capability {
	return dlt.CapNone
}

// OutputDLT is the DLT_USERn written to the output file: the dlt option,
// else the input DLT when it was a user DLT, else DLT_USER0.
func (p *Plugin) OutputDLT() layers.LinkType {
	switch {
	case p.out != 0:
		return p.out
	case dlt.IsUserDLT(p.Env.OrigDLT):
		return p.Env.OrigDLT
	}
	return dlt.LinkTypeUser0
}

func (p *Plugin) Decode(st *dlt.State, pkt []byte) error {
	if len(pkt) < p.l2len {
		return dlt.Truncated(p.l2len, len(pkt))
	}
	st.SetL2Len(p.l2len)
	if p.l2len > 0 {
		return st.SetExtra(pkt[:p.l2len])
	}
	return nil
}

// Encode writes the configured dlink bytes. Without them, a header decoded
// by this plugin is written back unchanged.
func (p *Plugin) Encode(st *dlt.State, dir dlt.Direction, hdr []byte) (int, error) {
	var b []byte
	switch {
	case p.hasDLink && dir == dlt.DirServerToClient:
		b = p.dlinkS2C
	case p.hasDLink:
		b = p.dlinkC2S
	case dlt.IsUserDLT(p.Env.OrigDLT):
		b = st.Extra()
	default:
		return 0, fmt.Errorf("%w: no dlink configured for a %d input", dlt.ErrUnsupported, p.Env.OrigDLT)
	}
	if len(hdr) < len(b) {
		return 0, fmt.Errorf("%w: need %d bytes, have %d", dlt.ErrBufferTooSmall, len(b), len(hdr))
	}
	return copy(hdr, b), nil
}

func (p *Plugin) Proto(pkt []byte) (layers.EthernetType, error) {
	return 0, fmt.Errorf("%w: %s carries no protocol field", dlt.ErrUnsupported, Name)
}

func (p *Plugin) L2Len(pkt []byte) (int, error) {
	if len(pkt) < p.l2len {
		return 0, dlt.Truncated(p.l2len, len(pkt))
	}
	return p.l2len, nil
}
