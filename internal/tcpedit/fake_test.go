package tcpedit

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/google/gopacket/layers"

	"firestige.xyz/tcpedit/pkg/dlt"
)

// calls records plugin lifecycle events across every instance of a fake.
type calls struct {
	inits    []string
	cleanups []string
}

// fake is a test datalink: a 2 byte protocol followed by hlen-2 bytes that
// are kept as extra. On encode it writes the protocol, the extra bytes and
// pad filler bytes.
type fake struct {
	dlt.Base

	name     string
	hlen     int
	pad      int
	src      dlt.L2Addr
	calls    *calls
	failInit bool
	requires dlt.Capability
}

func fakeDescriptor(id layers.LinkType, name string, hlen int, c *calls) dlt.Descriptor {
	return dlt.Descriptor{
		DLT:      id,
		Name:     name,
		Requires: dlt.CapProto,
		Provides: dlt.CapProto,
		AddrType: dlt.AddrUser,
		New: func() dlt.Plugin {
			return &fake{name: name, hlen: hlen, calls: c, requires: dlt.CapProto}
		},
	}
}

func (f *fake) Init(env dlt.Env) error {
	if f.failInit {
		return errors.New("init refused")
	}
	if f.calls != nil {
		f.calls.inits = append(f.calls.inits, f.name)
	}
	return f.Base.Init(env)
}

func (f *fake) Cleanup() error {
	if f.calls != nil {
		f.calls.cleanups = append(f.calls.cleanups, f.name)
	}
	return nil
}

// ParseOptions accepts "pad" (extra header bytes on encode) and "fail".
func (f *fake) ParseOptions(opts map[string]any) error {
	for k, v := range opts {
		switch k {
		case "pad":
			f.pad = v.(int)
		case "fail":
			return dlt.BadOption(k, fmt.Errorf("asked to fail"))
		default:
			return dlt.BadOption(k, fmt.Errorf("unknown"))
		}
	}
	return nil
}

func (f *fake) Requires() dlt.Capability { return f.requires }

func (f *fake) Decode(st *dlt.State, pkt []byte) error {
	if len(pkt) < f.hlen {
		return dlt.Truncated(f.hlen, len(pkt))
	}
	if pkt[0] == 0xFF {
		return dlt.Malformed("reserved protocol byte")
	}
	st.SetProto(layers.EthernetType(binary.BigEndian.Uint16(pkt[0:2])))
	st.SetL2Len(f.hlen)
	st.SetSrcAddr(f.src)
	if f.hlen > 2 {
		return st.SetExtra(pkt[2:f.hlen])
	}
	return nil
}

func (f *fake) Encode(st *dlt.State, dir dlt.Direction, hdr []byte) (int, error) {
	extra := st.Extra()
	n := 2 + len(extra) + f.pad
	if len(hdr) < n {
		return 0, dlt.ErrBufferTooSmall
	}
	binary.BigEndian.PutUint16(hdr[0:2], uint16(st.Proto()))
	copy(hdr[2:], extra)
	for i := 2 + len(extra); i < n; i++ {
		hdr[i] = 0xEE
	}
	return n, nil
}

func (f *fake) Proto(pkt []byte) (layers.EthernetType, error) {
	if len(pkt) < 2 {
		return 0, dlt.Truncated(2, len(pkt))
	}
	return layers.EthernetType(binary.BigEndian.Uint16(pkt[0:2])), nil
}

func (f *fake) L2Len(pkt []byte) (int, error) {
	if len(pkt) < f.hlen {
		return 0, dlt.Truncated(f.hlen, len(pkt))
	}
	return f.hlen, nil
}
