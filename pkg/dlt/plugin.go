package dlt

import (
	"fmt"
	"slices"
	"strings"

	"github.com/google/gopacket/layers"
	"github.com/mitchellh/mapstructure"

	ilog "firestige.xyz/tcpedit/internal/log"
	"firestige.xyz/tcpedit/pkg/log"
)

// LinkTypeUser0 is DLT_USER0; gopacket has no constant for the user range.
const (
	LinkTypeUser0  layers.LinkType = 147
	LinkTypeUser15 layers.LinkType = 162
)

// IsUserDLT reports whether t is one of DLT_USER0..DLT_USER15.
func IsUserDLT(t layers.LinkType) bool {
	return t >= LinkTypeUser0 && t <= LinkTypeUser15
}

// Direction of a packet relative to the client/server split of the capture.
type Direction int

const (
	DirUnknown Direction = iota
	DirClientToServer
	DirServerToClient
)

func (d Direction) String() string {
	switch d {
	case DirClientToServer:
		return "c2s"
	case DirServerToClient:
		return "s2c"
	default:
		return "none"
	}
}

// ParseDirection accepts "c2s", "s2c", "none" or "".
func ParseDirection(s string) (Direction, error) {
	switch strings.ToLower(s) {
	case "", "none", "unknown":
		return DirUnknown, nil
	case "c2s", "client", "client-to-server":
		return DirClientToServer, nil
	case "s2c", "server", "server-to-client":
		return DirServerToClient, nil
	}
	return DirUnknown, fmt.Errorf("invalid direction %q (must be c2s/s2c/none)", s)
}

// Env is the session policy handed to a plugin at Init.
type Env struct {
	SkipBroadcast bool
	OrigDLT       layers.LinkType
	Logger        log.Logger
}

// Plugin is one datalink codec. A fresh instance is created per session by
// its Descriptor; all private configuration lives on the instance.
//
// Encode writes only the link-layer header into hdr and returns its length.
// MergeLayer3 places l3 at buf[l2len:] and returns the combined length; buf
// and l3 may overlap.
type Plugin interface {
	Init(env Env) error
	Cleanup() error
	ParseOptions(opts map[string]any) error

	// Requires is the effective requirement mask after ParseOptions.
	Requires() Capability

	Decode(st *State, pkt []byte) error
	Encode(st *State, dir Direction, hdr []byte) (int, error)
	Proto(pkt []byte) (layers.EthernetType, error)
	L2Len(pkt []byte) (int, error)
	GetLayer3(st *State, pkt []byte) ([]byte, error)
	MergeLayer3(buf []byte, l2len int, l3 []byte) (int, error)
}

// OutputDLT is implemented by encoders whose output DLT depends on options.
type OutputDLT interface {
	OutputDLT() layers.LinkType
}

// Descriptor is the static metadata of a plugin plus its factory.
type Descriptor struct {
	DLT         layers.LinkType
	Name        string
	Description string
	Requires    Capability // upper bound; see Plugin.Requires
	Provides    Capability
	AddrType    AddrType
	New         func() Plugin
}

func (d *Descriptor) String() string {
	return fmt.Sprintf("%s(DLT %d)", d.Name, int(d.DLT))
}

// Validate checks the descriptor is usable. A plugin that requires more than
// it provides cannot be paired with itself.
func (d *Descriptor) Validate() error {
	if d.Name == "" {
		return fmt.Errorf("descriptor for DLT %d has no name", int(d.DLT))
	}
	if d.New == nil {
		return fmt.Errorf("descriptor %s has no factory", d)
	}
	if missing := d.Requires.Missing(d.Provides); missing != CapNone {
		return fmt.Errorf("descriptor %s requires %s but only provides %s", d, missing, d.Provides)
	}
	return nil
}

var builtins []Descriptor

// RegisterBuiltin records a compiled-in plugin. Called from plugin init().
func RegisterBuiltin(d Descriptor) {
	builtins = append(builtins, d)
}

// Builtins returns the compiled-in plugins in registration order.
func Builtins() []Descriptor {
	return slices.Clone(builtins)
}

// DecodeOptions decodes a plugin's option map into out, rejecting unknown keys.
func DecodeOptions(opts map[string]any, out any) error {
	if len(opts) == 0 {
		return nil
	}
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		WeaklyTypedInput: true,
		ErrorUnused:      true,
		TagName:          "mapstructure",
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(opts); err != nil {
		return fmt.Errorf("%w: %v", ErrBadOption, err)
	}
	return nil
}

// Base supplies the common no-op and slice-based behaviour. Plugins embed it
// and override what they need.
type Base struct {
	Env Env
}

func (b *Base) Init(env Env) error {
	b.Env = env
	return nil
}

func (b *Base) Cleanup() error { return nil }

func (b *Base) ParseOptions(opts map[string]any) error {
	for k := range opts {
		return BadOption(k, fmt.Errorf("plugin takes no options"))
	}
	return nil
}

func (b *Base) GetLayer3(st *State, pkt []byte) ([]byte, error) {
	if len(pkt) < st.L2Len() {
		return nil, Truncated(st.L2Len(), len(pkt))
	}
	return pkt[st.L2Len():], nil
}

func (b *Base) MergeLayer3(buf []byte, l2len int, l3 []byte) (int, error) {
	if len(buf) < l2len+len(l3) {
		return 0, fmt.Errorf("%w: need %d bytes, have %d", ErrBufferTooSmall, l2len+len(l3), len(buf))
	}
	copy(buf[l2len:], l3)
	return l2len + len(l3), nil
}

// Logger returns the session logger, or the global one.
func (b *Base) Logger() log.Logger {
	if b.Env.Logger != nil {
		return b.Env.Logger
	}
	return ilog.GetLogger()
}
