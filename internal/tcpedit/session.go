package tcpedit

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/google/gopacket/layers"

	"firestige.xyz/tcpedit/internal/log"
	"firestige.xyz/tcpedit/internal/metrics"
	"firestige.xyz/tcpedit/pkg/dlt"
)

// Phase is the lifecycle state of a Session.
type Phase int

const (
	PhaseUnconfigured Phase = iota
	PhaseConfigured
	PhaseReady
	PhaseDecoded
	PhaseEncoded
	PhaseClosed
)

func (p Phase) String() string {
	switch p {
	case PhaseUnconfigured:
		return "unconfigured"
	case PhaseConfigured:
		return "configured"
	case PhaseReady:
		return "ready"
	case PhaseDecoded:
		return "decoded"
	case PhaseEncoded:
		return "encoded"
	case PhaseClosed:
		return "closed"
	default:
		return fmt.Sprintf("Phase(%d)", int(p))
	}
}

// maxHeaderLen bounds any encoded link-layer header: a fixed header plus a
// full extra slot.
const maxHeaderLen = 64 + dlt.MaxExtraLen

// Config selects and configures the plugins of a session.
type Config struct {
	Decoder       string // plugin name or numeric DLT
	Encoder       string // empty means same as Decoder
	SkipBroadcast bool
	ForceAlign    AlignMode
	Options       map[string]map[string]any // plugin name -> options
	Logger        log.Logger

	// InputDLT is the link type of the capture when known. It only matters
	// for decoders serving a DLT range, such as DLT_USER0..15.
	InputDLT layers.LinkType
}

// Session is one rewriting context: the selected decoder and encoder and
// the per-packet decode state. A Session must not be shared between
// goroutines.
type Session struct {
	log   log.Logger
	phase Phase

	decDesc *dlt.Descriptor
	encDesc *dlt.Descriptor
	origDLT layers.LinkType
	decoder dlt.Plugin
	encoder dlt.Plugin

	// initialized holds plugins in Init order; Close cleans up in reverse.
	initialized []dlt.Plugin
	encRequires dlt.Capability

	state dlt.State
	align *aligner
	hdr   [maxHeaderLen]byte
}

// Open selects, initializes and configures the decoder and encoder, then
// negotiates their capabilities. On any failure every plugin initialized
// so far is cleaned up before the error is returned.
func Open(reg *Registry, cfg Config) (*Session, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = log.GetLogger()
	}
	s := &Session{log: logger, phase: PhaseUnconfigured}

	if err := s.configure(reg, cfg); err != nil {
		return nil, s.abort(err)
	}
	if err := s.negotiate(); err != nil {
		return nil, s.abort(err)
	}
	return s, nil
}

func (s *Session) abort(err error) error {
	if cerr := s.Close(); cerr != nil {
		return errors.Join(err, cerr)
	}
	return err
}

func (s *Session) configure(reg *Registry, cfg Config) error {
	if cfg.Decoder == "" {
		return fmt.Errorf("%w: no decoder selected", dlt.ErrNotFound)
	}
	decDesc, err := reg.Lookup(cfg.Decoder)
	if err != nil {
		return fmt.Errorf("select decoder: %w", err)
	}
	encDesc := decDesc
	if cfg.Encoder != "" {
		if encDesc, err = reg.Lookup(cfg.Encoder); err != nil {
			return fmt.Errorf("select encoder: %w", err)
		}
	}
	s.decDesc, s.encDesc = decDesc, encDesc
	s.origDLT = inputDLT(cfg, decDesc)

	env := dlt.Env{
		SkipBroadcast: cfg.SkipBroadcast,
		OrigDLT:       s.origDLT,
		Logger:        s.log,
	}

	if s.decoder, err = s.initPlugin(decDesc, env, cfg.Options); err != nil {
		return err
	}
	if encDesc == decDesc {
		s.encoder = s.decoder
	} else if s.encoder, err = s.initPlugin(encDesc, env, cfg.Options); err != nil {
		return err
	}

	s.state.SetAddrType(decDesc.AddrType)
	s.align = alignFor(cfg.ForceAlign)
	s.phase = PhaseConfigured
	return nil
}

// inputDLT narrows a user-range decoder to the DLT actually being read:
// Config.InputDLT, else a numeric decoder reference.
func inputDLT(cfg Config, decDesc *dlt.Descriptor) layers.LinkType {
	if !dlt.IsUserDLT(decDesc.DLT) {
		return decDesc.DLT
	}
	if dlt.IsUserDLT(cfg.InputDLT) {
		return cfg.InputDLT
	}
	if n, err := strconv.ParseUint(cfg.Decoder, 10, 16); err == nil && dlt.IsUserDLT(layers.LinkType(n)) {
		return layers.LinkType(n)
	}
	return decDesc.DLT
}

func (s *Session) initPlugin(d *dlt.Descriptor, env dlt.Env, options map[string]map[string]any) (dlt.Plugin, error) {
	p := d.New()
	env.Logger = s.log.WithField("plugin", d.Name)
	if err := p.Init(env); err != nil {
		return nil, fmt.Errorf("init plugin %s: %w", d, err)
	}
	s.initialized = append(s.initialized, p)

	if err := p.ParseOptions(options[d.Name]); err != nil {
		return nil, fmt.Errorf("parse options for plugin %s: %w", d, err)
	}
	return p, nil
}

// negotiate runs after every option has been parsed so the encoder's
// effective requirements are final.
func (s *Session) negotiate() error {
	if s.phase != PhaseConfigured {
		return s.stateError("negotiate")
	}
	s.encRequires = s.encoder.Requires()
	if err := negotiate(s.encDesc, s.encRequires, s.decDesc); err != nil {
		return err
	}
	s.phase = PhaseReady

	s.log.WithFields(map[string]interface{}{
		"decoder":  s.decDesc.String(),
		"encoder":  s.encDesc.String(),
		"requires": s.encRequires.String(),
		"provides": s.decDesc.Provides.String(),
		"align":    s.align != nil,
	}).Info("datalink plugins negotiated")
	return nil
}

// Close cleans up every initialized plugin exactly once. It is safe on a
// partially configured session and idempotent.
func (s *Session) Close() error {
	if s.phase == PhaseClosed {
		return nil
	}
	var errs []error
	for i := len(s.initialized) - 1; i >= 0; i-- {
		if err := s.initialized[i].Cleanup(); err != nil {
			errs = append(errs, err)
		}
	}
	s.initialized = nil
	s.decoder, s.encoder = nil, nil
	s.state.Reset()
	s.align = nil
	s.phase = PhaseClosed
	if len(errs) > 0 {
		return fmt.Errorf("cleanup: %w", errors.Join(errs...))
	}
	return nil
}

// Decode parses the link-layer header of pkt into the session state. On
// failure the state is left empty and the session can decode again.
func (s *Session) Decode(pkt []byte) error {
	if err := s.requirePhase("decode", PhaseReady, PhaseDecoded, PhaseEncoded); err != nil {
		return err
	}
	s.state.Reset()
	s.phase = PhaseReady

	if err := s.decoder.Decode(&s.state, pkt); err != nil {
		s.state.Reset()
		return s.packetError(dlt.ErrDecode, metrics.OpDecode, s.decDesc, err)
	}
	if l2 := s.state.L2Len(); l2 < 0 || l2 > len(pkt) {
		s.state.Reset()
		return s.packetError(dlt.ErrDecode, metrics.OpDecode, s.decDesc,
			dlt.Malformed("header length %d for %d byte packet", l2, len(pkt)))
	}
	if err := s.checkDecodedAddrs(); err != nil {
		s.state.Reset()
		return err
	}

	s.phase = PhaseDecoded
	metrics.DLTPacketsTotal.WithLabelValues(s.decDesc.Name, metrics.OpDecode).Inc()
	return nil
}

// checkDecodedAddrs enforces that the decoder filled addresses of its own
// declared representation.
func (s *Session) checkDecodedAddrs() error {
	for _, a := range []dlt.L2Addr{s.state.SrcAddr(), s.state.DstAddr()} {
		if a != nil && a.AddrType() != s.decDesc.AddrType {
			return s.packetError(dlt.ErrAddressTypeMismatch, metrics.OpDecode, s.decDesc,
				fmt.Errorf("decoder produced %s address, declared %s", a.AddrType(), s.decDesc.AddrType))
		}
	}
	return nil
}

// Proto returns the upper-layer protocol of pkt without a full decode.
func (s *Session) Proto(pkt []byte) (layers.EthernetType, error) {
	if err := s.requirePhase(metrics.OpProto, PhaseReady, PhaseDecoded, PhaseEncoded); err != nil {
		return 0, err
	}
	p, err := s.decoder.Proto(pkt)
	if err != nil {
		return 0, s.packetError(dlt.ErrDecode, metrics.OpProto, s.decDesc, err)
	}
	return p, nil
}

// L2Len returns the link-layer header length of pkt without a full decode.
func (s *Session) L2Len(pkt []byte) (int, error) {
	if err := s.requirePhase(metrics.OpL2Len, PhaseReady, PhaseDecoded, PhaseEncoded); err != nil {
		return 0, err
	}
	n, err := s.decoder.L2Len(pkt)
	if err != nil {
		return 0, s.packetError(dlt.ErrDecode, metrics.OpL2Len, s.decDesc, err)
	}
	return n, nil
}

// GetLayer3 returns the layer 3 payload of the packet last decoded. It
// begins State().L2Len() bytes into pkt, or is a copy of that region in the
// session's aligned scratch buffer when alignment is forced.
func (s *Session) GetLayer3(pkt []byte) ([]byte, error) {
	if err := s.requirePhase(metrics.OpLayer3, PhaseDecoded); err != nil {
		return nil, err
	}
	l3, err := s.decoder.GetLayer3(&s.state, pkt)
	if err != nil {
		return nil, s.packetError(dlt.ErrDecode, metrics.OpLayer3, s.decDesc, err)
	}
	if s.align != nil {
		l3 = s.align.load(l3)
	}
	return l3, nil
}

// Encode writes the encoder's link-layer header for the decoded packet
// followed by l3 into buf and returns the total length. buf may be the
// decoded packet itself and l3 may alias it.
func (s *Session) Encode(buf []byte, dir dlt.Direction, l3 []byte) (int, error) {
	return s.encode(metrics.OpEncode, buf, dir, l3)
}

// MergeLayer3 is Encode without a direction; direction-keyed address
// policies of the encoder fall back to their defaults.
func (s *Session) MergeLayer3(buf []byte, l3 []byte) (int, error) {
	return s.encode(metrics.OpMerge, buf, dlt.DirUnknown, l3)
}

func (s *Session) encode(op string, buf []byte, dir dlt.Direction, l3 []byte) (int, error) {
	if err := s.requirePhase(op, PhaseDecoded); err != nil {
		return 0, err
	}

	if missing := s.encRequires.Missing(s.state.Provided()); missing != dlt.CapNone {
		err := s.packetError(dlt.ErrEncode, op, s.encDesc, dlt.ErrUnsatisfiedRequirement)
		err.Missing = missing
		return 0, err
	}
	if s.encRequires&addrCaps != dlt.CapNone && s.state.AddrType() != s.encDesc.AddrType {
		return 0, s.packetError(dlt.ErrAddressTypeMismatch, op, s.encDesc,
			fmt.Errorf("state holds %s addresses, encoder expects %s", s.state.AddrType(), s.encDesc.AddrType))
	}

	n, err := s.encoder.Encode(&s.state, dir, s.hdr[:])
	if err != nil {
		return 0, s.packetError(dlt.ErrEncode, op, s.encDesc, err)
	}
	if n+len(l3) > len(buf) {
		return 0, s.packetError(dlt.ErrEncode, op, s.encDesc,
			fmt.Errorf("%w: need %d bytes, have %d", dlt.ErrBufferTooSmall, n+len(l3), len(buf)))
	}

	// Move the payload first: a header longer than the decoded one would
	// otherwise overwrite the start of an aliased l3.
	total, err := s.encoder.MergeLayer3(buf, n, l3)
	if err != nil {
		return 0, s.packetError(dlt.ErrEncode, op, s.encDesc, err)
	}
	copy(buf[:n], s.hdr[:n])

	s.phase = PhaseEncoded
	metrics.DLTPacketsTotal.WithLabelValues(s.encDesc.Name, op).Inc()
	return total, nil
}

func (s *Session) requirePhase(op string, allowed ...Phase) error {
	for _, p := range allowed {
		if s.phase == p {
			return nil
		}
	}
	return s.stateError(op)
}

func (s *Session) stateError(op string) error {
	return &dlt.Error{
		Kind:   dlt.ErrState,
		Op:     op,
		Offset: -1,
		Err:    fmt.Errorf("session is %s", s.phase),
	}
}

func (s *Session) packetError(kind error, op string, d *dlt.Descriptor, cause error) *dlt.Error {
	e := &dlt.Error{
		Kind:   kind,
		Op:     op,
		Plugin: d.Name,
		DLT:    d.DLT,
		Offset: -1,
		Err:    cause,
	}
	var trunc *dlt.TruncatedError
	if errors.As(cause, &trunc) {
		e.Offset = trunc.Have
	}

	metrics.DLTErrorsTotal.WithLabelValues(d.Name, op).Inc()
	if s.log.IsDebugEnabled() {
		s.log.WithError(e).Debug("datalink operation failed")
	}
	return e
}

// Phase reports the lifecycle state.
func (s *Session) Phase() Phase { return s.phase }

// State returns a snapshot of the current per-packet decode state.
// Changes to the snapshot do not reach the session.
func (s *Session) State() *dlt.State {
	st := s.state
	return &st
}

func (s *Session) Decoder() *dlt.Descriptor { return s.decDesc }
func (s *Session) Encoder() *dlt.Descriptor { return s.encDesc }

// AddrType is the address representation of the active decoder.
func (s *Session) AddrType() dlt.AddrType { return s.decDesc.AddrType }

// OrigDLT is the DLT of the input packets.
func (s *Session) OrigDLT() layers.LinkType { return s.origDLT }

// OutDLT is the DLT of the encoded packets.
func (s *Session) OutDLT() layers.LinkType {
	if o, ok := s.encoder.(dlt.OutputDLT); ok {
		return o.OutputDLT()
	}
	return s.encDesc.DLT
}

// Requires is the encoder's effective requirement mask.
func (s *Session) Requires() dlt.Capability { return s.encRequires }
