package tcpedit

import (
	"fmt"
	"runtime"
	"strings"
)

// AlignMode selects whether layer 3 payloads are copied into an aligned
// scratch buffer before being handed to the L3 rewriter.
type AlignMode string

const (
	AlignAuto AlignMode = "auto"
	AlignOn   AlignMode = "on"
	AlignOff  AlignMode = "off"
)

// strictAlignArch lists GOARCH values that fault or trap on unaligned
// word loads.
var strictAlignArch = map[string]bool{
	"arm":      true,
	"mips":     true,
	"mipsle":   true,
	"mips64":   true,
	"mips64le": true,
	"ppc64":    true,
	"sparc64":  true,
}

func ParseAlignMode(s string) (AlignMode, error) {
	switch m := AlignMode(strings.ToLower(s)); m {
	case "", AlignAuto:
		return AlignAuto, nil
	case AlignOn, "true", "yes":
		return AlignOn, nil
	case AlignOff, "false", "no":
		return AlignOff, nil
	}
	return AlignAuto, fmt.Errorf("invalid force_align %q (must be auto/on/off)", s)
}

func (m AlignMode) enabled(goarch string) bool {
	switch m {
	case AlignOn:
		return true
	case AlignOff:
		return false
	}
	return strictAlignArch[goarch]
}

// scratchSize covers the largest pcap snaplen.
const scratchSize = 65535

// aligner owns the realignment scratch buffer. Go allocations are at least
// word aligned, so the start of buf is a safe base for any L3 header.
type aligner struct {
	buf []byte
}

func newAligner() *aligner {
	return &aligner{buf: make([]byte, scratchSize)}
}

func (a *aligner) load(l3 []byte) []byte {
	if len(l3) > len(a.buf) {
		a.buf = make([]byte, len(l3))
	}
	n := copy(a.buf, l3)
	return a.buf[:n]
}

func alignFor(m AlignMode) *aligner {
	if m.enabled(runtime.GOARCH) {
		return newAligner()
	}
	return nil
}
