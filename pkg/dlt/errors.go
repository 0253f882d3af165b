package dlt

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/gopacket/layers"
)

var (
	// Registry errors
	ErrDuplicateDLT  = errors.New("tcpedit: duplicate DLT")
	ErrDuplicateName = errors.New("tcpedit: duplicate plugin name")
	ErrNotFound      = errors.New("tcpedit: plugin not found")

	// Negotiation errors, fatal at session setup
	ErrUnsatisfiedRequirement = errors.New("tcpedit: encoder requirement not provided by decoder")
	ErrAddressTypeMismatch    = errors.New("tcpedit: address type mismatch")

	// Per-packet errors
	ErrDecode = errors.New("tcpedit: decode failed")
	ErrEncode = errors.New("tcpedit: encode failed")

	// ErrState is a caller bug: an operation was invoked out of lifecycle order.
	ErrState = errors.New("tcpedit: operation out of lifecycle order")

	// Plugin-level causes, wrapped by the kinds above
	ErrTruncated      = errors.New("tcpedit: packet too short")
	ErrMalformed      = errors.New("tcpedit: malformed header")
	ErrBadOption      = errors.New("tcpedit: invalid plugin option")
	ErrExtraTooLarge  = errors.New("tcpedit: L2 extra data too large")
	ErrBufferTooSmall = errors.New("tcpedit: buffer too small")
	ErrUnsupported    = errors.New("tcpedit: not supported by plugin")
)

// Error carries the failing plugin and the capability bits or byte offset
// involved. It matches both its Kind and its cause with errors.Is.
type Error struct {
	Kind    error
	Op      string
	Plugin  string
	DLT     layers.LinkType
	Missing Capability
	Offset  int // -1 if not applicable
	Err     error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Kind.Error())
	if e.Op != "" {
		b.WriteString(" in ")
		b.WriteString(e.Op)
	}
	if e.Plugin != "" {
		fmt.Fprintf(&b, ": plugin %s (DLT %d)", e.Plugin, int(e.DLT))
	}
	if e.Missing != CapNone {
		b.WriteString(": missing ")
		b.WriteString(strings.Join(e.Missing.Describe(), ", "))
	}
	if e.Offset >= 0 {
		fmt.Fprintf(&b, " at offset %d", e.Offset)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// TruncatedError reports a header that ran past the end of the buffer.
type TruncatedError struct {
	Need int
	Have int
}

// Truncated returns a *TruncatedError matching ErrTruncated.
func Truncated(need, have int) error {
	return &TruncatedError{Need: need, Have: have}
}

func (e *TruncatedError) Error() string {
	return fmt.Sprintf("%s: need %d bytes, have %d", ErrTruncated, e.Need, e.Have)
}

func (e *TruncatedError) Is(target error) bool {
	return target == ErrTruncated
}

// Malformed wraps ErrMalformed with detail.
func Malformed(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrMalformed, fmt.Sprintf(format, args...))
}

// BadOption wraps ErrBadOption with the option name.
func BadOption(name string, err error) error {
	return fmt.Errorf("%w %q: %v", ErrBadOption, name, err)
}
