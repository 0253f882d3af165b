package tcpedit

import (
	"fmt"

	"firestige.xyz/tcpedit/pkg/dlt"
)

const addrCaps = dlt.CapSrcAddr | dlt.CapDstAddr

// Validate checks the static masks of an encoder/decoder pair: every field
// the encoder may require must be provided by the decoder.
func Validate(encoder, decoder *dlt.Descriptor) error {
	return negotiate(encoder, encoder.Requires, decoder)
}

// negotiate checks requires (the encoder's effective mask) against the
// decoder. Addresses can only be carried over between plugins sharing an
// address representation.
func negotiate(encoder *dlt.Descriptor, requires dlt.Capability, decoder *dlt.Descriptor) error {
	if missing := requires.Missing(decoder.Provides); missing != dlt.CapNone {
		return &dlt.Error{
			Kind:    dlt.ErrUnsatisfiedRequirement,
			Op:      "negotiate",
			Plugin:  encoder.Name,
			DLT:     encoder.DLT,
			Missing: missing,
			Offset:  -1,
			Err:     fmt.Errorf("decoder %s provides %s", decoder, decoder.Provides),
		}
	}
	if requires&addrCaps != dlt.CapNone && encoder.AddrType != decoder.AddrType {
		return &dlt.Error{
			Kind:   dlt.ErrAddressTypeMismatch,
			Op:     "negotiate",
			Plugin: encoder.Name,
			DLT:    encoder.DLT,
			Offset: -1,
			Err: fmt.Errorf("encoder expects %s addresses, decoder %s yields %s",
				encoder.AddrType, decoder, decoder.AddrType),
		}
	}
	return nil
}
