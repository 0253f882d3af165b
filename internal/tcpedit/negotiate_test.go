package tcpedit

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"firestige.xyz/tcpedit/pkg/dlt"
)

func desc(name string, req, prov dlt.Capability, at dlt.AddrType) *dlt.Descriptor {
	return &dlt.Descriptor{Name: name, Requires: req, Provides: prov, AddrType: at}
}

func TestValidate(t *testing.T) {
	ether := desc("ether", dlt.CapAll, dlt.CapAll, dlt.AddrEthernet)
	sll := desc("sll", dlt.CapProto, dlt.CapProto|dlt.CapSrcAddr, dlt.AddrEthernet)
	hdlc := desc("hdlc", dlt.CapProto|dlt.CapDstAddr, dlt.CapProto|dlt.CapDstAddr, dlt.AddrCHDLC)
	user := desc("user", dlt.CapNone, dlt.CapNone, dlt.AddrUser)
	raw := desc("raw", dlt.CapProto, dlt.CapProto, dlt.AddrUser)

	t.Run("self pairing", func(t *testing.T) {
		for _, d := range []*dlt.Descriptor{ether, sll, hdlc, user, raw} {
			assert.NoError(t, Validate(d, d), d.Name)
		}
	})

	t.Run("missing bits reported", func(t *testing.T) {
		err := Validate(ether, sll)
		require.ErrorIs(t, err, dlt.ErrUnsatisfiedRequirement)
		var de *dlt.Error
		require.ErrorAs(t, err, &de)
		assert.Equal(t, dlt.CapDstAddr, de.Missing)
		assert.Equal(t, "ether", de.Plugin)

		err = Validate(ether, user)
		require.ErrorAs(t, err, &de)
		assert.Equal(t, dlt.CapAll, de.Missing)
		assert.Contains(t, err.Error(), "protocol field, source address, destination address")
	})

	t.Run("address representation must match", func(t *testing.T) {
		err := Validate(hdlc, ether)
		assert.ErrorIs(t, err, dlt.ErrAddressTypeMismatch)
	})

	t.Run("no address required", func(t *testing.T) {
		assert.NoError(t, Validate(raw, ether))
		assert.NoError(t, Validate(user, raw))
	})
}

func TestNegotiate_EffectiveRequirement(t *testing.T) {
	ether := desc("ether", dlt.CapAll, dlt.CapAll, dlt.AddrEthernet)
	raw := desc("raw", dlt.CapProto, dlt.CapProto, dlt.AddrUser)

	assert.Error(t, negotiate(ether, ether.Requires, raw))
	// An encoder configured with both addresses only needs the protocol.
	assert.NoError(t, negotiate(ether, dlt.CapProto, raw))
}
