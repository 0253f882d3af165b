package dlt

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCapability_Missing(t *testing.T) {
	tests := []struct {
		name     string
		requires Capability
		provides Capability
		want     Capability
	}{
		{"none required", CapNone, CapNone, CapNone},
		{"all provided", CapAll, CapAll, CapNone},
		{"nothing provided", CapAll, CapNone, CapAll},
		{"proto only", CapAll, CapProto, CapSrcAddr | CapDstAddr},
		{"superset provided", CapProto, CapProto | CapDstAddr, CapNone},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.requires.Missing(tt.provides))
		})
	}
}

func TestCapability_Names(t *testing.T) {
	assert.Equal(t, "NONE", CapNone.String())
	assert.Equal(t, "PROTO|SRCADDR|DSTADDR", CapAll.String())
	assert.Equal(t, "SRCADDR|DSTADDR", (CapDstAddr | CapSrcAddr).String())
	assert.Equal(t, []string{"protocol field", "destination address"}, (CapProto | CapDstAddr).Describe())
	assert.Empty(t, CapNone.Names())
}

func TestCapability_Has(t *testing.T) {
	c := CapProto | CapSrcAddr
	assert.True(t, c.Has(CapProto))
	assert.True(t, c.Has(CapProto|CapSrcAddr))
	assert.False(t, c.Has(CapDstAddr))
	assert.False(t, c.Has(CapAll))
}
