package tcpedit_test

import (
	"net"
	"testing"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"firestige.xyz/tcpedit/internal/tcpedit"
	"firestige.xyz/tcpedit/pkg/dlt"
	_ "firestige.xyz/tcpedit/plugins/dlt/all"
)

func builtinRegistry(t *testing.T) *tcpedit.Registry {
	t.Helper()
	r, err := tcpedit.NewBuiltinRegistry()
	require.NoError(t, err)
	return r
}

func ethernetFrame(t *testing.T, src, dst string, tags ...uint16) []byte {
	t.Helper()
	s, _ := net.ParseMAC(src)
	d, _ := net.ParseMAC(dst)
	ls := []gopacket.SerializableLayer{}
	eth := &layers.Ethernet{SrcMAC: s, DstMAC: d, EthernetType: layers.EthernetTypeIPv4}
	if len(tags) > 0 {
		eth.EthernetType = layers.EthernetTypeDot1Q
	}
	ls = append(ls, eth)
	for i, tag := range tags {
		next := layers.EthernetTypeDot1Q
		if i == len(tags)-1 {
			next = layers.EthernetTypeIPv4
		}
		ls = append(ls, &layers.Dot1Q{VLANIdentifier: tag, Type: next})
	}
	ls = append(ls, &layers.IPv4{
		Version:  4,
		IHL:      5,
		TTL:      64,
		Protocol: layers.IPProtocolUDP,
		SrcIP:    net.IPv4(192, 0, 2, 1),
		DstIP:    net.IPv4(192, 0, 2, 2),
	}, gopacket.Payload([]byte("payload")))

	buf := gopacket.NewSerializeBuffer()
	require.NoError(t, gopacket.SerializeLayers(buf, gopacket.SerializeOptions{FixLengths: true}, ls...))
	return buf.Bytes()
}

func TestBuiltins_SelfPairing(t *testing.T) {
	r := builtinRegistry(t)
	require.NotZero(t, r.Len())
	for _, d := range r.List() {
		assert.NoError(t, tcpedit.Validate(d, d), d.String())

		s, err := tcpedit.Open(r, tcpedit.Config{Decoder: d.Name})
		require.NoError(t, err, d.String())
		assert.NoError(t, s.Close())
	}
}

func TestEthernetPassthrough(t *testing.T) {
	s, err := tcpedit.Open(builtinRegistry(t), tcpedit.Config{Decoder: "en10mb", ForceAlign: tcpedit.AlignOff})
	require.NoError(t, err)
	defer s.Close()

	pkt := ethernetFrame(t, "aa:bb:cc:dd:ee:ff", "02:11:22:33:44:55")
	orig := append([]byte(nil), pkt...)

	require.NoError(t, s.Decode(pkt))
	st := s.State()
	assert.Equal(t, "aa:bb:cc:dd:ee:ff", st.SrcAddr().String())
	assert.Equal(t, "02:11:22:33:44:55", st.DstAddr().String())
	assert.Equal(t, layers.EthernetTypeIPv4, st.Proto())
	assert.Equal(t, 14, st.L2Len())

	l3, err := s.GetLayer3(pkt)
	require.NoError(t, err)
	n, err := s.Encode(pkt, dlt.DirClientToServer, l3)
	require.NoError(t, err)
	assert.Equal(t, orig, pkt[:n])
}

func TestSkipBroadcast(t *testing.T) {
	s, err := tcpedit.Open(builtinRegistry(t), tcpedit.Config{
		Decoder:       "en10mb",
		SkipBroadcast: true,
		Options: map[string]map[string]any{
			"en10mb": {"dmac": "00:00:00:00:00:01"},
		},
	})
	require.NoError(t, err)
	defer s.Close()

	pkt := ethernetFrame(t, "aa:bb:cc:dd:ee:ff", "ff:ff:ff:ff:ff:ff")
	require.NoError(t, s.Decode(pkt))
	l3, err := s.GetLayer3(pkt)
	require.NoError(t, err)
	out := make([]byte, len(pkt))
	n, err := s.Encode(out, dlt.DirClientToServer, l3)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xff, 0xff, 0xff, 0xff, 0xff, 0xff}, out[:6])

	pkt = ethernetFrame(t, "aa:bb:cc:dd:ee:ff", "02:11:22:33:44:55")
	require.NoError(t, s.Decode(pkt))
	l3, err = s.GetLayer3(pkt)
	require.NoError(t, err)
	n, err = s.Encode(out, dlt.DirClientToServer, l3)
	require.NoError(t, err)
	assert.Equal(t, []byte{0, 0, 0, 0, 0, 1}, out[:6])
	assert.Equal(t, len(pkt), n)
}

func TestUserToEthernet_Unsatisfied(t *testing.T) {
	_, err := tcpedit.Open(builtinRegistry(t), tcpedit.Config{Decoder: "user", Encoder: "en10mb"})
	require.ErrorIs(t, err, dlt.ErrUnsatisfiedRequirement)

	var de *dlt.Error
	require.ErrorAs(t, err, &de)
	assert.Equal(t, dlt.CapAll, de.Missing)
	assert.Equal(t, "en10mb", de.Plugin)
	assert.Contains(t, err.Error(), "protocol field, source address, destination address")
}

func TestEthernetToHDLC(t *testing.T) {
	s, err := tcpedit.Open(builtinRegistry(t), tcpedit.Config{Decoder: "en10mb", Encoder: "chdlc"})
	require.NoError(t, err)
	defer s.Close()
	assert.Equal(t, layers.LinkTypeC_HDLC, s.OutDLT())

	pkt := ethernetFrame(t, "aa:bb:cc:dd:ee:ff", "02:11:22:33:44:55")
	require.NoError(t, s.Decode(pkt))
	l3, err := s.GetLayer3(pkt)
	require.NoError(t, err)
	n, err := s.Encode(pkt, dlt.DirUnknown, l3)
	require.NoError(t, err)
	assert.Equal(t, len(pkt)-10, n)
	assert.Equal(t, []byte{0x0F, 0x00, 0x08, 0x00}, pkt[:4])

	out := gopacket.NewPacket(pkt[4:n], layers.LayerTypeIPv4, gopacket.Default)
	assert.NotNil(t, out.Layer(layers.LayerTypeIPv4))
	assert.Nil(t, out.ErrorLayer())

	// A multicast destination maps to the HDLC broadcast address.
	pkt = ethernetFrame(t, "aa:bb:cc:dd:ee:ff", "01:00:5e:00:00:fb")
	require.NoError(t, s.Decode(pkt))
	l3, err = s.GetLayer3(pkt)
	require.NoError(t, err)
	_, err = s.Encode(pkt, dlt.DirUnknown, l3)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x8F, 0x00, 0x08, 0x00}, pkt[:4])
}

func TestEthernetToSLL_NeedsDMACOnlyForEthernet(t *testing.T) {
	r := builtinRegistry(t)

	_, err := tcpedit.Open(r, tcpedit.Config{Decoder: "linuxsll", Encoder: "en10mb"})
	assert.ErrorIs(t, err, dlt.ErrUnsatisfiedRequirement)

	s, err := tcpedit.Open(r, tcpedit.Config{
		Decoder: "linuxsll",
		Encoder: "en10mb",
		Options: map[string]map[string]any{"en10mb": {"dmac": "02:00:00:00:00:01"}},
	})
	require.NoError(t, err)
	assert.NoError(t, s.Close())
}

func TestStaleExtraNotCarried(t *testing.T) {
	s, err := tcpedit.Open(builtinRegistry(t), tcpedit.Config{Decoder: "en10mb"})
	require.NoError(t, err)
	defer s.Close()

	tagged := ethernetFrame(t, "aa:bb:cc:dd:ee:ff", "02:11:22:33:44:55", 10)
	require.NoError(t, s.Decode(tagged))
	assert.Len(t, s.State().Extra(), 4)

	plain := ethernetFrame(t, "aa:bb:cc:dd:ee:ff", "02:11:22:33:44:55")
	orig := append([]byte(nil), plain...)
	require.NoError(t, s.Decode(plain))
	assert.Nil(t, s.State().Extra())

	l3, err := s.GetLayer3(plain)
	require.NoError(t, err)
	n, err := s.MergeLayer3(plain, l3)
	require.NoError(t, err)
	assert.Equal(t, orig, plain[:n], "no VLAN tag from the previous packet")
}

func TestVLANAddInPlace(t *testing.T) {
	s, err := tcpedit.Open(builtinRegistry(t), tcpedit.Config{
		Decoder: "en10mb",
		Options: map[string]map[string]any{"en10mb": {"vlan": "add", "vlan_tag": 5}},
	})
	require.NoError(t, err)
	defer s.Close()

	frame := ethernetFrame(t, "aa:bb:cc:dd:ee:ff", "02:11:22:33:44:55")
	buf := make([]byte, len(frame)+4)
	copy(buf, frame)
	pkt := buf[:len(frame)]

	require.NoError(t, s.Decode(pkt))
	l3, err := s.GetLayer3(pkt)
	require.NoError(t, err)
	want := append([]byte(nil), l3...)

	n, err := s.Encode(buf, dlt.DirUnknown, l3)
	require.NoError(t, err)
	assert.Equal(t, len(frame)+4, n)
	assert.Equal(t, want, buf[18:n])

	out := gopacket.NewPacket(buf[:n], layers.LayerTypeEthernet, gopacket.Default)
	tag, ok := out.Layer(layers.LayerTypeDot1Q).(*layers.Dot1Q)
	require.True(t, ok)
	assert.Equal(t, uint16(5), tag.VLANIdentifier)
}

func TestUserRangeKeepsInputDLT(t *testing.T) {
	r := builtinRegistry(t)

	tests := []struct {
		name    string
		cfg     tcpedit.Config
		decoder string
		orig    layers.LinkType
		out     layers.LinkType
	}{
		{"numeric decoder", tcpedit.Config{Decoder: "152"}, "user", 152, 152},
		{"named decoder", tcpedit.Config{Decoder: "user"}, "user", dlt.LinkTypeUser0, dlt.LinkTypeUser0},
		{"named decoder with input DLT", tcpedit.Config{Decoder: "user", InputDLT: 150}, "user", 150, 150},
		{"dlt option wins", tcpedit.Config{
			Decoder: "148",
			Options: map[string]map[string]any{"user": {"dlt": 160}},
		}, "user", 148, 160},
		{"input DLT ignored outside the range", tcpedit.Config{Decoder: "en10mb", InputDLT: 150},
			"en10mb", layers.LinkTypeEthernet, layers.LinkTypeEthernet},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := tcpedit.Open(r, tt.cfg)
			require.NoError(t, err)
			defer s.Close()
			assert.Equal(t, tt.decoder, s.Decoder().Name)
			assert.Equal(t, tt.orig, s.OrigDLT())
			assert.Equal(t, tt.out, s.OutDLT())
		})
	}
}
