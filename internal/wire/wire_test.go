package wire

import (
	"net"
	"testing"
)

func TestRoundTripDataMessage(t *testing.T) {
	cases := []DataMessage{
		{Kind: TagUnicastData, ID: 12345, HopCount: 3},
		{Kind: TagReliableData, ID: 1, HopCount: 255},
		{Kind: TagBroadcastData, ID: MaxID, TTL: 1},
	}
	for _, want := range cases {
		buf, err := Encode(want)
		if err != nil {
			t.Fatalf("encode: %v", err)
		}
		if len(buf) != 4 {
			t.Fatalf("data message must be 4 bytes, got %d", len(buf))
		}
		got, err := Decode(buf)
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		if got != want {
			t.Fatalf("round trip mismatch: want %+v, got %+v", want, got)
		}
	}
}

func TestRoundTripRREQ4(t *testing.T) {
	want := NewRREQ(42, 1, net.ParseIP("10.0.0.1"), net.ParseIP("10.0.0.2"))
	buf, err := Encode(want)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if len(buf) != 12 {
		t.Fatalf("RREQ4 must be 12 bytes, got %d", len(buf))
	}
	got, err := Decode(buf)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	gotR := got.(RouteMessage)
	if gotR.Kind != TagRREQ4 || gotR.ID != want.ID || gotR.HopCount != want.HopCount {
		t.Fatalf("round trip mismatch: want %+v, got %+v", want, gotR)
	}
	if !gotR.SrcIP.Equal(want.SrcIP) || !gotR.DstIP.Equal(want.DstIP) {
		t.Fatalf("address mismatch: want %s/%s, got %s/%s", want.SrcIP, want.DstIP, gotR.SrcIP, gotR.DstIP)
	}
}

func TestRoundTripRREP6(t *testing.T) {
	src := net.ParseIP("fd00::1")
	dst := net.ParseIP("fd00::2")
	want := NewRREP(7, 2, src, dst)
	if want.Kind != TagRREP6 {
		t.Fatalf("expected v6 layout, got %s", want.Kind)
	}
	buf, err := Encode(want)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if len(buf) != 36 {
		t.Fatalf("RREP6 must be 36 bytes, got %d", len(buf))
	}
	got, err := Decode(buf)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	gotR := got.(RouteMessage)
	if !gotR.SrcIP.Equal(src) || !gotR.DstIP.Equal(dst) {
		t.Fatalf("address mismatch: got %s/%s", gotR.SrcIP, gotR.DstIP)
	}
}

func TestDefaultRouteSentinelRidesAsZeroIPv6(t *testing.T) {
	want := NewRREP(1, 1, DefaultRouteSentinel, net.ParseIP("fd00::9"))
	if want.Kind != TagRREP6 {
		t.Fatalf("sentinel must ride the v6 layout, got %s", want.Kind)
	}
	buf, err := Encode(want)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	got, err := Decode(buf)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !got.(RouteMessage).SrcIP.Equal(DefaultRouteSentinel) {
		t.Fatalf("sentinel did not round trip: got %s", got.(RouteMessage).SrcIP)
	}
}

func TestRoundTripHello(t *testing.T) {
	want := HelloMessage{
		TxCount: 1000,
		GwMode:  true,
		IPv4:    net.ParseIP("192.168.1.5"),
		IPv6:    []net.IP{net.ParseIP("fd00::1"), net.ParseIP("fd00::2")},
	}
	buf, err := Encode(want)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if len(buf) != 4+4+16*2 {
		t.Fatalf("unexpected HELLO length %d", len(buf))
	}
	got, err := Decode(buf)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	gotH := got.(HelloMessage)
	if gotH.TxCount != want.TxCount || gotH.GwMode != want.GwMode {
		t.Fatalf("scalar mismatch: want %+v got %+v", want, gotH)
	}
	if !gotH.IPv4.Equal(want.IPv4) {
		t.Fatalf("ipv4 mismatch: want %s got %s", want.IPv4, gotH.IPv4)
	}
	if len(gotH.IPv6) != 2 || !gotH.IPv6[0].Equal(want.IPv6[0]) || !gotH.IPv6[1].Equal(want.IPv6[1]) {
		t.Fatalf("ipv6 list mismatch: want %v got %v", want.IPv6, gotH.IPv6)
	}
}

func TestRoundTripHelloNoAddresses(t *testing.T) {
	want := HelloMessage{TxCount: 0}
	buf, err := Encode(want)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if len(buf) != 4 {
		t.Fatalf("minimal HELLO must be 4 bytes, got %d", len(buf))
	}
	got, err := Decode(buf)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.(HelloMessage).IPv4 != nil {
		t.Fatalf("expected no ipv4 address")
	}
}

func TestRoundTripAck(t *testing.T) {
	want := AckMessage{ID: 500, TxCount: 3, MsgHash: 0xDEADBEEF}
	buf, err := Encode(want)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if len(buf) != 8 {
		t.Fatalf("ACK must be 8 bytes, got %d", len(buf))
	}
	got, err := Decode(buf)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got != want {
		t.Fatalf("round trip mismatch: want %+v, got %+v", want, got)
	}
}

func TestRoundTripReward(t *testing.T) {
	neg, mag := EncodeReward(-40)
	want := RewardMessage{ID: 9, Neg: neg, Reward: mag, MsgHash: 0x1234}
	buf, err := Encode(want)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if len(buf) != 8 {
		t.Fatalf("REWARD must be 8 bytes, got %d", len(buf))
	}
	got, err := Decode(buf)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	gotR := got.(RewardMessage)
	if gotR != want {
		t.Fatalf("round trip mismatch: want %+v, got %+v", want, gotR)
	}
	if gotR.Value() != -40 {
		t.Fatalf("expected signed value -40, got %v", gotR.Value())
	}
}

func TestEncodeRewardClampsMagnitude(t *testing.T) {
	neg, mag := EncodeReward(500)
	if neg || mag != 127 {
		t.Fatalf("expected clamp to 127, got neg=%v mag=%d", neg, mag)
	}
}

func TestDecodeUnknownType(t *testing.T) {
	buf := []byte{0x0F, 0, 0, 0}
	if _, err := Decode(buf); err != ErrUnknownType {
		t.Fatalf("expected ErrUnknownType, got %v", err)
	}
}

func TestDecodeTruncated(t *testing.T) {
	if _, err := Decode([]byte{0, 0}); err != ErrTruncated {
		t.Fatalf("expected ErrTruncated, got %v", err)
	}
	rreqHead := packWord(TagRREQ4, 1, 1)
	if _, err := Decode(rreqHead); err != ErrTruncated {
		t.Fatalf("expected ErrTruncated for short RREQ4, got %v", err)
	}
}

func TestEncodeBadAddress(t *testing.T) {
	bad := RouteMessage{Kind: TagRREQ4, ID: 1, SrcIP: nil, DstIP: net.ParseIP("10.0.0.1")}
	if _, err := Encode(bad); err != ErrBadAddress {
		t.Fatalf("expected ErrBadAddress, got %v", err)
	}
}
