package l2

import (
	"testing"

	"github.com/adhocmesh/adhocmeshd/internal/wire"
)

func TestBuildParseFrameRoundTrip(t *testing.T) {
	dst := MAC{1, 2, 3, 4, 5, 6}
	src := MAC{6, 5, 4, 3, 2, 1}
	msg := wire.DataMessage{Kind: wire.TagUnicastData, ID: 99, HopCount: 2}
	payload := []byte("hello")

	frame, err := buildFrame(dst, src, msg, payload)
	if err != nil {
		t.Fatalf("buildFrame: %v", err)
	}

	gotSrc, gotMsg, gotPayload, ok, err := parseFrame(frame)
	if err != nil {
		t.Fatalf("parseFrame: %v", err)
	}
	if !ok {
		t.Fatalf("expected ok=true")
	}
	if gotSrc != src {
		t.Fatalf("src mismatch: want %s got %s", src, gotSrc)
	}
	if gotMsg != msg {
		t.Fatalf("message mismatch: want %+v got %+v", msg, gotMsg)
	}
	if string(gotPayload) != "hello" {
		t.Fatalf("payload mismatch: got %q", gotPayload)
	}
}

func TestParseFrameWrongEtherType(t *testing.T) {
	frame := make([]byte, 20)
	frame[12], frame[13] = 0x08, 0x00 // IPv4 EtherType
	_, _, _, ok, err := parseFrame(frame)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatalf("expected frame to be skipped")
	}
}

func TestAllowListFiltersUnknownMAC(t *testing.T) {
	known := MAC{1, 1, 1, 1, 1, 1}
	unknown := MAC{2, 2, 2, 2, 2, 2}
	al := NewAllowList([]MAC{known})
	if !al.Allowed(known) {
		t.Fatalf("expected known MAC to be allowed")
	}
	if al.Allowed(unknown) {
		t.Fatalf("expected unknown MAC to be filtered")
	}
}

func TestAllowListEmptyDiscardsEverything(t *testing.T) {
	al := NewAllowList(nil)
	if al.Allowed(MAC{9, 9, 9, 9, 9, 9}) {
		t.Fatalf("empty allow-list must discard everything")
	}
}

func TestFakeTransportDeliversToLinkedPeer(t *testing.T) {
	a := NewFakeTransport(MAC{1})
	b := NewFakeTransport(MAC{2})
	Link(a, b)
	defer a.Close()
	defer b.Close()

	msg := wire.DataMessage{Kind: wire.TagUnicastData, ID: 1, HopCount: 1}
	if err := a.Send(Broadcast, msg, nil); err != nil {
		t.Fatalf("send: %v", err)
	}
	src, got, _, err := b.Recv()
	if err != nil {
		t.Fatalf("recv: %v", err)
	}
	if src != a.LocalMAC() {
		t.Fatalf("src mismatch: got %s", src)
	}
	if got != msg {
		t.Fatalf("message mismatch: got %+v", got)
	}
}
