package datahandler

import (
	"net"
	"testing"
	"time"

	"github.com/adhocmesh/adhocmeshd/internal/gateway"
	"github.com/adhocmesh/adhocmeshd/internal/l2"
	"github.com/adhocmesh/adhocmeshd/internal/msgid"
	"github.com/adhocmesh/adhocmeshd/internal/neighbor"
	"github.com/adhocmesh/adhocmeshd/internal/routetable"
	"github.com/adhocmesh/adhocmeshd/internal/viface"
	"github.com/adhocmesh/adhocmeshd/internal/wire"

	"github.com/sirupsen/logrus"
)

func discardLog() Logger {
	l := logrus.New()
	l.SetOutput(ioDiscard{})
	return l
}

type ioDiscard struct{}

func (ioDiscard) Write(p []byte) (int, error) { return len(p), nil }

func buildIPv4(src, dst net.IP, payload byte) []byte {
	const totalLen = 20 + 4
	pkt := make([]byte, totalLen)
	pkt[0] = 0x45
	pkt[2] = 0
	pkt[3] = totalLen
	pkt[8] = 64 // TTL
	pkt[9] = 17 // UDP
	copy(pkt[12:16], src.To4())
	copy(pkt[16:20], dst.To4())
	pkt[20+3] = payload
	return pkt
}

func newHandler(mac l2.MAC, selfIP net.IP) (*Handler, *l2.FakeTransport, *viface.FakeDevice, *routetable.Table, *neighbor.Table) {
	return newHandlerWithConfig(mac, selfIP, Config{GatewayType: gateway.GatewayDisabled})
}

func newHandlerWithConfig(mac l2.MAC, selfIP net.IP, cfg Config) (*Handler, *l2.FakeTransport, *viface.FakeDevice, *routetable.Table, *neighbor.Table) {
	transport := l2.NewFakeTransport(mac)
	device := viface.NewFakeDevice(selfIP)
	routes := routetable.New(routetable.NewSelector(routetable.Greedy, nil), mac)
	routes.UpdateIPsInTable([]net.IP{selfIP})
	neighbors := neighbor.New()
	h := New(device, transport, mac, routes, neighbors, cfg, discardLog())
	return h, transport, device, routes, neighbors
}

func TestProcessOutgoingDeliversToKnownNextHop(t *testing.T) {
	self := l2.MAC{1, 1, 1, 1, 1, 1}
	peer := l2.MAC{2, 2, 2, 2, 2, 2}
	selfIP := net.IPv4(10, 0, 0, 1)
	dstIP := net.IPv4(10, 0, 0, 2)

	h, transport, _, routes, neighbors := newHandler(self, selfIP)
	neighbors.Observe(peer, []net.IP{dstIP}, time.Now())
	routes.UpdateEntry(dstIP, peer, 10)

	peerTransport := l2.NewFakeTransport(peer)
	l2.Link(transport, peerTransport)

	pkt := buildIPv4(selfIP, dstIP, 0x42)
	if err := h.ProcessOutgoing(pkt); err != nil {
		t.Fatalf("ProcessOutgoing: %v", err)
	}

	_, msg, payload, err := peerTransport.Recv()
	if err != nil {
		t.Fatalf("Recv: %v", err)
	}
	dm, ok := msg.(wire.DataMessage)
	if !ok || dm.Kind != wire.TagUnicastData {
		t.Fatalf("expected unicast data message, got %#v", msg)
	}
	if len(payload) != len(pkt) || payload[23] != 0x42 {
		t.Fatalf("payload mismatch: %v", payload)
	}
}

func TestProcessOutgoingNoRouteTriggersDiscovery(t *testing.T) {
	self := l2.MAC{1, 1, 1, 1, 1, 1}
	selfIP := net.IPv4(10, 0, 0, 1)
	dstIP := net.IPv4(10, 0, 0, 9)

	h, transport, _, _, _ := newHandler(self, selfIP)
	other := l2.NewFakeTransport(l2.MAC{9, 9, 9, 9, 9, 9})
	l2.Link(transport, other)

	pkt := buildIPv4(selfIP, dstIP, 0x1)
	if err := h.ProcessOutgoing(pkt); err != nil {
		t.Fatalf("ProcessOutgoing: %v", err)
	}
	if !h.discovery.Pending(dstIP) {
		t.Fatalf("expected a pending discovery for %v", dstIP)
	}
}

func TestProcessIncomingUnicastForOwnIPDeliversToApp(t *testing.T) {
	self := l2.MAC{1, 1, 1, 1, 1, 1}
	src := l2.MAC{2, 2, 2, 2, 2, 2}
	selfIP := net.IPv4(10, 0, 0, 1)
	srcIP := net.IPv4(10, 0, 0, 2)

	h, _, device, _, _ := newHandler(self, selfIP)

	pkt := buildIPv4(srcIP, selfIP, 0x7)
	msg := wire.DataMessage{Kind: wire.TagUnicastData, ID: 5, HopCount: 1}
	if err := h.ProcessIncoming(src, msg, pkt); err != nil {
		t.Fatalf("ProcessIncoming: %v", err)
	}

	select {
	case got := <-device.Outbound:
		if got[23] != 0x7 {
			t.Fatalf("unexpected payload: %v", got)
		}
	default:
		t.Fatalf("expected the packet to be delivered locally")
	}
}

func TestProcessIncomingReliableAcksAndDropsDuplicates(t *testing.T) {
	self := l2.MAC{1, 1, 1, 1, 1, 1}
	src := l2.MAC{2, 2, 2, 2, 2, 2}
	selfIP := net.IPv4(10, 0, 0, 1)
	srcIP := net.IPv4(10, 0, 0, 2)

	h, transport, _, _, _ := newHandler(self, selfIP)
	srcTransport := l2.NewFakeTransport(src)
	l2.Link(transport, srcTransport)

	pkt := buildIPv4(srcIP, selfIP, 0x3)
	msg := wire.DataMessage{Kind: wire.TagReliableData, ID: 11, HopCount: 1}

	if err := h.ProcessIncoming(src, msg, pkt); err != nil {
		t.Fatalf("first ProcessIncoming: %v", err)
	}
	// The first delivery both ACKs and sends a reward back to the source.
	if _, ackMsg, _, err := srcTransport.Recv(); err != nil || ackMsg.Tag() != wire.TagAck {
		t.Fatalf("expected an ACK, got %#v, err=%v", ackMsg, err)
	}
	if _, rewardMsg, _, err := srcTransport.Recv(); err != nil || rewardMsg.Tag() != wire.TagReward {
		t.Fatalf("expected a REWARD, got %#v, err=%v", rewardMsg, err)
	}

	if err := h.ProcessIncoming(src, msg, pkt); err != nil {
		t.Fatalf("second ProcessIncoming: %v", err)
	}
	// A duplicate still gets ACKed, but the dedup check stops it short of
	// generating a second reward.
	if _, ackMsg, _, err := srcTransport.Recv(); err != nil || ackMsg.Tag() != wire.TagAck {
		t.Fatalf("expected a second ACK even for a duplicate, got %#v, err=%v", ackMsg, err)
	}
}

func TestProcessIncomingRREQForOwnIPRepliesWithRREP(t *testing.T) {
	self := l2.MAC{1, 1, 1, 1, 1, 1}
	src := l2.MAC{2, 2, 2, 2, 2, 2}
	selfIP := net.IPv4(10, 0, 0, 1)
	srcIP := net.IPv4(10, 0, 0, 2)

	h, transport, _, _, neighbors := newHandler(self, selfIP)
	neighbors.Observe(src, []net.IP{srcIP}, time.Now())
	srcTransport := l2.NewFakeTransport(src)
	l2.Link(transport, srcTransport)

	rreq := wire.NewRREQ(77, 1, srcIP, selfIP)
	if err := h.ProcessIncoming(src, rreq, nil); err != nil {
		t.Fatalf("ProcessIncoming: %v", err)
	}

	sawAck, sawRREP := false, false
	for i := 0; i < 2; i++ {
		_, got, _, err := srcTransport.Recv()
		if err != nil {
			t.Fatalf("Recv: %v", err)
		}
		switch got.Tag() {
		case wire.TagAck:
			sawAck = true
		case wire.TagRREP4, wire.TagRREP6:
			sawRREP = true
		}
	}
	if !sawAck || !sawRREP {
		t.Fatalf("expected both an ACK and an RREP, got ack=%v rrep=%v", sawAck, sawRREP)
	}
}

func TestProcessIncomingHelloFiresOnNeighborsUpdated(t *testing.T) {
	self := l2.MAC{1, 1, 1, 1, 1, 1}
	src := l2.MAC{2, 2, 2, 2, 2, 2}
	selfIP := net.IPv4(10, 0, 0, 1)
	srcIP := net.IPv4(10, 0, 0, 2)

	var fired int
	cfg := Config{GatewayType: gateway.GatewayDisabled, OnNeighborsUpdated: func() { fired++ }}
	h, _, _, _, _ := newHandlerWithConfig(self, selfIP, cfg)

	hello := wire.HelloMessage{IPv4: srcIP}
	if err := h.ProcessIncoming(src, hello, nil); err != nil {
		t.Fatalf("ProcessIncoming: %v", err)
	}
	if fired != 1 {
		t.Fatalf("expected onNeighborsUpdated to fire once for the HELLO, got %d", fired)
	}

	// A second HELLO from the same neighbor still triggers a refresh: the
	// neighbors file is rewritten after each HELLO, not only on change.
	if err := h.ProcessIncoming(src, hello, nil); err != nil {
		t.Fatalf("ProcessIncoming (repeat): %v", err)
	}
	if fired != 2 {
		t.Fatalf("expected onNeighborsUpdated to fire again for the repeat HELLO, got %d", fired)
	}

	// A HELLO that loops back from this node's own MAC is dropped and must
	// not trigger a refresh.
	if err := h.ProcessIncoming(self, hello, nil); err != nil {
		t.Fatalf("ProcessIncoming (self): %v", err)
	}
	if fired != 2 {
		t.Fatalf("expected onNeighborsUpdated to ignore a self-looped HELLO, got %d", fired)
	}
}

func TestProcessIncomingRewardResolvesArmedWait(t *testing.T) {
	self := l2.MAC{1, 1, 1, 1, 1, 1}
	nextHop := l2.MAC{3, 3, 3, 3, 3, 3}
	selfIP := net.IPv4(10, 0, 0, 1)
	dstIP := net.IPv4(10, 0, 0, 5)

	h, _, _, _, _ := newHandler(self, selfIP)
	h.armReward(dstIP, nextHop)
	if h.rewards.PendingWaits() != 1 {
		t.Fatalf("expected one pending wait, got %d", h.rewards.PendingWaits())
	}

	neg, mag := wire.EncodeReward(12)
	hash := msgid.Hash([]byte(dstIP), nextHop[:])
	reward := wire.RewardMessage{ID: 1, Neg: neg, Reward: mag, MsgHash: hash}

	if err := h.ProcessIncoming(nextHop, reward, nil); err != nil {
		t.Fatalf("ProcessIncoming: %v", err)
	}
	if h.rewards.PendingWaits() != 0 {
		t.Fatalf("expected the wait slot to resolve, got %d pending", h.rewards.PendingWaits())
	}
}
