// Package datahandler implements the data handler (C9): the orchestrator
// that classifies every outgoing packet from the virtual interface and
// every incoming frame from the raw transport, and drives the route
// table, ARQ engine, path discovery manager, reward engine, and neighbor
// table accordingly.
package datahandler

import (
	"math/rand"
	"net"
	"sync"

	"github.com/adhocmesh/adhocmeshd/internal/arq"
	"github.com/adhocmesh/adhocmeshd/internal/dedupe"
	"github.com/adhocmesh/adhocmeshd/internal/gateway"
	"github.com/adhocmesh/adhocmeshd/internal/l2"
	"github.com/adhocmesh/adhocmeshd/internal/metrics"
	"github.com/adhocmesh/adhocmeshd/internal/msgid"
	"github.com/adhocmesh/adhocmeshd/internal/neighbor"
	"github.com/adhocmesh/adhocmeshd/internal/pathdiscovery"
	"github.com/adhocmesh/adhocmeshd/internal/reward"
	"github.com/adhocmesh/adhocmeshd/internal/routetable"
	"github.com/adhocmesh/adhocmeshd/internal/viface"
	"github.com/adhocmesh/adhocmeshd/internal/wire"

	"github.com/sirupsen/logrus"
)

// Logger is the subset of logrus.FieldLogger's surface the handler uses.
type Logger interface {
	WithField(key string, value interface{}) *logrus.Entry
}

// Handler wires components C2-C8 together to implement the forwarding
// and control dispatch described by ProcessOutgoing/ProcessIncoming.
type Handler struct {
	device    viface.Device
	transport l2.Transport
	ownMAC    l2.MAC

	routes     *routetable.Table
	neighbors  *neighbor.Table
	arqEngine  *arq.Engine
	discovery  *pathdiscovery.Manager
	rewards    *reward.Engine
	gatewayMap *gateway.Mapper
	seen       *dedupe.Set
	listener   *neighbor.Listener

	monitorMode  bool
	arqForData   bool
	arqAllowTCP  map[int]bool
	arqAllowUDP  map[int]bool
	arqAllowICMP bool

	log     Logger
	metrics *metrics.Registry

	// onNeighborsUpdated, if non-nil, is called after every HELLO that is
	// not looped back from ownMAC, so the neighbors file can be rewritten.
	onNeighborsUpdated func()

	idMu   sync.Mutex
	rng    *rand.Rand
	nextID func() uint32

	// pendingDst tracks the (dstIP, nextHop) pair a forwarded message's
	// reward-wait slot was armed for, keyed by the same wait-slot id so an
	// incoming REWARD can be routed back to the right UpdateEntry call.
	pendingMu  sync.Mutex
	pendingDst map[uint32]pendingForward
}

type pendingForward struct {
	dst net.IP
	mac l2.MAC
}

// Config bundles the handler's static policy knobs.
type Config struct {
	MonitorMode  bool
	ArqForData   bool
	ArqAllowTCP  map[int]bool
	ArqAllowUDP  map[int]bool
	ArqAllowICMP bool
	GatewayType  gateway.GatewayType
	Metrics      *metrics.Registry

	OnNeighborsUpdated func()
}

// New assembles a Handler from its collaborators.
func New(device viface.Device, transport l2.Transport, ownMAC l2.MAC, routes *routetable.Table, neighbors *neighbor.Table, cfg Config, log Logger) *Handler {
	h := &Handler{
		device:             device,
		transport:          transport,
		ownMAC:             ownMAC,
		routes:             routes,
		neighbors:          neighbors,
		gatewayMap:         gateway.NewMapper(cfg.GatewayType),
		seen:               dedupe.NewSet(),
		monitorMode:        cfg.MonitorMode,
		arqForData:         cfg.ArqForData,
		arqAllowTCP:        cfg.ArqAllowTCP,
		arqAllowUDP:        cfg.ArqAllowUDP,
		arqAllowICMP:       cfg.ArqAllowICMP,
		log:                log,
		metrics:            cfg.Metrics,
		onNeighborsUpdated: cfg.OnNeighborsUpdated,
		pendingDst:         make(map[uint32]pendingForward),
	}
	h.arqEngine = arq.New(transport, h.onArqGiveup, h.onArqRetransmit)
	h.discovery = pathdiscovery.New(h, h, pathdiscovery.Hooks{OnExpire: h.onDiscoveryExpired})
	h.rewards = reward.New(routes, transport, ownMAC, reward.Hooks{
		OnTimeout: h.onRewardTimeout,
		OnSent:    h.onRewardSent,
	})
	h.listener = neighbor.NewListener(neighbors, routes, ownMAC)
	h.rng = rand.New(rand.NewSource(1))
	h.nextID = h.genID
	return h
}

// ArqPending reports the number of in-flight ARQ retransmit slots, for
// the active-slots gauge.
func (h *Handler) ArqPending() int {
	return h.arqEngine.Pending()
}

func (h *Handler) onArqRetransmit() {
	if h.metrics != nil {
		h.metrics.ArqRetransmits.Inc()
	}
}

func (h *Handler) onRewardTimeout() {
	if h.metrics != nil {
		h.metrics.RewardTimeouts.Inc()
	}
}

func (h *Handler) onRewardSent() {
	if h.metrics != nil {
		h.metrics.RewardsSent.Inc()
	}
}

// onDiscoveryExpired marks dstIP as a previously-failed discovery target
// so the next outgoing packet to it is remapped to the gateway sentinel
// instead of restarting discovery yet again.
func (h *Handler) onDiscoveryExpired(dstIP net.IP) {
	h.gatewayMap.MarkFailedIP(dstIP)
}

// armReward starts a reward wait for (dst, nextHop) and remembers the pair
// under the same hash a returning REWARD's msg_hash will carry, so
// processReward can recover which route to update.
func (h *Handler) armReward(dst net.IP, nextHop l2.MAC) {
	h.rewards.WaitForReward(dst, nextHop)
	key := msgid.Hash([]byte(dst), nextHop[:])
	h.pendingMu.Lock()
	h.pendingDst[key] = pendingForward{dst: dst, mac: nextHop}
	h.pendingMu.Unlock()
}

func (h *Handler) genID() uint32 {
	h.idMu.Lock()
	defer h.idMu.Unlock()
	return uint32(h.rng.Intn(wire.MaxID + 1))
}

func (h *Handler) onArqGiveup(hash uint32, dst l2.MAC) {
	h.log.WithField("component", "arq").WithField("dst", dst).Info("giving up after max attempts")
	if h.metrics != nil {
		h.metrics.ArqGiveups.Inc()
	}
}

// BroadcastRREQ satisfies pathdiscovery.Broadcaster: it issues an RREQ
// for dstIP to every current neighbor.
func (h *Handler) BroadcastRREQ(dstIP net.IP) error {
	id := h.nextID()
	srcIP := h.localSourceFor(dstIP)
	msg := wire.NewRREQ(id, 1, srcIP, dstIP)
	h.seen.RREQ.Record(id)
	h.arqBroadcastToNeighbors(id, msg, nil)
	if h.metrics != nil {
		h.metrics.RREQsSent.Inc()
	}
	return nil
}

// InjectBack satisfies pathdiscovery.Injector.
func (h *Handler) InjectBack(packet []byte) error {
	return h.device.InjectBack(packet)
}

func (h *Handler) localSourceFor(dst net.IP) net.IP {
	ips, err := h.device.LocalIPs()
	if err != nil || len(ips) == 0 {
		return net.IPv4zero
	}
	wantV4 := dst.To4() != nil
	for _, ip := range ips {
		if (ip.To4() != nil) == wantV4 {
			return ip
		}
	}
	return ips[0]
}

func (h *Handler) arqBroadcastToNeighbors(id uint32, msg wire.Message, payload []byte) {
	var macs []l2.MAC
	for _, n := range h.neighbors.Snapshot() {
		macs = append(macs, n.MAC)
	}
	h.arqEngine.ArqBroadcastSend(id, macs, msg, payload)
}

func (h *Handler) arqBroadcastExcept(id uint32, except l2.MAC, msg wire.Message, payload []byte) {
	var macs []l2.MAC
	for _, n := range h.neighbors.Snapshot() {
		if n.MAC != except {
			macs = append(macs, n.MAC)
		}
	}
	h.arqEngine.ArqBroadcastSend(id, macs, msg, payload)
}

// subnetOf approximates the node's own subnet from its first local IPv4
// address for multicast/broadcast classification; callers without a
// usable local address fall back to "no subnet" (pure multicast check).
func (h *Handler) subnetOf() *net.IPNet {
	ips, err := h.device.LocalIPs()
	if err != nil {
		return nil
	}
	for _, ip := range ips {
		if v4 := ip.To4(); v4 != nil {
			return &net.IPNet{IP: v4.Mask(net.CIDRMask(24, 32)), Mask: net.CIDRMask(24, 32)}
		}
	}
	return nil
}

func (h *Handler) isOwnIP(ip net.IP) bool {
	ips, err := h.device.LocalIPs()
	if err != nil {
		return false
	}
	for _, local := range ips {
		if local.Equal(ip) {
			return true
		}
	}
	return false
}

func (h *Handler) arqAllowed(proto viface.L4Proto, port uint16) bool {
	if !h.arqForData {
		return false
	}
	switch proto {
	case viface.L4TCP:
		return h.arqAllowTCP[int(port)]
	case viface.L4UDP:
		return h.arqAllowUDP[int(port)]
	case viface.L4ICMPv4, viface.L4ICMPv6:
		return h.arqAllowICMP
	default:
		return false
	}
}
