package datahandler

import (
	"net"

	"github.com/adhocmesh/adhocmeshd/internal/gateway"
	"github.com/adhocmesh/adhocmeshd/internal/l2"
	"github.com/adhocmesh/adhocmeshd/internal/viface"
	"github.com/adhocmesh/adhocmeshd/internal/wire"
)

// ProcessOutgoing handles one packet read from the virtual interface.
func (h *Handler) ProcessOutgoing(packet []byte) error {
	_, dst, ok := viface.ExtractL3(packet)
	if !ok {
		h.log.WithField("component", "datahandler").WithField("reason", "unparseable-l3").Error("dropping outgoing packet")
		return nil
	}

	if gateway.IsMulticastOrBroadcast(dst, h.subnetOf()) {
		return h.sendBroadcastData(packet)
	}

	routeDst, _ := h.gatewayMap.Map(dst, wire.DefaultRouteSentinel)

	mac, ok := h.routes.NextHop(routeDst, h.neighbors)
	if !ok {
		return h.discovery.RunPathDiscovery(routeDst, packet)
	}

	proto, port := viface.ExtractL4(packet)
	id := h.nextID()
	if h.arqAllowed(proto, port) {
		return h.sendReliable(id, mac, routeDst, packet)
	}
	return h.sendUnreliable(id, mac, routeDst, packet)
}

func (h *Handler) sendBroadcastData(packet []byte) error {
	id := h.nextID()
	h.seen.Broadcast.Record(id)
	msg := wire.DataMessage{Kind: wire.TagBroadcastData, ID: id, TTL: 1}
	return h.transport.Send(l2.Broadcast, msg, packet)
}

func (h *Handler) sendUnreliable(id uint32, mac l2.MAC, dst net.IP, packet []byte) error {
	msg := wire.DataMessage{Kind: wire.TagUnicastData, ID: id, HopCount: 1}
	h.armReward(dst, mac)
	return h.transport.Send(mac, msg, packet)
}

func (h *Handler) sendReliable(id uint32, mac l2.MAC, dst net.IP, packet []byte) error {
	msg := wire.DataMessage{Kind: wire.TagReliableData, ID: id, HopCount: 1}
	h.armReward(dst, mac)
	return h.arqEngine.ArqSend(id, mac, msg, packet)
}
