package datahandler

import (
	"time"

	"github.com/adhocmesh/adhocmeshd/internal/arq"
	"github.com/adhocmesh/adhocmeshd/internal/l2"
	"github.com/adhocmesh/adhocmeshd/internal/viface"
	"github.com/adhocmesh/adhocmeshd/internal/wire"
)

// ProcessIncoming dispatches one decoded frame received from srcMAC.
func (h *Handler) ProcessIncoming(srcMAC l2.MAC, msg wire.Message, payload []byte) error {
	switch m := msg.(type) {
	case wire.DataMessage:
		switch m.Kind {
		case wire.TagUnicastData, wire.TagReliableData:
			return h.processData(srcMAC, m, payload)
		case wire.TagBroadcastData:
			return h.processBroadcast(srcMAC, m, payload)
		}
	case wire.RouteMessage:
		if m.IsReply() {
			return h.processRREP(srcMAC, m)
		}
		return h.processRREQ(srcMAC, m)
	case wire.HelloMessage:
		before := h.neighbors.Count()
		updated := h.listener.Process(srcMAC, m, time.Now())
		if h.metrics != nil && h.neighbors.Count() > before {
			h.metrics.NeighborJoins.Inc()
		}
		if updated && h.onNeighborsUpdated != nil {
			h.onNeighborsUpdated()
		}
		return nil
	case wire.AckMessage:
		h.arqEngine.ProcessAck(m)
		return nil
	case wire.RewardMessage:
		return h.processReward(m)
	}
	return nil
}

func (h *Handler) processData(srcMAC l2.MAC, m wire.DataMessage, payload []byte) error {
	reliable := m.Kind == wire.TagReliableData

	if reliable {
		if err := arq.SendAck(h.transport, m.ID, 0, h.ownMAC, srcMAC); err != nil {
			return err
		}
		if h.seen.Reliable.SeenOrRecord(m.ID) {
			return nil
		}
	}

	_, dstIP, ok := viface.ExtractL3(payload)
	if !ok {
		return nil
	}

	if err := h.rewards.SendReward(dstIP, srcMAC); err != nil {
		h.log.WithField("component", "reward").WithField("err", err).Error("reward send failed")
	}

	if h.isOwnIP(dstIP) {
		return h.device.SendToApp(payload)
	}
	if h.monitorMode {
		return nil
	}

	nextHop, ok := h.routes.NextHop(dstIP, h.neighbors)
	if !ok {
		return h.device.InjectBack(payload)
	}
	m.HopCount++
	h.armReward(dstIP, nextHop)
	if reliable {
		return h.arqEngine.ArqSend(m.ID, nextHop, m, payload)
	}
	return h.transport.Send(nextHop, m, payload)
}

func (h *Handler) processBroadcast(srcMAC l2.MAC, m wire.DataMessage, payload []byte) error {
	if h.seen.Broadcast.SeenOrRecord(m.ID) {
		return nil
	}
	if m.TTL > 1 {
		return nil
	}
	if err := h.device.SendToApp(payload); err != nil {
		return err
	}
	if h.monitorMode {
		return nil
	}
	m.TTL++
	return h.transport.Send(l2.Broadcast, m, payload)
}

func (h *Handler) processRREQ(srcMAC l2.MAC, m wire.RouteMessage) error {
	if err := arq.SendAck(h.transport, m.ID, 0, h.ownMAC, srcMAC); err != nil {
		return err
	}
	if h.seen.RREQ.SeenOrRecord(m.ID) {
		return nil
	}

	h.routes.UpdateEntry(m.SrcIP, srcMAC, round2(50.0/float64(m.HopCount)))

	if h.isOwnIP(m.DstIP) {
		id := h.nextID()
		rrep := wire.NewRREP(id, 1, m.DstIP, m.SrcIP)
		h.seen.RREP.Record(id)
		h.arqBroadcastToNeighbors(id, rrep, nil)
		if h.metrics != nil {
			h.metrics.RREPsSent.Inc()
		}
		return nil
	}
	if h.monitorMode {
		return nil
	}
	m.HopCount++
	h.arqBroadcastExcept(m.ID, srcMAC, m, nil)
	return nil
}

func (h *Handler) processRREP(srcMAC l2.MAC, m wire.RouteMessage) error {
	if err := arq.SendAck(h.transport, m.ID, 0, h.ownMAC, srcMAC); err != nil {
		return err
	}
	if h.seen.RREP.SeenOrRecord(m.ID) {
		return nil
	}

	h.routes.UpdateEntry(m.SrcIP, srcMAC, round2(50.0/float64(m.HopCount)))

	if h.isOwnIP(m.DstIP) {
		return h.discovery.ProcessRREP(m.SrcIP)
	}
	if h.monitorMode {
		return nil
	}
	m.HopCount++
	h.arqBroadcastExcept(m.ID, srcMAC, m, nil)
	return nil
}

func (h *Handler) processReward(m wire.RewardMessage) error {
	h.pendingMu.Lock()
	p, ok := h.pendingDst[m.MsgHash]
	if ok {
		delete(h.pendingDst, m.MsgHash)
	}
	h.pendingMu.Unlock()
	if !ok {
		return nil
	}
	h.rewards.ApplyReward(p.dst, p.mac, m)
	return nil
}

func round2(v float64) float64 {
	return float64(int(v*100+0.5)) / 100
}
