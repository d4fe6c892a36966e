// Package arq implements the Stop-and-Wait retransmit engine (C6): one
// slot per (message id, destination MAC), retransmitted up to MaxAttempts
// times at RetransmitInterval, cleared by a matching ACK or by giveup.
package arq

import (
	"sync"
	"time"

	"github.com/adhocmesh/adhocmeshd/internal/l2"
	"github.com/adhocmesh/adhocmeshd/internal/msgid"
	"github.com/adhocmesh/adhocmeshd/internal/timerutil"
	"github.com/adhocmesh/adhocmeshd/internal/wire"
)

// MaxAttempts is the total number of sends (the original plus four
// retries) before a slot gives up.
const MaxAttempts = 5

// RetransmitInterval is the delay between successive attempts.
const RetransmitInterval = 500 * time.Millisecond

// Sender is the subset of l2.Transport ARQ needs to (re)transmit frames.
type Sender interface {
	Send(dst l2.MAC, msg wire.Message, payload []byte) error
}

type slot struct {
	hash     uint32
	dst      l2.MAC
	msg      wire.Message
	payload  []byte
	attempts int
	timer    *timerutil.Timer
}

// Engine owns the live retransmit slots.
type Engine struct {
	sender       Sender
	onGive       func(hash uint32, dst l2.MAC)
	onRetransmit func()

	mu    sync.Mutex
	slots map[uint32]*slot
}

// New builds an Engine that sends frames over sender. onGiveup, if
// non-nil, is invoked once per slot that exhausts MaxAttempts without an
// ACK. onRetransmit, if non-nil, is invoked once per attempt beyond the
// first for any slot, for metrics.
func New(sender Sender, onGiveup func(hash uint32, dst l2.MAC), onRetransmit func()) *Engine {
	return &Engine{sender: sender, onGive: onGiveup, onRetransmit: onRetransmit, slots: make(map[uint32]*slot)}
}

// Hash computes the slot key for (id, dst): md5(id||dst_mac) mod 2^32.
func Hash(id uint32, dst l2.MAC) uint32 {
	return msgid.Hash(msgid.Uint32LE(id), dst[:])
}

// ArqSend starts (or restarts) a retransmit slot for msg/payload destined
// to dst, keyed on id. It returns immediately after the first send; the
// retransmit loop runs in the background until ACKed or given up.
func (e *Engine) ArqSend(id uint32, dst l2.MAC, msg wire.Message, payload []byte) error {
	h := Hash(id, dst)

	e.mu.Lock()
	if existing, ok := e.slots[h]; ok {
		existing.timer.Stop()
	}
	s := &slot{hash: h, dst: dst, msg: msg, payload: payload, attempts: 0}
	e.slots[h] = s
	e.mu.Unlock()

	err := e.sender.Send(dst, msg, payload)
	s.attempts = 1
	s.timer = timerutil.New(RetransmitInterval, func() { e.retransmit(h) })
	return err
}

// ArqBroadcastSend runs ArqSend independently against every MAC in dsts,
// used when a control message must reach every current neighbor.
func (e *Engine) ArqBroadcastSend(id uint32, dsts []l2.MAC, msg wire.Message, payload []byte) {
	for _, dst := range dsts {
		// Errors are per-destination transport failures; the slot's own
		// retransmit loop is what matters for delivery, so this is best-effort.
		_ = e.ArqSend(id, dst, msg, payload)
	}
}

func (e *Engine) retransmit(hash uint32) {
	e.mu.Lock()
	s, ok := e.slots[hash]
	if !ok {
		e.mu.Unlock()
		return
	}
	if s.attempts >= MaxAttempts {
		delete(e.slots, hash)
		e.mu.Unlock()
		if e.onGive != nil {
			e.onGive(hash, s.dst)
		}
		return
	}
	s.attempts++
	msg, payload, dst := s.msg, s.payload, s.dst
	e.mu.Unlock()

	if e.onRetransmit != nil {
		e.onRetransmit()
	}
	_ = e.sender.Send(dst, msg, payload)

	e.mu.Lock()
	if s, ok := e.slots[hash]; ok {
		s.timer.Reset()
	}
	e.mu.Unlock()
}

// ProcessAck clears the slot matching ack's hash, stopping its retransmit
// timer. It reports whether a matching slot was found.
func (e *Engine) ProcessAck(ack wire.AckMessage) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	s, ok := e.slots[ack.MsgHash]
	if !ok {
		return false
	}
	s.timer.Stop()
	delete(e.slots, ack.MsgHash)
	return true
}

// SendAck acknowledges a frame received from srcMAC: hash = md5(id ||
// own_mac) feeds a tag-7 ACK back to the sender.
func SendAck(sender Sender, id uint32, txCount byte, ownMAC, srcMAC l2.MAC) error {
	h := msgid.Hash(msgid.Uint32LE(id), ownMAC[:])
	ack := wire.AckMessage{ID: id, TxCount: txCount, MsgHash: h}
	return sender.Send(srcMAC, ack, nil)
}

// Pending reports how many ARQ slots are currently in flight, for tests
// and diagnostics.
func (e *Engine) Pending() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.slots)
}
