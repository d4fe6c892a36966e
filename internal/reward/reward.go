// Package reward implements the reward engine (C8): wait-for-reward
// slots that resolve a downstream route's action value, and the
// hold-off-suppressed reward sender that feeds them from the other end.
package reward

import (
	"net"
	"sync"
	"time"

	"github.com/adhocmesh/adhocmeshd/internal/l2"
	"github.com/adhocmesh/adhocmeshd/internal/msgid"
	"github.com/adhocmesh/adhocmeshd/internal/timerutil"
	"github.com/adhocmesh/adhocmeshd/internal/wire"
)

// WaitTimeout is how long a wait slot waits for a REWARD before treating
// the attempt as a loss (reward 0).
const WaitTimeout = 3 * time.Second

// SendHoldOff is the minimum gap between two rewards sent for the same
// (destination, sender) pair.
const SendHoldOff = 2 * time.Second

// RouteUpdater is the route table's reward-consuming surface.
type RouteUpdater interface {
	UpdateEntry(dst net.IP, mac l2.MAC, reward float64) float64
	AvgValue(dst net.IP) float64
}

// Sender transmits a built REWARD frame to a neighbor.
type Sender interface {
	Send(dst l2.MAC, msg wire.Message, payload []byte) error
}

func waitKey(dst net.IP, mac l2.MAC) uint32 {
	return msgid.Hash([]byte(dst), mac[:])
}

type waitSlot struct {
	timer *timerutil.Timer
}

// Hooks are optional metrics callbacks invoked at notable points in the
// reward lifecycle. A nil field is simply skipped.
type Hooks struct {
	OnTimeout func()
	OnSent    func()
}

// Engine owns both the wait-for-reward slots and the send-side hold-off
// timestamps.
type Engine struct {
	routes RouteUpdater
	sender Sender
	ownMAC l2.MAC
	hooks  Hooks

	mu    sync.Mutex
	waits map[uint32]*waitSlot

	sendMu sync.Mutex
	sent   map[uint32]time.Time
}

// New builds an Engine that updates routes and transmits REWARD frames
// over sender, identifying itself as ownMAC in msg_hash computation.
func New(routes RouteUpdater, sender Sender, ownMAC l2.MAC, hooks Hooks) *Engine {
	return &Engine{
		routes: routes,
		sender: sender,
		ownMAC: ownMAC,
		hooks:  hooks,
		waits:  make(map[uint32]*waitSlot),
		sent:   make(map[uint32]time.Time),
	}
}

// WaitForReward arms a 3-second wait slot for (dstIP, nextHopMAC). If no
// matching REWARD arrives via ApplyReward before the timeout, the route
// table is updated with reward 0.
func (e *Engine) WaitForReward(dstIP net.IP, nextHopMAC l2.MAC) {
	key := waitKey(dstIP, nextHopMAC)

	e.mu.Lock()
	if existing, ok := e.waits[key]; ok {
		existing.timer.Stop()
	}
	s := &waitSlot{}
	e.waits[key] = s
	e.mu.Unlock()

	s.timer = timerutil.New(WaitTimeout, func() {
		e.mu.Lock()
		if _, ok := e.waits[key]; !ok {
			e.mu.Unlock()
			return
		}
		delete(e.waits, key)
		e.mu.Unlock()
		if e.hooks.OnTimeout != nil {
			e.hooks.OnTimeout()
		}
		e.routes.UpdateEntry(dstIP, nextHopMAC, 0)
	})
}

// ApplyReward resolves the wait slot matching msg's hash, if any, folding
// msg's signed value into the route table. It reports whether a matching
// slot was found; a reward with no matching slot is dropped (the slot
// will independently time out).
func (e *Engine) ApplyReward(dstIP net.IP, nextHopMAC l2.MAC, msg wire.RewardMessage) bool {
	key := waitKey(dstIP, nextHopMAC)

	e.mu.Lock()
	s, ok := e.waits[key]
	if !ok {
		e.mu.Unlock()
		return false
	}
	delete(e.waits, key)
	e.mu.Unlock()

	s.timer.Stop()
	e.routes.UpdateEntry(dstIP, nextHopMAC, msg.Value())
	return true
}

// SendReward computes and transmits a REWARD to srcMAC for dstIP, unless
// one was already sent for this (dstIP, srcMAC) pair within SendHoldOff.
func (e *Engine) SendReward(dstIP net.IP, srcMAC l2.MAC) error {
	key := waitKey(dstIP, srcMAC)
	now := time.Now()

	e.sendMu.Lock()
	if last, ok := e.sent[key]; ok && now.Sub(last) < SendHoldOff {
		e.sendMu.Unlock()
		return nil
	}
	e.sent[key] = now
	e.sendMu.Unlock()

	avg := e.routes.AvgValue(dstIP)
	neg, magnitude := wire.EncodeReward(avg)
	hash := msgid.Hash([]byte(dstIP), e.ownMAC[:])
	msg := wire.RewardMessage{Neg: neg, Reward: magnitude, MsgHash: hash}
	if err := e.sender.Send(srcMAC, msg, nil); err != nil {
		return err
	}
	if e.hooks.OnSent != nil {
		e.hooks.OnSent()
	}
	return nil
}

// PendingWaits reports the number of outstanding wait-for-reward slots,
// for tests and diagnostics.
func (e *Engine) PendingWaits() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.waits)
}
