// Package routetable implements the reinforcement-learning route table
// (C4): a per-destination map of next-hop action values, a sample-average
// estimator, and a pluggable action selector.
package routetable

import (
	"fmt"
	"net"
	"sort"
	"strings"
	"sync"
)

// SelfWeight is the action value pinned for a node's own addresses, set
// by UpdateIPsInTable so the local stack is always the preferred
// "next hop" for traffic destined to this node.
const SelfWeight = 100

// NeighborSet reports which MACs are currently live neighbors, so the
// table can purge actions for next hops that have aged out of C5 without
// owning neighbor state itself.
type NeighborSet interface {
	IsNeighbor(mac MAC) bool
}

type entry struct {
	mu        sync.Mutex
	estimator *estimator
}

// Table is the RL route table. One Table instance is shared by the data
// handler, the neighbor advertiser, and the reward engine.
type Table struct {
	mu       sync.RWMutex
	entries  map[string]*entry
	selector *Selector
	self     MAC
}

// New creates an empty Table using selector for NextHop and self as the
// MAC pinned by UpdateIPsInTable.
func New(selector *Selector, self MAC) *Table {
	return &Table{
		entries:  make(map[string]*entry),
		selector: selector,
		self:     self,
	}
}

func (t *Table) entryFor(dst net.IP) *entry {
	key := dst.String()
	t.mu.RLock()
	e, ok := t.entries[key]
	t.mu.RUnlock()
	if ok {
		return e
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if e, ok := t.entries[key]; ok {
		return e
	}
	e = &entry{estimator: newEstimator()}
	t.entries[key] = e
	return e
}

// UpdateEntry folds reward into dst's action value for mac, creating the
// entry if it does not yet exist.
func (t *Table) UpdateEntry(dst net.IP, mac MAC, reward float64) float64 {
	e := t.entryFor(dst)
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.estimator.update(mac, reward)
}

// NextHop selects a next hop for dst among its live neighbors. Entries
// for MACs that neighbors no longer reports are purged lazily here. It
// returns the zero MAC and false if dst has no entry, or none of its
// recorded next hops are still neighbors.
func (t *Table) NextHop(dst net.IP, neighbors NeighborSet) (MAC, bool) {
	e := t.entryFor(dst)
	e.mu.Lock()
	defer e.mu.Unlock()

	live := make(map[MAC]float64, len(e.estimator.stats))
	for mac := range e.estimator.stats {
		if mac == t.self || neighbors.IsNeighbor(mac) {
			live[mac] = e.estimator.value(mac)
			continue
		}
		e.estimator.forget(mac)
	}
	if len(live) == 0 {
		return MAC{}, false
	}
	return t.selector.Select(live)
}

// AvgValue returns the arithmetic mean of every action value currently
// recorded for dst, or 0 if dst has no entry.
func (t *Table) AvgValue(dst net.IP) float64 {
	e := t.entryFor(dst)
	e.mu.Lock()
	defer e.mu.Unlock()

	if len(e.estimator.stats) == 0 {
		return 0
	}
	var sum float64
	for mac := range e.estimator.stats {
		sum += e.estimator.value(mac)
	}
	return sum / float64(len(e.estimator.stats))
}

// UpdateIPsInTable pins SelfWeight under the node's own MAC for every IP
// in currentIPs, so the data handler always recognizes locally-owned
// destinations as directly reachable.
func (t *Table) UpdateIPsInTable(currentIPs []net.IP) {
	for _, ip := range currentIPs {
		e := t.entryFor(ip)
		e.mu.Lock()
		s, ok := e.estimator.stats[t.self]
		if !ok {
			s = &actionStat{}
			e.estimator.stats[t.self] = s
		}
		s.mean = SelfWeight
		e.mu.Unlock()
	}
}

// Flush removes every entry, used by the management interface's
// flush-table command.
func (t *Table) Flush() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries = make(map[string]*entry)
}

// Len reports how many destinations currently have an entry, for dumps
// and diagnostics.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.entries)
}

// DumpText renders every destination's current action values as a
// tab-separated human-readable table, one line per (destination,
// next-hop) pair, sorted for a stable diff between successive dumps.
func (t *Table) DumpText() string {
	t.mu.RLock()
	snapshot := make(map[string]*entry, len(t.entries))
	dsts := make([]string, 0, len(t.entries))
	for dst, e := range t.entries {
		snapshot[dst] = e
		dsts = append(dsts, dst)
	}
	t.mu.RUnlock()
	sort.Strings(dsts)

	var buf strings.Builder
	for _, dst := range dsts {
		e := snapshot[dst]
		e.mu.Lock()
		macs := make([]MAC, 0, len(e.estimator.stats))
		for mac := range e.estimator.stats {
			macs = append(macs, mac)
		}
		sort.Slice(macs, func(i, j int) bool { return macs[i].String() < macs[j].String() })
		for _, mac := range macs {
			s := e.estimator.stats[mac]
			fmt.Fprintf(&buf, "%s\t%s\t%.2f\t%d\n", dst, mac, s.mean, s.n)
		}
		e.mu.Unlock()
	}
	return buf.String()
}
