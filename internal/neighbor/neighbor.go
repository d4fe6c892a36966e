// Package neighbor implements neighbor discovery (C5): periodic HELLO
// advertisement, the listener that seeds the route table from received
// HELLOs, and soft-state expiry of neighbors that have gone silent.
package neighbor

import (
	"net"
	"sync"
	"time"

	"github.com/adhocmesh/adhocmeshd/internal/l2"
)

// AdvertiseInterval is how often the advertiser broadcasts a fresh HELLO.
const AdvertiseInterval = 2 * time.Second

// ExpiryTimeout is the silence duration after which a neighbor is
// considered gone.
const ExpiryTimeout = 7 * time.Second

// SeedReward is the action value HELLO seeding assigns to each
// newly-advertised address.
const SeedReward = 50

// Entry is one known neighbor: its MAC, the L3 addresses it last
// advertised, and when it was last heard from.
type Entry struct {
	MAC          l2.MAC
	Addrs        []net.IP
	LastActivity time.Time
}

func addrsEqual(a, b []net.IP) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !a[i].Equal(b[i]) {
			return false
		}
	}
	return true
}

// Table is the live neighbor set. It satisfies routetable.NeighborSet.
type Table struct {
	mu        sync.RWMutex
	neighbors map[l2.MAC]*Entry
}

// New creates an empty neighbor table.
func New() *Table {
	return &Table{neighbors: make(map[l2.MAC]*Entry)}
}

// IsNeighbor reports whether mac is currently a live neighbor.
func (t *Table) IsNeighbor(mac l2.MAC) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.neighbors[mac]
	return ok
}

// Get returns a snapshot of the entry for mac, if any.
func (t *Table) Get(mac l2.MAC) (Entry, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	e, ok := t.neighbors[mac]
	if !ok {
		return Entry{}, false
	}
	return *e, true
}

// Snapshot returns a copy of every current neighbor, for dumps and the
// neighbors file writer.
func (t *Table) Snapshot() []Entry {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]Entry, 0, len(t.neighbors))
	for _, e := range t.neighbors {
		out = append(out, *e)
	}
	return out
}

// Observe records a HELLO heard from mac carrying addrs at now. It
// reports whether mac is new and whether its advertised address set
// changed, either of which the caller uses to decide whether to reseed
// the route table.
func (t *Table) Observe(mac l2.MAC, addrs []net.IP, now time.Time) (isNew, changed bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.neighbors[mac]
	if !ok {
		t.neighbors[mac] = &Entry{MAC: mac, Addrs: addrs, LastActivity: now}
		return true, true
	}
	changed = !addrsEqual(e.Addrs, addrs)
	e.Addrs = addrs
	e.LastActivity = now
	return false, changed
}

// Sweep removes every neighbor silent for longer than ExpiryTimeout as of
// now, returning the MACs that were expired.
func (t *Table) Sweep(now time.Time) []l2.MAC {
	t.mu.Lock()
	defer t.mu.Unlock()

	var expired []l2.MAC
	for mac, e := range t.neighbors {
		if now.Sub(e.LastActivity) > ExpiryTimeout {
			expired = append(expired, mac)
			delete(t.neighbors, mac)
		}
	}
	return expired
}

// Count returns the number of currently live neighbors.
func (t *Table) Count() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.neighbors)
}
