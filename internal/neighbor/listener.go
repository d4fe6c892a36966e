package neighbor

import (
	"net"
	"time"

	"github.com/adhocmesh/adhocmeshd/internal/l2"
	"github.com/adhocmesh/adhocmeshd/internal/wire"
)

// RouteSeeder seeds the route table with a (destination, next-hop)
// reward, matching routetable.Table.UpdateEntry's signature.
type RouteSeeder interface {
	UpdateEntry(dst net.IP, mac l2.MAC, reward float64) float64
}

// Listener applies received HELLOs to the neighbor table and reseeds the
// route table for every advertised address.
type Listener struct {
	table  *Table
	routes RouteSeeder
	self   l2.MAC
}

// NewListener builds a Listener. self is used to recognize (and drop) a
// HELLO that looped back from the node's own transmission.
func NewListener(table *Table, routes RouteSeeder, self l2.MAC) *Listener {
	return &Listener{table: table, routes: routes, self: self}
}

// helloAddrs flattens a HelloMessage's IPv4/IPv6 fields into one slice.
func helloAddrs(h wire.HelloMessage) []net.IP {
	addrs := make([]net.IP, 0, 1+len(h.IPv6))
	if h.IPv4 != nil {
		addrs = append(addrs, h.IPv4)
	}
	addrs = append(addrs, h.IPv6...)
	return addrs
}

// Process handles one HELLO received from srcMAC. It returns true for
// every HELLO not sent from the node's own MAC (the caller then refreshes
// the neighbors file), and false for a looped-back HELLO.
func (l *Listener) Process(srcMAC l2.MAC, hello wire.HelloMessage, now time.Time) (updated bool) {
	if srcMAC == l.self {
		return false
	}
	addrs := helloAddrs(hello)
	isNew, changed := l.table.Observe(srcMAC, addrs, now)
	if isNew || changed {
		for _, addr := range addrs {
			l.routes.UpdateEntry(addr, srcMAC, SeedReward)
		}
	}
	return true
}
