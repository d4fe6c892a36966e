package neighbor

import (
	"net"
	"time"

	"github.com/adhocmesh/adhocmeshd/internal/l2"
	"github.com/adhocmesh/adhocmeshd/internal/seqnum"
	"github.com/adhocmesh/adhocmeshd/internal/wire"
)

// LocalIPSource is consulted each advertisement cycle for the node's
// current L3 addresses, mirroring viface.Device.LocalIPs without an
// import-time dependency on that package.
type LocalIPSource interface {
	LocalIPs() ([]net.IP, error)
}

// RouteUpdater pins the node's own addresses into the route table,
// matching routetable.Table.UpdateIPsInTable's signature.
type RouteUpdater interface {
	UpdateIPsInTable(ips []net.IP)
}

// Advertiser periodically broadcasts a HELLO carrying the node's current
// addresses and keeps the route table seeded with them.
type Advertiser struct {
	transport l2.Transport
	ips       LocalIPSource
	routes    RouteUpdater
	gwMode    bool

	txCount *seqnum.Counter

	// onBeforeAdvertise, if non-nil, is called once per Advertise just
	// before the HELLO is sent, so the route-table dump file can be
	// rewritten before each HELLO broadcast.
	onBeforeAdvertise func()
}

// NewAdvertiser builds an Advertiser broadcasting over transport.
// onBeforeAdvertise may be nil.
func NewAdvertiser(transport l2.Transport, ips LocalIPSource, routes RouteUpdater, gwMode bool, onBeforeAdvertise func()) *Advertiser {
	return &Advertiser{transport: transport, ips: ips, routes: routes, gwMode: gwMode, txCount: seqnum.New(), onBeforeAdvertise: onBeforeAdvertise}
}

// Advertise collects the current local addresses, reseeds the route
// table, and broadcasts a HELLO. It is meant to be called every
// AdvertiseInterval by the owning run loop.
func (a *Advertiser) Advertise() error {
	ips, err := a.ips.LocalIPs()
	if err != nil {
		return err
	}
	a.routes.UpdateIPsInTable(ips)

	if a.onBeforeAdvertise != nil {
		a.onBeforeAdvertise()
	}

	var v4 net.IP
	var v6 []net.IP
	for _, ip := range ips {
		if wire.PreferIPv4(ip) {
			if v4 == nil {
				v4 = ip
			}
			continue
		}
		if len(v6) < 3 {
			v6 = append(v6, ip)
		}
	}
	if a.gwMode {
		v6 = append(v6, wire.DefaultRouteSentinel)
		if len(v6) > 3 {
			v6 = v6[len(v6)-3:]
		}
	}

	hello := wire.HelloMessage{TxCount: a.txCount.Next(), GwMode: a.gwMode, IPv4: v4, IPv6: v6}
	return a.transport.Send(l2.Broadcast, hello, nil)
}

// Run calls Advertise every AdvertiseInterval until stop is closed.
func (a *Advertiser) Run(stop <-chan struct{}, onError func(error)) {
	ticker := time.NewTicker(AdvertiseInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if err := a.Advertise(); err != nil && onError != nil {
				onError(err)
			}
		}
	}
}
