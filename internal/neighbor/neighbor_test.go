package neighbor

import (
	"net"
	"testing"
	"time"

	"github.com/adhocmesh/adhocmeshd/internal/l2"
	"github.com/adhocmesh/adhocmeshd/internal/wire"
)

func TestObserveNewNeighbor(t *testing.T) {
	table := New()
	mac := l2.MAC{1, 2, 3, 4, 5, 6}
	addrs := []net.IP{net.ParseIP("10.0.0.1")}

	isNew, changed := table.Observe(mac, addrs, time.Now())
	if !isNew || !changed {
		t.Fatalf("expected isNew=true changed=true, got %v %v", isNew, changed)
	}
	if !table.IsNeighbor(mac) {
		t.Fatalf("expected neighbor to be recorded")
	}
}

func TestObserveUnchangedAddresses(t *testing.T) {
	table := New()
	mac := l2.MAC{1}
	addrs := []net.IP{net.ParseIP("10.0.0.1")}
	now := time.Now()

	table.Observe(mac, addrs, now)
	isNew, changed := table.Observe(mac, addrs, now.Add(time.Second))
	if isNew || changed {
		t.Fatalf("expected isNew=false changed=false on repeat, got %v %v", isNew, changed)
	}
}

func TestObserveChangedAddresses(t *testing.T) {
	table := New()
	mac := l2.MAC{1}
	now := time.Now()
	table.Observe(mac, []net.IP{net.ParseIP("10.0.0.1")}, now)

	isNew, changed := table.Observe(mac, []net.IP{net.ParseIP("10.0.0.2")}, now.Add(time.Second))
	if isNew || !changed {
		t.Fatalf("expected isNew=false changed=true, got %v %v", isNew, changed)
	}
}

func TestSweepExpiresSilentNeighbors(t *testing.T) {
	table := New()
	mac := l2.MAC{1}
	now := time.Now()
	table.Observe(mac, nil, now)

	expired := table.Sweep(now.Add(ExpiryTimeout + time.Second))
	if len(expired) != 1 || expired[0] != mac {
		t.Fatalf("expected mac to be expired, got %v", expired)
	}
	if table.IsNeighbor(mac) {
		t.Fatalf("expected neighbor to be removed after sweep")
	}
}

func TestSweepKeepsActiveNeighbors(t *testing.T) {
	table := New()
	mac := l2.MAC{1}
	now := time.Now()
	table.Observe(mac, nil, now)

	expired := table.Sweep(now.Add(time.Second))
	if len(expired) != 0 {
		t.Fatalf("expected no expiry, got %v", expired)
	}
}

type fakeRouteSeeder struct {
	calls []struct {
		dst net.IP
		mac l2.MAC
		rw  float64
	}
}

func (f *fakeRouteSeeder) UpdateEntry(dst net.IP, mac l2.MAC, reward float64) float64 {
	f.calls = append(f.calls, struct {
		dst net.IP
		mac l2.MAC
		rw  float64
	}{dst, mac, reward})
	return reward
}

func TestListenerSeedsRouteTableOnNewNeighbor(t *testing.T) {
	table := New()
	routes := &fakeRouteSeeder{}
	self := l2.MAC{0xff}
	listener := NewListener(table, routes, self)

	hello := wire.HelloMessage{TxCount: 1, IPv4: net.ParseIP("10.0.0.7").To4()}
	listener.Process(l2.MAC{1}, hello, time.Now())

	if len(routes.calls) != 1 {
		t.Fatalf("expected one seed call, got %d", len(routes.calls))
	}
	if routes.calls[0].rw != SeedReward {
		t.Fatalf("expected seed reward %v, got %v", SeedReward, routes.calls[0].rw)
	}
}

func TestListenerIgnoresOwnMAC(t *testing.T) {
	table := New()
	routes := &fakeRouteSeeder{}
	self := l2.MAC{0xff}
	listener := NewListener(table, routes, self)

	updated := listener.Process(self, wire.HelloMessage{}, time.Now())
	if updated {
		t.Fatalf("expected own HELLO to be dropped")
	}
	if len(routes.calls) != 0 {
		t.Fatalf("expected no route updates from own HELLO")
	}
}

func TestListenerSuppressesReseedOnUnchangedHello(t *testing.T) {
	table := New()
	routes := &fakeRouteSeeder{}
	listener := NewListener(table, routes, l2.MAC{0xff})
	now := time.Now()
	hello := wire.HelloMessage{IPv4: net.ParseIP("10.0.0.7").To4()}

	listener.Process(l2.MAC{1}, hello, now)
	listener.Process(l2.MAC{1}, hello, now.Add(time.Second))

	if len(routes.calls) != 1 {
		t.Fatalf("expected seeding only on the first, new-neighbor HELLO, got %d calls", len(routes.calls))
	}
}
