package viface

import (
	"errors"
	"net"
)

// errClosed is returned by FakeDevice once Close has been called.
var errClosed = errors.New("viface: fake device closed")

// FakeDevice is an in-memory Device used by data-handler tests: writes to
// the app queue onto Outbound, reads from Inbound as if the local stack
// had emitted them.
type FakeDevice struct {
	Inbound  chan []byte
	Outbound chan []byte
	ips      []net.IP
	closed   chan struct{}
}

// NewFakeDevice creates a FakeDevice reporting ips as its local addresses.
func NewFakeDevice(ips ...net.IP) *FakeDevice {
	return &FakeDevice{
		Inbound:  make(chan []byte, 64),
		Outbound: make(chan []byte, 64),
		ips:      ips,
		closed:   make(chan struct{}),
	}
}

func (f *FakeDevice) RecvFromApp() ([]byte, error) {
	select {
	case p := <-f.Inbound:
		return p, nil
	case <-f.closed:
		return nil, errClosed
	}
}

func (f *FakeDevice) SendToApp(packet []byte) error {
	select {
	case f.Outbound <- packet:
		return nil
	case <-f.closed:
		return errClosed
	}
}

// InjectBack feeds packet back in as if freshly originated by the local
// stack.
func (f *FakeDevice) InjectBack(packet []byte) error {
	select {
	case f.Inbound <- packet:
		return nil
	case <-f.closed:
		return errClosed
	}
}

func (f *FakeDevice) LocalIPs() ([]net.IP, error) { return f.ips, nil }

func (f *FakeDevice) Close() error {
	close(f.closed)
	return nil
}
