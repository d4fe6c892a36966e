package l2

import (
	"errors"

	"github.com/adhocmesh/adhocmeshd/internal/wire"
)

// errFakeClosed is returned by FakeTransport.Recv after Close.
var errFakeClosed = errors.New("l2: fake transport closed")

type fakeFrame struct {
	src     MAC
	msg     wire.Message
	payload []byte
}

// FakeTransport is an in-memory Transport used by component tests in
// place of a real network interface. Recv drops frames whose source is
// the fake's own MAC; no allow-list is applied. Two FakeTransports can be
// wired together with Link to simulate a point-to-point medium.
type FakeTransport struct {
	local MAC
	peer  *FakeTransport
	inbox chan fakeFrame
	done  chan struct{}
}

// NewFakeTransport creates an unlinked fake bound to local.
func NewFakeTransport(local MAC) *FakeTransport {
	return &FakeTransport{local: local, inbox: make(chan fakeFrame, 64), done: make(chan struct{})}
}

// Link wires a and b so that frames sent on one arrive on the other's
// Recv, as if they shared a broadcast medium.
func Link(a, b *FakeTransport) {
	a.peer = b
	b.peer = a
}

func (f *FakeTransport) LocalMAC() MAC { return f.local }

func (f *FakeTransport) Send(dst MAC, msg wire.Message, payload []byte) error {
	if f.peer == nil {
		return nil
	}
	select {
	case f.peer.inbox <- fakeFrame{src: f.local, msg: msg, payload: payload}:
	case <-f.peer.done:
	}
	return nil
}

func (f *FakeTransport) Recv() (MAC, wire.Message, []byte, error) {
	select {
	case fr := <-f.inbox:
		if fr.src == f.local {
			return f.Recv()
		}
		return fr.src, fr.msg, fr.payload, nil
	case <-f.done:
		return MAC{}, nil, nil, errFakeClosed
	}
}

func (f *FakeTransport) Close() error {
	close(f.done)
	return nil
}
