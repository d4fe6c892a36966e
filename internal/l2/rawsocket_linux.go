//go:build linux

package l2

import (
	"encoding/binary"
	"errors"
	"fmt"
	"net"
	"sync"

	"golang.org/x/sys/unix"

	"github.com/adhocmesh/adhocmeshd/internal/wire"
)

// ErrClosed is returned by Recv once the transport has been closed.
var ErrClosed = errors.New("l2: transport closed")

// RawSocket is a Transport backed by an AF_PACKET raw socket bound to a
// single interface, filtering on wire.EtherType. It is the production
// implementation of C2 on Linux.
type RawSocket struct {
	fd      int
	ifindex int
	local   MAC

	filter *AllowList

	mu     sync.Mutex
	closed bool
}

// NewRawSocket opens an AF_PACKET socket bound to ifaceName. If allow is
// non-nil, frames whose source MAC is not in allow are discarded in Recv
// (topology-filter mode).
func NewRawSocket(ifaceName string, allow *AllowList) (*RawSocket, error) {
	iface, err := net.InterfaceByName(ifaceName)
	if err != nil {
		return nil, fmt.Errorf("l2: lookup interface %s: %w", ifaceName, err)
	}
	var local MAC
	copy(local[:], iface.HardwareAddr)

	proto := htons(wire.EtherType)
	fd, err := unix.Socket(unix.AF_PACKET, unix.SOCK_RAW, int(proto))
	if err != nil {
		return nil, fmt.Errorf("l2: open AF_PACKET socket: %w", err)
	}
	sa := &unix.SockaddrLinklayer{
		Protocol: proto,
		Ifindex:  iface.Index,
	}
	if err := unix.Bind(fd, sa); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("l2: bind to %s: %w", ifaceName, err)
	}
	return &RawSocket{fd: fd, ifindex: iface.Index, local: local, filter: allow}, nil
}

func htons(v uint16) uint16 {
	b := make([]byte, 2)
	binary.BigEndian.PutUint16(b, v)
	return binary.LittleEndian.Uint16(b)
}

func (r *RawSocket) LocalMAC() MAC { return r.local }

// Send prepends the Ethernet header and writes the frame to the socket.
func (r *RawSocket) Send(dst MAC, msg wire.Message, payload []byte) error {
	frame, err := buildFrame(dst, r.local, msg, payload)
	if err != nil {
		return err
	}
	sa := &unix.SockaddrLinklayer{
		Protocol: htons(wire.EtherType),
		Ifindex:  r.ifindex,
		Halen:    6,
	}
	copy(sa.Addr[:6], dst[:])
	return unix.Sendto(r.fd, frame, 0, sa)
}

// Recv blocks for one frame, discarding loopback frames (source == our
// own MAC) and, if a topology filter is configured, frames from MACs
// outside the allow-list.
func (r *RawSocket) Recv() (MAC, wire.Message, []byte, error) {
	buf := make([]byte, 65536)
	for {
		n, _, err := unix.Recvfrom(r.fd, buf, 0)
		if err != nil {
			if r.isClosed() {
				return MAC{}, nil, nil, ErrClosed
			}
			return MAC{}, nil, nil, fmt.Errorf("l2: recvfrom: %w", err)
		}
		src, msg, payload, ok, decErr := parseFrame(buf[:n])
		if !ok {
			continue
		}
		if src == r.local {
			continue
		}
		if r.filter != nil && !r.filter.Allowed(src) {
			continue
		}
		if decErr != nil {
			return src, nil, nil, decErr
		}
		return src, msg, payload, nil
	}
}

func (r *RawSocket) isClosed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

// Close unblocks any pending Recv by closing the underlying file
// descriptor.
func (r *RawSocket) Close() error {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
	return unix.Close(r.fd)
}
