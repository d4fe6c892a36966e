// Package viface implements the virtual-interface I/O component (C3): a
// TUN device carrying the node's own IP traffic, plus the static helpers
// the data handler uses to classify a raw packet without a full userspace
// IP stack.
package viface

import (
	"encoding/binary"
	"net"

	"golang.org/x/net/ipv4"
)

// MTU is the fixed MTU of the adhoc0 TUN device.
const MTU = 1400

// DefaultName is the TUN device name used unless overridden by
// configuration.
const DefaultName = "adhoc0"

// L4Proto names the upper-layer protocols the handler distinguishes.
type L4Proto int

const (
	L4Unknown L4Proto = iota
	L4TCP
	L4UDP
	L4ICMPv4
	L4ICMPv6
)

func (p L4Proto) String() string {
	switch p {
	case L4TCP:
		return "TCP"
	case L4UDP:
		return "UDP"
	case L4ICMPv4:
		return "ICMP4"
	case L4ICMPv6:
		return "ICMP6"
	default:
		return "UNKNOWN"
	}
}

const (
	protoICMPv4 = 1
	protoTCP    = 6
	protoUDP    = 17
	protoICMPv6 = 58
)

// Device is the interface the data handler consumes; the real
// implementation (Linux TUN via an ioctl-configured file descriptor) is
// an external collaborator per the core's scope and lives in tun_linux.go.
type Device interface {
	// RecvFromApp blocks for one outgoing packet from the local stack.
	RecvFromApp() ([]byte, error)
	// SendToApp delivers a packet up to the local IP stack.
	SendToApp(packet []byte) error
	// InjectBack re-queues a packet as if the kernel had re-emitted it,
	// used after a delayed route resolution or a failed forward.
	InjectBack(packet []byte) error
	// LocalIPs returns the L3 addresses currently assigned to the
	// interface.
	LocalIPs() ([]net.IP, error)
	Close() error
}

// ExtractL3 returns the source and destination addresses of an IPv4 or
// IPv6 packet. ok is false for anything else.
func ExtractL3(packet []byte) (src, dst net.IP, ok bool) {
	if len(packet) < 1 {
		return nil, nil, false
	}
	version := packet[0] >> 4
	switch version {
	case 4:
		hdr, err := ipv4.ParseHeader(packet)
		if err != nil {
			return nil, nil, false
		}
		return hdr.Src, hdr.Dst, true
	case 6:
		if len(packet) < 40 {
			return nil, nil, false
		}
		src := net.IP(append([]byte(nil), packet[8:24]...))
		dst := net.IP(append([]byte(nil), packet[24:40]...))
		return src, dst, true
	default:
		return nil, nil, false
	}
}

// ExtractL4 returns the upper-layer protocol and destination port. ICMP
// has no ports and always yields port 0; an unrecognized upper protocol
// yields (L4Unknown, 0).
func ExtractL4(packet []byte) (L4Proto, uint16) {
	if len(packet) < 1 {
		return L4Unknown, 0
	}
	version := packet[0] >> 4
	switch version {
	case 4:
		hdr, err := ipv4.ParseHeader(packet)
		if err != nil {
			return L4Unknown, 0
		}
		return protoToL4(hdr.Protocol, packet[hdr.Len:])
	case 6:
		if len(packet) < 40 {
			return L4Unknown, 0
		}
		nextHeader := int(packet[6])
		return protoToL4(nextHeader, packet[40:])
	default:
		return L4Unknown, 0
	}
}

// protoToL4 classifies the upper-layer protocol number and, for TCP/UDP,
// reads the destination port out of l4 (the bytes following the L3
// header).
func protoToL4(proto int, l4 []byte) (L4Proto, uint16) {
	switch proto {
	case protoICMPv4:
		return L4ICMPv4, 0
	case protoICMPv6:
		return L4ICMPv6, 0
	case protoTCP:
		return L4TCP, dstPort(l4)
	case protoUDP:
		return L4UDP, dstPort(l4)
	default:
		return L4Unknown, 0
	}
}

// dstPort reads the destination port from a TCP or UDP header, both of
// which place it at offset 2.
func dstPort(l4 []byte) uint16 {
	if len(l4) < 4 {
		return 0
	}
	return binary.BigEndian.Uint16(l4[2:4])
}
