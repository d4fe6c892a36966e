//go:build linux

package viface

import (
	"fmt"
	"net"
	"os"
	"unsafe"

	"golang.org/x/sys/unix"
)

const (
	ifReqSize  = unix.IFNAMSIZ + 64
	tunDevPath = "/dev/net/tun"
)

// ifReq mirrors struct ifreq's layout for the TUNSETIFF ioctl: a 16-byte
// interface name followed by a union whose first member is the flags we
// set (IFF_TUN, no packet-info prefix).
type ifReq struct {
	Name  [unix.IFNAMSIZ]byte
	Flags uint16
	_     [ifReqSize - unix.IFNAMSIZ - 2]byte
}

// TUN is the Linux implementation of Device: a /dev/net/tun file
// descriptor configured in IFF_TUN | IFF_NO_PI mode, plus a raw socket
// bound to the resulting interface for InjectBack.
type TUN struct {
	file *os.File
	name string
}

// OpenTUN creates (or attaches to) a TUN device named name with the
// given MTU.
func OpenTUN(name string, mtu int) (*TUN, error) {
	fd, err := unix.Open(tunDevPath, unix.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("viface: open %s: %w", tunDevPath, err)
	}
	var req ifReq
	copy(req.Name[:], name)
	req.Flags = unix.IFF_TUN | unix.IFF_NO_PI

	if _, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(fd), uintptr(unix.TUNSETIFF), uintptr(unsafe.Pointer(&req))); errno != 0 {
		unix.Close(fd)
		return nil, fmt.Errorf("viface: TUNSETIFF: %w", errno)
	}

	if err := setMTU(name, mtu); err != nil {
		unix.Close(fd)
		return nil, err
	}
	if err := setUp(name); err != nil {
		unix.Close(fd)
		return nil, err
	}

	return &TUN{file: os.NewFile(uintptr(fd), tunDevPath), name: name}, nil
}

func setMTU(name string, mtu int) error {
	sock, err := unix.Socket(unix.AF_INET, unix.SOCK_DGRAM, 0)
	if err != nil {
		return err
	}
	defer unix.Close(sock)

	var req struct {
		Name [unix.IFNAMSIZ]byte
		MTU  int32
		_    [ifReqSize - unix.IFNAMSIZ - 4]byte
	}
	copy(req.Name[:], name)
	req.MTU = int32(mtu)
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(sock), uintptr(unix.SIOCSIFMTU), uintptr(unsafe.Pointer(&req)))
	if errno != 0 {
		return fmt.Errorf("viface: SIOCSIFMTU: %w", errno)
	}
	return nil
}

func setUp(name string) error {
	sock, err := unix.Socket(unix.AF_INET, unix.SOCK_DGRAM, 0)
	if err != nil {
		return err
	}
	defer unix.Close(sock)

	var req struct {
		Name  [unix.IFNAMSIZ]byte
		Flags uint16
		_     [ifReqSize - unix.IFNAMSIZ - 2]byte
	}
	copy(req.Name[:], name)
	req.Flags = unix.IFF_UP | unix.IFF_RUNNING
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(sock), uintptr(unix.SIOCSIFFLAGS), uintptr(unsafe.Pointer(&req)))
	if errno != 0 {
		return fmt.Errorf("viface: SIOCSIFFLAGS: %w", errno)
	}
	return nil
}

func (t *TUN) RecvFromApp() ([]byte, error) {
	buf := make([]byte, MTU+4)
	n, err := t.file.Read(buf)
	if err != nil {
		return nil, fmt.Errorf("viface: read: %w", err)
	}
	return buf[:n], nil
}

func (t *TUN) SendToApp(packet []byte) error {
	_, err := t.file.Write(packet)
	if err != nil {
		return fmt.Errorf("viface: write: %w", err)
	}
	return nil
}

// InjectBack re-queues packet as an outgoing write, so the kernel treats
// it exactly like a freshly originated packet (this is how a delayed
// route resolution or a failed forward triggers fresh discovery).
func (t *TUN) InjectBack(packet []byte) error {
	return t.SendToApp(packet)
}

func (t *TUN) LocalIPs() ([]net.IP, error) {
	iface, err := net.InterfaceByName(t.name)
	if err != nil {
		return nil, err
	}
	addrs, err := iface.Addrs()
	if err != nil {
		return nil, err
	}
	ips := make([]net.IP, 0, len(addrs))
	for _, a := range addrs {
		ipNet, ok := a.(*net.IPNet)
		if !ok {
			continue
		}
		ips = append(ips, ipNet.IP)
	}
	return ips, nil
}

func (t *TUN) Close() error {
	return t.file.Close()
}
