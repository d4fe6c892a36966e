// Package l2 implements the raw Ethernet transport (C2): framing
// wire.Message payloads behind a custom EtherType, loopback suppression,
// and an optional neighbor allow-list (topology filter).
package l2

import (
	"encoding/hex"
	"errors"
	"fmt"
)

// MAC is a canonical 6-byte Ethernet address.
type MAC [6]byte

// Broadcast is the all-ones Ethernet destination.
var Broadcast = MAC{0xff, 0xff, 0xff, 0xff, 0xff, 0xff}

// Zero is the unset MAC, used as a sentinel for "no next hop".
var Zero = MAC{}

func (m MAC) String() string {
	return fmt.Sprintf("%02x:%02x:%02x:%02x:%02x:%02x", m[0], m[1], m[2], m[3], m[4], m[5])
}

// IsZero reports whether m is the unset sentinel.
func (m MAC) IsZero() bool { return m == Zero }

// ErrMalformedMAC is returned by ParseMAC for an invalid textual address.
var ErrMalformedMAC = errors.New("l2: malformed MAC address")

// ParseMAC parses a colon-separated hex MAC such as "aa:bb:cc:dd:ee:ff".
func ParseMAC(s string) (MAC, error) {
	var m MAC
	if len(s) != 17 {
		return m, ErrMalformedMAC
	}
	for i := 0; i < 6; i++ {
		b, err := hex.DecodeString(s[i*3 : i*3+2])
		if err != nil || len(b) != 1 {
			return m, ErrMalformedMAC
		}
		m[i] = b[0]
		if i < 5 && s[i*3+2] != ':' {
			return m, ErrMalformedMAC
		}
	}
	return m, nil
}
