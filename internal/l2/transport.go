package l2

import (
	"encoding/binary"

	"github.com/adhocmesh/adhocmeshd/internal/wire"
)

const ethHeaderLen = 14

// Transport sends and receives framed wire.Message values over a single
// network interface, filtering by EtherType and (optionally) a neighbor
// allow-list. Recv blocks; closing the transport unblocks it with an
// error (ErrClosed for RawSocket).
type Transport interface {
	Send(dst MAC, msg wire.Message, payload []byte) error
	Recv() (src MAC, msg wire.Message, payload []byte, err error)
	Close() error
	LocalMAC() MAC
}

// buildFrame prepends the Ethernet header {dst, src, EtherType} to the
// encoded message and appends the payload.
func buildFrame(dst, src MAC, msg wire.Message, payload []byte) ([]byte, error) {
	body, err := wire.Encode(msg)
	if err != nil {
		return nil, err
	}
	frame := make([]byte, ethHeaderLen+len(body)+len(payload))
	copy(frame[0:6], dst[:])
	copy(frame[6:12], src[:])
	binary.BigEndian.PutUint16(frame[12:14], wire.EtherType)
	copy(frame[14:14+len(body)], body)
	copy(frame[14+len(body):], payload)
	return frame, nil
}

// parseFrame splits a raw Ethernet frame into (src MAC, message, payload).
// It returns ok=false for frames that are too short or not our EtherType;
// the caller is expected to silently skip those.
func parseFrame(frame []byte) (src MAC, msg wire.Message, payload []byte, ok bool, err error) {
	if len(frame) < ethHeaderLen {
		return src, nil, nil, false, nil
	}
	etherType := binary.BigEndian.Uint16(frame[12:14])
	if etherType != wire.EtherType {
		return src, nil, nil, false, nil
	}
	copy(src[:], frame[6:12])

	msg, err = wire.Decode(frame[ethHeaderLen:])
	if err != nil {
		return src, nil, nil, true, err
	}

	bodyLen := encodedLen(msg)
	rest := frame[ethHeaderLen:]
	if bodyLen > len(rest) {
		bodyLen = len(rest)
	}
	payload = rest[bodyLen:]
	return src, msg, payload, true, nil
}

// encodedLen returns how many bytes of the protocol header the decoded
// message actually occupies, so the remainder of the frame can be
// sliced off as payload.
func encodedLen(msg wire.Message) int {
	switch m := msg.(type) {
	case wire.DataMessage:
		return 4
	case wire.RouteMessage:
		if m.IsV6() {
			return 36
		}
		return 12
	case wire.HelloMessage:
		n := 4
		if m.IPv4 != nil {
			n += 4
		}
		n += 16 * len(m.IPv6)
		return n
	case wire.AckMessage, wire.RewardMessage:
		return 8
	default:
		return 0
	}
}
