package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Errors returned by Decode/Encode. Callers match with errors.Is.
var (
	// ErrUnknownType is returned when the low 4 bits of the first octet
	// do not name one of the ten known tags (0-9).
	ErrUnknownType = errors.New("wire: unknown message type")
	// ErrTruncated is returned when the buffer is shorter than the
	// minimum length required by the declared tag.
	ErrTruncated = errors.New("wire: truncated message")
	// ErrBadAddress is returned when an address cannot be converted to
	// its wire representation (wrong length, nil, etc).
	ErrBadAddress = errors.New("wire: bad address")
)

// Encode serializes a message into its wire representation.
func Encode(m Message) ([]byte, error) {
	body, err := m.encodeBody()
	if err != nil {
		return nil, err
	}
	return body, nil
}

// Decode parses a message from a raw protocol-header buffer (the portion
// of the frame immediately following the Ethernet header). It returns
// ErrUnknownType for an unrecognized tag and ErrTruncated if buf is
// shorter than that tag's minimum length.
func Decode(buf []byte) (Message, error) {
	if len(buf) < 4 {
		return nil, ErrTruncated
	}
	word := binary.LittleEndian.Uint32(buf[0:4])
	tag := Tag(word & 0xF)

	switch tag {
	case TagUnicastData, TagReliableData:
		id, x := unpackWord(word)
		return DataMessage{Kind: tag, ID: id, HopCount: x}, nil
	case TagBroadcastData:
		id, x := unpackWord(word)
		return DataMessage{Kind: tag, ID: id, TTL: x}, nil
	case TagRREQ4, TagRREP4:
		if len(buf) < 12 {
			return nil, ErrTruncated
		}
		id, hc := unpackWord(word)
		src := decodeIPv4(buf[4:8])
		dst := decodeIPv4(buf[8:12])
		return RouteMessage{Kind: tag, ID: id, HopCount: hc, SrcIP: src, DstIP: dst}, nil
	case TagRREQ6, TagRREP6:
		if len(buf) < 36 {
			return nil, ErrTruncated
		}
		id, hc := unpackWord(word)
		src := decodeIPv6(buf[4:20])
		dst := decodeIPv6(buf[20:36])
		return RouteMessage{Kind: tag, ID: id, HopCount: hc, SrcIP: src, DstIP: dst}, nil
	case TagHello:
		return decodeHello(buf)
	case TagAck:
		if len(buf) < 8 {
			return nil, ErrTruncated
		}
		id, tx := unpackWord(word)
		hash := binary.LittleEndian.Uint32(buf[4:8])
		return AckMessage{ID: id, TxCount: tx, MsgHash: hash}, nil
	case TagReward:
		if len(buf) < 8 {
			return nil, ErrTruncated
		}
		id, x := unpackWord(word)
		hash := binary.LittleEndian.Uint32(buf[4:8])
		return RewardMessage{ID: id, Neg: x&0x1 != 0, Reward: (x >> 1) & 0x7F, MsgHash: hash}, nil
	default:
		return nil, ErrUnknownType
	}
}

// packWord packs the common `type:4, id:20, x:8` header shape into a
// little-endian 32-bit word.
func packWord(tag Tag, id uint32, x byte) []byte {
	word := uint32(tag&0xF) | (id&MaxID)<<4 | uint32(x)<<24
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, word)
	return b
}

// unpackWord is the inverse of packWord, returning (id, x).
func unpackWord(word uint32) (id uint32, x byte) {
	id = (word >> 4) & MaxID
	x = byte(word >> 24)
	return id, x
}

func (m DataMessage) encodeBody() ([]byte, error) {
	var x byte
	switch m.Kind {
	case TagBroadcastData:
		x = m.TTL
	case TagUnicastData, TagReliableData:
		x = m.HopCount
	default:
		return nil, fmt.Errorf("wire: %w: data message has kind %s", ErrUnknownType, m.Kind)
	}
	return packWord(m.Kind, m.ID, x), nil
}

func (m RouteMessage) encodeBody() ([]byte, error) {
	head := packWord(m.Kind, m.ID, m.HopCount)
	var src, dst []byte
	var err error
	if m.IsV6() {
		if src, err = encodeIPv6(m.SrcIP); err != nil {
			return nil, err
		}
		if dst, err = encodeIPv6(m.DstIP); err != nil {
			return nil, err
		}
	} else {
		if src, err = encodeIPv4(m.SrcIP); err != nil {
			return nil, err
		}
		if dst, err = encodeIPv4(m.DstIP); err != nil {
			return nil, err
		}
	}
	out := make([]byte, 0, len(head)+len(src)+len(dst))
	out = append(out, head...)
	out = append(out, src...)
	out = append(out, dst...)
	return out, nil
}

func (m AckMessage) encodeBody() ([]byte, error) {
	out := packWord(TagAck, m.ID, m.TxCount)
	hash := make([]byte, 4)
	binary.LittleEndian.PutUint32(hash, m.MsgHash)
	return append(out, hash...), nil
}

func (m RewardMessage) encodeBody() ([]byte, error) {
	x := (m.Reward & 0x7F) << 1
	if m.Neg {
		x |= 0x1
	}
	out := packWord(TagReward, m.ID, x)
	hash := make([]byte, 4)
	binary.LittleEndian.PutUint32(hash, m.MsgHash)
	return append(out, hash...), nil
}
