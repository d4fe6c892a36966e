// Package msgid computes the truncated-MD5 slot identifiers used to key
// ARQ retransmit slots, ACKs, and reward slots. MD5 is used here purely
// as a fast, well-distributed hash of small byte strings; none of these
// identifiers are ever treated as a security boundary.
package msgid

import (
	"crypto/md5"
	"encoding/binary"
)

// Hash returns md5(concat(parts...)) truncated to its low 32 bits.
func Hash(parts ...[]byte) uint32 {
	h := md5.New()
	for _, p := range parts {
		h.Write(p)
	}
	sum := h.Sum(nil)
	return binary.LittleEndian.Uint32(sum[:4])
}

// Uint32LE encodes v as 4 little-endian bytes, the canonical input form
// for ids and hashes fed into Hash.
func Uint32LE(v uint32) []byte {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, v)
	return b
}
