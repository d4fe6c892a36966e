// Package gateway implements the gateway-mode helpers: IPv4/IPv6 address
// classification (private, link-local, multicast, broadcast) used to
// decide whether a destination needs a gateway mapping, and the set of
// destinations for which gateway resolution has previously failed, kept
// as a longest-prefix trie so a failure against a whole subnet doesn't
// need to be re-learned address by address.
package gateway

import "net"

// prefixTrie is a longest-prefix-match trie over IP networks, adapted
// for a small, rarely-updated "known failed" set rather than a full
// forwarding table.
type prefixTrie struct {
	root *trieNode
}

type trieEdge struct {
	target  *trieNode
	network net.IPNet
}

type trieNode struct {
	edges []*trieEdge
}

func newPrefixTrie() *prefixTrie {
	return &prefixTrie{root: &trieNode{}}
}

// Insert records network as known (e.g. "gateway resolution failed for
// this whole subnet"), folding any existing more-specific entries under
// the new edge when network is a strict superset of them.
func (t *prefixTrie) Insert(network net.IPNet) {
	best := t.lookup(t.root, network)
	var parent *trieNode
	if best == nil {
		parent = t.root
	} else if best.network.String() == network.String() {
		return
	} else {
		parent = best.target
	}

	fresh := &trieEdge{target: &trieNode{}, network: network}
	parent.edges = append(parent.edges, fresh)
	remaining := parent.edges[:0]
	for _, e := range parent.edges {
		if e != fresh && contains(network, e.network) {
			fresh.target.edges = append(fresh.target.edges, e)
			continue
		}
		remaining = append(remaining, e)
	}
	parent.edges = remaining
}

func contains(a, b net.IPNet) bool {
	if a.String() == b.String() {
		return false
	}
	return a.Contains(b.IP)
}

// lookup returns the most specific edge whose network contains network's
// address, descending into subtries as deep as possible.
func (t *prefixTrie) lookup(n *trieNode, network net.IPNet) *trieEdge {
	var best *trieEdge
	for _, e := range n.edges {
		if e.network.Contains(network.IP) {
			best = e
			if deeper := t.lookup(e.target, network); deeper != nil {
				best = deeper
			}
		}
	}
	return best
}

// Contains reports whether ip falls under any recorded network.
func (t *prefixTrie) Contains(ip net.IP) bool {
	probe := net.IPNet{IP: ip, Mask: fullMask(ip)}
	return t.lookup(t.root, probe) != nil
}

// Delete removes the exact network entry, if present, re-parenting any
// subtrie it owned back to its own parent so more specific entries
// survive the removal.
func (t *prefixTrie) Delete(network net.IPNet) bool {
	return deleteFrom(t.root, network)
}

func deleteFrom(n *trieNode, network net.IPNet) bool {
	for i, e := range n.edges {
		if e.network.String() == network.String() {
			n.edges = append(n.edges[:i], n.edges[i+1:]...)
			n.edges = append(n.edges, e.target.edges...)
			return true
		}
		if deleteFrom(e.target, network) {
			return true
		}
	}
	return false
}

func fullMask(ip net.IP) net.IPMask {
	if v4 := ip.To4(); v4 != nil {
		return net.CIDRMask(32, 32)
	}
	return net.CIDRMask(128, 128)
}
