package gateway

import "net"

// GatewayType selects how non-mesh destinations are handled.
type GatewayType int

const (
	// GatewayDisabled never applies a gateway mapping.
	GatewayDisabled GatewayType = iota
	// GatewayLocal maps only RFC1918/link-local destinations to the
	// default-route sentinel.
	GatewayLocal
	// GatewayPublic maps any non-mesh destination, local or public, to
	// the default-route sentinel.
	GatewayPublic
)

var privateBlocks = mustParseCIDRs(
	"10.0.0.0/8",
	"172.16.0.0/12",
	"192.168.0.0/16",
	"169.254.0.0/16",
	"fc00::/7",
	"fe80::/10",
)

func mustParseCIDRs(cidrs ...string) []*net.IPNet {
	nets := make([]*net.IPNet, 0, len(cidrs))
	for _, c := range cidrs {
		_, n, err := net.ParseCIDR(c)
		if err != nil {
			panic(err)
		}
		nets = append(nets, n)
	}
	return nets
}

// IsPrivate reports whether ip falls in an RFC1918, IPv6 unique-local
// (fc00::/7) or link-local range.
func IsPrivate(ip net.IP) bool {
	for _, n := range privateBlocks {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}

// IsMulticastOrBroadcast reports whether dst is a multicast address
// (IPv6 ff00::/8, IPv4 224/4 or 239/4) or an IPv4 subnet broadcast
// address (an address inside localSubnet whose last octet is 255,
// whatever the mask length).
func IsMulticastOrBroadcast(dst net.IP, localSubnet *net.IPNet) bool {
	if dst.IsMulticast() {
		return true
	}
	if v4 := dst.To4(); v4 != nil && localSubnet != nil {
		if isSubnetBroadcast(v4, localSubnet) {
			return true
		}
	}
	return false
}

// isSubnetBroadcast matches the node's own subnet's broadcast address,
// recognized by the conventional last-octet-255 form.
func isSubnetBroadcast(v4 net.IP, subnet *net.IPNet) bool {
	return subnet.Contains(v4) && v4[3] == 0xff
}

// Mapper applies gateway mode: it decides whether a destination that the
// route table cannot resolve directly should instead be routed to the
// default-route sentinel, and remembers destinations whose path
// discovery has already run to completion without ever producing a
// mesh route, so the next outgoing packet to them is remapped straight
// to the sentinel instead of re-triggering discovery.
type Mapper struct {
	gwType GatewayType
	failed *prefixTrie
}

// NewMapper builds a Mapper for the configured gateway type.
func NewMapper(gwType GatewayType) *Mapper {
	return &Mapper{gwType: gwType, failed: newPrefixTrie()}
}

// Map returns the destination to actually route to: either dst unchanged
// (mesh-local) or the default-route sentinel (routed out via a gateway
// neighbor), along with whether a mapping was applied. A destination
// whose discovery has previously failed is always eligible for the
// sentinel remap, regardless of the local/public distinction below,
// since re-triggering discovery for it has already proven fruitless.
func (m *Mapper) Map(dst net.IP, sentinel net.IP) (net.IP, bool) {
	if m.gwType == GatewayDisabled {
		return dst, false
	}
	if m.failed.Contains(dst) {
		return sentinel, true
	}
	if m.gwType == GatewayLocal && !IsPrivate(dst) {
		return dst, false
	}
	return sentinel, true
}

// MarkFailed records that gateway resolution for network has failed, so
// future packets to addresses in it become eligible for default-route
// remapping instead of re-triggering path discovery.
func (m *Mapper) MarkFailed(network net.IPNet) {
	m.failed.Insert(network)
}

// MarkFailedIP is MarkFailed for a single address, used by the
// path-discovery expiry path which only has the destination IP, not a
// network.
func (m *Mapper) MarkFailedIP(ip net.IP) {
	m.failed.Insert(net.IPNet{IP: ip, Mask: fullMask(ip)})
}
