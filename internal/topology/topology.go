// Package topology parses the static topology-filter configuration: MAC
// groups separated by blank lines, where the first MAC of a group names
// the node that group describes and the rest are its permitted neighbors.
package topology

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/adhocmesh/adhocmeshd/internal/l2"
)

// Group is one node's permitted-neighbor set, as parsed from a single
// blank-line-delimited block of topology.conf.
type Group struct {
	Node      l2.MAC
	Neighbors []l2.MAC
}

// Parse reads topology.conf from r, returning one Group per MAC block.
func Parse(r io.Reader) ([]Group, error) {
	scanner := bufio.NewScanner(r)
	var groups []Group
	var current []l2.MAC

	flush := func() error {
		if len(current) == 0 {
			return nil
		}
		groups = append(groups, Group{Node: current[0], Neighbors: append([]l2.MAC(nil), current[1:]...)})
		current = nil
		return nil
	}

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			if err := flush(); err != nil {
				return nil, err
			}
			continue
		}
		mac, err := l2.ParseMAC(line)
		if err != nil {
			return nil, fmt.Errorf("topology: %w: %q", err, line)
		}
		current = append(current, mac)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if err := flush(); err != nil {
		return nil, err
	}
	return groups, nil
}

// AllowListFor returns the l2.AllowList describing the neighbors
// permitted for node, or an empty allow-list if node has no group
// (matching the "missing topology file behaves as empty allow-list"
// error-handling rule).
func AllowListFor(groups []Group, node l2.MAC) *l2.AllowList {
	for _, g := range groups {
		if g.Node == node {
			return l2.NewAllowList(g.Neighbors)
		}
	}
	return l2.NewAllowList(nil)
}
