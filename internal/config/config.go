// Package config defines the daemon's configuration surface and parses
// it from command-line flags.
package config

import (
	"flag"
	"fmt"
	"strconv"
	"strings"

	"github.com/adhocmesh/adhocmeshd/internal/gateway"
)

// PortSet is the set of TCP or UDP ports a given protocol is allow-listed
// for end-to-end ARQ. ICMP, which has no ports, is tracked separately by
// Config.ArqAllowICMP.
type PortSet map[int]bool

// Config holds every daemon-wide setting named in the external
// interfaces: device/interface names, logging, the three independent
// mode flags, gateway behavior, and the ARQ-for-data allow-list.
type Config struct {
	DeviceName    string
	IfaceName     string
	DataDir       string
	LogLevel      string
	TopologyMode  bool
	MonitorMode   bool
	GatewayMode   bool
	GatewayType   gateway.GatewayType
	ArqForData    bool
	ArqAllowTCP   PortSet
	ArqAllowUDP   PortSet
	ArqAllowICMP  bool
	ManagementSoc string
}

// Default returns the configuration used when no flags override it.
func Default() *Config {
	return &Config{
		DeviceName:    "adhoc0",
		IfaceName:     "wlan0",
		DataDir:       "/var/lib/adhocmeshd",
		LogLevel:      "INFO",
		GatewayType:   gateway.GatewayDisabled,
		ArqAllowTCP:   PortSet{},
		ArqAllowUDP:   PortSet{},
		ManagementSoc: "/tmp/uds_socket",
	}
}

// Parse builds a Config from args (typically os.Args[1:]), starting from
// Default and overriding it with whatever flags are present.
func Parse(args []string) (*Config, error) {
	cfg := Default()
	fs := flag.NewFlagSet("adhocmeshd", flag.ContinueOnError)

	fs.StringVar(&cfg.DeviceName, "device", cfg.DeviceName, "virtual interface device name")
	fs.StringVar(&cfg.IfaceName, "iface", cfg.IfaceName, "wireless interface to bind the raw socket to")
	fs.StringVar(&cfg.DataDir, "data-dir", cfg.DataDir, "directory for the neighbors file, route dump, and topology file")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "CRITICAL, ERROR, WARNING, INFO, or DEBUG")
	fs.BoolVar(&cfg.TopologyMode, "topology-filter", cfg.TopologyMode, "restrict neighbors to topology.conf")
	fs.BoolVar(&cfg.MonitorMode, "monitor", cfg.MonitorMode, "observe traffic without forwarding or re-broadcasting")
	fs.BoolVar(&cfg.GatewayMode, "gateway", cfg.GatewayMode, "advertise a default route to the mesh")
	gwType := fs.String("gateway-type", "disabled", "local, public, or disabled")
	fs.BoolVar(&cfg.ArqForData, "arq-data", cfg.ArqForData, "enable end-to-end ARQ for data traffic matching the ARQ allow-list")
	arqPorts := fs.String("arq-ports", "", "comma-separated proto:port pairs ARQ-covers for data traffic, e.g. tcp:80,udp:53,icmp:0")
	fs.StringVar(&cfg.ManagementSoc, "uds-socket", cfg.ManagementSoc, "management unix domain socket path")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	switch strings.ToLower(*gwType) {
	case "local":
		cfg.GatewayType = gateway.GatewayLocal
	case "public":
		cfg.GatewayType = gateway.GatewayPublic
	case "disabled", "":
		cfg.GatewayType = gateway.GatewayDisabled
	default:
		return nil, fmt.Errorf("config: unknown gateway-type %q", *gwType)
	}

	if err := parseArqPorts(cfg, *arqPorts); err != nil {
		return nil, err
	}
	return cfg, nil
}

func parseArqPorts(cfg *Config, spec string) error {
	if spec == "" {
		return nil
	}
	for _, pair := range strings.Split(spec, ",") {
		parts := strings.SplitN(pair, ":", 2)
		if len(parts) != 2 {
			return fmt.Errorf("config: malformed arq-ports entry %q", pair)
		}
		port, err := strconv.Atoi(parts[1])
		if err != nil {
			return fmt.Errorf("config: bad port in %q: %w", pair, err)
		}
		switch strings.ToLower(parts[0]) {
		case "tcp":
			cfg.ArqAllowTCP[port] = true
		case "udp":
			cfg.ArqAllowUDP[port] = true
		case "icmp":
			cfg.ArqAllowICMP = true
		default:
			return fmt.Errorf("config: unknown protocol in %q", pair)
		}
	}
	return nil
}
