// Package daemon assembles every component into one running node: it owns
// the context.Context lifetime, wires the virtual interface, raw transport,
// route table, neighbor discovery, data handler, management socket, and
// metrics exporter together, and runs them under an errgroup so any one
// component's failure tears the rest down cleanly.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/adhocmesh/adhocmeshd/internal/config"
	"github.com/adhocmesh/adhocmeshd/internal/datahandler"
	"github.com/adhocmesh/adhocmeshd/internal/l2"
	"github.com/adhocmesh/adhocmeshd/internal/logging"
	"github.com/adhocmesh/adhocmeshd/internal/metrics"
	"github.com/adhocmesh/adhocmeshd/internal/mgmt"
	"github.com/adhocmesh/adhocmeshd/internal/neighbor"
	"github.com/adhocmesh/adhocmeshd/internal/routetable"
	"github.com/adhocmesh/adhocmeshd/internal/topology"
	"github.com/adhocmesh/adhocmeshd/internal/viface"
	"github.com/adhocmesh/adhocmeshd/internal/wire"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/xid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// MetricsAddr is where the Prometheus /metrics endpoint listens.
const MetricsAddr = "127.0.0.1:9477"

// topologyFileName is the file loadAllowList reads out of Config.DataDir
// when TopologyMode is enabled.
const topologyFileName = "topology.conf"

// neighborsFileName and tableFileName are the external dump files rewritten
// under Config.DataDir on every HELLO and before every HELLO broadcast.
const (
	neighborsFileName = "neighbors_file"
	tableFileName     = "table.txt"
)

// Node owns every long-running component of one mesh participant.
type Node struct {
	cfg        *config.Config
	log        *logrus.Logger
	instanceID xid.ID
	device     viface.Device

	transport l2.Transport
	ownMAC    l2.MAC

	routes    *routetable.Table
	neighbors *neighbor.Table
	handler   *datahandler.Handler

	advertiser *neighbor.Advertiser
	mgmtServer *mgmt.Server
	registry   *metrics.Registry
	metricsSrv *http.Server
}

// New builds a Node from cfg. It opens the TUN device and raw transport,
// so it can fail if either the interface or the socket cannot be created.
func New(cfg *config.Config) (*Node, error) {
	log, err := logging.New(cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("daemon: logging: %w", err)
	}
	instanceID := xid.New()
	log.WithField("component", "daemon").WithField("run_id", instanceID.String()).Info("initializing node")

	device, err := viface.OpenTUN(cfg.DeviceName, viface.MTU)
	if err != nil {
		return nil, fmt.Errorf("daemon: open tun: %w", err)
	}

	allow, err := loadAllowList(cfg)
	if err != nil {
		_ = device.Close()
		return nil, err
	}
	if cfg.TopologyMode {
		if _, statErr := os.Stat(filepath.Join(cfg.DataDir, topologyFileName)); statErr != nil {
			log.WithField("component", "daemon").WithField("err", statErr).Warn("topology file unavailable; filtering every incoming frame")
		}
	}

	rawTransport, err := l2.NewRawSocket(cfg.IfaceName, allow)
	if err != nil {
		_ = device.Close()
		return nil, fmt.Errorf("daemon: open raw socket: %w", err)
	}
	ownMAC := rawTransport.LocalMAC()

	reg := prometheus.NewRegistry()
	registry := metrics.NewRegistry(reg)
	var transport l2.Transport = metrics.Meter(rawTransport, registry)

	selector := routetable.NewSelector(routetable.EpsilonGreedy, rand.New(rand.NewSource(time.Now().UnixNano())))
	routes := routetable.New(selector, ownMAC)
	neighbors := neighbor.New()

	neighborsFilePath := filepath.Join(cfg.DataDir, neighborsFileName)
	onNeighborsUpdated := func() {
		if err := neighbor.WriteNeighborsFile(neighborsFilePath, neighbors.Snapshot()); err != nil {
			log.WithField("component", "daemon").WithField("err", err).Warn("failed to rewrite neighbors file")
		}
	}

	tableFilePath := filepath.Join(cfg.DataDir, tableFileName)
	onBeforeAdvertise := func() {
		if err := atomicWriteFile(tableFilePath, []byte(routes.DumpText())); err != nil {
			log.WithField("component", "daemon").WithField("err", err).Warn("failed to rewrite route table file")
		}
	}

	handlerCfg := datahandler.Config{
		MonitorMode:        cfg.MonitorMode,
		ArqForData:         cfg.ArqForData,
		ArqAllowTCP:        cfg.ArqAllowTCP,
		ArqAllowUDP:        cfg.ArqAllowUDP,
		ArqAllowICMP:       cfg.ArqAllowICMP,
		GatewayType:        cfg.GatewayType,
		Metrics:            registry,
		OnNeighborsUpdated: onNeighborsUpdated,
	}
	handlerLog := logging.Component(log, "datahandler").WithField("run_id", instanceID.String())
	handler := datahandler.New(device, transport, ownMAC, routes, neighbors, handlerCfg, handlerLog)

	n := &Node{
		cfg:        cfg,
		log:        log,
		instanceID: instanceID,
		device:     device,
		transport:  transport,
		ownMAC:     ownMAC,
		routes:     routes,
		neighbors:  neighbors,
		handler:    handler,
		advertiser: neighbor.NewAdvertiser(transport, device, routes, cfg.GatewayMode, onBeforeAdvertise),
		registry:   registry,
		metricsSrv: &http.Server{Addr: MetricsAddr, Handler: promhttp.HandlerFor(reg, promhttp.HandlerOpts{})},
	}

	if cfg.ManagementSoc != "" {
		srv, err := mgmt.Listen(cfg.ManagementSoc, n)
		if err != nil {
			_ = device.Close()
			_ = transport.Close()
			return nil, fmt.Errorf("daemon: mgmt listen: %w", err)
		}
		n.mgmtServer = srv
	}

	return n, nil
}

// atomicWriteFile writes data to a sibling temp file and renames it over
// path, so a reader never observes a partially written table.txt.
func atomicWriteFile(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func loadAllowList(cfg *config.Config) (*l2.AllowList, error) {
	if !cfg.TopologyMode {
		return nil, nil
	}
	path := filepath.Join(cfg.DataDir, topologyFileName)
	f, err := os.Open(path)
	if err != nil {
		// A missing topology file under an enabled filter degrades to an
		// empty allow-list rather than failing the whole daemon.
		return l2.NewAllowList(nil), nil
	}
	defer f.Close()

	groups, err := topology.Parse(f)
	if err != nil {
		return nil, fmt.Errorf("daemon: parse %s: %w", path, err)
	}

	iface, err := net.InterfaceByName(cfg.IfaceName)
	if err != nil {
		return nil, fmt.Errorf("daemon: lookup interface %s: %w", cfg.IfaceName, err)
	}
	var self l2.MAC
	copy(self[:], iface.HardwareAddr)
	return topology.AllowListFor(groups, self), nil
}

// Run blocks, driving every component, until ctx is canceled or a
// component fails. It returns the first error encountered.
func (n *Node) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error { return n.runOutgoingLoop(ctx) })
	g.Go(func() error { return n.runIncomingLoop(ctx) })
	g.Go(func() error { return n.runAdvertiser(ctx) })
	g.Go(func() error { return n.runSweepLoop(ctx) })
	g.Go(func() error { return n.runMetricsServer(ctx) })
	if n.mgmtServer != nil {
		g.Go(func() error { return n.runMgmtServer(ctx) })
	}

	err := g.Wait()
	n.shutdown()
	return err
}

func (n *Node) runOutgoingLoop(ctx context.Context) error {
	for {
		packet, err := n.device.RecvFromApp()
		if err != nil {
			return fmt.Errorf("daemon: device recv: %w", err)
		}
		if err := n.handler.ProcessOutgoing(packet); err != nil {
			n.log.WithField("component", "daemon").WithField("err", err).Warn("dropping outgoing packet")
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
	}
}

func (n *Node) runIncomingLoop(ctx context.Context) error {
	for {
		src, msg, payload, err := n.transport.Recv()
		if err != nil {
			if errors.Is(err, wire.ErrUnknownType) || errors.Is(err, wire.ErrTruncated) {
				n.log.WithField("component", "daemon").WithField("peer", src).WithField("err", err).Error("dropping undecodable frame")
				continue
			}
			return fmt.Errorf("daemon: transport recv: %w", err)
		}
		if err := n.handler.ProcessIncoming(src, msg, payload); err != nil {
			n.log.WithField("component", "daemon").WithField("err", err).Warn("dropping incoming frame")
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
	}
}

func (n *Node) runAdvertiser(ctx context.Context) error {
	stop := make(chan struct{})
	go func() {
		<-ctx.Done()
		close(stop)
	}()
	n.advertiser.Run(stop, func(err error) {
		n.log.WithField("component", "neighbor").WithField("err", err).Warn("advertise failed")
	})
	return ctx.Err()
}

func (n *Node) runSweepLoop(ctx context.Context) error {
	ticker := time.NewTicker(neighbor.ExpiryTimeout / 2)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C:
			for _, mac := range n.neighbors.Sweep(now) {
				n.log.WithField("component", "neighbor").WithField("mac", mac).Info("neighbor expired")
				n.registry.NeighborExpiries.Inc()
			}
			n.registry.ActiveNeighbors.Set(float64(n.neighbors.Count()))
			n.registry.ActiveARQSlots.Set(float64(n.handler.ArqPending()))
		}
	}
}

func (n *Node) runMetricsServer(ctx context.Context) error {
	errc := make(chan error, 1)
	go func() { errc <- n.metricsSrv.ListenAndServe() }()
	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		return n.metricsSrv.Shutdown(shutdownCtx)
	case err := <-errc:
		if err == http.ErrServerClosed {
			return nil
		}
		return fmt.Errorf("daemon: metrics server: %w", err)
	}
}

func (n *Node) runMgmtServer(ctx context.Context) error {
	errc := make(chan error, 1)
	go func() { errc <- n.mgmtServer.Serve() }()
	select {
	case <-ctx.Done():
		return n.mgmtServer.Close()
	case err := <-errc:
		return fmt.Errorf("daemon: mgmt server: %w", err)
	}
}

func (n *Node) shutdown() {
	_ = n.device.Close()
	_ = n.transport.Close()
	if n.mgmtServer != nil {
		_ = n.mgmtServer.Close()
	}
}

// FlushTable satisfies mgmt.Backend.
func (n *Node) FlushTable() {
	n.routes.Flush()
}

// FlushNeighbors satisfies mgmt.Backend.
func (n *Node) FlushNeighbors() {
	for _, mac := range n.neighbors.Sweep(time.Now().Add(24 * time.Hour)) {
		n.log.WithField("component", "mgmt").WithField("mac", mac).Info("neighbor flushed")
	}
}

// DumpTable satisfies mgmt.Backend.
func (n *Node) DumpTable() string {
	return n.routes.DumpText()
}

// DumpNeighbors satisfies mgmt.Backend.
func (n *Node) DumpNeighbors() string {
	var out string
	for _, e := range n.neighbors.Snapshot() {
		out += fmt.Sprintf("%s %v\n", e.MAC, e.Addrs)
	}
	return out
}
