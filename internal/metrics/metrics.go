// Package metrics defines the prometheus counters and gauges exported by
// the daemon, grouped by the component that updates them.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Registry bundles every metric the daemon exposes, constructed once at
// startup and threaded into the components that update it.
type Registry struct {
	FramesSent       *prometheus.CounterVec
	FramesReceived   *prometheus.CounterVec
	ArqRetransmits   prometheus.Counter
	ArqGiveups       prometheus.Counter
	RewardTimeouts   prometheus.Counter
	RewardsSent      prometheus.Counter
	NeighborJoins    prometheus.Counter
	NeighborExpiries prometheus.Counter
	RREQsSent        prometheus.Counter
	RREPsSent        prometheus.Counter
	ActiveNeighbors  prometheus.Gauge
	ActiveARQSlots   prometheus.Gauge
}

// NewRegistry builds and registers every metric against reg.
func NewRegistry(reg prometheus.Registerer) *Registry {
	r := &Registry{
		FramesSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "adhocmesh",
			Name:      "frames_sent_total",
			Help:      "Ethernet frames transmitted, labeled by wire message tag.",
		}, []string{"tag"}),
		FramesReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "adhocmesh",
			Name:      "frames_received_total",
			Help:      "Ethernet frames received and successfully decoded, labeled by wire message tag.",
		}, []string{"tag"}),
		ArqRetransmits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "adhocmesh",
			Name:      "arq_retransmits_total",
			Help:      "ARQ slot retransmission attempts beyond the first send.",
		}),
		ArqGiveups: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "adhocmesh",
			Name:      "arq_giveups_total",
			Help:      "ARQ slots that exhausted their retry budget without an ACK.",
		}),
		RewardTimeouts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "adhocmesh",
			Name:      "reward_wait_timeouts_total",
			Help:      "Reward-wait slots that resolved to 0 on timeout instead of an observed reward.",
		}),
		RewardsSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "adhocmesh",
			Name:      "rewards_sent_total",
			Help:      "REWARD frames transmitted (after hold-off suppression).",
		}),
		NeighborJoins: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "adhocmesh",
			Name:      "neighbor_joins_total",
			Help:      "Previously-unknown neighbors observed via HELLO.",
		}),
		NeighborExpiries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "adhocmesh",
			Name:      "neighbor_expiries_total",
			Help:      "Neighbors removed after exceeding the silence timeout.",
		}),
		RREQsSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "adhocmesh",
			Name:      "rreqs_sent_total",
			Help:      "Route requests broadcast by this node.",
		}),
		RREPsSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "adhocmesh",
			Name:      "rreps_sent_total",
			Help:      "Route replies sent by this node.",
		}),
		ActiveNeighbors: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "adhocmesh",
			Name:      "active_neighbors",
			Help:      "Current number of live neighbors.",
		}),
		ActiveARQSlots: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "adhocmesh",
			Name:      "active_arq_slots",
			Help:      "Current number of in-flight ARQ retransmit slots.",
		}),
	}

	reg.MustRegister(
		r.FramesSent, r.FramesReceived, r.ArqRetransmits, r.ArqGiveups,
		r.RewardTimeouts, r.RewardsSent, r.NeighborJoins, r.NeighborExpiries,
		r.RREQsSent, r.RREPsSent, r.ActiveNeighbors, r.ActiveARQSlots,
	)
	return r
}
