package metrics

import (
	"github.com/adhocmesh/adhocmeshd/internal/l2"
	"github.com/adhocmesh/adhocmeshd/internal/wire"
)

// MeteredTransport wraps an l2.Transport, counting every frame sent and
// received by wire tag against a Registry, so every component sharing the
// underlying transport (data handler, ARQ engine, reward engine,
// advertiser) is metered from one place.
type MeteredTransport struct {
	inner l2.Transport
	reg   *Registry
}

// Meter wraps inner so its traffic is counted against reg.
func Meter(inner l2.Transport, reg *Registry) *MeteredTransport {
	return &MeteredTransport{inner: inner, reg: reg}
}

func (m *MeteredTransport) Send(dst l2.MAC, msg wire.Message, payload []byte) error {
	err := m.inner.Send(dst, msg, payload)
	if err == nil {
		m.reg.FramesSent.WithLabelValues(msg.Tag().String()).Inc()
	}
	return err
}

func (m *MeteredTransport) Recv() (l2.MAC, wire.Message, []byte, error) {
	src, msg, payload, err := m.inner.Recv()
	if err == nil {
		m.reg.FramesReceived.WithLabelValues(msg.Tag().String()).Inc()
	}
	return src, msg, payload, err
}

func (m *MeteredTransport) Close() error { return m.inner.Close() }

func (m *MeteredTransport) LocalMAC() l2.MAC { return m.inner.LocalMAC() }
