// Package metrics holds the relay's Prometheus instruments.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	Connections prometheus.Gauge
	Rooms       prometheus.Gauge
	FramesIn    *prometheus.CounterVec
	Delivered   *prometheus.CounterVec
	Dropped     prometheus.Counter
	Kicked      prometheus.Counter
	Rejected    *prometheus.CounterVec
	Fanout      *prometheus.CounterVec

	gatherer prometheus.Gatherer
}

// New registers the relay instruments on reg. A nil reg uses a private
// registry, which keeps tests independent.
func New(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	m := &Metrics{
		Connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "signage_relay_connections",
			Help: "Open relay websocket sessions",
		}),
		Rooms: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "signage_relay_rooms",
			Help: "Rooms with at least one member",
		}),
		FramesIn: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "signage_relay_frames_in_total",
			Help: "Inbound frames by event type",
		}, []string{"type"}),
		Delivered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "signage_relay_frames_delivered_total",
			Help: "Frames queued to members by event type",
		}, []string{"type"}),
		Dropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "signage_relay_frames_dropped_total",
			Help: "Frames dropped on full member buffers",
		}),
		Kicked: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "signage_relay_kicked_total",
			Help: "Sessions closed by the backpressure policy",
		}),
		Rejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "signage_relay_frames_rejected_total",
			Help: "Inbound frames answered with an error notice",
		}, []string{"code"}),
		Fanout: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "signage_relay_fanout_total",
			Help: "Cross-instance fanout messages by direction and result",
		}, []string{"direction", "result"}),
		gatherer: reg,
	}
	reg.MustRegister(m.Connections, m.Rooms, m.FramesIn, m.Delivered, m.Dropped, m.Kicked, m.Rejected, m.Fanout)
	return m
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
