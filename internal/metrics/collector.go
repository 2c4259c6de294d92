package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collector holds the door server's Prometheus instruments. A nil
// *Collector is valid and records nothing.
type Collector struct {
	doorOpens      *prometheus.CounterVec
	accessDenied   *prometheus.CounterVec
	refreshFailure *prometheus.CounterVec
	roleMembers    *prometheus.GaugeVec
	doorOpen       prometheus.Gauge
}

// New registers the instruments on reg. Pass prometheus.DefaultRegisterer
// in production and a fresh registry in tests.
func New(reg prometheus.Registerer) *Collector {
	f := promauto.With(reg)
	return &Collector{
		doorOpens: f.NewCounterVec(prometheus.CounterOpts{
			Name: "hubdoor_door_opens_total",
			Help: "Door openings granted, by access method",
		}, []string{"method"}),

		accessDenied: f.NewCounterVec(prometheus.CounterOpts{
			Name: "hubdoor_access_denied_total",
			Help: "Refused open requests, by access method and failure kind",
		}, []string{"method", "kind"}),

		refreshFailure: f.NewCounterVec(prometheus.CounterOpts{
			Name: "hubdoor_role_refresh_failures_total",
			Help: "Failed role member fetches",
		}, []string{"role"}),

		roleMembers: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "hubdoor_role_members",
			Help: "Cached member count per role",
		}, []string{"role"}),

		doorOpen: f.NewGauge(prometheus.GaugeOpts{
			Name: "hubdoor_door_open",
			Help: "1 while the door is held open",
		}),
	}
}

func (c *Collector) RecordOpen(method string) {
	if c == nil {
		return
	}
	c.doorOpens.WithLabelValues(method).Inc()
}

func (c *Collector) RecordDenied(method, kind string) {
	if c == nil {
		return
	}
	c.accessDenied.WithLabelValues(method, kind).Inc()
}

func (c *Collector) RecordRefreshFailure(role string) {
	if c == nil {
		return
	}
	c.refreshFailure.WithLabelValues(role).Inc()
}

func (c *Collector) SetRoleMembers(role string, n int) {
	if c == nil {
		return
	}
	c.roleMembers.WithLabelValues(role).Set(float64(n))
}

func (c *Collector) SetDoorOpen(open bool) {
	if c == nil {
		return
	}
	if open {
		c.doorOpen.Set(1)
		return
	}
	c.doorOpen.Set(0)
}

// OpensCounter exposes the per-method open counter, mainly for tests.
func (c *Collector) OpensCounter(method string) prometheus.Counter {
	return c.doorOpens.WithLabelValues(method)
}
