// Package metrics collects and exposes Prometheus metrics for the session and
// realtime core.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector registers and records the core's metrics.
// All record methods are nil-safe so callers can run without metrics wired.
type Collector struct {
	loginSuccess  prometheus.Counter
	loginFailure  prometheus.Counter
	rotations     prometheus.Counter
	reuseDetected prometheus.Counter

	messagesDelivered prometheus.Counter
	messagesRejected  prometheus.Counter
	notifications     prometheus.Counter

	wsConnections prometheus.Gauge
	wsEvents      *prometheus.CounterVec
}

// NewCollector creates a Collector and registers its metrics on reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		loginSuccess: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sparkwave_login_success_total",
			Help: "Successful logins.",
		}),
		loginFailure: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sparkwave_login_failure_total",
			Help: "Failed logins.",
		}),
		rotations: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sparkwave_refresh_rotations_total",
			Help: "Completed refresh credential rotations.",
		}),
		reuseDetected: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sparkwave_refresh_reuse_detected_total",
			Help: "Refresh credential reuse detections (security events).",
		}),
		messagesDelivered: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sparkwave_messages_delivered_total",
			Help: "Messages durably recorded by the delivery router.",
		}),
		messagesRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sparkwave_messages_rejected_total",
			Help: "Messages rejected by the content-safety gate.",
		}),
		notifications: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sparkwave_notifications_total",
			Help: "Notification events persisted.",
		}),
		wsConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "sparkwave_ws_connections",
			Help: "Live websocket connections (presence registry size).",
		}),
		wsEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sparkwave_ws_events_total",
			Help: "Inbound websocket events by type.",
		}, []string{"type"}),
	}

	reg.MustRegister(
		c.loginSuccess,
		c.loginFailure,
		c.rotations,
		c.reuseDetected,
		c.messagesDelivered,
		c.messagesRejected,
		c.notifications,
		c.wsConnections,
		c.wsEvents,
	)

	return c
}

// RecordLogin records a login attempt outcome.
func (c *Collector) RecordLogin(success bool) {
	if c == nil {
		return
	}
	if success {
		c.loginSuccess.Inc()
	} else {
		c.loginFailure.Inc()
	}
}

// RecordRotation records a completed refresh rotation.
func (c *Collector) RecordRotation() {
	if c == nil {
		return
	}
	c.rotations.Inc()
}

// RecordReuseDetected records a refresh reuse detection.
func (c *Collector) RecordReuseDetected() {
	if c == nil {
		return
	}
	c.reuseDetected.Inc()
}

// RecordMessageDelivered records a durably recorded message.
func (c *Collector) RecordMessageDelivered() {
	if c == nil {
		return
	}
	c.messagesDelivered.Inc()
}

// RecordMessageRejected records a content-safety rejection.
func (c *Collector) RecordMessageRejected() {
	if c == nil {
		return
	}
	c.messagesRejected.Inc()
}

// RecordNotification records a persisted notification event.
func (c *Collector) RecordNotification() {
	if c == nil {
		return
	}
	c.notifications.Inc()
}

// SetConnections sets the live connection gauge.
func (c *Collector) SetConnections(n int) {
	if c == nil {
		return
	}
	c.wsConnections.Set(float64(n))
}

// RecordWSEvent records one inbound websocket event.
func (c *Collector) RecordWSEvent(typ string) {
	if c == nil {
		return
	}
	c.wsEvents.WithLabelValues(typ).Inc()
}

// Handler returns the Prometheus scrape handler for reg.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
