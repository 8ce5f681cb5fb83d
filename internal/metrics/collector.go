// Package metrics exposes prometheus counters for the channels and the agent server.
// Every method is safe on a nil *Collector so instrumentation stays optional.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/zhouzirui/agentlink/internal/model/chat"
)

// Turn outcomes.
const (
	OutcomeCompleted = "completed"
	OutcomeFailed    = "failed"
	OutcomeRejected  = "rejected"
)

// Collector owns a private registry so several instances can coexist in tests.
type Collector struct {
	registry *prometheus.Registry

	framesDecoded *prometheus.CounterVec
	framesDropped *prometheus.CounterVec
	reconnects    *prometheus.CounterVec
	turns         *prometheus.CounterVec
	channelState  *prometheus.GaugeVec

	eventsPublished prometheus.Counter
	subscribers     prometheus.Gauge
}

// NewCollector registers all metrics under namespace.
func NewCollector(namespace string) *Collector {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Collector{
		registry: reg,
		framesDecoded: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "frames_decoded_total",
				Help:      "Frames decoded per channel and kind",
			},
			[]string{"channel", "kind"},
		),
		framesDropped: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "frames_dropped_total",
				Help:      "Lines discarded by the frame decoder",
			},
			[]string{"channel", "reason"},
		),
		reconnects: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "channel_reconnects_total",
				Help:      "Reconnection attempts per channel",
			},
			[]string{"channel"},
		),
		turns: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "chat_turns_total",
				Help:      "Chat turns by outcome",
			},
			[]string{"outcome"},
		),
		channelState: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "channel_state",
				Help:      "Current channel state (0 idle, 1 connecting, 2 open, 3 closing, 4 closed, 5 failed)",
			},
			[]string{"channel"},
		),
		eventsPublished: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_published_total",
			Help:      "Session events published on the bus",
		}),
		subscribers: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "event_subscribers",
			Help:      "Open event stream subscriptions",
		}),
	}
}

// Registry returns the underlying registry.
func (c *Collector) Registry() *prometheus.Registry {
	if c == nil {
		return nil
	}
	return c.registry
}

// Handler serves the registry in the prometheus text format.
func (c *Collector) Handler() http.Handler {
	if c == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

func (c *Collector) FrameDecoded(channel string, kind chat.Kind) {
	if c == nil {
		return
	}
	c.framesDecoded.WithLabelValues(channel, string(kind)).Inc()
}

func (c *Collector) FrameDropped(channel, reason string) {
	if c == nil {
		return
	}
	c.framesDropped.WithLabelValues(channel, reason).Inc()
}

func (c *Collector) Reconnect(channel string) {
	if c == nil {
		return
	}
	c.reconnects.WithLabelValues(channel).Inc()
}

func (c *Collector) TurnFinished(outcome string) {
	if c == nil {
		return
	}
	c.turns.WithLabelValues(outcome).Inc()
}

func (c *Collector) ChannelState(channel string, state chat.ChannelState) {
	if c == nil {
		return
	}
	c.channelState.WithLabelValues(channel).Set(float64(state))
}

func (c *Collector) EventPublished() {
	if c == nil {
		return
	}
	c.eventsPublished.Inc()
}

// SubscriberDelta adjusts the open subscription gauge.
func (c *Collector) SubscriberDelta(delta float64) {
	if c == nil {
		return
	}
	c.subscribers.Add(delta)
}
