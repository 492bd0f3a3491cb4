// Package metrics holds the prometheus collectors of the core.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics bundles the collectors on a private registry so tests can
// construct isolated instances.
type Metrics struct {
	registry *prometheus.Registry

	ReconnectAttempts    prometheus.Counter
	PublishFailures      prometheus.Counter
	EventsDispatched     *prometheus.CounterVec
	DuplicatesSuppressed prometheus.Counter
	UnreadNotifications  prometheus.Gauge
	ChatMessagesSent     prometheus.Counter
	ChatMessagesReceived prometheus.Counter
}

func New() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,
		ReconnectAttempts: factory.NewCounter(prometheus.CounterOpts{
			Name: "storefront_push_reconnect_attempts_total",
			Help: "Reconnect attempts scheduled after abnormal closes.",
		}),
		PublishFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "storefront_push_publish_failures_total",
			Help: "Publishes rejected or failed on the push channel.",
		}),
		EventsDispatched: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "storefront_push_events_total",
			Help: "Push events dispatched to handlers, by event type.",
		}, []string{"type"}),
		DuplicatesSuppressed: factory.NewCounter(prometheus.CounterOpts{
			Name: "storefront_notifications_suppressed_total",
			Help: "Push notifications suppressed by the duplicate rule.",
		}),
		UnreadNotifications: factory.NewGauge(prometheus.GaugeOpts{
			Name: "storefront_notifications_unread",
			Help: "Current unread notification count.",
		}),
		ChatMessagesSent: factory.NewCounter(prometheus.CounterOpts{
			Name: "storefront_chat_messages_sent_total",
			Help: "Chat messages accepted for sending.",
		}),
		ChatMessagesReceived: factory.NewCounter(prometheus.CounterOpts{
			Name: "storefront_chat_messages_received_total",
			Help: "Incoming chat messages applied to conversations.",
		}),
	}
}

// Handler exposes the registry for the facade's /metrics route.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
