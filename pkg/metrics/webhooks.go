package metrics

import "github.com/prometheus/client_golang/prometheus"

// CourierWebhookMetrics counts courier webhook outcomes per provider.
type CourierWebhookMetrics struct {
	events *prometheus.CounterVec
}

// NewCourierWebhookMetrics registers courier_webhook_events_total on reg.
func NewCourierWebhookMetrics(reg prometheus.Registerer) *CourierWebhookMetrics {
	if reg == nil {
		return &CourierWebhookMetrics{}
	}
	events := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "courier_webhook_events_total",
		Help: "Courier webhook deliveries by provider and outcome.",
	}, []string{"provider", "outcome"})
	reg.MustRegister(events)
	return &CourierWebhookMetrics{events: events}
}

// Inc records one webhook outcome.
func (m *CourierWebhookMetrics) Inc(provider, outcome string) {
	if m == nil || m.events == nil {
		return
	}
	m.events.WithLabelValues(normalizeLabel(provider), normalizeLabel(outcome)).Inc()
}

// StockMetrics tracks ledger paths that need operator attention.
type StockMetrics struct {
	fallbacks *prometheus.CounterVec
	failures  *prometheus.CounterVec
}

func NewStockMetrics(reg prometheus.Registerer) *StockMetrics {
	if reg == nil {
		return &StockMetrics{}
	}
	fallbacks := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "stock_restore_fallback_total",
		Help:      "Restores that fell back from the atomic batch to the per-item loop.",
	}, []string{"reason"})
	failures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "stock_restore_item_failures_total",
		Help:      "Items the per-item restore loop could not restore.",
	}, []string{"reason"})
	reg.MustRegister(fallbacks, failures)
	return &StockMetrics{fallbacks: fallbacks, failures: failures}
}

func (m *StockMetrics) IncFallback(reason string) {
	if m == nil || m.fallbacks == nil {
		return
	}
	m.fallbacks.WithLabelValues(normalizeLabel(reason)).Inc()
}

func (m *StockMetrics) AddItemFailures(reason string, count int) {
	if m == nil || m.failures == nil || count <= 0 {
		return
	}
	m.failures.WithLabelValues(normalizeLabel(reason)).Add(float64(count))
}
