// Package metrics exposes engine events as Prometheus metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/warp/stock-sync/inventory"
)

const namespace = "stocksync"

// Prometheus implements inventory.Recorder.
type Prometheus struct {
	registry *prometheus.Registry

	pushes        *prometheus.CounterVec
	pushedUnits   *prometheus.CounterVec
	ordersIngest  *prometheus.CounterVec
	ordersDup     *prometheus.CounterVec
	consumedUnits *prometheus.CounterVec
	drift         *prometheus.GaugeVec
	corrections   *prometheus.CounterVec
	manualReviews *prometheus.CounterVec
	negative      *prometheus.CounterVec
}

// New registers all collectors on a fresh registry.
func New() *Prometheus {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Prometheus{
		registry: reg,
		pushes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pushes_total",
			Help:      "Remote adjustment pushes by outcome.",
		}, []string{"sku", "outcome"}),
		pushedUnits: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pushed_units_total",
			Help:      "Absolute units confirmed by the remote, by direction.",
		}, []string{"sku", "direction"}),
		ordersIngest: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "orders_ingested_total",
			Help:      "Remote orders folded into the local ledger.",
		}, []string{"sku"}),
		ordersDup: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "orders_duplicate_total",
			Help:      "Remote orders skipped because they were already ingested.",
		}, []string{"sku"}),
		consumedUnits: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "consumed_units_total",
			Help:      "Units consumed by ingested remote orders.",
		}, []string{"sku"}),
		drift: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "drift_units",
			Help:      "Last observed local minus remote availability.",
		}, []string{"sku"}),
		corrections: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "corrections_total",
			Help:      "Corrective pushes issued by the reconciliation monitor.",
		}, []string{"sku", "direction"}),
		manualReviews: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "manual_reviews_total",
			Help:      "Drift escalated to manual review.",
		}, []string{"sku"}),
		negative: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "negative_availability_total",
			Help:      "Checks that observed a count below zero.",
		}, []string{"sku", "side"}),
	}
}

// Registry exposes the underlying registry, mainly for tests.
func (p *Prometheus) Registry() *prometheus.Registry { return p.registry }

// Handler serves the registry in the Prometheus text format.
func (p *Prometheus) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}

func (p *Prometheus) PushAttempted(sku inventory.SKU, delta int64, err error) {
	if err != nil {
		p.pushes.WithLabelValues(string(sku), "failed").Inc()
		return
	}
	p.pushes.WithLabelValues(string(sku), "confirmed").Inc()
	p.pushedUnits.WithLabelValues(string(sku), direction(delta)).Add(float64(abs(delta)))
}

func (p *Prometheus) OrdersIngested(sku inventory.SKU, ingested, duplicates int, consumed int64) {
	p.ordersIngest.WithLabelValues(string(sku)).Add(float64(ingested))
	p.ordersDup.WithLabelValues(string(sku)).Add(float64(duplicates))
	p.consumedUnits.WithLabelValues(string(sku)).Add(float64(consumed))
}

func (p *Prometheus) Drift(sku inventory.SKU, drift int64) {
	p.drift.WithLabelValues(string(sku)).Set(float64(drift))
}

func (p *Prometheus) Corrected(sku inventory.SKU, correction int64) {
	p.corrections.WithLabelValues(string(sku), direction(correction)).Inc()
}

func (p *Prometheus) ManualReview(sku inventory.SKU) {
	p.manualReviews.WithLabelValues(string(sku)).Inc()
}

func (p *Prometheus) NegativeAvailability(sku inventory.SKU, side inventory.Side) {
	p.negative.WithLabelValues(string(sku), string(side)).Inc()
}

func direction(n int64) string {
	if n < 0 {
		return "down"
	}
	return "up"
}

func abs(n int64) int64 {
	if n < 0 {
		return -n
	}
	return n
}
