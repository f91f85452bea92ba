// Package metrics provides Prometheus metrics for the market maker
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// ActiveMarkets is the number of markets currently being made.
	ActiveMarkets = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "mm_active_markets",
		Help: "Number of markets with an active strategy",
	})

	// BookUpdates counts applied order book snapshots per market.
	BookUpdates = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mm_book_updates_total",
		Help: "Order book snapshots applied",
	}, []string{"market"})

	// DroppedBookUpdates counts snapshots discarded because a market's
	// update queue was full.
	DroppedBookUpdates = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mm_book_updates_dropped_total",
		Help: "Order book snapshots dropped on a full update queue",
	}, []string{"market"})

	// QuotesPlaced counts two-sided quotes forwarded to the executor.
	QuotesPlaced = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mm_quotes_placed_total",
		Help: "Two-sided quotes placed",
	}, []string{"market"})

	// ToxicFlowEvents counts toxic flow detections per market.
	ToxicFlowEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mm_toxic_flow_events_total",
		Help: "Toxic flow detections",
	}, []string{"market"})

	// CollaboratorErrors counts failures surfaced by external
	// collaborators, labeled by which one.
	CollaboratorErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mm_collaborator_errors_total",
		Help: "Errors returned by external collaborators",
	}, []string{"market", "collaborator"})

	// MidPrice is the latest mid price per market.
	MidPrice = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "mm_mid_price",
		Help: "Latest mid price",
	}, []string{"market"})

	// SpreadCurrent is the latest relative spread per market.
	SpreadCurrent = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "mm_spread_current",
		Help: "Latest relative bid/ask spread",
	}, []string{"market"})
)

// RecordBookUpdate updates the per-market book gauges and counter.
func RecordBookUpdate(market string, mid, spread float64, haveTop bool) {
	BookUpdates.WithLabelValues(market).Inc()
	if haveTop {
		MidPrice.WithLabelValues(market).Set(mid)
		SpreadCurrent.WithLabelValues(market).Set(spread)
	}
}

// RecordCollaboratorError counts one failed collaborator call.
func RecordCollaboratorError(market, collaborator string) {
	CollaboratorErrors.WithLabelValues(market, collaborator).Inc()
}

// StartMetricsServer serves the Prometheus scrape endpoint on addr.
func StartMetricsServer(addr string) {
	http.Handle("/metrics", promhttp.Handler())
	go func() {
		_ = http.ListenAndServe(addr, nil)
	}()
}
