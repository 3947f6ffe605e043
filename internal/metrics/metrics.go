package metrics

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// Metrics holds the searcher's collectors on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	Ticks          prometheus.Counter
	TickErrors     *prometheus.CounterVec
	TickDuration   prometheus.Histogram
	Opportunities  prometheus.Counter
	GateRejections *prometheus.CounterVec
	BundleOutcomes *prometheus.CounterVec
	LedgerEntries  prometheus.Gauge
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		Ticks: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "searcher_ticks_total",
				Help: "Scan ticks started",
			},
		),

		TickErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "searcher_tick_errors_total",
				Help: "Errors absorbed by the scan loop, by class",
			},
			[]string{"class"},
		),

		TickDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "searcher_tick_duration_seconds",
				Help:    "Wall time of one scan tick",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
			},
		),

		Opportunities: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "searcher_opportunities_total",
				Help: "Candidate opportunities found by discovery",
			},
		),

		GateRejections: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "searcher_gate_rejections_total",
				Help: "Candidates declined by the profitability gate, by reason",
			},
			[]string{"reason"},
		),

		BundleOutcomes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "searcher_bundle_outcomes_total",
				Help: "Final outcome of each bundle",
			},
			[]string{"outcome"},
		),

		LedgerEntries: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "searcher_ledger_entries",
				Help: "Bundles recorded in the execution ledger this run",
			},
		),
	}

	m.registry.MustRegister(
		m.Ticks,
		m.TickErrors,
		m.TickDuration,
		m.Opportunities,
		m.GateRejections,
		m.BundleOutcomes,
		m.LedgerEntries,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx ends.
func Serve(ctx context.Context, addr string, m *Metrics, logger zerolog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", addr).Msg("metrics server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("metrics server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("metrics shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("metrics server: %w", err)
	}
	return nil
}
