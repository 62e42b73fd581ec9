package sink

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/fleet-sim/fleet-sim/sim"
)

const namespace = "fleetsim"

// MetricsSink exposes the fleet's state as Prometheus metrics, updated once
// per committed tick. With change-only output the unit gauges only track
// flagged rows, so place it before sim.ChangeOnly, never behind it.
type MetricsSink struct {
	registry *prometheus.Registry

	day         prometheus.Gauge
	ticks       prometheus.Counter
	units       *prometheus.GaugeVec
	usage       *prometheus.GaugeVec
	transitions *prometheus.CounterVec
	rowsWritten prometheus.Counter
}

// NewMetricsSink builds a sink with its own registry.
func NewMetricsSink() *MetricsSink {
	m := &MetricsSink{
		registry: prometheus.NewRegistry(),
		day: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "simulated_day",
			Help:      "Last committed simulation day",
		}),
		ticks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ticks_total",
			Help:      "Committed ticks, including the day 0 snapshot",
		}),
		units: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "units",
			Help:      "Units per class and lifecycle state",
		}, []string{"class", "state"}),
		usage: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "usage_total",
			Help:      "Accumulated usage summed over the units of a class",
		}, []string{"class"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transitions_total",
			Help:      "Transition flags raised, by class and flag",
		}, []string{"class", "flag"}),
		rowsWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_total",
			Help:      "Rows received from the engine",
		}),
	}
	m.registry.MustRegister(m.day, m.ticks, m.units, m.usage, m.transitions, m.rowsWritten)
	return m
}

// Registry exposes the underlying registry, mainly for tests.
func (m *MetricsSink) Registry() *prometheus.Registry { return m.registry }

func (m *MetricsSink) WriteDay(day int, rows []sim.DayRecord) error {
	type key struct {
		class string
		state sim.State
	}
	counts := make(map[key]int)
	usage := make(map[string]int64)
	names := sim.FlagNames()
	for _, r := range rows {
		counts[key{r.Class, r.State}]++
		usage[r.Class] += r.UsageTotal
		if r.Flags == 0 {
			continue
		}
		for i, set := range sim.FlagValues(r.Flags) {
			if set {
				m.transitions.WithLabelValues(r.Class, names[i]).Inc()
			}
		}
	}

	m.units.Reset()
	for k, n := range counts {
		m.units.WithLabelValues(k.class, k.state.String()).Set(float64(n))
	}
	for class, u := range usage {
		m.usage.WithLabelValues(class).Set(float64(u))
	}
	m.day.Set(float64(day))
	m.ticks.Inc()
	m.rowsWritten.Add(float64(len(rows)))
	return nil
}

func (m *MetricsSink) Close() error { return nil }

// Handler returns an HTTP handler for the metrics endpoint.
func (m *MetricsSink) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// Serve exposes /metrics on addr until ctx is cancelled.
func (m *MetricsSink) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	logrus.Infof("serving metrics on %s/metrics", addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
