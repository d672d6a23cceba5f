package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

const (
	metricsNamespace       = "throughput"
	metricsShutdownTimeout = 2 * time.Second
)

// Metrics exposes run progress to Prometheus. It is a Reporter, so updates
// happen on the meter's goroutine and scrapes only read the collectors.
type Metrics struct {
	registry *prometheus.Registry
	handler  http.Handler

	bytes    prometheus.Counter
	samples  prometheus.Counter
	lastRate prometheus.Gauge
	duration prometheus.Histogram

	server *http.Server
	addr   net.Addr
}

// NewMetrics registers the collectors on a private registry.
func NewMetrics() *Metrics {
	m := &Metrics{registry: prometheus.NewRegistry()}
	m.handler = promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})

	m.bytes = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "bytes_total",
		Help:      `Bytes read from the measured stream`,
	})
	m.registry.MustRegister(m.bytes)
	m.samples = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "samples_total",
		Help:      `Measurement samples taken`,
	})
	m.registry.MustRegister(m.samples)
	m.lastRate = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: metricsNamespace,
		Name:      "last_rate_bytes_per_second",
		Help:      `Transfer rate of the most recent sample with a defined rate`,
	})
	m.registry.MustRegister(m.lastRate)
	m.duration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: metricsNamespace,
		Name:      "sample_duration_seconds",
		Help:      `Wall-clock time taken by each sample`,
		Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 10),
	})
	m.registry.MustRegister(m.duration)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler { return m.handler }

func (m *Metrics) Report(s Sample, t *Totals) error {
	m.bytes.Add(float64(s.Bytes))
	m.samples.Inc()
	m.duration.Observe(s.Elapsed.Seconds())
	if bps, ok := s.Rate(); ok {
		m.lastRate.Set(bps)
	}
	return nil
}

func (m *Metrics) Finish(t *Totals) error { return nil }

// Serve starts the HTTP endpoint on addr. It returns once the socket is bound.
func (m *Metrics) Serve(addr string, log zerolog.Logger) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return bindError("there was an error binding the metrics endpoint to "+addr, err)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.handler)
	m.addr = ln.Addr()
	m.server = &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	log.Info().Str("addr", ln.Addr().String()).Msg("metrics listening")
	go func() {
		if err := m.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("metrics server")
		}
	}()
	return nil
}

// Addr is the bound metrics address, or nil before Serve.
func (m *Metrics) Addr() net.Addr { return m.addr }

// Shutdown stops the HTTP endpoint if it was started.
func (m *Metrics) Shutdown() error {
	if m.server == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), metricsShutdownTimeout)
	defer cancel()
	return m.server.Shutdown(ctx)
}
