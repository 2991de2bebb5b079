package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type metrics struct {
	registry  *prometheus.Registry
	requests  *prometheus.CounterVec
	latency   *prometheus.HistogramVec
	mutations *prometheus.CounterVec
	clients   prometheus.Gauge
}

// newMetrics uses a private registry so several servers can coexist in one
// process.
func newMetrics() *metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	f := promauto.With(reg)
	return &metrics{
		registry: reg,
		requests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "flowtree_http_requests_total",
			Help: "HTTP requests by method, route and status",
		}, []string{"method", "route", "status"}),
		latency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "flowtree_http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		}, []string{"method", "route"}),
		mutations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "flowtree_node_mutations_total",
			Help: "Successful node mutations by operation",
		}, []string{"op"}),
		clients: f.NewGauge(prometheus.GaugeOpts{
			Name: "flowtree_event_clients",
			Help: "Connected event stream clients",
		}),
	}
}
