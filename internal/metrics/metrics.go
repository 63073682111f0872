// Package metrics exposes the Prometheus collectors shared by the gateway
// and edge processes.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Registry bundles the counters/histograms a process wants to expose at
// /metrics. Both cmd/gateway and cmd/edge construct one at startup and
// register it with promhttp.Handler via the default registry.
type Registry struct {
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	CacheHits      prometheus.Counter
	CacheMisses    prometheus.Counter
	CacheEvictions prometheus.Counter
	CacheBytes     prometheus.Gauge
	CacheItems     prometheus.Gauge
}

// NewGatewayRegistry builds the collector set for the gateway process.
func NewGatewayRegistry() *Registry {
	r := &Registry{
		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_requests_total",
			Help: "Total requests handled by the streaming gateway, by route and status.",
		}, []string{"route", "status"}),
		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "gateway_request_duration_seconds",
			Help:    "Gateway request latency in seconds, by route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
	}
	prometheus.MustRegister(r.RequestsTotal, r.RequestDuration)
	return r
}

// NewEdgeRegistry builds the collector set for the CDN edge process,
// including the cache hit/miss/eviction counters and size gauges.
func NewEdgeRegistry() *Registry {
	r := &Registry{
		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "edge_requests_total",
			Help: "Total requests handled by the CDN edge, by route and status.",
		}, []string{"route", "status"}),
		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "edge_request_duration_seconds",
			Help:    "Edge request latency in seconds, by route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
		CacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "edge_cache_hits_total",
			Help: "Total edge cache hits.",
		}),
		CacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "edge_cache_misses_total",
			Help: "Total edge cache misses.",
		}),
		CacheEvictions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "edge_cache_evictions_total",
			Help: "Total entries removed from the edge cache by LRU eviction, expiry on read, or clear.",
		}),
		CacheBytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "edge_cache_bytes",
			Help: "Bytes currently held in the edge cache.",
		}),
		CacheItems: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "edge_cache_items",
			Help: "Entries currently held in the edge cache.",
		}),
	}
	prometheus.MustRegister(
		r.RequestsTotal, r.RequestDuration,
		r.CacheHits, r.CacheMisses, r.CacheEvictions, r.CacheBytes, r.CacheItems,
	)
	return r
}
