// Package metric provides Prometheus metrics for shellkeep.
//
// This package implements metrics collection and exposition:
//
//   - prometheus.go: Prometheus registry, agent metrics and HTTP handler
//
// Metrics include:
//
//   - Request counts and latency histograms
//   - Cache hit and miss counters per resource class
//   - Sync queue depth and replay outcomes
//   - Connectivity state and event stream subscribers
//
// Metrics are exposed at /metrics in Prometheus format.
package metric
