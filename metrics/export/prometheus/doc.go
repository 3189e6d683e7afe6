// Package prometheus renders the counters of an [authflow.Client] in the
// Prometheus text exposition format.
//
// Counters are named authflow_*_total; the one histogram is
// authflow_gateway_latency_seconds. Nothing is registered globally: callers
// mount [PrometheusExporter.Handler] where they like.
package prometheus
