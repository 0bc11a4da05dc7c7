// Package prometheus renders authcore counters and the login latency
// histogram in the Prometheus text format. Callers mount [Exporter.Handler]
// wherever their scrape endpoint lives; nothing is registered globally.
package prometheus
