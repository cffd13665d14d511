// Package prometheus renders engine metrics in the Prometheus text exposition
// format.
//
// Counters are named dashauth_*_total; the validation and password hashing
// latencies are exported as dashauth_*_latency_seconds histograms. When the
// source can count live sessions, a dashauth_active_sessions gauge is added.
//
// The exporter does not touch a global registry. Mount [Exporter.Handler]
// wherever the scrape endpoint lives.
package prometheus
