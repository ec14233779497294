// Package metrics defines the recorders used to observe dispatches. Sinks
// such as the Prometheus and InfluxDB implementations in infra/metrics
// register themselves by name and are combined with NewMultiSink when more
// than one is configured.
package metrics
