package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/resqmeals/gateway/core/factory"
	coremetrics "github.com/resqmeals/gateway/core/metrics"
)

// Registerer receives the collectors of sinks built with type "prometheus".
var Registerer prometheus.Registerer = prometheus.DefaultRegisterer

// init registers built-in metrics sinks.
func init() {
	_ = coremetrics.RegisterMetricsSink("nop", func(map[string]any) (coremetrics.MetricsSink, error) {
		return coremetrics.NopSink{}, nil
	})

	_ = coremetrics.RegisterMetricsSink("prometheus", func(conf map[string]any) (coremetrics.MetricsSink, error) {
		var c struct {
			Namespace string            `json:"namespace"`
			Labels    map[string]string `json:"labels"`
		}
		if err := factory.Decode(conf, &c); err != nil {
			return nil, err
		}
		if c.Namespace == "" {
			c.Namespace = "resqmeals"
		}
		return NewPromSinkWithRegistry(c.Namespace, c.Labels, Registerer)
	})

	_ = coremetrics.RegisterMetricsSink("influx", func(conf map[string]any) (coremetrics.MetricsSink, error) {
		var c struct {
			URL    string            `json:"url"`
			Token  string            `json:"token"`
			Org    string            `json:"org"`
			Bucket string            `json:"bucket"`
			Labels map[string]string `json:"labels"`
		}
		if err := factory.Decode(conf, &c); err != nil {
			return nil, err
		}
		return NewInfluxSinkWithFallback(c.URL, c.Token, c.Org, c.Bucket, c.Labels), nil
	})
}
