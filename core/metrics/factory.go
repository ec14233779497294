package metrics

import (
	"maps"

	"github.com/resqmeals/gateway/core/factory"
)

var sinkRegistry = factory.NewRegistry[MetricsSink]()

// RegisterMetricsSink adds a metrics sink factory identified by name.
func RegisterMetricsSink(name string, f factory.Factory[MetricsSink]) error {
	return sinkRegistry.Register(name, f)
}

// NewMetricsSink builds every configured sink behind one MultiSink. The
// shared labels are handed to each factory under the "labels" key and stage
// events are filtered by cfg.Stages. No sinks yields a NopSink.
func NewMetricsSink(cfg Config) (MetricsSink, error) {
	if len(cfg.Sinks) == 0 {
		return NopSink{}, nil
	}
	sinks := make([]MetricsSink, 0, len(cfg.Sinks))
	for _, mc := range cfg.Sinks {
		s, err := sinkRegistry.Create(factory.ModuleConfig{Type: mc.Type, Conf: withLabels(mc.Conf, cfg.Labels)})
		if err != nil {
			closeAll(sinks)
			return nil, err
		}
		sinks = append(sinks, s)
	}
	return NewMultiSink(sinks...).OnlyStages(cfg.Stages...), nil
}

func withLabels(conf map[string]any, shared map[string]string) map[string]any {
	if len(shared) == 0 {
		return conf
	}
	merged := make(map[string]string, len(shared))
	maps.Copy(merged, shared)
	out := make(map[string]any, len(conf)+1)
	maps.Copy(out, conf)
	if own, ok := conf["labels"].(map[string]any); ok {
		for k, v := range own {
			if s, ok := v.(string); ok {
				merged[k] = s
			}
		}
	}
	if own, ok := conf["labels"].(map[string]string); ok {
		maps.Copy(merged, own)
	}
	out["labels"] = merged
	return out
}

func closeAll(sinks []MetricsSink) {
	for _, s := range sinks {
		if c, ok := s.(interface{ Close() }); ok {
			c.Close()
		}
	}
}
