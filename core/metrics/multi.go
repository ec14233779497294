package metrics

// MultiSink fans events out to several sinks. Optional recorders are only
// called on sinks that implement them.
type MultiSink struct {
	Sinks  []MetricsSink
	stages map[string]bool
}

// NewMultiSink creates a MultiSink with the provided sinks.
func NewMultiSink(sinks ...MetricsSink) *MultiSink {
	return &MultiSink{Sinks: sinks}
}

// OnlyStages restricts RecordStage to the named stages. No names keeps every
// stage.
func (m *MultiSink) OnlyStages(stages ...string) *MultiSink {
	if len(stages) == 0 {
		m.stages = nil
		return m
	}
	m.stages = make(map[string]bool, len(stages))
	for _, st := range stages {
		m.stages[st] = true
	}
	return m
}

// RecordDispatch forwards the event to all sinks, returning the first error encountered.
func (m *MultiSink) RecordDispatch(ev DispatchEvent) error {
	for _, s := range m.Sinks {
		if err := s.RecordDispatch(ev); err != nil {
			return err
		}
	}
	return nil
}

// RecordStage forwards stage events.
func (m *MultiSink) RecordStage(ev StageEvent) error {
	if m.stages != nil && !m.stages[ev.Stage] {
		return nil
	}
	for _, s := range m.Sinks {
		if rec, ok := s.(StageRecorder); ok {
			if err := rec.RecordStage(ev); err != nil {
				return err
			}
		}
	}
	return nil
}

// RecordFallback forwards fallback events.
func (m *MultiSink) RecordFallback(ev FallbackEvent) error {
	for _, s := range m.Sinks {
		if rec, ok := s.(FallbackRecorder); ok {
			if err := rec.RecordFallback(ev); err != nil {
				return err
			}
		}
	}
	return nil
}

// RecordNotification forwards notification events.
func (m *MultiSink) RecordNotification(ev NotificationEvent) error {
	for _, s := range m.Sinks {
		if rec, ok := s.(NotificationRecorder); ok {
			if err := rec.RecordNotification(ev); err != nil {
				return err
			}
		}
	}
	return nil
}

// Close closes every sink that holds resources.
func (m *MultiSink) Close() {
	closeAll(m.Sinks)
}
