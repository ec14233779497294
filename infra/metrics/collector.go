package metrics

import (
	"context"

	"github.com/resqmeals/gateway/core/dispatch"
	"github.com/resqmeals/gateway/core/fault"
	coremetrics "github.com/resqmeals/gateway/core/metrics"
	"github.com/resqmeals/gateway/internal/eventbus"
)

// StartStageCollector subscribes to the stage bus and records per-stage
// metrics on sinks that implement StageRecorder.
// It stops when the context is canceled or the bus is closed.
func StartStageCollector(ctx context.Context, bus *eventbus.Bus[dispatch.StageEvent], sink coremetrics.MetricsSink) {
	if bus == nil || sink == nil {
		return
	}
	rec, ok := sink.(coremetrics.StageRecorder)
	if !ok {
		return
	}
	sub := bus.Subscribe()
	go func() {
		defer bus.Unsubscribe(sub)
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-sub:
				if !ok {
					return
				}
				_ = rec.RecordStage(stageEvent(ev))
			}
		}
	}()
}

func stageEvent(ev dispatch.StageEvent) coremetrics.StageEvent {
	out := coremetrics.StageEvent{
		DispatchID: ev.DispatchID,
		Stage:      string(ev.Stage),
		Outcome:    coremetrics.OutcomeOK,
		Duration:   ev.Duration,
		Time:       ev.Time,
	}
	if ev.Err != nil {
		out.Outcome = coremetrics.OutcomeError
		out.ErrorKind = "unclassified"
		if k := fault.Kind(ev.Err); k != nil {
			out.ErrorKind = k.Error()
		}
	}
	return out
}
