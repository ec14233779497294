package metrics

import "time"

// Stage outcome labels.
const (
	OutcomeOK    = "ok"
	OutcomeError = "error"
)

// DispatchEvent summarizes one pipeline run.
type DispatchEvent struct {
	DispatchID      string
	RestaurantID    string
	AuditID         string
	CharityID       string
	DriverID        string
	FailedStage     string
	ErrorKind       string
	Success         bool
	RankingFallback bool
	Duration        time.Duration
	Time            time.Time
}

// MetricsSink records dispatch outcomes for observability purposes.
type MetricsSink interface {
	RecordDispatch(ev DispatchEvent) error
}

// StageEvent records the completion or failure of one pipeline stage.
type StageEvent struct {
	DispatchID string
	Stage      string
	Outcome    string
	ErrorKind  string
	Duration   time.Duration
	Time       time.Time
}

// StageRecorder records per-stage latency and outcome.
type StageRecorder interface {
	RecordStage(ev StageEvent) error
}

// FallbackEvent records a ranking that fell back to input order.
type FallbackEvent struct {
	DispatchID string
	Candidates int
	Reason     string
	Time       time.Time
}

// FallbackRecorder records ranking fallbacks.
type FallbackRecorder interface {
	RecordFallback(ev FallbackEvent) error
}

// NotificationEvent records one driver notification attempt.
type NotificationEvent struct {
	Channel  string
	DriverID string
	Success  bool
	Error    string
	Time     time.Time
}

// NotificationRecorder records driver notifications.
type NotificationRecorder interface {
	RecordNotification(ev NotificationEvent) error
}

// NopSink implements every recorder with no-op methods.
type NopSink struct{}

func (NopSink) RecordDispatch(DispatchEvent) error         { return nil }
func (NopSink) RecordStage(StageEvent) error               { return nil }
func (NopSink) RecordFallback(FallbackEvent) error         { return nil }
func (NopSink) RecordNotification(NotificationEvent) error { return nil }
