package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	coremetrics "github.com/resqmeals/gateway/core/metrics"
)

// PromSink records dispatch events in Prometheus metrics.
type PromSink struct {
	dispatches    *prometheus.CounterVec
	dispatchTime  *prometheus.HistogramVec
	stageTime     *prometheus.HistogramVec
	stages        *prometheus.CounterVec
	fallbacks     prometheus.Counter
	notifications *prometheus.CounterVec
}

// NewPromSinkWithRegistry registers metrics on the provided registerer with
// labels attached as constant labels. A nil registerer defaults to the global
// Prometheus registerer, which the gateway's /metrics route exposes.
// Collectors already registered under the same name and labels are reused.
func NewPromSinkWithRegistry(namespace string, labels map[string]string, reg prometheus.Registerer) (*PromSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PromSink{}
	var err error
	if s.dispatches, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace:   namespace,
		Name:        "dispatch_total",
		Help:        "Total number of dispatch pipeline runs",
		ConstLabels: labels,
	}, []string{"outcome", "failed_stage", "ranking_fallback"})); err != nil {
		return nil, err
	}
	if s.dispatchTime, err = register(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace:   namespace,
		Name:        "dispatch_duration_seconds",
		Help:        "End-to-end dispatch latency",
		ConstLabels: labels,
		Buckets:     []float64{0.5, 1, 2.5, 5, 10, 20, 40, 80, 160},
	}, []string{"outcome"})); err != nil {
		return nil, err
	}
	if s.stageTime, err = register(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace:   namespace,
		Name:        "dispatch_stage_duration_seconds",
		Help:        "Latency of each dispatch stage",
		ConstLabels: labels,
		Buckets:     prometheus.DefBuckets,
	}, []string{"stage", "outcome"})); err != nil {
		return nil, err
	}
	if s.stages, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace:   namespace,
		Name:        "dispatch_stage_total",
		Help:        "Stage transitions per outcome",
		ConstLabels: labels,
	}, []string{"stage", "outcome"})); err != nil {
		return nil, err
	}
	if s.fallbacks, err = register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Namespace:   namespace,
		Name:        "ranking_fallback_total",
		Help:        "Rankings that fell back to candidate order",
		ConstLabels: labels,
	})); err != nil {
		return nil, err
	}
	if s.notifications, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace:   namespace,
		Name:        "driver_notifications_total",
		Help:        "Driver notification attempts per channel",
		ConstLabels: labels,
	}, []string{"channel", "outcome"})); err != nil {
		return nil, err
	}
	return s, nil
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

// RecordDispatch counts the run and observes its latency.
func (s *PromSink) RecordDispatch(ev coremetrics.DispatchEvent) error {
	outcome := coremetrics.OutcomeOK
	if !ev.Success {
		outcome = coremetrics.OutcomeError
	}
	s.dispatches.WithLabelValues(outcome, ev.FailedStage, strconv.FormatBool(ev.RankingFallback)).Inc()
	s.dispatchTime.WithLabelValues(outcome).Observe(ev.Duration.Seconds())
	return nil
}

// RecordStage counts the stage and observes its latency.
func (s *PromSink) RecordStage(ev coremetrics.StageEvent) error {
	s.stages.WithLabelValues(ev.Stage, ev.Outcome).Inc()
	s.stageTime.WithLabelValues(ev.Stage, ev.Outcome).Observe(ev.Duration.Seconds())
	return nil
}

// RecordFallback counts a ranking fallback.
func (s *PromSink) RecordFallback(coremetrics.FallbackEvent) error {
	s.fallbacks.Inc()
	return nil
}

// RecordNotification counts a notification attempt.
func (s *PromSink) RecordNotification(ev coremetrics.NotificationEvent) error {
	outcome := coremetrics.OutcomeOK
	if !ev.Success {
		outcome = coremetrics.OutcomeError
	}
	s.notifications.WithLabelValues(ev.Channel, outcome).Inc()
	return nil
}
