package metrics

import (
	"context"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	coremetrics "github.com/resqmeals/gateway/core/metrics"
	"github.com/resqmeals/gateway/infra/logger"
)

// InfluxSink writes dispatch events to an InfluxDB instance using the official client.
type InfluxSink struct {
	client   influxdb2.Client
	writeAPI api.WriteAPIBlocking
	tags     map[string]string
	log      logger.Logger
}

// NewInfluxSink creates a new sink configured for the given InfluxDB endpoint.
// tags are added to every point.
func NewInfluxSink(url, token, org, bucket string, tags map[string]string) *InfluxSink {
	base := strings.TrimSuffix(url, "/api/v2/write")
	client := influxdb2.NewClientWithOptions(base, token,
		influxdb2.DefaultOptions().SetHTTPClient(&http.Client{Timeout: 5 * time.Second}))
	return &InfluxSink{
		client:   client,
		writeAPI: client.WriteAPIBlocking(org, bucket),
		tags:     tags,
		log:      logger.New("influx-sink"),
	}
}

// NewInfluxSinkWithFallback tries to ping the InfluxDB instance and
// returns a NopSink if the health check fails.
func NewInfluxSinkWithFallback(url, token, org, bucket string, tags map[string]string) coremetrics.MetricsSink {
	sink := NewInfluxSink(url, token, org, bucket, tags)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	health, err := sink.client.Health(ctx)
	if err != nil || health.Status != "pass" {
		if err != nil {
			sink.log.Errorf("influx health check error: %v", err)
		} else {
			sink.log.Errorf("influx health status: %s", health.Status)
		}
		sink.client.Close()
		return coremetrics.NopSink{}
	}
	return sink
}

// RecordDispatch writes one dispatch_run point.
func (s *InfluxSink) RecordDispatch(ev coremetrics.DispatchEvent) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	p := s.point("dispatch_run").
		AddTag("dispatch_id", ev.DispatchID).
		AddTag("restaurant_id", ev.RestaurantID).
		AddTag("success", strconv.FormatBool(ev.Success)).
		AddTag("component", "dispatch_pipeline")
	if ev.FailedStage != "" {
		p = p.AddTag("failed_stage", ev.FailedStage).AddTag("error_kind", ev.ErrorKind)
	}
	p = p.AddField("duration_ms", round3(ev.Duration.Seconds()*1000)).
		AddField("ranking_fallback", ev.RankingFallback).
		AddField("audit_id", ev.AuditID).
		AddField("charity_id", ev.CharityID).
		AddField("driver_id", ev.DriverID).
		SetTime(ev.Time)
	return s.writeAPI.WritePoint(ctx, p)
}

// RecordStage writes one dispatch_stage point.
func (s *InfluxSink) RecordStage(ev coremetrics.StageEvent) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	p := s.point("dispatch_stage").
		AddTag("dispatch_id", ev.DispatchID).
		AddTag("stage", ev.Stage).
		AddTag("outcome", ev.Outcome).
		AddTag("component", "dispatch_pipeline").
		AddField("duration_ms", round3(ev.Duration.Seconds()*1000)).
		AddField("error_kind", ev.ErrorKind).
		SetTime(ev.Time)
	return s.writeAPI.WritePoint(ctx, p)
}

// RecordFallback records a ranking fallback.
func (s *InfluxSink) RecordFallback(ev coremetrics.FallbackEvent) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	p := s.point("fallback_applied").
		AddTag("dispatch_id", ev.DispatchID).
		AddTag("component", "ranking").
		AddField("candidates", ev.Candidates).
		AddField("fallback_reason", ev.Reason).
		SetTime(ev.Time)
	return s.writeAPI.WritePoint(ctx, p)
}

// RecordNotification records a driver notification attempt.
func (s *InfluxSink) RecordNotification(ev coremetrics.NotificationEvent) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	p := s.point("driver_notification").
		AddTag("channel", ev.Channel).
		AddTag("driver_id", ev.DriverID).
		AddTag("success", strconv.FormatBool(ev.Success)).
		AddField("errors", ev.Error).
		SetTime(ev.Time)
	return s.writeAPI.WritePoint(ctx, p)
}

func (s *InfluxSink) point(measurement string) *write.Point {
	p := write.NewPointWithMeasurement(measurement)
	for k, v := range s.tags {
		p = p.AddTag(k, v)
	}
	return p
}

// Close releases the client.
func (s *InfluxSink) Close() { s.client.Close() }

func round3(f float64) float64 {
	return math.Round(f*1000) / 1000
}
