// Package app wires the configured collaborators into the dispatch
// pipeline and serves the gateway over HTTP.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/resqmeals/gateway/api/gateway"
	"github.com/resqmeals/gateway/auth"
	"github.com/resqmeals/gateway/config"
	"github.com/resqmeals/gateway/core/assist"
	"github.com/resqmeals/gateway/core/auditlog"
	"github.com/resqmeals/gateway/core/dispatch"
	"github.com/resqmeals/gateway/core/jobs"
	coremetrics "github.com/resqmeals/gateway/core/metrics"
	coremon "github.com/resqmeals/gateway/core/monitoring"
	"github.com/resqmeals/gateway/core/notify"
	"github.com/resqmeals/gateway/core/store"
	"github.com/resqmeals/gateway/infra/cloudant"
	"github.com/resqmeals/gateway/infra/llm"
	"github.com/resqmeals/gateway/infra/logger"
	"github.com/resqmeals/gateway/infra/memstore"
	"github.com/resqmeals/gateway/infra/metrics"
	"github.com/resqmeals/gateway/infra/monitoring"
	"github.com/resqmeals/gateway/infra/mqtt"
	_ "github.com/resqmeals/gateway/infra/telegram"
	"github.com/resqmeals/gateway/internal/eventbus"
)

// Service owns the gateway collaborators.
type Service struct {
	Pipeline *dispatch.Pipeline
	Jobs     *jobs.Repository
	Handler  http.Handler

	cfg       *config.Config
	bus       *eventbus.Bus[dispatch.StageEvent]
	sink      coremetrics.MetricsSink
	audit     auditlog.LogStore
	notifiers notify.Multi
	monitor   coremon.Monitor
	log       logger.Logger
}

// New creates a Service from the configuration. A missing LLM or store
// credential does not fail startup; the affected routes report it.
func New(cfg *config.Config) (*Service, error) {
	logger.SetLevel(cfg.Logging.Level)
	logg := logger.New("service")

	mon, err := monitoring.NewSentryMonitor(cfg.Sentry)
	if err != nil {
		return nil, fmt.Errorf("sentry: %w", err)
	}
	coremon.Init(mon)

	completer, err := llm.New(cfg.LLM, nil)
	if err != nil {
		logg.Warnf("llm unavailable: %v", err)
	}
	st, err := newStore(cfg.Store)
	if err != nil {
		return nil, fmt.Errorf("store: %w", err)
	}
	sink, err := coremetrics.NewMetricsSink(cfg.Metrics)
	if err != nil {
		return nil, fmt.Errorf("metrics sinks: %w", err)
	}
	audit, err := auditlog.New(cfg.AuditLog)
	if err != nil {
		return nil, fmt.Errorf("audit log: %w", err)
	}
	notifiers, err := notify.New(cfg.Notify.Channels)
	if err != nil {
		_ = audit.Close()
		return nil, fmt.Errorf("notify channels: %w", err)
	}

	assistant := assist.New(completer, logger.New("assist"))
	bus := eventbus.New[dispatch.StageEvent](eventbus.DefaultBuffer)
	repo := jobs.NewRepository()

	p := dispatch.NewPipeline(assistant, st, cfg.Store.Collections, cfg.Dispatch, logger.New("dispatch"))
	p.SetMetrics(sink)
	p.SetBus(bus)
	p.SetLogStore(audit)
	p.SetJobs(repo)
	p.SetNotifier(notifiers)
	p.SetMonitor(mon)

	for _, n := range notifiers {
		if pub, ok := n.(*mqtt.OfferPublisher); ok {
			pub.OnAccept(func(a mqtt.Acceptance) error {
				_, err := repo.Accept(a.JobID, jobs.DriverRef{ID: a.DriverID, Name: a.DriverName})
				return err
			})
		}
	}

	handler := gateway.New(gateway.Deps{
		Assistant: assistant,
		Pipeline:  p,
		Store:     st,
		Audit:     audit,
		Jobs:      repo,
		Logger:    logger.New("gateway"),
	})

	return &Service{
		Pipeline:  p,
		Jobs:      repo,
		Handler:   handler,
		cfg:       cfg,
		bus:       bus,
		sink:      sink,
		audit:     audit,
		notifiers: notifiers,
		monitor:   mon,
		log:       logg,
	}, nil
}

func newStore(cfg config.StoreConfig) (store.Store, error) {
	switch cfg.Backend {
	case config.StoreMemory:
		if cfg.SeedFile == "" {
			return memstore.New(), nil
		}
		return memstore.LoadFile(cfg.SeedFile)
	default:
		client := &http.Client{Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second}
		tokens := auth.NewProvider(cfg.Auth, client)
		return cloudant.New(cloudant.Config{BaseURL: cfg.BaseURL, TimeoutSeconds: cfg.TimeoutSeconds}, tokens, logger.New("cloudant")), nil
	}
}

// Run serves HTTP until the context is cancelled, then shuts down
// gracefully.
func (s *Service) Run(ctx context.Context) error {
	metrics.StartStageCollector(ctx, s.bus, s.sink)

	srv := &http.Server{
		Addr:         s.cfg.Server.Addr(),
		Handler:      s.Handler,
		ReadTimeout:  s.cfg.Server.ReadTimeout(),
		WriteTimeout: s.cfg.Server.WriteTimeout(),
	}
	errCh := make(chan error, 1)
	go func() {
		s.log.Infof("gateway listening on %s", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.Server.ShutdownTimeout())
	defer cancel()
	s.log.Infof("shutting down gateway")
	return srv.Shutdown(shutdownCtx)
}

// Close releases resources held by the service.
func (s *Service) Close() error {
	s.Pipeline.Wait()
	s.bus.Close()
	for _, n := range s.notifiers {
		if c, ok := n.(interface{ Close() }); ok {
			c.Close()
		}
	}
	if c, ok := s.sink.(interface{ Close() }); ok {
		c.Close()
	}
	s.monitor.Flush(2 * time.Second)
	return s.audit.Close()
}
