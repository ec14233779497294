// Package dispatch runs the donation dispatch pipeline: extract, fetch and
// rank charities, select a charity and a driver, draft the driver message,
// generate the receipt and write the audit record.
package dispatch

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/resqmeals/gateway/core/assist"
	"github.com/resqmeals/gateway/core/auditlog"
	"github.com/resqmeals/gateway/core/fault"
	"github.com/resqmeals/gateway/core/jobs"
	"github.com/resqmeals/gateway/core/logger"
	"github.com/resqmeals/gateway/core/metrics"
	"github.com/resqmeals/gateway/core/model"
	"github.com/resqmeals/gateway/core/monitoring"
	"github.com/resqmeals/gateway/core/notify"
	"github.com/resqmeals/gateway/core/store"
	"github.com/resqmeals/gateway/internal/eventbus"
)

// Assistant is the language-model side of the pipeline.
type Assistant interface {
	ExtractDonation(ctx context.Context, message string) (model.Donation, error)
	RankCharities(ctx context.Context, donation any, candidates []model.Charity) (assist.Ranking, error)
	DraftDriverMessage(ctx context.Context, req assist.MessageRequest) (string, error)
	GenerateReceipt(ctx context.Context, req assist.ReceiptRequest) (assist.ReceiptResult, error)
}

// JobOpener opens a pickup job once a dispatch is audited.
type JobOpener interface {
	Create(j jobs.Job) jobs.Job
}

// Request starts a dispatch.
type Request struct {
	Message      string   `json:"message" validate:"required"`
	RestaurantID string   `json:"restaurant_id"`
	Accepts      []string `json:"accepts"`
	AcceptLink   string   `json:"accept_link"`
}

// Result carries every artifact of a successful dispatch.
type Result struct {
	DispatchID      string                  `json:"dispatch_id"`
	AuditID         string                  `json:"audit_id"`
	Donation        model.Donation          `json:"donation"`
	SelectedCharity model.Charity           `json:"selected_charity"`
	SelectedDriver  model.Driver            `json:"selected_driver"`
	PickupAddress   string                  `json:"pickup_address"`
	PickupDeadline  string                  `json:"pickup_deadline"`
	DriverMessage   string                  `json:"driver_message"`
	Receipt         *model.Receipt          `json:"receipt"`
	ReceiptRaw      string                  `json:"receipt_raw,omitempty"`
	Ranked          []model.RankedCandidate `json:"ranked"`
	RankingFallback bool                    `json:"ranking_fallback"`
	Candidates      []model.Charity         `json:"candidates"`
	Drivers         []model.Driver          `json:"drivers"`
	JobID           string                  `json:"job_id,omitempty"`
	MapPoints       []MapPoint              `json:"map_points"`
}

// Pipeline sequences the dispatch steps. It holds no per-dispatch state, so
// one Pipeline serves concurrent dispatches.
type Pipeline struct {
	assist  Assistant
	store   store.Store
	cols    store.Collections
	cfg     Config
	log     logger.Logger
	now     func() time.Time
	newID   func() string
	mu      sync.RWMutex
	metrics metrics.MetricsSink
	bus     *eventbus.Bus[StageEvent]
	audit   auditlog.LogStore
	jobs    JobOpener
	notify  notify.Multi
	monitor monitoring.Monitor
	pending sync.WaitGroup
}

// NewPipeline wires the mandatory collaborators. Optional ones are added
// with the Set methods.
func NewPipeline(a Assistant, st store.Store, cols store.Collections, cfg Config, log logger.Logger) *Pipeline {
	cfg.SetDefaults()
	cols.SetDefaults()
	return &Pipeline{
		assist:  a,
		store:   st,
		cols:    cols,
		cfg:     cfg,
		log:     log,
		now:     time.Now,
		newID:   uuid.NewString,
		metrics: metrics.NopSink{},
		monitor: monitoring.NopMonitor{},
	}
}

// SetMetrics configures the sink receiving dispatch metrics.
func (p *Pipeline) SetMetrics(s metrics.MetricsSink) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if s != nil {
		p.metrics = s
	}
}

// SetBus configures the bus receiving stage events.
func (p *Pipeline) SetBus(b *eventbus.Bus[StageEvent]) {
	p.mu.Lock()
	p.bus = b
	p.mu.Unlock()
}

// SetLogStore configures the local audit mirror.
func (p *Pipeline) SetLogStore(s auditlog.LogStore) {
	p.mu.Lock()
	p.audit = s
	p.mu.Unlock()
}

// SetJobs configures the repository that receives a job per dispatch.
func (p *Pipeline) SetJobs(j JobOpener) {
	p.mu.Lock()
	p.jobs = j
	p.mu.Unlock()
}

// SetNotifier configures the channels used to reach the selected driver.
func (p *Pipeline) SetNotifier(n notify.Multi) {
	p.mu.Lock()
	p.notify = n
	p.mu.Unlock()
}

// SetMonitor configures error reporting.
func (p *Pipeline) SetMonitor(m monitoring.Monitor) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if m != nil {
		p.monitor = m
	}
}

// Config returns the effective configuration.
func (p *Pipeline) Config() Config { return p.cfg }

// Collections returns the effective collection names.
func (p *Pipeline) Collections() store.Collections { return p.cols }

type step struct {
	stage Stage
	run   func() error
}

// Run executes one dispatch. A failure returns a *StepError naming the
// stage that was not reached; nothing written before it is undone.
func (p *Pipeline) Run(ctx context.Context, req Request) (*Result, error) {
	req = p.normalize(req)
	res := &Result{DispatchID: p.newID()}
	start := p.now()

	var (
		ranking assist.Ranking
		receipt assist.ReceiptResult
	)
	steps := []step{
		{StageReceived, func() error {
			if strings.TrimSpace(req.Message) == "" {
				return fault.Newf(fault.ErrValidation, "dispatch", "message is required")
			}
			return nil
		}},
		{StageExtracted, func() (err error) {
			res.Donation, err = p.assist.ExtractDonation(ctx, req.Message)
			return err
		}},
		{StageCharitiesFetched, func() (err error) {
			res.Candidates, err = p.FetchCharities(ctx, req.Accepts)
			if err == nil && len(res.Candidates) == 0 {
				err = fault.Newf(fault.ErrSelection, "fetch charities", "no charities accept %v", req.Accepts).
					WithDebug(map[string]any{"accepts": req.Accepts})
			}
			return err
		}},
		{StageRanked, func() (err error) {
			ranking, err = p.assist.RankCharities(ctx, res.Donation, res.Candidates)
			res.Ranked, res.RankingFallback = ranking.Ranked, ranking.Fallback
			if err == nil && ranking.Fallback {
				p.recordFallback(res.DispatchID, len(res.Candidates))
			}
			return err
		}},
		{StageCharitySelected, func() (err error) {
			res.SelectedCharity, err = ResolveCharity(res.Ranked, res.Candidates)
			if err != nil {
				return err
			}
			res.PickupAddress = firstNonEmpty(res.Donation.PickupAddress, res.SelectedCharity.Address)
			res.PickupDeadline = firstNonEmpty(res.Donation.PickupDeadline, p.cfg.DefaultDeadline)
			return nil
		}},
		{StageDriversFetched, func() (err error) {
			res.Drivers, err = p.FetchDrivers(ctx, model.DriverAvailable)
			if err == nil && len(res.Drivers) == 0 {
				err = fault.Newf(fault.ErrSelection, "fetch drivers", "no available drivers")
			}
			return err
		}},
		{StageDriverSelected, func() (err error) {
			res.SelectedDriver, err = SelectDriver(res.Drivers)
			return err
		}},
		{StageMessageDrafted, func() (err error) {
			res.DriverMessage, err = p.assist.DraftDriverMessage(ctx, assist.MessageRequest{
				Pickup:       res.PickupAddress,
				Time:         res.PickupDeadline,
				ItemsSummary: res.Donation.ItemsSummary(),
				AcceptLink:   req.AcceptLink,
			})
			return err
		}},
		{StageReceiptGenerated, func() (err error) {
			receipt, err = p.assist.GenerateReceipt(ctx, assist.ReceiptRequest{
				RestaurantID:   req.RestaurantID,
				Charity:        assist.CharityRef{ID: res.SelectedCharity.ID, Name: res.SelectedCharity.Name},
				Items:          res.Donation,
				PickupAddress:  res.PickupAddress,
				PickupDeadline: res.PickupDeadline,
			})
			res.Receipt = receipt.Receipt
			if err == nil && receipt.Receipt == nil {
				res.ReceiptRaw = receipt.JSONText
			}
			return err
		}},
		{StageAudited, func() error {
			donation, charity, driver := res.Donation, res.SelectedCharity, res.SelectedDriver
			rec, _, err := p.WriteAudit(ctx, model.AuditRecord{
				RestaurantID:      req.RestaurantID,
				RestaurantMessage: req.Message,
				Extracted:         &donation,
				SelectedCharity:   &charity,
				SelectedDriver:    &driver,
				DriverMessage:     res.DriverMessage,
				Receipt:           res.Receipt,
				ReceiptRaw:        res.ReceiptRaw,
				Status:            model.StatusDispatched,
			})
			res.AuditID = rec.ID
			return err
		}},
	}

	for _, s := range steps {
		if err := p.step(res.DispatchID, req.RestaurantID, s); err != nil {
			p.fail(res, req, err, p.now().Sub(start))
			return nil, err
		}
	}

	res.MapPoints = MapPoints(res.Candidates, res.Drivers, res.SelectedCharity.ID, res.SelectedDriver.ID)
	p.followUp(ctx, res, req)
	p.succeed(res, req, p.now().Sub(start))
	return res, nil
}

func (p *Pipeline) step(dispatchID, restaurantID string, s step) error {
	start := p.now()
	err := s.run()
	end := p.now()
	p.mu.RLock()
	bus := p.bus
	p.mu.RUnlock()
	if bus != nil {
		bus.Publish(StageEvent{
			DispatchID:   dispatchID,
			RestaurantID: restaurantID,
			Stage:        s.stage,
			Err:          err,
			Duration:     end.Sub(start),
			Time:         end,
		})
	}
	if err != nil {
		return &StepError{Stage: s.stage, Err: err, Debug: fault.Debug(err)}
	}
	p.log.Debugw("dispatch stage reached", map[string]any{"dispatch_id": dispatchID, "stage": string(s.stage)})
	return nil
}

func (p *Pipeline) normalize(req Request) Request {
	req.RestaurantID = firstNonEmpty(req.RestaurantID, p.cfg.DefaultRestaurantID)
	req.AcceptLink = firstNonEmpty(req.AcceptLink, p.cfg.AcceptLink)
	if len(req.Accepts) == 0 {
		req.Accepts = p.cfg.DefaultAccepts
	}
	return req
}

// FetchCharities lists charities accepting any of the categories. An empty
// category list lists every charity.
func (p *Pipeline) FetchCharities(ctx context.Context, accepts []string) ([]model.Charity, error) {
	sel := store.Where("type", "charity").In("accepts", store.Strings(accepts)...)
	docs, err := p.store.Find(ctx, p.cols.Charities, sel, p.cfg.CandidateLimit)
	if err != nil {
		return nil, err
	}
	return decodeDocs[model.Charity](p.log, p.cols.Charities, docs), nil
}

// FetchDrivers lists drivers with the given status. An empty status lists
// every driver.
func (p *Pipeline) FetchDrivers(ctx context.Context, status string) ([]model.Driver, error) {
	sel := store.Where("type", "driver")
	if status != "" {
		sel = sel.Where("status", status)
	}
	docs, err := p.store.Find(ctx, p.cols.Drivers, sel, p.cfg.CandidateLimit)
	if err != nil {
		return nil, err
	}
	return decodeDocs[model.Driver](p.log, p.cols.Drivers, docs), nil
}

// decodeDocs skips documents that cannot be read so one irregular entry
// never blocks a dispatch.
func decodeDocs[T any](log logger.Logger, collection string, docs []store.Doc) []T {
	out, skipped := store.DecodeValid[T](docs)
	for _, err := range skipped {
		log.Warnf("skipping %s document: %v", collection, err)
	}
	return out
}

// WriteAudit completes rec with its identifier, type, timestamp and status,
// writes it to the audit collection and mirrors it to the local audit log.
func (p *Pipeline) WriteAudit(ctx context.Context, rec model.AuditRecord) (model.AuditRecord, store.Ack, error) {
	if strings.TrimSpace(rec.RestaurantID) == "" {
		return rec, store.Ack{}, fault.Newf(fault.ErrValidation, "write audit", "restaurant_id is required")
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = p.now().UTC()
	}
	if rec.ID == "" {
		rec.ID = model.AuditID(rec.CreatedAt, rec.RestaurantID)
	}
	rec.Type = model.AuditType
	if rec.Status == "" {
		rec.Status = model.StatusDispatched
	}
	ack, err := p.store.Put(ctx, p.cols.Audit, rec)
	if err != nil {
		return rec, ack, err
	}
	if ack.ID == "" {
		ack.ID = rec.ID
	}
	p.mu.RLock()
	mirror := p.audit
	p.mu.RUnlock()
	if mirror != nil {
		if err := mirror.Append(ctx, rec); err != nil {
			p.log.Warnf("audit %s stored but not mirrored: %v", rec.ID, err)
		}
	}
	return rec, ack, nil
}

// followUp opens the job and starts notifying the driver. Delivery runs in
// the background under NotifyTimeout and failures never undo the audited
// dispatch.
func (p *Pipeline) followUp(ctx context.Context, res *Result, req Request) {
	p.mu.RLock()
	jobRepo, channels := p.jobs, p.notify
	p.mu.RUnlock()

	if jobRepo != nil {
		job := jobRepo.Create(jobs.Job{
			PickupAddress: res.PickupAddress,
			Items:         res.Donation.ItemsSummary(),
			Deadline:      res.PickupDeadline,
			Charity:       res.SelectedCharity.Name,
			DriverID:      res.SelectedDriver.ID,
			AuditID:       res.AuditID,
			Mode:          jobs.ModeDispatch,
		})
		res.JobID = job.ID
	}
	if len(channels) == 0 {
		return
	}
	offer := notify.Offer{
		OfferID:       p.newID(),
		JobID:         res.JobID,
		AuditID:       res.AuditID,
		Driver:        res.SelectedDriver,
		DriverID:      res.SelectedDriver.ID,
		Message:       res.DriverMessage,
		AcceptLink:    req.AcceptLink,
		PickupAddress: res.PickupAddress,
		Deadline:      res.PickupDeadline,
		Timestamp:     p.now().UTC(),
	}
	dctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.cfg.NotifyTimeout())
	p.pending.Add(1)
	go func() {
		defer p.pending.Done()
		defer cancel()
		p.deliver(dctx, channels, offer)
	}()
}

// Wait blocks until every background driver notification has finished.
func (p *Pipeline) Wait() {
	p.pending.Wait()
}

func (p *Pipeline) deliver(ctx context.Context, channels notify.Multi, offer notify.Offer) {
	for _, r := range channels.Deliver(ctx, offer) {
		if r.Skipped() {
			continue
		}
		ev := metrics.NotificationEvent{Channel: r.Channel, DriverID: offer.DriverID, Success: r.Err == nil, Time: offer.Timestamp}
		if r.Err != nil {
			ev.Error = r.Err.Error()
			p.log.Warnf("notify driver %s via %s: %v", offer.DriverID, r.Channel, r.Err)
		}
		if rec, ok := p.sink().(metrics.NotificationRecorder); ok {
			if err := rec.RecordNotification(ev); err != nil {
				p.log.Warnf("record notification: %v", err)
			}
		}
	}
}

func (p *Pipeline) sink() metrics.MetricsSink {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.metrics
}

func (p *Pipeline) recordFallback(dispatchID string, candidates int) {
	if rec, ok := p.sink().(metrics.FallbackRecorder); ok {
		ev := metrics.FallbackEvent{DispatchID: dispatchID, Candidates: candidates, Reason: "ranking output unusable", Time: p.now()}
		if err := rec.RecordFallback(ev); err != nil {
			p.log.Warnf("record fallback: %v", err)
		}
	}
}

func (p *Pipeline) succeed(res *Result, req Request, elapsed time.Duration) {
	ev := metrics.DispatchEvent{
		DispatchID:      res.DispatchID,
		RestaurantID:    req.RestaurantID,
		AuditID:         res.AuditID,
		CharityID:       res.SelectedCharity.ID,
		DriverID:        res.SelectedDriver.ID,
		Success:         true,
		RankingFallback: res.RankingFallback,
		Duration:        elapsed,
		Time:            p.now(),
	}
	if err := p.sink().RecordDispatch(ev); err != nil {
		p.log.Warnf("record dispatch: %v", err)
	}
	p.log.Infow("dispatch complete", map[string]any{
		"dispatch_id":      res.DispatchID,
		"audit_id":         res.AuditID,
		"charity_id":       res.SelectedCharity.ID,
		"driver_id":        res.SelectedDriver.ID,
		"ranking_fallback": res.RankingFallback,
		"job_id":           res.JobID,
		"duration_ms":      elapsed.Milliseconds(),
	})
}

func (p *Pipeline) fail(res *Result, req Request, err error, elapsed time.Duration) {
	stage := ""
	if se, ok := err.(*StepError); ok {
		stage = string(se.Stage)
	}
	kind := ""
	if k := fault.Kind(err); k != nil {
		kind = k.Error()
	}
	ev := metrics.DispatchEvent{
		DispatchID:      res.DispatchID,
		RestaurantID:    req.RestaurantID,
		FailedStage:     stage,
		ErrorKind:       kind,
		RankingFallback: res.RankingFallback,
		Duration:        elapsed,
		Time:            p.now(),
	}
	if rerr := p.sink().RecordDispatch(ev); rerr != nil {
		p.log.Warnf("record dispatch: %v", rerr)
	}
	p.log.Errorf("dispatch %s failed at %s: %v", res.DispatchID, stage, err)
	p.mu.RLock()
	mon := p.monitor
	p.mu.RUnlock()
	mon.CaptureException(err, monitoring.Tags(
		"stage", stage,
		"error_kind", kind,
		"dispatch_id", res.DispatchID,
		"restaurant_id", req.RestaurantID,
	))
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
