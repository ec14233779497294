package scenarios

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/resqmeals/gateway/core/assist"
	"github.com/resqmeals/gateway/core/dispatch"
	"github.com/resqmeals/gateway/core/fault"
	"github.com/resqmeals/gateway/core/llm"
	"github.com/resqmeals/gateway/core/model"
	"github.com/resqmeals/gateway/core/store"
	"github.com/resqmeals/gateway/infra/logger"
	"github.com/resqmeals/gateway/infra/memstore"
	"github.com/resqmeals/gateway/internal/eventbus"
)

var errScripted = errors.New("scripted transport failure")

// scriptedCompleter answers each task from the scenario replies. The task
// is recognised from the opening line of the system prompt.
func scriptedCompleter(sc *Scenario, calls *int32) llm.Completer {
	return llm.CompleterFunc(func(_ context.Context, system, _ string) (string, error) {
		atomic.AddInt32(calls, 1)
		task := taskOf(system)
		if task == sc.FailTask {
			return "", fault.New(fault.ErrTransport, "complete", errScripted)
		}
		switch task {
		case "extract":
			return sc.Replies.Extract, nil
		case "rank":
			return sc.Replies.Rank, nil
		case "draft":
			return sc.Replies.Draft, nil
		case "receipt":
			return sc.Replies.Receipt, nil
		}
		return "", nil
	})
}

func taskOf(system string) string {
	first := strings.ToLower(strings.SplitN(system, "\n", 2)[0])
	switch {
	case strings.Contains(first, "extract"):
		return "extract"
	case strings.Contains(first, "match"):
		return "rank"
	case strings.Contains(first, "dispatch messages"):
		return "draft"
	case strings.Contains(first, "receipt"):
		return "receipt"
	}
	return ""
}

func RunScenario(t *testing.T, sc *Scenario) {
	st := memstore.New()
	for _, c := range sc.Charities {
		st.Seed("charities", c.ToModel())
	}
	for _, d := range sc.Drivers {
		st.Seed("drivers", d.ToModel())
	}

	var calls int32
	cfg := dispatch.Config{}
	cfg.SetDefaults()
	p := dispatch.NewPipeline(
		assist.New(scriptedCompleter(sc, &calls), logger.NopLogger{}),
		st,
		store.Collections{},
		cfg,
		logger.NopLogger{},
	)

	bus := eventbus.New[dispatch.StageEvent](len(dispatch.Stages))
	defer bus.Close()
	stages := bus.Subscribe()
	p.SetBus(bus)

	res, err := p.Run(context.Background(), dispatch.Request{
		Message:      sc.Message,
		RestaurantID: sc.RestaurantID,
		Accepts:      sc.Accepts,
	})

	last := lastStage(stages)
	exp := sc.Expected
	if string(last) != exp.Stage {
		t.Errorf("scenario %s expected last stage %s, got %s", sc.Name, exp.Stage, last)
	}
	if got := int(atomic.LoadInt32(&calls)); got != exp.CompletionCalls {
		t.Errorf("scenario %s expected %d completion calls, got %d", sc.Name, exp.CompletionCalls, got)
	}
	if got := st.Len("audit"); got != exp.AuditRecords {
		t.Errorf("scenario %s expected %d audit records, got %d", sc.Name, exp.AuditRecords, got)
	}

	if exp.Kind != "" {
		checkFailure(t, sc, err)
		return
	}
	if err != nil {
		t.Fatalf("scenario %s: unexpected error: %v", sc.Name, err)
	}
	checkResult(t, sc, res)
	checkAudit(t, sc, st, res.AuditID)
}

func checkFailure(t *testing.T, sc *Scenario, err error) {
	var se *dispatch.StepError
	if !errors.As(err, &se) {
		t.Fatalf("scenario %s expected a step error, got %v", sc.Name, err)
	}
	if got := kindName(fault.Kind(err)); got != sc.Expected.Kind {
		t.Errorf("scenario %s expected kind %s, got %s", sc.Name, sc.Expected.Kind, got)
	}
}

func checkResult(t *testing.T, sc *Scenario, res *dispatch.Result) {
	exp := sc.Expected
	if exp.Charity != "" && res.SelectedCharity.ID != exp.Charity {
		t.Errorf("scenario %s expected charity %s, got %s", sc.Name, exp.Charity, res.SelectedCharity.ID)
	}
	if exp.Driver != "" && res.SelectedDriver.ID != exp.Driver {
		t.Errorf("scenario %s expected driver %s, got %s", sc.Name, exp.Driver, res.SelectedDriver.ID)
	}
	if exp.PickupAddress != "" && res.PickupAddress != exp.PickupAddress {
		t.Errorf("scenario %s expected pickup %q, got %q", sc.Name, exp.PickupAddress, res.PickupAddress)
	}
	if exp.PickupDeadline != "" && res.PickupDeadline != exp.PickupDeadline {
		t.Errorf("scenario %s expected deadline %q, got %q", sc.Name, exp.PickupDeadline, res.PickupDeadline)
	}
	if res.RankingFallback != exp.Fallback {
		t.Errorf("scenario %s expected fallback=%v, got %v", sc.Name, exp.Fallback, res.RankingFallback)
	}
	if parsed := res.Receipt != nil; parsed != exp.ReceiptParsed {
		t.Errorf("scenario %s expected receipt parsed=%v, got %v", sc.Name, exp.ReceiptParsed, parsed)
	}
	if !strings.HasPrefix(res.AuditID, model.AuditType+":") {
		t.Errorf("scenario %s unexpected audit id %q", sc.Name, res.AuditID)
	}
}

// checkAudit reads the stored record back and compares what a reviewer of
// the audit trail would see.
func checkAudit(t *testing.T, sc *Scenario, st store.Store, id string) {
	doc, err := st.Get(context.Background(), "audit", id)
	if err != nil {
		t.Fatalf("scenario %s: audit %s not readable: %v", sc.Name, id, err)
	}
	recs, skipped := store.DecodeValid[model.AuditRecord]([]store.Doc{doc})
	if len(skipped) > 0 {
		t.Fatalf("scenario %s: audit %s does not decode: %v", sc.Name, id, skipped[0])
	}
	rec := recs[0]
	exp := sc.Expected
	if rec.Status != model.StatusDispatched {
		t.Errorf("scenario %s audit status %q", sc.Name, rec.Status)
	}
	if rec.RestaurantMessage != sc.Message {
		t.Errorf("scenario %s audit message %q", sc.Name, rec.RestaurantMessage)
	}
	if rec.Extracted == nil {
		t.Fatalf("scenario %s audit has no extracted donation", sc.Name)
	}
	if exp.PickupAddress != "" && rec.Extracted.PickupAddress != exp.PickupAddress {
		t.Errorf("scenario %s audited pickup %q, want %q", sc.Name, rec.Extracted.PickupAddress, exp.PickupAddress)
	}
	if exp.PickupDeadline != "" && rec.Extracted.PickupDeadline != exp.PickupDeadline {
		t.Errorf("scenario %s audited deadline %q, want %q", sc.Name, rec.Extracted.PickupDeadline, exp.PickupDeadline)
	}
	if exp.Charity != "" && (rec.SelectedCharity == nil || rec.SelectedCharity.ID != exp.Charity) {
		t.Errorf("scenario %s audited charity %+v, want %s", sc.Name, rec.SelectedCharity, exp.Charity)
	}
	if exp.Driver != "" && (rec.SelectedDriver == nil || rec.SelectedDriver.ID != exp.Driver) {
		t.Errorf("scenario %s audited driver %+v, want %s", sc.Name, rec.SelectedDriver, exp.Driver)
	}
}

// lastStage drains the buffered stage events and returns the last stage
// that completed without error.
func lastStage(ch <-chan dispatch.StageEvent) dispatch.Stage {
	var last dispatch.Stage
	for {
		select {
		case ev := <-ch:
			if ev.Err == nil {
				last = ev.Stage
			}
		default:
			return last
		}
	}
}

func kindName(kind error) string {
	switch kind {
	case fault.ErrConfiguration:
		return "configuration"
	case fault.ErrTransport:
		return "transport"
	case fault.ErrShape:
		return "shape"
	case fault.ErrSelection:
		return "selection"
	case fault.ErrValidation:
		return "validation"
	case fault.ErrNotFound:
		return "not_found"
	}
	return "unclassified"
}
