package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/resqmeals/gateway/core/assist"
	"github.com/resqmeals/gateway/core/auditlog"
	"github.com/resqmeals/gateway/core/dispatch"
	"github.com/resqmeals/gateway/core/fault"
	"github.com/resqmeals/gateway/core/jobs"
	"github.com/resqmeals/gateway/core/model"
	"github.com/resqmeals/gateway/core/store"
	"github.com/resqmeals/gateway/infra/logger"
	"github.com/resqmeals/gateway/infra/memstore"
)

type fakeAssistant struct {
	extractErr error
	ranked     []model.RankedCandidate
}

func (f *fakeAssistant) ExtractJSON(context.Context, string) (string, error) {
	if f.extractErr != nil {
		return "", f.extractErr
	}
	return `{"food_items":[{"name":"pasta","quantity":20,"unit":"trays"}],"pickup_deadline":"","pickup_address":"","notes":"","missing_fields":[]}`, nil
}

func (f *fakeAssistant) ExtractDonation(ctx context.Context, msg string) (model.Donation, error) {
	text, err := f.ExtractJSON(ctx, msg)
	if err != nil {
		return model.Donation{}, err
	}
	return assist.ParseDonation(text)
}

func (f *fakeAssistant) RankCharities(_ context.Context, _ any, candidates []model.Charity) (assist.Ranking, error) {
	if f.ranked != nil {
		return assist.Ranking{Ranked: f.ranked}, nil
	}
	out := make([]model.RankedCandidate, len(candidates))
	for i, c := range candidates {
		out[i] = model.RankedCandidate{ID: c.ID, Name: c.Name, Score: float64(90 - i)}
	}
	return assist.Ranking{Ranked: out}, nil
}

func (f *fakeAssistant) DraftDriverMessage(_ context.Context, req assist.MessageRequest) (string, error) {
	return "Pickup at " + req.Pickup + " by " + req.Time + ". Accept: " + req.AcceptLink, nil
}

func (f *fakeAssistant) GenerateReceipt(_ context.Context, req assist.ReceiptRequest) (assist.ReceiptResult, error) {
	data := map[string]any{"receipt_id": "rcpt-1", "receiving_org": req.Charity.Name}
	return assist.ReceiptResult{
		Receipt:  &model.Receipt{ReceiptID: "rcpt-1", ReceivingOrg: req.Charity.Name},
		Data:     data,
		JSONText: `{"receipt_id":"rcpt-1"}`,
	}, nil
}

type fixture struct {
	srv   *Server
	store *memstore.Store
	jobs  *jobs.Repository
	audit auditlog.LogStore
	llm   *fakeAssistant
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st := memstore.New().
		Seed("charities",
			model.Charity{ID: "charity:kitchen", Type: "charity", Name: "Kitchen", Accepts: []string{"hot_prepared_food"}, Address: "3 Kitchen St"},
			model.Charity{ID: "charity:pantry", Type: "charity", Name: "Pantry", Accepts: []string{"produce"}},
		).
		Seed("drivers",
			model.Driver{ID: "driver:a", Type: "driver", Name: "Ana", Status: model.DriverAvailable, Rating: 4.1},
			model.Driver{ID: "driver:b", Type: "driver", Name: "Ben", Status: model.DriverBusy, Rating: 4.9},
		)
	audit, err := auditlog.New(auditlog.Config{Backend: "jsonl", Path: t.TempDir() + "/audit.jsonl"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = audit.Close() })

	a := &fakeAssistant{}
	p := dispatch.NewPipeline(a, st, store.Collections{}, dispatch.Config{}, logger.NopLogger{})
	p.SetLogStore(audit)
	repo := jobs.NewRepository()
	p.SetJobs(repo)

	srv := New(Deps{
		Assistant: a,
		Pipeline:  p,
		Store:     st,
		Audit:     audit,
		Jobs:      repo,
		Metrics:   promhttp.HandlerFor(prometheus.NewRegistry(), promhttp.HandlerOpts{}),
		Logger:    logger.NopLogger{},
	})
	return &fixture{srv: srv, store: st, jobs: repo, audit: audit, llm: a}
}

func (f *fixture) do(t *testing.T, method, target, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	rr := httptest.NewRecorder()
	f.srv.ServeHTTP(rr, req)
	var out map[string]any
	if rr.Body.Len() > 0 && strings.HasPrefix(rr.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out))
	}
	return rr, out
}

func TestHealth(t *testing.T) {
	f := newFixture(t)
	rr, out := f.do(t, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, true, out["ok"])
}

func TestExtractDonation(t *testing.T) {
	f := newFixture(t)
	rr, out := f.do(t, http.MethodPost, "/llm/extract_donation", `{"text":"20 trays of pasta"}`)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, out["json"], `"pasta"`)

	rr, out = f.do(t, http.MethodPost, "/llm/extract_donation", `{}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.NotEmpty(t, out["error"])

	rr, _ = f.do(t, http.MethodPost, "/llm/extract_donation", `not json`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	f.llm.extractErr = fault.Newf(fault.ErrConfiguration, "llm", "no provider configured")
	rr, _ = f.do(t, http.MethodPost, "/llm/extract_donation", `{"text":"x"}`)
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
}

func TestRankAndDraftAndReceipt(t *testing.T) {
	f := newFixture(t)
	rr, out := f.do(t, http.MethodPost, "/llm/rank_charities", `{"donation":{"food_items":[]},"candidates":[{"_id":"c1","name":"One"},{"_id":"c2","name":"Two"}]}`)
	require.Equal(t, http.StatusOK, rr.Code)
	ranked, ok := out["ranked"].([]any)
	require.True(t, ok)
	assert.Len(t, ranked, 2)

	rr, out = f.do(t, http.MethodPost, "/llm/draft_driver_message", `{"pickup":"1 Main St","time":"9pm","items_summary":"pasta","accept_link":"https://x.test/a"}`)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, out["text"], "https://x.test/a")

	rr, _ = f.do(t, http.MethodPost, "/llm/draft_driver_message", `{"pickup":"1 Main St"}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr, out = f.do(t, http.MethodPost, "/llm/generate_receipt", `{"restaurant_id":"r1","charity":{"id":"c1","name":"One"},"items":{}}`)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, map[string]any{"receipt_id": "rcpt-1", "receiving_org": "One"}, out["data"])
	assert.Equal(t, `{"receipt_id":"rcpt-1"}`, out["json_text"])
}

func TestDataRoutes(t *testing.T) {
	f := newFixture(t)
	rr, out := f.do(t, http.MethodGet, "/data/charities?accepts=hot_prepared_food,bakery", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Len(t, out["docs"], 1)

	rr, out = f.do(t, http.MethodGet, "/data/charities", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Len(t, out["docs"], 2)

	rr, out = f.do(t, http.MethodGet, "/data/drivers?status=available", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Len(t, out["docs"], 1)

	rr, out = f.do(t, http.MethodGet, "/data/doc?db=charities&id=charity:pantry", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "Pantry", out["name"])

	rr, _ = f.do(t, http.MethodGet, "/data/doc?db=charities&id=missing", "")
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr, _ = f.do(t, http.MethodGet, "/data/doc?db=charities", "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestAuditLogAndRecent(t *testing.T) {
	f := newFixture(t)
	rr, out := f.do(t, http.MethodPost, "/audit/log", `{"restaurant_id":"restaurant:pasta-palace","restaurant_message":"pasta","driver_message":"go","status":"dispatched"}`)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, true, out["ok"])
	id, _ := out["id"].(string)
	assert.Regexp(t, `^audit:\d{8}T\d{6}\.\d{6}Z:restaurant:pasta-palace$`, id)
	assert.NotEmpty(t, out["rev"])
	assert.Equal(t, 1, f.store.Len("audit"))

	rr, out = f.do(t, http.MethodGet, "/audit/recent?limit=5", "")
	require.Equal(t, http.StatusOK, rr.Code)
	docs, _ := out["docs"].([]any)
	require.Len(t, docs, 1)
	assert.Equal(t, id, docs[0].(map[string]any)["_id"])

	rr, _ = f.do(t, http.MethodPost, "/audit/log", `{"restaurant_message":"no id"}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, 1, f.store.Len("audit"))

	rr, _ = f.do(t, http.MethodGet, "/audit/recent?format=csv", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "text/csv", rr.Header().Get("Content-Type"))
	lines := strings.Split(strings.TrimSpace(rr.Body.String()), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], "audit_id,created_at,restaurant_id"))
	assert.Contains(t, lines[1], id)

	rr, _ = f.do(t, http.MethodGet, "/audit/recent?limit=abc", "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestDispatchEndToEndAndJobs(t *testing.T) {
	f := newFixture(t)
	rr, out := f.do(t, http.MethodPost, "/dispatch", `{"message":"20 trays of pasta"}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, "charity:kitchen", out["selected_charity"].(map[string]any)["_id"])
	assert.Equal(t, "driver:a", out["selected_driver"].(map[string]any)["_id"])
	assert.Contains(t, out["driver_message"], "https://resqmeals.app/accept/demo")
	jobID, _ := out["job_id"].(string)
	require.NotEmpty(t, jobID)

	rr, out = f.do(t, http.MethodGet, "/jobs?status=open", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Len(t, out["jobs"], 1)

	rr, _ = f.do(t, http.MethodPost, "/jobs/"+jobID+"/complete", "")
	assert.Equal(t, http.StatusConflict, rr.Code)

	rr, out = f.do(t, http.MethodPost, "/jobs/"+jobID+"/accept", `{"driver_id":"driver:a","driver_name":"Ana"}`)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "accepted", out["status"])

	rr, _ = f.do(t, http.MethodPost, "/jobs/"+jobID+"/accept", `{"driver_id":"driver:c"}`)
	assert.Equal(t, http.StatusConflict, rr.Code)

	rr, out = f.do(t, http.MethodPost, "/jobs/"+jobID+"/complete", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "completed", out["status"])

	rr, _ = f.do(t, http.MethodPost, "/jobs/job_nope/complete", "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestDispatchFailureCarriesStageAndDebug(t *testing.T) {
	f := newFixture(t)
	f.llm.ranked = []model.RankedCandidate{{ID: "charity:ghost"}}

	rr, out := f.do(t, http.MethodPost, "/dispatch", `{"message":"pasta"}`)
	require.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	assert.Equal(t, string(dispatch.StageCharitySelected), out["stage"])
	debug, ok := out["debug"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, []any{"charity:kitchen"}, debug["candidate_ids"])
	assert.Equal(t, 0, f.store.Len("audit"))

	rr, out = f.do(t, http.MethodPost, "/dispatch", `{"message":"bread","accepts":["bakery"]}`)
	require.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	assert.Equal(t, string(dispatch.StageCharitiesFetched), out["stage"])
}

func TestRoutesAndMetrics(t *testing.T) {
	f := newFixture(t)
	rr, out := f.do(t, http.MethodGet, "/__routes", "")
	require.Equal(t, http.StatusOK, rr.Code)
	routes, _ := out["routes"].([]any)
	assert.Contains(t, routes, "POST /dispatch")
	assert.Contains(t, routes, "GET /metrics")

	rr, _ = f.do(t, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestStatusOf(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{fault.Newf(fault.ErrValidation, "x", "bad"), http.StatusBadRequest},
		{fault.Newf(fault.ErrNotFound, "x", "gone"), http.StatusNotFound},
		{fault.Newf(fault.ErrSelection, "x", "none"), http.StatusUnprocessableEntity},
		{fault.Newf(fault.ErrShape, "x", "garbage"), http.StatusBadGateway},
		{fault.Newf(fault.ErrTransport, "x", "503"), http.StatusBadGateway},
		{fault.Newf(fault.ErrConfiguration, "x", "no key"), http.StatusInternalServerError},
		{&dispatch.StepError{Stage: dispatch.StageRanked, Err: fault.ErrTransport}, http.StatusBadGateway},
		{jobs.ErrInvalidTransition, http.StatusConflict},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, StatusOf(tt.err), tt.err.Error())
	}
}
