// Package gateway exposes the LLM, data, audit, dispatch and job operations
// over HTTP.
package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/resqmeals/gateway/core/assist"
	"github.com/resqmeals/gateway/core/auditlog"
	"github.com/resqmeals/gateway/core/dispatch"
	"github.com/resqmeals/gateway/core/fault"
	"github.com/resqmeals/gateway/core/jobs"
	"github.com/resqmeals/gateway/core/logger"
	"github.com/resqmeals/gateway/core/model"
	"github.com/resqmeals/gateway/core/monitoring"
	"github.com/resqmeals/gateway/core/store"
	"github.com/resqmeals/gateway/pkg/export"
)

// Assistant is the language-model surface served under /llm.
type Assistant interface {
	dispatch.Assistant
	ExtractJSON(ctx context.Context, message string) (string, error)
}

// Deps are the collaborators of the gateway. Audit, Jobs and Metrics are
// optional.
type Deps struct {
	Assistant Assistant
	Pipeline  *dispatch.Pipeline
	Store     store.Store
	Audit     auditlog.LogStore
	Jobs      *jobs.Repository
	Metrics   http.Handler
	Logger    logger.Logger
}

// Server routes gateway requests.
type Server struct {
	deps     Deps
	log      logger.Logger
	validate *validator.Validate
	mux      *http.ServeMux
	routes   []string
}

// New registers every route.
func New(deps Deps) *Server {
	if deps.Audit == nil {
		deps.Audit = auditlog.NopStore{}
	}
	if deps.Jobs == nil {
		deps.Jobs = jobs.NewRepository()
	}
	if deps.Metrics == nil {
		deps.Metrics = promhttp.Handler()
	}
	s := &Server{deps: deps, log: deps.Logger, validate: validator.New(), mux: http.NewServeMux()}

	s.handle("GET /health", s.health)
	s.handle("POST /llm/extract_donation", s.extractDonation)
	s.handle("POST /llm/rank_charities", s.rankCharities)
	s.handle("POST /llm/draft_driver_message", s.draftDriverMessage)
	s.handle("POST /llm/generate_receipt", s.generateReceipt)
	s.handle("GET /data/charities", s.charities)
	s.handle("GET /data/drivers", s.drivers)
	s.handle("GET /data/doc", s.doc)
	s.handle("POST /audit/log", s.auditLog)
	s.handle("GET /audit/recent", s.auditRecent)
	s.handle("POST /dispatch", s.dispatch)
	s.handle("GET /jobs", s.listJobs)
	s.handle("POST /jobs/{id}/accept", s.acceptJob)
	s.handle("POST /jobs/{id}/complete", s.completeJob)
	s.handle("GET /__routes", s.listRoutes)
	s.mux.Handle("GET /metrics", deps.Metrics)
	s.routes = append(s.routes, "GET /metrics")
	sort.Strings(s.routes)
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
	defer func() {
		if v := recover(); v != nil {
			err := fmt.Errorf("panic serving %s %s: %v", r.Method, r.URL.Path, v)
			monitoring.CaptureException(err, monitoring.Tags("module", "gateway", "path", r.URL.Path))
			s.log.Errorf("%v", err)
			writeJSON(rec, http.StatusInternalServerError, errorBody{Error: "internal error"})
		}
		s.log.Debugw("request served", map[string]any{
			"method":      r.Method,
			"path":        r.URL.Path,
			"status":      rec.status,
			"duration_ms": time.Since(start).Milliseconds(),
		})
	}()
	s.mux.ServeHTTP(rec, r)
}

func (s *Server) handle(pattern string, h http.HandlerFunc) {
	s.mux.HandleFunc(pattern, h)
	s.routes = append(s.routes, pattern)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// decode reads a JSON body into v and validates it.
func (s *Server) decode(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fault.New(fault.ErrValidation, "decode body", err)
	}
	return s.validate.Struct(v)
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) listRoutes(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"routes": s.routes})
}

type extractRequest struct {
	Text string `json:"text" validate:"required"`
}

func (s *Server) extractDonation(w http.ResponseWriter, r *http.Request) {
	var req extractRequest
	if err := s.decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	text, err := s.deps.Assistant.ExtractJSON(r.Context(), req.Text)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"json": text})
}

type rankRequest struct {
	Donation   any             `json:"donation" validate:"required"`
	Candidates []model.Charity `json:"candidates" validate:"required"`
}

func (s *Server) rankCharities(w http.ResponseWriter, r *http.Request) {
	var req rankRequest
	if err := s.decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	ranking, err := s.deps.Assistant.RankCharities(r.Context(), req.Donation, req.Candidates)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ranked": ranking.Ranked, "fallback": ranking.Fallback})
}

func (s *Server) draftDriverMessage(w http.ResponseWriter, r *http.Request) {
	var req assist.MessageRequest
	if err := s.decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	text, err := s.deps.Assistant.DraftDriverMessage(r.Context(), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"text": text})
}

func (s *Server) generateReceipt(w http.ResponseWriter, r *http.Request) {
	var req assist.ReceiptRequest
	if err := s.decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	res, err := s.deps.Assistant.GenerateReceipt(r.Context(), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) charities(w http.ResponseWriter, r *http.Request) {
	docs, err := s.deps.Pipeline.FetchCharities(r.Context(), splitCSV(r.URL.Query().Get("accepts")))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"docs": docs})
}

func (s *Server) drivers(w http.ResponseWriter, r *http.Request) {
	docs, err := s.deps.Pipeline.FetchDrivers(r.Context(), r.URL.Query().Get("status"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"docs": docs})
}

func (s *Server) doc(w http.ResponseWriter, r *http.Request) {
	db, id := r.URL.Query().Get("db"), r.URL.Query().Get("id")
	if db == "" || id == "" {
		s.writeError(w, r, fault.Newf(fault.ErrValidation, "get doc", "db and id are required"))
		return
	}
	doc, err := s.deps.Store.Get(r.Context(), db, id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

type auditRequest struct {
	RestaurantID      string          `json:"restaurant_id" validate:"required"`
	RestaurantMessage string          `json:"restaurant_message"`
	Extracted         *model.Donation `json:"extracted"`
	SelectedCharity   *model.Charity  `json:"selected_charity"`
	SelectedDriver    *model.Driver   `json:"selected_driver"`
	DriverMessage     string          `json:"driver_message"`
	Receipt           *model.Receipt  `json:"receipt"`
	ReceiptRaw        string          `json:"receipt_raw"`
	Status            string          `json:"status"`
}

func (s *Server) auditLog(w http.ResponseWriter, r *http.Request) {
	var req auditRequest
	if err := s.decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	_, ack, err := s.deps.Pipeline.WriteAudit(r.Context(), model.AuditRecord{
		RestaurantID:      req.RestaurantID,
		RestaurantMessage: req.RestaurantMessage,
		Extracted:         req.Extracted,
		SelectedCharity:   req.SelectedCharity,
		SelectedDriver:    req.SelectedDriver,
		DriverMessage:     req.DriverMessage,
		Receipt:           req.Receipt,
		ReceiptRaw:        req.ReceiptRaw,
		Status:            req.Status,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ack)
}

func (s *Server) auditRecent(w http.ResponseWriter, r *http.Request) {
	q := auditlog.Query{RestaurantID: r.URL.Query().Get("restaurant_id")}
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			s.writeError(w, r, fault.Newf(fault.ErrValidation, "audit recent", "invalid limit %q", v))
			return
		}
		q.Limit = n
	}
	recs, err := s.deps.Audit.Recent(r.Context(), q)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if export.Format(r.URL.Query().Get("format")) == export.FormatCSV {
		w.Header().Set("Content-Type", "text/csv")
		w.Header().Set("Content-Disposition", `attachment; filename="audit.csv"`)
		if err := export.WriteCSV(w, recs); err != nil {
			s.log.Warnf("audit csv export: %v", err)
		}
		return
	}
	if recs == nil {
		recs = []model.AuditRecord{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"docs": recs})
}

func (s *Server) dispatch(w http.ResponseWriter, r *http.Request) {
	var req dispatch.Request
	if err := s.decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	res, err := s.deps.Pipeline.Run(r.Context(), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) listJobs(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"jobs": s.deps.Jobs.List(jobs.Status(r.URL.Query().Get("status")))})
}

type acceptRequest struct {
	DriverID   string `json:"driver_id" validate:"required"`
	DriverName string `json:"driver_name"`
}

func (s *Server) acceptJob(w http.ResponseWriter, r *http.Request) {
	var req acceptRequest
	if err := s.decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	job, err := s.deps.Jobs.Accept(r.PathValue("id"), jobs.DriverRef{ID: req.DriverID, Name: req.DriverName})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (s *Server) completeJob(w http.ResponseWriter, r *http.Request) {
	job, err := s.deps.Jobs.Complete(r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func splitCSV(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
