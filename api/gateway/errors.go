package gateway

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/resqmeals/gateway/core/dispatch"
	"github.com/resqmeals/gateway/core/fault"
	"github.com/resqmeals/gateway/core/jobs"
)

// errorBody is the JSON shape of every error response.
type errorBody struct {
	Error string `json:"error"`
	Stage string `json:"stage,omitempty"`
	Debug any    `json:"debug,omitempty"`
}

// StatusOf maps an error to its HTTP status.
func StatusOf(err error) int {
	var verrs validator.ValidationErrors
	switch {
	case errors.As(err, &verrs), errors.Is(err, fault.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, fault.ErrNotFound), errors.Is(err, jobs.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, jobs.ErrInvalidTransition):
		return http.StatusConflict
	case errors.Is(err, fault.ErrSelection):
		return http.StatusUnprocessableEntity
	case errors.Is(err, fault.ErrShape), errors.Is(err, fault.ErrTransport):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := StatusOf(err)
	body := errorBody{Error: err.Error(), Debug: fault.Debug(err)}
	var se *dispatch.StepError
	if errors.As(err, &se) {
		body.Stage = string(se.Stage)
	}
	if status >= http.StatusInternalServerError {
		s.log.Errorf("%s %s: %v", r.Method, r.URL.Path, err)
	} else {
		s.log.Warnf("%s %s: %v", r.Method, r.URL.Path, err)
	}
	writeJSON(w, status, body)
}
