// Package jobs keeps the pickup jobs offered to drivers and guards their
// open -> accepted -> completed lifecycle.
package jobs

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state of a job.
type Status string

const (
	StatusOpen      Status = "open"
	StatusAccepted  Status = "accepted"
	StatusCompleted Status = "completed"
)

// ModeDispatch marks jobs opened by a dispatch run.
const ModeDispatch = "dispatch"

var (
	// ErrNotFound reports an unknown job id.
	ErrNotFound = errors.New("job not found")
	// ErrInvalidTransition reports a state change the lifecycle forbids.
	ErrInvalidTransition = errors.New("invalid job transition")
)

// DriverRef identifies the driver who accepted a job.
type DriverRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Job is one pickup offered to drivers.
type Job struct {
	ID            string     `json:"job_id"`
	CreatedAt     time.Time  `json:"created_at"`
	PickupAddress string     `json:"pickup_address"`
	Items         string     `json:"items"`
	Deadline      string     `json:"deadline"`
	Charity       string     `json:"charity"`
	DriverID      string     `json:"driver_id,omitempty"`
	AuditID       string     `json:"audit_id,omitempty"`
	Status        Status     `json:"status"`
	AcceptedBy    *DriverRef `json:"accepted_by"`
	AcceptedAt    *time.Time `json:"accepted_at"`
	CompletedAt   *time.Time `json:"completed_at"`
	Mode          string     `json:"mode"`
}

// Repository is an in-memory, concurrency-safe job list, newest first.
type Repository struct {
	mu    sync.Mutex
	jobs  map[string]*Job
	order []string
	now   func() time.Time
	newID func() string
}

// NewRepository returns an empty repository.
func NewRepository() *Repository {
	return &Repository{
		jobs: map[string]*Job{},
		now:  time.Now,
		newID: func() string {
			return "job_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
		},
	}
}

// Create stores j as a new open job and returns the stored copy.
func (r *Repository) Create(j Job) Job {
	r.mu.Lock()
	defer r.mu.Unlock()
	j.ID = r.newID()
	j.CreatedAt = r.now().UTC()
	j.Status = StatusOpen
	j.AcceptedBy, j.AcceptedAt, j.CompletedAt = nil, nil, nil
	if j.Mode == "" {
		j.Mode = ModeDispatch
	}
	r.jobs[j.ID] = &j
	r.order = append([]string{j.ID}, r.order...)
	return j
}

// Get returns the job with id.
func (r *Repository) Get(id string) (Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[id]
	if !ok {
		return Job{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return *j, nil
}

// List returns jobs newest first. An empty status lists every job.
func (r *Repository) List(status Status) []Job {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Job, 0, len(r.order))
	for _, id := range r.order {
		j := r.jobs[id]
		if status == "" || j.Status == status {
			out = append(out, *j)
		}
	}
	return out
}

// Accept assigns an open job to a driver.
func (r *Repository) Accept(id string, driver DriverRef) (Job, error) {
	return r.transition(id, StatusOpen, StatusAccepted, func(j *Job, at time.Time) {
		d := driver
		j.AcceptedBy = &d
		j.AcceptedAt = &at
	})
}

// Complete closes an accepted job.
func (r *Repository) Complete(id string) (Job, error) {
	return r.transition(id, StatusAccepted, StatusCompleted, func(j *Job, at time.Time) {
		j.CompletedAt = &at
	})
}

func (r *Repository) transition(id string, from, to Status, apply func(*Job, time.Time)) (Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[id]
	if !ok {
		return Job{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if j.Status != from {
		return Job{}, fmt.Errorf("%w: job %s is %s, want %s", ErrInvalidTransition, id, j.Status, from)
	}
	j.Status = to
	apply(j, r.now().UTC())
	return *j, nil
}
