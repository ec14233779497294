// Package auditlog keeps a local, append-only mirror of audit records so
// recent dispatches can be listed without querying the document store.
package auditlog

import (
	"context"
	"sort"
	"time"

	"github.com/resqmeals/gateway/core/fault"
	"github.com/resqmeals/gateway/core/model"
)

// DefaultRecentLimit is used when a query sets no limit.
const DefaultRecentLimit = 20

// Backends.
const (
	BackendNone     = "none"
	BackendJSONL    = "jsonl"
	BackendRotating = "rotating"
	BackendSQLite   = "sqlite"
)

// Query defines filters for retrieving records.
type Query struct {
	Limit        int
	RestaurantID string
	Since        time.Time
}

// LogStore persists audit records and lists them newest first.
type LogStore interface {
	Append(ctx context.Context, rec model.AuditRecord) error
	Recent(ctx context.Context, q Query) ([]model.AuditRecord, error)
	Close() error
}

// Config selects and tunes the backend.
type Config struct {
	Backend    string `json:"backend"`
	Path       string `json:"path"`
	MaxSizeMB  int    `json:"max_size_mb"`
	MaxBackups int    `json:"max_backups"`
	MaxAgeDays int    `json:"max_age_days"`
}

// SetDefaults fills unset values.
func (c *Config) SetDefaults() {
	if c.Backend == "" {
		c.Backend = BackendJSONL
	}
	if c.Path == "" {
		switch c.Backend {
		case BackendSQLite:
			c.Path = "data/audit.db"
		default:
			c.Path = "data/audit.jsonl"
		}
	}
	if c.MaxSizeMB <= 0 {
		c.MaxSizeMB = 10
	}
	if c.MaxBackups <= 0 {
		c.MaxBackups = 5
	}
	if c.MaxAgeDays <= 0 {
		c.MaxAgeDays = 30
	}
}

// New opens the configured backend.
func New(cfg Config) (LogStore, error) {
	cfg.SetDefaults()
	switch cfg.Backend {
	case BackendNone:
		return NopStore{}, nil
	case BackendJSONL:
		return NewJSONLStore(cfg.Path)
	case BackendRotating:
		return NewRotatingJSONLStore(cfg.Path, cfg.MaxSizeMB, cfg.MaxBackups, cfg.MaxAgeDays)
	case BackendSQLite:
		return NewSQLiteStore(cfg.Path)
	default:
		return nil, fault.Newf(fault.ErrConfiguration, "audit log", "unknown backend %q", cfg.Backend)
	}
}

// NopStore discards records.
type NopStore struct{}

func (NopStore) Append(context.Context, model.AuditRecord) error { return nil }
func (NopStore) Recent(context.Context, Query) ([]model.AuditRecord, error) {
	return []model.AuditRecord{}, nil
}
func (NopStore) Close() error { return nil }

func (q Query) match(r model.AuditRecord) bool {
	if q.RestaurantID != "" && r.RestaurantID != q.RestaurantID {
		return false
	}
	if !q.Since.IsZero() && r.CreatedAt.Before(q.Since) {
		return false
	}
	return true
}

func (q Query) limit() int {
	if q.Limit <= 0 {
		return DefaultRecentLimit
	}
	return q.Limit
}

// newest orders records by creation time, newest first, and truncates.
// Records written at the same instant keep reverse append order.
func newest(recs []model.AuditRecord, limit int) []model.AuditRecord {
	for i, j := 0, len(recs)-1; i < j; i, j = i+1, j-1 {
		recs[i], recs[j] = recs[j], recs[i]
	}
	sort.SliceStable(recs, func(i, j int) bool { return recs[i].CreatedAt.After(recs[j].CreatedAt) })
	if len(recs) > limit {
		recs = recs[:limit]
	}
	return recs
}
