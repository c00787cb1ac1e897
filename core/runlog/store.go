// Package runlog persists one record per scheduling run so that past runs
// can be listed and audited.
package runlog

import (
	"context"
	"fmt"
	"time"

	"github.com/yatrik/scheduler/core/factory"
	"github.com/yatrik/scheduler/core/scheduler"
)

// RunRecord captures one run, its options and its outcome.
type RunRecord struct {
	RunID       string            `json:"run_id"`
	Timestamp   time.Time         `json:"timestamp"`
	ServiceDate string            `json:"service_date"`
	DepotIDs    []string          `json:"depot_ids"`
	Options     scheduler.Options `json:"options"`
	Summary     scheduler.Summary `json:"summary"`
	Created     int               `json:"created"`
	Skipped     int               `json:"skipped"`
	Cancelled   bool              `json:"cancelled"`
	Error       string            `json:"error,omitempty"`
	ErrorClass  string            `json:"error_class,omitempty"`
	Report      *scheduler.Report `json:"report,omitempty"`
}

// NewRecord builds the record of a finished run. The full report is kept
// only when withReport is set.
func NewRecord(opts scheduler.Options, rep scheduler.Report, runErr error, withReport bool, now time.Time) RunRecord {
	rec := RunRecord{
		RunID:       rep.RunID,
		Timestamp:   now,
		ServiceDate: rep.ServiceDate,
		DepotIDs:    opts.DepotIDs,
		Options:     opts,
		Summary:     rep.Summary(),
		Created:     rep.Created,
		Skipped:     rep.Skipped,
		Cancelled:   rep.Cancelled,
	}
	if rec.ServiceDate == "" {
		rec.ServiceDate = opts.Date
	}
	if runErr != nil {
		rec.Error = runErr.Error()
		rec.ErrorClass = scheduler.ErrorClass(runErr)
	}
	if withReport && runErr == nil {
		r := rep
		rec.Report = &r
	}
	return rec
}

// Query defines filters for retrieving records. Zero fields match anything.
type Query struct {
	Start       time.Time
	End         time.Time
	ServiceDate string
	DepotID     string
}

func (q Query) match(r RunRecord) bool {
	if !q.Start.IsZero() && r.Timestamp.Before(q.Start) {
		return false
	}
	if !q.End.IsZero() && r.Timestamp.After(q.End) {
		return false
	}
	if q.ServiceDate != "" && r.ServiceDate != q.ServiceDate {
		return false
	}
	if q.DepotID != "" {
		for _, id := range r.DepotIDs {
			if id == q.DepotID {
				return true
			}
		}
		return false
	}
	return true
}

// Store persists RunRecords and supports querying.
type Store interface {
	Append(ctx context.Context, rec RunRecord) error
	Query(ctx context.Context, q Query) ([]RunRecord, error)
	Close() error
}

// Config selects and configures the run log backend.
type Config struct {
	// Backend is one of "jsonl", "rotating", "sqlite" or "memory".
	Backend string `json:"backend"`
	// Path is the file location of the store.
	Path string `json:"path"`
	// MaxSizeMB triggers rotation when the file exceeds this size in megabytes.
	MaxSizeMB int `json:"max_size_mb"`
	// MaxBackups limits the number of rotated files to keep.
	MaxBackups int `json:"max_backups"`
	// MaxAgeDays removes rotated files older than this number of days.
	MaxAgeDays int `json:"max_age_days"`
	// StoreReports keeps the full report in each record.
	StoreReports bool `json:"store_reports"`
}

// SetDefaults applies default values.
func (c *Config) SetDefaults() {
	if c.Backend == "" {
		c.Backend = "jsonl"
	}
	if c.Path == "" && c.Backend != "memory" {
		c.Path = "runs.jsonl"
		if c.Backend == "sqlite" {
			c.Path = "runs.db"
		}
	}
	if c.Backend == "rotating" && c.MaxSizeMB <= 0 {
		c.MaxSizeMB = 10
	}
}

// Validate checks mandatory fields.
func (c Config) Validate() error {
	found := false
	for _, n := range registry.Names() {
		if n == c.Backend {
			found = true
		}
	}
	if !found {
		return fmt.Errorf("unknown run log backend %s", c.Backend)
	}
	if c.Path == "" && c.Backend != "memory" {
		return fmt.Errorf("run_log.path is required")
	}
	return nil
}

var registry = factory.NewRegistry[Store]()

func init() {
	_ = registry.Register("jsonl", func(conf map[string]any) (Store, error) {
		var c Config
		if err := factory.Decode(conf, &c); err != nil {
			return nil, err
		}
		return NewJSONLStore(c.Path)
	})
	_ = registry.Register("rotating", func(conf map[string]any) (Store, error) {
		var c Config
		if err := factory.Decode(conf, &c); err != nil {
			return nil, err
		}
		return NewRotatingJSONLStore(c.Path, c.MaxSizeMB, c.MaxBackups, c.MaxAgeDays)
	})
	_ = registry.Register("sqlite", func(conf map[string]any) (Store, error) {
		var c Config
		if err := factory.Decode(conf, &c); err != nil {
			return nil, err
		}
		return NewSQLiteStore(c.Path)
	})
	_ = registry.Register("memory", func(map[string]any) (Store, error) {
		return NewMemoryStore(), nil
	})
}

// New opens the store described by cfg.
func New(cfg Config) (Store, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return registry.Create(factory.ModuleConfig{Type: cfg.Backend, Conf: map[string]any{
		"path":         cfg.Path,
		"max_size_mb":  cfg.MaxSizeMB,
		"max_backups":  cfg.MaxBackups,
		"max_age_days": cfg.MaxAgeDays,
	}})
}
