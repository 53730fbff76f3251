// Package store provides durable persistence for leads, call audits, and
// scrape runs, with compare-and-swap lifecycle transitions.
package store

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/nightline/internal/model"
)

// ErrNotFound is returned when a lead or run does not exist.
var ErrNotFound = eris.New("store: not found")

// ErrStateConflict is returned when a compare-and-swap transition finds a
// stored state different from the expected one. The stored state is left
// unchanged; callers retry with fresh state.
var ErrStateConflict = eris.New("store: state conflict")

// ErrKeyExists is returned when inserting a lead whose identity key is
// already present (two scrape workers racing on the same candidate).
var ErrKeyExists = eris.New("store: identity key exists")

// LeadFilter selects leads for listing and export.
type LeadFilter struct {
	Status   model.LeadStatus
	Industry string
	State    string
	City     string
	Only247  bool
	Limit    int
	Offset   int
}

// EligibilityFilter selects leads eligible for an audit call: status in
// {new, disqualified} and not called within the cooldown window, ordered
// oldest-first by first-seen so earliest discoveries get audited earliest.
type EligibilityFilter struct {
	Industry string
	State    string
	Only247  bool
	Cooldown time.Duration
	Limit    int
	Now      time.Time // zero means time.Now
}

// Store defines the persistence interface for the qualification pipeline.
type Store interface {
	// Leads
	InsertLead(ctx context.Context, lead model.Lead) error
	MergeLead(ctx context.Context, key string, cand *model.Candidate) error
	GetLead(ctx context.Context, key string) (*model.Lead, error)
	FindByPhone(ctx context.Context, industry, phone string) (*model.Lead, error)
	FindByNameZip(ctx context.Context, normName, zip string) (*model.Lead, error)
	ListLeads(ctx context.Context, filter LeadFilter) ([]model.Lead, error)
	ListEligibleForCall(ctx context.Context, filter EligibilityFilter) ([]model.Lead, error)
	CountByStatus(ctx context.Context) (map[model.LeadStatus]int, error)

	// Transitions. Transition is compare-and-swap on the current status.
	// RecordCallAudit persists the audit and applies from→to atomically:
	// either both land or neither does, so no audit is ever orphaned from
	// the transition it caused.
	Transition(ctx context.Context, key string, from, to model.LeadStatus) error
	RecordCallAudit(ctx context.Context, audit model.CallAudit, from, to model.LeadStatus) error
	ListAudits(ctx context.Context, key string) ([]model.CallAudit, error)

	// Scrape runs
	CreateScrapeRun(ctx context.Context, run model.ScrapeRun) error
	CompleteScrapeRun(ctx context.Context, run model.ScrapeRun) error
	ListScrapeRuns(ctx context.Context, limit int) ([]model.ScrapeRun, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// Open constructs a Store for the given driver and DSN.
func Open(driver, dsn string) (Store, error) {
	switch driver {
	case "sqlite", "":
		return NewSQLite(dsn)
	case "postgres":
		return NewPostgres(context.Background(), dsn)
	default:
		return nil, eris.Errorf("store: unknown driver %q", driver)
	}
}
