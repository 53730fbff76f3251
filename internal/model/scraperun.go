package model

import "time"

// ScrapeRunStatus tracks the state of one scraping session.
type ScrapeRunStatus string

const (
	ScrapeRunRunning   ScrapeRunStatus = "running"
	ScrapeRunCompleted ScrapeRunStatus = "completed"
	ScrapeRunFailed    ScrapeRunStatus = "failed"
)

// ScrapeRun records one scraping session against a single (query, region)
// target, with the counts the session produced.
type ScrapeRun struct {
	ID          string          `json:"id"`
	Query       string          `json:"query"`
	Region      string          `json:"region"`
	Found       int             `json:"found"`
	NewLeads    int             `json:"new_leads"`
	Merged      int             `json:"merged"`
	Skipped     int             `json:"skipped"` // records dropped by normalization
	StartedAt   time.Time       `json:"started_at"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
	Status      ScrapeRunStatus `json:"status"`
	ErrMessage  string          `json:"error_message,omitempty"`
}
