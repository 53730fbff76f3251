// Package model defines the core domain types for the lead qualification pipeline.
package model

import "time"

// LeadStatus represents where a lead sits in the qualification lifecycle.
type LeadStatus string

const (
	// LeadStatusNew means the lead was scraped but has not been called.
	LeadStatusNew LeadStatus = "new"
	// LeadStatusScheduled means a call has been claimed for this lead.
	LeadStatusScheduled LeadStatus = "scheduled"
	// LeadStatusCalled means a call was attempted and is awaiting classification.
	LeadStatusCalled LeadStatus = "called"
	// LeadStatusQualified means the business claims 24/7 availability but did
	// not answer, which is the sales opportunity.
	LeadStatusQualified LeadStatus = "qualified"
	// LeadStatusDisqualified means the business answered (or never claimed 24/7).
	LeadStatusDisqualified LeadStatus = "disqualified"
	// LeadStatusContacted means sales has reached out.
	LeadStatusContacted LeadStatus = "contacted"
	// LeadStatusConverted means the lead became a customer. Terminal.
	LeadStatusConverted LeadStatus = "converted"
	// LeadStatusFailed means an unrecoverable provider error ended processing.
	LeadStatusFailed LeadStatus = "failed"
)

// Valid reports whether s is a known lifecycle status.
func (s LeadStatus) Valid() bool {
	switch s {
	case LeadStatusNew, LeadStatusScheduled, LeadStatusCalled,
		LeadStatusQualified, LeadStatusDisqualified,
		LeadStatusContacted, LeadStatusConverted, LeadStatusFailed:
		return true
	}
	return false
}

// Terminal reports whether s admits no further automatic transitions.
// Disqualified leads can be manually re-queued, so disqualified is not
// terminal here.
func (s LeadStatus) Terminal() bool {
	return s == LeadStatusConverted
}

// Lead is a business candidate tracked through the qualification pipeline.
type Lead struct {
	// Key is the stable identity: industry+phone when a phone number is
	// known, otherwise normalized name+zip. Unique within the store.
	Key string `json:"key"`

	Name string `json:"name"`
	// NormName is the folded form of Name used for identity matching.
	NormName string `json:"-"`
	Phone    string `json:"phone,omitempty"` // E.164, empty until enriched
	Industry string `json:"industry"`
	City     string `json:"city,omitempty"`
	State    string `json:"state,omitempty"`
	Zip      string `json:"zip,omitempty"`
	Website  string `json:"website,omitempty"`

	ReviewCount     int     `json:"review_count"`
	Rating          float64 `json:"rating,omitempty"`
	YearsInBusiness string  `json:"years_in_business,omitempty"` // "12" or "15+"
	HoursText       string  `json:"hours_text,omitempty"`

	ClaimsTwentyFourSeven bool   `json:"claims_24_7"`
	KeywordsFound         string `json:"keywords_found,omitempty"` // comma-joined
	Sponsored             bool   `json:"sponsored"`
	GoogleGuaranteed      bool   `json:"google_guaranteed"`

	SourceQuery  string `json:"source_query,omitempty"`
	SourceRegion string `json:"source_region,omitempty"`

	Status        LeadStatus `json:"status"`
	FirstSeenAt   time.Time  `json:"first_seen_at"`
	LastUpdatedAt time.Time  `json:"last_updated_at"`
	LastCalledAt  *time.Time `json:"last_called_at,omitempty"`
}
