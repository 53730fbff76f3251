package model

// RawListing is one untyped record as emitted by an external scraper.
// Field values arrive as display text and are parsed by the normalizer.
type RawListing struct {
	Name             string `json:"name"`
	PhoneText        string `json:"phone_text,omitempty"`
	ReviewText       string `json:"review_text,omitempty"` // e.g. "4.8 (1,010)"
	HoursText        string `json:"hours_text,omitempty"`  // e.g. "Open 24 hours"
	ServesText       string `json:"serves_text,omitempty"` // e.g. "Serves Dallas"
	YearsText        string `json:"years_text,omitempty"`  // e.g. "15+ years in business"
	Website          string `json:"website,omitempty"`
	Sponsored        bool   `json:"sponsored"`
	GoogleGuaranteed bool   `json:"google_guaranteed"`
}

// Candidate is the typed, validated output of the normalizer: a lead-shaped
// value that has not yet been resolved against the store.
type Candidate struct {
	Key             string
	Name            string
	NormName        string // diacritic-stripped, case-folded name used for identity
	Phone           string // E.164, empty when unparseable
	Industry        string
	City            string
	State           string
	Zip             string
	Website         string
	ReviewCount     int
	Rating          float64
	YearsInBusiness string
	HoursText       string
	Claims247       bool
	KeywordsFound   string
	Sponsored       bool
	Guaranteed      bool
	SourceQuery     string
	SourceRegion    string
}
