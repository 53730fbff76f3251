// Package cost computes audit-call and scraping spend so a night's run can
// be budgeted before it starts and reconciled after it ends.
package cost

import (
	"math"

	"github.com/sells-group/nightline/internal/model"
)

// Rates holds per-provider pricing configuration.
type Rates struct {
	Vapi      VapiRate      `yaml:"vapi" mapstructure:"vapi"`
	LocalData LocalDataRate `yaml:"localdata" mapstructure:"localdata"`
}

// VapiRate holds voice provider pricing. Calls bill per started minute.
type VapiRate struct {
	PerMinute     float64 `yaml:"per_minute" mapstructure:"per_minute"`
	PerCallSetup  float64 `yaml:"per_call_setup" mapstructure:"per_call_setup"`
	TranscriberPM float64 `yaml:"transcriber_per_minute" mapstructure:"transcriber_per_minute"`
}

// LocalDataRate holds RapidAPI search pricing.
type LocalDataRate struct {
	PerRequest float64 `yaml:"per_request" mapstructure:"per_request"`
}

// Calculator computes provider spend.
type Calculator struct {
	rates Rates
}

// NewCalculator creates a Calculator with the given rates.
func NewCalculator(rates Rates) *Calculator {
	return &Calculator{rates: rates}
}

// Call computes the expected cost of a single audit call of the given
// duration in seconds.
func (c *Calculator) Call(durationSecs int) float64 {
	if durationSecs <= 0 {
		return c.rates.Vapi.PerCallSetup
	}
	minutes := math.Ceil(float64(durationSecs) / 60)
	return c.rates.Vapi.PerCallSetup + minutes*(c.rates.Vapi.PerMinute+c.rates.Vapi.TranscriberPM)
}

// EstimateBatch projects the cost of calling n leads assuming each call runs
// the full cap.
func (c *Calculator) EstimateBatch(n, capSecs int) float64 {
	if n <= 0 {
		return 0
	}
	return float64(n) * c.Call(capSecs)
}

// ScrapeRun computes the search API cost of one scrape session.
func (c *Calculator) ScrapeRun(requests int) float64 {
	return float64(requests) * c.rates.LocalData.PerRequest
}

// Spend summarizes actual spend reconstructed from audit rows.
type Spend struct {
	Calls        int
	BilledCalls  int // calls the provider reported a cost for
	TotalSecs    int
	ProviderCost float64 // sum of provider-reported costs
	EstimatedGap float64 // estimated cost of calls with no reported figure
}

// Total returns provider-reported spend plus the estimate for unbilled calls.
func (s Spend) Total() float64 {
	return s.ProviderCost + s.EstimatedGap
}

// Actual aggregates spend from audit history. Mock calls are free. Audits
// without a provider cost figure are filled in from the rate card.
func (c *Calculator) Actual(audits []model.CallAudit) Spend {
	var s Spend
	for _, a := range audits {
		if a.Mock {
			continue
		}
		s.Calls++
		s.TotalSecs += a.DurationSecs
		if a.Cost != nil {
			s.BilledCalls++
			s.ProviderCost += *a.Cost
		} else {
			s.EstimatedGap += c.Call(a.DurationSecs)
		}
	}
	return s
}

// DefaultRates returns the default pricing rates.
func DefaultRates() Rates {
	return Rates{
		Vapi: VapiRate{
			PerMinute:     0.09,
			PerCallSetup:  0.02,
			TranscriberPM: 0.01,
		},
		LocalData: LocalDataRate{PerRequest: 0.003},
	}
}
