package scrape

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/nightline/internal/config"
	"github.com/sells-group/nightline/internal/model"
	"github.com/sells-group/nightline/internal/store"
)

func newTestStore(t *testing.T) store.Store {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "scrape_test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func testRegistry() config.IndustryRegistry {
	return config.IndustryRegistry{
		"hvac": {
			Name:                 "HVAC",
			Queries:              []string{"24 hour hvac repair"},
			AvailabilityKeywords: []string{"24/7", "24 hours", "emergency"},
		},
	}
}

// fakeSource replays canned listings and can fail a number of times first.
type fakeSource struct {
	listings  []model.RawListing
	failures  int
	failErr   error
	fetches   int
	lastQuery string
}

func (f *fakeSource) Fetch(_ context.Context, query, _ string, _ int) ([]model.RawListing, error) {
	f.fetches++
	f.lastQuery = query
	if f.failures > 0 {
		f.failures--
		return nil, f.failErr
	}
	return f.listings, nil
}

func dallasTarget() Target {
	return Target{Industry: "hvac", City: "Dallas", State: "TX", Zip: "75201"}
}

func TestRun_InsertsNormalizedLeads(t *testing.T) {
	st := newTestStore(t)
	src := &fakeSource{listings: []model.RawListing{
		{
			Name:       "Metro Air & Heat",
			PhoneText:  "(214) 555-0142",
			ReviewText: "4.8 (1,010)",
			HoursText:  "Open 24 hours",
		},
		{
			Name:      "", // dropped by the normalizer
			PhoneText: "(214) 555-0000",
		},
	}}

	o := New(st, src, testRegistry(), Options{})
	summary, err := o.Run(context.Background(), []Target{dallasTarget()})
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Found)
	assert.Equal(t, 1, summary.NewLeads)
	assert.Equal(t, 1, summary.Skipped)
	assert.Equal(t, "24 hour hvac repair in Dallas, TX", src.lastQuery)

	lead, err := st.GetLead(context.Background(), "hvac:+12145550142")
	require.NoError(t, err)
	assert.Equal(t, model.LeadStatusNew, lead.Status)
	assert.True(t, lead.ClaimsTwentyFourSeven)
	assert.Equal(t, 1010, lead.ReviewCount)

	runs, err := st.ListScrapeRuns(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, model.ScrapeRunCompleted, runs[0].Status)
	assert.Equal(t, 1, runs[0].NewLeads)
}

func TestRun_RescrapeMergesNotDuplicates(t *testing.T) {
	st := newTestStore(t)
	src := &fakeSource{listings: []model.RawListing{
		{Name: "Metro Air & Heat", PhoneText: "(214) 555-0142", ReviewText: "4.8 (900)", HoursText: "Open 24 hours"},
	}}
	o := New(st, src, testRegistry(), Options{})

	_, err := o.Run(context.Background(), []Target{dallasTarget()})
	require.NoError(t, err)

	// Second pass with a new review count and a slightly different name.
	src.listings[0].Name = "Métro Air & Heat"
	src.listings[0].ReviewText = "4.9 (1,010)"
	summary, err := o.Run(context.Background(), []Target{dallasTarget()})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Merged)
	assert.Zero(t, summary.NewLeads)

	leads, err := st.ListLeads(context.Background(), store.LeadFilter{})
	require.NoError(t, err)
	require.Len(t, leads, 1, "re-scrape must not create a duplicate")
	assert.Equal(t, 1010, leads[0].ReviewCount)
	assert.Equal(t, model.LeadStatusNew, leads[0].Status, "merge never touches status")
}

func TestRun_RetriesThenSkipsQuery(t *testing.T) {
	st := newTestStore(t)
	src := &fakeSource{
		failures: 5,
		failErr:  ErrScrapeTimeout,
	}

	o := New(st, src, testRegistry(), Options{MaxAttempts: 3, Backoff: time.Millisecond})
	summary, err := o.Run(context.Background(), []Target{dallasTarget()})
	require.NoError(t, err, "skipped query must not fail the run")
	assert.Equal(t, 1, summary.SkippedQueries)
	assert.Equal(t, 3, src.fetches, "capped attempts")

	runs, err := st.ListScrapeRuns(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, model.ScrapeRunFailed, runs[0].Status)
	assert.NotEmpty(t, runs[0].ErrMessage)
}

func TestRun_RecoversAfterTransientBlock(t *testing.T) {
	st := newTestStore(t)
	src := &fakeSource{
		failures: 2,
		failErr:  ErrScrapeBlocked,
		listings: []model.RawListing{
			{Name: "Night Owl Plumbing", PhoneText: "(469) 555-0101", HoursText: "emergency service"},
		},
	}

	o := New(st, src, testRegistry(), Options{MaxAttempts: 3, Backoff: time.Millisecond})
	summary, err := o.Run(context.Background(), []Target{dallasTarget()})
	require.NoError(t, err)
	assert.Zero(t, summary.SkippedQueries)
	assert.Equal(t, 1, summary.NewLeads)
	assert.Equal(t, 3, src.fetches)
}

func TestRun_UnknownIndustry(t *testing.T) {
	st := newTestStore(t)
	o := New(st, &fakeSource{}, testRegistry(), Options{})

	summary, err := o.Run(context.Background(), []Target{{Industry: "bakery", City: "Austin", State: "TX"}})
	require.NoError(t, err, "bad target is logged, not fatal")
	assert.Zero(t, summary.Found)
}
