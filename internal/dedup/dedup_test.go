package dedup

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/nightline/internal/model"
	"github.com/sells-group/nightline/internal/store"
)

func newTestStore(t *testing.T) store.Store {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "dedup_test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func candidate(key, name, normName, phone, zip string) *model.Candidate {
	return &model.Candidate{
		Key:         key,
		Name:        name,
		NormName:    normName,
		Phone:       phone,
		Industry:    "hvac",
		City:        "Dallas",
		State:       "TX",
		Zip:         zip,
		ReviewCount: 42,
		Claims247:   true,
	}
}

func TestApply_InsertsNewLead(t *testing.T) {
	st := newTestStore(t)
	r := NewResolver(st)
	ctx := context.Background()

	cand := candidate("hvac:+12145550100", "Apex HVAC", "apex hvac", "+12145550100", "75201")
	dec, err := r.Apply(ctx, cand)
	require.NoError(t, err)
	assert.Equal(t, ActionInsert, dec.Action)
	assert.Equal(t, "hvac:+12145550100", dec.Key)

	lead, err := st.GetLead(ctx, dec.Key)
	require.NoError(t, err)
	assert.Equal(t, model.LeadStatusNew, lead.Status)
	assert.Equal(t, "Apex HVAC", lead.Name)
	assert.True(t, lead.ClaimsTwentyFourSeven)
	assert.False(t, lead.FirstSeenAt.IsZero())
}

func TestApply_MergesByPhone(t *testing.T) {
	st := newTestStore(t)
	r := NewResolver(st)
	ctx := context.Background()

	cand := candidate("hvac:+12145550100", "Apex HVAC", "apex hvac", "+12145550100", "75201")
	_, err := r.Apply(ctx, cand)
	require.NoError(t, err)

	// Same phone, different display name (duplicate ad placement).
	dup := candidate("hvac:+12145550100", "Apex HVAC - 24hr Repair", "apex hvac 24hr repair", "+12145550100", "75201")
	dup.ReviewCount = 57
	dec, err := r.Apply(ctx, dup)
	require.NoError(t, err)
	assert.Equal(t, ActionMerge, dec.Action)
	assert.Equal(t, "hvac:+12145550100", dec.Key)

	leads, err := st.ListLeads(ctx, store.LeadFilter{})
	require.NoError(t, err)
	require.Len(t, leads, 1)
	assert.Equal(t, 57, leads[0].ReviewCount)
}

func TestApply_MergesByNameZipWhenNoPhone(t *testing.T) {
	st := newTestStore(t)
	r := NewResolver(st)
	ctx := context.Background()

	first := candidate("hvac:apex-hvac:75201", "Apex HVAC", "apex hvac", "", "75201")
	_, err := r.Apply(ctx, first)
	require.NoError(t, err)

	again := candidate("hvac:apex-hvac:75201", "Apex HVAC", "apex hvac", "", "75201")
	dec, err := r.Apply(ctx, again)
	require.NoError(t, err)
	assert.Equal(t, ActionMerge, dec.Action)

	leads, err := st.ListLeads(ctx, store.LeadFilter{})
	require.NoError(t, err)
	assert.Len(t, leads, 1)
}

func TestApply_PhoneMatchEnrichesPhonelessLead(t *testing.T) {
	st := newTestStore(t)
	r := NewResolver(st)
	ctx := context.Background()

	// First seen without a phone, identity falls back to name+zip.
	first := candidate("hvac:apex-hvac:75201", "Apex HVAC", "apex hvac", "", "75201")
	_, err := r.Apply(ctx, first)
	require.NoError(t, err)

	// Re-scraped with a phone: name+zip still matches, so the existing lead
	// is merged rather than a second one inserted.
	enriched := candidate("hvac:+12145550100", "Apex HVAC", "apex hvac", "+12145550100", "75201")
	dec, err := r.Apply(ctx, enriched)
	require.NoError(t, err)
	assert.Equal(t, ActionMerge, dec.Action)
	assert.Equal(t, "hvac:apex-hvac:75201", dec.Key)

	lead, err := st.GetLead(ctx, "hvac:apex-hvac:75201")
	require.NoError(t, err)
	assert.Equal(t, "+12145550100", lead.Phone)
}

func TestApply_MergeKeepsLifecycleState(t *testing.T) {
	st := newTestStore(t)
	r := NewResolver(st)
	ctx := context.Background()

	cand := candidate("hvac:+12145550100", "Apex HVAC", "apex hvac", "+12145550100", "75201")
	_, err := r.Apply(ctx, cand)
	require.NoError(t, err)
	require.NoError(t, st.Transition(ctx, cand.Key, model.LeadStatusNew, model.LeadStatusScheduled))

	before, err := st.GetLead(ctx, cand.Key)
	require.NoError(t, err)

	_, err = r.Apply(ctx, cand)
	require.NoError(t, err)

	after, err := st.GetLead(ctx, cand.Key)
	require.NoError(t, err)
	assert.Equal(t, model.LeadStatusScheduled, after.Status)
	assert.True(t, after.FirstSeenAt.Equal(before.FirstSeenAt))
}

func TestResolve_PhoneBeatsNameZip(t *testing.T) {
	st := newTestStore(t)
	r := NewResolver(st)
	ctx := context.Background()

	now := time.Now().UTC()
	require.NoError(t, st.InsertLead(ctx, model.Lead{
		Key: "hvac:+12145550100", Name: "Apex HVAC", NormName: "apex hvac",
		Phone: "+12145550100", Industry: "hvac", Zip: "75201",
		Status: model.LeadStatusNew, FirstSeenAt: now, LastUpdatedAt: now,
	}))
	require.NoError(t, st.InsertLead(ctx, model.Lead{
		Key: "hvac:apex-hvac:75202", Name: "Apex HVAC", NormName: "apex hvac",
		Industry: "hvac", Zip: "75202",
		Status: model.LeadStatusNew, FirstSeenAt: now, LastUpdatedAt: now,
	}))

	// Candidate matches one lead by phone and the other by name+zip; phone
	// is the stronger signal.
	cand := candidate("hvac:+12145550100", "Apex HVAC", "apex hvac", "+12145550100", "75202")
	dec, err := r.Resolve(ctx, cand)
	require.NoError(t, err)
	assert.Equal(t, ActionMerge, dec.Action)
	assert.Equal(t, "hvac:+12145550100", dec.Key)
}

func TestResolve_NoMatchMeansInsert(t *testing.T) {
	st := newTestStore(t)
	r := NewResolver(st)

	cand := candidate("hvac:+19995550000", "Nobody Here", "nobody here", "+19995550000", "00000")
	dec, err := r.Resolve(context.Background(), cand)
	require.NoError(t, err)
	assert.Equal(t, ActionInsert, dec.Action)
	assert.Equal(t, cand.Key, dec.Key)
}
