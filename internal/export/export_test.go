package export

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/nightline/internal/model"
	"github.com/sells-group/nightline/internal/store"
)

func newTestStore(t *testing.T) store.Store {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "export_test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func seedQualifiedLead(t *testing.T, st store.Store, key, name, phone string) {
	t.Helper()
	ctx := context.Background()
	now := time.Now().UTC()
	require.NoError(t, st.InsertLead(ctx, model.Lead{
		Key:                   key,
		Name:                  name,
		NormName:              strings.ToLower(name),
		Phone:                 phone,
		Industry:              "hvac",
		City:                  "Dallas",
		State:                 "TX",
		Zip:                   "75201",
		ClaimsTwentyFourSeven: true,
		Status:                model.LeadStatusNew,
		FirstSeenAt:           now,
		LastUpdatedAt:         now,
	}))
	require.NoError(t, st.Transition(ctx, key, model.LeadStatusNew, model.LeadStatusScheduled))
	require.NoError(t, st.RecordCallAudit(ctx, model.CallAudit{
		ID:          uuid.NewString(),
		LeadKey:     key,
		AttemptedAt: now,
		TimeOfDay:   model.TimeOfDayLateNight,
		Outcome:     model.OutcomeVoicemail,
	}, model.LeadStatusScheduled, model.LeadStatusQualified))
}

func seedUncalledLead(t *testing.T, st store.Store, key, name string) {
	t.Helper()
	now := time.Now().UTC()
	require.NoError(t, st.InsertLead(context.Background(), model.Lead{
		Key:           key,
		Name:          name,
		NormName:      strings.ToLower(name),
		Phone:         "+19725550000",
		Industry:      "hvac",
		City:          "Plano",
		State:         "TX",
		Status:        model.LeadStatusNew,
		FirstSeenAt:   now,
		LastUpdatedAt: now,
	}))
}

func TestWriteTSV(t *testing.T) {
	st := newTestStore(t)
	seedQualifiedLead(t, st, "hvac:+12145550142", "Metro Air", "+12145550142")
	seedUncalledLead(t, st, "hvac:+19725550000", "Plano Plumbing")

	var buf bytes.Buffer
	n, err := WriteTSV(context.Background(), st, Options{}, &buf)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.Len(t, lines, 3, "header plus two rows")
	assert.Equal(t, "Business\tPhone\tCity\tResult\tQualified\tSales Pitch", lines[0])

	var qualified, uncalled string
	for _, l := range lines[1:] {
		if strings.HasPrefix(l, "Metro Air") {
			qualified = l
		} else {
			uncalled = l
		}
	}
	assert.Contains(t, qualified, "voicemail")
	assert.Contains(t, qualified, "YES ✓")
	assert.Contains(t, qualified, "losing $1500+ emergency jobs")
	assert.Contains(t, uncalled, "not called")
	assert.Contains(t, uncalled, "Has coverage")
}

func TestWriteTSV_QualifiedOnly(t *testing.T) {
	st := newTestStore(t)
	seedQualifiedLead(t, st, "hvac:+12145550142", "Metro Air", "+12145550142")
	seedUncalledLead(t, st, "hvac:+19725550000", "Plano Plumbing")

	var buf bytes.Buffer
	n, err := WriteTSV(context.Background(), st, Options{QualifiedOnly: true}, &buf)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.NotContains(t, buf.String(), "Plano Plumbing")
}

func TestWriteXLSX(t *testing.T) {
	st := newTestStore(t)
	seedQualifiedLead(t, st, "hvac:+12145550142", "Metro Air", "+12145550142")

	var buf bytes.Buffer
	n, err := WriteXLSX(context.Background(), st, Options{}, &buf)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	// xlsx files are zip archives.
	assert.Equal(t, "PK", buf.String()[:2])
}

func TestSummary(t *testing.T) {
	lines := Summary(map[model.LeadStatus]int{
		model.LeadStatusQualified: 3,
		model.LeadStatusNew:       10,
	})
	require.Len(t, lines, 2)
	assert.Equal(t, "new: 10", lines[0], "fixed lifecycle order")
	assert.Equal(t, "qualified: 3", lines[1])
}
