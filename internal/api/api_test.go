package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/nightline/internal/model"
	"github.com/sells-group/nightline/internal/store"
)

func newTestServer(t *testing.T) (*httptest.Server, store.Store) {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "api_test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	require.NoError(t, st.Migrate(context.Background()))

	srv := httptest.NewServer(SetupRoutes(NewHandlers(st)))
	t.Cleanup(srv.Close)
	return srv, st
}

func seedLead(t *testing.T, st store.Store, key string, status model.LeadStatus) {
	t.Helper()
	now := time.Now().UTC()
	require.NoError(t, st.InsertLead(context.Background(), model.Lead{
		Key:                   key,
		Name:                  "Apex Heating & Air",
		NormName:              "apex heating air",
		Phone:                 "+12145550100",
		Industry:              "hvac",
		City:                  "Dallas",
		State:                 "TX",
		Zip:                   "75201",
		ClaimsTwentyFourSeven: true,
		Status:                status,
		FirstSeenAt:           now,
		LastUpdatedAt:         now,
	}))
}

func getJSON(t *testing.T, url string, out any) int {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	return resp.StatusCode
}

func TestHealthCheck(t *testing.T) {
	srv, _ := newTestServer(t)

	var body map[string]string
	code := getJSON(t, srv.URL+"/health", &body)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", body["status"])
}

func TestListLeads(t *testing.T) {
	srv, st := newTestServer(t)
	seedLead(t, st, "hvac:+12145550100", model.LeadStatusNew)

	var body struct {
		Leads []model.Lead `json:"leads"`
		Count int          `json:"count"`
	}
	code := getJSON(t, srv.URL+"/leads", &body)
	assert.Equal(t, http.StatusOK, code)
	require.Equal(t, 1, body.Count)
	assert.Equal(t, "hvac:+12145550100", body.Leads[0].Key)
}

func TestListLeads_StatusFilter(t *testing.T) {
	srv, st := newTestServer(t)
	seedLead(t, st, "hvac:+12145550100", model.LeadStatusNew)
	require.NoError(t, st.Transition(context.Background(),
		"hvac:+12145550100", model.LeadStatusNew, model.LeadStatusScheduled))

	var body struct {
		Count int `json:"count"`
	}
	code := getJSON(t, srv.URL+"/leads?status=new", &body)
	assert.Equal(t, http.StatusOK, code)
	assert.Zero(t, body.Count)

	code = getJSON(t, srv.URL+"/leads?status=scheduled", &body)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, 1, body.Count)
}

func TestListLeads_BadStatus(t *testing.T) {
	srv, _ := newTestServer(t)

	var body map[string]string
	code := getJSON(t, srv.URL+"/leads?status=sideways", &body)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.NotEmpty(t, body["error"])
}

func TestGetLead(t *testing.T) {
	srv, st := newTestServer(t)
	seedLead(t, st, "hvac:+12145550100", model.LeadStatusQualified)

	var lead model.Lead
	code := getJSON(t, srv.URL+"/leads/hvac:+12145550100", &lead)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, model.LeadStatusQualified, lead.Status)
}

func TestGetLead_NotFound(t *testing.T) {
	srv, _ := newTestServer(t)

	var body map[string]string
	code := getJSON(t, srv.URL+"/leads/nope", &body)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestListAudits(t *testing.T) {
	srv, st := newTestServer(t)
	ctx := context.Background()
	seedLead(t, st, "hvac:+12145550100", model.LeadStatusNew)
	require.NoError(t, st.Transition(ctx, "hvac:+12145550100",
		model.LeadStatusNew, model.LeadStatusScheduled))
	require.NoError(t, st.RecordCallAudit(ctx, model.CallAudit{
		ID:          "audit-1",
		LeadKey:     "hvac:+12145550100",
		AttemptedAt: time.Now().UTC(),
		TimeOfDay:   model.TimeOfDayLateNight,
		Outcome:     model.OutcomeVoicemail,
	}, model.LeadStatusScheduled, model.LeadStatusQualified))

	var body struct {
		Audits []model.CallAudit `json:"audits"`
		Count  int               `json:"count"`
	}
	code := getJSON(t, srv.URL+"/leads/hvac:+12145550100/audits", &body)
	assert.Equal(t, http.StatusOK, code)
	require.Equal(t, 1, body.Count)
	assert.Equal(t, model.OutcomeVoicemail, body.Audits[0].Outcome)
}

func TestListAudits_UnknownLead(t *testing.T) {
	srv, _ := newTestServer(t)

	var body map[string]string
	code := getJSON(t, srv.URL+"/leads/nope/audits", &body)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestGetStats(t *testing.T) {
	srv, st := newTestServer(t)
	seedLead(t, st, "hvac:+12145550100", model.LeadStatusNew)
	seedLead(t, st, "hvac:+12145550200", model.LeadStatusQualified)

	var body struct {
		ByStatus map[string]int `json:"by_status"`
		Total    int            `json:"total"`
	}
	code := getJSON(t, srv.URL+"/stats", &body)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, 2, body.Total)
	assert.Equal(t, 1, body.ByStatus["new"])
	assert.Equal(t, 1, body.ByStatus["qualified"])
}

func TestListScrapeRuns(t *testing.T) {
	srv, st := newTestServer(t)
	require.NoError(t, st.CreateScrapeRun(context.Background(), model.ScrapeRun{
		ID:        "run-1",
		Query:     "emergency hvac repair in Dallas, TX",
		Region:    "Dallas, TX",
		StartedAt: time.Now().UTC(),
		Status:    model.ScrapeRunRunning,
	}))

	var body struct {
		Runs  []model.ScrapeRun `json:"runs"`
		Count int               `json:"count"`
	}
	code := getJSON(t, srv.URL+"/scrape-runs", &body)
	assert.Equal(t, http.StatusOK, code)
	require.Equal(t, 1, body.Count)
	assert.Equal(t, "run-1", body.Runs[0].ID)
}
