package store

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/nightline/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS leads (
	key               TEXT PRIMARY KEY,
	name              TEXT NOT NULL,
	norm_name         TEXT NOT NULL,
	phone             TEXT NOT NULL DEFAULT '',
	industry          TEXT NOT NULL,
	city              TEXT NOT NULL DEFAULT '',
	state             TEXT NOT NULL DEFAULT '',
	zip               TEXT NOT NULL DEFAULT '',
	website           TEXT NOT NULL DEFAULT '',
	review_count      INTEGER NOT NULL DEFAULT 0,
	rating            REAL NOT NULL DEFAULT 0,
	years_in_business TEXT NOT NULL DEFAULT '',
	hours_text        TEXT NOT NULL DEFAULT '',
	claims_24_7       INTEGER NOT NULL DEFAULT 0,
	keywords_found    TEXT NOT NULL DEFAULT '',
	sponsored         INTEGER NOT NULL DEFAULT 0,
	google_guaranteed INTEGER NOT NULL DEFAULT 0,
	source_query      TEXT NOT NULL DEFAULT '',
	source_region     TEXT NOT NULL DEFAULT '',
	status            TEXT NOT NULL DEFAULT 'new',
	first_seen_at     DATETIME NOT NULL,
	last_updated_at   DATETIME NOT NULL,
	last_called_at    DATETIME
);

CREATE TABLE IF NOT EXISTS call_audits (
	id               TEXT PRIMARY KEY,
	lead_key         TEXT NOT NULL REFERENCES leads(key),
	attempted_at     DATETIME NOT NULL,
	time_of_day      TEXT NOT NULL,
	provider_call_id TEXT NOT NULL DEFAULT '',
	ended_reason     TEXT NOT NULL DEFAULT '',
	outcome          TEXT NOT NULL,
	duration_secs    INTEGER NOT NULL DEFAULT 0,
	cost             REAL,
	transcript       TEXT NOT NULL DEFAULT '',
	mock             INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS scrape_runs (
	id            TEXT PRIMARY KEY,
	query         TEXT NOT NULL,
	region        TEXT NOT NULL,
	found         INTEGER NOT NULL DEFAULT 0,
	new_leads     INTEGER NOT NULL DEFAULT 0,
	merged        INTEGER NOT NULL DEFAULT 0,
	skipped       INTEGER NOT NULL DEFAULT 0,
	started_at    DATETIME NOT NULL,
	completed_at  DATETIME,
	status        TEXT NOT NULL DEFAULT 'running',
	error_message TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_leads_status ON leads(status);
CREATE INDEX IF NOT EXISTS idx_leads_industry_phone ON leads(industry, phone);
CREATE INDEX IF NOT EXISTS idx_leads_norm_name_zip ON leads(norm_name, zip);
CREATE INDEX IF NOT EXISTS idx_leads_first_seen ON leads(first_seen_at);
CREATE INDEX IF NOT EXISTS idx_call_audits_lead_key ON call_audits(lead_key);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

const leadColumns = `key, name, norm_name, phone, industry, city, state, zip, website,
	review_count, rating, years_in_business, hours_text, claims_24_7, keywords_found,
	sponsored, google_guaranteed, source_query, source_region, status,
	first_seen_at, last_updated_at, last_called_at`

func (s *SQLiteStore) InsertLead(ctx context.Context, lead model.Lead) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO leads (`+leadColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		lead.Key, lead.Name, lead.NormName, lead.Phone, lead.Industry, lead.City, lead.State, lead.Zip, lead.Website,
		lead.ReviewCount, lead.Rating, lead.YearsInBusiness, lead.HoursText, lead.ClaimsTwentyFourSeven, lead.KeywordsFound,
		lead.Sponsored, lead.GoogleGuaranteed, lead.SourceQuery, lead.SourceRegion, string(lead.Status),
		lead.FirstSeenAt, lead.LastUpdatedAt, lead.LastCalledAt,
	)
	if err != nil {
		if isSQLiteUniqueErr(err) {
			return eris.Wrapf(ErrKeyExists, "sqlite: insert lead %s", lead.Key)
		}
		return eris.Wrapf(err, "sqlite: insert lead %s", lead.Key)
	}
	return nil
}

// MergeLead refreshes the mutable listing fields of an existing lead. It
// never touches status, first_seen_at, or the identity key. An empty stored
// phone is enriched when the candidate carries one.
func (s *SQLiteStore) MergeLead(ctx context.Context, key string, cand *model.Candidate) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE leads SET
			review_count = ?,
			rating = ?,
			years_in_business = ?,
			hours_text = ?,
			claims_24_7 = ?,
			keywords_found = ?,
			website = CASE WHEN ? != '' THEN ? ELSE website END,
			phone = CASE WHEN phone = '' THEN ? ELSE phone END,
			last_updated_at = ?
		WHERE key = ?`,
		cand.ReviewCount, cand.Rating, cand.YearsInBusiness, cand.HoursText,
		cand.Claims247, cand.KeywordsFound,
		cand.Website, cand.Website, cand.Phone,
		time.Now().UTC(), key,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: merge lead %s", key)
	}
	return checkRowsAffected(res, "lead", key)
}

func (s *SQLiteStore) GetLead(ctx context.Context, key string) (*model.Lead, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+leadColumns+` FROM leads WHERE key = ?`, key)
	return scanLead(row)
}

func (s *SQLiteStore) FindByPhone(ctx context.Context, industry, phone string) (*model.Lead, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+leadColumns+` FROM leads WHERE industry = ? AND phone = ? AND phone != ''`,
		industry, phone)
	return scanLead(row)
}

func (s *SQLiteStore) FindByNameZip(ctx context.Context, normName, zip string) (*model.Lead, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+leadColumns+` FROM leads WHERE norm_name = ? AND zip = ?`,
		normName, zip)
	return scanLead(row)
}

func (s *SQLiteStore) ListLeads(ctx context.Context, filter LeadFilter) ([]model.Lead, error) {
	query := `SELECT ` + leadColumns + ` FROM leads WHERE 1=1`
	var args []any

	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	if filter.Industry != "" {
		query += ` AND industry = ?`
		args = append(args, filter.Industry)
	}
	if filter.State != "" {
		query += ` AND state = ?`
		args = append(args, filter.State)
	}
	if filter.City != "" {
		query += ` AND city = ?`
		args = append(args, filter.City)
	}
	if filter.Only247 {
		query += ` AND claims_24_7 = 1`
	}
	query += ` ORDER BY first_seen_at ASC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 500
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list leads")
	}
	defer rows.Close()
	return collectLeads(rows)
}

func (s *SQLiteStore) ListEligibleForCall(ctx context.Context, filter EligibilityFilter) ([]model.Lead, error) {
	now := filter.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}
	cutoff := now.Add(-filter.Cooldown)

	query := `SELECT ` + leadColumns + ` FROM leads
		WHERE status IN (?, ?)
		AND (last_called_at IS NULL OR last_called_at < ?)
		AND phone != ''`
	args := []any{string(model.LeadStatusNew), string(model.LeadStatusDisqualified), cutoff}

	if filter.Industry != "" {
		query += ` AND industry = ?`
		args = append(args, filter.Industry)
	}
	if filter.State != "" {
		query += ` AND state = ?`
		args = append(args, filter.State)
	}
	if filter.Only247 {
		query += ` AND claims_24_7 = 1`
	}
	query += ` ORDER BY first_seen_at ASC`

	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list eligible")
	}
	defer rows.Close()
	return collectLeads(rows)
}

func (s *SQLiteStore) CountByStatus(ctx context.Context) (map[model.LeadStatus]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM leads GROUP BY status`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: count by status")
	}
	defer rows.Close()

	counts := make(map[model.LeadStatus]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan count")
		}
		counts[model.LeadStatus(status)] = n
	}
	return counts, eris.Wrap(rows.Err(), "sqlite: count iterate")
}

// Transition is compare-and-swap on the lead's current status. When the
// stored status does not match from, nothing changes and ErrStateConflict
// is returned.
func (s *SQLiteStore) Transition(ctx context.Context, key string, from, to model.LeadStatus) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE leads SET status = ?, last_updated_at = ? WHERE key = ? AND status = ?`,
		string(to), time.Now().UTC(), key, string(from),
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: transition lead %s", key)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: transition rows affected")
	}
	if n == 0 {
		return s.transitionConflict(ctx, key, from)
	}
	return nil
}

func (s *SQLiteStore) transitionConflict(ctx context.Context, key string, from model.LeadStatus) error {
	var current string
	err := s.db.QueryRowContext(ctx, `SELECT status FROM leads WHERE key = ?`, key).Scan(&current)
	if err == sql.ErrNoRows {
		return eris.Wrapf(ErrNotFound, "lead %s", key)
	}
	if err != nil {
		return eris.Wrapf(err, "sqlite: read status of %s", key)
	}
	return eris.Wrapf(ErrStateConflict, "lead %s: expected %s, stored %s", key, from, current)
}

// RecordCallAudit inserts the audit row and applies from→to in a single
// transaction. On a status conflict the audit is rolled back with it.
func (s *SQLiteStore) RecordCallAudit(ctx context.Context, audit model.CallAudit, from, to model.LeadStatus) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin audit tx")
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`UPDATE leads SET status = ?, last_called_at = ?, last_updated_at = ? WHERE key = ? AND status = ?`,
		string(to), audit.AttemptedAt, time.Now().UTC(), audit.LeadKey, string(from),
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: audit transition %s", audit.LeadKey)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: audit rows affected")
	}
	if n == 0 {
		return s.transitionConflict(ctx, audit.LeadKey, from)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO call_audits (id, lead_key, attempted_at, time_of_day, provider_call_id,
			ended_reason, outcome, duration_secs, cost, transcript, mock)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		audit.ID, audit.LeadKey, audit.AttemptedAt, string(audit.TimeOfDay), audit.ProviderCallID,
		audit.EndedReason, string(audit.Outcome), audit.DurationSecs, audit.Cost, audit.Transcript, audit.Mock,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: insert audit for %s", audit.LeadKey)
	}

	return eris.Wrap(tx.Commit(), "sqlite: commit audit tx")
}

func (s *SQLiteStore) ListAudits(ctx context.Context, key string) ([]model.CallAudit, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, lead_key, attempted_at, time_of_day, provider_call_id, ended_reason,
			outcome, duration_secs, cost, transcript, mock
		FROM call_audits WHERE lead_key = ? ORDER BY attempted_at ASC`, key)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: list audits for %s", key)
	}
	defer rows.Close()

	var audits []model.CallAudit
	for rows.Next() {
		var a model.CallAudit
		var tod, outcome string
		var cost sql.NullFloat64
		if err := rows.Scan(&a.ID, &a.LeadKey, &a.AttemptedAt, &tod, &a.ProviderCallID,
			&a.EndedReason, &outcome, &a.DurationSecs, &cost, &a.Transcript, &a.Mock); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan audit")
		}
		a.TimeOfDay = model.TimeOfDay(tod)
		a.Outcome = model.CallOutcome(outcome)
		if cost.Valid {
			a.Cost = &cost.Float64
		}
		audits = append(audits, a)
	}
	return audits, eris.Wrap(rows.Err(), "sqlite: audits iterate")
}

func (s *SQLiteStore) CreateScrapeRun(ctx context.Context, run model.ScrapeRun) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO scrape_runs (id, query, region, found, new_leads, merged, skipped, started_at, status, error_message)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Query, run.Region, run.Found, run.NewLeads, run.Merged, run.Skipped,
		run.StartedAt, string(run.Status), run.ErrMessage,
	)
	return eris.Wrapf(err, "sqlite: insert scrape run %s", run.ID)
}

func (s *SQLiteStore) CompleteScrapeRun(ctx context.Context, run model.ScrapeRun) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE scrape_runs SET found = ?, new_leads = ?, merged = ?, skipped = ?,
			completed_at = ?, status = ?, error_message = ? WHERE id = ?`,
		run.Found, run.NewLeads, run.Merged, run.Skipped,
		run.CompletedAt, string(run.Status), run.ErrMessage, run.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: complete scrape run %s", run.ID)
	}
	return checkRowsAffected(res, "scrape run", run.ID)
}

func (s *SQLiteStore) ListScrapeRuns(ctx context.Context, limit int) ([]model.ScrapeRun, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, query, region, found, new_leads, merged, skipped, started_at, completed_at, status, error_message
		FROM scrape_runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list scrape runs")
	}
	defer rows.Close()

	var runs []model.ScrapeRun
	for rows.Next() {
		var r model.ScrapeRun
		var status string
		var completed sql.NullTime
		if err := rows.Scan(&r.ID, &r.Query, &r.Region, &r.Found, &r.NewLeads, &r.Merged, &r.Skipped,
			&r.StartedAt, &completed, &status, &r.ErrMessage); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan scrape run")
		}
		r.Status = model.ScrapeRunStatus(status)
		if completed.Valid {
			r.CompletedAt = &completed.Time
		}
		runs = append(runs, r)
	}
	return runs, eris.Wrap(rows.Err(), "sqlite: scrape runs iterate")
}

// rowScanner covers *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanLead(row rowScanner) (*model.Lead, error) {
	var l model.Lead
	var status string
	var lastCalled sql.NullTime
	err := row.Scan(&l.Key, &l.Name, &l.NormName, &l.Phone, &l.Industry, &l.City, &l.State, &l.Zip, &l.Website,
		&l.ReviewCount, &l.Rating, &l.YearsInBusiness, &l.HoursText, &l.ClaimsTwentyFourSeven, &l.KeywordsFound,
		&l.Sponsored, &l.GoogleGuaranteed, &l.SourceQuery, &l.SourceRegion, &status,
		&l.FirstSeenAt, &l.LastUpdatedAt, &lastCalled)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrap(err, "store: scan lead")
	}
	l.Status = model.LeadStatus(status)
	if lastCalled.Valid {
		l.LastCalledAt = &lastCalled.Time
	}
	return &l, nil
}

func collectLeads(rows *sql.Rows) ([]model.Lead, error) {
	var leads []model.Lead
	for rows.Next() {
		l, err := scanLead(rows)
		if err != nil {
			return nil, err
		}
		leads = append(leads, *l)
	}
	return leads, eris.Wrap(rows.Err(), "store: leads iterate")
}

func checkRowsAffected(res sql.Result, kind, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "store: rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrNotFound, "%s %s", kind, id)
	}
	return nil
}

func isSQLiteUniqueErr(err error) bool {
	return err != nil && strings.Contains(err.Error(), "constraint failed")
}
