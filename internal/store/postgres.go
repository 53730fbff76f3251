package store

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/nightline/internal/db"
	"github.com/sells-group/nightline/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool db.Pool
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}
	pgxCfg.MaxConns = 10
	pgxCfg.MinConns = 2
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool}, nil
}

// NewPostgresWithPool wraps an existing pool. Used by tests with pgxmock.
func NewPostgresWithPool(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const pgMigration = `
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
	rating            DOUBLE PRECISION NOT NULL DEFAULT 0,
	years_in_business TEXT NOT NULL DEFAULT '',
	hours_text        TEXT NOT NULL DEFAULT '',
	claims_24_7       BOOLEAN NOT NULL DEFAULT FALSE,
	keywords_found    TEXT NOT NULL DEFAULT '',
	sponsored         BOOLEAN NOT NULL DEFAULT FALSE,
	google_guaranteed BOOLEAN NOT NULL DEFAULT FALSE,
	source_query      TEXT NOT NULL DEFAULT '',
	source_region     TEXT NOT NULL DEFAULT '',
	status            TEXT NOT NULL DEFAULT 'new',
	first_seen_at     TIMESTAMPTZ NOT NULL,
	last_updated_at   TIMESTAMPTZ NOT NULL,
	last_called_at    TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS call_audits (
	id               TEXT PRIMARY KEY,
	lead_key         TEXT NOT NULL REFERENCES leads(key),
	attempted_at     TIMESTAMPTZ NOT NULL,
	time_of_day      TEXT NOT NULL,
	provider_call_id TEXT NOT NULL DEFAULT '',
	ended_reason     TEXT NOT NULL DEFAULT '',
	outcome          TEXT NOT NULL,
	duration_secs    INTEGER NOT NULL DEFAULT 0,
	cost             DOUBLE PRECISION,
	transcript       TEXT NOT NULL DEFAULT '',
	mock             BOOLEAN NOT NULL DEFAULT FALSE
);

CREATE TABLE IF NOT EXISTS scrape_runs (
	id            TEXT PRIMARY KEY,
	query         TEXT NOT NULL,
	region        TEXT NOT NULL,
	found         INTEGER NOT NULL DEFAULT 0,
	new_leads     INTEGER NOT NULL DEFAULT 0,
	merged        INTEGER NOT NULL DEFAULT 0,
	skipped       INTEGER NOT NULL DEFAULT 0,
	started_at    TIMESTAMPTZ NOT NULL,
	completed_at  TIMESTAMPTZ,
	status        TEXT NOT NULL DEFAULT 'running',
	error_message TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_leads_status ON leads(status);
CREATE INDEX IF NOT EXISTS idx_leads_industry_phone ON leads(industry, phone);
CREATE INDEX IF NOT EXISTS idx_leads_norm_name_zip ON leads(norm_name, zip);
CREATE INDEX IF NOT EXISTS idx_leads_first_seen ON leads(first_seen_at);
CREATE INDEX IF NOT EXISTS idx_call_audits_lead_key ON call_audits(lead_key);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, pgMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) InsertLead(ctx context.Context, lead model.Lead) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO leads (`+leadColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22, $23)`,
		lead.Key, lead.Name, lead.NormName, lead.Phone, lead.Industry, lead.City, lead.State, lead.Zip, lead.Website,
		lead.ReviewCount, lead.Rating, lead.YearsInBusiness, lead.HoursText, lead.ClaimsTwentyFourSeven, lead.KeywordsFound,
		lead.Sponsored, lead.GoogleGuaranteed, lead.SourceQuery, lead.SourceRegion, string(lead.Status),
		lead.FirstSeenAt, lead.LastUpdatedAt, lead.LastCalledAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return eris.Wrapf(ErrKeyExists, "postgres: insert lead %s", lead.Key)
		}
		return eris.Wrapf(err, "postgres: insert lead %s", lead.Key)
	}
	return nil
}

func (s *PostgresStore) MergeLead(ctx context.Context, key string, cand *model.Candidate) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE leads SET
			review_count = $1,
			rating = $2,
			years_in_business = $3,
			hours_text = $4,
			claims_24_7 = $5,
			keywords_found = $6,
			website = CASE WHEN $7 != '' THEN $7 ELSE website END,
			phone = CASE WHEN phone = '' THEN $8 ELSE phone END,
			last_updated_at = $9
		WHERE key = $10`,
		cand.ReviewCount, cand.Rating, cand.YearsInBusiness, cand.HoursText,
		cand.Claims247, cand.KeywordsFound, cand.Website, cand.Phone,
		time.Now().UTC(), key,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: merge lead %s", key)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "lead %s", key)
	}
	return nil
}

func (s *PostgresStore) GetLead(ctx context.Context, key string) (*model.Lead, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+leadColumns+` FROM leads WHERE key = $1`, key)
	return scanPgLead(row)
}

func (s *PostgresStore) FindByPhone(ctx context.Context, industry, phone string) (*model.Lead, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+leadColumns+` FROM leads WHERE industry = $1 AND phone = $2 AND phone != ''`,
		industry, phone)
	return scanPgLead(row)
}

func (s *PostgresStore) FindByNameZip(ctx context.Context, normName, zip string) (*model.Lead, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+leadColumns+` FROM leads WHERE norm_name = $1 AND zip = $2`,
		normName, zip)
	return scanPgLead(row)
}

func (s *PostgresStore) ListLeads(ctx context.Context, filter LeadFilter) ([]model.Lead, error) {
	query := `SELECT ` + leadColumns + ` FROM leads WHERE 1=1`
	var args []any
	arg := func(v any) string {
		args = append(args, v)
		return "$" + strconv.Itoa(len(args))
	}

	if filter.Status != "" {
		query += ` AND status = ` + arg(string(filter.Status))
	}
	if filter.Industry != "" {
		query += ` AND industry = ` + arg(filter.Industry)
	}
	if filter.State != "" {
		query += ` AND state = ` + arg(filter.State)
	}
	if filter.City != "" {
		query += ` AND city = ` + arg(filter.City)
	}
	if filter.Only247 {
		query += ` AND claims_24_7 = TRUE`
	}
	query += ` ORDER BY first_seen_at ASC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 500
	}
	query += ` LIMIT ` + arg(limit)
	if filter.Offset > 0 {
		query += ` OFFSET ` + arg(filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list leads")
	}
	defer rows.Close()
	return collectPgLeads(rows)
}

func (s *PostgresStore) ListEligibleForCall(ctx context.Context, filter EligibilityFilter) ([]model.Lead, error) {
	now := filter.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}
	cutoff := now.Add(-filter.Cooldown)

	query := `SELECT ` + leadColumns + ` FROM leads
		WHERE status IN ($1, $2)
		AND (last_called_at IS NULL OR last_called_at < $3)
		AND phone != ''`
	args := []any{string(model.LeadStatusNew), string(model.LeadStatusDisqualified), cutoff}
	arg := func(v any) string {
		args = append(args, v)
		return "$" + strconv.Itoa(len(args))
	}

	if filter.Industry != "" {
		query += ` AND industry = ` + arg(filter.Industry)
	}
	if filter.State != "" {
		query += ` AND state = ` + arg(filter.State)
	}
	if filter.Only247 {
		query += ` AND claims_24_7 = TRUE`
	}
	query += ` ORDER BY first_seen_at ASC`
	if filter.Limit > 0 {
		query += ` LIMIT ` + arg(filter.Limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list eligible")
	}
	defer rows.Close()
	return collectPgLeads(rows)
}

func (s *PostgresStore) CountByStatus(ctx context.Context) (map[model.LeadStatus]int, error) {
	rows, err := s.pool.Query(ctx, `SELECT status, COUNT(*) FROM leads GROUP BY status`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: count by status")
	}
	defer rows.Close()

	counts := make(map[model.LeadStatus]int)
	for rows.Next() {
		var status string
		var n int64
		if err := rows.Scan(&status, &n); err != nil {
			return nil, eris.Wrap(err, "postgres: scan count")
		}
		counts[model.LeadStatus(status)] = int(n)
	}
	return counts, eris.Wrap(rows.Err(), "postgres: count iterate")
}

func (s *PostgresStore) Transition(ctx context.Context, key string, from, to model.LeadStatus) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE leads SET status = $1, last_updated_at = $2 WHERE key = $3 AND status = $4`,
		string(to), time.Now().UTC(), key, string(from),
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: transition lead %s", key)
	}
	if tag.RowsAffected() == 0 {
		return s.transitionConflict(ctx, key, from)
	}
	return nil
}

func (s *PostgresStore) transitionConflict(ctx context.Context, key string, from model.LeadStatus) error {
	var current string
	err := s.pool.QueryRow(ctx, `SELECT status FROM leads WHERE key = $1`, key).Scan(&current)
	if errors.Is(err, pgx.ErrNoRows) {
		return eris.Wrapf(ErrNotFound, "lead %s", key)
	}
	if err != nil {
		return eris.Wrapf(err, "postgres: read status of %s", key)
	}
	return eris.Wrapf(ErrStateConflict, "lead %s: expected %s, stored %s", key, from, current)
}

func (s *PostgresStore) RecordCallAudit(ctx context.Context, audit model.CallAudit, from, to model.LeadStatus) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin audit tx")
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx,
		`UPDATE leads SET status = $1, last_called_at = $2, last_updated_at = $3 WHERE key = $4 AND status = $5`,
		string(to), audit.AttemptedAt, time.Now().UTC(), audit.LeadKey, string(from),
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: audit transition %s", audit.LeadKey)
	}
	if tag.RowsAffected() == 0 {
		return s.transitionConflict(ctx, audit.LeadKey, from)
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO call_audits (id, lead_key, attempted_at, time_of_day, provider_call_id,
			ended_reason, outcome, duration_secs, cost, transcript, mock)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		audit.ID, audit.LeadKey, audit.AttemptedAt, string(audit.TimeOfDay), audit.ProviderCallID,
		audit.EndedReason, string(audit.Outcome), audit.DurationSecs, audit.Cost, audit.Transcript, audit.Mock,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: insert audit for %s", audit.LeadKey)
	}

	return eris.Wrap(tx.Commit(ctx), "postgres: commit audit tx")
}

func (s *PostgresStore) ListAudits(ctx context.Context, key string) ([]model.CallAudit, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, lead_key, attempted_at, time_of_day, provider_call_id, ended_reason,
			outcome, duration_secs, cost, transcript, mock
		FROM call_audits WHERE lead_key = $1 ORDER BY attempted_at ASC`, key)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: list audits for %s", key)
	}
	defer rows.Close()

	var audits []model.CallAudit
	for rows.Next() {
		var a model.CallAudit
		var tod, outcome string
		var cost sql.NullFloat64
		if err := rows.Scan(&a.ID, &a.LeadKey, &a.AttemptedAt, &tod, &a.ProviderCallID,
			&a.EndedReason, &outcome, &a.DurationSecs, &cost, &a.Transcript, &a.Mock); err != nil {
			return nil, eris.Wrap(err, "postgres: scan audit")
		}
		a.TimeOfDay = model.TimeOfDay(tod)
		a.Outcome = model.CallOutcome(outcome)
		if cost.Valid {
			a.Cost = &cost.Float64
		}
		audits = append(audits, a)
	}
	return audits, eris.Wrap(rows.Err(), "postgres: audits iterate")
}

func (s *PostgresStore) CreateScrapeRun(ctx context.Context, run model.ScrapeRun) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO scrape_runs (id, query, region, found, new_leads, merged, skipped, started_at, status, error_message)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		run.ID, run.Query, run.Region, run.Found, run.NewLeads, run.Merged, run.Skipped,
		run.StartedAt, string(run.Status), run.ErrMessage,
	)
	return eris.Wrapf(err, "postgres: insert scrape run %s", run.ID)
}

func (s *PostgresStore) CompleteScrapeRun(ctx context.Context, run model.ScrapeRun) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE scrape_runs SET found = $1, new_leads = $2, merged = $3, skipped = $4,
			completed_at = $5, status = $6, error_message = $7 WHERE id = $8`,
		run.Found, run.NewLeads, run.Merged, run.Skipped,
		run.CompletedAt, string(run.Status), run.ErrMessage, run.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: complete scrape run %s", run.ID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "scrape run %s", run.ID)
	}
	return nil
}

func (s *PostgresStore) ListScrapeRuns(ctx context.Context, limit int) ([]model.ScrapeRun, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, query, region, found, new_leads, merged, skipped, started_at, completed_at, status, error_message
		FROM scrape_runs ORDER BY started_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list scrape runs")
	}
	defer rows.Close()

	var runs []model.ScrapeRun
	for rows.Next() {
		var r model.ScrapeRun
		var status string
		var completed *time.Time
		if err := rows.Scan(&r.ID, &r.Query, &r.Region, &r.Found, &r.NewLeads, &r.Merged, &r.Skipped,
			&r.StartedAt, &completed, &status, &r.ErrMessage); err != nil {
			return nil, eris.Wrap(err, "postgres: scan scrape run")
		}
		r.Status = model.ScrapeRunStatus(status)
		r.CompletedAt = completed
		runs = append(runs, r)
	}
	return runs, eris.Wrap(rows.Err(), "postgres: scrape runs iterate")
}

func scanPgLead(row pgx.Row) (*model.Lead, error) {
	var l model.Lead
	var status string
	var lastCalled *time.Time
	err := row.Scan(&l.Key, &l.Name, &l.NormName, &l.Phone, &l.Industry, &l.City, &l.State, &l.Zip, &l.Website,
		&l.ReviewCount, &l.Rating, &l.YearsInBusiness, &l.HoursText, &l.ClaimsTwentyFourSeven, &l.KeywordsFound,
		&l.Sponsored, &l.GoogleGuaranteed, &l.SourceQuery, &l.SourceRegion, &status,
		&l.FirstSeenAt, &l.LastUpdatedAt, &lastCalled)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: scan lead")
	}
	l.Status = model.LeadStatus(status)
	l.LastCalledAt = lastCalled
	return &l, nil
}

func collectPgLeads(rows pgx.Rows) ([]model.Lead, error) {
	var leads []model.Lead
	for rows.Next() {
		l, err := scanPgLead(rows)
		if err != nil {
			return nil, err
		}
		leads = append(leads, *l)
	}
	return leads, eris.Wrap(rows.Err(), "postgres: leads iterate")
}
