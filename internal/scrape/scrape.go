// Package scrape walks (industry, geography) targets, pulls raw listings
// from an external Source, and feeds them through normalization and
// deduplication into the lead store.
package scrape

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/nightline/internal/config"
	"github.com/sells-group/nightline/internal/dedup"
	"github.com/sells-group/nightline/internal/model"
	"github.com/sells-group/nightline/internal/normalize"
	"github.com/sells-group/nightline/internal/resilience"
	"github.com/sells-group/nightline/internal/store"
)

// External scraper failure modes. Both are retried with backoff, then the
// target is skipped and logged.
var (
	ErrScrapeTimeout = eris.New("scrape: source timed out")
	ErrScrapeBlocked = eris.New("scrape: source blocked the request")
)

// Source produces raw listings for a search query within a region.
type Source interface {
	Fetch(ctx context.Context, query, region string, limit int) ([]model.RawListing, error)
}

// Target is one (industry, geography) unit of scraping work.
type Target struct {
	Industry string
	City     string
	State    string
	Zip      string
}

// Summary aggregates an orchestrator run across all targets.
type Summary struct {
	Targets        int
	SkippedQueries int
	Found          int
	NewLeads       int
	Merged         int
	Skipped        int
}

// Orchestrator drives scraping end to end.
type Orchestrator struct {
	store      store.Store
	source     Source
	resolver   *dedup.Resolver
	industries config.IndustryRegistry

	retry         resilience.RetryConfig
	limitPerQuery int
	concurrency   int
	queryPause    time.Duration
	nowFunc       func() time.Time
}

// Options tune the orchestrator.
type Options struct {
	MaxAttempts   int           // retry cap per query, default 3
	Backoff       time.Duration // initial retry backoff, default 1s
	LimitPerQuery int           // results requested per query, default 50
	Concurrency   int           // targets in flight, default 1
	QueryPause    time.Duration // pause between queries within a target
}

// New creates an Orchestrator.
func New(s store.Store, src Source, reg config.IndustryRegistry, opts Options) *Orchestrator {
	limit := opts.LimitPerQuery
	if limit <= 0 {
		limit = 50
	}
	conc := opts.Concurrency
	if conc <= 0 {
		conc = 1
	}
	retry := resilience.DefaultRetryConfig().WithAttempts(opts.MaxAttempts)
	if opts.Backoff > 0 {
		retry.InitialBackoff = opts.Backoff
	}
	retry.ShouldRetry = func(err error) bool {
		return eris.Is(err, ErrScrapeTimeout) ||
			eris.Is(err, ErrScrapeBlocked) ||
			resilience.IsTransient(err)
	}

	return &Orchestrator{
		store:         s,
		source:        src,
		resolver:      dedup.NewResolver(s),
		industries:    reg,
		retry:         retry,
		limitPerQuery: limit,
		concurrency:   conc,
		queryPause:    opts.QueryPause,
		nowFunc:       time.Now,
	}
}

// Run scrapes every target. Targets run concurrently up to the configured
// limit; listings within a target are processed in order. Failed queries
// skip, failed targets record a failed ScrapeRun; neither aborts the run.
func (o *Orchestrator) Run(ctx context.Context, targets []Target) (*Summary, error) {
	summary := &Summary{Targets: len(targets)}
	var mu sync.Mutex

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(o.concurrency)

	for _, tgt := range targets {
		tgt := tgt
		g.Go(func() error {
			ts, err := o.scrapeTarget(ctx, tgt)
			if err != nil {
				// Only context cancellation propagates; per-target faults
				// are already recorded on their ScrapeRun rows.
				if ctx.Err() != nil {
					return err
				}
				zap.L().Error("target failed",
					zap.String("industry", tgt.Industry),
					zap.String("city", tgt.City),
					zap.Error(err),
				)
				return nil
			}
			mu.Lock()
			summary.SkippedQueries += ts.SkippedQueries
			summary.Found += ts.Found
			summary.NewLeads += ts.NewLeads
			summary.Merged += ts.Merged
			summary.Skipped += ts.Skipped
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return summary, eris.Wrap(err, "scrape: run interrupted")
	}
	return summary, nil
}

func (o *Orchestrator) scrapeTarget(ctx context.Context, tgt Target) (*Summary, error) {
	ind, err := o.industries.Get(tgt.Industry)
	if err != nil {
		return nil, err
	}

	region := tgt.City + ", " + tgt.State
	ts := &Summary{}

	for i, q := range ind.Queries {
		if i > 0 && o.queryPause > 0 {
			select {
			case <-ctx.Done():
				return ts, ctx.Err()
			case <-time.After(o.queryPause):
			}
		}
		query := fmt.Sprintf("%s in %s", q, region)

		run := model.ScrapeRun{
			ID:        uuid.NewString(),
			Query:     query,
			Region:    region,
			StartedAt: o.nowFunc().UTC(),
			Status:    model.ScrapeRunRunning,
		}
		if err := o.store.CreateScrapeRun(ctx, run); err != nil {
			return nil, eris.Wrap(err, "scrape: create run")
		}

		listings, err := resilience.DoVal(ctx, o.retry, func(ctx context.Context) ([]model.RawListing, error) {
			return o.source.Fetch(ctx, query, region, o.limitPerQuery)
		})
		if err != nil {
			ts.SkippedQueries++
			zap.L().Warn("query skipped after retries",
				zap.String("query", query),
				zap.Error(err),
			)
			o.finishRun(ctx, run, model.ScrapeRunFailed, err)
			if ctx.Err() != nil {
				return ts, ctx.Err()
			}
			continue
		}

		nt := normalize.Target{
			Industry: tgt.Industry,
			City:     tgt.City,
			State:    tgt.State,
			Zip:      tgt.Zip,
			Query:    query,
			Region:   region,
		}
		run.Found = len(listings)
		ts.Found += len(listings)

		for _, raw := range listings {
			cand, err := normalize.Listing(raw, ind, nt)
			if err != nil {
				run.Skipped++
				ts.Skipped++
				zap.L().Debug("listing skipped", zap.Error(err))
				continue
			}

			dec, err := o.resolver.Apply(ctx, cand)
			if err != nil {
				run.Skipped++
				ts.Skipped++
				zap.L().Warn("listing not stored",
					zap.String("key", cand.Key),
					zap.Error(err),
				)
				continue
			}
			switch dec.Action {
			case dedup.ActionInsert:
				run.NewLeads++
				ts.NewLeads++
			case dedup.ActionMerge:
				run.Merged++
				ts.Merged++
			}
		}

		o.finishRun(ctx, run, model.ScrapeRunCompleted, nil)
		zap.L().Info("query scraped",
			zap.String("query", query),
			zap.Int("found", run.Found),
			zap.Int("new", run.NewLeads),
			zap.Int("merged", run.Merged),
			zap.Int("skipped", run.Skipped),
		)
	}

	return ts, nil
}

func (o *Orchestrator) finishRun(ctx context.Context, run model.ScrapeRun, status model.ScrapeRunStatus, cause error) {
	now := o.nowFunc().UTC()
	run.CompletedAt = &now
	run.Status = status
	if cause != nil {
		run.ErrMessage = cause.Error()
	}
	if err := o.store.CompleteScrapeRun(ctx, run); err != nil {
		zap.L().Warn("could not finalize scrape run",
			zap.String("run_id", run.ID),
			zap.Error(err),
		)
	}
}
