// Package overnight runs long unattended calling sessions: it plans an
// eligible lead sequence, checkpoints progress to disk after every lead,
// and stops early on a count limit, a wall-clock cutoff, or a string of
// provider failures.
package overnight

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/nightline/internal/caller"
	"github.com/sells-group/nightline/internal/model"
	"github.com/sells-group/nightline/internal/resilience"
	"github.com/sells-group/nightline/internal/store"
)

// Stop reasons reported in the RunSummary.
const (
	StopCompleted   = "completed"
	StopMaxCalls    = "max-calls"
	StopEndTime     = "end-time"
	StopBreakerOpen = "breaker-open"
	StopCanceled    = "canceled"
)

// Config controls one overnight run.
type Config struct {
	RunID          string
	CheckpointPath string

	// Filter scopes the eligible-lead query for fresh runs. Ignored when
	// resuming, the persisted sequence wins.
	Filter caller.BatchFilter

	// MaxCalls stops the run after this many processed leads (0 = no limit).
	MaxCalls int

	// EndAt stops the run once the wall clock passes it (zero = no cutoff).
	EndAt time.Time

	// BreakerThreshold is the consecutive provider-failure count that halts
	// the run. Default 3.
	BreakerThreshold int

	// CallTimeout bounds each in-flight call once the run context is
	// canceled. Default 2m.
	CallTimeout time.Duration

	// Delay spaces consecutive calls. Default 3s.
	Delay time.Duration

	// Cooldown scopes eligibility for fresh runs.
	Cooldown time.Duration
}

// RunSummary is always returned, even when the run stops early.
type RunSummary struct {
	RunID      string
	Processed  int
	Qualified  int
	Errors     int
	Remaining  int
	StopReason string
	Resumed    bool
}

// Runner executes overnight calling sessions.
type Runner struct {
	store   store.Store
	engine  *caller.Engine
	breaker *resilience.Breaker
	cfg     Config
	nowFunc func() time.Time
}

var errProviderFault = eris.New("overnight: provider-level call failure")

// New creates a Runner around an existing call engine.
func New(s store.Store, e *caller.Engine, cfg Config) *Runner {
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = 2 * time.Minute
	}
	if cfg.Delay <= 0 {
		cfg.Delay = 3 * time.Second
	}
	threshold := cfg.BreakerThreshold
	if threshold <= 0 {
		threshold = 3
	}
	return &Runner{
		store:  s,
		engine: e,
		breaker: resilience.NewBreaker(resilience.BreakerConfig{
			FailureThreshold: threshold,
			// Overnight runs do not probe for recovery; once open the run
			// ends and a later invocation resumes from the checkpoint.
			ResetTimeout: 24 * time.Hour,
			OnStateChange: func(from, to resilience.BreakerState) {
				zap.L().Warn("provider breaker state change",
					zap.String("from", from.String()),
					zap.String("to", to.String()),
				)
			},
		}),
		cfg:     cfg,
		nowFunc: time.Now,
	}
}

// Run executes the session. Cancellation of ctx is honored between leads
// only; the in-flight call finishes under its own timeout so its result is
// always recorded and checkpointed.
func (r *Runner) Run(ctx context.Context) (*RunSummary, error) {
	summary := &RunSummary{RunID: r.cfg.RunID, StopReason: StopCompleted}

	cp, err := r.plan(ctx, summary)
	if err != nil {
		return summary, err
	}
	summary.Remaining = cp.Remaining()

	zap.L().Info("overnight run starting",
		zap.String("run_id", cp.RunID),
		zap.Int("total", len(cp.LeadKeys)),
		zap.Int("remaining", cp.Remaining()),
		zap.Bool("resumed", summary.Resumed),
	)

	for !cp.Done() {
		if reason := r.shouldStop(ctx, summary); reason != "" {
			summary.StopReason = reason
			break
		}

		key := cp.LeadKeys[cp.NextIndex]
		if err := r.callOne(ctx, key, summary); err != nil {
			if eris.Is(err, resilience.ErrBreakerOpen) {
				summary.StopReason = StopBreakerOpen
				break
			}
			// Provider faults were already counted inside callOne; other
			// lead-level errors are counted here. Neither stops the night.
			if !eris.Is(err, errProviderFault) {
				summary.Errors++
				zap.L().Error("overnight lead failed", zap.String("lead", key), zap.Error(err))
			}
		}

		cp.NextIndex++
		summary.Remaining = cp.Remaining()
		if err := SaveCheckpoint(r.cfg.CheckpointPath, cp); err != nil {
			return summary, err
		}

		if !cp.Done() {
			if err := r.sleep(ctx); err != nil {
				summary.StopReason = StopCanceled
				break
			}
		}
	}

	if cp.Done() && summary.StopReason == StopCompleted {
		if err := RemoveCheckpoint(r.cfg.CheckpointPath); err != nil {
			zap.L().Warn("could not remove finished checkpoint", zap.Error(err))
		}
	}

	zap.L().Info("overnight run finished",
		zap.String("run_id", summary.RunID),
		zap.String("stop_reason", summary.StopReason),
		zap.Int("processed", summary.Processed),
		zap.Int("qualified", summary.Qualified),
		zap.Int("errors", summary.Errors),
		zap.Int("remaining", summary.Remaining),
	)
	return summary, nil
}

// plan loads the resumable checkpoint or builds and persists a fresh one.
// The fresh sequence hits disk before the first call so a crash during lead
// zero still resumes instead of re-planning a different batch.
func (r *Runner) plan(ctx context.Context, summary *RunSummary) (*model.Checkpoint, error) {
	cp, err := LoadCheckpoint(r.cfg.CheckpointPath)
	if err != nil {
		return nil, err
	}
	if cp != nil && cp.RunID == r.cfg.RunID {
		summary.Resumed = true
		r.releaseOrphans(ctx, cp)
		return cp, nil
	}
	if cp != nil {
		zap.L().Info("discarding checkpoint from different run",
			zap.String("old_run", cp.RunID),
			zap.String("new_run", r.cfg.RunID),
		)
	}

	leads, err := r.store.ListEligibleForCall(ctx, store.EligibilityFilter{
		Industry: r.cfg.Filter.Industry,
		State:    r.cfg.Filter.State,
		Only247:  r.cfg.Filter.Only247,
		Cooldown: r.cfg.Cooldown,
		Limit:    r.cfg.Filter.Max,
		Now:      r.nowFunc().UTC(),
	})
	if err != nil {
		return nil, eris.Wrap(err, "overnight: plan eligible leads")
	}

	keys := make([]string, len(leads))
	for i, l := range leads {
		keys[i] = l.Key
	}
	cp = &model.Checkpoint{
		RunID:     r.cfg.RunID,
		LeadKeys:  keys,
		NextIndex: 0,
		CreatedAt: r.nowFunc().UTC(),
	}
	if err := SaveCheckpoint(r.cfg.CheckpointPath, cp); err != nil {
		return nil, err
	}
	return cp, nil
}

// releaseOrphans returns pending checkpointed leads stranded in scheduled
// back to the queue. The checkpoint is owned by exactly one process, so a
// scheduled lead in its pending range is a leftover claim from the crashed
// previous run, not a live call.
func (r *Runner) releaseOrphans(ctx context.Context, cp *model.Checkpoint) {
	for _, key := range cp.LeadKeys[cp.NextIndex:] {
		lead, err := r.store.GetLead(ctx, key)
		if err != nil || lead.Status != model.LeadStatusScheduled {
			continue
		}
		if err := r.store.Transition(ctx, key, model.LeadStatusScheduled, model.LeadStatusNew); err != nil {
			zap.L().Warn("could not release orphaned lead", zap.String("lead", key), zap.Error(err))
			continue
		}
		zap.L().Info("released orphaned lead back to queue", zap.String("lead", key))
	}
}

// callOne runs a single lead through the breaker. The call itself is
// detached from run cancellation so stopping the runner never abandons a
// live phone call half-recorded.
func (r *Runner) callOne(ctx context.Context, key string, summary *RunSummary) error {
	callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.cfg.CallTimeout)
	defer cancel()

	return r.breaker.Execute(callCtx, func(ctx context.Context) error {
		res, err := r.engine.CallOne(ctx, key)
		if err != nil {
			if eris.Is(err, store.ErrStateConflict) || eris.Is(err, caller.ErrNotEligible) ||
				eris.Is(err, store.ErrNotFound) {
				// Contested or manually-moved lead; skip without charging
				// the breaker.
				zap.L().Debug("skipping ineligible lead", zap.String("lead", key))
				return nil
			}
			return err
		}

		summary.Processed++
		if res.Qualified {
			summary.Qualified++
		}
		if res.ProviderFault {
			summary.Errors++
			return errProviderFault
		}
		return nil
	})
}

func (r *Runner) shouldStop(ctx context.Context, summary *RunSummary) string {
	if ctx.Err() != nil {
		return StopCanceled
	}
	if r.cfg.MaxCalls > 0 && summary.Processed >= r.cfg.MaxCalls {
		return StopMaxCalls
	}
	if !r.cfg.EndAt.IsZero() && !r.nowFunc().Before(r.cfg.EndAt) {
		return StopEndTime
	}
	if r.breaker.State() == resilience.BreakerOpen {
		return StopBreakerOpen
	}
	return ""
}

func (r *Runner) sleep(ctx context.Context) error {
	timer := time.NewTimer(r.cfg.Delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
