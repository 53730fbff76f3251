// Package caller drives the audit-call state machine: it claims eligible
// leads, places calls through a Dialer, classifies the result, and records
// the audit row and lead transition atomically.
package caller

import (
	"context"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/nightline/internal/classify"
	"github.com/sells-group/nightline/internal/model"
	"github.com/sells-group/nightline/internal/resilience"
	"github.com/sells-group/nightline/internal/store"
	"github.com/sells-group/nightline/pkg/vapi"
)

// ErrNotEligible is returned when a lead is not in a callable state.
var ErrNotEligible = eris.New("caller: lead is not eligible for a call")

// staleClaimAge is how long a lead may sit in scheduled before the claiming
// process is assumed dead and the claim can be taken over. Longer than any
// legitimate dial plus its polling deadline.
const staleClaimAge = 10 * time.Minute

// Result describes one fully-processed lead.
type Result struct {
	LeadKey   string
	Outcome   model.CallOutcome
	Status    model.LeadStatus
	Qualified bool
	// ProviderFault is set when the dial failed at the provider level
	// (timeout, 5xx, network). The audit row still exists with outcome
	// provider_error. Recoverable faults leave the lead in called for a
	// later retry; a rejection of the call itself moves it to failed.
	ProviderFault bool
}

// BatchFilter selects which leads a batch run calls.
type BatchFilter struct {
	Industry string
	State    string
	Only247  bool
	Max      int
}

// BatchSummary aggregates a batch run.
type BatchSummary struct {
	Processed int
	Qualified int
	Errors    int
	ByOutcome map[model.CallOutcome]int
}

// Engine owns the call flow for single leads and sequential batches.
type Engine struct {
	store      store.Store
	dialer     Dialer
	classifier *classify.Classifier
	limiter    *rate.Limiter
	cooldown   time.Duration
	nowFunc    func() time.Time
}

// New creates an Engine. delay spaces consecutive calls in a batch;
// cooldown keeps recently-called leads out of eligibility.
func New(s store.Store, d Dialer, c *classify.Classifier, delay, cooldown time.Duration) *Engine {
	if delay <= 0 {
		delay = 3 * time.Second
	}
	return &Engine{
		store:      s,
		dialer:     d,
		classifier: c,
		limiter:    rate.NewLimiter(rate.Every(delay), 1),
		cooldown:   cooldown,
		nowFunc:    time.Now,
	}
}

// CallOne runs the full flow for a single lead: claim, dial, classify,
// record. The claim is a compare-and-swap on the lead's current status, so
// two concurrent runs cannot both call the same lead.
func (e *Engine) CallOne(ctx context.Context, key string) (*Result, error) {
	lead, err := e.store.GetLead(ctx, key)
	if err != nil {
		return nil, eris.Wrap(err, "caller: load lead")
	}

	switch lead.Status {
	case model.LeadStatusNew, model.LeadStatusDisqualified:
		if err := e.store.Transition(ctx, key, lead.Status, model.LeadStatusScheduled); err != nil {
			return nil, eris.Wrap(err, "caller: claim lead")
		}
	case model.LeadStatusScheduled:
		// An old claim means the claiming process died between its claim
		// and the audit record. A younger one may still be on the phone.
		if e.nowFunc().UTC().Sub(lead.LastUpdatedAt) < staleClaimAge {
			return nil, eris.Wrapf(ErrNotEligible, "status %s", lead.Status)
		}
		zap.L().Warn("taking over stale scheduled claim", zap.String("lead", lead.Key))
	default:
		return nil, eris.Wrapf(ErrNotEligible, "status %s", lead.Status)
	}

	return e.process(ctx, lead)
}

// process dials an already-claimed (scheduled) lead and records the result.
func (e *Engine) process(ctx context.Context, lead *model.Lead) (*Result, error) {
	attemptedAt := e.nowFunc().UTC()

	dial, dialErr := e.dialer.Dial(ctx, lead)

	audit := model.CallAudit{
		ID:          uuid.NewString(),
		LeadKey:     lead.Key,
		AttemptedAt: attemptedAt,
		TimeOfDay:   model.BucketTimeOfDay(attemptedAt),
	}

	var res Result
	res.LeadKey = lead.Key

	if dialErr != nil {
		audit.Outcome = model.OutcomeProviderError
		audit.EndedReason = eris.Cause(dialErr).Error()
		res.Outcome = model.OutcomeProviderError
		res.ProviderFault = true
		zap.L().Warn("audit call failed at provider",
			zap.String("lead", lead.Key),
			zap.Error(dialErr),
		)
	} else {
		cls := e.classifier.Classify(dial.EndedReason, dial.Transcript, dial.DurationSecs)
		audit.ProviderCallID = dial.ProviderCallID
		audit.EndedReason = dial.EndedReason
		audit.Outcome = cls.Outcome
		audit.DurationSecs = dial.DurationSecs
		audit.Transcript = truncate(dial.Transcript, model.TranscriptLimit)
		audit.Mock = dial.Mock
		if dial.Cost > 0 {
			cost := dial.Cost
			audit.Cost = &cost
		}
		res.Outcome = cls.Outcome
	}

	res.Status = classify.NextStatus(res.Outcome, lead.ClaimsTwentyFourSeven)
	if res.ProviderFault && !recoverable(dialErr) {
		res.Status = model.LeadStatusFailed
	}
	res.Qualified = res.Status == model.LeadStatusQualified

	if err := e.store.RecordCallAudit(ctx, audit, model.LeadStatusScheduled, res.Status); err != nil {
		return nil, eris.Wrap(err, "caller: record audit")
	}

	zap.L().Info("audit call recorded",
		zap.String("lead", lead.Key),
		zap.String("outcome", string(res.Outcome)),
		zap.String("status", string(res.Status)),
		zap.Bool("qualified", res.Qualified),
	)
	return &res, nil
}

// Batch calls every eligible lead matching the filter, strictly in
// first-seen order with the configured inter-call delay. Provider faults on
// individual leads do not stop the batch.
func (e *Engine) Batch(ctx context.Context, f BatchFilter) (*BatchSummary, error) {
	leads, err := e.store.ListEligibleForCall(ctx, store.EligibilityFilter{
		Industry: f.Industry,
		State:    f.State,
		Only247:  f.Only247,
		Cooldown: e.cooldown,
		Limit:    f.Max,
		Now:      e.nowFunc().UTC(),
	})
	if err != nil {
		return nil, eris.Wrap(err, "caller: list eligible")
	}

	summary := &BatchSummary{ByOutcome: make(map[model.CallOutcome]int)}
	for _, lead := range leads {
		if err := e.limiter.Wait(ctx); err != nil {
			return summary, eris.Wrap(err, "caller: batch interrupted")
		}

		res, err := e.CallOne(ctx, lead.Key)
		if err != nil {
			if eris.Is(err, store.ErrStateConflict) || eris.Is(err, ErrNotEligible) {
				// Someone else claimed it since the eligibility query.
				zap.L().Debug("skipping contested lead", zap.String("lead", lead.Key))
				continue
			}
			summary.Errors++
			zap.L().Error("batch lead failed", zap.String("lead", lead.Key), zap.Error(err))
			continue
		}

		summary.Processed++
		summary.ByOutcome[res.Outcome]++
		if res.Qualified {
			summary.Qualified++
		}
		if res.ProviderFault {
			summary.Errors++
		}
	}
	return summary, nil
}

// recoverable reports whether a dial failure can clear up on a later run.
// Network faults and provider overload do; a rejection of the call itself
// (bad number, bad request) will not.
func recoverable(err error) bool {
	return resilience.IsTransient(err) || eris.Is(err, vapi.ErrProviderUnavailable)
}

// truncate cuts s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
