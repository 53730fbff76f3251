// Package dedup resolves normalized lead candidates against the store,
// deciding between inserting a new lead and merging into an existing one.
package dedup

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/nightline/internal/model"
	"github.com/sells-group/nightline/internal/store"
)

// Action describes how a candidate was resolved.
type Action string

const (
	ActionInsert Action = "insert"
	ActionMerge  Action = "merge"
)

// Decision is the outcome of resolving one candidate.
type Decision struct {
	Action Action
	Key    string // existing lead key on merge, candidate key on insert
}

// Resolver matches candidates to existing leads. Identity resolution order:
// exact phone within the same industry first (the most reliable signal,
// since display names vary across duplicate ad placements), then normalized
// name + zip. No match means a new lead.
type Resolver struct {
	store store.Store
}

// NewResolver creates a Resolver backed by the given store.
func NewResolver(s store.Store) *Resolver {
	return &Resolver{store: s}
}

// Resolve decides whether cand is a new lead or an update to an existing one.
func (r *Resolver) Resolve(ctx context.Context, cand *model.Candidate) (Decision, error) {
	if cand.Phone != "" {
		lead, err := r.store.FindByPhone(ctx, cand.Industry, cand.Phone)
		if err == nil {
			return Decision{Action: ActionMerge, Key: lead.Key}, nil
		}
		if !eris.Is(err, store.ErrNotFound) {
			return Decision{}, eris.Wrap(err, "dedup: find by phone")
		}
	}

	lead, err := r.store.FindByNameZip(ctx, cand.NormName, cand.Zip)
	if err == nil {
		return Decision{Action: ActionMerge, Key: lead.Key}, nil
	}
	if !eris.Is(err, store.ErrNotFound) {
		return Decision{}, eris.Wrap(err, "dedup: find by name+zip")
	}

	return Decision{Action: ActionInsert, Key: cand.Key}, nil
}

// Apply resolves cand and writes the result: a fresh lead in state new, or a
// merge of the mutable listing fields. Merging never touches lifecycle
// state, first-seen, or the identity key. A concurrent insert of the same
// key is retried as a merge.
func (r *Resolver) Apply(ctx context.Context, cand *model.Candidate) (Decision, error) {
	dec, err := r.Resolve(ctx, cand)
	if err != nil {
		return Decision{}, err
	}

	switch dec.Action {
	case ActionInsert:
		now := time.Now().UTC()
		lead := model.Lead{
			Key:                   cand.Key,
			Name:                  cand.Name,
			NormName:              cand.NormName,
			Phone:                 cand.Phone,
			Industry:              cand.Industry,
			City:                  cand.City,
			State:                 cand.State,
			Zip:                   cand.Zip,
			Website:               cand.Website,
			ReviewCount:           cand.ReviewCount,
			Rating:                cand.Rating,
			YearsInBusiness:       cand.YearsInBusiness,
			HoursText:             cand.HoursText,
			ClaimsTwentyFourSeven: cand.Claims247,
			KeywordsFound:         cand.KeywordsFound,
			Sponsored:             cand.Sponsored,
			GoogleGuaranteed:      cand.Guaranteed,
			SourceQuery:           cand.SourceQuery,
			SourceRegion:          cand.SourceRegion,
			Status:                model.LeadStatusNew,
			FirstSeenAt:           now,
			LastUpdatedAt:         now,
		}
		if err := r.store.InsertLead(ctx, lead); err != nil {
			if eris.Is(err, store.ErrKeyExists) {
				// Lost a race with a concurrent scrape worker.
				zap.L().Debug("dedup: insert raced, merging instead", zap.String("key", cand.Key))
				dec.Action = ActionMerge
				return dec, eris.Wrap(r.store.MergeLead(ctx, cand.Key, cand), "dedup: merge after race")
			}
			return Decision{}, eris.Wrap(err, "dedup: insert")
		}
		return dec, nil

	case ActionMerge:
		if err := r.store.MergeLead(ctx, dec.Key, cand); err != nil {
			return Decision{}, eris.Wrap(err, "dedup: merge")
		}
		return dec, nil

	default:
		return Decision{}, eris.Errorf("dedup: unknown action %q", dec.Action)
	}
}
