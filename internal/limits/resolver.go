// Package limits resolves which spending-limit version governs a category
// at a given instant, and the window start used to aggregate prior spend.
package limits

import (
	"context"
	"fmt"
	"time"

	"spendwatch/internal/core"
)

// Store is the append-only limit history the resolver reads.
type Store interface {
	LimitAtOrBefore(ctx context.Context, category core.Category, at time.Time) (*core.Limit, error)
	LimitBefore(ctx context.Context, category core.Category, before time.Time) (*core.Limit, error)
}

// Resolver performs point-in-time lookups over the limit history.
// It never mutates state.
type Resolver struct {
	store Store
}

func NewResolver(store Store) *Resolver {
	return &Resolver{store: store}
}

// Applicable returns the limit version governing category at the given
// instant (nil when none exists) and the start of the aggregation window:
//
//   - a version exists and an older version precedes it: the older
//     version's effective-from, so spend carried across the boundary still
//     counts against the new value;
//   - a version exists with nothing before it: that version's own
//     effective-from;
//   - no version at all: the first instant of the month containing the
//     instant, in the instant's own offset.
//
// The at-or-before boundary is inclusive: a transaction at exactly a
// version's effective-from is governed by that version.
func (r *Resolver) Applicable(ctx context.Context, category core.Category, at time.Time) (*core.Limit, time.Time, error) {
	found, err := r.store.LimitAtOrBefore(ctx, category, at)
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("resolve limit: %w", err)
	}

	if found == nil {
		return nil, core.MonthStart(at), nil
	}

	previous, err := r.store.LimitBefore(ctx, category, found.EffectiveFrom)
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("resolve previous limit: %w", err)
	}
	if previous != nil {
		return found, previous.EffectiveFrom, nil
	}
	return found, found.EffectiveFrom, nil
}
