package limits

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"spendwatch/internal/core"
)

// fakeStore answers point-in-time lookups over an in-memory history.
type fakeStore struct {
	limits []core.Limit
}

func (f *fakeStore) LimitAtOrBefore(_ context.Context, category core.Category, at time.Time) (*core.Limit, error) {
	return f.pick(category, func(ef time.Time) bool { return !ef.After(at) }), nil
}

func (f *fakeStore) LimitBefore(_ context.Context, category core.Category, before time.Time) (*core.Limit, error) {
	return f.pick(category, func(ef time.Time) bool { return ef.Before(before) }), nil
}

func (f *fakeStore) pick(category core.Category, match func(time.Time) bool) *core.Limit {
	var best *core.Limit
	for i := range f.limits {
		l := &f.limits[i]
		if l.Category != category || !match(l.EffectiveFrom) {
			continue
		}
		if best == nil || l.EffectiveFrom.After(best.EffectiveFrom) {
			best = l
		}
	}
	return best
}

func TestApplicableNoVersions(t *testing.T) {
	r := NewResolver(&fakeStore{})

	loc := time.FixedZone("UTC+3", 3*3600)
	at := time.Date(2024, 1, 12, 14, 30, 0, 0, loc)

	limit, windowStart, err := r.Applicable(context.Background(), core.Product, at)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if limit != nil {
		t.Fatalf("expected no limit, got %+v", limit)
	}
	if want := time.Date(2024, 1, 1, 0, 0, 0, 0, loc); !windowStart.Equal(want) {
		t.Fatalf("window start = %v, want month start %v", windowStart, want)
	}
}

func TestApplicableSingleVersion(t *testing.T) {
	ef := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	r := NewResolver(&fakeStore{limits: []core.Limit{
		{ID: 1, Category: core.Product, Value: decimal.RequireFromString("800.00"), EffectiveFrom: ef},
	}})

	limit, windowStart, err := r.Applicable(context.Background(), core.Product, ef.Add(48*time.Hour))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if limit == nil || limit.ID != 1 {
		t.Fatalf("expected limit 1, got %+v", limit)
	}
	if !windowStart.Equal(ef) {
		t.Fatalf("window start = %v, want the version's own effective-from %v", windowStart, ef)
	}
}

func TestApplicableBoundaryInclusive(t *testing.T) {
	ef := time.Date(2024, 1, 10, 9, 0, 0, 0, time.UTC)
	r := NewResolver(&fakeStore{limits: []core.Limit{
		{ID: 7, Category: core.Service, Value: decimal.RequireFromString("2000.00"), EffectiveFrom: ef},
	}})

	// A transaction at exactly the effective-from instant is governed by it.
	limit, _, err := r.Applicable(context.Background(), core.Service, ef)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if limit == nil || limit.ID != 7 {
		t.Fatalf("expected limit 7 at the boundary, got %+v", limit)
	}
}

func TestApplicableLooksBackToPreviousVersion(t *testing.T) {
	ef1 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	ef2 := time.Date(2024, 1, 10, 9, 0, 0, 0, time.UTC)
	store := &fakeStore{limits: []core.Limit{
		{ID: 1, Category: core.Product, Value: decimal.RequireFromString("800.00"), EffectiveFrom: ef1},
		{ID: 2, Category: core.Product, Value: decimal.RequireFromString("2000.00"), EffectiveFrom: ef2},
	}}
	r := NewResolver(store)

	at := time.Date(2024, 1, 12, 14, 30, 0, 0, time.UTC)
	limit, windowStart, err := r.Applicable(context.Background(), core.Product, at)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if limit == nil || limit.ID != 2 {
		t.Fatalf("expected the newer version, got %+v", limit)
	}
	if !windowStart.Equal(ef1) {
		t.Fatalf("window start = %v, want previous version's effective-from %v", windowStart, ef1)
	}

	// Between the two versions only the first governs, window is its own start.
	between := time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC)
	limit, windowStart, err = r.Applicable(context.Background(), core.Product, between)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if limit == nil || limit.ID != 1 {
		t.Fatalf("expected the older version, got %+v", limit)
	}
	if !windowStart.Equal(ef1) {
		t.Fatalf("window start = %v, want %v", windowStart, ef1)
	}
}

func TestApplicableIgnoresOtherCategories(t *testing.T) {
	ef := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	r := NewResolver(&fakeStore{limits: []core.Limit{
		{ID: 1, Category: core.Service, Value: decimal.RequireFromString("800.00"), EffectiveFrom: ef},
	}})

	at := time.Date(2024, 1, 12, 0, 0, 0, 0, time.UTC)
	limit, windowStart, err := r.Applicable(context.Background(), core.Product, at)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if limit != nil {
		t.Fatalf("expected no limit for the other category, got %+v", limit)
	}
	if want := core.MonthStart(at); !windowStart.Equal(want) {
		t.Fatalf("window start = %v, want %v", windowStart, want)
	}
}
