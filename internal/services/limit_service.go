package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"spendwatch/internal/core"
)

// LimitStore is the append-only limit history storage.
type LimitStore interface {
	CreateLimit(ctx context.Context, l core.Limit) (core.Limit, error)
	ListLimits(ctx context.Context) ([]core.Limit, error)
}

// LimitService creates and lists limit versions. Versions are append-only:
// creating one never edits or removes an earlier one.
type LimitService struct {
	store LimitStore
	now   func() time.Time
}

func NewLimitService(store LimitStore) *LimitService {
	return &LimitService{store: store, now: time.Now}
}

// Create appends a new limit version for category, effective from now.
func (s *LimitService) Create(ctx context.Context, category core.Category, value decimal.Decimal) (core.Limit, error) {
	l := core.Limit{
		Category:      category,
		Value:         value,
		EffectiveFrom: s.now(),
		Currency:      core.ReferenceCurrency,
	}
	if err := l.Validate(); err != nil {
		return core.Limit{}, err
	}

	saved, err := s.store.CreateLimit(ctx, l)
	if err != nil {
		if errors.Is(err, core.ErrDuplicateLimit) {
			return core.Limit{}, err
		}
		return core.Limit{}, fmt.Errorf("create limit: %w", err)
	}
	return saved, nil
}

// List returns the limit history, newest first.
func (s *LimitService) List(ctx context.Context) ([]core.Limit, error) {
	return s.store.ListLimits(ctx)
}
