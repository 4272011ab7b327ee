// Package rates resolves the exchange rate between the reference currency
// and an origin currency for a calendar date: recorded rates first, then a
// fetch from the external daily time-series source.
package rates

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"spendwatch/internal/core"
)

// Store is the recorded-rate storage the cache and provider work against.
type Store interface {
	RateOn(ctx context.Context, base, currency string, date time.Time) (*core.ExchangeRate, error)
	LatestRateAtOrBefore(ctx context.Context, base, currency string, date time.Time) (*core.ExchangeRate, error)
	SaveRate(ctx context.Context, rate core.ExchangeRate) error
}

// Cache is the pure read path over recorded rates: exact date first, then
// the most recent earlier date. No extrapolation, no interpolation.
type Cache struct {
	store Store
}

func NewCache(store Store) *Cache {
	return &Cache{store: store}
}

// Lookup returns the recorded rate for (currency, date), falling back to
// the closest earlier recorded date. ok is false when neither exists.
func (c *Cache) Lookup(ctx context.Context, currency string, date time.Time) (decimal.Decimal, bool, error) {
	exact, err := c.store.RateOn(ctx, core.ReferenceCurrency, currency, date)
	if err != nil {
		return decimal.Zero, false, fmt.Errorf("rate exact lookup: %w", err)
	}
	if exact != nil {
		return exact.Rate, true, nil
	}

	latest, err := c.store.LatestRateAtOrBefore(ctx, core.ReferenceCurrency, currency, date)
	if err != nil {
		return decimal.Zero, false, fmt.Errorf("rate fallback lookup: %w", err)
	}
	if latest != nil {
		return latest.Rate, true, nil
	}

	return decimal.Zero, false, nil
}
