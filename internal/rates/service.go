package rates

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"

	"spendwatch/internal/core"
)

// SupportedCurrencies is the closed allow-list of origin currencies.
var SupportedCurrencies = []string{"KZT", "RUB"}

// Service is the cache-then-fetch rate resolution used by evaluation.
// Concurrent fetches for the same (currency, date) are collapsed into one
// upstream call; the store's natural key absorbs cross-process races.
type Service struct {
	cache    *Cache
	provider *Provider
	store    Store
	group    singleflight.Group
}

func NewService(store Store, provider *Provider) *Service {
	return &Service{
		cache:    NewCache(store),
		provider: provider,
		store:    store,
	}
}

// GetOrFetch returns the rate applicable to (currency, date): the recorded
// rate when one exists, otherwise a provider fetch persisted under the
// requested date so repeat lookups are served from the store.
func (s *Service) GetOrFetch(ctx context.Context, currency string, date time.Time) (decimal.Decimal, error) {
	if !supported(currency) {
		return decimal.Zero, fmt.Errorf("%w: %s", core.ErrUnsupportedCurrency, currency)
	}

	rate, ok, err := s.cache.Lookup(ctx, currency, date)
	if err != nil {
		return decimal.Zero, err
	}
	if ok {
		return rate, nil
	}

	key := currency + "/" + date.Format(dateLayout)
	v, err, shared := s.group.Do(key, func() (any, error) {
		return s.fetchAndSave(ctx, currency, date)
	})
	if err != nil {
		return decimal.Zero, err
	}
	if shared {
		slog.DebugContext(ctx, "Rate fetch shared between concurrent lookups", "key", key)
	}
	return v.(decimal.Decimal), nil
}

func (s *Service) fetchAndSave(ctx context.Context, currency string, date time.Time) (decimal.Decimal, error) {
	rate, err := s.provider.Fetch(ctx, currency, date)
	if err != nil {
		return decimal.Zero, err
	}

	err = s.store.SaveRate(ctx, core.ExchangeRate{
		BaseCurrency: core.ReferenceCurrency,
		Currency:     currency,
		Date:         date,
		Rate:         rate,
		Source:       sourceName,
	})
	if err != nil {
		return decimal.Zero, fmt.Errorf("persist fetched rate: %w", err)
	}

	slog.InfoContext(ctx, "Exchange rate fetched and recorded",
		"currency", currency,
		"date", date.Format(dateLayout),
		"rate", rate.String())

	return rate, nil
}

func supported(currency string) bool {
	for _, c := range SupportedCurrencies {
		if c == currency {
			return true
		}
	}
	return false
}
