package rates

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"spendwatch/internal/core"
)

// memStore keeps rates keyed by (base, currency, date) like the SQLite
// repository, including the duplicate-insert no-op.
type memStore struct {
	rates map[string]core.ExchangeRate
}

func newMemStore() *memStore {
	return &memStore{rates: make(map[string]core.ExchangeRate)}
}

func rateKey(base, currency string, date time.Time) string {
	return base + "/" + currency + "/" + date.Format("2006-01-02")
}

func (m *memStore) RateOn(_ context.Context, base, currency string, date time.Time) (*core.ExchangeRate, error) {
	if r, ok := m.rates[rateKey(base, currency, date)]; ok {
		return &r, nil
	}
	return nil, nil
}

func (m *memStore) LatestRateAtOrBefore(_ context.Context, base, currency string, date time.Time) (*core.ExchangeRate, error) {
	var best *core.ExchangeRate
	for _, r := range m.rates {
		if r.BaseCurrency != base || r.Currency != currency || r.Date.After(date) {
			continue
		}
		if best == nil || r.Date.After(best.Date) {
			cp := r
			best = &cp
		}
	}
	return best, nil
}

func (m *memStore) SaveRate(_ context.Context, rate core.ExchangeRate) error {
	key := rateKey(rate.BaseCurrency, rate.Currency, rate.Date)
	if _, ok := m.rates[key]; ok {
		return nil
	}
	m.rates[key] = rate
	return nil
}

func TestGetOrFetchUnsupportedCurrency(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
	}))
	defer srv.Close()

	svc := NewService(newMemStore(), NewProvider(srv.URL, "k", time.Second))

	_, err := svc.GetOrFetch(context.Background(), "EUR", day(2024, time.January, 12))
	if !errors.Is(err, core.ErrUnsupportedCurrency) {
		t.Fatalf("expected ErrUnsupportedCurrency, got %v", err)
	}
	if atomic.LoadInt32(&calls) != 0 {
		t.Fatal("provider must not be consulted for an unsupported currency")
	}
}

func TestGetOrFetchCacheHitSkipsProvider(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
	}))
	defer srv.Close()

	store := newMemStore()
	date := day(2024, time.January, 12)
	_ = store.SaveRate(context.Background(), core.ExchangeRate{
		BaseCurrency: core.ReferenceCurrency,
		Currency:     "KZT",
		Date:         date,
		Rate:         decimal.RequireFromString("450.5"),
	})

	svc := NewService(store, NewProvider(srv.URL, "k", time.Second))

	rate, err := svc.GetOrFetch(context.Background(), "KZT", date)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rate.String() != "450.5" {
		t.Fatalf("rate = %s, want 450.5", rate)
	}
	if atomic.LoadInt32(&calls) != 0 {
		t.Fatal("provider must not be consulted on a cache hit")
	}
}

func TestGetOrFetchFallsBackToEarlierRecordedDate(t *testing.T) {
	store := newMemStore()
	_ = store.SaveRate(context.Background(), core.ExchangeRate{
		BaseCurrency: core.ReferenceCurrency,
		Currency:     "RUB",
		Date:         day(2024, time.January, 10),
		Rate:         decimal.RequireFromString("91.5"),
	})

	svc := NewService(store, NewProvider("http://127.0.0.1:0", "k", time.Second))

	rate, err := svc.GetOrFetch(context.Background(), "RUB", day(2024, time.January, 14))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rate.String() != "91.5" {
		t.Fatalf("rate = %s, want the earlier recorded 91.5", rate)
	}
}

func TestGetOrFetchFetchesAndPersistsUnderRequestedDate(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"Time Series FX (Daily)": {
				"2024-01-12": {"4. close": "450.00000000"}
			}
		}`))
	}))
	defer srv.Close()

	store := newMemStore()
	svc := NewService(store, NewProvider(srv.URL, "k", time.Second))

	// The series has only Friday; the Sunday lookup is persisted under
	// Sunday so repeats are served from the store.
	requested := day(2024, time.January, 14)
	rate, err := svc.GetOrFetch(context.Background(), "KZT", requested)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rate.String() != "450" {
		t.Fatalf("rate = %s, want 450", rate)
	}

	saved, err := store.RateOn(context.Background(), core.ReferenceCurrency, "KZT", requested)
	if err != nil || saved == nil {
		t.Fatalf("expected rate recorded under the requested date, got %v, %v", saved, err)
	}
	if saved.Source != "alphavantage.co" {
		t.Fatalf("source = %q, want alphavantage.co", saved.Source)
	}

	if _, err := svc.GetOrFetch(context.Background(), "KZT", requested); err != nil {
		t.Fatalf("unexpected error on repeat: %v", err)
	}
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Fatalf("provider consulted %d times, want 1", got)
	}
}

func TestGetOrFetchProviderFailureNothingRecorded(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"Error Message": "Invalid API call"}`))
	}))
	defer srv.Close()

	store := newMemStore()
	svc := NewService(store, NewProvider(srv.URL, "k", time.Second))

	_, err := svc.GetOrFetch(context.Background(), "KZT", day(2024, time.January, 12))
	if !errors.Is(err, core.ErrRateProvider) {
		t.Fatalf("expected ErrRateProvider, got %v", err)
	}
	if len(store.rates) != 0 {
		t.Fatal("nothing must be recorded when the provider fails")
	}
}
