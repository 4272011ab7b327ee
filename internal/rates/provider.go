package rates

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/shopspring/decimal"

	"spendwatch/internal/core"
)

const (
	sourceName = "alphavantage.co"
	dateLayout = "2006-01-02"
)

// Provider fetches daily close rates from the external FX time-series
// source. It is only consulted when the cache has nothing recorded.
type Provider struct {
	client  *http.Client
	baseURL string
	apiKey  string
}

func NewProvider(baseURL, apiKey string, timeout time.Duration) *Provider {
	return &Provider{
		client:  &http.Client{Timeout: timeout},
		baseURL: baseURL,
		apiKey:  apiKey,
	}
}

// The source signals API errors through payload fields, not only through
// transport status codes.
type fxDailyResponse struct {
	ErrorMessage string                `json:"Error Message"`
	Note         string                `json:"Note"`
	TimeSeries   map[string]fxDayEntry `json:"Time Series FX (Daily)"`
}

type fxDayEntry struct {
	Close string `json:"4. close"`
}

// Fetch queries the daily series for reference→currency and picks the
// close rate on date, or on the closest preceding date the series has.
// It never uses an entry dated after the requested date.
func (p *Provider) Fetch(ctx context.Context, currency string, date time.Time) (decimal.Decimal, error) {
	q := url.Values{}
	q.Set("function", "FX_DAILY")
	q.Set("from_symbol", core.ReferenceCurrency)
	q.Set("to_symbol", currency)
	q.Set("apikey", p.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/query?"+q.Encode(), nil)
	if err != nil {
		return decimal.Zero, fmt.Errorf("build rate request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: query time series: %v", core.ErrRateProvider, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return decimal.Zero, fmt.Errorf("%w: unexpected status %d", core.ErrRateProvider, resp.StatusCode)
	}

	var payload fxDailyResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return decimal.Zero, fmt.Errorf("%w: decode response: %v", core.ErrRateProvider, err)
	}

	if payload.ErrorMessage != "" {
		return decimal.Zero, fmt.Errorf("%w: %s", core.ErrRateProvider, payload.ErrorMessage)
	}
	if payload.Note != "" {
		// Rate-limit notices arrive as a "Note" with a 200 status.
		return decimal.Zero, fmt.Errorf("%w: %s", core.ErrRateProvider, payload.Note)
	}
	if len(payload.TimeSeries) == 0 {
		return decimal.Zero, fmt.Errorf("%w: empty time series for %s/%s",
			core.ErrRateProvider, core.ReferenceCurrency, currency)
	}

	return pickClose(payload.TimeSeries, date)
}

// pickClose selects the close value for the requested date, else the entry
// with the greatest date <= the requested date.
func pickClose(series map[string]fxDayEntry, date time.Time) (decimal.Decimal, error) {
	requested := date.Format(dateLayout)

	if entry, ok := series[requested]; ok {
		rate, err := decimal.NewFromString(entry.Close)
		if err != nil {
			return decimal.Zero, fmt.Errorf("%w: bad close value %q", core.ErrRateProvider, entry.Close)
		}
		return rate, nil
	}

	var bestDay string
	for day := range series {
		if _, err := time.Parse(dateLayout, day); err != nil {
			continue
		}
		if day > requested {
			continue
		}
		if day > bestDay {
			bestDay = day
		}
	}
	if bestDay == "" {
		return decimal.Zero, fmt.Errorf("%w: for %s", core.ErrNoUsableRate, requested)
	}

	rate, err := decimal.NewFromString(series[bestDay].Close)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: bad close value %q", core.ErrRateProvider, series[bestDay].Close)
	}
	return rate, nil
}
