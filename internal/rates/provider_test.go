package rates

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"spendwatch/internal/core"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func newTestProvider(t *testing.T, handler http.HandlerFunc) *Provider {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewProvider(srv.URL, "test-key", 5*time.Second)
}

func seriesResponse(body string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	}
}

func TestFetchExactDate(t *testing.T) {
	var gotQuery map[string]string
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		gotQuery = map[string]string{
			"function":    q.Get("function"),
			"from_symbol": q.Get("from_symbol"),
			"to_symbol":   q.Get("to_symbol"),
			"apikey":      q.Get("apikey"),
		}
		seriesResponse(`{
			"Time Series FX (Daily)": {
				"2024-01-12": {"4. close": "450.12345678"},
				"2024-01-11": {"4. close": "449.00000000"}
			}
		}`)(w, r)
	})

	rate, err := p.Fetch(context.Background(), "KZT", day(2024, time.January, 12))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rate.String() != "450.12345678" {
		t.Fatalf("rate = %s, want 450.12345678", rate)
	}

	want := map[string]string{
		"function":    "FX_DAILY",
		"from_symbol": "USD",
		"to_symbol":   "KZT",
		"apikey":      "test-key",
	}
	for k, v := range want {
		if gotQuery[k] != v {
			t.Fatalf("query %s = %q, want %q", k, gotQuery[k], v)
		}
	}
}

func TestFetchClosestPrecedingDate(t *testing.T) {
	// Requested date falls on a weekend; the series has Friday and Monday.
	p := newTestProvider(t, seriesResponse(`{
		"Time Series FX (Daily)": {
			"2024-01-15": {"4. close": "452.00000000"},
			"2024-01-12": {"4. close": "450.00000000"},
			"2024-01-11": {"4. close": "449.00000000"}
		}
	}`))

	rate, err := p.Fetch(context.Background(), "KZT", day(2024, time.January, 14))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rate.String() != "450" {
		t.Fatalf("rate = %s, want the Friday close 450", rate)
	}
}

func TestFetchOnlyLaterDates(t *testing.T) {
	p := newTestProvider(t, seriesResponse(`{
		"Time Series FX (Daily)": {
			"2024-02-01": {"4. close": "455.00000000"}
		}
	}`))

	_, err := p.Fetch(context.Background(), "KZT", day(2024, time.January, 14))
	if !errors.Is(err, core.ErrNoUsableRate) {
		t.Fatalf("expected ErrNoUsableRate, got %v", err)
	}
}

func TestFetchPayloadErrors(t *testing.T) {
	cases := []struct {
		name string
		body string
	}{
		{"error message", `{"Error Message": "Invalid API call"}`},
		{"rate limit note", `{"Note": "Thank you for using our API. Please slow down."}`},
		{"empty series", `{"Time Series FX (Daily)": {}}`},
		{"missing series", `{}`},
		{"bad json", `{`},
	}
	for _, tc := range cases {
		p := newTestProvider(t, seriesResponse(tc.body))
		_, err := p.Fetch(context.Background(), "KZT", day(2024, time.January, 12))
		if !errors.Is(err, core.ErrRateProvider) {
			t.Fatalf("%s: expected ErrRateProvider, got %v", tc.name, err)
		}
	}
}

func TestFetchHTTPError(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	_, err := p.Fetch(context.Background(), "KZT", day(2024, time.January, 12))
	if !errors.Is(err, core.ErrRateProvider) {
		t.Fatalf("expected ErrRateProvider, got %v", err)
	}
}
