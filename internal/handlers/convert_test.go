package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/sobrepoxidev/sobrepoxi-sub002/internal/currency"
	"github.com/sobrepoxidev/sobrepoxi-sub002/internal/testutil"
)

type stubRateProvider struct {
	table currency.Table
	err   error
	calls int
}

func (s *stubRateProvider) FetchUSD(context.Context) (currency.Table, error) {
	s.calls++
	return s.table, s.err
}

func newConvertRouter(t *testing.T, provider currency.RateProvider) http.Handler {
	t.Helper()
	converter, err := currency.NewConverter(currency.ConverterDeps{Provider: provider})
	if err != nil {
		t.Fatalf("new converter: %v", err)
	}
	r := chi.NewRouter()
	r.Route("/api", NewConvertHandlers(converter).Routes)
	return r
}

func crcTable() currency.Table {
	return currency.Table{
		Base:            "USD",
		Rates:           map[string]decimal.Decimal{"CRC": decimal.NewFromInt(520), "EUR": decimal.RequireFromString("0.92")},
		SourceTimestamp: time.Date(2024, 8, 3, 0, 0, 1, 0, time.UTC),
	}
}

func TestConvertSuccess(t *testing.T) {
	provider := &stubRateProvider{table: crcTable()}
	router := newConvertRouter(t, provider)

	rec := testutil.Do(t, router, http.MethodGet, "/api/convert?amount=100&to=crc", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if got := rec.Header().Get("Cache-Control"); got != "public, s-maxage=1800" {
		t.Fatalf("unexpected cache-control %q", got)
	}

	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["convertedAmount"] != float64(52000) {
		t.Fatalf("expected convertedAmount 52000, got %v", body["convertedAmount"])
	}
	if body["rate"] != float64(520) {
		t.Fatalf("expected rate 520, got %v", body["rate"])
	}
	if body["currency"] != "CRC" {
		t.Fatalf("expected currency CRC, got %v", body["currency"])
	}
	if body["sourceTimestamp"] != "2024-08-03T00:00:01Z" {
		t.Fatalf("unexpected sourceTimestamp %v", body["sourceTimestamp"])
	}

	rec = testutil.Do(t, router, http.MethodGet, "/api/convert?amount=10&to=EUR", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	if provider.calls != 1 {
		t.Fatalf("expected one table fetch for both currencies, got %d", provider.calls)
	}
}

func TestConvertErrors(t *testing.T) {
	cases := []struct {
		name     string
		target   string
		provider *stubRateProvider
		status   int
		code     string
	}{
		{name: "zero amount", target: "/api/convert?amount=0&to=CRC", provider: &stubRateProvider{table: crcTable()}, status: http.StatusBadRequest, code: "invalid_amount"},
		{name: "unparsable amount", target: "/api/convert?amount=abc&to=CRC", provider: &stubRateProvider{table: crcTable()}, status: http.StatusBadRequest, code: "invalid_amount"},
		{name: "missing amount", target: "/api/convert?to=CRC", provider: &stubRateProvider{table: crcTable()}, status: http.StatusBadRequest, code: "invalid_amount"},
		{name: "huge exponent", target: "/api/convert?amount=1e50000000&to=CRC", provider: &stubRateProvider{table: crcTable()}, status: http.StatusBadRequest, code: "invalid_amount"},
		{name: "above max amount", target: "/api/convert?amount=1e16&to=CRC", provider: &stubRateProvider{table: crcTable()}, status: http.StatusBadRequest, code: "invalid_amount"},
		{name: "too many decimals", target: "/api/convert?amount=1e-40&to=CRC", provider: &stubRateProvider{table: crcTable()}, status: http.StatusBadRequest, code: "invalid_amount"},
		{name: "overlong amount", target: "/api/convert?amount=1" + strings.Repeat("0", 40) + "&to=CRC", provider: &stubRateProvider{table: crcTable()}, status: http.StatusBadRequest, code: "invalid_amount"},
		{name: "missing target", target: "/api/convert?amount=5", provider: &stubRateProvider{table: crcTable()}, status: http.StatusBadRequest, code: "missing_currency"},
		{name: "unsupported", target: "/api/convert?amount=100&to=ZZZ", provider: &stubRateProvider{table: crcTable()}, status: http.StatusBadRequest, code: "unsupported_currency"},
		{name: "provider down", target: "/api/convert?amount=100&to=CRC", provider: &stubRateProvider{err: errors.New("boom")}, status: http.StatusBadGateway, code: "rates_unavailable"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := testutil.Do(t, newConvertRouter(t, tc.provider), http.MethodGet, tc.target, "")
			if rec.Code != tc.status {
				t.Fatalf("expected status %d, got %d: %s", tc.status, rec.Code, rec.Body.String())
			}
			var body map[string]any
			if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if body["code"] != tc.code {
				t.Fatalf("expected code %s, got %v", tc.code, body["code"])
			}
			if msg, _ := body["error"].(string); msg == "" {
				t.Fatalf("expected error message, got %v", body)
			}
		})
	}
}

func TestConvertUnsupportedMessageNamesCurrency(t *testing.T) {
	rec := testutil.Do(t, newConvertRouter(t, &stubRateProvider{table: crcTable()}), http.MethodGet, "/api/convert?amount=100&to=zzz", "")
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["error"] != "unsupported currency: ZZZ" {
		t.Fatalf("unexpected error %v", body["error"])
	}
}

func TestConvertFallsBackToFetchTime(t *testing.T) {
	table := crcTable()
	table.SourceTimestamp = time.Time{}
	fetched := time.Date(2024, 8, 3, 12, 30, 0, 0, time.UTC)
	converter, err := currency.NewConverter(currency.ConverterDeps{
		Provider: &stubRateProvider{table: table},
		Clock:    func() time.Time { return fetched },
	})
	if err != nil {
		t.Fatalf("new converter: %v", err)
	}
	r := chi.NewRouter()
	r.Route("/api", NewConvertHandlers(converter).Routes)

	rec := testutil.Do(t, r, http.MethodGet, "/api/convert?amount=1&to=CRC", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["sourceTimestamp"] != "2024-08-03T12:30:00Z" {
		t.Fatalf("expected fetch time as sourceTimestamp, got %v", body["sourceTimestamp"])
	}
}
