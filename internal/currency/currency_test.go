package currency

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/metric/noop"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type stubProvider struct {
	calls atomic.Int32
	table Table
	err   error
	delay time.Duration
}

func (p *stubProvider) FetchUSD(context.Context) (Table, error) {
	p.calls.Add(1)
	if p.delay > 0 {
		time.Sleep(p.delay)
	}
	if p.err != nil {
		return Table{}, p.err
	}
	return p.table, nil
}

func usdTable() Table {
	return Table{
		Base: "USD",
		Rates: map[string]decimal.Decimal{
			"USD": decimal.NewFromInt(1),
			"CRC": decimal.NewFromInt(520),
			"EUR": decimal.RequireFromString("0.92"),
		},
		SourceTimestamp: time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC),
	}
}

func newConverter(t *testing.T, provider RateProvider, clock *fakeClock) *Converter {
	t.Helper()
	conv, err := NewConverter(ConverterDeps{
		Provider: provider,
		Cache:    NewMemoryRateCache(DefaultTTL, clock.Now),
		Clock:    clock.Now,
	})
	if err != nil {
		t.Fatalf("new converter: %v", err)
	}
	return conv
}

func TestConvertMultipliesByRate(t *testing.T) {
	clock := &fakeClock{now: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)}
	conv := newConverter(t, &stubProvider{table: usdTable()}, clock)

	got, err := conv.Convert(context.Background(), decimal.NewFromInt(100), "crc")
	if err != nil {
		t.Fatalf("convert: %v", err)
	}
	if !got.ConvertedAmount.Equal(decimal.NewFromInt(52000)) {
		t.Fatalf("expected 52000, got %s", got.ConvertedAmount)
	}
	if got.Currency != "CRC" || !got.Rate.Equal(decimal.NewFromInt(520)) {
		t.Fatalf("unexpected conversion %+v", got)
	}
	if !got.SourceTimestamp.Equal(usdTable().SourceTimestamp) {
		t.Fatalf("unexpected source timestamp %s", got.SourceTimestamp)
	}
}

func TestConvertRejectsInvalidInput(t *testing.T) {
	clock := &fakeClock{now: time.Now()}
	provider := &stubProvider{table: usdTable()}
	conv := newConverter(t, provider, clock)

	for _, amount := range []decimal.Decimal{
		decimal.Zero,
		decimal.NewFromInt(-5),
		decimal.New(1, 50000000),
		MaxAmount.Add(decimal.NewFromInt(1)),
		decimal.New(1, -(MaxScale + 1)),
	} {
		if _, err := conv.Convert(context.Background(), amount, "CRC"); !errors.Is(err, ErrInvalidAmount) {
			t.Fatalf("amount %s: expected ErrInvalidAmount, got %v", amount, err)
		}
	}
	if _, err := conv.Convert(context.Background(), decimal.NewFromInt(1), " "); !errors.Is(err, ErrMissingCurrency) {
		t.Fatalf("expected ErrMissingCurrency, got %v", err)
	}
	if provider.calls.Load() != 0 {
		t.Fatalf("invalid input should not fetch rates")
	}

	_, err := conv.Convert(context.Background(), decimal.NewFromInt(100), "ZZZ")
	var unsupported *UnsupportedCurrencyError
	if !errors.As(err, &unsupported) || unsupported.Currency != "ZZZ" {
		t.Fatalf("expected unsupported currency error, got %v", err)
	}
	if err.Error() != "unsupported currency: ZZZ" {
		t.Fatalf("unexpected message %q", err.Error())
	}
}

func TestConvertReusesTableWithinTTL(t *testing.T) {
	clock := &fakeClock{now: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)}
	provider := &stubProvider{table: usdTable()}
	conv := newConverter(t, provider, clock)
	ctx := context.Background()

	if _, err := conv.Convert(ctx, decimal.NewFromInt(10), "CRC"); err != nil {
		t.Fatalf("first convert: %v", err)
	}
	clock.Advance(29 * time.Minute)
	if _, err := conv.Convert(ctx, decimal.NewFromInt(10), "EUR"); err != nil {
		t.Fatalf("second convert: %v", err)
	}
	if got := provider.calls.Load(); got != 1 {
		t.Fatalf("expected one fetch within TTL, got %d", got)
	}

	clock.Advance(2 * time.Minute)
	if _, err := conv.Convert(ctx, decimal.NewFromInt(10), "CRC"); err != nil {
		t.Fatalf("third convert: %v", err)
	}
	if got := provider.calls.Load(); got != 2 {
		t.Fatalf("expected refetch after TTL, got %d", got)
	}
}

func TestConvertFetchFailureStoresNothing(t *testing.T) {
	clock := &fakeClock{now: time.Now()}
	provider := &stubProvider{err: errors.New("dial tcp: refused")}
	conv := newConverter(t, provider, clock)

	_, err := conv.Convert(context.Background(), decimal.NewFromInt(1), "CRC")
	if !errors.Is(err, ErrRatesUnavailable) {
		t.Fatalf("expected ErrRatesUnavailable, got %v", err)
	}

	provider.err = nil
	provider.table = usdTable()
	if _, err := conv.Convert(context.Background(), decimal.NewFromInt(1), "CRC"); err != nil {
		t.Fatalf("expected recovery after failure, got %v", err)
	}
	if got := provider.calls.Load(); got != 2 {
		t.Fatalf("expected two fetches, got %d", got)
	}
}

func TestConcurrentMissesShareOneFetch(t *testing.T) {
	clock := &fakeClock{now: time.Now()}
	provider := &stubProvider{table: usdTable(), delay: 50 * time.Millisecond}
	conv := newConverter(t, provider, clock)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := conv.Convert(context.Background(), decimal.NewFromInt(1), "CRC"); err != nil {
				t.Errorf("convert: %v", err)
			}
		}()
	}
	wg.Wait()
	if got := provider.calls.Load(); got != 1 {
		t.Fatalf("expected a single fetch, got %d", got)
	}
}

func TestMemoryRateCacheExpiry(t *testing.T) {
	clock := &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	cache := NewMemoryRateCache(time.Minute, clock.Now)
	ctx := context.Background()

	if _, ok, _ := cache.Get(ctx); ok {
		t.Fatalf("expected empty cache")
	}
	tbl := usdTable()
	tbl.FetchedAt = clock.Now()
	_ = cache.Set(ctx, tbl)
	if _, ok, _ := cache.Get(ctx); !ok {
		t.Fatalf("expected fresh hit")
	}
	clock.Advance(time.Minute)
	if _, ok, _ := cache.Get(ctx); ok {
		t.Fatalf("expected expiry at TTL")
	}
}

func TestNewConverterAcceptsExplicitMeter(t *testing.T) {
	conv, err := NewConverter(ConverterDeps{
		Provider: &stubProvider{table: usdTable()},
		Meter:    noop.NewMeterProvider().Meter("test"),
	})
	if err != nil {
		t.Fatalf("new converter: %v", err)
	}
	got, err := conv.Convert(context.Background(), decimal.NewFromInt(2), "eur")
	if err != nil {
		t.Fatalf("convert: %v", err)
	}
	if !got.ConvertedAmount.Equal(decimal.RequireFromString("1.84")) {
		t.Fatalf("expected 1.84, got %s", got.ConvertedAmount)
	}
}

func TestNewConverterRequiresProvider(t *testing.T) {
	if _, err := NewConverter(ConverterDeps{}); err == nil {
		t.Fatal("expected error without provider")
	}
}
