// Package currency converts amounts using a cached USD exchange-rate table.
package currency

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/sobrepoxidev/sobrepoxi-sub002/internal/platform/requestctx"
)

// DefaultTTL is how long a fetched table is reused.
const DefaultTTL = 30 * time.Minute

// MaxAmount and MaxScale bound accepted amounts so a conversion result stays a short number.
var MaxAmount = decimal.New(1, 15)

const MaxScale = 18

const metricNamespace = "github.com/sobrepoxidev/sobrepoxi-sub002/internal/currency"

var (
	// ErrInvalidAmount indicates a missing, unparsable, out of range or non-positive amount.
	ErrInvalidAmount = errors.New("invalid amount")
	// ErrMissingCurrency indicates the target currency code was empty.
	ErrMissingCurrency = errors.New("missing target currency")
	// ErrRatesUnavailable wraps a failed rate table fetch.
	ErrRatesUnavailable = errors.New("exchange rates unavailable")
)

// UnsupportedCurrencyError reports a target code absent from the rate table.
type UnsupportedCurrencyError struct {
	Currency string
}

func (e *UnsupportedCurrencyError) Error() string {
	return "unsupported currency: " + e.Currency
}

// Table is a full set of rates against Base. FetchedAt is stamped by the converter's clock.
type Table struct {
	Base            string                     `json:"base"`
	Rates           map[string]decimal.Decimal `json:"rates"`
	SourceTimestamp time.Time                  `json:"sourceTimestamp"`
	FetchedAt       time.Time                  `json:"fetchedAt"`
}

// RateProvider fetches a fresh USD based table.
type RateProvider interface {
	FetchUSD(ctx context.Context) (Table, error)
}

// RateCache stores a single table. Get reports false when nothing fresh is cached.
type RateCache interface {
	Get(ctx context.Context) (Table, bool, error)
	Set(ctx context.Context, table Table) error
}

// Conversion is the result of a successful Convert.
type Conversion struct {
	Amount          decimal.Decimal
	Currency        string
	ConvertedAmount decimal.Decimal
	Rate            decimal.Decimal
	SourceTimestamp time.Time
}

// ConverterDeps bundles constructor inputs for the converter.
type ConverterDeps struct {
	Provider RateProvider
	Cache    RateCache
	Clock    func() time.Time
	// Meter defaults to the global meter provider.
	Meter metric.Meter
}

// Converter owns the rate cache. Concurrent misses in one process share a single fetch.
type Converter struct {
	provider RateProvider
	cache    RateCache
	clock    func() time.Time
	flight   singleflight.Group

	lookups      metric.Int64Counter
	fetchLatency metric.Float64Histogram
}

func NewConverter(deps ConverterDeps) (*Converter, error) {
	if deps.Provider == nil {
		return nil, errors.New("currency: rate provider is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	cache := deps.Cache
	if cache == nil {
		cache = NewMemoryRateCache(DefaultTTL, clock)
	}
	meter := deps.Meter
	if meter == nil {
		meter = otel.GetMeterProvider().Meter(metricNamespace)
	}
	lookups, err := meter.Int64Counter(
		"currency.rates.lookups",
		metric.WithDescription("Rate table lookups by cache outcome"),
	)
	if err != nil {
		return nil, fmt.Errorf("currency: register lookup metric: %w", err)
	}
	fetchLatency, err := meter.Float64Histogram(
		"currency.rates.fetch.latency",
		metric.WithUnit("ms"),
		metric.WithDescription("Latency in milliseconds for rate table fetches"),
	)
	if err != nil {
		return nil, fmt.Errorf("currency: register latency metric: %w", err)
	}

	return &Converter{
		provider:     deps.Provider,
		cache:        cache,
		clock:        func() time.Time { return clock().UTC() },
		lookups:      lookups,
		fetchLatency: fetchLatency,
	}, nil
}

// Convert multiplies amount (in USD) by the rate for target.
func (c *Converter) Convert(ctx context.Context, amount decimal.Decimal, target string) (Conversion, error) {
	// Exponents are checked before comparing, since Cmp rescales to the smaller exponent.
	if !amount.IsPositive() || amount.Exponent() > MaxScale || amount.Exponent() < -MaxScale || amount.GreaterThan(MaxAmount) {
		return Conversion{}, ErrInvalidAmount
	}
	target = strings.ToUpper(strings.TrimSpace(target))
	if target == "" {
		return Conversion{}, ErrMissingCurrency
	}

	table, err := c.table(ctx)
	if err != nil {
		return Conversion{}, err
	}
	rate, ok := table.Rates[target]
	if !ok {
		return Conversion{}, &UnsupportedCurrencyError{Currency: target}
	}
	return Conversion{
		Amount:          amount,
		Currency:        target,
		ConvertedAmount: amount.Mul(rate),
		Rate:            rate,
		SourceTimestamp: sourceTimestamp(table),
	}, nil
}

// sourceTimestamp falls back to the fetch time when the provider did not date its table.
func sourceTimestamp(t Table) time.Time {
	if t.SourceTimestamp.IsZero() {
		return t.FetchedAt
	}
	return t.SourceTimestamp
}

func (c *Converter) table(ctx context.Context) (Table, error) {
	logger := requestctx.Logger(ctx)
	if t, ok, err := c.cache.Get(ctx); err != nil {
		logger.Warn("currency: rate cache read failed", zap.Error(err))
	} else if ok {
		c.lookups.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", "hit")))
		return t, nil
	}
	c.lookups.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", "miss")))

	v, err, _ := c.flight.Do("usd", func() (any, error) {
		fetchCtx := context.WithoutCancel(ctx)
		start := time.Now()
		t, err := c.provider.FetchUSD(fetchCtx)
		c.fetchLatency.Record(fetchCtx, float64(time.Since(start))/float64(time.Millisecond),
			metric.WithAttributes(attribute.Bool("success", err == nil)))
		if err != nil {
			return Table{}, err
		}
		t.FetchedAt = c.clock()
		if err := c.cache.Set(fetchCtx, t); err != nil {
			logger.Warn("currency: rate cache write failed", zap.Error(err))
		}
		return t, nil
	})
	if err != nil {
		logger.Error("currency: rate fetch failed", zap.Error(err))
		return Table{}, fmt.Errorf("%w: %v", ErrRatesUnavailable, err)
	}
	return v.(Table), nil
}
