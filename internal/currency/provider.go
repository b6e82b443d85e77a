package currency

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/sobrepoxidev/sobrepoxi-sub002/internal/platform/requestctx"
)

const (
	DefaultKeyedBaseURL = "https://v6.exchangerate-api.com/v6"
	DefaultPublicURL    = "https://open.er-api.com/v6/latest/USD"

	defaultFetchTimeout = 5 * time.Second
	maxBodyBytes        = 1 << 20
)

var tracer = otel.Tracer("github.com/sobrepoxidev/sobrepoxi-sub002/internal/currency")

// ErrProviderResponse indicates a non-2xx status or a payload not marked successful.
var ErrProviderResponse = errors.New("currency: provider rejected request")

// HTTPRateProvider fetches rates from the keyed provider when an API key is set and falls back
// to the public provider on any failure.
type HTTPRateProvider struct {
	client    *http.Client
	apiKey    string
	keyedBase string
	publicURL string
	timeout   time.Duration
}

// ProviderOption customises HTTPRateProvider.
type ProviderOption func(*HTTPRateProvider)

// WithHTTPClient overrides the HTTP client used for fetches.
func WithHTTPClient(client *http.Client) ProviderOption {
	return func(p *HTTPRateProvider) {
		if client != nil {
			p.client = client
		}
	}
}

// WithAPIKey enables the keyed provider.
func WithAPIKey(key string) ProviderOption {
	return func(p *HTTPRateProvider) { p.apiKey = strings.TrimSpace(key) }
}

// WithKeyedBaseURL overrides the keyed provider base; the key and "/latest/USD" are appended.
func WithKeyedBaseURL(base string) ProviderOption {
	return func(p *HTTPRateProvider) {
		if base = strings.TrimRight(strings.TrimSpace(base), "/"); base != "" {
			p.keyedBase = base
		}
	}
}

// WithPublicURL overrides the public provider URL.
func WithPublicURL(u string) ProviderOption {
	return func(p *HTTPRateProvider) {
		if u = strings.TrimSpace(u); u != "" {
			p.publicURL = u
		}
	}
}

// WithFetchTimeout bounds each provider request.
func WithFetchTimeout(d time.Duration) ProviderOption {
	return func(p *HTTPRateProvider) {
		if d > 0 {
			p.timeout = d
		}
	}
}

func NewHTTPRateProvider(opts ...ProviderOption) *HTTPRateProvider {
	p := &HTTPRateProvider{
		client:    &http.Client{Timeout: 10 * time.Second},
		keyedBase: DefaultKeyedBaseURL,
		publicURL: DefaultPublicURL,
		timeout:   defaultFetchTimeout,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	return p
}

func (p *HTTPRateProvider) FetchUSD(ctx context.Context) (Table, error) {
	if p.apiKey != "" {
		t, err := p.fetch(ctx, "keyed", p.keyedBase+"/"+p.apiKey+"/latest/USD")
		if err == nil {
			return t, nil
		}
		requestctx.Logger(ctx).Warn("currency: keyed provider failed, using public provider", zap.Error(err))
	}
	return p.fetch(ctx, "public", p.publicURL)
}

// ratesPayload covers both providers: the keyed one reports conversion_rates, the public one rates.
type ratesPayload struct {
	Result             string                     `json:"result"`
	BaseCode           string                     `json:"base_code"`
	TimeLastUpdateUnix int64                      `json:"time_last_update_unix"`
	ConversionRates    map[string]decimal.Decimal `json:"conversion_rates"`
	Rates              map[string]decimal.Decimal `json:"rates"`
	ErrorType          string                     `json:"error-type"`
}

func (p *HTTPRateProvider) fetch(ctx context.Context, source, url string) (Table, error) {
	ctx, span := tracer.Start(ctx, "currency.fetch_rates",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("rates.source", source)),
	)
	defer span.End()

	t, err := p.do(ctx, url)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Table{}, fmt.Errorf("%s provider: %w", source, err)
	}
	span.SetAttributes(attribute.Int("rates.count", len(t.Rates)))
	return t, nil
}

func (p *HTTPRateProvider) do(ctx context.Context, url string) (Table, error) {
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Table{}, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return Table{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))
		return Table{}, fmt.Errorf("%w: status %d", ErrProviderResponse, resp.StatusCode)
	}

	var payload ratesPayload
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodyBytes)).Decode(&payload); err != nil {
		return Table{}, fmt.Errorf("decode rates: %w", err)
	}
	if payload.Result != "success" {
		return Table{}, fmt.Errorf("%w: result %q %s", ErrProviderResponse, payload.Result, payload.ErrorType)
	}
	rates := payload.ConversionRates
	if len(rates) == 0 {
		rates = payload.Rates
	}
	if len(rates) == 0 {
		return Table{}, fmt.Errorf("%w: empty rate table", ErrProviderResponse)
	}

	base := strings.ToUpper(payload.BaseCode)
	if base == "" {
		base = "USD"
	}
	t := Table{Base: base, Rates: make(map[string]decimal.Decimal, len(rates))}
	for code, rate := range rates {
		t.Rates[strings.ToUpper(code)] = rate
	}
	if payload.TimeLastUpdateUnix > 0 {
		t.SourceTimestamp = time.Unix(payload.TimeLastUpdateUnix, 0).UTC()
	}
	return t, nil
}
