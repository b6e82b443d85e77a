package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/sobrepoxidev/sobrepoxi-sub002/internal/currency"
	"github.com/sobrepoxidev/sobrepoxi-sub002/internal/platform/httpx"
)

const (
	convertCacheControl = "public, s-maxage=1800"
	maxAmountLength     = 32
)

// Converter is the currency conversion dependency of the convert endpoint.
type Converter interface {
	Convert(ctx context.Context, amount decimal.Decimal, target string) (currency.Conversion, error)
}

// ConvertHandlers serves GET /api/convert.
type ConvertHandlers struct {
	converter Converter
}

func NewConvertHandlers(converter Converter) *ConvertHandlers {
	return &ConvertHandlers{converter: converter}
}

// Routes registers the conversion endpoint under the API group.
func (h *ConvertHandlers) Routes(r chi.Router) {
	if h == nil {
		return
	}
	r.Get("/convert", h.convert)
}

type conversionResponse struct {
	Amount          json.Number `json:"amount"`
	Currency        string      `json:"currency"`
	ConvertedAmount json.Number `json:"convertedAmount"`
	Rate            json.Number `json:"rate"`
	SourceTimestamp string      `json:"sourceTimestamp"`
}

func (h *ConvertHandlers) convert(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	query := r.URL.Query()

	raw := strings.TrimSpace(query.Get("amount"))
	if len(raw) > maxAmountLength {
		httpx.WriteError(ctx, w, httpx.BadRequest("invalid_amount", currency.ErrInvalidAmount.Error()))
		return
	}
	amount, err := decimal.NewFromString(raw)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.BadRequest("invalid_amount", currency.ErrInvalidAmount.Error()))
		return
	}

	result, err := h.converter.Convert(ctx, amount, query.Get("to"))
	if err != nil {
		httpx.WriteError(ctx, w, conversionError(err))
		return
	}

	body := conversionResponse{
		Amount:          json.Number(result.Amount.String()),
		Currency:        result.Currency,
		ConvertedAmount: json.Number(result.ConvertedAmount.String()),
		Rate:            json.Number(result.Rate.String()),
		SourceTimestamp: result.SourceTimestamp.UTC().Format(time.RFC3339),
	}
	w.Header().Set("Cache-Control", convertCacheControl)
	httpx.WriteJSON(w, http.StatusOK, body)
}

func conversionError(err error) httpx.Error {
	var unsupported *currency.UnsupportedCurrencyError
	switch {
	case errors.Is(err, currency.ErrInvalidAmount):
		return httpx.BadRequest("invalid_amount", err.Error())
	case errors.Is(err, currency.ErrMissingCurrency):
		return httpx.BadRequest("missing_currency", err.Error())
	case errors.As(err, &unsupported):
		return httpx.BadRequest("unsupported_currency", unsupported.Error())
	case errors.Is(err, currency.ErrRatesUnavailable):
		return httpx.NewError("rates_unavailable", currency.ErrRatesUnavailable.Error(), http.StatusBadGateway)
	default:
		return httpx.NewError("conversion_failed", "conversion failed", http.StatusInternalServerError)
	}
}
