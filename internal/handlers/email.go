package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/sobrepoxidev/sobrepoxi-sub002/internal/mail"
	"github.com/sobrepoxidev/sobrepoxi-sub002/internal/platform/httpx"
	"github.com/sobrepoxidev/sobrepoxi-sub002/internal/platform/idempotency"
	"github.com/sobrepoxidev/sobrepoxi-sub002/internal/platform/requestctx"
)

const maxEmailRequestBody = 256 << 10

// OrderMailer sends the localized order confirmation.
type OrderMailer interface {
	Send(ctx context.Context, o mail.OrderConfirmation) (string, error)
}

// EmailHandlers relays transactional email.
type EmailHandlers struct {
	sender mail.Sender
	orders OrderMailer
	replay idempotency.Store
}

// EmailOption customises EmailHandlers.
type EmailOption func(*EmailHandlers)

// WithIdempotencyStore replays responses for retried sends that repeat an Idempotency-Key.
func WithIdempotencyStore(store idempotency.Store) EmailOption {
	return func(h *EmailHandlers) {
		h.replay = store
	}
}

func NewEmailHandlers(sender mail.Sender, orders OrderMailer, opts ...EmailOption) *EmailHandlers {
	h := &EmailHandlers{sender: sender, orders: orders}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

func (h *EmailHandlers) Routes(r chi.Router) {
	if h == nil {
		return
	}
	r.Route("/email", func(rt chi.Router) {
		if h.replay != nil {
			rt.Use(idempotency.Middleware(h.replay))
		}
		rt.Post("/", h.send)
		if h.orders != nil {
			rt.Post("/order-confirmation", h.orderConfirmation)
		}
	})
}

type emailRequest struct {
	To      mail.Recipients `json:"to"`
	Subject string          `json:"subject"`
	HTML    string          `json:"html"`
}

type emailResponse struct {
	Success bool   `json:"success"`
	ID      string `json:"id,omitempty"`
}

func (h *EmailHandlers) send(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var payload emailRequest
	if !decodeJSONBody(w, r, &payload) {
		return
	}
	msg := mail.Message{To: payload.To, Subject: payload.Subject, HTML: payload.HTML}
	if err := mail.Validate(msg); err != nil {
		httpx.WriteError(ctx, w, mailError(ctx, err))
		return
	}

	id, err := h.sender.Send(ctx, msg)
	if err != nil {
		httpx.WriteError(ctx, w, mailError(ctx, err))
		return
	}
	httpx.WriteJSON(w, http.StatusOK, emailResponse{Success: true, ID: id})
}

func (h *EmailHandlers) orderConfirmation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var payload mail.OrderConfirmation
	if !decodeJSONBody(w, r, &payload) {
		return
	}
	id, err := h.orders.Send(ctx, payload)
	if err != nil {
		httpx.WriteError(ctx, w, mailError(ctx, err))
		return
	}
	httpx.WriteJSON(w, http.StatusOK, emailResponse{Success: true, ID: id})
}

// decodeJSONBody writes a 400 envelope and returns false when the body is not a single JSON
// object of the expected shape.
func decodeJSONBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	ctx := r.Context()
	reader := http.MaxBytesReader(w, r.Body, maxEmailRequestBody)
	defer reader.Close()

	decoder := json.NewDecoder(reader)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		httpx.WriteError(ctx, w, httpx.BadRequest("invalid_request", fmt.Sprintf("invalid request body: %v", err)))
		return false
	}
	if err := decoder.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		httpx.WriteError(ctx, w, httpx.BadRequest("invalid_request", "invalid request body: extraneous data"))
		return false
	}
	return true
}

func mailError(ctx context.Context, err error) httpx.Error {
	var invalid *mail.ValidationError
	switch {
	case errors.As(err, &invalid):
		return httpx.BadRequest("invalid_payload", invalid.Error()).
			WithDetails(map[string]any{"fields": invalid.Fields})
	case errors.Is(err, mail.ErrNotConfigured):
		requestctx.Logger(ctx).Error("mail: relay not configured")
		return httpx.NewError("mail_not_configured", "email service not configured", http.StatusInternalServerError)
	case errors.Is(err, mail.ErrProviderFailure):
		requestctx.Logger(ctx).Error("mail: send failed", zap.Error(err))
		return httpx.NewError("mail_failed", "failed to send email", http.StatusInternalServerError)
	default:
		requestctx.Logger(ctx).Error("mail: unexpected error", zap.Error(err))
		return httpx.NewError("mail_failed", "failed to send email", http.StatusInternalServerError)
	}
}
