// Package mail relays transactional email through a Resend-compatible HTTP API.
package mail

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	"github.com/sobrepoxidev/sobrepoxi-sub002/internal/platform/requestctx"
)

var (
	// ErrNotConfigured indicates the relay has no provider credentials.
	ErrNotConfigured = errors.New("mail: provider not configured")
	// ErrProviderFailure wraps a rejected or failed provider call.
	ErrProviderFailure = errors.New("mail: provider request failed")
)

// Recipients decodes either a single address or a list of addresses.
type Recipients []string

func (r *Recipients) UnmarshalJSON(data []byte) error {
	var one string
	if err := json.Unmarshal(data, &one); err == nil {
		*r = splitAddresses(one)
		return nil
	}
	var many []string
	if err := json.Unmarshal(data, &many); err != nil {
		return fmt.Errorf("mail: recipients must be a string or a list of strings")
	}
	out := make([]string, 0, len(many))
	for _, m := range many {
		out = append(out, splitAddresses(m)...)
	}
	*r = out
	return nil
}

func splitAddresses(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Message is one outgoing email.
type Message struct {
	To      Recipients `json:"to" validate:"required,min=1,dive,email"`
	Bcc     Recipients `json:"bcc,omitempty" validate:"omitempty,dive,email"`
	Subject string     `json:"subject" validate:"required,max=998"`
	HTML    string     `json:"html" validate:"required"`
}

// Sender delivers a message and returns the provider's message id.
type Sender interface {
	Send(ctx context.Context, msg Message) (string, error)
}

// RelayConfig configures the HTTP relay.
type RelayConfig struct {
	Endpoint string
	APIKey   string
	From     string
	Timeout  time.Duration
}

// Relay posts messages to the provider endpoint.
type Relay struct {
	endpoint string
	apiKey   string
	from     string
	client   *http.Client
	newID    func() string
}

// RelayOption customises Relay.
type RelayOption func(*Relay)

// WithHTTPClient overrides the HTTP client used for provider calls.
func WithHTTPClient(client *http.Client) RelayOption {
	return func(r *Relay) {
		if client != nil {
			r.client = client
		}
	}
}

// WithIDGenerator overrides the idempotency key generator.
func WithIDGenerator(gen func() string) RelayOption {
	return func(r *Relay) {
		if gen != nil {
			r.newID = gen
		}
	}
}

// NewRelay builds a relay. A relay without an API key is valid but every Send returns
// ErrNotConfigured.
func NewRelay(cfg RelayConfig, opts ...RelayOption) *Relay {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	r := &Relay{
		endpoint: strings.TrimSpace(cfg.Endpoint),
		apiKey:   strings.TrimSpace(cfg.APIKey),
		from:     strings.TrimSpace(cfg.From),
		client:   &http.Client{Timeout: timeout},
		newID:    func() string { return ulid.Make().String() },
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

// Configured reports whether Send can reach the provider.
func (r *Relay) Configured() bool {
	return r.apiKey != "" && r.endpoint != "" && r.from != ""
}

type sendRequest struct {
	From    string   `json:"from"`
	To      []string `json:"to"`
	Bcc     []string `json:"bcc,omitempty"`
	Subject string   `json:"subject"`
	HTML    string   `json:"html"`
}

type sendResponse struct {
	ID      string `json:"id"`
	Message string `json:"message"`
}

func (r *Relay) Send(ctx context.Context, msg Message) (string, error) {
	if !r.Configured() {
		return "", ErrNotConfigured
	}
	if err := Validate(msg); err != nil {
		return "", err
	}

	body, err := json.Marshal(sendRequest{From: r.from, To: msg.To, Bcc: msg.Bcc, Subject: msg.Subject, HTML: msg.HTML})
	if err != nil {
		return "", fmt.Errorf("mail: encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("mail: build request: %w", err)
	}
	idempotencyKey := r.newID()
	req.Header.Set("Authorization", "Bearer "+r.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", idempotencyKey)

	resp, err := r.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrProviderFailure, err)
	}
	defer resp.Body.Close()

	var out sendResponse
	_ = json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&out)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		requestctx.Logger(ctx).Warn("mail: provider rejected message",
			zap.Int("status", resp.StatusCode),
			zap.String("provider_message", out.Message),
			zap.String("idempotency_key", idempotencyKey),
		)
		return "", fmt.Errorf("%w: status %d", ErrProviderFailure, resp.StatusCode)
	}
	requestctx.Logger(ctx).Info("mail: message sent",
		zap.String("message_id", out.ID),
		zap.Int("recipients", len(msg.To)+len(msg.Bcc)),
	)
	return out.ID, nil
}
