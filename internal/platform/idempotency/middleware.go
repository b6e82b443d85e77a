package idempotency

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/sobrepoxidev/sobrepoxi-sub002/internal/platform/httpx"
	"github.com/sobrepoxidev/sobrepoxi-sub002/internal/platform/requestctx"
)

// HeaderName carries the client key; ReplayHeader marks a response served from the store.
const (
	HeaderName   = "Idempotency-Key"
	ReplayHeader = "Idempotent-Replayed"
)

const (
	maxKeyLength       = 255
	defaultMaxBodySize = 1 << 20
)

type middlewareConfig struct {
	ttl         time.Duration
	maxBodySize int64
	clock       func() time.Time
}

// MiddlewareOption customises Middleware.
type MiddlewareOption func(*middlewareConfig)

func WithTTL(ttl time.Duration) MiddlewareOption {
	return func(cfg *middlewareConfig) {
		if ttl > 0 {
			cfg.ttl = ttl
		}
	}
}

func WithMaxBodySize(n int64) MiddlewareOption {
	return func(cfg *middlewareConfig) {
		if n > 0 {
			cfg.maxBodySize = n
		}
	}
}

func WithClock(clock func() time.Time) MiddlewareOption {
	return func(cfg *middlewareConfig) {
		if clock != nil {
			cfg.clock = clock
		}
	}
}

// Middleware replays the stored response when a POST repeats a key already seen with the same
// body. Requests without the header pass through untouched. Server errors are not stored so the
// client may retry them under the same key.
func Middleware(store Store, opts ...MiddlewareOption) func(http.Handler) http.Handler {
	if store == nil {
		return func(next http.Handler) http.Handler { return next }
	}
	cfg := middlewareConfig{
		ttl:         DefaultTTL,
		maxBodySize: defaultMaxBodySize,
		clock:       time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost {
				next.ServeHTTP(w, r)
				return
			}
			key := strings.TrimSpace(r.Header.Get(HeaderName))
			if key == "" {
				next.ServeHTTP(w, r)
				return
			}
			ctx := r.Context()
			if len(key) > maxKeyLength {
				httpx.WriteError(ctx, w, httpx.BadRequest("invalid_idempotency_key", "idempotency key is too long"))
				return
			}

			body, err := readAndReplayBody(w, r, cfg.maxBodySize)
			if err != nil {
				httpx.WriteError(ctx, w, httpx.BadRequest("invalid_payload", "request body could not be read"))
				return
			}

			logger := requestctx.Logger(ctx).With(zap.String("idempotency_key", key))
			fingerprint := requestFingerprint(r, body)
			reservation, err := store.Reserve(ctx, key, fingerprint, cfg.clock(), cfg.ttl)
			switch {
			case errors.Is(err, ErrFingerprintMismatch):
				httpx.WriteError(ctx, w, httpx.NewError("idempotency_key_conflict", "idempotency key already used for a different request", http.StatusConflict))
				return
			case err != nil:
				logger.Error("idempotency: reserve failed", zap.Error(err))
				httpx.WriteError(ctx, w, httpx.NewError("idempotency_store_error", "unable to process idempotency key", http.StatusInternalServerError))
				return
			}

			switch reservation.State {
			case ReservationStateCompleted:
				writeStoredResponse(w, reservation.Record)
				return
			case ReservationStatePending:
				httpx.WriteError(ctx, w, httpx.NewError("idempotency_in_progress", "another request is processing this idempotency key", http.StatusConflict))
				return
			}

			// A panicking handler must not leave the key pending; the panic keeps unwinding.
			handled := false
			defer func() {
				if handled {
					return
				}
				if err := store.Release(context.WithoutCancel(ctx), key); err != nil {
					logger.Warn("idempotency: release after panic failed", zap.Error(err))
				}
			}()

			rec := newResponseRecorder()
			next.ServeHTTP(rec, r)
			handled = true

			if rec.Status() >= http.StatusInternalServerError {
				if err := store.Release(ctx, key); err != nil {
					logger.Warn("idempotency: release failed", zap.Error(err))
				}
			} else {
				resp := Response{Status: rec.Status(), Headers: rec.header, Body: rec.body.Bytes()}
				if err := store.SaveResponse(ctx, key, fingerprint, resp, cfg.clock(), cfg.ttl); err != nil {
					logger.Warn("idempotency: save response failed", zap.Error(err))
					_ = store.Release(ctx, key)
				}
			}
			rec.flush(w)
		})
	}
}

func readAndReplayBody(w http.ResponseWriter, r *http.Request, limit int64) ([]byte, error) {
	if r.Body == nil {
		return nil, nil
	}
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, limit))
	if err != nil {
		return nil, err
	}
	_ = r.Body.Close()
	r.Body = io.NopCloser(bytes.NewReader(data))
	return data, nil
}

func requestFingerprint(r *http.Request, body []byte) string {
	var b strings.Builder
	b.WriteString(r.Method)
	b.WriteString("|")
	b.WriteString(r.URL.Path)
	b.WriteString("|")
	b.WriteString(r.URL.RawQuery)
	b.WriteString("|")
	b.WriteString(sha256Hex(body))
	return sha256Hex([]byte(b.String()))
}

func writeStoredResponse(w http.ResponseWriter, rec Record) {
	for name, values := range rec.ResponseHeaders {
		for _, v := range values {
			w.Header().Add(name, v)
		}
	}
	w.Header().Set(ReplayHeader, "true")
	status := rec.ResponseStatus
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	if len(rec.ResponseBody) > 0 {
		_, _ = w.Write(rec.ResponseBody)
	}
}

type responseRecorder struct {
	header http.Header
	status int
	body   bytes.Buffer
}

func newResponseRecorder() *responseRecorder {
	return &responseRecorder{header: make(http.Header)}
}

func (r *responseRecorder) Header() http.Header { return r.header }

func (r *responseRecorder) WriteHeader(status int) {
	if r.status == 0 {
		r.status = status
	}
}

func (r *responseRecorder) Write(data []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.body.Write(data)
}

func (r *responseRecorder) Status() int {
	if r.status == 0 {
		return http.StatusOK
	}
	return r.status
}

func (r *responseRecorder) flush(w http.ResponseWriter) {
	for name, values := range r.header {
		w.Header()[name] = values
	}
	w.WriteHeader(r.Status())
	if r.body.Len() > 0 {
		_, _ = w.Write(r.body.Bytes())
	}
}
