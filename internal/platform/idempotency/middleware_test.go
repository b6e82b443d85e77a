package idempotency

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

var fixedTime = time.Date(2024, time.January, 1, 12, 0, 0, 0, time.UTC)

type countingHandler struct {
	calls  int
	status int
}

func (h *countingHandler) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	h.calls++
	status := h.status
	if status == 0 {
		status = http.StatusOK
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(`{"success":true,"id":"msg_1"}`))
}

func post(t *testing.T, h http.Handler, key, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/email", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if key != "" {
		req.Header.Set(HeaderName, key)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func errorCode(t *testing.T, raw []byte) string {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(raw, &body); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	code, _ := body["code"].(string)
	return code
}

func TestMiddlewareWithoutHeaderPassesThrough(t *testing.T) {
	next := &countingHandler{}
	handler := Middleware(NewMemoryStore())(next)

	post(t, handler, "", `{"a":1}`)
	post(t, handler, "", `{"a":1}`)

	if next.calls != 2 {
		t.Fatalf("expected 2 handler calls, got %d", next.calls)
	}
}

func TestMiddlewareReplaysStoredResponse(t *testing.T) {
	next := &countingHandler{}
	handler := Middleware(NewMemoryStore(), WithClock(func() time.Time { return fixedTime }))(next)

	first := post(t, handler, "key-1", `{"a":1}`)
	second := post(t, handler, "key-1", `{"a":1}`)

	if next.calls != 1 {
		t.Fatalf("expected handler to run once, got %d", next.calls)
	}
	if second.Code != http.StatusOK {
		t.Fatalf("expected replayed 200, got %d", second.Code)
	}
	if second.Header().Get(ReplayHeader) != "true" {
		t.Fatal("expected replay header")
	}
	if first.Header().Get(ReplayHeader) != "" {
		t.Fatal("first response must not be marked as replay")
	}
	if second.Header().Get("Content-Type") != "application/json" {
		t.Fatalf("expected stored content type, got %q", second.Header().Get("Content-Type"))
	}
	if second.Body.String() != first.Body.String() {
		t.Fatalf("expected body %q, got %q", first.Body.String(), second.Body.String())
	}
}

func TestMiddlewareRejectsReusedKeyWithDifferentBody(t *testing.T) {
	next := &countingHandler{}
	handler := Middleware(NewMemoryStore())(next)

	post(t, handler, "key-1", `{"a":1}`)
	rr := post(t, handler, "key-1", `{"a":2}`)

	if rr.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rr.Code)
	}
	if code := errorCode(t, rr.Body.Bytes()); code != "idempotency_key_conflict" {
		t.Fatalf("unexpected code %q", code)
	}
	if next.calls != 1 {
		t.Fatalf("expected handler to run once, got %d", next.calls)
	}
}

func TestMiddlewareReportsInFlightKey(t *testing.T) {
	store := NewMemoryStore()
	next := &countingHandler{}
	handler := Middleware(store, WithClock(func() time.Time { return fixedTime }))(next)

	req := httptest.NewRequest(http.MethodPost, "/api/email", strings.NewReader(`{"a":1}`))
	fingerprint := requestFingerprint(req, []byte(`{"a":1}`))
	if _, err := store.Reserve(context.Background(), "key-1", fingerprint, fixedTime, time.Hour); err != nil {
		t.Fatalf("reserve: %v", err)
	}

	rr := post(t, handler, "key-1", `{"a":1}`)
	if rr.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rr.Code)
	}
	if code := errorCode(t, rr.Body.Bytes()); code != "idempotency_in_progress" {
		t.Fatalf("unexpected code %q", code)
	}
	if next.calls != 0 {
		t.Fatalf("handler must not run, got %d calls", next.calls)
	}
}

func TestMiddlewareDoesNotStoreServerErrors(t *testing.T) {
	next := &countingHandler{status: http.StatusInternalServerError}
	handler := Middleware(NewMemoryStore())(next)

	first := post(t, handler, "key-1", `{"a":1}`)
	if first.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", first.Code)
	}

	next.status = http.StatusOK
	second := post(t, handler, "key-1", `{"a":1}`)
	if second.Code != http.StatusOK {
		t.Fatalf("expected retry to reach handler, got %d", second.Code)
	}
	if next.calls != 2 {
		t.Fatalf("expected 2 handler calls, got %d", next.calls)
	}
}

func TestMiddlewareRejectsOverlongKey(t *testing.T) {
	handler := Middleware(NewMemoryStore())(&countingHandler{})

	rr := post(t, handler, strings.Repeat("k", maxKeyLength+1), `{}`)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
	if code := errorCode(t, rr.Body.Bytes()); code != "invalid_idempotency_key" {
		t.Fatalf("unexpected code %q", code)
	}
}

func TestMiddlewareIgnoresNonPost(t *testing.T) {
	next := &countingHandler{}
	handler := Middleware(NewMemoryStore())(next)

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodGet, "/api/convert", nil)
		req.Header.Set(HeaderName, "key-1")
		handler.ServeHTTP(httptest.NewRecorder(), req)
	}
	if next.calls != 2 {
		t.Fatalf("expected 2 handler calls, got %d", next.calls)
	}
}

func TestMiddlewareReleasesKeyWhenHandlerPanics(t *testing.T) {
	calls := 0
	next := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		if calls == 1 {
			panic("relay exploded")
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"success":true}`))
	})
	inner := Middleware(NewMemoryStore())(next)
	recovering := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if recover() != nil {
				w.WriteHeader(http.StatusInternalServerError)
			}
		}()
		inner.ServeHTTP(w, r)
	})

	first := post(t, recovering, "key-1", `{"a":1}`)
	if first.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 from recovered panic, got %d", first.Code)
	}

	second := post(t, recovering, "key-1", `{"a":1}`)
	if second.Code != http.StatusOK {
		t.Fatalf("expected retry to reach handler, got %d: %s", second.Code, second.Body.String())
	}
	if calls != 2 {
		t.Fatalf("expected 2 handler calls, got %d", calls)
	}
}
