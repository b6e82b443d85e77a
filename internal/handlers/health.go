package handlers

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/sobrepoxidev/sobrepoxi-sub002/internal/platform/httpx"
	"github.com/sobrepoxidev/sobrepoxi-sub002/internal/platform/requestctx"
)

const (
	healthStatusOK       = "ok"
	healthStatusDegraded = "degraded"
	defaultReadyTimeout  = 2 * time.Second
)

// BuildInfo describes the running binary.
type BuildInfo struct {
	Version     string
	CommitSHA   string
	Environment string
	StartedAt   time.Time
}

// Pinger checks a backing dependency.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandlers serves the liveness and readiness probes.
type HealthHandlers struct {
	build   BuildInfo
	clock   func() time.Time
	checks  map[string]Pinger
	order   []string
	timeout time.Duration
}

// HealthOption customises HealthHandlers.
type HealthOption func(*HealthHandlers)

// NewHealthHandlers returns probes with no readiness checks unless configured.
func NewHealthHandlers(opts ...HealthOption) *HealthHandlers {
	h := &HealthHandlers{
		clock:   time.Now,
		checks:  map[string]Pinger{},
		timeout: defaultReadyTimeout,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	if h.build.Version == "" {
		h.build.Version = "dev"
	}
	if h.build.StartedAt.IsZero() {
		h.build.StartedAt = h.clock()
	}
	return h
}

// WithHealthBuildInfo sets the build metadata reported by both probes.
func WithHealthBuildInfo(info BuildInfo) HealthOption {
	return func(h *HealthHandlers) {
		h.build = info
	}
}

// WithHealthClock overrides the time source.
func WithHealthClock(clock func() time.Time) HealthOption {
	return func(h *HealthHandlers) {
		if clock != nil {
			h.clock = clock
		}
	}
}

// WithHealthCheck registers a named readiness dependency.
func WithHealthCheck(name string, p Pinger) HealthOption {
	return func(h *HealthHandlers) {
		if p == nil || name == "" {
			return
		}
		if _, exists := h.checks[name]; !exists {
			h.order = append(h.order, name)
		}
		h.checks[name] = p
	}
}

// WithHealthTimeout bounds each readiness check.
func WithHealthTimeout(d time.Duration) HealthOption {
	return func(h *HealthHandlers) {
		if d > 0 {
			h.timeout = d
		}
	}
}

type healthPayload struct {
	Status      string            `json:"status"`
	Version     string            `json:"version"`
	CommitSHA   string            `json:"commitSha,omitempty"`
	Environment string            `json:"environment,omitempty"`
	Uptime      string            `json:"uptime"`
	Timestamp   string            `json:"timestamp"`
	Checks      map[string]string `json:"checks,omitempty"`
}

func (h *HealthHandlers) payload(status string) healthPayload {
	now := h.clock().UTC()
	return healthPayload{
		Status:      status,
		Version:     h.build.Version,
		CommitSHA:   h.build.CommitSHA,
		Environment: h.build.Environment,
		Uptime:      now.Sub(h.build.StartedAt).Round(time.Second).String(),
		Timestamp:   now.Format(time.RFC3339),
	}
}

// Healthz reports liveness without touching dependencies.
func (h *HealthHandlers) Healthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Cache-Control", "no-store")
	httpx.WriteJSON(w, http.StatusOK, h.payload(healthStatusOK))
}

// Readyz pings every registered dependency and answers 503 when any fails.
func (h *HealthHandlers) Readyz(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	status := healthStatusOK
	results := make(map[string]string, len(h.order))

	for _, name := range h.order {
		checkCtx, cancel := context.WithTimeout(ctx, h.timeout)
		err := h.checks[name].Ping(checkCtx)
		cancel()
		if err != nil {
			requestctx.Logger(ctx).Warn("readiness check failed", zap.String("check", name), zap.Error(err))
			results[name] = "error"
			status = healthStatusDegraded
			continue
		}
		results[name] = healthStatusOK
	}

	body := h.payload(status)
	body.Checks = results
	code := http.StatusOK
	if status != healthStatusOK {
		code = http.StatusServiceUnavailable
	}
	w.Header().Set("Cache-Control", "no-store")
	httpx.WriteJSON(w, code, body)
}
