package observability

import (
	"net/http"

	"go.opentelemetry.io/otel"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/sobrepoxidev/sobrepoxi-sub002/internal/platform/observability"

// TraceMiddleware starts a server span per request using the globally registered tracer provider.
// Without a configured provider the span is a no-op.
func TraceMiddleware() func(http.Handler) http.Handler {
	tracer := otel.Tracer(tracerName)
	return func(next http.Handler) http.Handler {
		if next == nil {
			next = http.HandlerFunc(func(http.ResponseWriter, *http.Request) {})
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, span := tracer.Start(r.Context(), r.Method+" "+SanitizeRoute(r.URL.Path), trace.WithSpanKind(trace.SpanKindServer))
			defer span.End()
			span.SetAttributes(
				semconv.HTTPRequestMethodKey.String(SanitizeMethod(r.Method)),
				semconv.URLPath(SanitizeRoute(r.URL.Path)),
				semconv.ServerAddress(r.Host),
			)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
