package middleware

import (
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"fleet-control-plane/internal/telemetry"
)

const instrumentationName = "fleet-control-plane/internal/server"

// httpRequestMetadata is the JSON shape stored in Event.Metadata for http_request events.
type httpRequestMetadata struct {
	Method     string `json:"method"`
	Route      string `json:"route"`
	StatusCode int    `json:"status_code"`
	DurationMs int64  `json:"duration_ms"`
	ClientIP   string `json:"client_ip"`
}

// Telemetry returns middleware that wraps each request in a span, records request count and
// latency, writes an access log line, and emits an http_request event.
// Emission is best-effort; if emitter is nil no events are emitted.
// skipRoutes is the set of route templates to not instrument (e.g. /healthz).
func Telemetry(emitter telemetry.EventEmitter, skipRoutes map[string]bool) func(http.Handler) http.Handler {
	tracer := otel.Tracer(instrumentationName)
	meter := otel.Meter(instrumentationName)
	requests, err := meter.Int64Counter("fleet.http.requests", metric.WithDescription("HTTP requests by route and status"))
	if err != nil {
		log.Printf("telemetry: request counter: %v", err)
	}
	latency, err := meter.Float64Histogram("fleet.http.request.duration",
		metric.WithDescription("HTTP request latency"), metric.WithUnit("ms"))
	if err != nil {
		log.Printf("telemetry: latency histogram: %v", err)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			route := routeTemplate(r)
			if skipRoutes[route] {
				next.ServeHTTP(w, r)
				return
			}
			start := time.Now()
			ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))
			ctx, span := tracer.Start(ctx, fmt.Sprintf("%s %s", r.Method, route),
				trace.WithSpanKind(trace.SpanKindServer),
				trace.WithAttributes(
					attribute.String("http.request.method", r.Method),
					attribute.String("http.route", route),
				))
			defer span.End()

			rec := newStatusRecorder(w)
			next.ServeHTTP(rec, r.WithContext(ctx))

			elapsed := time.Since(start)
			span.SetAttributes(attribute.Int("http.response.status_code", rec.status))
			if rec.status >= http.StatusInternalServerError {
				span.SetStatus(codes.Error, http.StatusText(rec.status))
			}
			attrs := metric.WithAttributes(
				attribute.String("http.request.method", r.Method),
				attribute.String("http.route", route),
				attribute.Int("http.response.status_code", rec.status),
			)
			if requests != nil {
				requests.Add(ctx, 1, attrs)
			}
			if latency != nil {
				latency.Record(ctx, float64(elapsed.Microseconds())/1000, attrs)
			}
			log.Printf("http: %s %s %d %s", r.Method, r.URL.Path, rec.status, elapsed.Round(time.Millisecond))

			if emitter != nil {
				event := telemetry.NewEvent(telemetry.EventHTTPRequest, "http_middleware", httpRequestMetadata{
					Method:     r.Method,
					Route:      route,
					StatusCode: rec.status,
					DurationMs: elapsed.Milliseconds(),
					ClientIP:   ClientIP(r),
				})
				telemetry.EmitAsync(emitter, ctx, event)
			}
		})
	}
}

// routeTemplate returns the matched gorilla/mux route template, or the raw path when unmatched.
func routeTemplate(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tpl, err := route.GetPathTemplate(); err == nil {
			return tpl
		}
	}
	return r.URL.Path
}
