package httpmiddleware

import (
	"net/http"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Telemetry provides the OpenTelemetry providers, as *app.Telemetry does.
type Telemetry interface {
	TracerProvider() trace.TracerProvider
	MeterProvider() metric.MeterProvider
}

// Instrument traces and measures requests with otelhttp. Once the router has
// matched, the span is renamed to "METHOD pattern" and the route is added to
// span and metric attributes, keeping cardinality bounded by route count.
func Instrument(service string, m Telemetry) Middleware {
	return func(next http.Handler) http.Handler {
		labeled := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r)

			pattern := RoutePattern(r)
			if pattern == "" {
				return
			}
			route := attribute.String("http.route", pattern)
			span := trace.SpanFromContext(r.Context())
			span.SetName(r.Method + " " + pattern)
			span.SetAttributes(route)
			if l, ok := otelhttp.LabelerFromContext(r.Context()); ok {
				l.Add(route)
			}
		})
		return otelhttp.NewHandler(labeled, service,
			otelhttp.WithTracerProvider(m.TracerProvider()),
			otelhttp.WithMeterProvider(m.MeterProvider()),
		)
	}
}
