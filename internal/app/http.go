package app

import (
	"errors"
	"net/http"
	"strings"

	"github.com/cam3ron2/commit-ingest/internal/telemetry"
	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Routes are the handlers mounted on the service router.
type Routes struct {
	WebhookPath string
	Webhook     http.Handler
	Metrics     http.Handler
	Health      http.Handler
}

// NewHTTPHandler wires the webhook, metrics and health endpoints on a single router.
func NewHTTPHandler(routes Routes) http.Handler {
	router := chi.NewRouter()
	mode := telemetry.CurrentMode()

	webhookPath := strings.TrimSpace(routes.WebhookPath)
	if webhookPath == "" {
		webhookPath = "/webhook/github/v3"
	}
	if routes.Webhook != nil {
		router.Method(http.MethodPost, webhookPath, wrapHTTPHandler(mode, "webhook", routes.Webhook))
	}
	router.Handle("/metrics", wrapHTTPHandler(mode, "metrics", routes.Metrics))
	router.Handle("/livez", wrapHTTPHandler(mode, "livez", routes.Health))
	router.Handle("/readyz", wrapHTTPHandler(mode, "readyz", routes.Health))
	router.Handle("/healthz", wrapHTTPHandler(mode, "healthz", routes.Health))
	return router
}

// wrapHTTPHandler opens a server span per request unless tracing is off.
func wrapHTTPHandler(mode telemetry.Mode, route string, handler http.Handler) http.Handler {
	if handler == nil {
		handler = http.NotFoundHandler()
	}
	if mode == telemetry.ModeOff {
		return handler
	}

	tracer := otel.Tracer(telemetry.ServiceName + "/internal/app")
	spanName := "http.server." + route
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), spanName,
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(
				attribute.String("http.method", r.Method),
				attribute.String("http.target", r.URL.Path),
				attribute.String("github.delivery", r.Header.Get(deliveryHeader)),
			),
		)

		recorder := &statusCapturingResponseWriter{ResponseWriter: w, status: http.StatusOK}
		handler.ServeHTTP(recorder, r.WithContext(ctx))
		span.SetAttributes(attribute.Int("http.status_code", recorder.status))

		var err error
		if recorder.status >= http.StatusInternalServerError {
			err = errors.New(http.StatusText(recorder.status))
		}
		telemetry.EndSpan(span, err, "request completed")
	})
}

type statusCapturingResponseWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusCapturingResponseWriter) WriteHeader(statusCode int) {
	w.status = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}
