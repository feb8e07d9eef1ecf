// Package telemetry wires Sentry error reporting and tracing.
package telemetry

import (
	"context"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/sirupsen/logrus"
)

const serverName = "botstudio"

const flushTimeout = 5 * time.Second

// Transactions that are never sampled: probes and long-lived connections.
var unsampled = map[string]bool{
	"GET /health":               true,
	"GET /metrics":              true,
	"GET /notifications/stream": true,
}

// Config holds the configuration for Sentry initialization.
type Config struct {
	DSN              string
	Environment      string
	TracesSampleRate float64
	Debug            bool
}

// Init configures the global Sentry client and returns a flush function.
// An empty DSN or a client error leaves Sentry disabled.
func Init(cfg Config, log logrus.FieldLogger) (func(), error) {
	if cfg.DSN == "" {
		return func() {}, nil
	}
	if cfg.Environment == "" {
		cfg.Environment = "development"
	}
	if cfg.TracesSampleRate == 0 {
		cfg.TracesSampleRate = 1.0
	}

	err := sentry.Init(sentry.ClientOptions{
		Dsn:              cfg.DSN,
		Environment:      cfg.Environment,
		EnableTracing:    true,
		TracesSampleRate: cfg.TracesSampleRate,
		Debug:            cfg.Debug,
		ServerName:       serverName,
		TracesSampler: sentry.TracesSampler(func(sc sentry.SamplingContext) float64 {
			return sampleRate(sc.Span, cfg.TracesSampleRate)
		}),
	})
	if err != nil {
		log.WithError(err).Warn("sentry: failed to initialize, continuing without tracing")
		return func() {}, nil
	}

	log.WithFields(logrus.Fields{
		"environment": cfg.Environment,
		"sample_rate": cfg.TracesSampleRate,
	}).Info("sentry: tracing initialized")
	return func() { sentry.Flush(flushTimeout) }, nil
}

// sampleRate follows the parent's decision for child spans.
func sampleRate(span *sentry.Span, rate float64) float64 {
	if unsampled[span.Name] {
		return 0
	}
	var root sentry.SpanID
	if span.ParentSpanID != root {
		if span.Sampled.Bool() {
			return 1
		}
		return 0
	}
	return rate
}

// SpanAttributes tags a service span with the tenant and the resource it touches.
type SpanAttributes struct {
	WorkspaceID string
	UserID      string
	ResourceID  string
	Operation   string
}

// Span is a started Sentry span. A nil inner span makes every method a no-op.
type Span struct {
	inner *sentry.Span
}

func (s *Span) End() {
	if s.inner != nil {
		s.inner.Finish()
	}
}

// SetError marks the span failed and reports err.
func (s *Span) SetError(err error) {
	if s.inner == nil || err == nil {
		return
	}
	s.inner.Status = sentry.SpanStatusInternalError
	CaptureError(s.inner.Context(), err)
}

// StartSpan starts a child of the span in ctx, or a new transaction when ctx has none.
func StartSpan(ctx context.Context, name string, attrs SpanAttributes) (context.Context, *Span) {
	var span *sentry.Span
	if parent := sentry.SpanFromContext(ctx); parent != nil {
		span = parent.StartChild(name)
	} else {
		span = sentry.StartSpan(ctx, name, sentry.WithTransactionName(name))
	}

	if attrs.WorkspaceID != "" {
		span.SetTag("workspace_id", attrs.WorkspaceID)
	}
	if attrs.UserID != "" {
		span.SetTag("user_id", attrs.UserID)
	}
	if attrs.ResourceID != "" {
		span.SetData("resource_id", attrs.ResourceID)
	}
	if attrs.Operation != "" {
		span.SetData("operation", attrs.Operation)
	}

	return span.Context(), &Span{inner: span}
}

// StartTask starts the root transaction of a background task and gives it its
// own hub so that scope data does not leak between concurrent tasks.
func StartTask(ctx context.Context, taskType, taskID string) (context.Context, *Span) {
	hub := sentry.CurrentHub().Clone()
	hub.Scope().SetTag("task_type", taskType)
	if taskID != "" {
		hub.Scope().SetTag("task_id", taskID)
	}
	ctx = sentry.SetHubOnContext(ctx, hub)

	span := sentry.StartSpan(ctx, "queue.task",
		sentry.WithTransactionName("task "+taskType),
		sentry.WithTransactionSource(sentry.SourceTask),
	)
	return span.Context(), &Span{inner: span}
}

// CaptureError reports err through the hub in ctx, falling back to the global hub.
func CaptureError(ctx context.Context, err error) {
	if hub := sentry.GetHubFromContext(ctx); hub != nil {
		hub.CaptureException(err)
		return
	}
	sentry.CaptureException(err)
}
