package api

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	tracerName         = "pulseboard/api"
	triggerSpanName    = "pulseboard.workflow.trigger"
	triggerEventName   = "workflow.trigger.metrics"
	triggerEventDomain = "pulseboard.notifications"
	triggerRoute       = "/api/workflow/trigger"
)

// triggerMetrics collects one trigger request's timings and emits them as a
// span plus a structured observability event.
type triggerMetrics struct {
	logger       *log.Logger
	span         trace.Span
	start        time.Time
	authDuration time.Duration
	hubDuration  time.Duration
	workflow     string
	deduped      bool
	errorStage   string
}

func newTriggerMetrics(ctx context.Context, logger *log.Logger) (*triggerMetrics, context.Context) {
	spanCtx, span := otel.Tracer(tracerName).Start(ctx, triggerSpanName)
	return &triggerMetrics{logger: logger, span: span, start: time.Now()}, spanCtx
}

func (m *triggerMetrics) ObserveAuth(d time.Duration) {
	if d > 0 {
		m.authDuration = d
	}
}

func (m *triggerMetrics) ObserveHub(d time.Duration) {
	if d > 0 {
		m.hubDuration = d
	}
}

func (m *triggerMetrics) SetWorkflow(slug string) {
	m.workflow = slug
}

func (m *triggerMetrics) SetDeduped(deduped bool) {
	m.deduped = deduped
}

func (m *triggerMetrics) SetErrorStage(stage string) {
	if stage != "" {
		m.errorStage = stage
	}
}

// Log finishes the span and writes the observability event. It must be
// called exactly once per request.
func (m *triggerMetrics) Log(status int, err error) {
	if m == nil {
		return
	}

	totalMS := durationToMillis(time.Since(m.start))
	attrs := []attribute.KeyValue{
		attribute.String("http.route", triggerRoute),
		attribute.Int("http.status_code", status),
		attribute.Float64("pulseboard.trigger.total_ms", totalMS),
		attribute.Bool("pulseboard.trigger.deduped", m.deduped),
	}
	if m.workflow != "" {
		attrs = append(attrs, attribute.String("pulseboard.trigger.workflow", m.workflow))
	}
	if m.authDuration > 0 {
		attrs = append(attrs, attribute.Float64("pulseboard.trigger.auth_ms", durationToMillis(m.authDuration)))
	}
	if m.hubDuration > 0 {
		attrs = append(attrs, attribute.Float64("pulseboard.trigger.hub_ms", durationToMillis(m.hubDuration)))
	}
	if m.errorStage != "" {
		attrs = append(attrs, attribute.String("pulseboard.trigger.error_stage", m.errorStage))
	}

	if m.span != nil {
		m.span.SetAttributes(attrs...)
		m.span.AddEvent("observability.event", trace.WithAttributes(
			attribute.String("event.name", triggerEventName),
			attribute.String("event.domain", triggerEventDomain),
		))
		if err != nil || m.errorStage != "" {
			m.span.SetStatus(codes.Error, m.errorStage)
		} else {
			m.span.SetStatus(codes.Ok, "")
		}
		m.span.End()
	}

	if m.logger == nil {
		return
	}

	attributes := map[string]any{
		"http.route":                  triggerRoute,
		"http.status_code":            status,
		"pulseboard.trigger.total_ms": totalMS,
		"pulseboard.trigger.deduped":  m.deduped,
	}
	if m.workflow != "" {
		attributes["pulseboard.trigger.workflow"] = m.workflow
	}
	if m.authDuration > 0 {
		attributes["pulseboard.trigger.auth_ms"] = durationToMillis(m.authDuration)
	}
	if m.hubDuration > 0 {
		attributes["pulseboard.trigger.hub_ms"] = durationToMillis(m.hubDuration)
	}
	if m.errorStage != "" {
		attributes["pulseboard.trigger.error_stage"] = m.errorStage
	}

	fields := log.Fields{
		"event.name":      triggerEventName,
		"event.domain":    triggerEventDomain,
		"attributes":      attributes,
		"severity_text":   "INFO",
		"severity_number": 9,
	}
	if m.span != nil {
		if sc := m.span.SpanContext(); sc.HasTraceID() {
			fields["trace_id"] = sc.TraceID().String()
		}
	}
	if err != nil {
		fields["error"] = err.Error()
	}

	m.logger.WithFields(fields).Info("observability.event")
}

func durationToMillis(d time.Duration) float64 {
	if d <= 0 {
		return 0
	}
	return float64(d) / float64(time.Millisecond)
}
