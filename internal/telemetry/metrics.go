package telemetry

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics groups the pipeline instruments. A nil *Metrics records nothing,
// so callers never need to guard.
type Metrics struct {
	chunks        metric.Int64Counter
	chunkDuration metric.Float64Histogram
	decodeSteps   metric.Int64Counter
	sessions      metric.Int64Counter
	sessionTime   metric.Float64Histogram
	requests      metric.Int64Counter
	requestTime   metric.Float64Histogram
}

func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	meter := mp.Meter(instrumentationName)

	var (
		m   Metrics
		err error
	)

	if m.chunks, err = meter.Int64Counter("speechkit.tts.chunks",
		metric.WithDescription("Synthesized text chunks by result")); err != nil {
		return nil, fmt.Errorf("create chunk counter: %w", err)
	}

	if m.chunkDuration, err = meter.Float64Histogram("speechkit.tts.chunk.duration",
		metric.WithDescription("Time spent phonemizing and running the vocoder per chunk"),
		metric.WithUnit("s")); err != nil {
		return nil, fmt.Errorf("create chunk histogram: %w", err)
	}

	if m.decodeSteps, err = meter.Int64Counter("speechkit.asr.decode_steps",
		metric.WithDescription("Autoregressive decoder steps")); err != nil {
		return nil, fmt.Errorf("create step counter: %w", err)
	}

	if m.sessions, err = meter.Int64Counter("speechkit.asr.sessions",
		metric.WithDescription("Recognition sessions by stop reason")); err != nil {
		return nil, fmt.Errorf("create session counter: %w", err)
	}

	if m.sessionTime, err = meter.Float64Histogram("speechkit.asr.session.duration",
		metric.WithDescription("Wall time per recognition session"),
		metric.WithUnit("s")); err != nil {
		return nil, fmt.Errorf("create session histogram: %w", err)
	}

	if m.requests, err = meter.Int64Counter("speechkit.http.requests",
		metric.WithDescription("HTTP requests by route and status")); err != nil {
		return nil, fmt.Errorf("create request counter: %w", err)
	}

	if m.requestTime, err = meter.Float64Histogram("speechkit.http.request.duration",
		metric.WithDescription("HTTP request latency"),
		metric.WithUnit("s")); err != nil {
		return nil, fmt.Errorf("create request histogram: %w", err)
	}

	return &m, nil
}

// ChunkSynthesized records one chunk attempt.
func (m *Metrics) ChunkSynthesized(ctx context.Context, d time.Duration, ok bool) {
	if m == nil {
		return
	}

	result := "ok"
	if !ok {
		result = "error"
	}

	m.chunks.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
	m.chunkDuration.Record(ctx, d.Seconds())
}

func (m *Metrics) DecodeStep(ctx context.Context) {
	if m == nil {
		return
	}

	m.decodeSteps.Add(ctx, 1)
}

// SessionFinished records a completed or aborted recognition session.
func (m *Metrics) SessionFinished(ctx context.Context, reason string, d time.Duration) {
	if m == nil {
		return
	}

	m.sessions.Add(ctx, 1, metric.WithAttributes(attribute.String("stop_reason", reason)))
	m.sessionTime.Record(ctx, d.Seconds())
}

func (m *Metrics) Request(ctx context.Context, route string, status int, d time.Duration) {
	if m == nil {
		return
	}

	attrs := metric.WithAttributes(
		attribute.String("route", route),
		attribute.String("status", strconv.Itoa(status)),
	)
	m.requests.Add(ctx, 1, attrs)
	m.requestTime.Record(ctx, d.Seconds(), metric.WithAttributes(attribute.String("route", route)))
}
