// SPDX-License-Identifier: Apache-2.0
package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// LoopMetrics tracks the tool-calling loop: completions requested, tools
// invoked by outcome, and how many iterations conversations take.
type LoopMetrics struct {
	completionCounter metric.Int64Counter
	toolCounter       metric.Int64Counter
	iterationHist     metric.Int64Histogram
	durationHist      metric.Float64Histogram
}

// NewLoopMetrics creates the bridge loop instruments on the global meter.
func NewLoopMetrics() (*LoopMetrics, error) {
	meter := otel.Meter("taskbridge/loop")

	completionCounter, err := meter.Int64Counter(
		"taskbridge.chat.completions",
		metric.WithDescription("Chat completion calls by outcome"),
	)
	if err != nil {
		return nil, err
	}

	toolCounter, err := meter.Int64Counter(
		"taskbridge.tools.invocations",
		metric.WithDescription("Tool invocations by tool name and outcome"),
	)
	if err != nil {
		return nil, err
	}

	iterationHist, err := meter.Int64Histogram(
		"taskbridge.loop.iterations",
		metric.WithDescription("Loop iterations per conversation"),
	)
	if err != nil {
		return nil, err
	}

	durationHist, err := meter.Float64Histogram(
		"taskbridge.loop.duration_seconds",
		metric.WithDescription("Conversation wall-clock duration in seconds"),
	)
	if err != nil {
		return nil, err
	}

	return &LoopMetrics{
		completionCounter: completionCounter,
		toolCounter:       toolCounter,
		iterationHist:     iterationHist,
		durationHist:      durationHist,
	}, nil
}

// RecordCompletion counts one chat completion call.
func (m *LoopMetrics) RecordCompletion(ctx context.Context, model string, err error) {
	if m == nil {
		return
	}
	m.completionCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("model", model),
		attribute.String("outcome", outcomeLabel(err)),
	))
}

// RecordToolInvocation counts one dispatched tool call.
func (m *LoopMetrics) RecordToolInvocation(ctx context.Context, tool, outcome string) {
	if m == nil {
		return
	}
	m.toolCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("tool", tool),
		attribute.String("outcome", outcome),
	))
}

// RecordConversation records loop totals once a conversation terminates.
func (m *LoopMetrics) RecordConversation(ctx context.Context, iterations int, elapsed time.Duration, terminal string) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("terminal", terminal))
	m.iterationHist.Record(ctx, int64(iterations), attrs)
	m.durationHist.Record(ctx, elapsed.Seconds(), attrs)
}

func outcomeLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
