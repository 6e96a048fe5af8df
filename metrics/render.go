package metrics

import "time"

var (
	renderTotal    = RenderNamespace.NewLabeledCounter("total", "The number of renders by outcome", "outcome")
	renderDuration = RenderNamespace.NewLabeledTimer("duration_seconds", "Render latency by outcome", "outcome")
	warmupsTotal   = RenderNamespace.NewLabeledCounter("warmups", "The number of engine warmups, split between started and coalesced into an in-flight call", "result")
)

// RenderOutcome records one render's outcome and latency. outcome is one
// of the error Kind tokens from internal/errcode, or "Success".
func RenderOutcome(outcome string, start time.Time) {
	renderTotal.WithValues(outcome).Inc(1)
	renderDuration.WithValues(outcome).UpdateSince(start)
}

// WarmupStarted records a cold warm-state cache miss that triggered a
// fresh Warmer.Warm call.
func WarmupStarted() {
	warmupsTotal.WithValues("started").Inc(1)
}

// WarmupCoalesced records a warm-state cache access that was served by
// an already-in-flight singleflight call rather than starting a new one.
func WarmupCoalesced() {
	warmupsTotal.WithValues("coalesced").Inc(1)
}
