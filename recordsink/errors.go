package recordsink

import "errors"

// ErrQueueSaturated is returned by Sink.Write when the in-memory queue
// stays full past its retry grace period. The render itself has
// already succeeded by the time this can happen; callers should log it
// as an operator-visible condition, never surface it to the render's
// caller as a failure.
var ErrQueueSaturated = errors.New("recordsink: queue saturated")

// ErrSinkClosed is returned by Sink.Write after Close has been called.
var ErrSinkClosed = errors.New("recordsink: sink closed")
