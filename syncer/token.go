package syncer

import "sync/atomic"

// Token is a cooperative cancellation flag. The orchestrator polls it between
// items; in-flight work always completes before the stop is honored. Safe for
// concurrent use, typically shared between a signal handler and the run loop.
type Token struct {
	stopped atomic.Bool
}

// NewToken creates a token in the running state.
func NewToken() *Token {
	return &Token{}
}

// Stop requests cancellation. Idempotent.
func (t *Token) Stop() {
	t.stopped.Store(true)
}

// Stopped reports whether cancellation was requested.
func (t *Token) Stopped() bool {
	return t.stopped.Load()
}
