package engine

import (
	"sync/atomic"
)

// CancelSignal is a cancellation request polled between steps.
//
// It is set asynchronously, typically from a signal handler, and never
// interrupts a step that has already started. A nil *CancelSignal is never
// cancelled.
type CancelSignal struct {
	flag atomic.Bool
}

// NewCancelSignal returns an unset signal.
func NewCancelSignal() *CancelSignal {
	return &CancelSignal{}
}

// Cancel requests cancellation. It is safe to call from any goroutine.
func (c *CancelSignal) Cancel() {
	if c != nil {
		c.flag.Store(true)
	}
}

// Cancelled reports whether cancellation was requested.
func (c *CancelSignal) Cancelled() bool {
	return c != nil && c.flag.Load()
}
