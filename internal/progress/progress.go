// Package progress carries sync progress from the engine to whatever presents it.
//
// The engine never blocks on a slow consumer: the channel holds a single event
// and a newer event replaces an unread one. Every event is a full snapshot
// (fraction and status), so dropping a superseded event loses nothing.
package progress

import (
	"sync"
)

// Status is the coarse state shown to the user
type Status string

const (
	StatusNotNeeded  Status = "not-needed"
	StatusInProgress Status = "in-progress"
	StatusDone       Status = "done"
)

// Event is a progress snapshot
type Event struct {
	Fraction float64
	Status   Status
}

// Reporter publishes events for one consumer. A nil *Reporter discards
// everything, so engine code can report unconditionally.
type Reporter struct {
	mu     sync.Mutex
	ch     chan Event
	last   float64
	closed bool
}

// NewReporter creates a reporter with a single-slot channel
func NewReporter() *Reporter {
	return &Reporter{ch: make(chan Event, 1)}
}

// Events returns the channel the presentation layer reads from. It is closed by Close.
func (r *Reporter) Events() <-chan Event {
	return r.ch
}

// Report publishes a snapshot without blocking. Fractions are clamped to
// [0, 1] and never move backwards.
func (r *Reporter) Report(fraction float64, status Status) {
	if r == nil {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return
	}

	if fraction < 0 {
		fraction = 0
	}
	if fraction > 1 {
		fraction = 1
	}
	if fraction < r.last {
		fraction = r.last
	}
	r.last = fraction

	ev := Event{Fraction: fraction, Status: status}
	select {
	case r.ch <- ev:
		return
	default:
	}

	// Slot is full: drop the stale event and retry. Only this goroutine sends
	// (mu is held), so the second send cannot fail.
	select {
	case <-r.ch:
	default:
	}
	r.ch <- ev
}

// Close ends the stream; the consumer sees the last event, then a closed channel.
func (r *Reporter) Close() {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.closed {
		r.closed = true
		close(r.ch)
	}
}

// Reset starts a new run; fractions may begin again from zero.
func (r *Reporter) Reset() {
	if r == nil {
		return
	}
	r.mu.Lock()
	r.last = 0
	r.mu.Unlock()
}
