package event

import "sync"

// Recipient is a per-session event sink. Send must not block: a
// recipient that cannot accept an event reports false and is detached
// by the caller rather than stalling the research loop.
type Recipient interface {
	// ID uniquely identifies the recipient within its session.
	ID() string
	// Send offers an event to the recipient. It returns false when the
	// recipient is gone or its buffer is full.
	Send(ev Event) bool
	// Close releases the recipient. Safe to call more than once.
	Close()
}

// ChanRecipient is a Recipient backed by a bounded channel. The
// transport (WebSocket, SSE) drains C on its own goroutine.
type ChanRecipient struct {
	id string
	C  chan Event

	closeOnce sync.Once
	closed    chan struct{}
}

// NewChanRecipient creates a recipient with the given buffer size.
// A buffer of 0 is clamped to 1 so Send never blocks.
func NewChanRecipient(id string, buffer int) *ChanRecipient {
	if buffer < 1 {
		buffer = 1
	}
	return &ChanRecipient{
		id:     id,
		C:      make(chan Event, buffer),
		closed: make(chan struct{}),
	}
}

// ID implements Recipient.
func (r *ChanRecipient) ID() string { return r.id }

// Send implements Recipient. It never blocks; a full buffer counts as
// a failed delivery.
func (r *ChanRecipient) Send(ev Event) bool {
	select {
	case <-r.closed:
		return false
	default:
	}
	select {
	case r.C <- ev:
		return true
	default:
		return false
	}
}

// Close implements Recipient. The channel itself is not closed so a
// concurrent Send can never panic; drainers select on Done instead.
func (r *ChanRecipient) Close() {
	r.closeOnce.Do(func() { close(r.closed) })
}

// Done returns a channel closed when the recipient is released.
func (r *ChanRecipient) Done() <-chan struct{} { return r.closed }
