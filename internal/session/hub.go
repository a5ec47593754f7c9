package session

import (
	"context"
	"sync"

	"github.com/gridprobe/gridprobe/internal/core"
)

// hub is the event log of one session. Events are appended in order and
// retained for the session's lifetime, so a subscriber that attaches
// mid-stream replays everything from the start and then follows live. The
// log closes after its terminal event; later subscribers still replay it.
type hub struct {
	mu     sync.Mutex
	cond   *sync.Cond
	events []core.StreamEvent
	closed bool
	buffer int
}

func newHub(buffer int) *hub {
	if buffer <= 0 {
		buffer = 64
	}
	h := &hub{buffer: buffer}
	h.cond = sync.NewCond(&h.mu)
	return h
}

// append stamps the next sequence number onto ev and appends it. Appending a
// terminal event closes the log; appends after close are dropped.
func (h *hub) append(ev core.StreamEvent) core.StreamEvent {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return ev
	}
	ev.Sequence = len(h.events)
	h.events = append(h.events, ev)
	if ev.Type.IsTerminal() {
		h.closed = true
	}
	h.cond.Broadcast()
	return ev
}

// snapshot returns a copy of all events appended so far.
func (h *hub) snapshot() []core.StreamEvent {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]core.StreamEvent, len(h.events))
	copy(out, h.events)
	return out
}

// subscribe returns a channel that replays the full log from the beginning
// and then delivers live events in order. The channel closes after the
// terminal event, or when ctx is cancelled. No event between subscription
// and the terminal event is ever dropped.
func (h *hub) subscribe(ctx context.Context) <-chan core.StreamEvent {
	ch := make(chan core.StreamEvent, h.buffer)

	// The waiter goroutine blocks on the condition variable, so a second
	// goroutine turns ctx cancellation into a broadcast that wakes it.
	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
		case <-done:
		}
		h.cond.Broadcast()
	}()

	go func() {
		defer close(ch)
		defer close(done)
		cursor := 0
		for {
			h.mu.Lock()
			for cursor >= len(h.events) && !h.closed && ctx.Err() == nil {
				h.cond.Wait()
			}
			if ctx.Err() != nil {
				h.mu.Unlock()
				return
			}
			if cursor >= len(h.events) && h.closed {
				h.mu.Unlock()
				return
			}
			batch := make([]core.StreamEvent, len(h.events)-cursor)
			copy(batch, h.events[cursor:])
			cursor = len(h.events)
			h.mu.Unlock()

			for _, ev := range batch {
				select {
				case ch <- ev:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return ch
}
