// Package coordinator serializes provider access. Each provider has a slot
// of configurable width (default 1); requests for the same provider queue in
// strict FIFO order while distinct providers proceed fully in parallel.
package coordinator

import (
	"context"
	"sync"

	"github.com/gridprobe/gridprobe/internal/logging"
)

// Coordinator owns the provider slot map. It is the only state shared
// across concurrent sessions; all mutation goes through Admit and Release.
type Coordinator struct {
	mu     sync.Mutex
	logger *logging.Logger
	slots  map[string]*providerSlot
}

type providerSlot struct {
	width   int
	inUse   int
	waiters []*waiter
}

type waiter struct {
	ready   chan struct{}
	granted bool
}

// New creates a coordinator. Every provider starts with width 1 unless
// SetWidth raises it.
func New(logger *logging.Logger) *Coordinator {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Coordinator{
		logger: logger,
		slots:  make(map[string]*providerSlot),
	}
}

// SetWidth sets the slot width for a provider. Raising the width wakes
// queued waiters; lowering it takes effect as held slots drain.
func (c *Coordinator) SetWidth(providerID string, width int) {
	if width < 1 {
		width = 1
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	slot := c.slot(providerID)
	slot.width = width
	for slot.inUse < slot.width && len(slot.waiters) > 0 {
		c.grantNext(slot)
		slot.inUse++
	}
}

// Admit blocks cooperatively until the provider's slot is free, then returns
// a releasable ticket. Cancellation of ctx abandons the wait without leaking
// a queue entry or a slot.
func (c *Coordinator) Admit(ctx context.Context, providerID string) (*Ticket, error) {
	c.mu.Lock()
	slot := c.slot(providerID)

	if slot.inUse < slot.width {
		slot.inUse++
		c.mu.Unlock()
		return c.newTicket(providerID), nil
	}

	w := &waiter{ready: make(chan struct{})}
	slot.waiters = append(slot.waiters, w)
	c.mu.Unlock()

	select {
	case <-w.ready:
		return c.newTicket(providerID), nil

	case <-ctx.Done():
		c.mu.Lock()
		if w.granted {
			// Grant raced with cancellation; hand the slot to the next
			// waiter so it is not lost.
			c.releaseSlot(slot)
		} else {
			c.removeWaiter(slot, w)
		}
		c.mu.Unlock()
		return nil, ctx.Err()
	}
}

// InFlight returns the number of held slots for a provider.
func (c *Coordinator) InFlight(providerID string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if slot, ok := c.slots[providerID]; ok {
		return slot.inUse
	}
	return 0
}

// QueueDepth returns the number of queued waiters for a provider.
func (c *Coordinator) QueueDepth(providerID string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if slot, ok := c.slots[providerID]; ok {
		return len(slot.waiters)
	}
	return 0
}

// slot returns the slot entry for a provider, creating a width-1 slot on
// first use. Caller holds c.mu.
func (c *Coordinator) slot(providerID string) *providerSlot {
	slot, ok := c.slots[providerID]
	if !ok {
		slot = &providerSlot{width: 1}
		c.slots[providerID] = slot
	}
	return slot
}

// grantNext pops the first waiter and signals it. Caller holds c.mu and is
// responsible for slot accounting.
func (c *Coordinator) grantNext(slot *providerSlot) {
	w := slot.waiters[0]
	slot.waiters = slot.waiters[1:]
	w.granted = true
	close(w.ready)
}

// releaseSlot frees one held slot, handing it to the next FIFO waiter if one
// is queued. Caller holds c.mu.
func (c *Coordinator) releaseSlot(slot *providerSlot) {
	if len(slot.waiters) > 0 && slot.inUse <= slot.width {
		c.grantNext(slot)
		return
	}
	slot.inUse--
}

func (c *Coordinator) removeWaiter(slot *providerSlot, target *waiter) {
	for i, w := range slot.waiters {
		if w == target {
			slot.waiters = append(slot.waiters[:i], slot.waiters[i+1:]...)
			return
		}
	}
}

func (c *Coordinator) newTicket(providerID string) *Ticket {
	return &Ticket{coord: c, providerID: providerID}
}

// Ticket represents one held provider slot. Release is idempotent so it is
// safe to defer and also call on error paths.
type Ticket struct {
	coord      *Coordinator
	providerID string
	once       sync.Once
}

// ProviderID returns the provider this ticket was issued for.
func (t *Ticket) ProviderID() string {
	return t.providerID
}

// Release frees the slot and wakes the next waiter in FIFO order.
func (t *Ticket) Release() {
	t.once.Do(func() {
		t.coord.mu.Lock()
		slot := t.coord.slot(t.providerID)
		t.coord.releaseSlot(slot)
		t.coord.mu.Unlock()
	})
}
