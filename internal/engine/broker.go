package engine

import (
	"context"
	"sync"
)

// InputDescriptor is what a step controller hands the single shared input
// surface: the current value, how to validate, and what to do on submit.
type InputDescriptor struct {
	Value       string
	Placeholder string
	Disabled    bool
	Validate    func(string) error
	Submit      func(ctx context.Context, text string) error
}

// Broker arbitrates the one input surface between simultaneously mounted
// step controllers. Each registers a descriptor under its step number; the
// highest registered step owns the input. Nil means no step wants input
// right now, e.g. between a submission and the next question's arrival.
//
// Two steps claiming input at once is a reconciliation bug; the broker still
// behaves deterministically by preferring the furthest progress, so a stale
// earlier prompt is never presented.
type Broker struct {
	mu    sync.Mutex
	slots map[int]*InputDescriptor
}

func NewBroker() *Broker {
	return &Broker{slots: make(map[int]*InputDescriptor)}
}

// Register claims the input surface for a step, replacing that step's
// previous descriptor if any.
func (b *Broker) Register(step int, d *InputDescriptor) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if d == nil {
		delete(b.slots, step)
		return
	}
	b.slots[step] = d
}

// Deregister releases a step's claim.
func (b *Broker) Deregister(step int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.slots, step)
}

// Active returns the owning step and its descriptor, or (0, nil) when no
// step wants input.
func (b *Broker) Active() (int, *InputDescriptor) {
	b.mu.Lock()
	defer b.mu.Unlock()

	best := 0
	var d *InputDescriptor
	for step, desc := range b.slots {
		if desc != nil && step > best {
			best = step
			d = desc
		}
	}
	return best, d
}

// Reset drops every registration.
func (b *Broker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.slots = make(map[int]*InputDescriptor)
}
