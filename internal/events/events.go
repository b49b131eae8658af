// Package events implements the job-lifecycle event surface (spec C6): a
// narrow, closed sum type delivered to observers on a single dispatcher
// goroutine, so that observers never have to reason about concurrent
// delivery or nested locks.
package events

import (
	"sync"

	"github.com/mikaelsundell/jobqueue/internal/jobid"
)

// Kind identifies which variant of Event is populated.
type Kind int

const (
	// KindSubmitted fires exactly once per job, before any field-change
	// event for that job.
	KindSubmitted Kind = iota
	// KindProcessed fires once a job reaches a final status other than
	// Stopped (spec §4.5 step 7), including a dependent failed by a cascade
	// without running, and once for every removed job.
	KindProcessed
	// KindRemoved is always the final event delivered for a uuid.
	KindRemoved
	// KindFieldChanged fires once per real field mutation.
	KindFieldChanged
)

func (k Kind) String() string {
	switch k {
	case KindSubmitted:
		return "submitted"
	case KindProcessed:
		return "processed"
	case KindRemoved:
		return "removed"
	case KindFieldChanged:
		return "field_changed"
	default:
		return "unknown"
	}
}

// FieldKind identifies which Job field changed in a KindFieldChanged event.
type FieldKind int

const (
	FieldStatus FieldKind = iota
	FieldPriority
	FieldLog
	FieldPID
	FieldDependsOn
)

func (f FieldKind) String() string {
	switch f {
	case FieldStatus:
		return "status"
	case FieldPriority:
		return "priority"
	case FieldLog:
		return "log"
	case FieldPID:
		return "pid"
	case FieldDependsOn:
		return "dependson"
	default:
		return "unknown"
	}
}

// Event is the sum type delivered to observers. Only the fields relevant to
// Kind are populated; the rest are zero.
type Event struct {
	Kind  Kind
	UUID  jobid.ID
	Job   any // *job.Snapshot, set only for KindSubmitted; any to avoid an import cycle with package job
	Field FieldKind
	Value any
}

// Observer receives events on the Bus's dispatcher goroutine. It must be
// cheap and non-blocking: a slow observer delays every other observer and
// every future event.
type Observer func(Event)

// Bus is the designated notification context: a single goroutine draining a
// channel and fanning each event out to every subscribed Observer, in
// subscription order.
type Bus struct {
	mu        sync.RWMutex
	observers []Observer

	events chan Event
	done   chan struct{}
	closed chan struct{}
	once   sync.Once
}

// NewBus starts the dispatcher goroutine and returns a ready Bus. backlog
// sizes the internal channel; 0 is a reasonable default for interactive use,
// a larger value avoids Emit blocking a worker goroutine under bursty load.
func NewBus(backlog int) *Bus {
	if backlog < 0 {
		backlog = 0
	}

	b := &Bus{
		events: make(chan Event, backlog),
		done:   make(chan struct{}),
		closed: make(chan struct{}),
	}

	go b.loop()

	return b
}

func (b *Bus) loop() {
	defer close(b.closed)
	for {
		select {
		case ev := <-b.events:
			b.dispatch(ev)
		case <-b.done:
			// drain whatever is already queued before exiting
			for {
				select {
				case ev := <-b.events:
					b.dispatch(ev)
				default:
					return
				}
			}
		}
	}
}

func (b *Bus) dispatch(ev Event) {
	b.mu.RLock()
	observers := make([]Observer, len(b.observers))
	copy(observers, b.observers)
	b.mu.RUnlock()

	for _, o := range observers {
		if o != nil {
			o(ev)
		}
	}
}

// Subscribe registers an observer and returns an unsubscribe function.
func (b *Bus) Subscribe(o Observer) (unsubscribe func()) {
	b.mu.Lock()
	b.observers = append(b.observers, o)
	idx := len(b.observers) - 1
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if idx < len(b.observers) {
			b.observers[idx] = nil
		}
	}
}

// Emit queues ev for delivery. It never blocks the caller beyond the
// channel send (which only blocks if backlog is exhausted and the
// dispatcher is behind).
func (b *Bus) Emit(ev Event) {
	select {
	case b.events <- ev:
	case <-b.done:
	}
}

// Close stops the dispatcher after draining any events already queued. It
// is safe to call more than once.
func (b *Bus) Close() {
	b.once.Do(func() {
		close(b.done)
	})
	<-b.closed
}
