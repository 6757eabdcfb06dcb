// Package notifier provides a simple broadcast mechanism for model updates.
package notifier

import (
	"sync"
	"sync/atomic"
)

// Kind identifies what changed.
type Kind int

// Event kinds.
const (
	// ScenariosChanged is sent when scenarios are added, renamed, deleted or
	// edited.
	ScenariosChanged Kind = iota
	// CalculationDone is sent when a run published new results.
	CalculationDone
	// CalculationFailed is sent when a run failed; Message holds the reason.
	CalculationFailed
	// InitializationDone is sent when the engine finished its start-up.
	InitializationDone
)

func (k Kind) String() string {
	switch k {
	case ScenariosChanged:
		return "scenarios_changed"
	case CalculationDone:
		return "calculation_done"
	case CalculationFailed:
		return "calculation_failed"
	case InitializationDone:
		return "initialization_done"
	default:
		return "unknown"
	}
}

// Event is the payload delivered to listeners.
type Event struct {
	Kind     Kind
	Scenario string
	Message  string
}

// DefaultBuffer is the per-listener channel capacity used by New.
const DefaultBuffer = 8

// Notifier broadcasts events to all subscribed listeners. Delivery is
// best-effort: a listener whose buffer is full misses the event, and
// listeners should re-query the model when they wake up.
type Notifier struct {
	mu        sync.RWMutex
	listeners map[<-chan Event]chan Event
	buffer    int
	dropped   atomic.Uint64
}

// New creates a new Notifier instance with DefaultBuffer capacity per listener.
func New() *Notifier {
	return NewWithBuffer(DefaultBuffer)
}

// NewWithBuffer creates a Notifier whose listener channels hold size events.
func NewWithBuffer(size int) *Notifier {
	if size < 1 {
		size = 1
	}
	return &Notifier{
		listeners: make(map[<-chan Event]chan Event),
		buffer:    size,
	}
}

// Subscribe returns a channel that receives events.
// The caller must call Unsubscribe when done to prevent goroutine leaks.
func (n *Notifier) Subscribe() <-chan Event {
	ch := make(chan Event, n.buffer)
	n.mu.Lock()
	n.listeners[ch] = ch
	n.mu.Unlock()
	return ch
}

// Unsubscribe removes a listener channel and closes it. Unknown channels are
// ignored.
func (n *Notifier) Unsubscribe(ch <-chan Event) {
	n.mu.Lock()
	c, ok := n.listeners[ch]
	delete(n.listeners, ch)
	n.mu.Unlock()
	if ok {
		close(c)
	}
}

// Broadcast sends e to all listeners.
// Non-blocking: if a listener's channel is full, the event is skipped.
func (n *Notifier) Broadcast(e Event) {
	n.mu.RLock()
	defer n.mu.RUnlock()

	for _, ch := range n.listeners {
		select {
		case ch <- e:
		default:
			n.dropped.Add(1)
		}
	}
}

// Dropped returns how many deliveries were skipped because a listener was
// not keeping up.
func (n *Notifier) Dropped() uint64 {
	return n.dropped.Load()
}

// Len returns the number of listeners.
func (n *Notifier) Len() int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return len(n.listeners)
}

// Close unsubscribes every listener.
func (n *Notifier) Close() {
	n.mu.Lock()
	defer n.mu.Unlock()
	for k, ch := range n.listeners {
		delete(n.listeners, k)
		close(ch)
	}
}
