// Package eventbus is an in-memory fanout used to observe reminder and task
// lifecycle changes without coupling the publishers to their consumers.
package eventbus

import (
	"sync"
	"sync/atomic"
	"time"
)

// Event is a small signal. Publish never blocks: subscribers get a buffered
// channel and a slow subscriber loses events instead of stalling the
// publisher (the scheduler tick in particular).
type Event struct {
	Type string
	Time time.Time
	Data any
}

type Bus interface {
	Publish(e Event)
	Subscribe(buffer int) (ch <-chan Event, unsubscribe func())
}

// New returns an in-memory bus. It owns no goroutines.
func New() Bus {
	return &memBus{subs: map[uint64]chan Event{}}
}

// Emit publishes on bus when it is non-nil.
func Emit(bus Bus, typ string, at time.Time, data any) {
	if bus == nil {
		return
	}
	bus.Publish(Event{Type: typ, Time: at, Data: data})
}

type memBus struct {
	mu   sync.RWMutex
	subs map[uint64]chan Event
	seq  atomic.Uint64

	dropped atomic.Uint64
}

func (b *memBus) Publish(e Event) {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	b.mu.RLock()
	chs := make([]chan Event, 0, len(b.subs))
	for _, ch := range b.subs {
		chs = append(chs, ch)
	}
	b.mu.RUnlock()

	for _, ch := range chs {
		b.deliver(ch, e)
	}
}

// deliver tolerates a channel closed by a concurrent unsubscribe.
func (b *memBus) deliver(ch chan Event, e Event) {
	defer func() { _ = recover() }()
	select {
	case ch <- e:
	default:
		b.dropped.Add(1)
	}
}

func (b *memBus) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 16
	}
	ch := make(chan Event, buffer)
	id := b.seq.Add(1)

	b.mu.Lock()
	b.subs[id] = ch
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			close(ch)
		})
	}
}

// Dropped reports how many deliveries were skipped because a subscriber
// buffer was full. Only meaningful for buses returned by New.
func Dropped(bus Bus) uint64 {
	if mb, ok := bus.(*memBus); ok {
		return mb.dropped.Load()
	}
	return 0
}
