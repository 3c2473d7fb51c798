package pulse

import (
	"sync"

	"github.com/janekbaraniewski/openpulse/internal/core"
)

const defaultSubscriberBuffer = 16

// Broadcaster fans published states out to subscribers. Each subscriber has
// its own buffered channel; when a slow subscriber's buffer is full the
// oldest pending state is dropped, so delivery stays in publish order and a
// subscriber always ends up holding the latest state.
type Broadcaster struct {
	mu     sync.Mutex
	subs   map[uint64]*subscription
	nextID uint64
	latest *core.PulseState
	buffer int
}

type subscription struct {
	ch     chan core.PulseState
	closed bool
}

func NewBroadcaster() *Broadcaster {
	return &Broadcaster{subs: map[uint64]*subscription{}, buffer: defaultSubscriberBuffer}
}

// Subscribe returns a channel of states and an idempotent cancel func. A
// late subscriber immediately receives the most recent state.
func (b *Broadcaster) Subscribe() (<-chan core.PulseState, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	sub := &subscription{ch: make(chan core.PulseState, b.buffer)}
	b.subs[id] = sub
	if b.latest != nil {
		sub.ch <- b.latest.Clone()
	}

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if s, ok := b.subs[id]; ok {
				delete(b.subs, id)
				s.closed = true
				close(s.ch)
			}
		})
	}
	return sub.ch, cancel
}

// Publish delivers a copy of state to every subscriber without blocking.
func (b *Broadcaster) Publish(state core.PulseState) {
	b.mu.Lock()
	defer b.mu.Unlock()

	latest := state.Clone()
	b.latest = &latest
	for _, sub := range b.subs {
		if !sub.closed {
			deliver(sub.ch, state)
		}
	}
}

// deliver sends state, evicting the oldest queued state while the buffer is
// full. Callers hold the broadcaster lock, so they are the only sender.
func deliver(ch chan core.PulseState, state core.PulseState) {
	for {
		select {
		case ch <- state.Clone():
			return
		default:
		}
		select {
		case <-ch:
		default:
		}
	}
}

// Latest returns the most recently published state.
func (b *Broadcaster) Latest() (core.PulseState, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.latest == nil {
		return core.PulseState{}, false
	}
	return b.latest.Clone(), true
}

// Close cancels every subscription.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for id, sub := range b.subs {
		delete(b.subs, id)
		if !sub.closed {
			sub.closed = true
			close(sub.ch)
		}
	}
}
