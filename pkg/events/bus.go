package events

import (
	"log/slog"
	"sync"
)

// Bus fans incoming NOTIFY payloads out to in-process subscribers.
// Delivery is best-effort: a subscriber whose buffer is full misses the
// payload and is expected to catch up through EventsSince.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[string]map[int]chan []byte
	nextID      int
	bufferSize  int
}

// NewBus creates a bus. bufferSize is the per-subscriber channel depth.
func NewBus(bufferSize int) *Bus {
	if bufferSize <= 0 {
		bufferSize = 16
	}
	return &Bus{
		subscribers: make(map[string]map[int]chan []byte),
		bufferSize:  bufferSize,
	}
}

// Subscribe registers interest in a channel. The returned cancel func
// removes the subscription and closes the delivery channel.
func (b *Bus) Subscribe(channel string) (<-chan []byte, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.subscribers[channel] == nil {
		b.subscribers[channel] = make(map[int]chan []byte)
	}
	id := b.nextID
	b.nextID++
	ch := make(chan []byte, b.bufferSize)
	b.subscribers[channel][id] = ch

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if subs, ok := b.subscribers[channel]; ok {
			if c, ok := subs[id]; ok {
				delete(subs, id)
				close(c)
			}
		}
	}
	return ch, cancel
}

// Broadcast delivers a payload to every subscriber of the channel without
// blocking on slow consumers.
func (b *Bus) Broadcast(channel string, payload []byte) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subscribers[channel] {
		select {
		case ch <- payload:
		default:
			slog.Warn("Event subscriber buffer full, dropping payload", "channel", channel)
		}
	}
}

// SubscriberCount reports subscribers on a channel.
func (b *Bus) SubscriberCount(channel string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers[channel])
}
