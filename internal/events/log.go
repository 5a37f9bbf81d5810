// Package events keeps the bounded, newest-first observability log and
// fans new entries out to live subscribers.
package events

import (
	"sync"

	"github.com/devghori1264/feederbalancer/internal/models"
)

// DefaultCapacity bounds the log; the oldest entry is evicted past it.
const DefaultCapacity = 5000

const subscriberBuffer = 64

// Log is a circular buffer of events. Push is O(1).
type Log struct {
	mu       sync.RWMutex
	buf      []models.Event
	head     int // index of the next write
	size     int
	capacity int

	subMu  sync.RWMutex
	subs   map[int]chan models.Event
	nextID int
}

func NewLog(capacity int) *Log {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Log{
		buf:      make([]models.Event, capacity),
		capacity: capacity,
		subs:     make(map[int]chan models.Event),
	}
}

// Push records ev as the newest entry and notifies subscribers. Slow
// subscribers miss events rather than block the writer.
func (l *Log) Push(ev models.Event) {
	l.mu.Lock()
	l.buf[l.head] = ev
	l.head = (l.head + 1) % l.capacity
	if l.size < l.capacity {
		l.size++
	}
	l.mu.Unlock()

	l.subMu.RLock()
	for _, ch := range l.subs {
		select {
		case ch <- ev:
		default:
		}
	}
	l.subMu.RUnlock()
}

// List returns up to limit of the most recent events, newest first. A
// non-empty nodeID keeps only that node's events. limit <= 0 means all.
func (l *Log) List(limit int, nodeID string) []models.Event {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if limit <= 0 || limit > l.size {
		limit = l.size
	}
	out := make([]models.Event, 0, limit)
	for i := 0; i < l.size && len(out) < limit; i++ {
		ev := l.buf[(l.head-1-i+l.capacity)%l.capacity]
		if nodeID != "" && ev.NodeID != nodeID {
			continue
		}
		out = append(out, ev)
	}
	return out
}

func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.size
}

func (l *Log) Capacity() int { return l.capacity }

// Subscribe returns a channel receiving every event pushed after the call,
// and a cancel func that closes it.
func (l *Log) Subscribe() (<-chan models.Event, func()) {
	ch := make(chan models.Event, subscriberBuffer)

	l.subMu.Lock()
	id := l.nextID
	l.nextID++
	l.subs[id] = ch
	l.subMu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			l.subMu.Lock()
			delete(l.subs, id)
			l.subMu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}
