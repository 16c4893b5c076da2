package notify

import (
	"sync"
	"time"
)

const defaultFeedSize = 100

// Notification is one message kept by a Feed.
type Notification struct {
	ID       uint64    `json:"id"`
	Message  string    `json:"message"`
	Severity Severity  `json:"severity"`
	Time     time.Time `json:"time"`
}

// Feed is a bounded history of notifications with live subscribers.
type Feed struct {
	mu     sync.Mutex
	items  []Notification
	size   int
	nextID uint64
	subs   map[chan Notification]struct{}
	now    func() time.Time
}

// NewFeed returns a Feed keeping the last size notifications.
func NewFeed(size int) *Feed {
	if size <= 0 {
		size = defaultFeedSize
	}
	return &Feed{
		size: size,
		subs: make(map[chan Notification]struct{}),
		now:  time.Now,
	}
}

func (f *Feed) Report(message string, severity Severity) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.nextID++
	n := Notification{ID: f.nextID, Message: message, Severity: severity, Time: f.now().UTC()}
	f.items = append(f.items, n)
	if len(f.items) > f.size {
		f.items = append(f.items[:0:0], f.items[len(f.items)-f.size:]...)
	}

	for ch := range f.subs {
		select {
		case ch <- n:
		default:
			// slow subscriber, drop
		}
	}
}

// Recent returns up to limit notifications, newest last. limit <= 0 returns all.
func (f *Feed) Recent(limit int) []Notification {
	f.mu.Lock()
	defer f.mu.Unlock()

	items := f.items
	if limit > 0 && len(items) > limit {
		items = items[len(items)-limit:]
	}
	out := make([]Notification, len(items))
	copy(out, items)
	return out
}

// Subscribe returns a channel of new notifications and a function that
// unsubscribes and closes it.
func (f *Feed) Subscribe(buffer int) (<-chan Notification, func()) {
	if buffer <= 0 {
		buffer = 16
	}
	ch := make(chan Notification, buffer)

	f.mu.Lock()
	f.subs[ch] = struct{}{}
	f.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			f.mu.Lock()
			delete(f.subs, ch)
			f.mu.Unlock()
			close(ch)
		})
	}
}
