// ABOUTME: Bounded TTL window of inbound chat message keys
// ABOUTME: Frontends consult it so a redelivered update never starts a second turn

package dedupe

import (
	"container/list"
	"sync"
	"time"
)

// Defaults used by the frontends.
const (
	DefaultTTL     = 10 * time.Minute
	DefaultMaxSize = 10_000
)

// Key identifies one inbound platform message.
type Key struct {
	Frontend  string
	ChatID    string
	MessageID string
}

func (k Key) String() string {
	return k.Frontend + "|" + k.ChatID + "|" + k.MessageID
}

type entry struct {
	seenAt  time.Time
	element *list.Element
}

// Window remembers message keys for a fixed TTL. When full, the oldest key
// is dropped first.
type Window struct {
	mu      sync.Mutex
	seen    map[string]*entry
	order   *list.List // oldest at front
	ttl     time.Duration
	maxSize int
	now     func() time.Time

	done   chan struct{}
	closed bool
}

// NewWindow creates a window and starts its background sweeper.
// Non-positive arguments fall back to DefaultTTL and DefaultMaxSize.
func NewWindow(ttl time.Duration, maxSize int) *Window {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	w := &Window{
		seen:    make(map[string]*entry),
		order:   list.New(),
		ttl:     ttl,
		maxSize: maxSize,
		now:     time.Now,
		done:    make(chan struct{}),
	}
	go w.sweepLoop()
	return w
}

// Seen reports whether key was already observed inside the window. A new
// key is recorded in the same critical section, so of two concurrent calls
// for one key exactly one returns false.
func (w *Window) Seen(key Key) bool {
	k := key.String()

	w.mu.Lock()
	defer w.mu.Unlock()

	now := w.now()
	if e, ok := w.seen[k]; ok {
		if now.Sub(e.seenAt) < w.ttl {
			return true
		}
		w.order.Remove(e.element)
		delete(w.seen, k)
	}

	if len(w.seen) >= w.maxSize {
		w.evictOldest()
	}
	w.seen[k] = &entry{seenAt: now, element: w.order.PushBack(k)}
	return false
}

// Forget drops key so a later redelivery is processed again.
func (w *Window) Forget(key Key) {
	k := key.String()

	w.mu.Lock()
	defer w.mu.Unlock()

	if e, ok := w.seen[k]; ok {
		w.order.Remove(e.element)
		delete(w.seen, k)
	}
}

// Len reports how many keys are held.
func (w *Window) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.seen)
}

func (w *Window) evictOldest() {
	front := w.order.Front()
	if front == nil {
		return
	}
	k, _ := front.Value.(string)
	w.order.Remove(front)
	delete(w.seen, k)
}

func (w *Window) sweepLoop() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			w.sweep()
		case <-w.done:
			return
		}
	}
}

// sweep drops expired keys. Keys are ordered by insertion so it stops at the
// first live one.
func (w *Window) sweep() {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := w.now()
	for front := w.order.Front(); front != nil; front = w.order.Front() {
		k, _ := front.Value.(string)
		e := w.seen[k]
		if e != nil && now.Sub(e.seenAt) < w.ttl {
			return
		}
		w.order.Remove(front)
		delete(w.seen, k)
	}
}

// Close stops the sweeper. Safe to call more than once.
func (w *Window) Close() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.closed {
		close(w.done)
		w.closed = true
	}
}
