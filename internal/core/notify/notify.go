// Package notify carries user-visible outcomes of dashboard operations to whoever
// is watching a session.
package notify

import (
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// DefaultLimit is how many notifications a hub remembers.
const DefaultLimit = 50

const subscriberBuffer = 16

type Level string

const (
	LevelSuccess Level = "success"
	LevelError   Level = "error"
	LevelInfo    Level = "info"
)

type Notification struct {
	ID        string    `json:"id"`
	Level     Level     `json:"level"`
	Message   string    `json:"message"`
	Resource  string    `json:"resource,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Notifier surfaces outcomes to the user.
type Notifier interface {
	Notify(level Level, resource, message string) Notification
}

// Hub keeps recent notifications and fans new ones out to subscribers. Slow
// subscribers miss messages rather than block the sender.
type Hub struct {
	mu     sync.Mutex
	limit  int
	recent []Notification
	subs   map[int]chan Notification
	nextID int
	closed bool
	now    func() time.Time
}

func NewHub(limit int) *Hub {
	if limit <= 0 {
		limit = DefaultLimit
	}
	return &Hub{
		limit: limit,
		subs:  make(map[int]chan Notification),
		now:   time.Now,
	}
}

func (h *Hub) Notify(level Level, resource, message string) Notification {
	h.mu.Lock()
	defer h.mu.Unlock()

	now := h.now().UTC()
	n := Notification{
		ID:        ulid.MustNew(ulid.Timestamp(now), ulid.DefaultEntropy()).String(),
		Level:     level,
		Message:   message,
		Resource:  resource,
		CreatedAt: now,
	}
	if h.closed {
		return n
	}

	h.recent = append(h.recent, n)
	if over := len(h.recent) - h.limit; over > 0 {
		h.recent = append([]Notification(nil), h.recent[over:]...)
	}

	for _, ch := range h.subs {
		select {
		case ch <- n:
		default:
		}
	}
	return n
}

func (h *Hub) Success(resource, message string) Notification {
	return h.Notify(LevelSuccess, resource, message)
}

func (h *Hub) Error(resource, message string) Notification {
	return h.Notify(LevelError, resource, message)
}

// Recent returns the remembered notifications, oldest first.
func (h *Hub) Recent() []Notification {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]Notification, len(h.recent))
	copy(out, h.recent)
	return out
}

// Subscribe returns a channel of new notifications and a function that ends the
// subscription. The channel is closed when the subscription ends or the hub closes.
func (h *Hub) Subscribe() (<-chan Notification, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	ch := make(chan Notification, subscriberBuffer)
	if h.closed {
		close(ch)
		return ch, func() {}
	}
	id := h.nextID
	h.nextID++
	h.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			if sub, ok := h.subs[id]; ok {
				delete(h.subs, id)
				close(sub)
			}
		})
	}
}

// Close ends every subscription. Later notifications are dropped.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for id, ch := range h.subs {
		delete(h.subs, id)
		close(ch)
	}
}
