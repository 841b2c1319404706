package deeplink

import (
	"sync"

	"github.com/jrsteele09/fixit-auth/internal/logging"
	"github.com/rs/zerolog"
)

// Source delivers redirect URLs as the platform hands them to the app.
type Source interface {
	// InitialURL is the URL the app was launched with, or "".
	InitialURL() string
	Subscribe(buffer int) *Subscription
}

// Hub fans published redirect URLs out to subscribers.
type Hub struct {
	initialURL string
	log        zerolog.Logger

	mu     sync.Mutex
	subs   map[int]*Subscription
	nextID int
}

var _ Source = (*Hub)(nil)

func NewHub(initialURL string) *Hub {
	return &Hub{
		initialURL: initialURL,
		log:        logging.Component("deeplink"),
		subs:       make(map[int]*Subscription),
	}
}

func (h *Hub) InitialURL() string {
	return h.initialURL
}

// Subscribe returns a subscription whose channel receives every URL published
// after this call. A subscriber that falls more than buffer URLs behind misses
// the overflow.
func (h *Hub) Subscribe(buffer int) *Subscription {
	if buffer < 1 {
		buffer = 1
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	sub := &Subscription{hub: h, id: h.nextID, ch: make(chan string, buffer)}
	sub.C = sub.ch
	h.subs[sub.id] = sub
	h.nextID++
	return sub
}

// Publish delivers url to all current subscribers without blocking.
func (h *Hub) Publish(url string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for id := 0; id < h.nextID; id++ {
		sub, ok := h.subs[id]
		if !ok {
			continue
		}
		select {
		case sub.ch <- url:
		default:
			h.log.Warn().Int("subscriber", id).Msg("subscriber is full, dropping redirect")
		}
	}
}

func (h *Hub) remove(id int) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if sub, ok := h.subs[id]; ok {
		delete(h.subs, id)
		close(sub.ch)
	}
}

type Subscription struct {
	C <-chan string

	hub  *Hub
	id   int
	ch   chan string
	once sync.Once
}

// Close detaches the subscription and closes C.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.hub.remove(s.id)
	})
}
