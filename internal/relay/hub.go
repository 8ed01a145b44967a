package relay

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/immxrtalbeast/meetroom/internal/metrics"
)

const defaultSubscriberBuffer = 64

// Subscription receives the events of one channel until Close is called or
// the hub shuts down, after which Events is closed.
type Subscription struct {
	ID      string
	Channel string
	Events  <-chan Event

	events chan Event
	hub    *Hub
}

func (s *Subscription) Close() {
	s.hub.unsubscribe(s)
}

// Hub is the in-process relay. Each subscriber gets its own buffered queue;
// a subscriber that falls behind loses events instead of stalling the room.
type Hub struct {
	mu       sync.RWMutex
	channels map[string]map[string]*Subscription
	buffer   int
	closed   bool
	log      *slog.Logger
}

func NewHub(buffer int, log *slog.Logger) *Hub {
	if buffer <= 0 {
		buffer = defaultSubscriberBuffer
	}
	if log == nil {
		log = slog.Default()
	}
	return &Hub{
		channels: make(map[string]map[string]*Subscription),
		buffer:   buffer,
		log:      log,
	}
}

func (h *Hub) Subscribe(channel string) *Subscription {
	events := make(chan Event, h.buffer)
	sub := &Subscription{
		ID:      uuid.NewString(),
		Channel: channel,
		Events:  events,
		events:  events,
		hub:     h,
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		close(events)
		return sub
	}

	subs, ok := h.channels[channel]
	if !ok {
		subs = make(map[string]*Subscription)
		h.channels[channel] = subs
	}
	subs[sub.ID] = sub

	h.log.Debug("subscribed", slog.String("channel", channel), slog.String("subscription", sub.ID))
	return sub
}

func (h *Hub) unsubscribe(sub *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()

	subs, ok := h.channels[sub.Channel]
	if !ok {
		return
	}
	if _, ok := subs[sub.ID]; !ok {
		return
	}
	delete(subs, sub.ID)
	close(sub.events)
	if len(subs) == 0 {
		delete(h.channels, sub.Channel)
	}

	h.log.Debug("unsubscribed", slog.String("channel", sub.Channel), slog.String("subscription", sub.ID))
}

// Publish never blocks and never fails; sends happen under the read lock so a
// concurrent unsubscribe cannot close a queue mid-send.
func (h *Hub) Publish(ctx context.Context, channel string, ev Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, sub := range h.channels[channel] {
		select {
		case sub.events <- ev:
		default:
			metrics.RelayDropped.Inc()
			h.log.Debug("dropping relay event",
				slog.String("channel", channel),
				slog.String("subscription", sub.ID),
				slog.String("event", string(ev.Type)),
			)
		}
	}
	return nil
}

func (h *Hub) SubscriberCount(channel string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.channels[channel])
}

// Close ends every subscription. Later Subscribe calls get a closed stream.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return
	}
	h.closed = true
	for channel, subs := range h.channels {
		for _, sub := range subs {
			close(sub.events)
		}
		delete(h.channels, channel)
	}
}
