// Package broadcast fans status change events out to connected
// observers. Delivery is best-effort: every observer has a bounded
// queue and a publisher never waits for a slow consumer.
package broadcast

import (
	"sync"

	"go.uber.org/zap"

	"github.com/wanghui5801/fleetmon/internal/metrics"
	"github.com/wanghui5801/fleetmon/internal/models"
)

const DefaultQueueSize = 64

// Hub tracks the set of connected observers.
type Hub struct {
	log       *zap.Logger
	queueSize int

	mu        sync.RWMutex
	observers map[*Observer]struct{}
	closed    bool
}

// Observer is a single fanout subscriber. Events arrive on the channel
// returned by Events; when the queue is full the oldest pending event
// is dropped in favour of the newest.
type Observer struct {
	hub *Hub

	mu     sync.Mutex
	closed bool
	ch     chan models.StatusChange
}

func NewHub(queueSize int, log *zap.Logger) *Hub {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Hub{
		log:       log,
		queueSize: queueSize,
		observers: make(map[*Observer]struct{}),
	}
}

// Subscribe registers a new observer. Missed events are never replayed;
// a reconnecting observer refreshes from the pull API instead.
func (h *Hub) Subscribe() *Observer {
	o := &Observer{
		hub: h,
		ch:  make(chan models.StatusChange, h.queueSize),
	}
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		close(o.ch)
		o.closed = true
		return o
	}
	h.observers[o] = struct{}{}
	h.mu.Unlock()
	metrics.Observers.Inc()
	return o
}

// Publish delivers ev to every observer without blocking. Events for a
// single node arrive at each observer in publish order because the
// registry publishes while still holding that node's lock.
func (h *Hub) Publish(ev models.StatusChange) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for o := range h.observers {
		o.offer(ev)
	}
}

// Close shuts down the hub and every observer still attached.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	obs := make([]*Observer, 0, len(h.observers))
	for o := range h.observers {
		obs = append(obs, o)
	}
	h.observers = make(map[*Observer]struct{})
	h.mu.Unlock()
	for _, o := range obs {
		o.shutdown()
		metrics.Observers.Dec()
	}
}

// Events is the observer's receive channel. It is closed when the
// observer or the hub shuts down.
func (o *Observer) Events() <-chan models.StatusChange {
	return o.ch
}

// Close detaches the observer from the hub and releases its queue.
// Safe to call more than once and concurrently with Publish.
func (o *Observer) Close() {
	h := o.hub
	h.mu.Lock()
	_, attached := h.observers[o]
	delete(h.observers, o)
	h.mu.Unlock()
	if attached {
		o.shutdown()
		metrics.Observers.Dec()
	}
}

func (o *Observer) offer(ev models.StatusChange) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return
	}
	select {
	case o.ch <- ev:
		return
	default:
	}
	// Queue full: evict the oldest pending event, then retry once.
	select {
	case <-o.ch:
		metrics.EventsDropped.Inc()
	default:
	}
	select {
	case o.ch <- ev:
	default:
		metrics.EventsDropped.Inc()
	}
}

func (o *Observer) shutdown() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return
	}
	o.closed = true
	close(o.ch)
}
