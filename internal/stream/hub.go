// Package stream fans derived series snapshots out to live subscribers such
// as websocket connections and the terminal watch loop.
package stream

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"greeks-dashboard/internal/models"
)

// Snapshot is one completed poll of a series.
type Snapshot struct {
	Topic  string         `json:"topic"`
	Seq    uint64         `json:"seq"`
	At     time.Time      `json:"at"`
	Series *models.Series `json:"series,omitempty"`
	Error  string         `json:"error,omitempty"`
}

// HubConfig holds configuration for the Hub.
type HubConfig struct {
	// BufferSize is the size of the internal publish channel buffer.
	BufferSize int
	// SubscriberBufferSize is the size of each subscriber's channel buffer.
	SubscriberBufferSize int
}

// DefaultHubConfig returns the default hub configuration.
func DefaultHubConfig() HubConfig {
	return HubConfig{
		BufferSize:           64,
		SubscriberBufferSize: 4,
	}
}

// Hub distributes snapshots to subscribers of a topic. Topics are series
// query keys. Sends never block: a full subscriber misses the snapshot and
// catches up on the next one.
type Hub struct {
	config      HubConfig
	mu          sync.RWMutex
	subscribers map[string][]*Subscriber
	latest      map[string]Snapshot
	publishCh   chan Snapshot
	done        chan struct{}
	started     bool

	metricsMu sync.RWMutex
	received  uint64
	delivered uint64
	dropped   uint64
}

// Subscriber is one consumer of a topic.
type Subscriber struct {
	ID    string
	Topic string
	C     <-chan Snapshot
	ch    chan Snapshot
}

// NewHub creates a hub with default configuration.
func NewHub() *Hub {
	return NewHubWithConfig(DefaultHubConfig())
}

// NewHubWithConfig creates a hub with custom configuration.
func NewHubWithConfig(config HubConfig) *Hub {
	if config.BufferSize <= 0 {
		config.BufferSize = 1
	}
	if config.SubscriberBufferSize <= 0 {
		config.SubscriberBufferSize = 1
	}
	return &Hub{
		config:      config,
		subscribers: make(map[string][]*Subscriber),
		latest:      make(map[string]Snapshot),
		publishCh:   make(chan Snapshot, config.BufferSize),
		done:        make(chan struct{}),
	}
}

// Start begins the distribution loop. It returns immediately.
func (h *Hub) Start(ctx context.Context) {
	h.mu.Lock()
	if h.started {
		h.mu.Unlock()
		return
	}
	h.started = true
	h.mu.Unlock()

	go h.broadcastLoop(ctx)
}

func (h *Hub) broadcastLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-h.done:
			return
		case snap := <-h.publishCh:
			h.metricsMu.Lock()
			h.received++
			h.metricsMu.Unlock()

			h.broadcast(snap)
		}
	}
}

// Stop stops the hub and closes all subscriber channels.
func (h *Hub) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.started {
		return
	}
	close(h.done)
	h.started = false

	for topic, subs := range h.subscribers {
		for _, sub := range subs {
			close(sub.ch)
		}
		delete(h.subscribers, topic)
	}
	clear(h.latest)
}

// Subscribe registers a subscriber for topic. If a snapshot was already
// published for topic it is queued immediately.
func (h *Hub) Subscribe(topic string) *Subscriber {
	ch := make(chan Snapshot, h.config.SubscriberBufferSize)
	sub := &Subscriber{
		ID:    uuid.NewString(),
		Topic: topic,
		C:     ch,
		ch:    ch,
	}

	h.mu.Lock()
	h.subscribers[topic] = append(h.subscribers[topic], sub)
	if last, ok := h.latest[topic]; ok {
		ch <- last
	}
	h.mu.Unlock()

	return sub
}

// Unsubscribe removes sub and closes its channel. The topic's latest
// snapshot is dropped with its last subscriber.
func (h *Hub) Unsubscribe(sub *Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()

	subs := h.subscribers[sub.Topic]
	for i, s := range subs {
		if s == sub {
			close(s.ch)
			h.subscribers[sub.Topic] = append(subs[:i], subs[i+1:]...)
			break
		}
	}
	if len(h.subscribers[sub.Topic]) == 0 {
		delete(h.subscribers, sub.Topic)
		delete(h.latest, sub.Topic)
	}
}

// Publish queues snap for distribution. If the internal buffer is full the
// snapshot is dropped.
func (h *Hub) Publish(snap Snapshot) {
	select {
	case h.publishCh <- snap:
	default:
		h.metricsMu.Lock()
		h.dropped++
		h.metricsMu.Unlock()
	}
}

// broadcast records snap as the topic's latest and sends it to every
// subscriber. Topics without subscribers keep nothing.
func (h *Hub) broadcast(snap Snapshot) {
	h.mu.Lock()
	if prev, ok := h.latest[snap.Topic]; ok && prev.Seq > snap.Seq {
		h.mu.Unlock()
		return
	}
	subs := append([]*Subscriber(nil), h.subscribers[snap.Topic]...)
	if len(subs) > 0 {
		h.latest[snap.Topic] = snap
	}
	h.mu.Unlock()

	for _, sub := range subs {
		h.send(sub, snap)
	}
}

func (h *Hub) send(sub *Subscriber, snap Snapshot) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if !h.isSubscribedLocked(sub) {
		return
	}
	select {
	case sub.ch <- snap:
		h.metricsMu.Lock()
		h.delivered++
		h.metricsMu.Unlock()
	default:
		h.metricsMu.Lock()
		h.dropped++
		h.metricsMu.Unlock()
	}
}

func (h *Hub) isSubscribedLocked(sub *Subscriber) bool {
	for _, s := range h.subscribers[sub.Topic] {
		if s == sub {
			return true
		}
	}
	return false
}

// Latest returns the most recent snapshot published for topic.
func (h *Hub) Latest(topic string) (Snapshot, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	snap, ok := h.latest[topic]
	return snap, ok
}

// GetMetrics returns hub metrics.
func (h *Hub) GetMetrics() HubMetrics {
	h.metricsMu.RLock()
	m := HubMetrics{
		Received:  h.received,
		Delivered: h.delivered,
		Dropped:   h.dropped,
	}
	h.metricsMu.RUnlock()

	h.mu.RLock()
	m.Topics = len(h.subscribers)
	m.Retained = len(h.latest)
	for _, subs := range h.subscribers {
		m.Subscribers += len(subs)
	}
	h.mu.RUnlock()
	return m
}

// HubMetrics contains hub counters.
type HubMetrics struct {
	Received    uint64 `json:"received"`
	Delivered   uint64 `json:"delivered"`
	Dropped     uint64 `json:"dropped"`
	Subscribers int    `json:"subscribers"`
	Topics      int    `json:"topics"`
	Retained    int    `json:"retained"` // topics holding a latest snapshot
}
