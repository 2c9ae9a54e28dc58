package ws

import (
	"context"
	"sync"

	"go.uber.org/zap"
	"mdstream.com/internal/marketdata/mdmetrics"
	"mdstream.com/pkg/logger"
)

// Hub routes payloads by topic. It remembers the last payload per topic so a
// new subscriber gets the current value immediately.
type Hub struct {
	mu   sync.RWMutex
	subs map[string]map[*Conn]struct{} // topic -> set(conn)
	last map[string][]byte             // topic -> last payload
}

func NewHub() *Hub {
	return &Hub{
		subs: make(map[string]map[*Conn]struct{}, 1024),
		last: make(map[string][]byte, 1024),
	}
}

func (h *Hub) Subscribe(c *Conn, topics []string) {
	logger.Debug(context.Background(), "ws subscribe", zap.String("conn", c.id), zap.Strings("topics", topics))
	mdmetrics.WSSubOpsTotal.WithLabelValues("sub").Add(float64(len(topics)))

	h.mu.Lock()
	defer h.mu.Unlock()
	for _, t := range topics {
		set := h.subs[t]
		if set == nil {
			set = make(map[*Conn]struct{}, 16)
			h.subs[t] = set
		}
		set[c] = struct{}{}
		// Offered under the lock so a concurrent Publish cannot be overtaken
		// by an older snapshot.
		if b := h.last[t]; b != nil {
			_ = c.Offer(t, b)
		}
	}
}

func (h *Hub) Unsubscribe(c *Conn, topics []string) {
	mdmetrics.WSSubOpsTotal.WithLabelValues("unsub").Add(float64(len(topics)))
	h.mu.Lock()
	for _, t := range topics {
		if set := h.subs[t]; set != nil {
			delete(set, c)
			if len(set) == 0 {
				delete(h.subs, t)
			}
		}
	}
	h.mu.Unlock()
}

func (h *Hub) RemoveConn(c *Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for topic, m := range h.subs {
		delete(m, c)
		if len(m) == 0 {
			delete(h.subs, topic)
		}
	}
}

// Publish never blocks: each connection keeps only the newest payload per topic.
func (h *Hub) Publish(topic string, payload []byte) {
	cp := make([]byte, len(payload))
	copy(cp, payload)

	h.mu.Lock()
	h.last[topic] = cp
	set := make([]*Conn, 0, len(h.subs[topic]))
	for c := range h.subs[topic] {
		set = append(set, c)
	}
	h.mu.Unlock()

	for _, c := range set {
		_ = c.Offer(topic, cp)
	}
}

// Last returns the most recent payload published on topic.
func (h *Hub) Last(topic string) ([]byte, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	b, ok := h.last[topic]
	return b, ok
}

// Subscribers counts connections on topic.
func (h *Hub) Subscribers(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[topic])
}
