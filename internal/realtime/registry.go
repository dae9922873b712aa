package realtime

import (
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/gorilla/websocket"

	"relo/internal/observability"
)

// CloseSessionReplaced is sent to a socket evicted by a newer one for the
// same user.
const CloseSessionReplaced = 4001

// Channel is a live, send-capable connection owned by the Registry.
type Channel interface {
	// Enqueue must not block. It reports false when the payload was not
	// accepted (buffer full or channel closed).
	Enqueue(payload []byte) bool
	Close(code int, reason string)
}

// Registry maps each user to at most one live Channel. A single mutex
// covers Admit, Remove and SendTo so a send never lands on an entry that is
// being swapped out.
type Registry struct {
	mu      sync.Mutex
	conns   map[string]Channel
	log     *slog.Logger
	metrics *observability.Metrics
}

func NewRegistry(log *slog.Logger, metrics *observability.Metrics) *Registry {
	return &Registry{
		conns:   make(map[string]Channel),
		log:     log,
		metrics: metrics,
	}
}

// Admit makes ch the live channel of userID. A different channel already
// registered for the user is closed after the swap.
func (r *Registry) Admit(userID string, ch Channel) {
	r.mu.Lock()
	previous := r.conns[userID]
	r.conns[userID] = ch
	if previous == nil {
		r.metrics.ActiveConnections.Inc()
	}
	r.mu.Unlock()

	if previous != nil && previous != ch {
		r.metrics.SupersededConnections.Inc()
		r.log.Info("connection superseded", "user_id", userID)
		previous.Close(CloseSessionReplaced, "session replaced")
	}
}

// Remove deletes the mapping only when ch is still the registered channel,
// so a late disconnect cannot evict a newer connection.
func (r *Registry) Remove(userID string, ch Channel) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if current, ok := r.conns[userID]; ok && current == ch {
		delete(r.conns, userID)
		r.metrics.ActiveConnections.Dec()
		return true
	}
	return false
}

// SendTo delivers env to userID's live channel, best effort. It never
// blocks on the network and never returns an error: an absent user, a full
// queue or an encoding failure all report false.
func (r *Registry) SendTo(userID string, env Envelope) bool {
	payload, err := json.Marshal(env)
	if err != nil {
		r.log.Error("marshal envelope", "type", env.Type, "error", err)
		r.metrics.Envelopes.WithLabelValues(env.Type, "dropped").Inc()
		return false
	}

	r.mu.Lock()
	ch, ok := r.conns[userID]
	delivered := ok && ch.Enqueue(payload)
	r.mu.Unlock()

	if delivered {
		r.metrics.Envelopes.WithLabelValues(env.Type, "delivered").Inc()
	} else {
		r.metrics.Envelopes.WithLabelValues(env.Type, "dropped").Inc()
	}
	return delivered
}

// IsConnected reports whether userID currently has a live channel.
func (r *Registry) IsConnected(userID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.conns[userID]
	return ok
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.conns)
}

// Close evicts and closes every channel. Used on shutdown.
func (r *Registry) Close() {
	r.mu.Lock()
	conns := r.conns
	r.conns = make(map[string]Channel)
	r.metrics.ActiveConnections.Set(0)
	r.mu.Unlock()

	for _, ch := range conns {
		ch.Close(websocket.CloseGoingAway, "server shutdown")
	}
}
