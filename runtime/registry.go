package runtime

import (
	"chat-match/contract"
	"chat-match/domain"
	"chat-match/errors"
	"chat-match/observability"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
)

var _ contract.IRegistry = (*Registry)(nil)

// Registry maps every live connection to the sink writing to it.
// It is the only Notifier of the core: events are framed as envelopes here.
type Registry struct {
	mu          sync.RWMutex
	log         *slog.Logger
	monitoring  *observability.MonitoringManager
	connections map[domain.ConnectionID]contract.ConnectionSink
}

func NewRegistry(log *slog.Logger, monitoring *observability.MonitoringManager) *Registry {
	return &Registry{
		log:         log,
		monitoring:  monitoring,
		connections: make(map[domain.ConnectionID]contract.ConnectionSink),
	}
}

// Register binds conn to its sink. A sink already bound to conn is closed and replaced.
func (r *Registry) Register(conn domain.ConnectionID, sink contract.ConnectionSink) {
	r.mu.Lock()
	previous, replaced := r.connections[conn]
	r.connections[conn] = sink
	r.mu.Unlock()

	if replaced {
		r.log.Warn("Connection registered twice, closing previous sink", "conn", conn.Suffix())
		previous.Close()
		return
	}
	r.monitoring.IncrConnectionsOpened()
}

// Unregister forgets conn and closes its sink. Unknown connections are ignored.
func (r *Registry) Unregister(conn domain.ConnectionID) {
	r.mu.Lock()
	sink, ok := r.connections[conn]
	delete(r.connections, conn)
	r.mu.Unlock()

	if !ok {
		return
	}
	sink.Close()
	r.monitoring.IncrConnectionsClosed()
}

// Notify frames the event and hands it to the sink of conn without waiting for delivery.
func (r *Registry) Notify(_ context.Context, conn domain.ConnectionID, event domain.EventName, payload any) error {
	r.mu.RLock()
	sink, ok := r.connections[conn]
	r.mu.RUnlock()

	if !ok {
		r.monitoring.IncrDroppedNotifications()
		return fmt.Errorf("%s: %w", conn.Suffix(), errors.ErrConnectionGone)
	}

	data, err := json.Marshal(domain.Envelope{Event: event, Data: payload})
	if err != nil {
		return fmt.Errorf("encoding %s: %w", event, err)
	}
	if err = sink.Send(data); err != nil {
		r.monitoring.IncrDroppedNotifications()
		r.log.Warn("Notification dropped", "conn", conn.Suffix(), "event", event, "error", err)
		return err
	}
	return nil
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.connections)
}
