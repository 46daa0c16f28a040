// Package recorder provides an in-memory Notifier that keeps every emitted event.
// It replaces the transport in tests.
package recorder

import (
	"chat-match/contract"
	"chat-match/domain"
	"context"
	"sync"

	"github.com/samber/lo"
)

var _ contract.Notifier = (*Recorder)(nil)

type Notification struct {
	Conn    domain.ConnectionID
	Event   domain.EventName
	Payload any
}

type Recorder struct {
	mu            sync.Mutex
	notifications []Notification
}

func New() *Recorder {
	return &Recorder{}
}

func (r *Recorder) Notify(_ context.Context, conn domain.ConnectionID, event domain.EventName, payload any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notifications = append(r.notifications, Notification{Conn: conn, Event: event, Payload: payload})
	return nil
}

// All returns a copy of every notification in emission order.
func (r *Recorder) All() []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Notification(nil), r.notifications...)
}

// For returns the notifications received by one connection.
func (r *Recorder) For(conn domain.ConnectionID) []Notification {
	return lo.Filter(r.All(), func(n Notification, _ int) bool {
		return n.Conn == conn
	})
}

// Count returns how many times conn received event.
func (r *Recorder) Count(conn domain.ConnectionID, event domain.EventName) int {
	return lo.CountBy(r.For(conn), func(n Notification) bool {
		return n.Event == event
	})
}

// Last returns the latest notification of conn.
func (r *Recorder) Last(conn domain.ConnectionID) (Notification, bool) {
	received := r.For(conn)
	if len(received) == 0 {
		return Notification{}, false
	}
	return received[len(received)-1], true
}

func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notifications = nil
}
