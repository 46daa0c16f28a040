// Package matchmaking owns the waiting queue.
// Connections are matched in strict arrival order, there is no priority.
package matchmaking

import (
	"chat-match/contract"
	"chat-match/domain"
	"context"
	"log/slog"

	"github.com/samber/lo"
)

// Matchmaker keeps the FIFO of connections waiting for a partner.
// It is not safe for concurrent use: callers serialize access.
type Matchmaker struct {
	log          *slog.Logger
	notifier     contract.Notifier
	participants contract.ParticipantIndex
	queue        []domain.ConnectionID
	queued       map[domain.ConnectionID]struct{}
}

func NewMatchmaker(log *slog.Logger, notifier contract.Notifier, participants contract.ParticipantIndex) *Matchmaker {
	return &Matchmaker{
		log:          log,
		notifier:     notifier,
		participants: participants,
		queued:       make(map[domain.ConnectionID]struct{}),
	}
}

// Enqueue appends conn to the tail of the queue and tells it to wait.
// A connection already queued or already in a session is left untouched.
// It returns true only when conn was freshly enqueued.
func (m *Matchmaker) Enqueue(ctx context.Context, conn domain.ConnectionID) bool {
	if m.Contains(conn) {
		m.log.Debug("Connection already waiting", "conn", conn.Suffix())
		return false
	}
	if sessionID, ok := m.participants.FindSessionFor(conn); ok {
		m.log.Debug("Connection already paired, not enqueued", "conn", conn.Suffix(), "session_id", sessionID)
		return false
	}
	m.queue = append(m.queue, conn)
	m.queued[conn] = struct{}{}

	if err := m.notifier.Notify(ctx, conn, domain.EventWaiting, domain.WaitingPayload{
		Message: domain.WaitingMessage,
	}); err != nil {
		m.log.Debug("Waiting notification not delivered", "conn", conn.Suffix(), "error", err)
	}
	m.log.Info("Connection waiting", "conn", conn.Suffix(), "queue_size", len(m.queue))
	return true
}

// DequeueIfAny pops the head of the queue.
func (m *Matchmaker) DequeueIfAny() (domain.ConnectionID, bool) {
	if len(m.queue) == 0 {
		return "", false
	}
	head := m.queue[0]
	m.queue = m.queue[1:]
	delete(m.queued, head)
	return head, true
}

// PushFront puts conn back at the head of the queue, without any notification.
// Used when a match is aborted after its partner was dequeued.
func (m *Matchmaker) PushFront(conn domain.ConnectionID) {
	if m.Contains(conn) {
		return
	}
	m.queue = append([]domain.ConnectionID{conn}, m.queue...)
	m.queued[conn] = struct{}{}
}

// Remove drops conn from the queue whether it is present or not.
func (m *Matchmaker) Remove(conn domain.ConnectionID) {
	if !m.Contains(conn) {
		return
	}
	m.queue = lo.Without(m.queue, conn)
	delete(m.queued, conn)
}

func (m *Matchmaker) Contains(conn domain.ConnectionID) bool {
	_, ok := m.queued[conn]
	return ok
}

func (m *Matchmaker) Len() int {
	return len(m.queue)
}

// Snapshot returns the queue in arrival order.
func (m *Matchmaker) Snapshot() []domain.ConnectionID {
	return append([]domain.ConnectionID(nil), m.queue...)
}
