// Package lifecycle drives every connection through Idle, Waiting and Paired.
// It is the only owner of the waiting queue and the session store removals.
package lifecycle

import (
	"chat-match/contract"
	"chat-match/domain"
	"chat-match/errors"
	"chat-match/matchmaking"
	"chat-match/observability"
	"chat-match/session"
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/samber/lo"
)

var _ contract.CommandHandler = (*Manager)(nil)

type Manager struct {
	mu         sync.Mutex
	log        *slog.Logger
	notifier   contract.Notifier
	matchmaker *matchmaking.Matchmaker
	store      *session.Store
	monitoring *observability.MonitoringManager
	errorAcks  bool
}

// Snapshot is a point in time view of the pairing structures.
type Snapshot struct {
	Waiting        int
	ActiveSessions int
}

func NewManager(
	log *slog.Logger,
	notifier contract.Notifier,
	messageLog contract.MessageLog,
	monitoring *observability.MonitoringManager,
	errorAcks bool,
) *Manager {
	store := session.NewStore(log, notifier, messageLog)
	return &Manager{
		log:        log,
		notifier:   notifier,
		matchmaker: matchmaking.NewMatchmaker(log, notifier, store),
		store:      store,
		monitoring: monitoring,
		errorAcks:  errorAcks,
	}
}

// Handle applies one inbound command. Returned errors are informative only:
// the pairing state is consistent whatever the outcome.
func (m *Manager) Handle(ctx context.Context, cmd domain.Command) error {
	switch c := cmd.(type) {
	case domain.ConnectCommand:
		m.OnConnect(ctx, c.Conn, c.ClientLabel)
		return nil
	case domain.FindPartnerCommand:
		return m.OnFindPartner(ctx, c.Conn)
	case domain.SendMessageCommand:
		return m.OnSendMessage(ctx, c.Conn, c.SessionID, c.Text)
	case domain.DisconnectCommand:
		m.OnDisconnect(ctx, c.Conn)
		return nil
	case domain.ManualLeaveCommand:
		return m.OnManualLeave(ctx, c.Conn, c.SessionID)
	case domain.InvalidCommand:
		m.mu.Lock()
		defer m.mu.Unlock()
		err := fmt.Errorf("%s: %s: %w", c.Event, c.Reason, errors.ErrInvalidPayload)
		m.log.Warn("Invalid event dropped", "conn", c.Conn.Suffix(), "event", c.Event, "reason", c.Reason)
		m.reject(ctx, c.Conn, domain.CodeInvalidPayload, err)
		return err
	default:
		return fmt.Errorf("%T: %w", cmd, errors.ErrUnknownCommand)
	}
}

// OnConnect resets whatever state conn had, then greets it.
func (m *Manager) OnConnect(ctx context.Context, conn domain.ConnectionID, clientLabel string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.cleanup(ctx, conn, domain.ReasonReconnect)
	if err := m.notifier.Notify(ctx, conn, domain.EventConnected, domain.ConnectedPayload{
		UserID: domain.ConnectedLabel(conn, clientLabel),
	}); err != nil {
		m.log.Debug("Connected notification not delivered", "conn", conn.Suffix(), "error", err)
	}
	m.log.Info("Connection accepted", "conn", conn.Suffix())
}

// OnFindPartner pairs conn with the head of the queue, or makes it wait.
// Asking again while waiting moves conn to the tail of the queue.
func (m *Manager) OnFindPartner(ctx context.Context, conn domain.ConnectionID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if id, ok := m.store.FindSessionFor(conn); ok {
		m.log.Debug("Find partner ignored, already paired", "conn", conn.Suffix(), "session_id", id)
		return fmt.Errorf("%s in %s: %w", conn.Suffix(), id, errors.ErrAlreadyPaired)
	}

	m.matchmaker.Remove(conn)
	partner, ok := m.matchmaker.DequeueIfAny()
	if !ok {
		m.matchmaker.Enqueue(ctx, conn)
		return nil
	}

	if _, err := m.store.Create(ctx, conn, partner); err != nil {
		m.matchmaker.PushFront(partner)
		return fmt.Errorf("pairing %s with %s: %w", conn.Suffix(), partner.Suffix(), err)
	}
	m.monitoring.IncrMatches()
	return nil
}

// OnSendMessage relays text inside the session. Failures are logged and dropped.
// Only a bad session reference is reported back to the sender.
func (m *Manager) OnSendMessage(ctx context.Context, conn domain.ConnectionID, id domain.SessionID, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.store.RecordAndRelay(ctx, id, conn, text); err != nil {
		if !stderrors.Is(err, errors.ErrInvalidSession) {
			m.log.Error("Message not recorded", "conn", conn.Suffix(), "session_id", id, "error", err)
			return err
		}
		m.log.Warn("Message dropped", "conn", conn.Suffix(), "session_id", id, "error", err)
		m.reject(ctx, conn, domain.CodeInvalidSession, err)
		return err
	}
	m.monitoring.IncrMessagesRelayed()
	return nil
}

// OnDisconnect removes every trace of conn and tells its partner, if any.
// Calling it for an unknown connection does nothing.
func (m *Manager) OnDisconnect(ctx context.Context, conn domain.ConnectionID) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.cleanup(ctx, conn, domain.ReasonDisconnect)
	m.log.Info("Connection gone", "conn", conn.Suffix())
}

// OnManualLeave ends a session on request of one of its participants.
// An empty id means the session conn currently belongs to.
func (m *Manager) OnManualLeave(ctx context.Context, conn domain.ConnectionID, id domain.SessionID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if id == "" {
		resolved, ok := m.store.FindSessionFor(conn)
		if !ok {
			err := fmt.Errorf("%s: %w", conn.Suffix(), errors.ErrUnresolvableLeave)
			m.log.Debug("Manual leave ignored", "conn", conn.Suffix(), "error", err)
			m.reject(ctx, conn, domain.CodeUnresolvableLeave, err)
			return err
		}
		id = resolved
	}

	current, ok := m.store.Get(id)
	if !ok || !current.Has(conn) {
		err := fmt.Errorf("%s cannot leave %s: %w", conn.Suffix(), id, errors.ErrInvalidSession)
		m.log.Debug("Manual leave ignored", "conn", conn.Suffix(), "session_id", id, "error", err)
		m.reject(ctx, conn, domain.CodeInvalidSession, err)
		return err
	}

	m.terminate(ctx, id, conn, domain.ReasonManualLeave)
	return nil
}

// State derives where conn stands from the queue and the store.
func (m *Manager) State(conn domain.ConnectionID) domain.State {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.matchmaker.Contains(conn) {
		return domain.StateWaiting
	}
	if _, ok := m.store.FindSessionFor(conn); ok {
		return domain.StatePaired
	}
	return domain.StateIdle
}

func (m *Manager) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Snapshot{Waiting: m.matchmaker.Len(), ActiveSessions: m.store.Len()}
}

// Messages reads the log of a live session. Used by operators, never by clients.
func (m *Manager) Messages(ctx context.Context, id domain.SessionID) ([]domain.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.store.Messages(ctx, id)
}

// CheckInvariants verifies that a connection is waiting, paired once, or neither,
// and that the connection index agrees with the sessions.
func (m *Manager) CheckInvariants() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	queue := m.matchmaker.Snapshot()
	if duplicates := lo.FindDuplicates(queue); len(duplicates) > 0 {
		return fmt.Errorf("duplicated in waiting queue: %v", duplicates)
	}
	for _, conn := range queue {
		if id, ok := m.store.FindSessionFor(conn); ok {
			return fmt.Errorf("%s is both waiting and paired in %s", conn, id)
		}
	}

	var violation error
	m.store.Each(func(s domain.Session) bool {
		if s.Participants[0] == s.Participants[1] {
			violation = fmt.Errorf("%s pairs %s with itself", s.ID, s.Participants[0])
			return false
		}
		for _, conn := range s.Participants {
			if id, ok := m.store.FindSessionFor(conn); !ok || id != s.ID {
				violation = fmt.Errorf("%s of %s is indexed under %q", conn, s.ID, id)
				return false
			}
		}
		return true
	})
	if violation != nil {
		return violation
	}
	if indexed, expected := m.store.Participants(), 2*m.store.Len(); indexed != expected {
		return fmt.Errorf("%d indexed connections for %d sessions", indexed, m.store.Len())
	}
	return nil
}

func (m *Manager) cleanup(ctx context.Context, conn domain.ConnectionID, reason domain.TerminationReason) {
	m.matchmaker.Remove(conn)
	if id, ok := m.store.FindSessionFor(conn); ok {
		m.terminate(ctx, id, conn, reason)
	}
}

func (m *Manager) terminate(ctx context.Context, id domain.SessionID, instigator domain.ConnectionID, reason domain.TerminationReason) {
	if m.store.Terminate(ctx, id, instigator, reason) {
		m.monitoring.IncrTerminations(reason)
	}
}

// reject counts a refused event and, when enabled, tells the client why.
func (m *Manager) reject(ctx context.Context, conn domain.ConnectionID, code domain.ErrorCode, err error) {
	m.monitoring.IncrRejectedEvents()
	if !m.errorAcks {
		return
	}
	if notifyErr := m.notifier.Notify(ctx, conn, domain.EventError, domain.ErrorPayload{
		Code:    code,
		Message: err.Error(),
	}); notifyErr != nil {
		m.log.Debug("Error acknowledgment not delivered", "conn", conn.Suffix(), "error", notifyErr)
	}
}
