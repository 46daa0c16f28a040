// Package session keeps the live pairings and relays messages inside them.
package session

import (
	"chat-match/contract"
	"chat-match/domain"
	"chat-match/errors"
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
)

var _ contract.ParticipantIndex = (*Store)(nil)

// Store owns every active Session and the index from a connection to its session.
// It is not safe for concurrent use: the lifecycle manager serializes access.
type Store struct {
	log        *slog.Logger
	notifier   contract.Notifier
	messageLog contract.MessageLog
	newID      func() domain.SessionID
	now        func() time.Time
	sessions   map[domain.SessionID]*domain.Session
	byConn     map[domain.ConnectionID]domain.SessionID
}

func NewStore(log *slog.Logger, notifier contract.Notifier, messageLog contract.MessageLog) *Store {
	return &Store{
		log:        log,
		notifier:   notifier,
		messageLog: messageLog,
		newID:      NewSessionID,
		now:        time.Now,
		sessions:   make(map[domain.SessionID]*domain.Session),
		byConn:     make(map[domain.ConnectionID]domain.SessionID),
	}
}

// NewSessionID builds "session:" followed by the 32 hex digits of a random UUID.
func NewSessionID() domain.SessionID {
	return domain.SessionID(domain.SessionIDPrefix + strings.ReplaceAll(uuid.NewString(), "-", ""))
}

// WithIDGenerator replaces the session id source.
func (s *Store) WithIDGenerator(newID func() domain.SessionID) *Store {
	s.newID = newID
	return s
}

// WithClock replaces the time source used for CreatedAt.
func (s *Store) WithClock(now func() time.Time) *Store {
	s.now = now
	return s
}

// Create pairs a and b into a new session and tells each side who its partner is.
func (s *Store) Create(ctx context.Context, a, b domain.ConnectionID) (domain.SessionID, error) {
	if a == b {
		s.log.Warn("Session creation aborted", "conn", a.Suffix(), "error", errors.ErrSameConnection)
		return "", errors.ErrSameConnection
	}
	for _, conn := range []domain.ConnectionID{a, b} {
		if existing, ok := s.byConn[conn]; ok {
			s.log.Warn("Session creation aborted",
				"conn", conn.Suffix(), "session_id", existing, "error", errors.ErrAlreadyParticipant)
			return "", fmt.Errorf("%s: %w", conn.Suffix(), errors.ErrAlreadyParticipant)
		}
	}

	id := s.newID()
	for s.exists(id) {
		s.log.Warn("Session id collision, regenerating", "session_id", id)
		id = s.newID()
	}

	s.sessions[id] = domain.NewSession(id, a, b, s.now())
	s.byConn[a] = id
	s.byConn[b] = id

	s.notify(ctx, a, domain.EventMatched, domain.MatchedPayload{SessionID: id, Partner: b.Suffix()})
	s.notify(ctx, b, domain.EventMatched, domain.MatchedPayload{SessionID: id, Partner: a.Suffix()})
	s.log.Info("Session created", "session_id", id, "conn_a", a.Suffix(), "conn_b", b.Suffix())
	return id, nil
}

// Terminate destroys the session and its log, then tells every participant
// other than instigator that the partner is gone. An empty instigator notifies
// both participants. It returns false when the session does not exist.
func (s *Store) Terminate(ctx context.Context, id domain.SessionID, instigator domain.ConnectionID, reason domain.TerminationReason) bool {
	session, ok := s.sessions[id]
	if !ok {
		s.log.Debug("Session already terminated", "session_id", id, "reason", reason)
		return false
	}

	delete(s.sessions, id)
	for _, conn := range session.Participants {
		if s.byConn[conn] == id {
			delete(s.byConn, conn)
		}
	}
	if err := s.messageLog.Drop(ctx, id); err != nil {
		s.log.Error("Session log not dropped", "session_id", id, "error", err)
	}

	for _, conn := range session.Others(instigator) {
		s.notify(ctx, conn, domain.EventStatus, domain.StatusPayload{Message: domain.PartnerDisconnectMessage})
	}
	s.log.Info("Session terminated",
		"session_id", id, "reason", reason, "messages", session.MessageCount,
		"duration", s.now().Sub(session.CreatedAt).Round(time.Millisecond))
	return true
}

// FindSessionFor returns the session conn currently participates in.
func (s *Store) FindSessionFor(conn domain.ConnectionID) (domain.SessionID, bool) {
	id, ok := s.byConn[conn]
	return id, ok
}

// Get returns a copy of the session.
func (s *Store) Get(id domain.SessionID) (domain.Session, bool) {
	session, ok := s.sessions[id]
	if !ok {
		return domain.Session{}, false
	}
	return *session, true
}

func (s *Store) Len() int {
	return len(s.sessions)
}

// Participants returns the number of indexed connections.
func (s *Store) Participants() int {
	return len(s.byConn)
}

// Messages reads back the log of a session. It is never exposed to clients.
func (s *Store) Messages(ctx context.Context, id domain.SessionID) ([]domain.Message, error) {
	if !s.exists(id) {
		return nil, errors.ErrInvalidSession
	}
	return s.messageLog.List(ctx, id)
}

// Each calls fn for every live session until fn returns false.
func (s *Store) Each(fn func(session domain.Session) bool) {
	for _, session := range s.sessions {
		if !fn(*session) {
			return
		}
	}
}

func (s *Store) exists(id domain.SessionID) bool {
	_, ok := s.sessions[id]
	return ok
}

func (s *Store) notify(ctx context.Context, conn domain.ConnectionID, event domain.EventName, payload any) {
	if err := s.notifier.Notify(ctx, conn, event, payload); err != nil {
		s.log.Debug("Notification not delivered", "conn", conn.Suffix(), "event", event, "error", err)
	}
}
