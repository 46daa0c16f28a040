package domain

import (
	"time"

	"github.com/samber/lo"
)

type SessionID string

const SessionIDPrefix = "session:"

// Session is an active pairing of exactly two distinct connections.
type Session struct {
	ID           SessionID
	Participants [2]ConnectionID
	CreatedAt    time.Time
	MessageCount int
}

func NewSession(id SessionID, a, b ConnectionID, createdAt time.Time) *Session {
	return &Session{
		ID:           id,
		Participants: [2]ConnectionID{a, b},
		CreatedAt:    createdAt,
	}
}

func (s *Session) Has(conn ConnectionID) bool {
	return s.Participants[0] == conn || s.Participants[1] == conn
}

// PartnerOf returns the other participant. ok is false when conn is not part of the session.
func (s *Session) PartnerOf(conn ConnectionID) (ConnectionID, bool) {
	switch conn {
	case s.Participants[0]:
		return s.Participants[1], true
	case s.Participants[1]:
		return s.Participants[0], true
	default:
		return "", false
	}
}

// Others lists the participants different from conn, compared by value.
// An empty conn returns both participants.
func (s *Session) Others(conn ConnectionID) []ConnectionID {
	return lo.Filter(s.Participants[:], func(p ConnectionID, _ int) bool {
		return p != conn
	})
}

// TerminationReason explains why a session was destroyed.
type TerminationReason string

const (
	ReasonDisconnect  TerminationReason = "disconnect"
	ReasonManualLeave TerminationReason = "manual_leave"
	ReasonReconnect   TerminationReason = "reconnect"
	ReasonAbandoned   TerminationReason = "abandoned"
)
