// Package domain contains core concepts of the pairing chat.
// This file defines Message records kept in a session log.
// Messages are immutable once recorded.
package domain

import (
	"time"
)

// Message represents one relayed chat line inside a Session.
type Message struct {
	SessionID SessionID
	Seq       int // insertion order within the session, starts at 0
	SenderID  ConnectionID
	Text      string
	CreatedAt time.Time
}
