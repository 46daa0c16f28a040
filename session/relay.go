package session

import (
	"chat-match/domain"
	"chat-match/errors"
	"context"
	"fmt"
)

// RecordAndRelay appends text to the session log, forwards it to the peer
// and acknowledges delivery to the sender.
// The sender must be a participant of the session, otherwise nothing happens.
func (s *Store) RecordAndRelay(ctx context.Context, id domain.SessionID, sender domain.ConnectionID, text string) error {
	session, ok := s.sessions[id]
	if !ok {
		return fmt.Errorf("session %s not found: %w", id, errors.ErrInvalidSession)
	}
	peer, ok := session.PartnerOf(sender)
	if !ok {
		return fmt.Errorf("%s is not part of %s: %w", sender.Suffix(), id, errors.ErrInvalidSession)
	}

	message := domain.Message{
		SessionID: id,
		Seq:       session.MessageCount,
		SenderID:  sender,
		Text:      text,
		CreatedAt: s.now(),
	}
	if err := s.messageLog.Append(ctx, message); err != nil {
		return fmt.Errorf("recording message in %s: %w", id, err)
	}
	session.MessageCount++

	s.notify(ctx, peer, domain.EventNewMessage, domain.NewMessagePayload{
		Sender:  sender.UserLabel(),
		Message: text,
	})
	s.notify(ctx, sender, domain.EventMessageAck, domain.MessageAckPayload{
		Status:  domain.AckDelivered,
		Message: text,
	})
	s.log.Debug("Message relayed", "session_id", id, "seq", message.Seq, "from", sender.Suffix(), "to", peer.Suffix())
	return nil
}
