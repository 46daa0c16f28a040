package ws

import (
	"chat-match/domain"
	"encoding/json"
	"fmt"

	"github.com/go-playground/validator/v10"
)

type inboundFrame struct {
	Event domain.EventName `json:"event"`
	Data  json.RawMessage  `json:"data"`
}

type SendMessageRequest struct {
	SessionID string `json:"session_id" validate:"required"`
	Message   string `json:"message" validate:"required"`
}

type ManualLeaveRequest struct {
	SessionID string `json:"session_id"`
}

// FrameDecoder turns client frames into commands.
// A frame it cannot make sense of becomes an InvalidCommand, never an error.
type FrameDecoder struct {
	validate         *validator.Validate
	maxMessageLength int
}

func NewFrameDecoder(maxMessageLength int) *FrameDecoder {
	return &FrameDecoder{validate: validator.New(), maxMessageLength: maxMessageLength}
}

func (d *FrameDecoder) Decode(conn domain.ConnectionID, data []byte) domain.Command {
	var frame inboundFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		return domain.InvalidCommand{Conn: conn, Reason: "malformed frame"}
	}

	switch frame.Event {
	case domain.EventFindPartner:
		return domain.FindPartnerCommand{Conn: conn}

	case domain.EventSendMessage:
		var request SendMessageRequest
		if err := d.unmarshal(frame.Data, &request); err != nil {
			return domain.InvalidCommand{Conn: conn, Event: string(frame.Event), Reason: err.Error()}
		}
		if err := d.validate.Struct(request); err != nil {
			return domain.InvalidCommand{Conn: conn, Event: string(frame.Event), Reason: err.Error()}
		}
		if err := d.validate.Var(request.Message, fmt.Sprintf("max=%d", d.maxMessageLength)); err != nil {
			return domain.InvalidCommand{
				Conn:   conn,
				Event:  string(frame.Event),
				Reason: fmt.Sprintf("message longer than %d characters", d.maxMessageLength),
			}
		}
		return domain.SendMessageCommand{
			Conn:      conn,
			SessionID: domain.SessionID(request.SessionID),
			Text:      request.Message,
		}

	case domain.EventDisconnectManual:
		var request ManualLeaveRequest
		if err := d.unmarshal(frame.Data, &request); err != nil {
			return domain.InvalidCommand{Conn: conn, Event: string(frame.Event), Reason: err.Error()}
		}
		return domain.ManualLeaveCommand{Conn: conn, SessionID: domain.SessionID(request.SessionID)}

	default:
		return domain.InvalidCommand{Conn: conn, Event: string(frame.Event), Reason: "unknown event"}
	}
}

// unmarshal accepts a missing or null data field as an empty payload.
func (d *FrameDecoder) unmarshal(data json.RawMessage, v any) error {
	if len(data) == 0 || string(data) == "null" {
		return nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("malformed data")
	}
	return nil
}
