package domain

// EventName is the name of an event on the wire.
// Names and payload field names are part of the client contract.
type EventName string

// Inbound events.
const (
	EventConnect          EventName = "connect"
	EventFindPartner      EventName = "find_partner"
	EventSendMessage      EventName = "send_message"
	EventDisconnect       EventName = "disconnect"
	EventDisconnectManual EventName = "disconnect_manual"
)

// Outbound events.
const (
	EventConnected  EventName = "connected"
	EventWaiting    EventName = "waiting"
	EventMatched    EventName = "matched"
	EventNewMessage EventName = "new_message"
	EventMessageAck EventName = "message_ack"
	EventStatus     EventName = "status"
	EventError      EventName = "error"
)

const (
	WaitingMessage           = "Waiting for a partner..."
	PartnerDisconnectMessage = "Your partner disconnected."
	AckDelivered             = "delivered"
)

// Envelope frames every event exchanged with a client.
type Envelope struct {
	Event EventName `json:"event"`
	Data  any       `json:"data,omitempty"`
}

type ConnectedPayload struct {
	UserID string `json:"user_id"`
}

type WaitingPayload struct {
	Message string `json:"message"`
}

type MatchedPayload struct {
	SessionID SessionID `json:"session_id"`
	Partner   string    `json:"partner"`
}

type NewMessagePayload struct {
	Sender  string `json:"sender"`
	Message string `json:"message"`
}

type MessageAckPayload struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

type StatusPayload struct {
	Message string `json:"message"`
}

// ErrorPayload is only emitted when error acknowledgments are enabled.
type ErrorPayload struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

type ErrorCode string

const (
	CodeInvalidSession    ErrorCode = "invalid_session"
	CodeUnresolvableLeave ErrorCode = "unresolvable_leave"
	CodeInvalidPayload    ErrorCode = "invalid_payload"
)
