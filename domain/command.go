package domain

// Command is an inbound transport event addressed to one connection.
// Commands are handled one at a time by the dispatcher.
type Command interface {
	ConnectionID() ConnectionID
}

type ConnectCommand struct {
	Conn        ConnectionID
	ClientLabel string
}

func (c ConnectCommand) ConnectionID() ConnectionID { return c.Conn }

type FindPartnerCommand struct {
	Conn ConnectionID
}

func (c FindPartnerCommand) ConnectionID() ConnectionID { return c.Conn }

type SendMessageCommand struct {
	Conn      ConnectionID
	SessionID SessionID
	Text      string
}

func (c SendMessageCommand) ConnectionID() ConnectionID { return c.Conn }

type DisconnectCommand struct {
	Conn ConnectionID
}

func (c DisconnectCommand) ConnectionID() ConnectionID { return c.Conn }

// ManualLeaveCommand carries an optional SessionID.
// When empty, the session is resolved from the connection.
type ManualLeaveCommand struct {
	Conn      ConnectionID
	SessionID SessionID
}

func (c ManualLeaveCommand) ConnectionID() ConnectionID { return c.Conn }

// InvalidCommand reports a frame the transport could not decode.
// It lets the core answer with an error acknowledgment when enabled.
type InvalidCommand struct {
	Conn   ConnectionID
	Event  string
	Reason string
}

func (c InvalidCommand) ConnectionID() ConnectionID { return c.Conn }
