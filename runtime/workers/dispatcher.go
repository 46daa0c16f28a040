package workers

import (
	"chat-match/contract"
	"chat-match/domain"
	"context"
	"log/slog"
)

// DispatcherWorker drains the command channel and applies commands one at a time.
// A single instance runs, so the handler observes a serial order of events.
type DispatcherWorker struct {
	log      *slog.Logger
	commands <-chan domain.Command
	handler  contract.CommandHandler
}

func NewDispatcherWorker(log *slog.Logger, commands <-chan domain.Command, handler contract.CommandHandler) *DispatcherWorker {
	return &DispatcherWorker{log: log, commands: commands, handler: handler}
}

func (w *DispatcherWorker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case cmd, ok := <-w.commands:
			if !ok {
				w.log.Info("Command channel closed, dispatcher stopping")
				return nil
			}
			if err := w.handler.Handle(ctx, cmd); err != nil {
				w.log.Debug("Command not applied",
					"command", commandName(cmd), "conn", cmd.ConnectionID().Suffix(), "error", err)
			}
		}
	}
}

func commandName(cmd domain.Command) string {
	switch cmd.(type) {
	case domain.ConnectCommand:
		return string(domain.EventConnect)
	case domain.FindPartnerCommand:
		return string(domain.EventFindPartner)
	case domain.SendMessageCommand:
		return string(domain.EventSendMessage)
	case domain.DisconnectCommand:
		return string(domain.EventDisconnect)
	case domain.ManualLeaveCommand:
		return string(domain.EventDisconnectManual)
	default:
		return "unknown"
	}
}
