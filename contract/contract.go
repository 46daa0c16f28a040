//go:generate go run go.uber.org/mock/mockgen -source=contract.go -destination=../mocks/mock_contract.go -package=mocks
package contract

import (
	"chat-match/domain"
	"context"
	"reflect"
)

type ISupervisor interface {
	Add(worker ...Worker) ISupervisor
	Run(ctx context.Context)
	Start(ctx context.Context, worker Worker)
	Stop()
}

type WorkerName string

// Worker doesn't protect itself
// Can be silly, focused
type Worker interface {
	Run(ctx context.Context) error
}

// GetWorkerName uses reflection to retrieve the type name of the worker.
// This is used for logging and supervision purposes during worker initialization
// or lifecycle events, avoiding the need for manual naming in the Worker interface.
func GetWorkerName(w Worker) string {
	if w == nil {
		return "NilWorker"
	}
	t := reflect.TypeOf(w)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}

// Notifier pushes one outbound event to one connection.
// Delivery is fire-and-forget: a nil error only means the event was handed over.
type Notifier interface {
	Notify(ctx context.Context, conn domain.ConnectionID, event domain.EventName, payload any) error
}

// ConnectionSink is the write side of a transport connection.
// Send must never block.
type ConnectionSink interface {
	Send(data []byte) error
	Close()
}

type IRegistry interface {
	Register(conn domain.ConnectionID, sink ConnectionSink)
	Unregister(conn domain.ConnectionID)
	Notify(ctx context.Context, conn domain.ConnectionID, event domain.EventName, payload any) error
	Len() int
}

// ParticipantIndex answers which session a connection currently belongs to.
type ParticipantIndex interface {
	FindSessionFor(conn domain.ConnectionID) (domain.SessionID, bool)
}

// MessageLog stores the ordered messages of live sessions.
type MessageLog interface {
	Append(ctx context.Context, message domain.Message) error
	List(ctx context.Context, sessionID domain.SessionID) ([]domain.Message, error)
	Drop(ctx context.Context, sessionID domain.SessionID) error
}

// CommandHandler applies one inbound command to the pairing state.
type CommandHandler interface {
	Handle(ctx context.Context, cmd domain.Command) error
}

type Dispatcher interface {
	Dispatch(ctx context.Context, cmd domain.Command) error
}
