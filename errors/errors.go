package errors

import "fmt"

var (
	ErrWorkerPanic = fmt.Errorf("worker panic")

	ErrInvalidSession     = fmt.Errorf("invalid session")
	ErrAlreadyPaired      = fmt.Errorf("connection already paired")
	ErrUnresolvableLeave  = fmt.Errorf("no session to leave")
	ErrAlreadyParticipant = fmt.Errorf("connection already participant of a session")
	ErrSameConnection     = fmt.Errorf("cannot pair a connection with itself")

	ErrConnectionGone  = fmt.Errorf("connection is gone")
	ErrSlowConsumer    = fmt.Errorf("connection send buffer is full")
	ErrDispatchTimeout = fmt.Errorf("dispatch timed out")
	ErrUnknownCommand  = fmt.Errorf("unknown command")
	ErrInvalidPayload  = fmt.Errorf("invalid payload")
)
