package hci

import (
	"github.com/corvidlabs/bthost/dispatch"
	"github.com/corvidlabs/bthost/hci/evt"
)

// Command ...
type Command interface {
	OpCode() int
	Len() int
	Marshal([]byte) error
}

// CommandRP ...
type CommandRP interface {
	Unmarshal(b []byte) error
}

// EventSpec names an event, optionally an LE meta subevent (Sub is only
// meaningful when Code == evt.LEMetaCode).
type EventSpec struct {
	Code uint8
	Sub  uint8
}

func (s EventSpec) matches(code, sub uint8) bool {
	if s.Code != code {
		return false
	}
	if s.Code == evt.LEMetaCode {
		return s.Sub == sub
	}
	return true
}

// CommandResult is delivered to command callbacks. For a Command
// Complete, Payload holds the return parameters; for a Command Status it
// is empty; for any other completion event it holds the full event
// parameter block (including the subevent code for LE meta events).
type CommandResult struct {
	EventCode uint8
	SubCode   uint8
	Status    uint8
	Payload   []byte
}

func (r CommandResult) Err() error {
	if r.Status != 0 {
		return ErrCommand(r.Status)
	}
	return nil
}

// CommandCallback receives command progress and completion. An exclusive
// command's callback may fire twice: once for the Command Status, once
// for the completion event.
type CommandCallback func(CommandResult)

// EventHandler receives the raw parameter block of a subscribed event.
type EventHandler func(payload []byte)

// HandlerID identifies an event-handler registration.
type HandlerID string

// CommandChannel is the boundary to the transport/command layer. All
// callbacks are posted to the supplied queue, never invoked on the
// caller's stack.
type CommandChannel interface {
	// SendCommand issues c; cb fires once with the Command Complete
	// (or a failing Command Status).
	SendCommand(c Command, q dispatch.Queue, cb CommandCallback) error

	// SendExclusiveCommand issues a command whose completion is a later
	// event. While it is outstanding, other exclusive commands whose
	// completion matches complete or any of excluded are held back.
	SendExclusiveCommand(c Command, q dispatch.Queue, cb CommandCallback, complete EventSpec, excluded ...uint8) error

	AddEventHandler(code uint8, q dispatch.Queue, fn EventHandler) HandlerID
	AddLEMetaHandler(sub uint8, q dispatch.Queue, fn EventHandler) HandlerID
	RemoveEventHandler(id HandlerID)

	Close() error
}
