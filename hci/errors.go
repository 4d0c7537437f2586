package hci

import "fmt"

// ErrCommand is an HCI status code returned by the controller in a
// Command Complete / Command Status event or a completion event.
type ErrCommand byte

func (e ErrCommand) Error() string {
	if s, ok := errCmd[int(e)]; ok {
		return s
	}
	return fmt.Sprintf("unknown hci status 0x%02x", byte(e))
}

// Status codes this core reacts to by name.
const (
	ErrUnknownConnID         ErrCommand = 0x02
	ErrAuthFailure           ErrCommand = 0x05
	ErrMemoryCapacity        ErrCommand = 0x07
	ErrConnTimeout           ErrCommand = 0x08
	ErrACLConnExists         ErrCommand = 0x0b
	ErrDisallowed            ErrCommand = 0x0c
	ErrInvalidParams         ErrCommand = 0x12
	ErrRemoteUser            ErrCommand = 0x13
	ErrLocalHost             ErrCommand = 0x16
	ErrUnsupportedFeature    ErrCommand = 0x1a
	ErrUnspecified           ErrCommand = 0x1f
	ErrConnFailedToEstablish ErrCommand = 0x3e
)

var errCmd = map[int]string{
	0x01: "unknown hci command",
	0x02: "unknown connection identifier",
	0x03: "hardware failure",
	0x04: "page timeout",
	0x05: "authentication failure",
	0x06: "pin or key missing",
	0x07: "memory capacity exceeded",
	0x08: "connection timeout",
	0x09: "connection limit exceeded",
	0x0b: "acl connection already exists",
	0x0c: "command disallowed",
	0x0d: "connection rejected due to limited resources",
	0x0e: "connection rejected due to security reasons",
	0x12: "invalid hci command parameters",
	0x13: "remote user terminated connection",
	0x16: "connection terminated by local host",
	0x1a: "unsupported remote feature",
	0x1f: "unspecified error",
	0x22: "ll response timeout",
	0x28: "instant passed",
	0x3b: "unacceptable connection parameters",
	0x3e: "connection failed to be established",
}
