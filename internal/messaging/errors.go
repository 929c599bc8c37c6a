package messaging

import (
	"fmt"
)

// ErrInvalidCommandMessage is returned for envelopes that can never be executed: malformed, missing their type or
// body, or of an unregistered type. Such messages are logged and dropped.
type ErrInvalidCommandMessage struct {
	ID      string
	Type    string
	Message string
}

func (err *ErrInvalidCommandMessage) Error() string {
	if err.Type == "" {
		return fmt.Sprintf("invalid command message %q: %s", err.ID, err.Message)
	}
	return fmt.Sprintf("invalid command message %q of type %s: %s", err.ID, err.Type, err.Message)
}

// ErrCommandMessageExecuteFailure is returned when a message could not be executed. The message stays on the backend
// and is delivered again.
type ErrCommandMessageExecuteFailure struct {
	ID    string
	Type  string
	Cause error
}

func (err *ErrCommandMessageExecuteFailure) Error() string {
	return fmt.Sprintf("executing %s message %q failed: %s", err.Type, err.ID, err.Cause)
}

func (err *ErrCommandMessageExecuteFailure) Unwrap() error {
	return err.Cause
}
