package conversation

import (
	"errors"
	"fmt"
)

var (
	// ErrCancelled is wrapped by the error of a cancelled conversation.
	ErrCancelled = errors.New("conversation: cancelled")
	// ErrMissingCompleter is returned by New without a completer.
	ErrMissingCompleter = errors.New("conversation: completer is required")
	// ErrInvalidMaxTurns is returned by New for a negative MaxTurns.
	ErrInvalidMaxTurns = errors.New("conversation: max turns must be at least 1")
)

// TurnLimitExceededError ends a conversation whose model kept requesting
// tools for MaxTurns turns.
type TurnLimitExceededError struct {
	MaxTurns int
}

func (e *TurnLimitExceededError) Error() string {
	return fmt.Sprintf("conversation: turn limit exceeded (%d turns)", e.MaxTurns)
}
