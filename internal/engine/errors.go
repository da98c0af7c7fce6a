package engine

import "errors"

// Structural rejections. These fire before any mutation and map onto stable
// result codes at the public boundary.
var (
	// ErrGameOver rejects actions against a concluded match.
	ErrGameOver = errors.New("game already over")
	// ErrUnknownPlayer rejects actions from ids outside the participant
	// registry fixed at initialize.
	ErrUnknownPlayer = errors.New("player is not a participant")
	// ErrEliminated rejects actions from participants no longer in the match.
	ErrEliminated = errors.New("player has been eliminated")
	// ErrUnknownAction rejects action types the module does not recognize.
	ErrUnknownAction = errors.New("unknown action type")
	// ErrNotYourTurn rejects actions from a participant who is not the
	// active actor and is not covered by a reactive exemption.
	ErrNotYourTurn = errors.New("not your turn")
)

// PreconditionError reports an action that was recognized but cannot run in
// the current state: wrong phase, insufficient resource, invalid target,
// out-of-range slot. The match state is untouched.
type PreconditionError struct {
	Reason string
}

func (e *PreconditionError) Error() string {
	if e == nil {
		return "precondition failed"
	}
	return e.Reason
}

// Precondition builds a PreconditionError from a plain reason string.
func Precondition(reason string) error {
	return &PreconditionError{Reason: reason}
}

// Result codes surfaced to the host alongside the error message.
const (
	CodeGameOver      = "game_over"
	CodeUnknownPlayer = "unknown_player"
	CodeEliminated    = "eliminated"
	CodeUnknownAction = "unknown_action"
	CodeNotYourTurn   = "not_your_turn"
	CodePrecondition  = "precondition_failed"
	CodeInternal      = "internal"
)

// classify maps a module error onto its public result code.
func classify(err error) string {
	var pre *PreconditionError
	switch {
	case errors.Is(err, ErrGameOver):
		return CodeGameOver
	case errors.Is(err, ErrUnknownPlayer):
		return CodeUnknownPlayer
	case errors.Is(err, ErrEliminated):
		return CodeEliminated
	case errors.Is(err, ErrUnknownAction):
		return CodeUnknownAction
	case errors.Is(err, ErrNotYourTurn):
		return CodeNotYourTurn
	case errors.As(err, &pre):
		return CodePrecondition
	default:
		return CodeInternal
	}
}
