package maker

import (
	"errors"
	"fmt"
)

// Kind classifies an engine-level failure. Every error the client
// returns carries one, so callers can branch without string matching.
type Kind int

const (
	KindUnknownStrategy Kind = iota + 1
	KindMarketNotActive
	KindMarketAlreadyActive
	KindInsufficientLiquidity
	KindInvalidInput
	KindCollaboratorFailure
)

func (k Kind) String() string {
	switch k {
	case KindUnknownStrategy:
		return "unknown_strategy"
	case KindMarketNotActive:
		return "market_not_active"
	case KindMarketAlreadyActive:
		return "market_already_active"
	case KindInsufficientLiquidity:
		return "insufficient_liquidity"
	case KindInvalidInput:
		return "invalid_input"
	case KindCollaboratorFailure:
		return "collaborator_failure"
	default:
		return "unknown"
	}
}

// Error is the engine's failure value. CollaboratorFailure wraps the
// underlying collaborator error and is always recoverable; no Kind is
// fatal to the process.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// IsKind reports whether err carries the given Kind anywhere in its
// chain.
func IsKind(err error, kind Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}

func errf(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func wrap(kind Kind, err error, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}
