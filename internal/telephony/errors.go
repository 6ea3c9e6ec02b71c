package telephony

import "fmt"

// ErrorKind classifies a rejected call command.
type ErrorKind int

const (
	KindTooManyCalls ErrorKind = iota + 1
	KindPowerOff
	KindAlreadyActive
	KindInvalidState
	KindCallRinging
	KindNoConnection
)

func (k ErrorKind) String() string {
	switch k {
	case KindTooManyCalls:
		return "TOO_MANY_CALLS"
	case KindPowerOff:
		return "POWER_OFF"
	case KindAlreadyActive:
		return "ALREADY_ACTIVE"
	case KindInvalidState:
		return "INVALID_STATE"
	case KindCallRinging:
		return "CALL_RINGING"
	case KindNoConnection:
		return "NO_CONNECTION"
	default:
		return fmt.Sprintf("ErrorKind(%d)", int(k))
	}
}

// CallStateError is returned synchronously when a command's preconditions
// do not hold. No state is mutated when it is returned.
type CallStateError struct {
	Kind ErrorKind
	Msg  string
}

func (e *CallStateError) Error() string {
	if e.Msg == "" {
		return "call state: " + e.Kind.String()
	}
	return fmt.Sprintf("call state: %s: %s", e.Kind, e.Msg)
}

// Is matches any CallStateError of the same kind, so the sentinels below can
// be used with errors.Is.
func (e *CallStateError) Is(target error) bool {
	t, ok := target.(*CallStateError)
	return ok && t.Kind == e.Kind
}

// Sentinels for errors.Is.
var (
	ErrTooManyCalls  = &CallStateError{Kind: KindTooManyCalls}
	ErrPowerOff      = &CallStateError{Kind: KindPowerOff}
	ErrAlreadyActive = &CallStateError{Kind: KindAlreadyActive}
	ErrInvalidState  = &CallStateError{Kind: KindInvalidState}
	ErrCallRinging   = &CallStateError{Kind: KindCallRinging}
	ErrNoConnection  = &CallStateError{Kind: KindNoConnection}
)

// NewCallStateError builds a CallStateError with a formatted message.
func NewCallStateError(kind ErrorKind, format string, args ...any) *CallStateError {
	return &CallStateError{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}
