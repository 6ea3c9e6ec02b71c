package telephony

import "fmt"

// CLIRMode selects calling line identification restriction for a dial.
type CLIRMode int

const (
	CLIRDefault CLIRMode = iota
	CLIRInvocation
	CLIRSuppression
)

func (m CLIRMode) String() string {
	switch m {
	case CLIRDefault:
		return "default"
	case CLIRInvocation:
		return "invocation"
	case CLIRSuppression:
		return "suppression"
	default:
		return fmt.Sprintf("CLIRMode(%d)", int(m))
	}
}

// ParseCLIRMode parses the lower-case name of a CLIR mode; empty means default.
func ParseCLIRMode(s string) (CLIRMode, error) {
	switch s {
	case "", "default":
		return CLIRDefault, nil
	case "invocation":
		return CLIRInvocation, nil
	case "suppression":
		return CLIRSuppression, nil
	}
	return CLIRDefault, fmt.Errorf("unknown CLIR mode %q", s)
}

// DriverCall is one entry of a call-list snapshot reported by the radio.
// Index is the stable matching key the radio assigns to a call.
type DriverCall struct {
	Index        int
	State        State
	Number       string
	IsMT         bool
	IsMultiparty bool
	Forwarded    []string
}

// Completion receives the outcome of an asynchronous radio request. It may
// be invoked from any goroutine, including synchronously from inside the
// request method.
type Completion func(err error)

// Radio is the command channel to one modem. Every request returns
// immediately; the outcome arrives later through the completion.
type Radio interface {
	RadioOn() bool
	Dial(address string, clir CLIRMode, done Completion)
	AcceptCall(done Completion)
	RejectCall(done Completion)
	HangupConnection(index int, done Completion)
	SwitchHoldingAndActive(done Completion)
	SendDTMF(digit byte, done Completion)
	GetCurrentCalls(done func(calls []DriverCall, err error))
	SetListener(l RadioListener)
}

// RadioListener receives unsolicited radio indications.
type RadioListener interface {
	OnCallStateChanged()
	OnRadioStateChanged(on bool)
}

// FailCauseReporter is implemented by radios that can report the network
// cause code of the last dropped call.
type FailCauseReporter interface {
	LastCallFailCause(done func(code int, err error))
}
