package telephony

import (
	"fmt"
	"strings"
)

// DisconnectCause explains why a connection ended.
type DisconnectCause int

const (
	CauseNotDisconnected DisconnectCause = iota
	CauseIncomingMissed
	CauseNormal
	CauseLocal
	CauseBusy
	CauseCongestion
	CauseNoAnswer
	CauseCallRejected
	CauseInvalidNumber
	CausePowerOff
	CauseOutOfService
	CauseLost
	CauseError
)

var causeNames = map[DisconnectCause]string{
	CauseNotDisconnected: "NOT_DISCONNECTED",
	CauseIncomingMissed:  "INCOMING_MISSED",
	CauseNormal:          "NORMAL",
	CauseLocal:           "LOCAL",
	CauseBusy:            "BUSY",
	CauseCongestion:      "CONGESTION",
	CauseNoAnswer:        "NO_ANSWER",
	CauseCallRejected:    "CALL_REJECTED",
	CauseInvalidNumber:   "INVALID_NUMBER",
	CausePowerOff:        "POWER_OFF",
	CauseOutOfService:    "OUT_OF_SERVICE",
	CauseLost:            "LOST_SIGNAL",
	CauseError:           "ERROR_UNSPECIFIED",
}

func (c DisconnectCause) String() string {
	if n, ok := causeNames[c]; ok {
		return n
	}
	return fmt.Sprintf("DisconnectCause(%d)", int(c))
}

// ParseCause parses a cause name. Matching ignores case.
func ParseCause(name string) (DisconnectCause, error) {
	upper := strings.ToUpper(strings.TrimSpace(name))
	for c, n := range causeNames {
		if n == upper {
			return c, nil
		}
	}
	return CauseNotDisconnected, fmt.Errorf("unknown disconnect cause %q", name)
}

// FailCauseFromCode maps a network call-control cause code (Q.850) to a
// disconnect cause. ok is false for codes that carry no useful information,
// in which case the caller falls back to its cause policy.
func FailCauseFromCode(code int) (cause DisconnectCause, ok bool) {
	switch code {
	case 16: // Normal clearing
		return CauseNormal, true
	case 17: // User busy
		return CauseBusy, true
	case 18, 19: // No user responding, No answer
		return CauseNoAnswer, true
	case 21: // Call rejected
		return CauseCallRejected, true
	case 1, 27: // Unallocated number, Destination out of order
		return CauseInvalidNumber, true
	case 34, 38, 41, 42: // No circuit, network out of order, congestion
		return CauseCongestion, true
	default:
		return CauseError, false
	}
}

// CausePolicy decides the cause of a connection that vanished from a poll
// without a locally recorded cause, keyed by its last known state.
type CausePolicy struct {
	byState  map[State]DisconnectCause
	fallback DisconnectCause
}

// DefaultCausePolicy returns the built-in state to cause table.
func DefaultCausePolicy() *CausePolicy {
	return &CausePolicy{
		byState: map[State]DisconnectCause{
			StateDialing:  CauseBusy,
			StateAlerting: CauseNoAnswer,
			StateIncoming: CauseIncomingMissed,
			StateWaiting:  CauseIncomingMissed,
			StateActive:   CauseNormal,
			StateHolding:  CauseNormal,
		},
		fallback: CauseNormal,
	}
}

// NewCausePolicy builds a policy from state and cause names, on top of the
// defaults.
func NewCausePolicy(table map[string]string) (*CausePolicy, error) {
	p := DefaultCausePolicy()
	for stateName, causeName := range table {
		s, err := ParseState(strings.ToUpper(stateName))
		if err != nil {
			return nil, err
		}
		if !s.IsAlive() {
			return nil, fmt.Errorf("cause policy: state %s never vanishes from a poll", s)
		}
		c, err := ParseCause(causeName)
		if err != nil {
			return nil, err
		}
		p.byState[s] = c
	}
	return p, nil
}

// CauseFor returns the cause for a connection last seen in state s.
func (p *CausePolicy) CauseFor(s State) DisconnectCause {
	if c, ok := p.byState[s]; ok {
		return c
	}
	return p.fallback
}
