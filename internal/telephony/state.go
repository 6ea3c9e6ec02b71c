// Package telephony holds the domain types shared by the call tracker, the
// call manager and the radio transports: connection and call states, call
// roles, disconnect causes, dial-string handling and the contracts for the
// radio and the notification sink.
package telephony

import "fmt"

// State is the state of a single connection. The declaration order is the
// precedence used when deriving a call's state, least to most significant.
type State int

const (
	StateIdle State = iota
	StateActive
	StateHolding
	StateDialing
	StateAlerting
	StateIncoming
	StateWaiting
	StateDisconnecting
	StateDisconnected
)

var stateNames = [...]string{
	StateIdle:          "IDLE",
	StateActive:        "ACTIVE",
	StateHolding:       "HOLDING",
	StateDialing:       "DIALING",
	StateAlerting:      "ALERTING",
	StateIncoming:      "INCOMING",
	StateWaiting:       "WAITING",
	StateDisconnecting: "DISCONNECTING",
	StateDisconnected:  "DISCONNECTED",
}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// ParseState parses the upper-case name of a state.
func ParseState(name string) (State, error) {
	for i, n := range stateNames {
		if n == name {
			return State(i), nil
		}
	}
	return StateIdle, fmt.Errorf("unknown call state %q", name)
}

// IsAlive reports whether the state belongs to a call that exists and has
// not started tearing down.
func (s State) IsAlive() bool {
	return s != StateIdle && s != StateDisconnecting && s != StateDisconnected
}

// IsRinging reports whether the state is an unanswered incoming call.
func (s State) IsRinging() bool {
	return s == StateIncoming || s == StateWaiting
}

// IsDialing reports whether the state is an outgoing call not yet answered.
func (s State) IsDialing() bool {
	return s == StateDialing || s == StateAlerting
}

// Role is the slot a call occupies inside a tracker.
type Role int

const (
	RoleRinging Role = iota
	RoleForeground
	RoleBackground
)

func (r Role) String() string {
	switch r {
	case RoleRinging:
		return "RINGING"
	case RoleForeground:
		return "FOREGROUND"
	case RoleBackground:
		return "BACKGROUND"
	default:
		return fmt.Sprintf("Role(%d)", int(r))
	}
}

// ParseRole parses a role name, case-sensitive upper case.
func ParseRole(name string) (Role, error) {
	switch name {
	case "RINGING":
		return RoleRinging, nil
	case "FOREGROUND":
		return RoleForeground, nil
	case "BACKGROUND":
		return RoleBackground, nil
	}
	return RoleRinging, fmt.Errorf("unknown call role %q", name)
}

// RoleForState returns the call slot a live connection in state s belongs to.
func RoleForState(s State) Role {
	switch s {
	case StateIncoming, StateWaiting:
		return RoleRinging
	case StateHolding:
		return RoleBackground
	default:
		return RoleForeground
	}
}

// DeriveCallState computes a call's displayed state from its members: the
// most significant live state wins. Tearing-down connections only matter
// when nothing live remains, and a call still draining a DISCONNECTING
// member is reported as DISCONNECTING.
func DeriveCallState(states []State) State {
	live := StateIdle
	disconnecting, disconnected := false, false
	for _, s := range states {
		switch {
		case s.IsAlive():
			if s > live {
				live = s
			}
		case s == StateDisconnecting:
			disconnecting = true
		case s == StateDisconnected:
			disconnected = true
		}
	}
	switch {
	case live != StateIdle:
		return live
	case disconnecting:
		return StateDisconnecting
	case disconnected:
		return StateDisconnected
	}
	return StateIdle
}

// PhoneState is the aggregate state of one phone.
type PhoneState int

const (
	PhoneIdle PhoneState = iota
	PhoneRinging
	PhoneOffhook
)

func (p PhoneState) String() string {
	switch p {
	case PhoneIdle:
		return "IDLE"
	case PhoneRinging:
		return "RINGING"
	case PhoneOffhook:
		return "OFFHOOK"
	default:
		return fmt.Sprintf("PhoneState(%d)", int(p))
	}
}

// Technology identifies the radio technology a tracker drives.
type Technology string

const (
	TechGSM  Technology = "gsm"
	TechCDMA Technology = "cdma"
	TechIMS  Technology = "ims"
)

// MaxConnections is the number of call indexes the technology exposes.
func (t Technology) MaxConnections() int {
	if t == TechCDMA {
		return 8
	}
	return 19
}

// Valid reports whether t is a known technology.
func (t Technology) Valid() bool {
	return t == TechGSM || t == TechCDMA || t == TechIMS
}
