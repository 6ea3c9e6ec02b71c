package telephony

import (
	"fmt"
	"time"
)

// ConnID identifies a connection within one tracker.
type ConnID uint64

// ConnectionInfo is an immutable snapshot of a connection.
type ConnectionInfo struct {
	Phone             string          `json:"phone"`
	ID                ConnID          `json:"id"`
	TelecomCallID     string          `json:"telecom_call_id"`
	Index             int             `json:"index"`
	Address           string          `json:"address"`
	Incoming          bool            `json:"incoming"`
	State             State           `json:"state"`
	Role              Role            `json:"role"`
	Cause             DisconnectCause `json:"cause"`
	CreateTime        time.Time       `json:"create_time"`
	ConnectTime       time.Time       `json:"connect_time,omitempty"`
	DisconnectTime    *time.Time      `json:"disconnect_time,omitempty"`
	HoldDuration      time.Duration   `json:"hold_duration"`
	PostDialState     PostDialState   `json:"post_dial_state"`
	RemainingPostDial string          `json:"remaining_post_dial,omitempty"`
	Forwarded         []string        `json:"forwarded,omitempty"`
	Multiparty        bool            `json:"multiparty"`
}

// CallInfo is an immutable snapshot of one call slot of a tracker.
type CallInfo struct {
	Phone       string           `json:"phone"`
	Role        Role             `json:"role"`
	State       State            `json:"state"`
	Connections []ConnectionInfo `json:"connections"`
}

// IsIdle reports whether the call has no state at all.
func (c CallInfo) IsIdle() bool { return c.State == StateIdle }

// IsAlive reports whether the call has a live connection.
func (c CallInfo) IsAlive() bool { return c.State.IsAlive() }

// PreciseCallState is the per-slot state of one phone.
type PreciseCallState struct {
	Phone      string `json:"phone"`
	Ringing    State  `json:"ringing"`
	Foreground State  `json:"foreground"`
	Background State  `json:"background"`
}

func (p PreciseCallState) String() string {
	return fmt.Sprintf("%s ringing=%s fg=%s bg=%s", p.Phone, p.Ringing, p.Foreground, p.Background)
}

// MarshalText renders states by name in JSON and logs.
func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// UnmarshalText parses a state name.
func (s *State) UnmarshalText(b []byte) error {
	v, err := ParseState(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

func (r Role) MarshalText() ([]byte, error) { return []byte(r.String()), nil }

func (r *Role) UnmarshalText(b []byte) error {
	v, err := ParseRole(string(b))
	if err != nil {
		return err
	}
	*r = v
	return nil
}

func (c DisconnectCause) MarshalText() ([]byte, error) { return []byte(c.String()), nil }

func (c *DisconnectCause) UnmarshalText(b []byte) error {
	v, err := ParseCause(string(b))
	if err != nil {
		return err
	}
	*c = v
	return nil
}

func (p PhoneState) MarshalText() ([]byte, error) { return []byte(p.String()), nil }

func (s PostDialState) MarshalText() ([]byte, error) { return []byte(s.String()), nil }
