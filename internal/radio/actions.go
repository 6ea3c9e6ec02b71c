package radio

import (
	"sort"
	"strconv"

	"github.com/google/uuid"

	"callcore/internal/telephony"
)

var (
	_ telephony.Radio             = (*Client)(nil)
	_ telephony.FailCauseReporter = (*Client)(nil)
)

func newActionID() string {
	return "act-" + uuid.NewString()
}

func sortedKeys(m Message) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// SetListener implements telephony.Radio.
func (c *Client) SetListener(l telephony.RadioListener) {
	c.mu.Lock()
	c.listener = l
	c.mu.Unlock()
}

// RadioOn implements telephony.Radio. The radio counts as off while the
// daemon link is down.
func (c *Client) RadioOn() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected && c.radioOn
}

func completion(done telephony.Completion) func(Message, error) {
	return func(_ Message, err error) {
		if done != nil {
			done(err)
		}
	}
}

// Dial implements telephony.Radio.
func (c *Client) Dial(address string, clir telephony.CLIRMode, done telephony.Completion) {
	c.log.Infof("Dial %s", address)
	c.send(Message{
		"Action": "Dial",
		"Number": address,
		"CLIR":   clir.String(),
	}, completion(done))
}

// AcceptCall implements telephony.Radio.
func (c *Client) AcceptCall(done telephony.Completion) {
	c.send(Message{"Action": "Answer"}, completion(done))
}

// RejectCall implements telephony.Radio.
func (c *Client) RejectCall(done telephony.Completion) {
	c.send(Message{"Action": "Reject"}, completion(done))
}

// HangupConnection implements telephony.Radio.
func (c *Client) HangupConnection(index int, done telephony.Completion) {
	c.send(Message{
		"Action": "Hangup",
		"Index":  strconv.Itoa(index),
	}, completion(done))
}

// SwitchHoldingAndActive implements telephony.Radio.
func (c *Client) SwitchHoldingAndActive(done telephony.Completion) {
	c.send(Message{"Action": "SwitchHoldActive"}, completion(done))
}

// SendDTMF implements telephony.Radio.
func (c *Client) SendDTMF(digit byte, done telephony.Completion) {
	c.send(Message{
		"Action": "DTMF",
		"Digit":  string(digit),
	}, completion(done))
}

// GetCurrentCalls implements telephony.Radio.
func (c *Client) GetCurrentCalls(done func(calls []telephony.DriverCall, err error)) {
	c.send(Message{"Action": "ListCalls"}, func(resp Message, err error) {
		if err != nil {
			done(nil, err)
			return
		}
		calls, err := parseCallList(resp)
		done(calls, err)
	})
}

// LastCallFailCause implements telephony.FailCauseReporter.
func (c *Client) LastCallFailCause(done func(code int, err error)) {
	c.send(Message{"Action": "LastCallFailCause"}, func(resp Message, err error) {
		if err != nil {
			done(0, err)
			return
		}
		code, err := strconv.Atoi(resp["Cause"])
		done(code, err)
	})
}

// queryRadioState refreshes the cached power state after a connect.
func (c *Client) queryRadioState() {
	c.send(Message{"Action": "RadioState"}, func(resp Message, err error) {
		if err != nil {
			c.log.WithError(err).Warn("Radio state query failed")
			return
		}
		c.setRadioState(resp["State"] == "on")
	})
}
