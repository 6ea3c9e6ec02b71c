package radio

import (
	"fmt"
	"strconv"
	"strings"

	"callcore/internal/telephony"
)

// handleEvent processes unsolicited daemon events.
func (c *Client) handleEvent(msg Message) {
	switch msg["Event"] {
	case "CallStateChanged":
		c.mu.Lock()
		l := c.listener
		c.mu.Unlock()
		if l != nil {
			l.OnCallStateChanged()
		}
	case "RadioStateChanged":
		c.setRadioState(msg["State"] == "on")
	default:
		c.log.Debugf("Ignoring event %s", msg["Event"])
	}
}

func (c *Client) setRadioState(on bool) {
	c.mu.Lock()
	changed := c.radioOn != on
	c.radioOn = on
	l := c.listener
	c.mu.Unlock()
	if changed {
		c.log.Infof("Radio power on=%t", on)
		if l != nil {
			l.OnRadioStateChanged(on)
		}
	}
}

// parseCallList decodes a ListCalls response. The daemon reports the count
// in "Calls" and each call in "Call-<n>" as
//
//	index,state,MO|MT,multiparty(0|1),number[,forwarded;forwarded...]
func parseCallList(resp Message) ([]telephony.DriverCall, error) {
	n, err := strconv.Atoi(resp["Calls"])
	if err != nil {
		return nil, fmt.Errorf("radio: bad call count %q", resp["Calls"])
	}
	calls := make([]telephony.DriverCall, 0, n)
	for i := 1; i <= n; i++ {
		line, ok := resp["Call-"+strconv.Itoa(i)]
		if !ok {
			return nil, fmt.Errorf("radio: call %d of %d missing", i, n)
		}
		dc, err := parseCall(line)
		if err != nil {
			return nil, err
		}
		calls = append(calls, dc)
	}
	return calls, nil
}

func parseCall(line string) (telephony.DriverCall, error) {
	fields := strings.SplitN(line, ",", 6)
	if len(fields) < 5 {
		return telephony.DriverCall{}, fmt.Errorf("radio: malformed call %q", line)
	}
	index, err := strconv.Atoi(fields[0])
	if err != nil {
		return telephony.DriverCall{}, fmt.Errorf("radio: bad call index %q", fields[0])
	}
	state, err := telephony.ParseState(fields[1])
	if err != nil {
		return telephony.DriverCall{}, fmt.Errorf("radio: %w", err)
	}
	var mt bool
	switch fields[2] {
	case "MT":
		mt = true
	case "MO":
	default:
		return telephony.DriverCall{}, fmt.Errorf("radio: bad call direction %q", fields[2])
	}
	dc := telephony.DriverCall{
		Index:        index,
		State:        state,
		IsMT:         mt,
		IsMultiparty: fields[3] == "1",
		Number:       fields[4],
	}
	if len(fields) == 6 && fields[5] != "" {
		dc.Forwarded = strings.Split(fields[5], ";")
	}
	return dc, nil
}

// formatCall is the inverse of parseCall.
func formatCall(dc telephony.DriverCall) string {
	dir := "MO"
	if dc.IsMT {
		dir = "MT"
	}
	mpty := "0"
	if dc.IsMultiparty {
		mpty = "1"
	}
	s := fmt.Sprintf("%d,%s,%s,%s,%s", dc.Index, dc.State, dir, mpty, dc.Number)
	if len(dc.Forwarded) > 0 {
		s += "," + strings.Join(dc.Forwarded, ";")
	}
	return s
}
