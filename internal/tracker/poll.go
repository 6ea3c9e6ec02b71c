package tracker

import (
	"sort"

	"callcore/internal/telephony"
)

// beginOp accounts for a radio request whose completion must be seen
// before the next poll is trusted.
func (t *CallTracker) beginOp(op string) telephony.Completion {
	t.pendingOps++
	t.needsPoll = true
	t.relevantPoll = 0
	return func(err error) {
		t.mbox.post(opDone{op: op, err: err})
	}
}

func (t *CallTracker) handleOpDone(m opDone) {
	t.pendingOps--
	if t.pendingOps < 0 {
		t.log.Errorf("Pending operation count went negative after %s", m.op)
		t.pendingOps = 0
	}
	if m.op == "accept" {
		t.pendingAccept = false
	}
	if m.err != nil {
		t.log.WithError(m.err).Warnf("Radio rejected %s", m.op)
		if m.op == "reject" {
			t.undoReject()
		}
	}
	if t.pendingOps == 0 && t.needsPoll {
		t.pollWhenSafe()
	}
}

// pollWhenSafe requests the call list, or defers the request until every
// outstanding radio operation has completed.
func (t *CallTracker) pollWhenSafe() {
	t.needsPoll = true
	if t.pendingOps > 0 {
		return
	}
	t.needsPoll = false
	t.pollSeq++
	seq := t.pollSeq
	t.relevantPoll = seq
	t.radio.GetCurrentCalls(func(calls []telephony.DriverCall, err error) {
		t.mbox.post(pollResult{seq: seq, calls: calls, err: err})
	})
}

func (t *CallTracker) handlePollResult(m pollResult) {
	if m.seq != t.relevantPoll {
		t.log.Debugf("Discarding stale poll %d", m.seq)
		return
	}
	t.relevantPoll = 0
	if m.err != nil {
		t.log.WithError(m.err).Warn("Call list poll failed, retrying")
		t.clock.AfterFunc(pollRetryDelay, func() {
			t.mbox.post(callStateChanged{})
		})
		return
	}
	t.handlePollCalls(m.calls)
}

// handlePollCalls reconciles a call-list snapshot with the arena. The
// snapshot always wins.
func (t *CallTracker) handlePollCalls(calls []telephony.DriverCall) {
	byIndex := make(map[int]telephony.DriverCall, len(calls))
	for _, dc := range calls {
		if dc.Index < 1 || dc.Index >= len(t.slots) {
			t.log.Warnf("Ignoring call with out of range index %d", dc.Index)
			continue
		}
		if _, dup := byIndex[dc.Index]; dup {
			t.log.Warnf("Ignoring duplicate call index %d", dc.Index)
			continue
		}
		byIndex[dc.Index] = dc
	}

	var (
		dropped    []*connection
		newRinging []*connection
	)
	for i := 1; i < len(t.slots); i++ {
		c := t.conns[t.slots[i]]
		dc, present := byIndex[i]

		switch {
		case c == nil && !present:
			continue

		case c == nil:
			if pm := t.conns[t.pendingMO]; pm != nil && pm.index == 0 && !dc.IsMT {
				pm.index = i
				t.slots[i] = pm.id
				t.pendingMO = 0
				if t.hangupPendingMO {
					t.hangupPendingMO = false
					t.log.Infof("Hanging up dial that was cancelled before index %d was known", i)
					t.radio.HangupConnection(i, t.beginOp("hangup"))
					continue
				}
				t.updateConnection(pm, dc)
				continue
			}
			if nc := t.adopt(i, dc); nc.state.IsRinging() {
				newRinging = append(newRinging, nc)
			}

		case !present:
			dropped = append(dropped, c)

		case c.incoming != dc.IsMT:
			t.log.Warnf("Call index %d changed direction, replacing connection %d", i, c.id)
			dropped = append(dropped, c)
			t.slots[i] = 0
			if nc := t.adopt(i, dc); nc.state.IsRinging() {
				newRinging = append(newRinging, nc)
			}

		default:
			t.updateConnection(c, dc)
		}
	}

	if pm := t.conns[t.pendingMO]; pm != nil && pm.index == 0 {
		t.log.Warnf("Dial %d never appeared in the call list", pm.id)
		dropped = append(dropped, pm)
	}

	for _, c := range dropped {
		t.dropConnection(c)
	}
	t.requestFailCause()

	t.publish()
	for _, c := range newRinging {
		info := t.connInfo(c)
		t.sink.OnNewRingingConnection(info)
		if c.state == telephony.StateWaiting {
			t.sink.OnCallWaiting(info)
		}
	}
}

// adopt creates a connection for a call the tracker did not know about.
func (t *CallTracker) adopt(index int, dc telephony.DriverCall) *connection {
	c := t.newConnection(index, dc.Number, dc.IsMT, dc.State)
	t.slots[index] = c.id
	c.forwarded = dc.Forwarded
	c.multiparty = dc.IsMultiparty
	if !dc.State.IsRinging() {
		t.log.Warnf("Adopting unknown %s call at index %d", dc.State, index)
	}
	t.maybeStartPostDial(c)
	return c
}

func (t *CallTracker) updateConnection(c *connection, dc telephony.DriverCall) {
	// Outgoing addresses are what the user dialed and never change.
	if c.incoming && dc.Number != "" && !telephony.EqualsBaseNumber(c.address, dc.Number) {
		t.log.Infof("Connection %d address changed", c.id)
		c.address = dc.Number
	}
	if c.state == telephony.StateDisconnecting && dc.State.IsAlive() {
		t.log.Warnf("Hangup of connection %d did not take effect, still %s", c.id, dc.State)
		c.localCause = telephony.CauseNotDisconnected
	}
	if c.localCause == telephony.CauseIncomingMissed && (dc.State == telephony.StateActive || dc.State == telephony.StateHolding) {
		// Answered after all.
		c.localCause = telephony.CauseNotDisconnected
	}
	t.setState(c, dc.State)
	c.forwarded = dc.Forwarded
	c.multiparty = dc.IsMultiparty
	t.maybeStartPostDial(c)
}

// dropConnection handles a connection that vanished from the call list.
// The connection stays in its call until its cause is known.
func (t *CallTracker) dropConnection(c *connection) {
	if c.index > 0 && t.slots[c.index] == c.id {
		t.slots[c.index] = 0
	}
	if t.pendingMO == c.id {
		t.pendingMO = 0
		t.hangupPendingMO = false
	}
	switch {
	case c.localCause != telephony.CauseNotDisconnected:
		t.finalize(c, c.localCause)
	case c.incoming && !c.everConnected:
		t.finalize(c, telephony.CauseIncomingMissed)
	default:
		if _, ok := t.radio.(telephony.FailCauseReporter); ok {
			c.gone = true
			t.awaitingCause = append(t.awaitingCause, c)
			return
		}
		t.finalize(c, t.causes.CauseFor(c.state))
	}
}

// undoReject forgets the cause recorded by a reject the radio refused, so
// the call is judged by how it really ends.
func (t *CallTracker) undoReject() {
	for _, c := range t.members(telephony.RoleRinging) {
		if c.localCause == telephony.CauseIncomingMissed && c.state.IsRinging() {
			c.localCause = telephony.CauseNotDisconnected
		}
	}
}

func (t *CallTracker) requestFailCause() {
	if len(t.awaitingCause) == 0 || t.causeQuery {
		return
	}
	reporter := t.radio.(telephony.FailCauseReporter)
	t.causeQuery = true
	// Counted as pending so no poll overtakes the answer.
	t.pendingOps++
	reporter.LastCallFailCause(func(code int, err error) {
		t.mbox.post(failCause{code: code, err: err})
	})
}

func (t *CallTracker) handleFailCause(m failCause) {
	t.pendingOps--
	t.causeQuery = false
	cause, known := telephony.FailCauseFromCode(m.code)
	if m.err != nil {
		t.log.WithError(m.err).Warn("Last call fail cause unavailable")
		known = false
	}
	waiting := t.awaitingCause
	t.awaitingCause = nil
	for _, c := range waiting {
		if t.conns[c.id] != c {
			continue
		}
		switch {
		case c.localCause != telephony.CauseNotDisconnected:
			// Hung up locally while the cause was outstanding.
			t.finalize(c, c.localCause)
		case known:
			t.finalize(c, cause)
		default:
			t.finalize(c, t.causes.CauseFor(c.state))
		}
	}
	t.publish()
	if t.pendingOps == 0 && t.needsPoll {
		t.pollWhenSafe()
	}
}

func (t *CallTracker) handleRadioState(on bool) {
	if on {
		t.log.Info("Radio on")
		t.pollWhenSafe()
		return
	}
	t.log.Warn("Radio off, dropping all connections")
	conns := make([]*connection, 0, len(t.conns))
	for _, c := range t.conns {
		conns = append(conns, c)
	}
	sort.Slice(conns, func(i, j int) bool { return conns[i].id < conns[j].id })
	for _, c := range conns {
		cause := telephony.CausePowerOff
		if c.localCause != telephony.CauseNotDisconnected {
			cause = c.localCause
		}
		t.finalize(c, cause)
	}
	t.awaitingCause = nil
	t.pendingMO = 0
	t.hangupPendingMO = false
	t.publish()
}

// publish recomputes the phone state and fires the notifications whose
// value changed.
func (t *CallTracker) publish() {
	ringing := t.callState(telephony.RoleRinging)
	fg := t.callState(telephony.RoleForeground)
	bg := t.callState(telephony.RoleBackground)

	old := t.phoneState
	switch {
	case ringing.IsRinging():
		t.phoneState = telephony.PhoneRinging
	case t.pendingMO != 0 || fg.IsAlive() || bg.IsAlive():
		t.phoneState = telephony.PhoneOffhook
	default:
		t.phoneState = telephony.PhoneIdle
	}
	if old != t.phoneState {
		t.log.Infof("Phone state %s -> %s", old, t.phoneState)
		if old == telephony.PhoneIdle {
			t.sink.OnVoiceCallStarted(t.phone)
		} else if t.phoneState == telephony.PhoneIdle {
			t.sink.OnVoiceCallEnded(t.phone)
		}
	}

	playing := fg == telephony.StateAlerting
	if playing != t.ringback {
		t.ringback = playing
		t.sink.OnRingbackTone(t.phone, playing)
	}

	precise := telephony.PreciseCallState{Phone: t.phone, Ringing: ringing, Foreground: fg, Background: bg}
	if precise != t.lastPrecise {
		t.lastPrecise = precise
		t.sink.OnPreciseCallStateChanged(precise)
	}
}
