package tracker

import (
	"context"
	"errors"
	"strings"

	"callcore/internal/telephony"
)

// ErrInvalidDTMF is returned for a digit that cannot be sent as a tone.
var ErrInvalidDTMF = errors.New("tracker: invalid DTMF digit")

// Dial places an outgoing call. The returned snapshot is the pending
// connection in DIALING state; the radio's outcome arrives through later
// polls.
func (t *CallTracker) Dial(ctx context.Context, address string, clir telephony.CLIRMode) (telephony.ConnectionInfo, error) {
	v, err := t.do(ctx, "dial", func() (any, error) {
		return t.dial(address, clir)
	})
	if err != nil {
		return telephony.ConnectionInfo{}, err
	}
	return v.(telephony.ConnectionInfo), nil
}

func (t *CallTracker) dial(address string, clir telephony.CLIRMode) (telephony.ConnectionInfo, error) {
	if !t.radio.RadioOn() {
		return telephony.ConnectionInfo{}, telephony.NewCallStateError(telephony.KindPowerOff, "radio is off")
	}
	if t.pendingMO != 0 {
		return telephony.ConnectionInfo{}, telephony.NewCallStateError(telephony.KindTooManyCalls, "a dial is already in progress")
	}
	if t.callState(telephony.RoleRinging).IsRinging() {
		return telephony.ConnectionInfo{}, telephony.NewCallStateError(telephony.KindCallRinging, "cannot dial while a call is ringing")
	}
	fg := t.callState(telephony.RoleForeground)
	bg := t.callState(telephony.RoleBackground)
	if fg.IsAlive() && bg.IsAlive() {
		return telephony.ConnectionInfo{}, telephony.NewCallStateError(telephony.KindTooManyCalls, "foreground and background calls both exist")
	}
	if fg.IsDialing() {
		return telephony.ConnectionInfo{}, telephony.NewCallStateError(telephony.KindTooManyCalls, "foreground call is still dialing")
	}

	ds := telephony.ParseDialString(address, clir)

	if fg == telephony.StateActive {
		// Put the active call on hold first; the dial goes out behind it.
		t.radio.SwitchHoldingAndActive(t.beginOp("switch"))
		for _, c := range t.members(telephony.RoleForeground) {
			if c.state == telephony.StateActive {
				t.setState(c, telephony.StateHolding)
			}
		}
	}

	c := t.newConnection(0, address, false, telephony.StateDialing)
	c.postDial = telephony.NewPostDial(ds.PostDial)
	t.pendingMO = c.id
	t.hangupPendingMO = false

	if ds.Network == "" || strings.IndexByte(ds.Network, telephony.Wild) >= 0 {
		t.log.Warnf("Refusing to dial invalid number %q", address)
		c.localCause = telephony.CauseInvalidNumber
		t.pollWhenSafe()
	} else {
		t.log.Infof("Dialing %s (clir=%s)", ds.Network, ds.CLIR)
		t.radio.Dial(ds.Network, ds.CLIR, t.beginOp("dial"))
	}
	t.publish()
	return t.connInfo(c), nil
}

// AcceptCall answers the ringing call.
func (t *CallTracker) AcceptCall(ctx context.Context) error {
	return t.exec(ctx, "accept", func() error {
		rs := t.callState(telephony.RoleRinging)
		if !rs.IsRinging() {
			return telephony.NewCallStateError(telephony.KindInvalidState, "no ringing call to accept")
		}
		if t.pendingAccept {
			return telephony.NewCallStateError(telephony.KindAlreadyActive, "accept already in progress")
		}
		t.pendingAccept = true
		if rs == telephony.StateIncoming {
			t.radio.AcceptCall(t.beginOp("accept"))
		} else {
			// A waiting call is answered by swapping it in.
			t.radio.SwitchHoldingAndActive(t.beginOp("accept"))
		}
		return nil
	})
}

// RejectCall declines the ringing call. The connection ends as
// INCOMING_MISSED.
func (t *CallTracker) RejectCall(ctx context.Context) error {
	return t.exec(ctx, "reject", func() error {
		if !t.callState(telephony.RoleRinging).IsRinging() {
			return telephony.NewCallStateError(telephony.KindInvalidState, "no ringing call to reject")
		}
		for _, c := range t.members(telephony.RoleRinging) {
			if c.state.IsAlive() {
				c.localCause = telephony.CauseIncomingMissed
			}
		}
		t.radio.RejectCall(t.beginOp("reject"))
		return nil
	})
}

// Hangup hangs up every live connection of the call in the given slot.
// Connections already tearing down are left alone, so repeating a hangup
// has no further effect.
func (t *CallTracker) Hangup(ctx context.Context, role telephony.Role) error {
	return t.exec(ctx, "hangup", func() error {
		t.hangupCall(role)
		t.publish()
		return nil
	})
}

func (t *CallTracker) hangupCall(role telephony.Role) {
	for _, c := range t.members(role) {
		if c.state.IsAlive() {
			t.hangupConnection(c)
		}
	}
}

func (t *CallTracker) hangupConnection(c *connection) {
	if c.localCause == telephony.CauseNotDisconnected {
		if c.incoming && !c.everConnected {
			c.localCause = telephony.CauseIncomingMissed
		} else {
			c.localCause = telephony.CauseLocal
		}
	}
	switch {
	case c.gone:
		// Already off the radio; only the cause is pending.
	case c.id == t.pendingMO && c.index == 0:
		// No index yet; hung up as soon as a poll assigns one.
		t.hangupPendingMO = true
	default:
		t.radio.HangupConnection(c.index, t.beginOp("hangup"))
	}
	t.setState(c, telephony.StateDisconnecting)
}

// SwitchHoldingAndActive holds the active call, resumes the held one, or
// swaps them when both exist.
func (t *CallTracker) SwitchHoldingAndActive(ctx context.Context) error {
	return t.exec(ctx, "switch", func() error {
		if t.callState(telephony.RoleRinging) == telephony.StateIncoming {
			return telephony.NewCallStateError(telephony.KindCallRinging, "cannot switch while a call is ringing")
		}
		fg := t.callState(telephony.RoleForeground)
		bg := t.callState(telephony.RoleBackground)
		if !fg.IsAlive() && !bg.IsAlive() {
			return telephony.NewCallStateError(telephony.KindInvalidState, "no call to switch")
		}
		if fg.IsDialing() {
			return telephony.NewCallStateError(telephony.KindInvalidState, "foreground call is dialing")
		}
		t.radio.SwitchHoldingAndActive(t.beginOp("switch"))
		return nil
	})
}

// Hold puts the active foreground call on hold. It fails when a call is
// already held.
func (t *CallTracker) Hold(ctx context.Context) error {
	return t.exec(ctx, "hold", func() error {
		if t.callState(telephony.RoleRinging).IsRinging() {
			return telephony.NewCallStateError(telephony.KindCallRinging, "cannot hold while a call is ringing")
		}
		if t.callState(telephony.RoleForeground) != telephony.StateActive {
			return telephony.NewCallStateError(telephony.KindInvalidState, "no active call to hold")
		}
		if t.callState(telephony.RoleBackground).IsAlive() {
			return telephony.NewCallStateError(telephony.KindInvalidState, "a call is already held")
		}
		t.radio.SwitchHoldingAndActive(t.beginOp("hold"))
		return nil
	})
}

// Resume makes the held call active. It fails when a foreground call
// exists.
func (t *CallTracker) Resume(ctx context.Context) error {
	return t.exec(ctx, "resume", func() error {
		if t.callState(telephony.RoleRinging).IsRinging() {
			return telephony.NewCallStateError(telephony.KindCallRinging, "cannot resume while a call is ringing")
		}
		if t.callState(telephony.RoleBackground) != telephony.StateHolding {
			return telephony.NewCallStateError(telephony.KindInvalidState, "no held call to resume")
		}
		if t.callState(telephony.RoleForeground).IsAlive() {
			return telephony.NewCallStateError(telephony.KindInvalidState, "foreground call is still up")
		}
		t.radio.SwitchHoldingAndActive(t.beginOp("resume"))
		return nil
	})
}

// HangupForegroundResumeBackground hangs up the foreground call and, when
// a call is held on this phone, resumes it.
func (t *CallTracker) HangupForegroundResumeBackground(ctx context.Context) error {
	return t.exec(ctx, "hangup-resume", func() error {
		fg := t.callState(telephony.RoleForeground)
		resume := t.callState(telephony.RoleBackground) == telephony.StateHolding
		if !fg.IsAlive() && !resume {
			return telephony.NewCallStateError(telephony.KindInvalidState, "no call to hang up or resume")
		}
		if fg.IsAlive() {
			t.hangupCall(telephony.RoleForeground)
		}
		if resume {
			t.radio.SwitchHoldingAndActive(t.beginOp("resume"))
		}
		t.publish()
		return nil
	})
}

// SendDTMF plays one tone on the active foreground call.
func (t *CallTracker) SendDTMF(ctx context.Context, digit byte) error {
	if !telephony.IsDTMF(digit) {
		return ErrInvalidDTMF
	}
	digit = telephony.NormalizeDTMF(digit)
	return t.exec(ctx, "dtmf", func() error {
		if t.callState(telephony.RoleForeground) != telephony.StateActive {
			return telephony.NewCallStateError(telephony.KindInvalidState, "no active call for DTMF")
		}
		t.radio.SendDTMF(digit, func(err error) {
			if err != nil {
				t.log.WithError(err).Warnf("DTMF %c failed", digit)
			}
		})
		return nil
	})
}

// ProceedAfterWaitChar resumes post-dial playback stopped at a WAIT.
func (t *CallTracker) ProceedAfterWaitChar(ctx context.Context, id telephony.ConnID) error {
	return t.exec(ctx, "proceed-wait", func() error {
		c, err := t.postDialConn(id, telephony.PostDialWait)
		if err != nil {
			return err
		}
		t.advancePostDial(c)
		return nil
	})
}

// ProceedAfterWildChar substitutes digits for the WILD character the
// playback stopped at and resumes.
func (t *CallTracker) ProceedAfterWildChar(ctx context.Context, id telephony.ConnID, digits string) error {
	return t.exec(ctx, "proceed-wild", func() error {
		c, err := t.postDialConn(id, telephony.PostDialWild)
		if err != nil {
			return err
		}
		c.postDial.ReplaceWild(telephony.NormalizePostDial(digits))
		t.advancePostDial(c)
		return nil
	})
}

// CancelPostDial abandons the rest of a connection's post-dial string. The
// call itself is unaffected.
func (t *CallTracker) CancelPostDial(ctx context.Context, id telephony.ConnID) error {
	return t.exec(ctx, "cancel-postdial", func() error {
		c, ok := t.conns[id]
		if !ok {
			return telephony.NewCallStateError(telephony.KindNoConnection, "connection %d not found", id)
		}
		switch c.postDial.State() {
		case telephony.PostDialComplete, telephony.PostDialCancelled:
			return nil
		}
		c.postDial.Cancel()
		if c.pauseTimer != nil {
			c.pauseTimer.Stop()
			c.pauseTimer = nil
		}
		return nil
	})
}

func (t *CallTracker) postDialConn(id telephony.ConnID, want telephony.PostDialState) (*connection, error) {
	c, ok := t.conns[id]
	if !ok {
		return nil, telephony.NewCallStateError(telephony.KindNoConnection, "connection %d not found", id)
	}
	if c.postDial.State() != want {
		return nil, telephony.NewCallStateError(telephony.KindInvalidState, "post-dial is %s, not %s", c.postDial.State(), want)
	}
	return c, nil
}
