package callmanager

import (
	"context"
	"errors"

	"callcore/internal/telephony"
)

// Dial places a call on phone. Dialing only ever touches one phone.
func (m *CallManager) Dial(ctx context.Context, phone, address string, clir telephony.CLIRMode) (telephony.ConnectionInfo, error) {
	t, err := m.Tracker(phone)
	if err != nil {
		return telephony.ConnectionInfo{}, err
	}
	return t.Dial(ctx, address, clir)
}

// AcceptCall answers call on the phone that owns it.
func (m *CallManager) AcceptCall(ctx context.Context, call telephony.CallInfo) error {
	t, err := m.Tracker(call.Phone)
	if err != nil {
		return err
	}
	return t.AcceptCall(ctx)
}

// RejectCall declines call on the phone that owns it.
func (m *CallManager) RejectCall(ctx context.Context, call telephony.CallInfo) error {
	t, err := m.Tracker(call.Phone)
	if err != nil {
		return err
	}
	return t.RejectCall(ctx)
}

// Hangup hangs up call on the phone that owns it.
func (m *CallManager) Hangup(ctx context.Context, call telephony.CallInfo) error {
	t, err := m.Tracker(call.Phone)
	if err != nil {
		return err
	}
	return t.Hangup(ctx, call.Role)
}

// activeAndHeld resolves the live foreground call and the held call to act
// on. held overrides the lookup when non-nil.
func (m *CallManager) activeAndHeld(ctx context.Context, held *telephony.CallInfo) (fg, bg *telephony.CallInfo, err error) {
	snaps, err := m.Snapshots(ctx)
	if err != nil {
		return nil, nil, err
	}
	for _, s := range snaps {
		if c := s.Foreground; c.IsAlive() {
			fg = &c
			break
		}
	}
	if held != nil {
		if held.IsAlive() {
			bg = held
		}
		return fg, bg, nil
	}
	for _, s := range snaps {
		if c := s.Background; c.IsAlive() {
			bg = &c
			break
		}
	}
	return fg, bg, nil
}

// SwitchHoldingAndActive swaps the active and held calls. When they live
// on different phones the active phone is asked to hold and the held phone
// to resume, as two independent requests; a failure of one does not undo
// the other. A hold refused outright skips the resume, which would leave
// two calls in the foreground.
func (m *CallManager) SwitchHoldingAndActive(ctx context.Context, held *telephony.CallInfo) error {
	fg, bg, err := m.activeAndHeld(ctx, held)
	if err != nil {
		return err
	}
	switch {
	case fg == nil && bg == nil:
		return telephony.NewCallStateError(telephony.KindInvalidState, "no call to switch")
	case fg == nil:
		return m.switchOn(ctx, bg.Phone)
	case bg == nil || bg.Phone == fg.Phone:
		return m.switchOn(ctx, fg.Phone)
	}

	active, err := m.Tracker(fg.Phone)
	if err != nil {
		return err
	}
	holder, err := m.Tracker(bg.Phone)
	if err != nil {
		return err
	}
	if fg.State != telephony.StateActive {
		return telephony.NewCallStateError(telephony.KindInvalidState, "foreground call on %s is %s", fg.Phone, fg.State)
	}
	m.log.Infof("Cross-phone swap: hold on %s, resume on %s", fg.Phone, bg.Phone)
	holdErr := active.Hold(ctx)
	if holdErr != nil {
		m.log.WithError(holdErr).Warnf("Hold on %s failed during swap", fg.Phone)
		var refused *telephony.CallStateError
		if errors.As(holdErr, &refused) {
			return holdErr
		}
	}
	resumeErr := holder.Resume(ctx)
	if resumeErr != nil {
		m.log.WithError(resumeErr).Warnf("Resume on %s failed during swap", bg.Phone)
	}
	return errors.Join(holdErr, resumeErr)
}

func (m *CallManager) switchOn(ctx context.Context, phone string) error {
	t, err := m.Tracker(phone)
	if err != nil {
		return err
	}
	return t.SwitchHoldingAndActive(ctx)
}

// HangupForegroundResumeBackground hangs up the foreground call and
// resumes the held call. When the held call belongs to another phone it is
// resumed there with an explicit request.
func (m *CallManager) HangupForegroundResumeBackground(ctx context.Context, held *telephony.CallInfo) error {
	fg, bg, err := m.activeAndHeld(ctx, held)
	if err != nil {
		return err
	}
	switch {
	case fg == nil && bg == nil:
		return telephony.NewCallStateError(telephony.KindInvalidState, "no call to hang up or resume")
	case fg == nil:
		t, err := m.Tracker(bg.Phone)
		if err != nil {
			return err
		}
		return t.Resume(ctx)
	case bg == nil || bg.Phone == fg.Phone:
		t, err := m.Tracker(fg.Phone)
		if err != nil {
			return err
		}
		return t.HangupForegroundResumeBackground(ctx)
	}

	active, err := m.Tracker(fg.Phone)
	if err != nil {
		return err
	}
	holder, err := m.Tracker(bg.Phone)
	if err != nil {
		return err
	}
	hangupErr := active.Hangup(ctx, telephony.RoleForeground)
	resumeErr := holder.Resume(ctx)
	return errors.Join(hangupErr, resumeErr)
}

// SendDTMF plays digit on the phone owning the active foreground call. It
// reports false, and does nothing, when no phone has one.
func (m *CallManager) SendDTMF(ctx context.Context, digit byte) (bool, error) {
	snaps, err := m.Snapshots(ctx)
	if err != nil {
		return false, err
	}
	for _, s := range snaps {
		if s.Foreground.State != telephony.StateActive {
			continue
		}
		t, err := m.Tracker(s.Phone)
		if err != nil {
			return false, err
		}
		return true, t.SendDTMF(ctx, digit)
	}
	return false, nil
}

// ProceedAfterWaitChar resumes post-dial playback of a connection on phone.
func (m *CallManager) ProceedAfterWaitChar(ctx context.Context, phone string, id telephony.ConnID) error {
	t, err := m.Tracker(phone)
	if err != nil {
		return err
	}
	return t.ProceedAfterWaitChar(ctx, id)
}

// ProceedAfterWildChar replaces a WILD character and resumes playback.
func (m *CallManager) ProceedAfterWildChar(ctx context.Context, phone string, id telephony.ConnID, digits string) error {
	t, err := m.Tracker(phone)
	if err != nil {
		return err
	}
	return t.ProceedAfterWildChar(ctx, id, digits)
}

// CancelPostDial abandons the post-dial string of a connection on phone.
func (m *CallManager) CancelPostDial(ctx context.Context, phone string, id telephony.ConnID) error {
	t, err := m.Tracker(phone)
	if err != nil {
		return err
	}
	return t.CancelPostDial(ctx, id)
}
