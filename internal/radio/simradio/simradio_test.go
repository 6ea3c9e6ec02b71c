package simradio

import (
	"errors"
	"testing"

	"callcore/internal/telephony"
)

type countingListener struct {
	changes int
	power   []bool
}

func (l *countingListener) OnCallStateChanged()         { l.changes++ }
func (l *countingListener) OnRadioStateChanged(on bool) { l.power = append(l.power, on) }

func result(t *testing.T) (telephony.Completion, *error) {
	t.Helper()
	var got error
	called := false
	t.Cleanup(func() {
		if !called {
			t.Error("completion never invoked")
		}
	})
	return func(err error) { called = true; got = err }, &got
}

func TestDialAndPoll(t *testing.T) {
	r := New(Options{})
	done, err := result(t)
	r.Dial("5551234", telephony.CLIRDefault, done)
	if *err != nil {
		t.Fatalf("dial: %v", *err)
	}
	calls := r.Calls()
	if len(calls) != 1 || calls[0].Index != 1 || calls[0].State != telephony.StateDialing || calls[0].IsMT {
		t.Fatalf("calls = %+v", calls)
	}
	if got := r.Dialed(); len(got) != 1 || got[0] != "5551234" {
		t.Errorf("Dialed = %v", got)
	}
	r.GetCurrentCalls(func(calls []telephony.DriverCall, err error) {
		if err != nil || len(calls) != 1 {
			t.Errorf("poll = %v, %v", calls, err)
		}
	})
	if r.Count("dial") != 1 || r.Count("poll") != 1 {
		t.Errorf("counts dial=%d poll=%d", r.Count("dial"), r.Count("poll"))
	}
}

func TestAutoAnswer(t *testing.T) {
	r := New(Options{AutoAnswer: true})
	r.Dial("5551234", telephony.CLIRDefault, nil)
	if calls := r.Calls(); len(calls) != 1 || calls[0].State != telephony.StateActive {
		t.Fatalf("calls = %+v", calls)
	}
}

func TestManualHoldsCompletions(t *testing.T) {
	r := New(Options{Manual: true})
	var got []string
	r.Dial("1", telephony.CLIRDefault, func(error) { got = append(got, "dial") })
	r.SendDTMF('5', func(error) { got = append(got, "dtmf") })
	if len(got) != 0 || len(r.Calls()) != 0 {
		t.Fatalf("request applied before Release: %v", got)
	}
	if n := r.Release(); n != 2 {
		t.Fatalf("Release = %d", n)
	}
	if len(got) != 2 || got[0] != "dial" || got[1] != "dtmf" {
		t.Errorf("completion order = %v", got)
	}
	// The dialed call is not ACTIVE, so the tone was refused.
	if r.Tones() != "" {
		t.Errorf("Tones = %q", r.Tones())
	}
}

func TestRingIncomingThenWaiting(t *testing.T) {
	r := New(Options{})
	l := &countingListener{}
	r.SetListener(l)

	first, err := r.TriggerRing("100")
	if err != nil {
		t.Fatal(err)
	}
	accept, aerr := result(t)
	r.AcceptCall(accept)
	if *aerr != nil {
		t.Fatalf("accept: %v", *aerr)
	}
	second, err := r.TriggerRing("200")
	if err != nil {
		t.Fatal(err)
	}
	if l.changes != 2 {
		t.Errorf("listener saw %d changes", l.changes)
	}

	calls := r.Calls()
	if calls[0].Index != first || calls[0].State != telephony.StateActive {
		t.Errorf("first = %+v", calls[0])
	}
	if calls[1].Index != second || calls[1].State != telephony.StateWaiting || !calls[1].IsMT {
		t.Errorf("second = %+v", calls[1])
	}

	// Switching with a waiting call answers it and holds the active one.
	r.SwitchHoldingAndActive(nil)
	calls = r.Calls()
	if calls[0].State != telephony.StateHolding || calls[1].State != telephony.StateActive {
		t.Fatalf("after switch = %+v", calls)
	}
	r.SwitchHoldingAndActive(nil)
	calls = r.Calls()
	if calls[0].State != telephony.StateActive || calls[1].State != telephony.StateHolding {
		t.Fatalf("after second switch = %+v", calls)
	}
}

func TestRejectAndFailCause(t *testing.T) {
	r := New(Options{})
	r.TriggerRing("100")
	r.RejectCall(nil)
	if len(r.Calls()) != 0 {
		t.Fatal("rejected call still listed")
	}
	r.LastCallFailCause(func(code int, err error) {
		if err != nil || code != CauseCallRejected {
			t.Errorf("cause = %d, %v", code, err)
		}
	})

	idx, _ := r.TriggerRing("200")
	if err := r.RemoteHangup(idx, CauseUserBusy); err != nil {
		t.Fatal(err)
	}
	r.LastCallFailCause(func(code int, err error) {
		if code != CauseUserBusy {
			t.Errorf("cause = %d", code)
		}
	})
}

func TestFailNext(t *testing.T) {
	r := New(Options{})
	boom := errors.New("boom")
	r.FailNext("dial", boom)

	done, err := result(t)
	r.Dial("1", telephony.CLIRDefault, done)
	if !errors.Is(*err, boom) {
		t.Fatalf("err = %v", *err)
	}
	if len(r.Calls()) != 0 {
		t.Error("failed dial created a call")
	}
	r.Dial("1", telephony.CLIRDefault, nil)
	if len(r.Calls()) != 1 {
		t.Error("FailNext applied twice")
	}
}

func TestHangupUnknownIndex(t *testing.T) {
	r := New(Options{})
	done, err := result(t)
	r.HangupConnection(4, done)
	if !errors.Is(*err, ErrNoSuchCall) {
		t.Fatalf("err = %v", *err)
	}
}

func TestPowerOffDropsCalls(t *testing.T) {
	r := New(Options{})
	l := &countingListener{}
	r.SetListener(l)
	r.TriggerRing("100")

	r.SetPower(false)
	if r.RadioOn() || len(r.Calls()) != 0 {
		t.Fatal("power off kept calls")
	}
	if len(l.power) != 1 || l.power[0] {
		t.Errorf("power notifications = %v", l.power)
	}

	done, err := result(t)
	r.AcceptCall(done)
	if !errors.Is(*err, ErrRadioOff) {
		t.Errorf("accept err = %v", *err)
	}
	r.GetCurrentCalls(func(_ []telephony.DriverCall, err error) {
		if !errors.Is(err, ErrRadioOff) {
			t.Errorf("poll err = %v", err)
		}
	})
	if _, err := r.TriggerRing("200"); !errors.Is(err, ErrRadioOff) {
		t.Errorf("ring err = %v", err)
	}
}

func TestIndexesExhausted(t *testing.T) {
	r := New(Options{MaxCalls: 1})
	r.TriggerRing("100")
	if _, err := r.TriggerRing("200"); !errors.Is(err, ErrNoFreeIndex) {
		t.Fatalf("err = %v", err)
	}
}
