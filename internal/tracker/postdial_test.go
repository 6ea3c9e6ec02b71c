package tracker

import (
	"errors"
	"testing"
	"time"

	"callcore/internal/telephony"
)

func TestPostDialPauseAutoAdvance(t *testing.T) {
	h := newHarness(t)
	h.activeCall("+17005554141,1234", 1)

	if got := h.radio.Dialed(); got[0] != "+17005554141" {
		t.Fatalf("network portion = %q", got[0])
	}
	conn := h.snapshot().Foreground.Connections[0]
	if conn.PostDialState != telephony.PostDialPause || conn.RemainingPostDial != "1234" {
		t.Fatalf("post-dial = %s %q, want PAUSE %q", conn.PostDialState, conn.RemainingPostDial, "1234")
	}
	if got := h.radio.Tones(); got != "" {
		t.Fatalf("tones before pause elapsed = %q", got)
	}

	h.clock.Advance(GSMPauseDelay - time.Millisecond)
	h.sync()
	if got := h.radio.Tones(); got != "" {
		t.Fatalf("tones before pause elapsed = %q", got)
	}

	h.clock.Advance(time.Millisecond)
	conn = h.snapshot().Foreground.Connections[0]
	if got := h.radio.Tones(); got != "1234" {
		t.Errorf("tones = %q, want %q", got, "1234")
	}
	if conn.PostDialState != telephony.PostDialComplete || conn.RemainingPostDial != "" {
		t.Errorf("post-dial = %s %q, want COMPLETE", conn.PostDialState, conn.RemainingPostDial)
	}
}

func TestPostDialWait(t *testing.T) {
	h := newHarness(t)
	h.activeCall("+17005554141,;99", 1)

	s := h.snapshot()
	conn := s.Foreground.Connections[0]
	if conn.PostDialState != telephony.PostDialWait {
		t.Fatalf("post-dial = %s, want WAIT", conn.PostDialState)
	}
	if len(h.sink.postDial) != 1 {
		t.Fatalf("post-dial wait notifications = %d, want 1", len(h.sink.postDial))
	}

	// WAIT never times out.
	h.clock.Advance(time.Hour)
	h.sync()
	if got := h.radio.Tones(); got != "" {
		t.Fatalf("tones while waiting = %q", got)
	}

	h.must(h.tracker.ProceedAfterWaitChar(h.ctx(), conn.ID))
	if got := h.radio.Tones(); got != "99" {
		t.Errorf("tones = %q, want %q", got, "99")
	}
	if err := h.tracker.ProceedAfterWaitChar(h.ctx(), conn.ID); !errors.Is(err, telephony.ErrInvalidState) {
		t.Errorf("second proceed = %v, want INVALID_STATE", err)
	}
}

func TestPostDialWild(t *testing.T) {
	h := newHarness(t)
	h.activeCall("+17005554141;N5", 1)

	conn := h.snapshot().Foreground.Connections[0]
	h.must(h.tracker.ProceedAfterWaitChar(h.ctx(), conn.ID))
	if conn = h.snapshot().Foreground.Connections[0]; conn.PostDialState != telephony.PostDialWild {
		t.Fatalf("post-dial = %s, want WILD", conn.PostDialState)
	}
	h.must(h.tracker.ProceedAfterWildChar(h.ctx(), conn.ID, "34"))
	if got := h.radio.Tones(); got != "345" {
		t.Errorf("tones = %q, want %q", got, "345")
	}
}

func TestCancelPostDial(t *testing.T) {
	h := newHarness(t)
	h.activeCall("+17005554141,55", 1)

	conn := h.snapshot().Foreground.Connections[0]
	h.must(h.tracker.CancelPostDial(h.ctx(), conn.ID))
	if n := h.clock.Pending(); n != 0 {
		t.Errorf("pending timers = %d, want 0", n)
	}
	h.clock.Advance(time.Minute)

	s := h.snapshot()
	if got := h.radio.Tones(); got != "" {
		t.Errorf("tones after cancel = %q", got)
	}
	conn = s.Foreground.Connections[0]
	if conn.PostDialState != telephony.PostDialCancelled {
		t.Errorf("post-dial = %s, want CANCELLED", conn.PostDialState)
	}
	if s.Foreground.State != telephony.StateActive {
		t.Errorf("call state = %s, want ACTIVE", s.Foreground.State)
	}

	if err := h.tracker.CancelPostDial(h.ctx(), 999); !errors.Is(err, telephony.ErrNoConnection) {
		t.Errorf("cancel unknown connection = %v, want NO_CONNECTION", err)
	}
}

func TestCDMAPauseDelay(t *testing.T) {
	if got := New(Config{Technology: telephony.TechCDMA}).pauseDelay; got != CDMAPauseDelay {
		t.Errorf("CDMA pause = %s, want %s", got, CDMAPauseDelay)
	}
	if got := New(Config{Technology: telephony.TechIMS}).pauseDelay; got != GSMPauseDelay {
		t.Errorf("IMS pause = %s, want %s", got, GSMPauseDelay)
	}
	if got := New(Config{PauseDelay: time.Second}).pauseDelay; got != time.Second {
		t.Errorf("configured pause = %s, want 1s", got)
	}
}
