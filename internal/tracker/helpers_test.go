package tracker

import (
	"context"
	"sync"
	"testing"
	"time"

	"callcore/internal/clock"
	"callcore/internal/logging"
	"callcore/internal/radio/simradio"
	"callcore/internal/telephony"
)

func init() {
	logging.Discard()
}

// recorder is a telephony.Sink that keeps everything it is told.
type recorder struct {
	mu          sync.Mutex
	precise     []telephony.PreciseCallState
	ringing     []telephony.ConnectionInfo
	waiting     []telephony.ConnectionInfo
	ringback    []bool
	started     int
	ended       int
	disconnects []telephony.ConnectionInfo
	causes      []telephony.DisconnectCause
	postDial    []telephony.ConnectionInfo
}

func (r *recorder) OnPreciseCallStateChanged(s telephony.PreciseCallState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.precise = append(r.precise, s)
}

func (r *recorder) OnNewRingingConnection(c telephony.ConnectionInfo) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ringing = append(r.ringing, c)
}

func (r *recorder) OnCallWaiting(c telephony.ConnectionInfo) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.waiting = append(r.waiting, c)
}

func (r *recorder) OnRingbackTone(_ string, playing bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ringback = append(r.ringback, playing)
}

func (r *recorder) OnVoiceCallStarted(string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.started++
}

func (r *recorder) OnVoiceCallEnded(string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ended++
}

func (r *recorder) OnDisconnect(c telephony.ConnectionInfo, cause telephony.DisconnectCause) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.disconnects = append(r.disconnects, c)
	r.causes = append(r.causes, cause)
}

func (r *recorder) OnPostDialWait(c telephony.ConnectionInfo) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.postDial = append(r.postDial, c)
}

func (r *recorder) lastCause(t *testing.T) telephony.DisconnectCause {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.causes) == 0 {
		t.Fatal("no disconnect recorded")
	}
	return r.causes[len(r.causes)-1]
}

func (r *recorder) voiceCalls() (started, ended int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.started, r.ended
}

// plainRadio hides the fail-cause capability of the wrapped radio.
type plainRadio struct {
	telephony.Radio
}

type harness struct {
	t       *testing.T
	tracker *CallTracker
	radio   *simradio.Radio
	sink    *recorder
	clock   *clock.FakeClock
}

func newHarness(t *testing.T) *harness {
	return newHarnessWith(t, nil, nil)
}

// newHarnessWith builds a started GSM tracker. wrap, when set, adapts the
// simulated radio before it is handed to the tracker.
func newHarnessWith(t *testing.T, wrap func(*simradio.Radio) telephony.Radio, causes *telephony.CausePolicy) *harness {
	t.Helper()
	h := &harness{
		t:     t,
		radio: simradio.New(simradio.Options{}),
		sink:  &recorder{},
		clock: clock.Fake(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)),
	}
	var radio telephony.Radio = h.radio
	if wrap != nil {
		radio = wrap(h.radio)
	}
	h.tracker = New(Config{
		PhoneID:    "phone0",
		Technology: telephony.TechGSM,
		Radio:      radio,
		Sink:       h.sink,
		Clock:      h.clock,
		Causes:     causes,
	})
	h.tracker.Start()
	t.Cleanup(h.tracker.Stop)
	h.sync()
	return h
}

func (h *harness) ctx() context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	h.t.Cleanup(cancel)
	return ctx
}

func (h *harness) sync() {
	h.t.Helper()
	if err := h.tracker.Sync(h.ctx()); err != nil {
		h.t.Fatalf("Sync: %v", err)
	}
}

func (h *harness) snapshot() Snapshot {
	h.t.Helper()
	h.sync()
	s, err := h.tracker.Snapshot(h.ctx())
	if err != nil {
		h.t.Fatalf("Snapshot: %v", err)
	}
	checkInvariants(h.t, s)
	return s
}

func (h *harness) dial(address string) telephony.ConnectionInfo {
	h.t.Helper()
	info, err := h.tracker.Dial(h.ctx(), address, telephony.CLIRDefault)
	if err != nil {
		h.t.Fatalf("Dial(%q): %v", address, err)
	}
	h.sync()
	return info
}

// activeCall dials address and has the network answer it at index.
func (h *harness) activeCall(address string, index int) {
	h.t.Helper()
	h.dial(address)
	if err := h.radio.SetCallState(index, telephony.StateActive); err != nil {
		h.t.Fatalf("SetCallState: %v", err)
	}
	h.sync()
}

func (h *harness) must(err error) {
	h.t.Helper()
	if err != nil {
		h.t.Fatal(err)
	}
	h.sync()
}

// checkInvariants verifies that no connection is visible in two calls,
// that every connection sits in the slot its role names and that at most
// one call is ringing.
func checkInvariants(t *testing.T, s Snapshot) {
	t.Helper()
	seen := make(map[telephony.ConnID]telephony.Role)
	incoming := 0
	for _, c := range []telephony.CallInfo{s.Ringing, s.Foreground, s.Background} {
		for _, conn := range c.Connections {
			if prev, dup := seen[conn.ID]; dup {
				t.Fatalf("connection %d in both %s and %s", conn.ID, prev, c.Role)
			}
			seen[conn.ID] = c.Role
			if conn.Role != c.Role {
				t.Errorf("connection %d reports role %s inside %s call", conn.ID, conn.Role, c.Role)
			}
			if conn.State.IsRinging() && c.Role != telephony.RoleRinging {
				t.Errorf("ringing connection %d inside %s call", conn.ID, c.Role)
			}
			if conn.State == telephony.StateIncoming {
				incoming++
			}
		}
		if (len(c.Connections) == 0) != (c.State == telephony.StateIdle) {
			t.Errorf("%s call state %s with %d connections", c.Role, c.State, len(c.Connections))
		}
	}
	if incoming > 1 {
		t.Errorf("%d INCOMING connections, want at most 1", incoming)
	}
}

// lateCauseRadio holds fail-cause queries until answer is called.
type lateCauseRadio struct {
	*simradio.Radio
	mu   sync.Mutex
	held []func()
}

func (r *lateCauseRadio) LastCallFailCause(done func(code int, err error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.held = append(r.held, func() { r.Radio.LastCallFailCause(done) })
}

func (r *lateCauseRadio) answer() {
	r.mu.Lock()
	held := r.held
	r.held = nil
	r.mu.Unlock()
	for _, f := range held {
		f()
	}
}
