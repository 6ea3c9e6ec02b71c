// Package tracker implements the per-phone call tracker: the state machine
// that owns a phone's ringing, foreground and background calls, issues
// commands to the radio and reconciles the radio's call-list polls into
// connection and call state.
//
// Every mutation happens on one worker goroutine that drains a FIFO
// mailbox. Caller-facing methods post a command and wait only for the
// worker's precondition check; radio outcomes arrive later as messages on
// the same mailbox.
package tracker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"callcore/internal/clock"
	"callcore/internal/logging"
	"callcore/internal/telephony"
)

// Technology-specific delay before post-dial playback resumes after a PAUSE.
const (
	GSMPauseDelay  = 3 * time.Second
	CDMAPauseDelay = 2 * time.Second
)

// pollRetryDelay spaces out polls after a radio error.
const pollRetryDelay = 250 * time.Millisecond

// ErrStopped is returned by every operation once the tracker is stopped.
var ErrStopped = errors.New("tracker: stopped")

// Config assembles a tracker's collaborators.
type Config struct {
	PhoneID    string
	Technology telephony.Technology
	Radio      telephony.Radio
	Sink       telephony.Sink
	Clock      clock.Clock
	Causes     *telephony.CausePolicy
	// PauseDelay overrides the technology default when non-zero.
	PauseDelay time.Duration
	Logger     *logrus.Entry
}

// CallTracker tracks the calls of one phone.
type CallTracker struct {
	phone      string
	tech       telephony.Technology
	radio      telephony.Radio
	sink       telephony.Sink
	clock      clock.Clock
	causes     *telephony.CausePolicy
	pauseDelay time.Duration
	log        *logrus.Entry

	mbox    *mailbox
	done    chan struct{}
	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool
	stopped bool

	// Owned by the worker goroutine.
	conns           map[telephony.ConnID]*connection
	calls           [3]*call
	slots           []telephony.ConnID
	nextID          telephony.ConnID
	pendingMO       telephony.ConnID
	hangupPendingMO bool
	pendingAccept   bool
	pendingOps      int
	needsPoll       bool
	pollSeq         uint64
	relevantPoll    uint64
	awaitingCause   []*connection
	causeQuery      bool
	phoneState      telephony.PhoneState
	lastPrecise     telephony.PreciseCallState
	ringback        bool
}

// New builds a tracker. Start must be called before use.
func New(cfg Config) *CallTracker {
	tech := cfg.Technology
	if !tech.Valid() {
		tech = telephony.TechGSM
	}
	sink := cfg.Sink
	if sink == nil {
		sink = telephony.NopSink{}
	}
	clk := cfg.Clock
	if clk == nil {
		clk = clock.Real()
	}
	causes := cfg.Causes
	if causes == nil {
		causes = telephony.DefaultCausePolicy()
	}
	delay := cfg.PauseDelay
	if delay == 0 {
		delay = GSMPauseDelay
		if tech == telephony.TechCDMA {
			delay = CDMAPauseDelay
		}
	}
	log := cfg.Logger
	if log == nil {
		log = logging.For("tracker")
	}

	t := &CallTracker{
		phone:      cfg.PhoneID,
		tech:       tech,
		radio:      cfg.Radio,
		sink:       sink,
		clock:      clk,
		causes:     causes,
		pauseDelay: delay,
		log:        log.WithField("phone", cfg.PhoneID),
		mbox:       newMailbox(),
		done:       make(chan struct{}),
		conns:      make(map[telephony.ConnID]*connection),
		slots:      make([]telephony.ConnID, tech.MaxConnections()+1),
	}
	for _, r := range []telephony.Role{telephony.RoleRinging, telephony.RoleForeground, telephony.RoleBackground} {
		t.calls[r] = &call{role: r}
	}
	t.lastPrecise = telephony.PreciseCallState{Phone: t.phone}
	return t
}

// PhoneID returns the id of the phone this tracker drives.
func (t *CallTracker) PhoneID() string { return t.phone }

// Technology returns the radio technology of the phone.
func (t *CallTracker) Technology() telephony.Technology { return t.tech }

// Start launches the worker, subscribes to radio indications and requests
// an initial poll so that state is rebuilt from the radio.
func (t *CallTracker) Start() {
	t.mu.Lock()
	if t.running || t.stopped {
		t.mu.Unlock()
		return
	}
	t.running = true
	t.wg.Add(1)
	t.mu.Unlock()

	t.radio.SetListener(t)
	go t.run()
	t.mbox.post(callStateChanged{})
	t.log.Infof("Call tracker started (%s)", t.tech)
}

// Stop terminates the worker. Pending requests fail with ErrStopped.
func (t *CallTracker) Stop() {
	t.mu.Lock()
	if !t.running {
		t.stopped = true
		t.mu.Unlock()
		return
	}
	t.running = false
	t.stopped = true
	t.mu.Unlock()

	t.mbox.close()
	close(t.done)
	t.wg.Wait()
	t.log.Info("Call tracker stopped")
}

func (t *CallTracker) run() {
	defer t.wg.Done()
	for {
		select {
		case <-t.done:
			return
		case <-t.mbox.signal:
			for {
				msg, ok := t.mbox.pop()
				if !ok {
					break
				}
				t.handle(msg)
			}
		}
	}
}

func (t *CallTracker) handle(msg message) {
	switch m := msg.(type) {
	case command:
		v, err := m.run()
		m.reply <- result{v: v, err: err}
	case opDone:
		t.handleOpDone(m)
	case pollResult:
		t.handlePollResult(m)
	case failCause:
		t.handleFailCause(m)
	case callStateChanged:
		t.pollWhenSafe()
	case radioStateChanged:
		t.handleRadioState(m.on)
	case postDialNext:
		t.handlePostDialNext(m.id)
	case barrier:
		if t.mbox.empty() {
			close(m.reply)
		} else {
			t.mbox.post(m)
		}
	default:
		t.log.Warnf("Ignoring unknown message %T", msg)
	}
}

// OnCallStateChanged implements telephony.RadioListener.
func (t *CallTracker) OnCallStateChanged() {
	t.mbox.post(callStateChanged{})
}

// OnRadioStateChanged implements telephony.RadioListener.
func (t *CallTracker) OnRadioStateChanged(on bool) {
	t.mbox.post(radioStateChanged{on: on})
}

// do runs fn on the worker and waits for its reply.
func (t *CallTracker) do(ctx context.Context, op string, fn func() (any, error)) (any, error) {
	reply := make(chan result, 1)
	if !t.mbox.post(command{op: op, run: fn, reply: reply}) {
		return nil, ErrStopped
	}
	select {
	case r := <-reply:
		return r.v, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-t.done:
		return nil, ErrStopped
	}
}

// exec is do for operations that only return an error.
func (t *CallTracker) exec(ctx context.Context, op string, fn func() error) error {
	_, err := t.do(ctx, op, func() (any, error) { return nil, fn() })
	return err
}

// Sync blocks until every message queued so far, and every message they
// queued in turn, has been processed.
func (t *CallTracker) Sync(ctx context.Context) error {
	reply := make(chan struct{})
	if !t.mbox.post(barrier{reply: reply}) {
		return ErrStopped
	}
	select {
	case <-reply:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-t.done:
		return ErrStopped
	}
}

// Snapshot is a consistent view of a tracker at one instant.
type Snapshot struct {
	Phone      string               `json:"phone"`
	Technology telephony.Technology `json:"technology"`
	State      telephony.PhoneState `json:"state"`
	Ringing    telephony.CallInfo   `json:"ringing"`
	Foreground telephony.CallInfo   `json:"foreground"`
	Background telephony.CallInfo   `json:"background"`
}

// Call returns the call in the given slot.
func (s Snapshot) Call(role telephony.Role) telephony.CallInfo {
	switch role {
	case telephony.RoleRinging:
		return s.Ringing
	case telephony.RoleBackground:
		return s.Background
	default:
		return s.Foreground
	}
}

// Snapshot returns the current calls of the phone.
func (t *CallTracker) Snapshot(ctx context.Context) (Snapshot, error) {
	v, err := t.do(ctx, "snapshot", func() (any, error) {
		return t.snapshot(), nil
	})
	if err != nil {
		return Snapshot{}, err
	}
	return v.(Snapshot), nil
}

func (t *CallTracker) snapshot() Snapshot {
	return Snapshot{
		Phone:      t.phone,
		Technology: t.tech,
		State:      t.phoneState,
		Ringing:    t.callInfo(telephony.RoleRinging),
		Foreground: t.callInfo(telephony.RoleForeground),
		Background: t.callInfo(telephony.RoleBackground),
	}
}
