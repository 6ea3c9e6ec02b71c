// Package simradio is an in-memory modem. It keeps a GSM-style call list,
// applies commands to it and reports changes through the radio listener.
// It backs the "simulated" radio mode and the tracker tests.
package simradio

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"callcore/internal/telephony"
)

// Errors returned through completions.
var (
	ErrRadioOff    = errors.New("simradio: radio off")
	ErrNoSuchCall  = errors.New("simradio: no such call")
	ErrNoCall      = errors.New("simradio: no call in a suitable state")
	ErrNoFreeIndex = errors.New("simradio: no free call index")
)

// Cause codes reported by LastCallFailCause.
const (
	CauseNormalClearing = 16
	CauseUserBusy       = 17
	CauseNoAnswer       = 19
	CauseCallRejected   = 21
)

// Options configures a Radio.
type Options struct {
	// MaxCalls bounds the call indexes handed out. Defaults to 7.
	MaxCalls int
	// AutoAnswer makes every dialed call become ACTIVE right away.
	AutoAnswer bool
	// Manual holds command completions until Release is called.
	Manual bool
}

type simCall struct {
	index      int
	state      telephony.State
	number     string
	mt         bool
	multiparty bool
}

// Radio implements telephony.Radio and telephony.FailCauseReporter.
type Radio struct {
	mu        sync.Mutex
	opts      Options
	on        bool
	listener  telephony.RadioListener
	calls     map[int]*simCall
	lastCause int
	counts    map[string]int
	tones     strings.Builder
	dialed    []string
	failNext  map[string]error
	held      []func()
}

var (
	_ telephony.Radio             = (*Radio)(nil)
	_ telephony.FailCauseReporter = (*Radio)(nil)
)

// New returns a powered-on radio with no calls.
func New(opts Options) *Radio {
	if opts.MaxCalls <= 0 {
		opts.MaxCalls = 7
	}
	return &Radio{
		opts:     opts,
		on:       true,
		calls:    make(map[int]*simCall),
		counts:   make(map[string]int),
		failNext: make(map[string]error),
	}
}

// SetListener implements telephony.Radio.
func (r *Radio) SetListener(l telephony.RadioListener) {
	r.mu.Lock()
	r.listener = l
	r.mu.Unlock()
}

// RadioOn implements telephony.Radio.
func (r *Radio) RadioOn() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.on
}

// Dial implements telephony.Radio.
func (r *Radio) Dial(address string, clir telephony.CLIRMode, done telephony.Completion) {
	r.request("dial", done, func() error {
		idx := r.freeIndexLocked()
		if idx == 0 {
			return ErrNoFreeIndex
		}
		state := telephony.StateDialing
		if r.opts.AutoAnswer {
			state = telephony.StateActive
		}
		r.calls[idx] = &simCall{index: idx, state: state, number: address}
		r.dialed = append(r.dialed, address)
		return nil
	})
}

// AcceptCall implements telephony.Radio.
func (r *Radio) AcceptCall(done telephony.Completion) {
	r.request("accept", done, func() error {
		c := r.findLocked(telephony.StateIncoming)
		if c == nil {
			return ErrNoCall
		}
		r.holdActiveLocked()
		c.state = telephony.StateActive
		return nil
	})
}

// RejectCall implements telephony.Radio.
func (r *Radio) RejectCall(done telephony.Completion) {
	r.request("reject", done, func() error {
		c := r.findLocked(telephony.StateIncoming)
		if c == nil {
			c = r.findLocked(telephony.StateWaiting)
		}
		if c == nil {
			return ErrNoCall
		}
		delete(r.calls, c.index)
		r.lastCause = CauseCallRejected
		return nil
	})
}

// HangupConnection implements telephony.Radio.
func (r *Radio) HangupConnection(index int, done telephony.Completion) {
	r.request("hangup", done, func() error {
		if _, ok := r.calls[index]; !ok {
			return fmt.Errorf("%w: index %d", ErrNoSuchCall, index)
		}
		delete(r.calls, index)
		r.lastCause = CauseNormalClearing
		return nil
	})
}

// SwitchHoldingAndActive implements telephony.Radio. A waiting call is
// answered in place of the held one.
func (r *Radio) SwitchHoldingAndActive(done telephony.Completion) {
	r.request("switch", done, func() error {
		if w := r.findLocked(telephony.StateWaiting); w != nil {
			r.holdActiveLocked()
			w.state = telephony.StateActive
			return nil
		}
		changed := false
		for _, c := range r.calls {
			switch c.state {
			case telephony.StateActive:
				c.state = telephony.StateHolding
				changed = true
			case telephony.StateHolding:
				c.state = telephony.StateActive
				changed = true
			}
		}
		if !changed {
			return ErrNoCall
		}
		return nil
	})
}

// SendDTMF implements telephony.Radio.
func (r *Radio) SendDTMF(digit byte, done telephony.Completion) {
	r.request("dtmf", done, func() error {
		if r.findLocked(telephony.StateActive) == nil {
			return ErrNoCall
		}
		r.tones.WriteByte(digit)
		return nil
	})
}

// GetCurrentCalls implements telephony.Radio. Polls are always answered
// immediately.
func (r *Radio) GetCurrentCalls(done func(calls []telephony.DriverCall, err error)) {
	r.mu.Lock()
	r.counts["poll"]++
	if !r.on {
		r.mu.Unlock()
		done(nil, ErrRadioOff)
		return
	}
	calls := r.snapshotLocked()
	r.mu.Unlock()
	done(calls, nil)
}

// LastCallFailCause implements telephony.FailCauseReporter.
func (r *Radio) LastCallFailCause(done func(code int, err error)) {
	r.mu.Lock()
	r.counts["failcause"]++
	code := r.lastCause
	r.mu.Unlock()
	done(code, nil)
}

// request runs apply under the lock, or holds it in manual mode, then
// completes.
func (r *Radio) request(op string, done telephony.Completion, apply func() error) {
	r.mu.Lock()
	r.counts[op]++
	run := func() {
		r.mu.Lock()
		var err error
		if ferr, ok := r.failNext[op]; ok {
			delete(r.failNext, op)
			err = ferr
		} else if !r.on {
			err = ErrRadioOff
		} else {
			err = apply()
		}
		r.mu.Unlock()
		if done != nil {
			done(err)
		}
	}
	if r.opts.Manual {
		r.held = append(r.held, run)
		r.mu.Unlock()
		return
	}
	r.mu.Unlock()
	run()
}

func (r *Radio) freeIndexLocked() int {
	for i := 1; i <= r.opts.MaxCalls; i++ {
		if _, used := r.calls[i]; !used {
			return i
		}
	}
	return 0
}

// findLocked returns the lowest-indexed call in state s.
func (r *Radio) findLocked(s telephony.State) *simCall {
	var found *simCall
	for _, c := range r.calls {
		if c.state == s && (found == nil || c.index < found.index) {
			found = c
		}
	}
	return found
}

func (r *Radio) holdActiveLocked() {
	for _, c := range r.calls {
		if c.state == telephony.StateActive {
			c.state = telephony.StateHolding
		}
	}
}

func (r *Radio) snapshotLocked() []telephony.DriverCall {
	out := make([]telephony.DriverCall, 0, len(r.calls))
	for _, c := range r.calls {
		out = append(out, telephony.DriverCall{
			Index:        c.index,
			State:        c.state,
			Number:       c.number,
			IsMT:         c.mt,
			IsMultiparty: c.multiparty,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	return out
}

func (r *Radio) notify() {
	r.mu.Lock()
	l := r.listener
	r.mu.Unlock()
	if l != nil {
		l.OnCallStateChanged()
	}
}

// Release runs every completion held in manual mode, in request order.
func (r *Radio) Release() int {
	r.mu.Lock()
	held := r.held
	r.held = nil
	r.mu.Unlock()
	for _, run := range held {
		run()
	}
	return len(held)
}

// SetManual switches between held and immediate completions.
func (r *Radio) SetManual(manual bool) {
	r.mu.Lock()
	r.opts.Manual = manual
	r.mu.Unlock()
}

// FailNext makes the next request of op complete with err and no effect.
func (r *Radio) FailNext(op string, err error) {
	r.mu.Lock()
	r.failNext[op] = err
	r.mu.Unlock()
}

// TriggerRing simulates an incoming call. It rings as INCOMING when the
// radio has no other call and as WAITING otherwise. It returns the index.
func (r *Radio) TriggerRing(number string) (int, error) {
	r.mu.Lock()
	if !r.on {
		r.mu.Unlock()
		return 0, ErrRadioOff
	}
	idx := r.freeIndexLocked()
	if idx == 0 {
		r.mu.Unlock()
		return 0, ErrNoFreeIndex
	}
	state := telephony.StateIncoming
	if len(r.calls) > 0 {
		state = telephony.StateWaiting
	}
	r.calls[idx] = &simCall{index: idx, state: state, number: number, mt: true}
	r.mu.Unlock()
	r.notify()
	return idx, nil
}

// SetCallState moves a call to s, as the network would when an outgoing
// call starts alerting or is answered.
func (r *Radio) SetCallState(index int, s telephony.State) error {
	r.mu.Lock()
	c, ok := r.calls[index]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("%w: index %d", ErrNoSuchCall, index)
	}
	c.state = s
	r.mu.Unlock()
	r.notify()
	return nil
}

// SetNumber changes the number the radio reports for a call.
func (r *Radio) SetNumber(index int, number string) error {
	r.mu.Lock()
	c, ok := r.calls[index]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("%w: index %d", ErrNoSuchCall, index)
	}
	c.number = number
	r.mu.Unlock()
	r.notify()
	return nil
}

// ReplaceCall swaps the call at index for one of the other direction,
// as a radio reusing an index would.
func (r *Radio) ReplaceCall(index int, number string, mt bool, s telephony.State) {
	r.mu.Lock()
	r.calls[index] = &simCall{index: index, state: s, number: number, mt: mt}
	r.mu.Unlock()
	r.notify()
}

// RemoteHangup ends a call from the network side with the given cause.
func (r *Radio) RemoteHangup(index int, cause int) error {
	r.mu.Lock()
	if _, ok := r.calls[index]; !ok {
		r.mu.Unlock()
		return fmt.Errorf("%w: index %d", ErrNoSuchCall, index)
	}
	delete(r.calls, index)
	r.lastCause = cause
	r.mu.Unlock()
	r.notify()
	return nil
}

// SetPower turns the radio on or off. Turning it off drops every call.
func (r *Radio) SetPower(on bool) {
	r.mu.Lock()
	r.on = on
	if !on {
		r.calls = make(map[int]*simCall)
	}
	l := r.listener
	r.mu.Unlock()
	if l != nil {
		l.OnRadioStateChanged(on)
	}
}

// Count returns how many requests of op were issued. Ops are dial, accept,
// reject, hangup, switch, dtmf, poll and failcause.
func (r *Radio) Count(op string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.counts[op]
}

// Tones returns every DTMF digit played so far.
func (r *Radio) Tones() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.tones.String()
}

// Dialed returns the network numbers dialed so far.
func (r *Radio) Dialed() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.dialed...)
}

// Calls returns the current call list.
func (r *Radio) Calls() []telephony.DriverCall {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshotLocked()
}
