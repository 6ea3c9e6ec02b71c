// Package callmanager presents the trackers of every phone as one logical
// call model and routes user operations to the tracker that owns the call,
// including swaps that span two phones.
package callmanager

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"callcore/internal/logging"
	"callcore/internal/telephony"
	"callcore/internal/tracker"
)

var (
	ErrUnknownPhone   = errors.New("callmanager: unknown phone")
	ErrDuplicatePhone = errors.New("callmanager: phone already registered")
	ErrNoPhones       = errors.New("callmanager: no phone registered")
)

// Tracker is the per-phone surface the manager drives. *tracker.CallTracker
// implements it.
type Tracker interface {
	PhoneID() string
	Technology() telephony.Technology
	Snapshot(ctx context.Context) (tracker.Snapshot, error)
	Dial(ctx context.Context, address string, clir telephony.CLIRMode) (telephony.ConnectionInfo, error)
	AcceptCall(ctx context.Context) error
	RejectCall(ctx context.Context) error
	Hangup(ctx context.Context, role telephony.Role) error
	SwitchHoldingAndActive(ctx context.Context) error
	Hold(ctx context.Context) error
	Resume(ctx context.Context) error
	HangupForegroundResumeBackground(ctx context.Context) error
	SendDTMF(ctx context.Context, digit byte) error
	ProceedAfterWaitChar(ctx context.Context, id telephony.ConnID) error
	ProceedAfterWildChar(ctx context.Context, id telephony.ConnID, digits string) error
	CancelPostDial(ctx context.Context, id telephony.ConnID) error
}

// CallManager coordinates the registered trackers. It keeps no call state
// of its own; every query is answered from fresh tracker snapshots.
type CallManager struct {
	mu     sync.RWMutex
	order  []string
	phones map[string]Tracker
	log    *logrus.Entry
}

// New returns an empty manager.
func New() *CallManager {
	return &CallManager{
		phones: make(map[string]Tracker),
		log:    logging.For("callmanager"),
	}
}

// Register adds a tracker. Registration order decides the default phone
// and the order in which queries scan phones.
func (m *CallManager) Register(t Tracker) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := t.PhoneID()
	if _, ok := m.phones[id]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicatePhone, id)
	}
	m.phones[id] = t
	m.order = append(m.order, id)
	m.log.Infof("Registered phone %s (%s)", id, t.Technology())
	return nil
}

// Unregister removes a tracker, keeping the relative order of the rest.
func (m *CallManager) Unregister(phone string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.phones[phone]; !ok {
		return false
	}
	delete(m.phones, phone)
	for i, id := range m.order {
		if id == phone {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	m.log.Infof("Unregistered phone %s", phone)
	return true
}

// Phones returns the registered phone ids in registration order.
func (m *CallManager) Phones() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string(nil), m.order...)
}

// DefaultPhone returns the first registered phone.
func (m *CallManager) DefaultPhone() (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.order) == 0 {
		return "", ErrNoPhones
	}
	return m.order[0], nil
}

// Tracker returns the tracker of phone.
func (m *CallManager) Tracker(phone string) (Tracker, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.phones[phone]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownPhone, phone)
	}
	return t, nil
}

func (m *CallManager) trackers() []Tracker {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Tracker, len(m.order))
	for i, id := range m.order {
		out[i] = m.phones[id]
	}
	return out
}

// Snapshots returns every phone's calls in registration order.
func (m *CallManager) Snapshots(ctx context.Context) ([]tracker.Snapshot, error) {
	ts := m.trackers()
	out := make([]tracker.Snapshot, 0, len(ts))
	for _, t := range ts {
		s, err := t.Snapshot(ctx)
		if err != nil {
			return nil, fmt.Errorf("snapshot %s: %w", t.PhoneID(), err)
		}
		out = append(out, s)
	}
	return out, nil
}

// State is the aggregate phone state: RINGING if any phone rings, OFFHOOK
// if any phone is off hook, IDLE otherwise.
func (m *CallManager) State(ctx context.Context) (telephony.PhoneState, error) {
	snaps, err := m.Snapshots(ctx)
	if err != nil {
		return telephony.PhoneIdle, err
	}
	state := telephony.PhoneIdle
	for _, s := range snaps {
		switch s.State {
		case telephony.PhoneRinging:
			return telephony.PhoneRinging, nil
		case telephony.PhoneOffhook:
			state = telephony.PhoneOffhook
		}
	}
	return state, nil
}

// firstCall picks the first live call of role, then the first non-idle
// one. ok is false when every phone's call is idle.
func firstCall(snaps []tracker.Snapshot, role telephony.Role) (telephony.CallInfo, bool) {
	for _, s := range snaps {
		if c := s.Call(role); c.IsAlive() {
			return c, true
		}
	}
	for _, s := range snaps {
		if c := s.Call(role); !c.IsIdle() {
			return c, true
		}
	}
	return telephony.CallInfo{}, false
}

func (m *CallManager) first(ctx context.Context, role telephony.Role) (telephony.CallInfo, error) {
	snaps, err := m.Snapshots(ctx)
	if err != nil {
		return telephony.CallInfo{}, err
	}
	if c, ok := firstCall(snaps, role); ok {
		return c, nil
	}
	if len(snaps) == 0 {
		return telephony.CallInfo{}, ErrNoPhones
	}
	return snaps[0].Call(role), nil
}

// ActiveFgCall returns the first non-idle foreground call, or the default
// phone's idle foreground call.
func (m *CallManager) ActiveFgCall(ctx context.Context) (telephony.CallInfo, error) {
	return m.first(ctx, telephony.RoleForeground)
}

// FirstActiveBgCall returns the first non-idle background call, or the
// default phone's idle one.
func (m *CallManager) FirstActiveBgCall(ctx context.Context) (telephony.CallInfo, error) {
	return m.first(ctx, telephony.RoleBackground)
}

// FirstActiveRingingCall returns the first non-idle ringing call, or the
// default phone's idle one.
func (m *CallManager) FirstActiveRingingCall(ctx context.Context) (telephony.CallInfo, error) {
	return m.first(ctx, telephony.RoleRinging)
}

// FgPhone returns the phone owning ActiveFgCall.
func (m *CallManager) FgPhone(ctx context.Context) (string, error) {
	c, err := m.ActiveFgCall(ctx)
	return c.Phone, err
}

// BgPhone returns the phone owning FirstActiveBgCall.
func (m *CallManager) BgPhone(ctx context.Context) (string, error) {
	c, err := m.FirstActiveBgCall(ctx)
	return c.Phone, err
}

// RingingPhone returns the phone owning FirstActiveRingingCall.
func (m *CallManager) RingingPhone(ctx context.Context) (string, error) {
	c, err := m.FirstActiveRingingCall(ctx)
	return c.Phone, err
}

func (m *CallManager) hasAlive(ctx context.Context, role telephony.Role) (bool, error) {
	snaps, err := m.Snapshots(ctx)
	if err != nil {
		return false, err
	}
	for _, s := range snaps {
		if s.Call(role).IsAlive() {
			return true, nil
		}
	}
	return false, nil
}

// HasActiveFgCall reports whether any phone has a live foreground call.
func (m *CallManager) HasActiveFgCall(ctx context.Context) (bool, error) {
	return m.hasAlive(ctx, telephony.RoleForeground)
}

// HasActiveBgCall reports whether any phone has a live background call.
func (m *CallManager) HasActiveBgCall(ctx context.Context) (bool, error) {
	return m.hasAlive(ctx, telephony.RoleBackground)
}

// HasActiveRingingCall reports whether any phone has a ringing call.
func (m *CallManager) HasActiveRingingCall(ctx context.Context) (bool, error) {
	snaps, err := m.Snapshots(ctx)
	if err != nil {
		return false, err
	}
	for _, s := range snaps {
		if s.Ringing.State.IsRinging() {
			return true, nil
		}
	}
	return false, nil
}
