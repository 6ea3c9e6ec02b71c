package tracker

import (
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"callcore/internal/clock"
	"callcore/internal/telephony"
)

// connection is one call leg. It lives in the tracker's arena and is
// referenced by id from at most one call.
type connection struct {
	id       telephony.ConnID
	telecom  string
	index    int // 0 until the radio assigns one
	address  string
	incoming bool
	state    telephony.State
	role     telephony.Role
	attached bool
	cause    telephony.DisconnectCause

	created      time.Time
	connected    time.Time
	disconnected time.Time
	holdStart    time.Time
	holdTotal    time.Duration

	// Locally recorded cause that wins over inference when the connection
	// vanishes from a poll.
	localCause telephony.DisconnectCause
	// everConnected is set once the connection reached ACTIVE or HOLDING.
	everConnected bool
	// gone is set once the connection left the call list. Its index may
	// already belong to another call.
	gone bool

	postDial   telephony.PostDial
	pauseTimer clock.Timer

	forwarded  []string
	multiparty bool
}

// call is one role slot. It holds ids into the arena in insertion order.
type call struct {
	role  telephony.Role
	conns []telephony.ConnID
}

func (c *call) remove(id telephony.ConnID) {
	for i, v := range c.conns {
		if v == id {
			c.conns = append(c.conns[:i], c.conns[i+1:]...)
			return
		}
	}
}

func (t *CallTracker) newConnection(index int, address string, incoming bool, state telephony.State) *connection {
	t.nextID++
	c := &connection{
		id:       t.nextID,
		telecom:  uuid.NewString(),
		index:    index,
		address:  address,
		incoming: incoming,
		created:  t.clock.Now(),
	}
	t.conns[c.id] = c
	t.setState(c, state)
	return c
}

// setState moves c to s, maintaining hold accounting and re-parenting c
// into the call slot its new state belongs to. Tearing-down states keep
// the current slot.
func (t *CallTracker) setState(c *connection, s telephony.State) {
	now := t.clock.Now()
	if c.state == telephony.StateHolding && s != telephony.StateHolding && !c.holdStart.IsZero() {
		c.holdTotal += now.Sub(c.holdStart)
		c.holdStart = time.Time{}
	}
	if s == telephony.StateHolding && c.state != telephony.StateHolding {
		c.holdStart = now
	}
	if (s == telephony.StateActive || s == telephony.StateHolding) && !c.everConnected {
		c.everConnected = true
		c.connected = now
	}
	c.state = s
	if s.IsAlive() {
		t.attach(c, telephony.RoleForState(s))
	}
}

func (t *CallTracker) attach(c *connection, role telephony.Role) {
	if c.attached && c.role == role {
		return
	}
	t.detach(c)
	c.role = role
	c.attached = true
	t.calls[role].conns = append(t.calls[role].conns, c.id)
}

func (t *CallTracker) detach(c *connection) {
	if !c.attached {
		return
	}
	t.calls[c.role].remove(c.id)
	c.attached = false
}

// finalize records the cause, removes c from its call and the arena and
// reports the disconnect.
func (t *CallTracker) finalize(c *connection, cause telephony.DisconnectCause) {
	if c.pauseTimer != nil {
		c.pauseTimer.Stop()
		c.pauseTimer = nil
	}
	c.cause = cause
	t.setState(c, telephony.StateDisconnected)
	c.disconnected = t.clock.Now()
	info := t.connInfo(c)

	t.detach(c)
	delete(t.conns, c.id)
	if c.index > 0 && c.index < len(t.slots) && t.slots[c.index] == c.id {
		t.slots[c.index] = 0
	}
	if t.pendingMO == c.id {
		t.pendingMO = 0
		t.hangupPendingMO = false
	}
	t.log.WithFields(logrus.Fields{
		"conn":  c.id,
		"cause": cause,
	}).Info("Connection disconnected")
	t.sink.OnDisconnect(info, cause)
}

func (t *CallTracker) connInfo(c *connection) telephony.ConnectionInfo {
	hold := c.holdTotal
	if c.state == telephony.StateHolding && !c.holdStart.IsZero() {
		hold += t.clock.Now().Sub(c.holdStart)
	}
	info := telephony.ConnectionInfo{
		Phone:             t.phone,
		ID:                c.id,
		TelecomCallID:     c.telecom,
		Index:             c.index,
		Address:           c.address,
		Incoming:          c.incoming,
		State:             c.state,
		Role:              c.role,
		Cause:             c.cause,
		CreateTime:        c.created,
		ConnectTime:       c.connected,
		HoldDuration:      hold,
		PostDialState:     c.postDial.State(),
		RemainingPostDial: c.postDial.Remaining(),
		Multiparty:        c.multiparty,
	}
	if !c.disconnected.IsZero() {
		d := c.disconnected
		info.DisconnectTime = &d
	}
	if len(c.forwarded) > 0 {
		info.Forwarded = append([]string(nil), c.forwarded...)
	}
	return info
}

func (t *CallTracker) members(role telephony.Role) []*connection {
	ids := t.calls[role].conns
	out := make([]*connection, 0, len(ids))
	for _, id := range ids {
		if c, ok := t.conns[id]; ok {
			out = append(out, c)
		}
	}
	return out
}

// callState derives the displayed state of a slot from its members.
func (t *CallTracker) callState(role telephony.Role) telephony.State {
	members := t.members(role)
	states := make([]telephony.State, len(members))
	for i, c := range members {
		states[i] = c.state
	}
	return telephony.DeriveCallState(states)
}

func (t *CallTracker) callInfo(role telephony.Role) telephony.CallInfo {
	members := t.members(role)
	info := telephony.CallInfo{
		Phone:       t.phone,
		Role:        role,
		State:       t.callState(role),
		Connections: make([]telephony.ConnectionInfo, len(members)),
	}
	for i, c := range members {
		info.Connections[i] = t.connInfo(c)
	}
	return info
}
