package tracker

import "callcore/internal/telephony"

// maybeStartPostDial begins playback once an outgoing foreground call is
// answered.
func (t *CallTracker) maybeStartPostDial(c *connection) {
	if c.incoming || c.state != telephony.StateActive || c.role != telephony.RoleForeground {
		return
	}
	if c.postDial.State() != telephony.PostDialNotStarted {
		return
	}
	t.advancePostDial(c)
}

// advancePostDial consumes the next post-dial character. Tones and pauses
// re-enter through a postDialNext message; WAIT and WILD stop until the
// user proceeds.
func (t *CallTracker) advancePostDial(c *connection) {
	id := c.id
	kind, ch := c.postDial.Next()
	switch kind {
	case telephony.StepDone:
		t.log.Debugf("Post-dial of connection %d %s", id, c.postDial.State())
	case telephony.StepDigit:
		t.radio.SendDTMF(ch, func(err error) {
			if err != nil {
				t.log.WithError(err).Warnf("Post-dial tone %c failed", ch)
			}
			t.mbox.post(postDialNext{id: id})
		})
	case telephony.StepPause:
		c.pauseTimer = t.clock.AfterFunc(t.pauseDelay, func() {
			t.mbox.post(postDialNext{id: id})
		})
	case telephony.StepWait, telephony.StepWild:
		t.sink.OnPostDialWait(t.connInfo(c))
	}
}

func (t *CallTracker) handlePostDialNext(id telephony.ConnID) {
	c, ok := t.conns[id]
	if !ok || c.gone || !c.state.IsAlive() {
		return
	}
	switch c.postDial.State() {
	case telephony.PostDialStarted, telephony.PostDialPause:
	default:
		return
	}
	c.pauseTimer = nil
	t.advancePostDial(c)
}
