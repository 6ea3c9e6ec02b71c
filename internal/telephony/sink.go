package telephony

// Sink receives coarse call notifications from a tracker. Methods are
// invoked on the tracker's worker goroutine: implementations must return
// quickly and must not call back into the tracker synchronously.
type Sink interface {
	OnPreciseCallStateChanged(state PreciseCallState)
	OnNewRingingConnection(conn ConnectionInfo)
	OnCallWaiting(conn ConnectionInfo)
	OnRingbackTone(phone string, playing bool)
	OnVoiceCallStarted(phone string)
	OnVoiceCallEnded(phone string)
	OnDisconnect(conn ConnectionInfo, cause DisconnectCause)
	OnPostDialWait(conn ConnectionInfo)
}

// NopSink ignores every notification. Embed it to implement part of Sink.
type NopSink struct{}

func (NopSink) OnPreciseCallStateChanged(PreciseCallState) {}
func (NopSink) OnNewRingingConnection(ConnectionInfo) {}
func (NopSink) OnCallWaiting(ConnectionInfo) {}
func (NopSink) OnRingbackTone(string, bool) {}
func (NopSink) OnVoiceCallStarted(string) {}
func (NopSink) OnVoiceCallEnded(string) {}
func (NopSink) OnDisconnect(ConnectionInfo, DisconnectCause) {}
func (NopSink) OnPostDialWait(ConnectionInfo) {}

// MultiSink fans every notification out to each sink in order.
type MultiSink []Sink

func (m MultiSink) OnPreciseCallStateChanged(s PreciseCallState) {
	for _, sk := range m {
		sk.OnPreciseCallStateChanged(s)
	}
}

func (m MultiSink) OnNewRingingConnection(c ConnectionInfo) {
	for _, sk := range m {
		sk.OnNewRingingConnection(c)
	}
}

func (m MultiSink) OnCallWaiting(c ConnectionInfo) {
	for _, sk := range m {
		sk.OnCallWaiting(c)
	}
}

func (m MultiSink) OnRingbackTone(phone string, playing bool) {
	for _, sk := range m {
		sk.OnRingbackTone(phone, playing)
	}
}

func (m MultiSink) OnVoiceCallStarted(phone string) {
	for _, sk := range m {
		sk.OnVoiceCallStarted(phone)
	}
}

func (m MultiSink) OnVoiceCallEnded(phone string) {
	for _, sk := range m {
		sk.OnVoiceCallEnded(phone)
	}
}

func (m MultiSink) OnDisconnect(c ConnectionInfo, cause DisconnectCause) {
	for _, sk := range m {
		sk.OnDisconnect(c, cause)
	}
}

func (m MultiSink) OnPostDialWait(c ConnectionInfo) {
	for _, sk := range m {
		sk.OnPostDialWait(c)
	}
}
