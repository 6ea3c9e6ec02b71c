package websocket

import (
	"callcore/internal/telephony"
)

// ringbackEvent is the payload of EventRingback.
type ringbackEvent struct {
	Playing bool `json:"playing"`
}

// disconnectEvent is the payload of EventDisconnect.
type disconnectEvent struct {
	Connection telephony.ConnectionInfo  `json:"connection"`
	Cause      telephony.DisconnectCause `json:"cause"`
}

var _ telephony.Sink = (*Hub)(nil)

func (h *Hub) OnPreciseCallStateChanged(s telephony.PreciseCallState) {
	h.Broadcast(EventPreciseCallState, s.Phone, s)
}

func (h *Hub) OnNewRingingConnection(c telephony.ConnectionInfo) {
	h.Broadcast(EventNewRinging, c.Phone, c)
}

func (h *Hub) OnCallWaiting(c telephony.ConnectionInfo) {
	h.Broadcast(EventCallWaiting, c.Phone, c)
}

func (h *Hub) OnRingbackTone(phone string, playing bool) {
	h.Broadcast(EventRingback, phone, ringbackEvent{Playing: playing})
}

func (h *Hub) OnVoiceCallStarted(phone string) {
	h.Broadcast(EventVoiceCallStarted, phone, nil)
}

func (h *Hub) OnVoiceCallEnded(phone string) {
	h.Broadcast(EventVoiceCallEnded, phone, nil)
}

func (h *Hub) OnDisconnect(c telephony.ConnectionInfo, cause telephony.DisconnectCause) {
	h.Broadcast(EventDisconnect, c.Phone, disconnectEvent{Connection: c, Cause: cause})
}

func (h *Hub) OnPostDialWait(c telephony.ConnectionInfo) {
	h.Broadcast(EventPostDialWait, c.Phone, c)
}
