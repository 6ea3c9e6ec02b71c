package database

import (
	"time"

	"callcore/internal/telephony"
)

// CallLog is one finished connection.
type CallLog struct {
	ID             int64      `db:"id" json:"id"`
	Phone          string     `db:"phone" json:"phone"`
	TelecomCallID  string     `db:"telecom_call_id" json:"telecom_call_id"`
	Address        string     `db:"address" json:"address"`
	Direction      string     `db:"direction" json:"direction"` // MO or MT
	Cause          string     `db:"cause" json:"cause"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
	ConnectedAt    *time.Time `db:"connected_at" json:"connected_at,omitempty"`
	DisconnectedAt time.Time  `db:"disconnected_at" json:"disconnected_at"`
	DurationSec    int        `db:"duration_sec" json:"duration_sec"`
	HoldSec        int        `db:"hold_sec" json:"hold_sec"`
	Multiparty     bool       `db:"multiparty" json:"multiparty"`
}

// HistoryFilter narrows ListCallLogs. Zero fields do not filter.
type HistoryFilter struct {
	Phone string
	From  time.Time
	To    time.Time
	Limit int
}

// CallLogFromConnection builds the log row of a disconnected connection.
// Duration counts from connect to disconnect and is zero for calls that
// never connected.
func CallLogFromConnection(c telephony.ConnectionInfo, cause telephony.DisconnectCause) CallLog {
	end := time.Now()
	if c.DisconnectTime != nil {
		end = *c.DisconnectTime
	}
	log := CallLog{
		Phone:          c.Phone,
		TelecomCallID:  c.TelecomCallID,
		Address:        c.Address,
		Direction:      "MO",
		Cause:          cause.String(),
		CreatedAt:      c.CreateTime,
		DisconnectedAt: end,
		HoldSec:        int(c.HoldDuration / time.Second),
		Multiparty:     c.Multiparty,
	}
	if c.Incoming {
		log.Direction = "MT"
	}
	if !c.ConnectTime.IsZero() {
		connected := c.ConnectTime
		log.ConnectedAt = &connected
		log.DurationSec = int(end.Sub(connected) / time.Second)
	}
	return log
}
