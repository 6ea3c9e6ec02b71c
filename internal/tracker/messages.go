package tracker

import "callcore/internal/telephony"

// message is anything processed by the tracker's worker.
type message interface{}

// command runs a caller-facing operation on the worker and replies.
type command struct {
	op    string
	run   func() (any, error)
	reply chan result
}

type result struct {
	v   any
	err error
}

// opDone is the completion of a radio request that gates polling.
type opDone struct {
	op  string
	err error
}

// pollResult carries a call-list snapshot. seq identifies the poll request.
type pollResult struct {
	seq   uint64
	calls []telephony.DriverCall
	err   error
}

// failCause carries the answer to a last-call-fail-cause query.
type failCause struct {
	code int
	err  error
}

type callStateChanged struct{}

type radioStateChanged struct {
	on bool
}

// postDialNext resumes post-dial playback after a tone or a pause.
type postDialNext struct {
	id telephony.ConnID
}

// barrier replies once every message queued before it, and everything
// those messages queued in turn, has been processed.
type barrier struct {
	reply chan struct{}
}
