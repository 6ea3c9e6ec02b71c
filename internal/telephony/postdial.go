package telephony

import "fmt"

// PostDialState is the state of a connection's post-dial playback.
type PostDialState int

const (
	PostDialNotStarted PostDialState = iota
	PostDialStarted
	PostDialWait
	PostDialWild
	PostDialPause
	PostDialComplete
	PostDialCancelled
)

var postDialNames = [...]string{
	PostDialNotStarted: "NOT_STARTED",
	PostDialStarted:    "STARTED",
	PostDialWait:       "WAIT",
	PostDialWild:       "WILD",
	PostDialPause:      "PAUSE",
	PostDialComplete:   "COMPLETE",
	PostDialCancelled:  "CANCELLED",
}

func (s PostDialState) String() string {
	if s >= 0 && int(s) < len(postDialNames) {
		return postDialNames[s]
	}
	return fmt.Sprintf("PostDialState(%d)", int(s))
}

// StepKind is what the post-dial cursor asks its driver to do next.
type StepKind int

const (
	StepDone StepKind = iota
	StepDigit
	StepPause
	StepWait
	StepWild
)

// PostDial is the cursor over the post-dial portion of a dial string.
type PostDial struct {
	str   string
	next  int
	state PostDialState
}

// NewPostDial returns a cursor positioned at the start of str.
func NewPostDial(str string) PostDial {
	return PostDial{str: str}
}

// State returns the cursor's sub-state.
func (p *PostDial) State() PostDialState { return p.state }

// Remaining returns the part of the string not consumed yet.
func (p *PostDial) Remaining() string {
	if p.state == PostDialComplete || p.state == PostDialCancelled || p.next >= len(p.str) {
		return ""
	}
	return p.str[p.next:]
}

// Next consumes one character and reports what the driver must do with it.
// After StepDone the state is COMPLETE, unless it was CANCELLED.
func (p *PostDial) Next() (StepKind, byte) {
	if p.state == PostDialCancelled || p.state == PostDialComplete {
		return StepDone, 0
	}
	if p.next >= len(p.str) {
		p.state = PostDialComplete
		return StepDone, 0
	}
	c := p.str[p.next]
	p.next++
	switch c {
	case Pause:
		p.state = PostDialPause
		return StepPause, c
	case Wait:
		p.state = PostDialWait
		return StepWait, c
	case Wild:
		p.state = PostDialWild
		return StepWild, c
	}
	p.state = PostDialStarted
	return StepDigit, c
}

// Cancel abandons the rest of the string.
func (p *PostDial) Cancel() {
	p.state = PostDialCancelled
}

// ReplaceWild inserts digits at the cursor in place of the WILD character
// just consumed.
func (p *PostDial) ReplaceWild(digits string) {
	p.str = p.str[:p.next] + digits + p.str[p.next:]
}
