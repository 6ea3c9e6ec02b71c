package telephony

import "strings"

// Control characters that may appear in a dial string.
const (
	Pause = ','
	Wait  = ';'
	Wild  = 'N'
)

// CLIR supplementary-service prefixes.
const (
	clirSuppressPrefix = "*31#"
	clirInvokePrefix   = "#31#"
)

// DialString is a dial string split into what the network receives and
// what is played as DTMF after the call connects.
type DialString struct {
	Network  string
	PostDial string
	CLIR     CLIRMode
}

// ParseDialString splits s into its network and post-dial portions. A CLIR
// prefix followed by a number overrides clir. Formatting characters such as
// spaces, dashes, dots and parentheses are dropped.
func ParseDialString(s string, clir CLIRMode) DialString {
	d := DialString{CLIR: clir}
	switch {
	case strings.HasPrefix(s, clirSuppressPrefix) && len(s) > len(clirSuppressPrefix):
		d.CLIR = CLIRSuppression
		s = s[len(clirSuppressPrefix):]
	case strings.HasPrefix(s, clirInvokePrefix) && len(s) > len(clirInvokePrefix):
		d.CLIR = CLIRInvocation
		s = s[len(clirInvokePrefix):]
	}

	var network strings.Builder
	split := len(s)
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c == Pause || c == Wait {
			split = i
			break
		}
		switch {
		case c == '+':
			if network.Len() == 0 {
				network.WriteByte(c)
			}
		case isNetworkChar(c):
			network.WriteByte(c)
		}
	}
	d.Network = network.String()

	var post strings.Builder
	for i := split; i < len(s); i++ {
		c := s[i]
		if c == Pause || c == Wait || isNetworkChar(c) {
			post.WriteByte(c)
		}
	}
	d.PostDial = NormalizePostDial(post.String())
	return d
}

// NormalizePostDial collapses every run of PAUSE/WAIT separators that
// contains a WAIT into a single WAIT. Runs of PAUSE alone are kept, and
// separators at the end of the string are dropped.
func NormalizePostDial(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); {
		c := s[i]
		if c != Pause && c != Wait {
			b.WriteByte(c)
			i++
			continue
		}
		j := i
		sawWait := false
		for j < len(s) && (s[j] == Pause || s[j] == Wait) {
			if s[j] == Wait {
				sawWait = true
			}
			j++
		}
		if j == len(s) {
			break
		}
		if sawWait {
			b.WriteByte(Wait)
		} else {
			b.WriteString(s[i:j])
		}
		i = j
	}
	return b.String()
}

func isNetworkChar(c byte) bool {
	return (c >= '0' && c <= '9') || c == '*' || c == '#' || c == Wild
}

// IsDTMF reports whether c can be sent as an in-call DTMF tone.
func IsDTMF(c byte) bool {
	switch {
	case c >= '0' && c <= '9', c == '*', c == '#':
		return true
	case c >= 'A' && c <= 'D', c >= 'a' && c <= 'd':
		return true
	}
	return false
}

// NormalizeDTMF upper-cases the A-D tones.
func NormalizeDTMF(c byte) byte {
	if c >= 'a' && c <= 'd' {
		return c - 'a' + 'A'
	}
	return c
}

// EqualsBaseNumber compares two addresses ignoring formatting and post-dial
// portions.
func EqualsBaseNumber(a, b string) bool {
	return ParseDialString(a, CLIRDefault).Network == ParseDialString(b, CLIRDefault).Network
}
