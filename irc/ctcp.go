package irc

import "strings"

const ctcpDelim = "\x01"

// SplitCTCP reports whether body is CTCP-framed (delimited by \x01 on both
// ends) and, if so, returns the CTCP command and its argument separately.
// A body of "\x01ACTION slaps Bob\x01" returns ("ACTION", "slaps Bob", true).
func SplitCTCP(body string) (command, text string, ok bool) {
	if len(body) < 2 || !strings.HasPrefix(body, ctcpDelim) || !strings.HasSuffix(body, ctcpDelim) {
		return "", "", false
	}
	inner := body[1 : len(body)-1]
	command, text, _ = strings.Cut(inner, " ")
	return strings.ToUpper(command), text, true
}
