package server

import (
	"strings"

	"github.com/sushinet/sushid/irc"
)

// chanmodeGroup is the CHANMODES classification from spec.md §4.5's
// "MODE parameter rule": A/B always take a parameter, C only on +, D
// never does.
type chanmodeGroup int

const (
	groupAlwaysParam chanmodeGroup = iota // A: lists (ban, except, ...)
	groupAlwaysParam2                     // B: always takes a parameter
	groupOnSetOnly                        // C: parameter only when setting (+)
	groupNever                            // D: never takes a parameter
	groupUnknown
)

// classify returns which CHANMODES group letter belongs to, by
// counting commas in the four-group CHANMODES string, per spec.md
// §4.5.
func classify(chanModes string, letter byte) chanmodeGroup {
	groups := strings.SplitN(chanModes, ",", 4)
	for i, g := range groups {
		if strings.IndexByte(g, letter) >= 0 {
			switch i {
			case 0:
				return groupAlwaysParam
			case 1:
				return groupAlwaysParam2
			case 2:
				return groupOnSetOnly
			case 3:
				return groupNever
			}
		}
	}
	return groupUnknown
}

// handleMode implements spec.md §4.5's MODE textual command.
func (s *Server) handleMode(m *irc.Message) {
	target := m.Params.Get(1)
	modestring := m.Params.Get(2)
	args := []string(m.Params)
	argIdx := 2 // next mode-argument index into args (0-based), args[2] is the first one after target/modestring

	s.mu.Lock()
	chanModes := s.chanModes
	prefixModes := s.prefixModes
	s.mu.Unlock()

	ch, isChannel := s.channel(target)

	sign := byte('+')
	for i := 0; i < len(modestring); i++ {
		c := modestring[i]
		if c == '+' || c == '-' {
			sign = c
			continue
		}

		var param string
		consumesParam := false

		if isChannel {
			if pos := strings.IndexByte(prefixModes, c); pos >= 0 {
				consumesParam = true
				if argIdx < len(args) {
					param = args[argIdx]
					argIdx++
				}
				ch.SetPrefixBit(param, uint(pos), sign == '+')
			} else {
				switch classify(chanModes, c) {
				case groupAlwaysParam, groupAlwaysParam2:
					consumesParam = true
				case groupOnSetOnly:
					consumesParam = sign == '+'
				case groupNever, groupUnknown:
					consumesParam = false
				}
				if consumesParam && argIdx < len(args) {
					param = args[argIdx]
					argIdx++
				}
			}
		}

		s.emit("mode", map[string]any{
			"source":  m.Source.String(),
			"target":  target,
			"sign":    string(sign),
			"mode":    string(c),
			"param":   param,
		})
	}
}

// handleChannelModeIs treats numeric 324 (RPL_CHANNELMODEIS) as a
// synthetic MODE message, per spec.md §4.5 ("324 | channel mode is |
// treat as numeric MODE").
func (s *Server) handleChannelModeIs(m *irc.Message) {
	channel := m.Params.Get(2)
	modestring := m.Params.Get(3)

	params := irc.Params{channel, modestring}
	if len(m.Params) > 3 {
		params = append(params, m.Params[3:]...)
	}
	synthetic := &irc.Message{Command: irc.CmdMode, Params: params}
	s.handleMode(synthetic)
}
