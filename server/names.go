package server

import (
	"strings"

	"github.com/bits-and-blooms/bitset"

	"github.com/sushinet/sushid/irc"
	"github.com/sushinet/sushid/state"
)

// Nicks from one or more RPL_NAMREPLY lines are accumulated in the
// Server's namesBuf field (server.go), keyed by folded channel name, so
// the final "names" event lists them in server-supplied order (spec.md
// §4.5's RPL_NAMREPLY/RPL_ENDOFNAMES handling).

// handleNamesReply accumulates one RPL_NAMREPLY (353) line.
func (s *Server) handleNamesReply(m *irc.Message) {
	channel := m.Params.Get(3)
	nickList := m.Params.Get(4)
	if nickList == "" {
		return
	}

	ch, ok := s.channel(channel)
	if !ok {
		ch = state.NewChannel(channel, s.registry)
		s.putChannel(channel, ch)
	}

	s.mu.Lock()
	prefixChars := s.prefixChars
	s.mu.Unlock()

	key := state.FoldNick(channel)
	if s.namesBuf == nil {
		s.namesBuf = make(map[string][]string)
	}

	for _, tok := range strings.Fields(nickList) {
		nick, mask := stripPrefixChars(tok, prefixChars)
		ch.AddUser(nick)
		ch.SetPrefixMask(nick, mask)
		s.namesBuf[key] = append(s.namesBuf[key], nick)
	}
}

// stripPrefixChars removes every leading character of tok that appears
// in prefixChars, returning the bare nick and a bitset with bit i set
// for every stripped prefixChars[i].
func stripPrefixChars(tok, prefixChars string) (nick string, mask *bitset.BitSet) {
	mask = bitset.New(uint(len(prefixChars)) + 1)
	i := 0
	for i < len(tok) {
		pos := strings.IndexByte(prefixChars, tok[i])
		if pos < 0 {
			break
		}
		mask.Set(uint(pos))
		i++
	}
	return tok[i:], mask
}

// handleEndOfNames implements RPL_ENDOFNAMES (366): emit a single
// names() event listing every nick accumulated since the matching
// RPL_NAMREPLY burst, along with each nick's highest (lowest-index)
// prefix character.
func (s *Server) handleEndOfNames(channel string) {
	key := state.FoldNick(channel)
	nicks := s.namesBuf[key]
	delete(s.namesBuf, key)

	ch, ok := s.channel(channel)
	if !ok {
		s.emit("names", map[string]any{"channel": channel, "nicks": nicks, "prefixes": []string{}})
		return
	}

	prefixes := make([]string, len(nicks))
	for i, nick := range nicks {
		prefixes[i] = s.prefixCharFor(ch, nick)
	}
	s.emit("names", map[string]any{"channel": channel, "nicks": nicks, "prefixes": prefixes})
}
