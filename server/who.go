package server

import (
	"strings"
	"time"

	"github.com/sushinet/sushid/irc"
	"github.com/sushinet/sushid/state"
)

// startWhoTicker begins the periodic WHO described in spec.md §4.4.5.
// Called once after post-login setup.
func (s *Server) startWhoTicker() {
	if s.whoTicker != nil {
		s.whoTicker.Stop()
	}
	s.whoTicker = time.NewTicker(60 * time.Second)
	ticker := s.whoTicker
	go func() {
		for range ticker.C {
			s.enqueue(s.sendPeriodicWho)
		}
	}()
}

// sendPeriodicWho sends "WHO <channel>" for every joined channel with
// at most 100 users, per spec.md §4.4.5.
func (s *Server) sendPeriodicWho() {
	s.eachChannel(func(ch *state.Channel) {
		if !ch.Joined || ch.UserCount() > 100 {
			return
		}
		_, _ = s.conn.Send(mustMarshal(irc.NewMessage(irc.CmdWho, ch.Name)))
	})
}

// handleWhoReply implements RPL_WHOREPLY (352): update the away flag
// from the H/G status character and emit user_away on change.
func (s *Server) handleWhoReply(m *irc.Message) {
	nick := m.Params.Get(6)
	flags := m.Params.Get(7)
	away := strings.HasPrefix(flags, "G")

	s.registry.Upsert(nick, m.Params.Get(3), m.Params.Get(4))
	if s.registry.SetAway(nick, away, "") {
		s.emit("user_away", map[string]any{"nick": nick, "away": away})
	}
}

// finishWho implements RPL_ENDOFWHO (315): no further state change,
// it only marks the end of one WHO burst.
func (s *Server) finishWho(channel string) {
	_ = channel
}

// accumulateWhois implements the WHOIS-reply numerics (311-319,
// excluding 318) by emitting one whois event per line with a
// human-readable fragment of that reply (spec.md §4.5).
func (s *Server) accumulateWhois(m *irc.Message) {
	nick := m.Params.Get(2)
	var text string
	switch m.Command {
	case irc.RplWhoIsUser:
		text = m.Params.Get(3) + "@" + m.Params.Get(4) + " (" + m.Params.Get(6) + ")"
	case irc.RplWhoIsServer:
		text = "using " + m.Params.Get(3) + " (" + m.Params.Get(4) + ")"
	case irc.RplWhoIsOperator:
		text = "is an IRC operator"
	case irc.RplWhoIsIdle:
		text = m.Params.Get(3) + " seconds idle"
	case irc.RplWhoIsChannels:
		text = m.Params.Get(3)
	case irc.RplWhoWasUser:
		text = m.Params.Get(3) + "@" + m.Params.Get(4) + " (" + m.Params.Get(6) + ")"
	}
	s.emit("whois", map[string]any{"nick": nick, "text": text})
}

// finishWhois implements RPL_ENDOFWHOIS (318): emit the terminal
// whois event with an empty text field.
func (s *Server) finishWhois(nick string) {
	s.emit("whois", map[string]any{"nick": nick, "text": ""})
}
