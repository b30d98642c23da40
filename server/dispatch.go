package server

import (
	"path"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/transform"

	"github.com/sushinet/sushid/irc"
	"github.com/sushinet/sushid/state"
)

// handleLine is ParserDispatch (spec.md §4.5): preflight a raw line,
// then dispatch by numeric or textual command. It always runs on the
// Server's task.
func (s *Server) handleLine(raw string) {
	line, ok := decodeLine(raw)
	if !ok {
		s.log.WithField("raw", raw).Debug("dropping non-UTF-8 line")
		return
	}

	if s.matchesIgnore(line) {
		return
	}

	if !strings.HasPrefix(line, ":") {
		// rfc1459: a line without a prefix is ignored (spec.md §4.5 step 3).
		return
	}

	prefixStr, command, remainder := splitPreflight(line)
	nick, user, host := splitPrefix(prefixStr)
	if nick != "" {
		s.registry.Upsert(nick, user, host)
	}

	m := &irc.Message{
		Source:  irc.Prefix{Nick: irc.Nickname(nick), User: user, Host: host},
		Command: irc.Command(command),
		Params:  splitParams(remainder),
	}

	if m.Command.IsNumeric() {
		s.dispatchNumeric(m)
		return
	}
	s.dispatchTextual(m)
}

// decodeLine implements spec.md §4.5 step 1: validate UTF-8, falling
// back to a single ISO-8859-1 → UTF-8 re-decode, dropping the line
// silently if both fail.
func decodeLine(raw string) (string, bool) {
	if utf8.ValidString(raw) {
		return raw, true
	}
	decoded, _, err := transform.String(charmap.ISO8859_1.NewDecoder(), raw)
	if err != nil || !utf8.ValidString(decoded) {
		return "", false
	}
	return decoded, true
}

// matchesIgnore implements spec.md §4.5 step 2: drop lines whose source
// prefix matches one of this server's configured glob-pattern ignores.
func (s *Server) matchesIgnore(line string) bool {
	if !strings.HasPrefix(line, ":") {
		return false
	}
	prefixStr, _, _ := splitPreflight(line)
	for _, pattern := range s.store.StringList("server", "ignores") {
		if matched, _ := path.Match(pattern, prefixStr); matched {
			return true
		}
	}
	return false
}

// splitPreflight splits a prefix-bearing line into prefix, command, and
// remainder on single spaces (spec.md §4.5 step 4, maxsplit 2).
func splitPreflight(line string) (prefix, command, remainder string) {
	line = strings.TrimPrefix(line, ":")
	parts := strings.SplitN(line, " ", 3)
	switch len(parts) {
	case 0:
		return "", "", ""
	case 1:
		return parts[0], "", ""
	case 2:
		return parts[0], parts[1], ""
	default:
		return parts[0], parts[1], parts[2]
	}
}

// splitPrefix parses "nick[!user[@host]]" per spec.md §4.5 step 4.
func splitPrefix(prefix string) (nick, user, host string) {
	nick = prefix
	if i := strings.IndexByte(nick, '!'); i >= 0 {
		nick, rest := prefix[:i], prefix[i+1:]
		if j := strings.IndexByte(rest, '@'); j >= 0 {
			return nick, rest[:j], rest[j+1:]
		}
		return nick, rest, ""
	}
	if i := strings.IndexByte(nick, '@'); i >= 0 {
		return nick[:i], "", nick[i+1:]
	}
	return nick, "", ""
}

// splitParams splits the remainder of a line into parameters, honoring
// the trailing ":"-argument.
func splitParams(remainder string) irc.Params {
	if remainder == "" {
		return nil
	}
	var params irc.Params
	for {
		if strings.HasPrefix(remainder, ":") {
			params = append(params, remainder[1:])
			break
		}
		i := strings.IndexByte(remainder, ' ')
		if i < 0 {
			params = append(params, remainder)
			break
		}
		params = append(params, remainder[:i])
		remainder = strings.TrimLeft(remainder[i+1:], " ")
		if remainder == "" {
			break
		}
	}
	return params
}

func (s *Server) dispatchNumeric(m *irc.Message) {
	switch m.Command {
	case irc.RplISupport:
		s.handleISupport(m)
	case irc.RplAway:
		s.emit("away_message", map[string]any{"nick": m.Params.Get(2), "message": m.Params.Get(3)})
	case irc.RplUnAway:
		s.mu.Lock()
		s.away = false
		s.mu.Unlock()
		s.emit("back", map[string]any{})
	case irc.RplNowAway:
		s.mu.Lock()
		s.away = true
		s.mu.Unlock()
		s.emit("away", map[string]any{})
	case irc.RplWhoIsUser, irc.RplWhoIsServer, irc.RplWhoIsOperator, irc.RplWhoIsIdle, irc.RplWhoIsChannels, irc.RplWhoWasUser:
		s.accumulateWhois(m)
	case irc.RplEndOfWhoIs:
		s.finishWhois(m.Params.Get(2))
	case irc.RplEndOfWho:
		s.finishWho(m.Params.Get(2))
	case irc.RplWhoReply:
		s.handleWhoReply(m)
	case irc.RplList:
		s.emit("list", map[string]any{"channel": m.Params.Get(2), "count": m.Params.Get(3), "topic": m.Params.Get(4)})
	case irc.RplListEnd:
		s.emit("list", map[string]any{"channel": "", "count": -1})
	case irc.RplChannelModeIs:
		s.handleChannelModeIs(m)
	case irc.RplTopic:
		s.setChannelTopic(m.Params.Get(2), m.Params.Get(3))
		s.emit("topic", map[string]any{"source": "", "channel": m.Params.Get(2), "topic": m.Params.Get(3)})
	case irc.RplInviting:
		s.emit("invite", map[string]any{"source": "", "nick": m.Params.Get(2), "channel": m.Params.Get(3)})
	case irc.RplNamReply:
		s.handleNamesReply(m)
	case irc.RplEndOfNames:
		s.handleEndOfNames(m.Params.Get(2))
	case irc.RplBanList:
		s.emit("banlist", map[string]any{"channel": m.Params.Get(2), "mask": m.Params.Get(3)})
	case irc.RplEndOfBanList:
		s.emit("banlist", map[string]any{"channel": m.Params.Get(2), "mask": ""})
	case irc.RplMOTD:
		s.emit("motd", map[string]any{"text": m.Params.Get(2)})
	case irc.RplEndOfMOTD, irc.RplErrNoMOTD:
		s.emit("motd", map[string]any{"text": ""})
		s.handlePostLogin()
	case irc.RplYoureOper:
		s.emit("oper", map[string]any{})
	case irc.RplErrNoSuchNick:
		s.emit("no_such", map[string]any{"target": m.Params.Get(2), "kind": "n"})
	case irc.RplErrNoSuchServer:
		s.emit("no_such", map[string]any{"target": m.Params.Get(2), "kind": "s"})
	case irc.RplErrNoSuchChannel:
		s.emit("no_such", map[string]any{"target": m.Params.Get(2), "kind": "c"})
	case irc.RplErrNicknameInUse:
		s.handleNicknameInUse(m)
	case irc.RplErrChannelIsFull:
		s.emit("cannot_join", map[string]any{"channel": m.Params.Get(2), "reason": "l"})
	case irc.RplErrInviteOnlyChan:
		s.emit("cannot_join", map[string]any{"channel": m.Params.Get(2), "reason": "i"})
	case irc.RplErrBannedFromChan:
		s.emit("cannot_join", map[string]any{"channel": m.Params.Get(2), "reason": "b"})
	case irc.RplErrBadChannelKey:
		s.emit("cannot_join", map[string]any{"channel": m.Params.Get(2), "reason": "k"})
	case irc.RplErrChanOPrivsNeeded:
		s.emit("error", map[string]any{"kind": "privilege", "detail": "channel_operator", "channel": m.Params.Get(2)})
	default:
		// 001-004 and every other numeric: informational, silently accepted.
	}
}

func (s *Server) handleISupport(m *irc.Message) {
	for _, tok := range m.Params[1:] {
		key, val, hasVal := strings.Cut(tok, "=")
		switch key {
		case "CHANMODES":
			s.mu.Lock()
			s.chanModes = val
			s.mu.Unlock()
		case "CHANTYPES":
			s.mu.Lock()
			s.chanTypes = val
			s.mu.Unlock()
		case "PREFIX":
			if !hasVal {
				continue
			}
			modes, chars, ok := parsePrefixToken(val)
			if !ok {
				continue
			}
			s.mu.Lock()
			s.prefixModes = modes
			s.prefixChars = chars
			s.mu.Unlock()
		}
	}
}

// parsePrefixToken parses "(modes)prefixes" from ISUPPORT's PREFIX
// token (spec.md §4.5, P7).
func parsePrefixToken(val string) (modes, prefixes string, ok bool) {
	if len(val) == 0 || val[0] != '(' {
		return "", "", false
	}
	i := strings.IndexByte(val, ')')
	if i < 0 {
		return "", "", false
	}
	return val[1:i], val[i+1:], true
}

func (s *Server) dispatchTextual(m *irc.Message) {
	switch m.Command {
	case irc.CmdPrivmsg:
		s.handlePrivmsgOrNotice(m, false)
	case irc.CmdNotice:
		s.handlePrivmsgOrNotice(m, true)
	case irc.CmdJoin:
		s.handleJoin(m)
	case irc.CmdPart:
		s.handlePart(m)
	case irc.CmdKick:
		s.handleKick(m)
	case irc.CmdQuit:
		s.handleQuit(m)
	case irc.CmdNick:
		s.handleNick(m)
	case irc.CmdMode:
		s.handleMode(m)
	case irc.CmdInvite:
		s.emit("invite", map[string]any{"source": m.Source.String(), "who": m.Params.Get(1), "channel": m.Params.Get(2)})
	case irc.CmdTopic:
		s.setChannelTopic(m.Params.Get(1), m.Params.Get(2))
		s.emit("topic", map[string]any{"source": m.Source.String(), "channel": m.Params.Get(1), "topic": m.Params.Get(2)})
	}
}

func (s *Server) isSelf(nick string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return state.FoldNick(nick) == state.FoldNick(s.selfNick)
}

// channel looks up a channel by name. s.channels is read and written
// from many places (the server task and foreign-caller getters alike),
// so every access goes through s.mu even though mutation itself only
// ever happens on the task — the map is not otherwise safe for the
// concurrent getters in server.go/send.go to read.
func (s *Server) channel(name string) (*state.Channel, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch, ok := s.channels[state.FoldNick(name)]
	return ch, ok
}

func (s *Server) putChannel(name string, ch *state.Channel) {
	s.mu.Lock()
	s.channels[state.FoldNick(name)] = ch
	s.mu.Unlock()
}

func (s *Server) deleteChannel(name string) {
	s.mu.Lock()
	delete(s.channels, state.FoldNick(name))
	s.mu.Unlock()
}

func (s *Server) eachChannel(fn func(*state.Channel)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ch := range s.channels {
		fn(ch)
	}
}

func (s *Server) setChannelTopic(name, topic string) {
	if ch, ok := s.channel(name); ok {
		ch.Topic = topic
	}
}

func (s *Server) handleJoin(m *irc.Message) {
	channel := m.Params.Get(1)
	nick := m.Source.Nick.String()

	if s.isSelf(nick) {
		ch, ok := s.channel(channel)
		if !ok {
			ch = state.NewChannel(channel, s.registry)
			s.putChannel(channel, ch)
		}
		ch.Joined = true
		ch.AddUser(nick)
		_ = s.chatlog.Write(channel, "» You join.")
	} else if ch, ok := s.channel(channel); ok {
		ch.AddUser(nick)
	}

	s.emit("join", map[string]any{"source": m.Source.String(), "channel": channel})
}

func (s *Server) handlePart(m *irc.Message) {
	channel := m.Params.Get(1)
	reason := m.Params.Get(2)
	nick := m.Source.Nick.String()

	if ch, ok := s.channel(channel); ok {
		if s.isSelf(nick) {
			ch.Joined = false
			params := s.store.Channels()
			keepChannel := false
			for _, p := range params {
				if state.FoldNick(p.Name) == state.FoldNick(channel) && (p.Autojoin || p.Key != "") {
					keepChannel = true
					break
				}
			}
			ch.RemoveUser(nick)
			if !keepChannel {
				s.deleteChannel(channel)
			}
		} else {
			ch.RemoveUser(nick)
		}
	}

	s.emit("part", map[string]any{"source": m.Source.String(), "channel": channel, "message": reason})
}

func (s *Server) handleKick(m *irc.Message) {
	channel := m.Params.Get(1)
	who := m.Params.Get(2)
	reason := m.Params.Get(3)

	if ch, ok := s.channel(channel); ok {
		if s.isSelf(who) {
			ch.Joined = false
			params := s.store.Channels()
			keepChannel := false
			for _, p := range params {
				if state.FoldNick(p.Name) == state.FoldNick(channel) && (p.Autojoin || p.Key != "") {
					keepChannel = true
					break
				}
			}
			ch.RemoveUser(who)
			if !keepChannel {
				s.deleteChannel(channel)
			}
		} else {
			ch.RemoveUser(who)
		}
	}

	s.emit("kick", map[string]any{"source": m.Source.String(), "channel": channel, "who": who, "message": reason})
}

func (s *Server) handleQuit(m *irc.Message) {
	nick := m.Source.Nick.String()
	s.eachChannel(func(ch *state.Channel) {
		if _, ok := ch.GetUser(nick); ok {
			ch.RemoveUser(nick)
		}
	})
	s.emit("quit", map[string]any{"source": m.Source.String(), "message": m.Params.Get(1)})
}

func (s *Server) handleNick(m *irc.Message) {
	oldNick := m.Source.Nick.String()
	newNick := m.Params.Get(1)

	s.eachChannel(func(ch *state.Channel) {
		ch.RenameUser(oldNick, newNick)
	})
	s.registry.Rename(oldNick, newNick)

	wasSelf := s.isSelf(oldNick)
	if wasSelf {
		s.mu.Lock()
		s.selfNick = newNick
		s.mu.Unlock()
		if state.FoldNick(newNick) == state.FoldNick(s.configuredNick) {
			s.runNickServIdentify()
		}
	}

	s.emit("nick", map[string]any{"old": oldNick, "new": newNick})
}

func (s *Server) handleNicknameInUse(m *irc.Message) {
	s.mu.Lock()
	loggedIn := s.loggedIn
	s.mu.Unlock()

	if loggedIn {
		s.emit("nick", map[string]any{"old": "", "new": ""})
		return
	}

	oldNick := m.Params.Get(2)
	newNick := oldNick + "_"

	s.mu.Lock()
	s.selfNick = newNick
	s.mu.Unlock()

	s.emit("nick", map[string]any{"old": oldNick, "new": newNick})
	_, _ = s.conn.Send(mustMarshal(irc.Nick(newNick)))
}

// handlePrivmsgOrNotice implements spec.md §4.5's PRIVMSG/NOTICE rules,
// including CTCP unwrapping via irc.SplitCTCP.
func (s *Server) handlePrivmsgOrNotice(m *irc.Message, isNotice bool) {
	target := m.Params.Get(1)
	body := m.Params.Get(2)
	source := m.Source.String()
	nick := m.Source.Nick.String()

	logTarget := target
	if !strings.HasPrefix(target, "#") && !strings.HasPrefix(target, "&") {
		logTarget = nick
	}

	if cmd, text, ok := irc.SplitCTCP(body); ok {
		s.handleCTCP(isNotice, source, nick, target, logTarget, cmd, text)
		return
	}

	event := "message"
	if isNotice {
		event = "notice"
	}
	_ = s.chatlog.Write(logTarget, nick+" "+body)
	s.emit(event, map[string]any{"source": source, "target": target, "text": body})
}

func (s *Server) handleCTCP(isNotice bool, source, nick, target, logTarget, cmd, text string) {
	if isNotice {
		s.emit("ctcp", map[string]any{"source": source, "target": target, "text": cmd + " " + text})
		return
	}

	switch cmd {
	case irc.CTCPAction:
		_ = s.chatlog.Write(logTarget, nick+" "+text)
		s.emit("action", map[string]any{"source": source, "target": target, "text": text})
		return
	case irc.CTCPVersion:
		if s.isSelf(target) {
			_, _ = s.conn.Send(mustMarshal(irc.CTCPReply(nick, "VERSION", "sushid 1.0")))
		}
	case irc.CTCPPing:
		if s.isSelf(target) {
			_, _ = s.conn.Send(mustMarshal(irc.CTCPReply(nick, "PING", text)))
		}
	case "DCC":
		s.forwardDCC(nick, text)
	}
	s.emit("ctcp", map[string]any{"source": source, "target": target, "text": cmd})
}

// forwardDCC forwards a DCC SEND/RESUME/ACCEPT sub-command to the
// transfer manager. The transfer manager itself lives in the instance
// package (spec.md §1: DCC is "substantial but independent"); this
// Server only parses the verb and forwards it via DCCSink.
func (s *Server) forwardDCC(nick, text string) {
	verb, rest, _ := strings.Cut(text, " ")
	switch verb {
	case "SEND", "RESUME", "ACCEPT":
		if s.dccSink != nil {
			s.dccSink.HandleDCC(s.Name, nick, verb, rest)
		}
	}
}
