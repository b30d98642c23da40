package irc

import (
	"fmt"
	"strings"
	"testing"
)

func newMessage(prefix struct{ nick, user, host string }, command Command, params []string) *Message {
	p := make(Params, 0, len(params))
	p = append(p, params...)
	return &Message{
		Source: Prefix{
			Nickname(prefix.nick),
			prefix.user,
			prefix.host},
		Command: command,
		Params:  p,
	}
}

func assertMessageEquals(t *testing.T, expected *Message, got *Message) {
	assertPrefixEqual(t, expected.Source, got.Source)
	assertCommandEquals(t, expected.Command, got.Command)
	assertParamsEqual(t, expected.Params, got.Params)
}
func assertPrefixEqual(t *testing.T, expected Prefix, got Prefix) {
	if expected.Nick != got.Nick || expected.User != got.User || expected.Host != got.Host {
		t.Errorf("prefix didn't match; got %q wanted %q", got, expected)
	}
}
func assertCommandEquals(t *testing.T, expected Command, got Command) {
	if !got.Is(expected) {
		t.Errorf("command didn't match; got %q wanted %q", got, expected)
	}
}
func assertParamsEqual(t *testing.T, expected Params, got Params) {
	if len(got) != len(expected) {
		t.Errorf("actual slice(%#v)(%d) was not the same length as expected slice(%#v)(%d)", got, len(got), expected, len(expected))
	}

	for i, v := range got {
		if v != expected[i] {
			t.Errorf("actual slice value \"%s\" was not equal to expected value \"%s\" at index \"%d\"", v, expected[i], i)
		}
	}
}
func fromBytes(b []byte) (*Message, error) {
	m := &Message{}
	err := m.UnmarshalText(b)
	return m, err
}

func TestParseMessage(t *testing.T) {
	var prefixes = []struct {
		raw      string
		expected struct {
			nick string
			user string
			host string
		}
	}{
		{"", struct{ nick, user, host string }{"", "", ""}},
		{":Bob ", struct{ nick, user, host string }{"Bob", "", ""}},
		{":Bob  ", struct{ nick, user, host string }{"Bob", "", ""}},
		{":Bob\\Loblaw ", struct{ nick, user, host string }{"Bob\\Loblaw", "", ""}},
		{":Bob\\Loblaw!@law.blog ", struct{ nick, user, host string }{"Bob\\Loblaw", "", "law.blog"}},
		{":Bob\\Loblaw!@law/blog ", struct{ nick, user, host string }{"Bob\\Loblaw", "", "law/blog"}},
		{":Bob!BLoblaw@bob.loblaw.law.blog ", struct{ nick, user, host string }{"Bob", "BLoblaw", "bob.loblaw.law.blog"}},
		{":irc.bob.loblaw.no.habla.es ", struct{ nick, user, host string }{"", "", "irc.bob.loblaw.no.habla.es"}},
	}

	var commands = []struct {
		raw      string
		expected Command
	}{
		{"001", RplWelcome},
		{"PRIVMSG", CmdPrivmsg},
		{"Privmsg", CmdPrivmsg},
		{"privmsg", CmdPrivmsg},
		{"privmsg", Command("PRIVMSG")},
		{"PRIVMSG", Command("privmsg")},
	}

	var params = []struct {
		raw      string
		expected []string
	}{
		{"", []string{}},
		{" ", []string{""}},
		{" :", []string{""}},
		{" ::", []string{":"}},
		{" ::p1", []string{":p1"}},
		{" :p1", []string{"p1"}},
		{" p1", []string{"p1"}},
		{" p1 p2", []string{"p1", "p2"}},
		{"  p1 p2", []string{"p1", "p2"}},
		{" p1  p2", []string{"p1", "p2"}},
		{" p1  p2 :", []string{"p1", "p2", ""}},
		{" p1  p2 : ", []string{"p1", "p2", " "}},
		{" p1  p2 : :", []string{"p1", "p2", " :"}},
		{" p1  p2 : : ", []string{"p1", "p2", " : "}},
		{" p1  p2 :p3 :p3 ", []string{"p1", "p2", "p3 :p3 "}},
		{" p1  p2 :p3  :p3 ", []string{"p1", "p2", "p3  :p3 "}},
		{" p1 p2 p3 p4 p5 p6 p7 p8 p9 p10 p11 p12 p13 p14 p15 :p16", []string{"p1", "p2", "p3", "p4", "p5", "p6", "p7", "p8", "p9", "p10", "p11", "p12", "p13", "p14", "p15", "p16"}},
		{" :" + strings.Repeat("a", 513), []string{strings.Repeat("a", 513)}}, // don't blow up for lines exceeding protocol-defined length
	}

	for _, p := range prefixes {
		for _, c := range commands {
			for _, pa := range params {
				raw := fmt.Sprintf("%s%s%s", p.raw, c.raw, pa.raw)
				m, err := fromBytes([]byte(raw))
				if err != nil {
					t.Errorf("expected no error; got %v: %q", err, raw)
					continue
				}
				assertMessageEquals(t, newMessage(p.expected, c.expected, pa.expected), m)
			}
		}
	}
}

func TestParseErrors(t *testing.T) {
	var parseErrors = []string{
		":",
		":.",
		":. ",
		":! ",
		":!@ ",
		": ",
		" ",
	}
	for _, raw := range parseErrors {
		m, err := fromBytes([]byte(raw))
		if err == nil {
			t.Errorf("expected parse error; got err == nil. raw line: %q, parsed: %#v", raw, m)
		}
	}
}

func TestCommandIsNumeric(t *testing.T) {
	cases := []struct {
		cmd  Command
		want bool
	}{
		{RplWelcome, true},
		{"001", true},
		{"999", true},
		{CmdPrivmsg, false},
		{"", false},
		{"12", false},
		{"12a", false},
		{"1234", false},
	}
	for _, c := range cases {
		if got := c.cmd.IsNumeric(); got != c.want {
			t.Errorf("Command(%q).IsNumeric() = %v, want %v", c.cmd, got, c.want)
		}
	}
}

func TestMarshalText(t *testing.T) {
	m := NewMessage(CmdPrivmsg, "#foo", "hello world")
	b, err := m.MarshalText()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := "PRIVMSG #foo :hello world\r\n"
	if string(b) != want {
		t.Errorf("MarshalText() = %q, want %q", b, want)
	}
}

func TestMarshalTextWithPrefix(t *testing.T) {
	m := NewMessage(CmdNick, "newnick")
	m.Source = Prefix{Nick: "oldnick"}
	m.IncludePrefix()
	b, err := m.MarshalText()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := ":oldnick NICK :newnick\r\n"
	if string(b) != want {
		t.Errorf("MarshalText() = %q, want %q", b, want)
	}
}
