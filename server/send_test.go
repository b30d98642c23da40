package server

import (
	"context"
	"io"
	"path/filepath"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/sirupsen/logrus"

	"github.com/sushinet/sushid/chatlog"
	"github.com/sushinet/sushid/config"
	"github.com/sushinet/sushid/internal/ircnet"
	"github.com/sushinet/sushid/transport"
)

// P4: splitUTF8 only cuts at rune boundaries and reproduces the input
// when pieces are concatenated.
func TestSplitUTF8RespectsRuneBoundaries(t *testing.T) {
	text := strings.Repeat("héllo wörld ", 40) + "日本語のテスト"
	for _, budget := range []int{1, 2, 3, 5, 10, 17, 64} {
		pieces := splitUTF8(text, budget)
		var joined strings.Builder
		for _, p := range pieces {
			if !utf8.ValidString(p) {
				t.Fatalf("budget=%d: piece %q is not valid UTF-8", budget, p)
			}
			if r, width := utf8.DecodeRuneInString(p); len(p) > budget && width != len(p) {
				// A piece may exceed budget only when it is exactly one
				// rune whose own encoding is wider than budget.
				t.Fatalf("budget=%d: piece %q (%d bytes, first rune %q) exceeds budget", budget, p, len(p), r)
			}
			joined.WriteString(p)
		}
		if joined.String() != text {
			t.Fatalf("budget=%d: pieces do not reconstruct the original text", budget)
		}
	}
}

func TestLineBudgetMatchesWireLimit(t *testing.T) {
	s, _ := newTestServer(t, "alice")
	budget := s.lineBudget("PRIVMSG", "#channel")

	piece := strings.Repeat("x", budget)
	wire := ":alice!09chars@63chars PRIVMSG #channel :" + piece + "\r\n"
	if len(wire) > 512 {
		t.Errorf("worst-case framed line is %d bytes, want <= 512", len(wire))
	}
}

// Scenario 6 (spec.md §8): message() with embedded newlines splits
// into two PRIVMSGs, the second queued.
func TestMessageSplitsOnEmbeddedNewlines(t *testing.T) {
	s, sink := newTestServer(t, "alice")

	mock := ircnet.NewServer()
	defer mock.Close()
	s.conn = &transport.Conn{
		DialFn: func(ctx context.Context) (io.ReadWriteCloser, error) { return mock, nil },
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)

	if err := s.conn.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}

	s.Message("#c", "A\nB\n")

	var got []string
	for i := 0; i < 2; i++ {
		select {
		case line := <-mock.Lines():
			got = append(got, line)
		case <-time.After(3 * time.Second):
			t.Fatalf("timed out waiting for outbound line %d", i)
		}
	}
	want := []string{"PRIVMSG #c :A", "PRIVMSG #c :B"}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("line %d = %q, want %q", i, got[i], want[i])
		}
	}

	events := sink.named("message")
	if len(events) != 2 {
		t.Fatalf("expected 2 message events, got %d", len(events))
	}
}

func newTestServerWithLogStore(t *testing.T) (*Server, *chatlog.Store) {
	t.Helper()
	dir := t.TempDir()
	store, err := config.LoadServerStore(filepath.Join(dir, "srv"))
	if err != nil {
		t.Fatalf("LoadServerStore: %v", err)
	}
	logStore := chatlog.NewStore(dir, "srv", "$n.txt")
	s := New("srv", store, logStore, logrus.NewEntry(logrus.New()), &recordingSink{})
	return s, logStore
}
