package transport_test

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/sushinet/sushid/internal/ircnet"
	"github.com/sushinet/sushid/transport"
)

func dialMock(s *ircnet.Server) transport.DialFunc {
	return func(ctx context.Context) (io.ReadWriteCloser, error) {
		return s, nil
	}
}

func TestConnectInvokesOnConnect(t *testing.T) {
	mock := ircnet.NewServer()
	defer mock.Close()

	connected := make(chan struct{}, 1)
	c := &transport.Conn{DialFn: dialMock(mock)}
	c.OnConnect = func() { connected <- struct{}{} }

	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer c.Close()

	select {
	case <-connected:
	case <-time.After(time.Second):
		t.Fatal("OnConnect was not called")
	}
}

func TestInlinePingPong(t *testing.T) {
	mock := ircnet.NewServer()
	defer mock.Close()

	var mu sync.Mutex
	var delivered []string

	c := &transport.Conn{DialFn: dialMock(mock)}
	c.OnRead = func(line string) {
		mu.Lock()
		delivered = append(delivered, line)
		mu.Unlock()
	}
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer c.Close()

	if err := mock.WriteString("PING :12345"); err != nil {
		t.Fatalf("WriteString: %v", err)
	}

	select {
	case line := <-mock.Lines():
		if line != "PONG :12345" {
			t.Errorf("got PONG reply %q, want %q", line, "PONG :12345")
		}
	case <-time.After(time.Second):
		t.Fatal("no PONG observed")
	}

	mu.Lock()
	defer mu.Unlock()
	if len(delivered) != 0 {
		t.Errorf("PING line should not be delivered to OnRead, got %v", delivered)
	}
}

func TestSendNotConnected(t *testing.T) {
	c := &transport.Conn{}
	if _, err := c.Send("PRIVMSG #foo :hi"); err != transport.ErrNotConnected {
		t.Errorf("Send on unconnected transport: got %v, want ErrNotConnected", err)
	}
}

func TestSendThenQueuePreservesOrdering(t *testing.T) {
	mock := ircnet.NewServer()
	defer mock.Close()

	c := &transport.Conn{DialFn: dialMock(mock)}
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer c.Close()

	if _, err := c.Send("NICK alice"); err != nil {
		t.Fatalf("Send: %v", err)
	}
	c.Queue("USER alice 0 * :Alice")

	var got []string
	for i := 0; i < 2; i++ {
		select {
		case line := <-mock.Lines():
			got = append(got, line)
		case <-time.After(3 * time.Second):
			t.Fatalf("timed out waiting for line %d", i)
		}
	}
	want := []string{"NICK alice", "USER alice 0 * :Alice"}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("line %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestOnDisconnectFiresOnce(t *testing.T) {
	mock := ircnet.NewServer()

	var n int32Counter
	c := &transport.Conn{DialFn: dialMock(mock)}
	c.OnDisconnect = func() { n.inc() }

	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	mock.Close()
	c.Wait()

	if got := n.get(); got != 1 {
		t.Errorf("OnDisconnect fired %d times, want 1", got)
	}
}

type int32Counter struct {
	mu sync.Mutex
	v  int
}

func (c *int32Counter) inc() {
	c.mu.Lock()
	c.v++
	c.mu.Unlock()
}

func (c *int32Counter) get() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.v
}
