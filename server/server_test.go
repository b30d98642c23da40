package server

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"
)

// P6: from any disconnect while retries = k, at most k reconnect
// attempts are made (spec.md §4.4.3).
func TestReconnectBoundedByRetryCount(t *testing.T) {
	s, sink := newTestServer(t, "alice")

	const maxRetries = 2
	s.SetReconnectPolicy(5*time.Millisecond, maxRetries)
	// Make every dial attempt fail so every connect/reconnect goes
	// straight back through handleTransportDisconnected.
	s.conn.DialFn = func(ctx context.Context) (io.ReadWriteCloser, error) {
		return nil, errors.New("refused")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)
	defer s.Stop()

	s.Connect()

	deadline := time.After(2 * time.Second)
	for {
		if len(sink.named("reconnect")) >= maxRetries {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("got %d reconnect events after timeout, want %d", len(sink.named("reconnect")), maxRetries)
		case <-time.After(20 * time.Millisecond):
		}
	}

	// Give any further (incorrect) reconnect attempts a chance to fire
	// before asserting the bound held.
	time.Sleep(100 * time.Millisecond)

	got := len(sink.named("reconnect"))
	if got != maxRetries {
		t.Errorf("got %d reconnect attempts, want exactly %d", got, maxRetries)
	}

	last := sink.named("reconnect")[len(sink.named("reconnect"))-1]
	if retriesLeft, _ := last.Fields["retries_left"].(int); retriesLeft != 0 {
		t.Errorf("last reconnect event retries_left = %v, want 0", last.Fields["retries_left"])
	}
}

// An explicit Connect resets retries back to the configured maximum,
// even after a prior run exhausted them (spec.md §4.4.3).
func TestConnectResetsRetriesAfterExhaustion(t *testing.T) {
	s, _ := newTestServer(t, "alice")
	s.SetReconnectPolicy(time.Hour, 3)
	s.conn.DialFn = func(ctx context.Context) (io.ReadWriteCloser, error) {
		return nil, errors.New("refused")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)
	defer s.Stop()

	done := make(chan struct{})
	s.enqueue(func() {
		s.retries = 0
		close(done)
	})
	<-done

	s.Connect()

	time.Sleep(50 * time.Millisecond)
	s.mu.Lock()
	retries := s.retries
	s.mu.Unlock()
	if retries != 3 {
		t.Errorf("retries after Connect = %d, want reset to 3", retries)
	}
}
