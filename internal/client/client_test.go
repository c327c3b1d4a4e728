// This file is part of caro-server.
//
// caro-server is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License,
// version 3, as published by the Free Software Foundation.
//
// caro-server is distributed in the hope that it will be useful, but
// WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the GNU
// Affero General Public License for more details.

package client

import (
	"bytes"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/Nhom4-LTM-UDM17/caro-server/internal/wire"
)

// syncWriteCloser serializes Write/Close so the test's own reads
// don't race with the writer goroutine.
type syncWriteCloser struct {
	mu     sync.Mutex
	buf    bytes.Buffer
	closed bool
}

func (s *syncWriteCloser) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, io.ErrClosedPipe
	}
	return s.buf.Write(p)
}

func (s *syncWriteCloser) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *syncWriteCloser) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.String()
}

func TestSendWritesFrame(t *testing.T) {
	wc := &syncWriteCloser{}
	cli := New("alice", wc)
	defer cli.Close()

	if err := cli.Send(wire.Message(wire.TypeLoginOK, map[string]interface{}{"users": []string{"alice"}})); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if bytes.Contains([]byte(wc.String()), []byte(`"login_ok"`)) {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("frame never written, got %q", wc.String())
}

func TestMatchMembership(t *testing.T) {
	wc := &syncWriteCloser{}
	cli := New("alice", wc)
	defer cli.Close()

	if cli.InMatch() {
		t.Fatal("new client should not be in a match")
	}

	m := &fakeMatch{id: "m1"}
	cli.SetMatch(m)
	if !cli.InMatch() {
		t.Fatal("expected client to report in-match after SetMatch")
	}
	if cli.Match().ID() != "m1" {
		t.Fatalf("match id = %q, want m1", cli.Match().ID())
	}

	cli.SetMatch(nil)
	if cli.InMatch() {
		t.Fatal("expected client to be free after clearing match")
	}
}

func TestArriveRateLimit(t *testing.T) {
	wc := &syncWriteCloser{}
	cli := New("alice", wc)
	defer cli.Close()

	base := time.Unix(1000, 0)
	for i := 0; i < wire.RateLimitN-1; i++ {
		if cli.Arrive(base.Add(time.Duration(i) * time.Millisecond)) {
			t.Fatalf("arrival %d should not exceed limit yet", i)
		}
	}

	// the Nth arrival, still within the window, should trip the limit
	if !cli.Arrive(base.Add(time.Duration(wire.RateLimitN) * time.Millisecond)) {
		t.Fatal("expected rate limit to be exceeded")
	}
}

func TestArriveResetsAfterWindow(t *testing.T) {
	wc := &syncWriteCloser{}
	cli := New("alice", wc)
	defer cli.Close()

	base := time.Unix(2000, 0)
	for i := 0; i < wire.RateLimitN; i++ {
		cli.Arrive(base.Add(time.Duration(i) * time.Millisecond))
	}

	later := base.Add(time.Duration(wire.RateLimitSecs+1) * time.Second)
	if cli.Arrive(later) {
		t.Fatal("arrival well outside the window should not be rate limited")
	}
}

type fakeMatch struct{ id string }

func (m *fakeMatch) ID() string                                    { return m.id }
func (m *fakeMatch) ApplyMove(actor string, x, y int) error         { return nil }
func (m *fakeMatch) OnClientTimeout(actor string) error             { return nil }
func (m *fakeMatch) RelayChat(actor, text string) error             { return nil }
func (m *fakeMatch) OnDisconnect(actor string)                     {}
