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

package observer

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/Nhom4-LTM-UDM17/caro-server/internal/client"
	"github.com/Nhom4-LTM-UDM17/caro-server/internal/match"
)

type discardWriteCloser struct{}

func (discardWriteCloser) Write(p []byte) (int, error) { return len(p), nil }
func (discardWriteCloser) Close() error                { return nil }

type fakeSource struct {
	names   []string
	matches []*match.Match
}

func (f *fakeSource) Names() []string          { return f.names }
func (f *fakeSource) Matches() []*match.Match   { return f.matches }
func (f *fakeSource) MatchByID(id string) (*match.Match, bool) {
	for _, m := range f.matches {
		if m.ID() == id {
			return m, true
		}
	}
	return nil, false
}

func newTestMatch(t *testing.T) *match.Match {
	t.Helper()
	px := client.New("alice", discardWriteCloser{})
	po := client.New("bob", discardWriteCloser{})
	t.Cleanup(func() { px.Close(); po.Close() })

	m := match.New(px, po, func(match.Record) {}, zap.NewNop())
	m.Start()
	return m
}

func TestBuildLobbyFrame(t *testing.T) {
	m := newTestMatch(t)
	src := &fakeSource{names: []string{"bob", "alice"}, matches: []*match.Match{m}}
	h := NewHub(src, zap.NewNop())

	frame := h.buildLobbyFrame()
	if frame.Type != typeLobby {
		t.Fatalf("type = %q, want %q", frame.Type, typeLobby)
	}
	if len(frame.Users) != 2 || frame.Users[0] != "alice" || frame.Users[1] != "bob" {
		t.Fatalf("unexpected sorted users: %v", frame.Users)
	}
	if len(frame.Matches) != 1 || frame.Matches[0].MatchID != m.ID() {
		t.Fatalf("unexpected match summary: %+v", frame.Matches)
	}
	if frame.Matches[0].Turn != "X" {
		t.Fatalf("turn = %q, want X", frame.Matches[0].Turn)
	}
}

func TestBuildBoardFrame(t *testing.T) {
	m := newTestMatch(t)
	if err := m.ApplyMove("alice", 3, 4); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	src := &fakeSource{matches: []*match.Match{m}}
	h := NewHub(src, zap.NewNop())

	frame, ok := h.buildBoardFrame(m.ID())
	if !ok {
		t.Fatal("expected board frame to be found")
	}
	if frame.Rows[4][3] != 'X' {
		t.Fatalf("expected (3,4) to be X, row = %q", frame.Rows[4])
	}
	if frame.LastMove == nil || frame.LastMove.X != 3 || frame.LastMove.Y != 4 {
		t.Fatalf("unexpected last move: %+v", frame.LastMove)
	}
}

func TestBuildBoardFrameUnknownMatch(t *testing.T) {
	src := &fakeSource{}
	h := NewHub(src, zap.NewNop())

	if _, ok := h.buildBoardFrame("does-not-exist"); ok {
		t.Fatal("expected unknown match id to report not found")
	}
}

func TestServeHTTPSendsInitialLobbyFrame(t *testing.T) {
	m := newTestMatch(t)
	src := &fakeSource{names: []string{"alice", "bob"}, matches: []*match.Match{m}}
	h := NewHub(src, zap.NewNop())

	srv := httptest.NewServer(h)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/observer"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}

	var frame lobbyFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if frame.Type != typeLobby {
		t.Fatalf("type = %q, want %q", frame.Type, typeLobby)
	}
	if len(frame.Matches) != 1 {
		t.Fatalf("expected one live match, got %d", len(frame.Matches))
	}
}
