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

package server

import (
	"bufio"
	"context"
	"encoding/json"
	"net"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/Nhom4-LTM-UDM17/caro-server/internal/lobby"
)

func startTestServer(t *testing.T) (addr string, stop func()) {
	t.Helper()
	lob := lobby.New(zap.NewNop())
	s := New(lob, zap.NewNop())

	addr, err := s.Listen("127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	go s.Serve(ctx)

	return addr, func() {
		cancel()
		s.Close()
	}
}

type testConn struct {
	conn net.Conn
	r    *bufio.Scanner
}

func dial(t *testing.T, addr string) *testConn {
	t.Helper()
	conn, err := net.DialTimeout("tcp", addr, time.Second)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	conn.SetDeadline(time.Now().Add(3 * time.Second))
	return &testConn{conn: conn, r: bufio.NewScanner(conn)}
}

func (c *testConn) send(v interface{}) {
	data, _ := json.Marshal(v)
	c.conn.Write(append(data, '\n'))
}

func (c *testConn) recv(t *testing.T) map[string]interface{} {
	t.Helper()
	if !c.r.Scan() {
		t.Fatalf("recv: scan failed: %v", c.r.Err())
	}
	var m map[string]interface{}
	if err := json.Unmarshal(c.r.Bytes(), &m); err != nil {
		t.Fatalf("recv: unmarshal: %v", err)
	}
	return m
}

func TestLoginRejectsNonLoginFirstFrame(t *testing.T) {
	addr, stop := startTestServer(t)
	defer stop()

	c := dial(t, addr)
	defer c.conn.Close()

	c.send(map[string]interface{}{"type": "move", "x": 1, "y": 1})
	frame := c.recv(t)
	if frame["type"] != "error" {
		t.Fatalf("expected error frame, got %+v", frame)
	}

	// connection must be closed afterwards
	buf := make([]byte, 1)
	c.conn.SetReadDeadline(time.Now().Add(time.Second))
	if _, err := c.conn.Read(buf); err == nil {
		t.Fatal("expected connection to be closed after non-login first frame")
	}
}

func TestLoginSucceedsAndReturnsUserList(t *testing.T) {
	addr, stop := startTestServer(t)
	defer stop()

	c := dial(t, addr)
	defer c.conn.Close()

	c.send(map[string]interface{}{"type": "login", "name": "alice"})
	frame := c.recv(t)
	if frame["type"] != "login_ok" {
		t.Fatalf("expected login_ok, got %+v", frame)
	}
	users, ok := frame["users"].([]interface{})
	if !ok || len(users) != 1 || users[0] != "alice" {
		t.Fatalf("expected users [alice], got %+v", frame["users"])
	}
}

func TestChallengeAndAcceptStartsMatch(t *testing.T) {
	addr, stop := startTestServer(t)
	defer stop()

	alice := dial(t, addr)
	defer alice.conn.Close()
	alice.send(map[string]interface{}{"type": "login", "name": "alice"})
	alice.recv(t)

	bob := dial(t, addr)
	defer bob.conn.Close()
	bob.send(map[string]interface{}{"type": "login", "name": "bob"})
	bob.recv(t)
	// this test lobby has no broadcaster attached, so bob's login sends
	// no user_list frame to alice
	alice.conn.SetReadDeadline(time.Now().Add(500 * time.Millisecond))

	alice.send(map[string]interface{}{"type": "challenge", "opponent": "bob"})

	// bob should receive an invite, allowing for other frames first
	var sawInvite bool
	for i := 0; i < 3; i++ {
		frame := bob.recv(t)
		if frame["type"] == "invite" {
			sawInvite = true
			break
		}
	}
	if !sawInvite {
		t.Fatal("expected bob to receive an invite frame")
	}

	bob.send(map[string]interface{}{"type": "accept", "opponent": "alice"})

	var sawStart bool
	for i := 0; i < 5; i++ {
		frame := bob.recv(t)
		if frame["type"] == "match_start" {
			sawStart = true
			if frame["you"] != "O" {
				t.Fatalf("bob should be O, got %+v", frame["you"])
			}
			break
		}
	}
	if !sawStart {
		t.Fatal("expected bob to receive match_start")
	}
}

func TestUnknownTypeYieldsError(t *testing.T) {
	addr, stop := startTestServer(t)
	defer stop()

	c := dial(t, addr)
	defer c.conn.Close()
	c.send(map[string]interface{}{"type": "login", "name": "carol"})
	c.recv(t)

	c.send(map[string]interface{}{"type": "bogus"})
	frame := c.recv(t)
	if frame["type"] != "error" {
		t.Fatalf("expected error frame for unknown type, got %+v", frame)
	}
}

func TestMoveWithoutMatchIsError(t *testing.T) {
	addr, stop := startTestServer(t)
	defer stop()

	c := dial(t, addr)
	defer c.conn.Close()
	c.send(map[string]interface{}{"type": "login", "name": "dave"})
	c.recv(t)

	c.send(map[string]interface{}{"type": "move", "x": 1, "y": 1})
	frame := c.recv(t)
	if frame["type"] != "error" {
		t.Fatalf("expected error frame, got %+v", frame)
	}
}
