// Connection handler and TCP listener
//
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

// Package server accepts TCP connections and runs the per-connection
// protocol state machine described by the wire vocabulary in
// internal/wire: Unauthenticated, Authenticated, and Closing, the way
// the teacher's client.go Handle goroutine reads frames off a
// bufio.Scanner and dispatches them until the connection dies.
package server

import (
	"context"
	"errors"
	"io"
	"net"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/Nhom4-LTM-UDM17/caro-server/internal/client"
	"github.com/Nhom4-LTM-UDM17/caro-server/internal/lobby"
	"github.com/Nhom4-LTM-UDM17/caro-server/internal/wire"
)

// Server accepts connections and dispatches them against a Lobby.
type Server struct {
	lobby *lobby.Lobby
	log   *zap.Logger
	ln    net.Listener
}

// New returns a Server dispatching against lob.
func New(lob *lobby.Lobby, log *zap.Logger) *Server {
	return &Server{lobby: lob, log: log}
}

// Listen binds addr, returning the actual listening address (useful
// when addr asks for an ephemeral port). Call Serve to start accepting.
func (s *Server) Listen(addr string) (string, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return "", err
	}
	s.ln = ln
	return ln.Addr().String(), nil
}

// Serve accepts connections on the listener bound by Listen until ctx
// is cancelled or an unrecoverable accept error occurs, in the manner
// of the teacher's TCPConf.init accept loop.
func (s *Server) Serve(ctx context.Context) error {
	if s.log != nil {
		s.log.Info("listening", zap.String("addr", s.ln.Addr().String()))
	}

	go func() {
		<-ctx.Done()
		s.ln.Close()
	}()

	for {
		conn, err := s.ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
			}
			if s.log != nil {
				s.log.Error("accept failed", zap.Error(err))
			}
			return err
		}
		go s.handle(conn)
	}
}

// ListenAndServe binds addr and serves until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	if _, err := s.Listen(addr); err != nil {
		return err
	}
	return s.Serve(ctx)
}

// Close stops the listener, if any.
func (s *Server) Close() error {
	if s.ln != nil {
		return s.ln.Close()
	}
	return nil
}

// handle runs the full lifecycle of one connection: login, dispatch
// loop, then logout and transport teardown. It owns exactly one
// inbound reader (the calling goroutine) and one outbound writer
// goroutine, started inside client.New.
func (s *Server) handle(conn net.Conn) {
	defer conn.Close()

	reader := wire.NewReader(conn)

	cli, err := s.awaitLogin(conn, reader)
	if err != nil || cli == nil {
		return
	}

	s.dispatchLoop(cli, reader)

	s.lobby.Logout(cli)
}

// awaitLogin implements the Unauthenticated state: the only accepted
// frame is "login" with a "name" field. Anything else closes the
// connection without registering a client.
func (s *Server) awaitLogin(conn net.Conn, reader *wire.Reader) (*client.Client, error) {
	frame, err := reader.ReadFrame()
	if err != nil {
		return nil, err
	}
	if frame.Type != wire.TypeLogin {
		writeError(conn, "first frame must be login")
		return nil, errors.New("server: first frame not login")
	}

	name := frame.String("name")
	cli, err := s.lobby.Login(name, conn)
	if err != nil {
		writeError(conn, err.Error())
		return nil, err
	}

	cli.Send(wire.Message(wire.TypeLoginOK, map[string]interface{}{
		"users": s.lobby.Names(),
	}))
	return cli, nil
}

// dispatchLoop implements the Authenticated state: read frames until
// EOF or a transport error, applying the per-connection rate limit and
// dispatching each frame by type.
func (s *Server) dispatchLoop(cli *client.Client, reader *wire.Reader) {
	for {
		frame, err := reader.ReadFrame()
		if err != nil {
			return
		}

		if cli.Arrive(time.Now()) {
			cli.Send(wire.Message(wire.TypeError, map[string]interface{}{
				"msg": "Rate limit exceeded",
			}))
			time.Sleep(time.Second)
		}

		s.dispatch(cli, frame)
	}
}

func (s *Server) dispatch(cli *client.Client, frame *wire.Frame) {
	switch frame.Type {
	case wire.TypeChallenge:
		target := frame.String("opponent")
		if err := s.lobby.Challenge(cli, target); err != nil {
			cli.Send(errFrame(err))
		}
	case wire.TypeAccept:
		challenger := frame.String("opponent")
		if _, err := s.lobby.Accept(cli, challenger); err != nil {
			cli.Send(errFrame(err))
		}
	case wire.TypeMove:
		m := cli.Match()
		if m == nil {
			cli.Send(errFrame(errors.New("not in a match")))
			return
		}
		// x/y default to an out-of-range sentinel when the field is
		// missing or not an integer, so ApplyMove's own ordering
		// (turn ownership before coordinate validity) still applies
		// instead of short-circuiting here.
		x, xok := frame.IntField("x")
		if !xok {
			x = -1
		}
		y, yok := frame.IntField("y")
		if !yok {
			y = -1
		}
		if err := m.ApplyMove(cli.Name, x, y); err != nil {
			cli.Send(errFrame(err))
		}
	case wire.TypeTimeout:
		m := cli.Match()
		if m == nil {
			cli.Send(errFrame(errors.New("not in a match")))
			return
		}
		if err := m.OnClientTimeout(cli.Name); err != nil {
			cli.Send(errFrame(err))
		}
	case wire.TypeChat:
		text := strings.TrimSpace(frame.String("text"))
		if text == "" || utf8.RuneCountInString(text) > wire.MaxChat {
			return
		}
		m := cli.Match()
		if m == nil {
			return
		}
		m.RelayChat(cli.Name, text)
	default:
		cli.Send(errFrame(errors.New("unknown type")))
	}
}

func errFrame(err error) map[string]interface{} {
	return wire.Message(wire.TypeError, map[string]interface{}{"msg": err.Error()})
}

func writeError(w io.Writer, msg string) {
	data, err := wire.Encode(wire.Message(wire.TypeError, map[string]interface{}{"msg": msg}))
	if err != nil {
		return
	}
	w.Write(data)
}
