// Client connection state
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

// Package client holds the per-connection identity, outbound frame
// channel and rate-limit bookkeeping shared by the lobby and match
// packages, kept separate from both so that neither has to import the
// other through this struct.
package client

import (
	"io"
	"sync"
	"time"

	"github.com/Nhom4-LTM-UDM17/caro-server/internal/wire"
)

// outboundBuffer bounds how many unsent frames may queue for a slow
// client before Send starts dropping them.
const outboundBuffer = 32

// MatchMember is the subset of a match.Match's public operations a
// connection handler needs once a client has joined one. It is
// declared here, not in internal/match, so that client does not
// import match.
type MatchMember interface {
	ID() string
	ApplyMove(actor string, x, y int) error
	OnClientTimeout(actor string) error
	RelayChat(actor, text string) error
	OnDisconnect(actor string)
}

// Client is the server-side handle for one logged-in connection: its
// chosen name, its outbound frame channel (drained by a dedicated
// writer goroutine so that a slow peer cannot stall the handler that
// produced the frame), and the rate-limit FIFO of recent inbound
// frame arrivals.
type Client struct {
	Name string

	wc   io.WriteCloser
	out  chan []byte
	done chan struct{}
	once sync.Once

	matchMu sync.Mutex
	match   MatchMember

	rlMu     sync.Mutex
	arrivals []time.Time
}

// New wraps wc as a Client named name and starts its writer
// goroutine. The caller remains responsible for reading frames off
// the other end of the connection.
func New(name string, wc io.WriteCloser) *Client {
	cli := &Client{
		Name: name,
		wc:   wc,
		out:  make(chan []byte, outboundBuffer),
		done: make(chan struct{}),
	}
	go cli.writeLoop()
	return cli
}

// writeLoop drains out and writes each frame to the connection in
// order, exactly as the teacher's single per-connection writer keeps
// frames ordered. A write error or a closed Client stops the loop.
func (cli *Client) writeLoop() {
	for {
		select {
		case frame, ok := <-cli.out:
			if !ok {
				return
			}
			if _, err := cli.wc.Write(frame); err != nil {
				cli.Close()
				return
			}
		case <-cli.done:
			return
		}
	}
}

// Send encodes v as a frame and enqueues it for delivery. It never
// blocks the caller on a slow peer: if the outbound queue is full the
// frame is dropped, whether the peer is still connected but not
// keeping up or the connection is already being torn down.
func (cli *Client) Send(v interface{}) error {
	line, err := wire.Encode(v)
	if err != nil {
		return err
	}
	select {
	case cli.out <- line:
	case <-cli.done:
	default:
		// queue full: peer is not keeping up or already closing
	}
	return nil
}

// Close shuts down the writer goroutine and the underlying
// connection. It is safe to call more than once.
func (cli *Client) Close() error {
	var err error
	cli.once.Do(func() {
		close(cli.done)
		err = cli.wc.Close()
	})
	return err
}

// SetMatch records the match this client currently participates in,
// or clears it when m is nil.
func (cli *Client) SetMatch(m MatchMember) {
	cli.matchMu.Lock()
	cli.match = m
	cli.matchMu.Unlock()
}

// Match returns the match this client currently participates in, or
// nil if it is free.
func (cli *Client) Match() MatchMember {
	cli.matchMu.Lock()
	defer cli.matchMu.Unlock()
	return cli.match
}

// InMatch reports whether the client currently belongs to a match.
func (cli *Client) InMatch() bool {
	return cli.Match() != nil
}

// Arrive records the arrival of an inbound frame at time now and
// reports whether the rate limit (wire.RateLimitN requests per
// wire.RateLimitSecs) has been exceeded. The FIFO always accepts the
// new arrival; exceeding the limit is advisory only; the caller
// decides whether to warn and delay.
func (cli *Client) Arrive(now time.Time) (exceeded bool) {
	cli.rlMu.Lock()
	defer cli.rlMu.Unlock()

	cli.arrivals = append(cli.arrivals, now)
	if len(cli.arrivals) > wire.RateLimitN {
		cli.arrivals = cli.arrivals[len(cli.arrivals)-wire.RateLimitN:]
	}
	if len(cli.arrivals) < wire.RateLimitN {
		return false
	}
	oldest := cli.arrivals[0]
	return now.Sub(oldest) < time.Duration(wire.RateLimitSecs)*time.Second
}
