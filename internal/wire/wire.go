// Wire protocol
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

// Package wire implements the newline-delimited JSON frame codec and
// the message vocabulary exchanged between the server and a client.
// Every frame is a single UTF-8 line, a JSON object with a string
// "type" field; unknown extra fields are ignored by Go's json
// decoder, which already gives us that behaviour for free.
package wire

import (
	"bufio"
	"encoding/json"
	"errors"
	"io"
	"unicode/utf8"
)

// Protocol constants, fixed by the wire vocabulary.
const (
	BoardSize      = 15
	WinLength      = 5
	ThinkTime      = 30 // seconds
	HighlightDelay = 3  // seconds
	MaxName        = 50
	MaxChat        = 500
	RateLimitN     = 20
	RateLimitSecs  = 2
)

// Frame types, client to server.
const (
	TypeLogin     = "login"
	TypeChallenge = "challenge"
	TypeAccept    = "accept"
	TypeMove      = "move"
	TypeTimeout   = "timeout"
	TypeChat      = "chat"
)

// Frame types, server to client.
const (
	TypeLoginOK       = "login_ok"
	TypeUserList      = "user_list"
	TypeChallengeSent = "challenge_sent"
	TypeInvite        = "invite"
	TypeMatchStart    = "match_start"
	TypeYourTurn      = "your_turn"
	TypeMoveOK        = "move_ok"
	TypeOpponentMove  = "opponent_move"
	TypeHighlight     = "highlight"
	TypeMatchEnd      = "match_end"
	TypeChatOut       = "chat"
	TypeError         = "error"
)

// ErrMalformed is returned by Decode when a line is not valid UTF-8,
// not a JSON object, or lacks a "type" field.
var ErrMalformed = errors.New("wire: malformed frame")

// Frame is a decoded inbound frame: the dispatch type, plus lazy
// access to the remaining fields via Unmarshal.
type Frame struct {
	Type string
	raw  map[string]json.RawMessage
}

// Field decodes the named field of the frame into dst. It reports
// false if the field is absent or does not decode into dst's type.
func (f *Frame) Field(name string, dst interface{}) bool {
	raw, ok := f.raw[name]
	if !ok {
		return false
	}
	return json.Unmarshal(raw, dst) == nil
}

// String decodes a string field, returning "" if absent or the wrong
// type.
func (f *Frame) String(name string) string {
	var s string
	f.Field(name, &s)
	return s
}

// Decode parses a single frame line (already stripped of its
// trailing newline). It fails with ErrMalformed on invalid UTF-8,
// invalid JSON, a JSON value that isn't an object, or a missing/
// non-string "type" field.
func Decode(line []byte) (*Frame, error) {
	if !utf8.Valid(line) {
		return nil, ErrMalformed
	}

	raw := make(map[string]json.RawMessage)
	if err := json.Unmarshal(line, &raw); err != nil {
		return nil, ErrMalformed
	}

	typeRaw, ok := raw["type"]
	if !ok {
		return nil, ErrMalformed
	}
	var typ string
	if err := json.Unmarshal(typeRaw, &typ); err != nil || typ == "" {
		return nil, ErrMalformed
	}

	return &Frame{Type: typ, raw: raw}, nil
}

// Encode marshals a frame payload (a map or struct with a "type"
// field already set, or passed separately via Message) to a single
// newline-terminated line.
func Encode(v interface{}) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

// Message builds an outbound frame as a map holding "type" plus the
// given fields. The map is unordered; Encode writes its keys in the
// sorted order encoding/json uses for maps.
func Message(typ string, fields map[string]interface{}) map[string]interface{} {
	m := make(map[string]interface{}, len(fields)+1)
	m["type"] = typ
	for k, v := range fields {
		m[k] = v
	}
	return m
}

// Reader reads newline-delimited frames off a stream, matching the
// teacher's bufio.Scanner-based client input loop.
type Reader struct {
	scanner *bufio.Scanner
}

// NewReader wraps r with a line-oriented frame reader. The scanner's
// buffer is grown to accommodate a full board's worth of move history
// plus protocol overhead.
func NewReader(r io.Reader) *Reader {
	s := bufio.NewScanner(r)
	s.Buffer(make([]byte, 0, 4096), 1<<20)
	return &Reader{scanner: s}
}

// ReadFrame blocks for the next line and decodes it. io.EOF is
// returned verbatim when the stream ends cleanly.
func (r *Reader) ReadFrame() (*Frame, error) {
	if !r.scanner.Scan() {
		if err := r.scanner.Err(); err != nil {
			return nil, err
		}
		return nil, io.EOF
	}
	return Decode(r.scanner.Bytes())
}

// CoordsInRange reports whether x and y both fall in [0, BoardSize).
func CoordsInRange(x, y int) bool {
	return x >= 0 && x < BoardSize && y >= 0 && y < BoardSize
}

// IntField decodes a numeric field strictly as an integer: JSON
// numbers with a fractional part, or fields of the wrong JSON type,
// are rejected rather than silently truncated, since the spec treats
// "x or y is not an integer" as BadCoords.
func (f *Frame) IntField(name string) (int, bool) {
	raw, ok := f.raw[name]
	if !ok {
		return 0, false
	}
	var n float64
	if err := json.Unmarshal(raw, &n); err != nil {
		return 0, false
	}
	if n != float64(int(n)) {
		return 0, false
	}
	return int(n), true
}

// HasField reports whether name was present in the decoded frame.
func (f *Frame) HasField(name string) bool {
	_, ok := f.raw[name]
	return ok
}
