// Match state machine
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

// Package match implements the authoritative per-game state machine:
// the board, the turn clock, win/draw/timeout/disconnect detection,
// and delivery of the resulting frames to both participants. All
// mutation of a Match happens on a single command-processing
// goroutine, in the manner of the teacher's Game.Play select loop, so
// that two moves (or a move racing a timeout) on the same match never
// interleave.
package match

import (
	"errors"
	"fmt"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/Nhom4-LTM-UDM17/caro-server/internal/board"
	"github.com/Nhom4-LTM-UDM17/caro-server/internal/client"
	"github.com/Nhom4-LTM-UDM17/caro-server/internal/wire"
)

// Errors surfaced to the acting client as "error" frames; the match
// and connection both remain intact.
var (
	ErrNotInMatch  = errors.New("you are not a participant in this match")
	ErrNotYourTurn = errors.New("it is not your turn")
	ErrBadCoords   = errors.New("x and y must be integers in range")
	ErrOccupied    = errors.New("that cell is already occupied")
)

var idSeq uint64

// NewID returns a process-unique match identifier derived from the
// current time and a monotonic counter, so that two matches created
// within the same nanosecond still sort uniquely.
func NewID() string {
	n := atomic.AddUint64(&idSeq, 1)
	return fmt.Sprintf("m-%d-%d", time.Now().UnixNano(), n)
}

// MoveRecord is one entry of a match's append-only move log.
type MoveRecord struct {
	X, Y   int
	Symbol string
	At     time.Time
}

// Record is the immutable record of a finished match, handed to the
// history store and to the lobby's removal callback.
type Record struct {
	MatchID    string
	PlayerX    string
	PlayerO    string
	Winner     string // display name, or "draw"
	Reason     string // "win", "timeout", "disconnect", "draw"
	StartedAt  time.Time
	FinishedAt time.Time
	Moves      []MoveRecord
}

// FinishFunc is invoked exactly once, when a match transitions to
// terminal, so the owner (the lobby) can remove it from its registry
// and hand the record to the history store.
type FinishFunc func(Record)

type moveReq struct {
	actor string
	x, y  int
	reply chan error
}

type chatReq struct {
	actor, text string
	reply       chan error
}

type timeoutReq struct {
	actor string
	reply chan error
}

type disconnectReq struct {
	actor string
}

type timerFire struct {
	turn     board.Symbol
	deadline time.Time
}

// Snapshot is a consistent, read-only copy of a match's current
// state, produced for the observer component without sharing the
// match's internal lock.
type Snapshot struct {
	MatchID  string
	PlayerX  string
	PlayerO  string
	Turn     board.Symbol
	Rows     [board.Size][board.Size]board.Symbol
	LastMove *MoveRecord
	Terminal bool
}

type snapshotReq struct {
	reply chan Snapshot
}

// Match is the authoritative state of one ongoing game. All fields
// below the channels are only ever touched from the run goroutine.
type Match struct {
	id      string
	playerX *client.Client
	playerO *client.Client

	moveCh     chan moveReq
	chatCh     chan chatReq
	clientToCh chan timeoutReq
	timerCh    chan timerFire
	disconnCh  chan disconnectReq
	snapshotCh chan snapshotReq
	stop       chan struct{}

	onFinish FinishFunc
	log      *zap.Logger

	board      *board.Board
	turn       board.Symbol
	startedAt  time.Time
	moves      []MoveRecord
	deadline   time.Time
	terminal   bool
	lastMove   *MoveRecord
	timer      *Timer
}

// New creates a match between playerX and playerO (the challenger and
// the accepter respectively, per the data model) and starts its
// command-processing goroutine. Call Start to begin play.
func New(playerX, playerO *client.Client, onFinish FinishFunc, log *zap.Logger) *Match {
	m := &Match{
		id:         NewID(),
		playerX:    playerX,
		playerO:    playerO,
		moveCh:     make(chan moveReq),
		chatCh:     make(chan chatReq),
		clientToCh: make(chan timeoutReq),
		timerCh:    make(chan timerFire, 1),
		disconnCh:  make(chan disconnectReq, 2),
		snapshotCh: make(chan snapshotReq),
		stop:       make(chan struct{}),
		onFinish:   onFinish,
		log:        log,
		board:      board.New(),
		turn:       board.X,
	}
	m.timer = NewTimer(m.timerCh, m.stop)
	go m.run()
	return m
}

// ID returns the match's identifier, satisfying client.MatchMember.
func (m *Match) ID() string { return m.id }

// run is the match's sole mutator goroutine; every exported operation
// is a blocking request sent over a channel and processed here, one
// at a time, exactly as the teacher's Game.Play drains move/death/
// timer events in a single select loop.
func (m *Match) run() {
	defer close(m.stop)
	for {
		select {
		case req := <-m.moveCh:
			req.reply <- m.applyMove(req.actor, req.x, req.y)
		case req := <-m.chatCh:
			req.reply <- m.relayChat(req.actor, req.text)
		case req := <-m.clientToCh:
			req.reply <- m.onClientTimeout(req.actor)
		case fire := <-m.timerCh:
			m.onTimeout(fire.turn, fire.deadline)
		case req := <-m.disconnCh:
			m.onDisconnect(req.actor)
		case req := <-m.snapshotCh:
			req.reply <- m.snapshot()
		}
		if m.terminal {
			return
		}
	}
}

// Start creates the match's opening frames and arms the first turn.
// It must be called once, right after New.
func (m *Match) Start() {
	m.startedAt = time.Now()
	m.playerX.Send(wire.Message(wire.TypeMatchStart, map[string]interface{}{
		"you": "X", "opponent": m.playerO.Name, "size": board.Size,
	}))
	m.playerO.Send(wire.Message(wire.TypeMatchStart, map[string]interface{}{
		"you": "O", "opponent": m.playerX.Name, "size": board.Size,
	}))
	m.beginTurn()
}

// beginTurn arms the deadline for the current turn and notifies the
// player whose turn it is. Must be called from run.
func (m *Match) beginTurn() {
	m.deadline = time.Now().Add(wire.ThinkTime * time.Second)
	m.current().Send(wire.Message(wire.TypeYourTurn, map[string]interface{}{
		"deadline": m.deadline.Unix(),
	}))
	m.timer.Arm(m.turn, m.deadline)
}

func (m *Match) current() *client.Client {
	if m.turn == board.X {
		return m.playerX
	}
	return m.playerO
}

func (m *Match) other(cli *client.Client) *client.Client {
	if cli == m.playerX {
		return m.playerO
	}
	return m.playerX
}

func (m *Match) symbolOf(name string) board.Symbol {
	switch name {
	case m.playerX.Name:
		return board.X
	case m.playerO.Name:
		return board.O
	default:
		return board.Empty
	}
}

func (m *Match) clientOf(name string) *client.Client {
	switch name {
	case m.playerX.Name:
		return m.playerX
	case m.playerO.Name:
		return m.playerO
	default:
		return nil
	}
}

// ApplyMove requests that actor place a stone at (x, y). It blocks
// until the match's goroutine has processed the request.
func (m *Match) ApplyMove(actor string, x, y int) error {
	reply := make(chan error, 1)
	select {
	case m.moveCh <- moveReq{actor: actor, x: x, y: y, reply: reply}:
	case <-m.stop:
		return ErrNotInMatch
	}
	select {
	case err := <-reply:
		return err
	case <-m.stop:
		return ErrNotInMatch
	}
}

// applyMove runs on the match goroutine; see §4.3 ApplyMove.
func (m *Match) applyMove(actor string, x, y int) error {
	sym := m.symbolOf(actor)
	if sym == board.Empty {
		return ErrNotInMatch
	}
	if sym != m.turn {
		return ErrNotYourTurn
	}
	if !wire.CoordsInRange(x, y) {
		return ErrBadCoords
	}
	if !m.board.IsEmpty(x, y) {
		return ErrOccupied
	}

	m.timer.Cancel()
	m.board.Place(x, y, sym)
	rec := MoveRecord{X: x, Y: y, Symbol: sym.String(), At: time.Now()}
	m.moves = append(m.moves, rec)
	m.lastMove = &rec
	m.deadline = time.Time{}

	actorCli := m.clientOf(actor)
	actorCli.Send(wire.Message(wire.TypeMoveOK, map[string]interface{}{
		"x": x, "y": y, "symbol": sym.String(),
	}))
	m.other(actorCli).Send(wire.Message(wire.TypeOpponentMove, map[string]interface{}{
		"x": x, "y": y, "symbol": sym.String(),
	}))

	if line := board.FindWinLine(m.board, x, y, sym); len(line) > 0 {
		cells := make([][2]int, len(line))
		for i, p := range line {
			cells[i] = [2]int{p.X, p.Y}
		}
		highlight := wire.Message(wire.TypeHighlight, map[string]interface{}{
			"cells": cells, "winner": actor,
		})
		m.playerX.Send(highlight)
		m.playerO.Send(highlight)
		time.Sleep(wire.HighlightDelay * time.Second)
		m.finish(actor, "win")
		return nil
	}
	if m.board.IsFull() {
		m.finish("", "draw")
		return nil
	}

	m.turn = sym.Other()
	m.beginTurn()
	return nil
}

// onTimeout is invoked by the Timer when THINK_TIME elapses; it is
// delivered over timerCh so it interleaves safely with moves.
func (m *Match) onTimeout(turn board.Symbol, deadline time.Time) {
	if m.terminal {
		return
	}
	if turn != m.turn {
		return // stale: turn has already advanced
	}
	if m.deadline.IsZero() || absDuration(m.deadline.Sub(deadline)) >= 100*time.Millisecond {
		return // stale: deadline has already advanced or was cleared
	}
	winner := m.other(m.current())
	m.finish(winner.Name, "timeout")
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}

// OnClientTimeout handles a self-reported timeout frame from actor.
func (m *Match) OnClientTimeout(actor string) error {
	reply := make(chan error, 1)
	select {
	case m.clientToCh <- timeoutReq{actor: actor, reply: reply}:
	case <-m.stop:
		return ErrNotInMatch
	}
	select {
	case err := <-reply:
		return err
	case <-m.stop:
		return ErrNotInMatch
	}
}

func (m *Match) onClientTimeout(actor string) error {
	sym := m.symbolOf(actor)
	if sym == board.Empty {
		return ErrNotInMatch
	}
	if sym != m.turn || m.terminal {
		return ErrNotYourTurn
	}
	m.timer.Cancel()
	winner := m.other(m.clientOf(actor))
	m.finish(winner.Name, "timeout")
	return nil
}

// OnDisconnect forfeits actor's match, if they are a participant and
// the match is still live. It does not block: disconnectCh is
// buffered so Logout never waits on a match's goroutine.
func (m *Match) OnDisconnect(actor string) {
	select {
	case m.disconnCh <- disconnectReq{actor: actor}:
	case <-m.stop:
	}
}

func (m *Match) onDisconnect(actor string) {
	if m.terminal {
		return
	}
	sym := m.symbolOf(actor)
	if sym == board.Empty {
		return
	}
	m.timer.Cancel()
	winner := m.other(m.clientOf(actor))
	m.finish(winner.Name, "disconnect")
}

// RelayChat forwards actor's chat text to the opponent only.
func (m *Match) RelayChat(actor, text string) error {
	reply := make(chan error, 1)
	select {
	case m.chatCh <- chatReq{actor: actor, text: text, reply: reply}:
	case <-m.stop:
		return ErrNotInMatch
	}
	select {
	case err := <-reply:
		return err
	case <-m.stop:
		return ErrNotInMatch
	}
}

func (m *Match) relayChat(actor, text string) error {
	sym := m.symbolOf(actor)
	if sym == board.Empty {
		return ErrNotInMatch
	}
	if text == "" || utf8.RuneCountInString(text) > wire.MaxChat {
		return nil // silently dropped, per §4.5
	}
	m.other(m.clientOf(actor)).Send(wire.Message(wire.TypeChatOut, map[string]interface{}{
		"from": actor, "text": text,
	}))
	return nil
}

// finish is idempotent via the terminal flag: the first caller wins,
// every later call (a stale timer racing a disconnect, for example)
// is a no-op.
func (m *Match) finish(winner, reason string) {
	if m.terminal {
		return
	}
	m.terminal = true
	m.timer.Cancel()

	m.send(m.playerX, winner, reason)
	m.send(m.playerO, winner, reason)

	m.playerX.SetMatch(nil)
	m.playerO.SetMatch(nil)

	rec := Record{
		MatchID:    m.id,
		PlayerX:    m.playerX.Name,
		PlayerO:    m.playerO.Name,
		Winner:     recordWinner(winner, reason),
		Reason:     reason,
		StartedAt:  m.startedAt,
		FinishedAt: time.Now(),
		Moves:      m.moves,
	}
	if m.onFinish != nil {
		m.onFinish(rec)
	}
}

func recordWinner(winner, reason string) string {
	if reason == "draw" {
		return "draw"
	}
	return winner
}

func (m *Match) send(cli *client.Client, winner, reason string) {
	var result string
	switch {
	case reason == "draw":
		result = "draw"
	case cli.Name == winner:
		result = "win"
	default:
		result = "lose"
	}
	var winnerField string
	switch {
	case reason == "draw":
		winnerField = "none"
	case cli.Name == winner:
		winnerField = "you"
	default:
		winnerField = "opponent"
	}
	cli.Send(wire.Message(wire.TypeMatchEnd, map[string]interface{}{
		"result": result, "reason": reason, "winner": winnerField,
	}))
}

// Snapshot returns a consistent read-only copy of the match's current
// state, for the observer component.
func (m *Match) Snapshot() Snapshot {
	reply := make(chan Snapshot, 1)
	select {
	case m.snapshotCh <- snapshotReq{reply: reply}:
	case <-m.stop:
		return Snapshot{MatchID: m.id, Terminal: true}
	}
	return <-reply
}

func (m *Match) snapshot() Snapshot {
	return Snapshot{
		MatchID:  m.id,
		PlayerX:  m.playerX.Name,
		PlayerO:  m.playerO.Name,
		Turn:     m.turn,
		Rows:     m.board.Rows(),
		LastMove: m.lastMove,
		Terminal: m.terminal,
	}
}
