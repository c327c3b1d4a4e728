// Read-only observer interface
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

// Package observer exposes read-only snapshots of the lobby and its
// live matches, both as plain Go accessors and as a streaming
// websocket endpoint for operator tooling. No frame ever received on
// the websocket endpoint is interpreted as a game command; the only
// inbound message this package understands is a subscription request
// naming which match's board to stream.
package observer

import (
	"encoding/json"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/Nhom4-LTM-UDM17/caro-server/internal/board"
	"github.com/Nhom4-LTM-UDM17/caro-server/internal/match"
)

// Frame types on the observer endpoint. These are deliberately kept
// out of internal/wire: this is not part of the player-facing wire
// protocol, only an operator-tooling add-on layered over it.
const (
	typeLobby     = "lobby"
	typeBoard     = "board"
	typeSubscribe = "subscribe"
)

// lobbyPollInterval and boardPollInterval bound how quickly a change
// in the lobby or a subscribed match's board reaches the stream. Both
// snapshot accessors are already internally consistent (no torn
// reads); polling them at a short interval approximates "on every
// change" without requiring either the Lobby or the Match to carry a
// dedicated observer subscriber list of their own.
const (
	lobbyPollInterval = 250 * time.Millisecond
	boardPollInterval = 150 * time.Millisecond
)

// Source supplies the data the Hub streams; *lobby.Lobby satisfies it.
type Source interface {
	Names() []string
	Matches() []*match.Match
	MatchByID(id string) (*match.Match, bool)
}

// matchSummary is one entry of a "lobby" frame's match list.
type matchSummary struct {
	MatchID string `json:"match_id"`
	PlayerX string `json:"player_x"`
	PlayerO string `json:"player_o"`
	Turn    string `json:"turn"`
}

type lobbyFrame struct {
	Type    string         `json:"type"`
	Users   []string       `json:"users"`
	Matches []matchSummary `json:"matches"`
}

type lastMoveField struct {
	X      int    `json:"x"`
	Y      int    `json:"y"`
	Symbol string `json:"symbol"`
}

type boardFrame struct {
	Type     string         `json:"type"`
	MatchID  string         `json:"match_id"`
	Turn     string         `json:"turn"`
	Rows     []string       `json:"rows"`
	LastMove *lastMoveField `json:"last_move,omitempty"`
	Terminal bool           `json:"terminal"`
}

// Hub upgrades HTTP connections to the observer websocket stream.
type Hub struct {
	source Source
	log    *zap.Logger
	upg    websocket.Upgrader
}

// NewHub returns a Hub reading from source. The upgrader accepts any
// origin: the endpoint is read-only and carries no credentials, so
// there is nothing for an origin check to protect.
func NewHub(source Source, log *zap.Logger) *Hub {
	return &Hub{
		source: source,
		log:    log,
		upg: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// ServeHTTP implements http.Handler, upgrading the request to a
// websocket connection and running the stream until the client
// disconnects, in the manner of the teacher's web/ws.go upgrader.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upg.Upgrade(w, r, nil)
	if err != nil {
		if h.log != nil {
			h.log.Debug("observer upgrade failed", zap.Error(err))
		}
		return
	}
	defer conn.Close()

	var sub subscription
	done := make(chan struct{})
	go h.readLoop(conn, &sub, done)
	h.writeLoop(conn, &sub, done)
}

// subscription holds the match_id (if any) a connection has asked to
// stream the board of.
type subscription struct {
	mu      sync.Mutex
	matchID string
}

func (s *subscription) set(id string) {
	s.mu.Lock()
	s.matchID = id
	s.mu.Unlock()
}

func (s *subscription) get() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.matchID
}

// readLoop drains inbound websocket messages. The only frame type
// understood is "subscribe"; everything else, including any attempt
// to send a game command, is silently ignored.
func (h *Hub) readLoop(conn *websocket.Conn, sub *subscription, done chan struct{}) {
	defer close(done)
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var msg struct {
			Type    string `json:"type"`
			MatchID string `json:"match_id"`
		}
		if json.Unmarshal(data, &msg) != nil {
			continue
		}
		if msg.Type == typeSubscribe {
			sub.set(msg.MatchID)
		}
	}
}

func (h *Hub) writeLoop(conn *websocket.Conn, sub *subscription, done chan struct{}) {
	lobbyTicker := time.NewTicker(lobbyPollInterval)
	boardTicker := time.NewTicker(boardPollInterval)
	defer lobbyTicker.Stop()
	defer boardTicker.Stop()

	var lastLobby string
	var lastBoard string
	var lastMatchID string

	send := func(v interface{}) bool {
		data, err := json.Marshal(v)
		if err != nil {
			return true
		}
		return conn.WriteMessage(websocket.TextMessage, data) == nil
	}

	initial := h.buildLobbyFrame()
	if encoded, err := json.Marshal(initial); err == nil {
		lastLobby = string(encoded)
	}
	if !send(initial) {
		return
	}

	for {
		select {
		case <-done:
			return
		case <-lobbyTicker.C:
			frame := h.buildLobbyFrame()
			encoded, _ := json.Marshal(frame)
			if string(encoded) == lastLobby {
				continue
			}
			lastLobby = string(encoded)
			if !send(frame) {
				return
			}
		case <-boardTicker.C:
			id := sub.get()
			if id == "" {
				continue
			}
			frame, ok := h.buildBoardFrame(id)
			if !ok {
				continue
			}
			encoded, _ := json.Marshal(frame)
			if id == lastMatchID && string(encoded) == lastBoard {
				continue
			}
			lastMatchID = id
			lastBoard = string(encoded)
			if !send(frame) {
				return
			}
		}
	}
}

func (h *Hub) buildLobbyFrame() lobbyFrame {
	names := h.source.Names()
	sort.Strings(names)

	matches := h.source.Matches()
	summaries := make([]matchSummary, 0, len(matches))
	for _, m := range matches {
		snap := m.Snapshot()
		summaries = append(summaries, matchSummary{
			MatchID: snap.MatchID,
			PlayerX: snap.PlayerX,
			PlayerO: snap.PlayerO,
			Turn:    snap.Turn.String(),
		})
	}
	sort.Slice(summaries, func(i, j int) bool { return summaries[i].MatchID < summaries[j].MatchID })

	return lobbyFrame{Type: typeLobby, Users: names, Matches: summaries}
}

func (h *Hub) buildBoardFrame(id string) (boardFrame, bool) {
	m, ok := h.source.MatchByID(id)
	if !ok {
		return boardFrame{}, false
	}
	snap := m.Snapshot()

	rows := make([]string, board.Size)
	for y := 0; y < board.Size; y++ {
		row := make([]byte, board.Size)
		for x := 0; x < board.Size; x++ {
			sym := snap.Rows[y][x]
			if sym == board.Empty {
				row[x] = '.'
			} else {
				row[x] = byte(sym)
			}
		}
		rows[y] = string(row)
	}

	frame := boardFrame{
		Type:     typeBoard,
		MatchID:  snap.MatchID,
		Turn:     snap.Turn.String(),
		Rows:     rows,
		Terminal: snap.Terminal,
	}
	if snap.LastMove != nil {
		frame.LastMove = &lastMoveField{
			X: snap.LastMove.X, Y: snap.LastMove.Y, Symbol: snap.LastMove.Symbol,
		}
	}
	return frame, true
}
