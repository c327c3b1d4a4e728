// Lobby registry
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

// Package lobby is the process-wide registry of connected clients,
// pending challenges and live matches. Every mutation of those three
// collections serializes on a single mutex, generalizing the
// teacher's channel-serialized queueManager into the single logical
// critical region this specification calls for.
package lobby

import (
	"errors"
	"io"
	"strings"
	"sync"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/Nhom4-LTM-UDM17/caro-server/internal/client"
	"github.com/Nhom4-LTM-UDM17/caro-server/internal/match"
	"github.com/Nhom4-LTM-UDM17/caro-server/internal/wire"
)

// Errors surfaced to the acting client as "error" frames.
var (
	ErrInvalidName          = errors.New("name must be 1-50 characters")
	ErrNameInUse            = errors.New("name already in use")
	ErrOpponentNotFound     = errors.New("no such opponent is connected")
	ErrSelfChallenge        = errors.New("you cannot challenge yourself")
	ErrAlreadyInMatch       = errors.New("you are already in a match")
	ErrOpponentInMatch      = errors.New("opponent is already in a match")
	ErrOpponentOffline      = errors.New("challenger is no longer connected")
	ErrChallengeAlreadySent = errors.New("a challenge is already pending")
	ErrNoInvite             = errors.New("no pending invite from that player")
)

// HistorySaver persists a finished match record; satisfied by
// *internal/history.Store. Declared here, not imported from there, so
// that history can depend on lobby's neighbors without a cycle back.
type HistorySaver interface {
	Save(match.Record)
}

// ChangeFunc is invoked after any mutation of the connected-client
// set, so a broadcaster can coalesce a "user_list" fan-out. It must
// not block or re-enter the Lobby.
type ChangeFunc func()

type pairKey struct {
	challenger, target string
}

// Lobby holds the three collections named by the specification: the
// connected-name registry, the pending-challenge set, and the live
// match registry.
type Lobby struct {
	mu       sync.Mutex
	clients  map[string]*client.Client
	pending  map[pairKey]struct{}
	matches  map[string]*match.Match
	onChange ChangeFunc
	history  HistorySaver
	log      *zap.Logger
}

// New returns an empty Lobby. Use SetOnChange and SetHistory to wire
// in the broadcaster and the history store once they exist.
func New(log *zap.Logger) *Lobby {
	return &Lobby{
		clients: make(map[string]*client.Client),
		pending: make(map[pairKey]struct{}),
		matches: make(map[string]*match.Match),
		log:     log,
	}
}

// SetOnChange registers the callback invoked after the connected-name
// set changes.
func (l *Lobby) SetOnChange(fn ChangeFunc) { l.onChange = fn }

// SetHistory registers the store used to persist finished matches.
func (l *Lobby) SetHistory(h HistorySaver) { l.history = h }

func (l *Lobby) notify() {
	if l.onChange != nil {
		l.onChange()
	}
}

// Login validates and registers name, returning a new Client bound to
// wc. It fails with ErrInvalidName if name is empty or too long after
// trimming, or ErrNameInUse if a client with that name is already
// connected.
func (l *Lobby) Login(name string, wc io.WriteCloser) (*client.Client, error) {
	name = strings.TrimSpace(name)
	if name == "" || utf8.RuneCountInString(name) > wire.MaxName {
		return nil, ErrInvalidName
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.clients[name]; ok {
		return nil, ErrNameInUse
	}

	cli := client.New(name, wc)
	l.clients[name] = cli
	l.notify()
	return cli, nil
}

// Logout removes cli from the connected set, drops every pending
// challenge it was party to, and forfeits its in-progress match, if
// any.
func (l *Lobby) Logout(cli *client.Client) {
	l.mu.Lock()
	delete(l.clients, cli.Name)
	for key := range l.pending {
		if key.challenger == cli.Name || key.target == cli.Name {
			delete(l.pending, key)
		}
	}
	l.mu.Unlock()

	if m := cli.Match(); m != nil {
		m.OnDisconnect(cli.Name)
	}
	l.notify()
}

// Names returns a snapshot of the currently connected display names.
func (l *Lobby) Names() []string {
	l.mu.Lock()
	defer l.mu.Unlock()

	names := make([]string, 0, len(l.clients))
	for name := range l.clients {
		names = append(names, name)
	}
	return names
}

// Clients returns a snapshot of the currently connected clients, for
// the broadcaster to fan out a "user_list" frame to.
func (l *Lobby) Clients() []*client.Client {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]*client.Client, 0, len(l.clients))
	for _, cli := range l.clients {
		out = append(out, cli)
	}
	return out
}

// Matches returns a snapshot of the currently live matches, for the
// observer component.
func (l *Lobby) Matches() []*match.Match {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]*match.Match, 0, len(l.matches))
	for _, m := range l.matches {
		out = append(out, m)
	}
	return out
}

// MatchByID returns the live match with the given id, for the
// observer's per-subscription board stream.
func (l *Lobby) MatchByID(id string) (*match.Match, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	m, ok := l.matches[id]
	return m, ok
}

// Challenge records a challenge from "from" to target and notifies
// both sides.
func (l *Lobby) Challenge(from *client.Client, target string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if from.Name == target {
		return ErrSelfChallenge
	}
	targetCli, ok := l.clients[target]
	if !ok {
		return ErrOpponentNotFound
	}
	if from.InMatch() {
		return ErrAlreadyInMatch
	}
	if targetCli.InMatch() {
		return ErrOpponentInMatch
	}
	key := pairKey{challenger: from.Name, target: target}
	if _, ok := l.pending[key]; ok {
		return ErrChallengeAlreadySent
	}

	l.pending[key] = struct{}{}
	targetCli.Send(wire.Message(wire.TypeInvite, map[string]interface{}{"from": from.Name}))
	from.Send(wire.Message(wire.TypeChallengeSent, map[string]interface{}{"to": target}))
	return nil
}

// Accept accepts a pending challenge from challengerName, creating
// and starting a Match with the challenger as X and actor as O.
func (l *Lobby) Accept(actor *client.Client, challengerName string) (*match.Match, error) {
	l.mu.Lock()

	key := pairKey{challenger: challengerName, target: actor.Name}
	if _, ok := l.pending[key]; !ok {
		l.mu.Unlock()
		return nil, ErrNoInvite
	}
	challenger, ok := l.clients[challengerName]
	if !ok {
		l.mu.Unlock()
		return nil, ErrOpponentOffline
	}
	if actor.InMatch() || challenger.InMatch() {
		l.mu.Unlock()
		return nil, ErrAlreadyInMatch
	}

	for k := range l.pending {
		if k.challenger == actor.Name || k.target == actor.Name ||
			k.challenger == challengerName || k.target == challengerName {
			delete(l.pending, k)
		}
	}

	m := match.New(challenger, actor, l.finishMatch, l.log)
	l.matches[m.ID()] = m
	challenger.SetMatch(m)
	actor.SetMatch(m)
	l.mu.Unlock()

	m.Start()
	return m, nil
}

// finishMatch removes a terminated match from the registry and hands
// its record to the history store, if one is configured.
func (l *Lobby) finishMatch(rec match.Record) {
	l.mu.Lock()
	delete(l.matches, rec.MatchID)
	l.mu.Unlock()

	if l.history != nil {
		l.history.Save(rec)
	}
}
