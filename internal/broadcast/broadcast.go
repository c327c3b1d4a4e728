// Presence broadcaster
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

// Package broadcast fans the lobby's connected-name list out to every
// connected client as a "user_list" frame, coalescing rapid-fire
// membership changes into a single send.
package broadcast

import (
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Nhom4-LTM-UDM17/caro-server/internal/client"
	"github.com/Nhom4-LTM-UDM17/caro-server/internal/wire"
)

// Debounce is the window within which repeated membership changes
// collapse into one send.
const Debounce = 100 * time.Millisecond

// Source supplies the data a Broadcaster fans out; *lobby.Lobby
// satisfies it without broadcast needing to import lobby's internals
// beyond this interface.
type Source interface {
	Names() []string
	Clients() []*client.Client
}

// Broadcaster schedules a debounced "user_list" send whenever Signal
// is called, and suppresses the send entirely if the name list has
// not actually changed since the last one.
type Broadcaster struct {
	source Source
	log    *zap.Logger

	mu       sync.Mutex
	timer    *time.Timer
	lastSent []string
}

// New returns a Broadcaster reading from source.
func New(source Source, log *zap.Logger) *Broadcaster {
	return &Broadcaster{source: source, log: log}
}

// Signal requests a "user_list" fan-out. Multiple calls within
// Debounce of each other produce a single send.
func (b *Broadcaster) Signal() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.timer != nil {
		return
	}
	b.timer = time.AfterFunc(Debounce, b.flush)
}

func (b *Broadcaster) flush() {
	b.mu.Lock()
	b.timer = nil
	names := b.source.Names()
	sort.Strings(names)
	if sameNames(names, b.lastSent) {
		b.mu.Unlock()
		return
	}
	b.lastSent = names
	b.mu.Unlock()

	frame := wire.Message(wire.TypeUserList, map[string]interface{}{"users": names})
	for _, cli := range b.source.Clients() {
		// Delivery is independent and best-effort per recipient: a
		// slow or closing client's Send never blocks this loop.
		if err := cli.Send(frame); err != nil && b.log != nil {
			b.log.Debug("user_list delivery failed", zap.String("client", cli.Name), zap.Error(err))
		}
	}
}

func sameNames(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
