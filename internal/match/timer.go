// Timer service
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

package match

import (
	"sync"
	"time"

	"github.com/Nhom4-LTM-UDM17/caro-server/internal/board"
	"github.com/Nhom4-LTM-UDM17/caro-server/internal/wire"
)

// Timer arms a single outstanding deadline for a Match, delivering a
// timerFire event to the match's run goroutine via time.AfterFunc, in
// the manner of the teacher's time.NewTimer/Reset turn clock. At most
// one timer is armed at a time; arming replaces any previous one.
// Cancellation is best-effort: a fire already in flight when Cancel
// runs is still delivered, and the match filters it out using the
// (turn, deadline) pair recorded at arm time.
type Timer struct {
	mu sync.Mutex
	t  *time.Timer

	fires chan<- timerFire
	stop  <-chan struct{}
}

// NewTimer returns a Timer that delivers fires on ch, and that stops
// trying to deliver once stop is closed.
func NewTimer(ch chan timerFire, stop <-chan struct{}) *Timer {
	return &Timer{fires: ch, stop: stop}
}

// Arm schedules a fire for (turn, deadline) to be delivered after
// THINK_TIME has elapsed from now, replacing any timer previously
// armed on this Match.
func (tm *Timer) Arm(turn board.Symbol, deadline time.Time) {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	if tm.t != nil {
		tm.t.Stop()
	}
	tm.t = time.AfterFunc(wire.ThinkTime*time.Second, func() {
		select {
		case tm.fires <- timerFire{turn: turn, deadline: deadline}:
		case <-tm.stop:
		}
	})
}

// Cancel aborts the currently armed timer, if any. It does not
// guarantee the fire will not still be delivered; the match's
// staleness check is what actually suppresses a stale fire.
func (tm *Timer) Cancel() {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	if tm.t != nil {
		tm.t.Stop()
		tm.t = nil
	}
}
