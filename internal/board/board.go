// Board rules
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
//
// You should have received a copy of the GNU Affero General Public
// License, version 3, along with caro-server. If not, see
// <http://www.gnu.org/licenses/>

// Package board implements the pure, side-effect-free rules of a
// 15x15 five-in-a-row board: legality, win-line discovery and the
// full-board check. Nothing in this package performs I/O or holds a
// lock; callers own serialization.
package board

import "bytes"

// Size is the width and height of the board.
const Size = 15

// WinLength is the number of consecutive same-symbol cells required
// for a win.
const WinLength = 5

// Symbol identifies the occupant of a cell.
type Symbol byte

const (
	Empty Symbol = 0
	X     Symbol = 'X'
	O     Symbol = 'O'
)

// Other returns the opposing symbol. Empty has no opponent and is
// returned unchanged.
func (s Symbol) Other() Symbol {
	switch s {
	case X:
		return O
	case O:
		return X
	default:
		return Empty
	}
}

func (s Symbol) String() string {
	if s == Empty {
		return "."
	}
	return string(rune(s))
}

// Point is a board coordinate, column x and row y, both in [0,Size).
type Point struct {
	X, Y int
}

// Board is a 15x15 grid of cells, addressed [y][x] so that row-major
// iteration reads naturally; all exported functions address cells as
// (x, y) to match the wire protocol's column-then-row convention.
type Board struct {
	cells [Size][Size]Symbol
}

// New returns an empty board.
func New() *Board {
	return &Board{}
}

// InRange reports whether (x, y) addresses a cell of the board.
func InRange(x, y int) bool {
	return x >= 0 && x < Size && y >= 0 && y < Size
}

// IsEmpty returns true iff (x, y) is in range and unoccupied.
func (b *Board) IsEmpty(x, y int) bool {
	if !InRange(x, y) {
		return false
	}
	return b.cells[y][x] == Empty
}

// At returns the symbol occupying (x, y), or Empty if out of range.
func (b *Board) At(x, y int) Symbol {
	if !InRange(x, y) {
		return Empty
	}
	return b.cells[y][x]
}

// Place writes sym into (x, y). The caller must have already checked
// legality; Place does not validate.
func (b *Board) Place(x, y int, sym Symbol) {
	b.cells[y][x] = sym
}

// IsFull returns true iff no cell is empty.
func (b *Board) IsFull() bool {
	for y := 0; y < Size; y++ {
		for x := 0; x < Size; x++ {
			if b.cells[y][x] == Empty {
				return false
			}
		}
	}
	return true
}

// directions enumerates the four axes a five-in-a-row can run along;
// each is checked as a full line (both signs of the step) from the
// just-played cell.
var directions = [4]Point{
	{1, 0},
	{0, 1},
	{1, 1},
	{1, -1},
}

// FindWinLine assumes (x, y) just received sym and returns the
// longest run of sym along one of the four axes that contains (x, y),
// as an ordered list of coordinates running from one end of the run to
// the other. If no axis yields a run of at least WinLength, it returns
// nil. When two axes both qualify, either may be returned.
func FindWinLine(b *Board, x, y int, sym Symbol) []Point {
	if sym == Empty {
		return nil
	}

	for _, d := range directions {
		var run []Point

		// walk backwards to the start of the run along this axis
		sx, sy := x, y
		for b.At(sx-d.X, sy-d.Y) == sym {
			sx -= d.X
			sy -= d.Y
		}

		// walk forwards from the start, collecting the run
		for cx, cy := sx, sy; b.At(cx, cy) == sym; cx, cy = cx+d.X, cy+d.Y {
			run = append(run, Point{cx, cy})
		}

		if len(run) >= WinLength {
			return run
		}
	}

	return nil
}

// String renders the board using '.' for empty cells, one row per
// line, matching the wire protocol's textual convention.
func (b *Board) String() string {
	var buf bytes.Buffer
	for y := 0; y < Size; y++ {
		for x := 0; x < Size; x++ {
			buf.WriteString(b.cells[y][x].String())
		}
		if y != Size-1 {
			buf.WriteByte('\n')
		}
	}
	return buf.String()
}

// Rows returns a snapshot of the board as Size rows of Size symbols,
// for observer/serialization use; mutating the result does not affect
// the board.
func (b *Board) Rows() [Size][Size]Symbol {
	return b.cells
}
