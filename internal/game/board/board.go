// Package board holds the positional state of a trigammon game: 24 playable
// points plus, per color, a pending (bar) slot and a removed (borne-off) slot.
//
// Board is a pure state container. Mutators assume the caller already checked
// the move; they only keep the per-point invariant that a point with no
// checkers has no color.
package board

import (
	"fmt"
)

const (
	// Width is the number of playable points.
	Width = 24
	// QuadrantSize is the number of points in a home or entry quadrant.
	QuadrantSize = Width / 4
	// CheckersPerColor is the number of checkers each color owns.
	CheckersPerColor = 15
)

// Reserved indices outside the playable range 0..Width-1.
const (
	NoPoint      = -1 // undefined coordinate
	PendingBlack = 100
	PendingWhite = 101
	RemovedBlack = 102
	RemovedWhite = 103
)

// Color identifies the owner of a point.
type Color int

const (
	Empty Color = iota
	White
	Black
)

var colorNames = map[Color]string{
	Empty: "EMPTY",
	White: "WHITE",
	Black: "BLACK",
}

func (c Color) String() string {
	if name, ok := colorNames[c]; ok {
		return name
	}
	return fmt.Sprintf("COLOR_%d", int(c))
}

// Opponent returns the other playing color. Empty has no opponent.
func (c Color) Opponent() Color {
	switch c {
	case White:
		return Black
	case Black:
		return White
	default:
		return Empty
	}
}

// Valid reports whether c is one of the two playing colors.
func (c Color) Valid() bool {
	return c == White || c == Black
}

func (c Color) slot() int {
	if c == Black {
		return 1
	}
	return 0
}

// ParseColor converts a lower- or upper-case color name to a Color.
func ParseColor(name string) (Color, error) {
	switch name {
	case "white", "WHITE":
		return White, nil
	case "black", "BLACK":
		return Black, nil
	case "", "empty", "EMPTY", "none":
		return Empty, nil
	default:
		return Empty, fmt.Errorf("unknown color %q", name)
	}
}

// Point is the state of one playable point.
type Point struct {
	Color Color
	Count int
}

// Board is the full positional state.
type Board struct {
	points  [Width]Point
	pending [2]int
	removed [2]int
}

// startingLayout is the fixed opening position.
var startingLayout = []struct {
	point int
	color Color
	count int
}{
	{0, White, 2},
	{5, Black, 5},
	{7, Black, 3},
	{11, White, 5},
	{12, Black, 5},
	{16, White, 3},
	{18, White, 5},
	{23, Black, 2},
}

// New returns a board in the starting layout.
func New() *Board {
	b := &Board{}
	b.Reset()
	return b
}

// NewEmpty returns a board with no checkers at all. It is meant for building
// positions point by point with Set.
func NewEmpty() *Board {
	return &Board{}
}

// Reset restores the starting layout in place.
func (b *Board) Reset() {
	*b = Board{}
	for _, entry := range startingLayout {
		b.points[entry.point] = Point{Color: entry.color, Count: entry.count}
	}
}

// Clone returns a deep copy.
func (b *Board) Clone() *Board {
	cp := *b
	return &cp
}

// Equal reports whether two boards hold the same position.
func (b *Board) Equal(other *Board) bool {
	if b == nil || other == nil {
		return b == other
	}
	return *b == *other
}

// IsOnBoard reports whether p is a playable point.
func IsOnBoard(p int) bool {
	return p >= 0 && p < Width
}

// IsPending reports whether p is one of the pending slots.
func IsPending(p int) bool {
	return p == PendingWhite || p == PendingBlack
}

// IsRemoved reports whether p is one of the removed slots.
func IsRemoved(p int) bool {
	return p == RemovedWhite || p == RemovedBlack
}

// IsValid reports whether p addresses a point or a reserved slot.
func IsValid(p int) bool {
	return IsOnBoard(p) || IsPending(p) || IsRemoved(p)
}

// PendingSlot returns the pending slot index of c.
func PendingSlot(c Color) int {
	if c == Black {
		return PendingBlack
	}
	return PendingWhite
}

// RemovedSlot returns the removed slot index of c.
func RemovedSlot(c Color) int {
	if c == Black {
		return RemovedBlack
	}
	return RemovedWhite
}

// SlotOwner returns the color a reserved slot belongs to, or Empty for
// playable points and unknown indices.
func SlotOwner(p int) Color {
	switch p {
	case PendingWhite, RemovedWhite:
		return White
	case PendingBlack, RemovedBlack:
		return Black
	default:
		return Empty
	}
}

// Direction is +1 for the color moving towards higher indices and -1 otherwise.
func Direction(c Color) int {
	if c == Black {
		return -1
	}
	return 1
}

// HomeRange returns the inclusive bounds of the quadrant c bears off from.
func HomeRange(c Color) (int, int) {
	if c == Black {
		return 0, QuadrantSize - 1
	}
	return Width - QuadrantSize, Width - 1
}

// EntryRange returns the inclusive bounds of the quadrant c re-enters into.
func EntryRange(c Color) (int, int) {
	if c == Black {
		return Width - QuadrantSize, Width - 1
	}
	return 0, QuadrantSize - 1
}

// InHome reports whether p lies in the home quadrant of c.
func InHome(c Color, p int) bool {
	lo, hi := HomeRange(c)
	return p >= lo && p <= hi
}

// InEntry reports whether p lies in the entry quadrant of c.
func InEntry(c Color, p int) bool {
	lo, hi := EntryRange(c)
	return p >= lo && p <= hi
}

// EntryPoint returns the point a checker of c enters on with a die of value.
func EntryPoint(c Color, value int) int {
	if c == Black {
		return Width - value
	}
	return value - 1
}

// EntryDistance is the die value needed to enter a checker of c on point to.
func EntryDistance(c Color, to int) int {
	if c == Black {
		return Width - to
	}
	return to + 1
}

// BearOffDistance is the exact die value that carries a checker of c from
// point from off the board.
func BearOffDistance(c Color, from int) int {
	if c == Black {
		return from + 1
	}
	return Width - from
}

// ColorAt returns the owner of p. Reserved slots report their owner while
// they hold checkers.
func (b *Board) ColorAt(p int) Color {
	switch {
	case IsOnBoard(p):
		return b.points[p].Color
	case IsPending(p), IsRemoved(p):
		if b.CountAt(p) > 0 {
			return SlotOwner(p)
		}
	}
	return Empty
}

// CountAt returns the number of checkers on p.
func (b *Board) CountAt(p int) int {
	switch {
	case IsOnBoard(p):
		return b.points[p].Count
	case IsPending(p):
		return b.pending[SlotOwner(p).slot()]
	case IsRemoved(p):
		return b.removed[SlotOwner(p).slot()]
	}
	return 0
}

// IsEmpty reports whether p holds no checkers.
func (b *Board) IsEmpty(p int) bool {
	return b.CountAt(p) == 0
}

// HasAtLeast reports whether p holds n or more checkers.
func (b *Board) HasAtLeast(p, n int) bool {
	return b.CountAt(p) >= n
}

// RemoveOne takes a checker off p. The point loses its color when its last
// checker leaves.
func (b *Board) RemoveOne(p int) {
	switch {
	case IsOnBoard(p):
		pt := &b.points[p]
		if pt.Count == 0 {
			return
		}
		pt.Count--
		if pt.Count == 0 {
			pt.Color = Empty
		}
	case IsPending(p):
		if idx := SlotOwner(p).slot(); b.pending[idx] > 0 {
			b.pending[idx]--
		}
	case IsRemoved(p):
		if idx := SlotOwner(p).slot(); b.removed[idx] > 0 {
			b.removed[idx]--
		}
	}
}

// AddOne puts a checker of color on p. A playable point takes the incoming
// color, which is how a capture flips ownership. Reserved slots always belong
// to their own color.
func (b *Board) AddOne(p int, color Color) {
	switch {
	case IsOnBoard(p):
		pt := &b.points[p]
		pt.Count++
		pt.Color = color
	case IsPending(p):
		b.pending[SlotOwner(p).slot()]++
	case IsRemoved(p):
		b.removed[SlotOwner(p).slot()]++
	}
}

// Capture moves the occupant of p to its color's pending slot.
func (b *Board) Capture(p int) {
	color := b.ColorAt(p)
	if !color.Valid() || !IsOnBoard(p) {
		return
	}
	b.AddOne(PendingSlot(color), color)
	b.RemoveOne(p)
}

// Set overwrites a point or slot. It bypasses every invariant and exists for
// constructing positions; use New for real games.
func (b *Board) Set(p int, color Color, count int) {
	if count < 0 {
		count = 0
	}
	switch {
	case IsOnBoard(p):
		if count == 0 {
			color = Empty
		}
		b.points[p] = Point{Color: color, Count: count}
	case IsPending(p):
		b.pending[SlotOwner(p).slot()] = count
	case IsRemoved(p):
		b.removed[SlotOwner(p).slot()] = count
	}
}

// Point returns the state of playable point p.
func (b *Board) Point(p int) Point {
	if !IsOnBoard(p) {
		return Point{}
	}
	return b.points[p]
}

// Points returns a copy of the playable points.
func (b *Board) Points() [Width]Point {
	return b.points
}

// Pending returns the number of checkers of c waiting to re-enter.
func (b *Board) Pending(c Color) int {
	if !c.Valid() {
		return 0
	}
	return b.pending[c.slot()]
}

// Removed returns the number of checkers of c borne off.
func (b *Board) Removed(c Color) int {
	if !c.Valid() {
		return 0
	}
	return b.removed[c.slot()]
}

// OnBoard returns the number of checkers of c on playable points.
func (b *Board) OnBoard(c Color) int {
	total := 0
	for _, pt := range b.points {
		if pt.Color == c {
			total += pt.Count
		}
	}
	return total
}

// Total returns every checker of c wherever it is.
func (b *Board) Total(c Color) int {
	return b.OnBoard(c) + b.Pending(c) + b.Removed(c)
}

// Validate checks checker conservation and the empty-point invariant.
func (b *Board) Validate() error {
	for p, pt := range b.points {
		if pt.Count < 0 {
			return fmt.Errorf("point %d has negative count %d", p, pt.Count)
		}
		if (pt.Count == 0) != (pt.Color == Empty) {
			return fmt.Errorf("point %d has count %d and color %s", p, pt.Count, pt.Color)
		}
	}
	for _, c := range []Color{White, Black} {
		if total := b.Total(c); total != CheckersPerColor {
			return fmt.Errorf("%s has %d checkers, want %d", c, total, CheckersPerColor)
		}
	}
	return nil
}
