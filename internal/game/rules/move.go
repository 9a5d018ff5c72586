package rules

import (
	"errors"
	"fmt"

	"github.com/trigammon/trigammon-server-go/internal/game/board"
	"github.com/trigammon/trigammon-server-go/internal/game/dice"
)

// ErrIllegalMove is returned for any move the rules reject.
var ErrIllegalMove = errors.New("illegal move")

// Outcome describes what a successful move did.
type Outcome struct {
	Color    board.Color
	From     int
	To       int
	Die      int
	Value    int
	Entered  bool
	Captured bool
	BorneOff bool
}

// Apply validates and performs one move of the color to move, mutating the
// accessor's board and dice. Nothing changes when the move is illegal.
// Bear-off flags are left to the caller.
func Apply(gs GameStateAccessor, from, to int) (Outcome, error) {
	result := NewLegalityChecker(gs).Check(from, to)
	if !result.Legal {
		return Outcome{}, rejected(result)
	}
	return perform(gs, from, to, matchDie(gs.Board(), gs.ColorToMove(), from, to, gs.Dice())), nil
}

// ApplyDie is Apply with the die fixed by the caller. The move must be legal
// with die idx alone, and that die is the one consumed.
func ApplyDie(gs GameStateAccessor, from, to, idx int) (Outcome, error) {
	result := NewLegalityChecker(gs).CheckDie(from, to, idx)
	if !result.Legal {
		return Outcome{}, rejected(result)
	}
	return perform(gs, from, to, idx), nil
}

func rejected(result LegalityResult) error {
	return fmt.Errorf("%w: %s (%s)", ErrIllegalMove, result.Reason, result.Violation)
}

func perform(gs GameStateAccessor, from, to, idx int) Outcome {
	b := gs.Board()
	set := gs.Dice()
	color := gs.ColorToMove()

	out := Outcome{
		Color:    color,
		From:     from,
		To:       to,
		Die:      idx,
		Value:    set[idx].Value,
		Entered:  from == board.PendingSlot(color),
		BorneOff: to == board.RemovedSlot(color),
	}

	b.RemoveOne(from)
	if board.IsOnBoard(to) && b.ColorAt(to) == color.Opponent() && b.CountAt(to) == 1 {
		b.Capture(to)
		out.Captured = true
	}
	b.AddOne(to, color)
	set[idx].Used = true

	return out
}

// State is a GameStateAccessor over explicit values. CanRemove is derived
// from the board on every call.
type State struct {
	Position *board.Board
	Set      dice.Set
	Color    board.Color
}

// Board returns the position.
func (s *State) Board() *board.Board {
	return s.Position
}

// Dice returns the dice.
func (s *State) Dice() dice.Set {
	return s.Set
}

// ColorToMove returns the moving color.
func (s *State) ColorToMove() board.Color {
	return s.Color
}

// CanRemove reports whether c may bear off on the current position.
func (s *State) CanRemove(c board.Color) bool {
	return ComputeCanRemove(s.Position, c)
}
