package rules

import (
	"fmt"

	"github.com/trigammon/trigammon-server-go/internal/game/board"
)

// Phase is the state of the current turn.
type Phase int

const (
	PhaseToMove Phase = iota
	PhaseEnded
)

var phaseNames = map[Phase]string{
	PhaseToMove: "TO_MOVE",
	PhaseEnded:  "ENDED",
}

func (p Phase) String() string {
	if name, ok := phaseNames[p]; ok {
		return name
	}
	return fmt.Sprintf("PHASE_%d", int(p))
}

// TurnManager tracks the color to move and turn progression.
type TurnManager struct {
	turnNumber int
	color      board.Color
	phase      Phase
}

// NewTurnManager creates a new turn manager at turn 1 with first to move.
func NewTurnManager(first board.Color) *TurnManager {
	tm := &TurnManager{}
	tm.Reset(first)
	return tm
}

// Reset starts over at turn 1.
func (tm *TurnManager) Reset(first board.Color) {
	tm.turnNumber = 1
	tm.color = first
	tm.phase = PhaseToMove
}

// ColorToMove returns the color whose turn it is.
func (tm *TurnManager) ColorToMove() board.Color {
	return tm.color
}

// TurnNumber returns the current turn number (1-based).
func (tm *TurnManager) TurnNumber() int {
	return tm.turnNumber
}

// Phase returns the state of the current turn.
func (tm *TurnManager) Phase() Phase {
	return tm.phase
}

// EndTurn marks the current turn finished.
func (tm *TurnManager) EndTurn() {
	tm.phase = PhaseEnded
}

// AdvanceTurn hands the turn to the other color and returns it.
func (tm *TurnManager) AdvanceTurn() board.Color {
	tm.turnNumber++
	tm.color = tm.color.Opponent()
	tm.phase = PhaseToMove
	return tm.color
}

// Restore puts the manager back into a recorded state.
func (tm *TurnManager) Restore(turnNumber int, color board.Color, phase Phase) {
	tm.turnNumber = turnNumber
	tm.color = color
	tm.phase = phase
}
