package rules

import (
	"fmt"

	"github.com/trigammon/trigammon-server-go/internal/game/board"
	"github.com/trigammon/trigammon-server-go/internal/game/dice"
)

// MaxPips is the largest ordinary distance a single die can cover.
const MaxPips = dice.Faces

// LegalityChecker validates moves against the current game state.
type LegalityChecker struct {
	gameState GameStateAccessor
}

// GameStateAccessor provides access to game state needed for legality checks.
type GameStateAccessor interface {
	// Board returns the live board
	Board() *board.Board
	// Dice returns the live dice of the current turn
	Dice() dice.Set
	// ColorToMove returns the color whose turn it is
	ColorToMove() board.Color
	// CanRemove reports whether c may bear off
	CanRemove(c board.Color) bool
}

// Violation identifies the rule a move broke.
type Violation int

const (
	ViolationNone Violation = iota
	ViolationUndefined
	ViolationOutOfRange
	ViolationSamePoint
	ViolationTooFar
	ViolationEmptySource
	ViolationWrongColor
	ViolationBlocked
	ViolationDirection
	ViolationEntryQuadrant
	ViolationMustEnter
	ViolationNoDie
	ViolationCannotBearOff
	ViolationNotInitialized
)

var violationNames = map[Violation]string{
	ViolationNone:           "NONE",
	ViolationUndefined:      "UNDEFINED",
	ViolationOutOfRange:     "OUT_OF_RANGE",
	ViolationSamePoint:      "SAME_POINT",
	ViolationTooFar:         "TOO_FAR",
	ViolationEmptySource:    "EMPTY_SOURCE",
	ViolationWrongColor:     "WRONG_COLOR",
	ViolationBlocked:        "BLOCKED",
	ViolationDirection:      "DIRECTION",
	ViolationEntryQuadrant:  "ENTRY_QUADRANT",
	ViolationMustEnter:      "MUST_ENTER",
	ViolationNoDie:          "NO_DIE",
	ViolationCannotBearOff:  "CANNOT_BEAR_OFF",
	ViolationNotInitialized: "NOT_INITIALIZED",
}

func (v Violation) String() string {
	if name, ok := violationNames[v]; ok {
		return name
	}
	return fmt.Sprintf("VIOLATION_%d", int(v))
}

// LegalityResult represents the result of a legality check.
type LegalityResult struct {
	Legal     bool
	Violation Violation
	Reason    string
	Details   map[string]string
}

func illegal(v Violation, reason string, from, to int) LegalityResult {
	return LegalityResult{
		Legal:     false,
		Violation: v,
		Reason:    reason,
		Details: map[string]string{
			"from": fmt.Sprintf("%d", from),
			"to":   fmt.Sprintf("%d", to),
		},
	}
}

// NewLegalityChecker creates a new legality checker.
func NewLegalityChecker(gameState GameStateAccessor) *LegalityChecker {
	return &LegalityChecker{
		gameState: gameState,
	}
}

// Check reports whether the color to move may move one checker from from to
// to with one of the unused dice. It never mutates the board or the dice.
func (lc *LegalityChecker) Check(from, to int) LegalityResult {
	if lc == nil || lc.gameState == nil || lc.gameState.Board() == nil {
		return illegal(ViolationNotInitialized, "Legality checker not initialized", from, to)
	}
	color := lc.gameState.ColorToMove()
	return evaluate(lc.gameState.Board(), lc.gameState.Dice(), color, lc.gameState.CanRemove(color), from, to)
}

// CheckDie is Check restricted to the die at index idx of the live dice: the
// move must be legal with that die alone.
func (lc *LegalityChecker) CheckDie(from, to, idx int) LegalityResult {
	if lc == nil || lc.gameState == nil || lc.gameState.Board() == nil {
		return illegal(ViolationNotInitialized, "Legality checker not initialized", from, to)
	}
	set := lc.gameState.Dice()
	if idx < 0 || idx >= len(set) || set[idx].Used {
		return illegal(ViolationNoDie, "The chosen die is not available", from, to)
	}
	color := lc.gameState.ColorToMove()
	return evaluate(lc.gameState.Board(), dice.New(set[idx].Value), color, lc.gameState.CanRemove(color), from, to)
}

// IsAllowed is Check reduced to its verdict.
func (lc *LegalityChecker) IsAllowed(from, to int) bool {
	return lc.Check(from, to).Legal
}

func evaluate(b *board.Board, set dice.Set, color board.Color, canRemove bool, from, to int) LegalityResult {
	if from == board.NoPoint || to == board.NoPoint {
		return illegal(ViolationUndefined, "Coordinates are undefined", from, to)
	}

	entering := from == board.PendingSlot(color)
	bearingOff := to == board.RemovedSlot(color)

	if !(board.IsOnBoard(from) || entering) || !(board.IsOnBoard(to) || bearingOff) {
		return illegal(ViolationOutOfRange, "Coordinates are outside the board", from, to)
	}

	if from == to {
		return illegal(ViolationSamePoint, "Source and destination are the same point", from, to)
	}

	if board.IsOnBoard(from) && board.IsOnBoard(to) && abs(to-from) > MaxPips {
		return illegal(ViolationTooFar, fmt.Sprintf("Distance %d exceeds %d pips", abs(to-from), MaxPips), from, to)
	}

	if b.CountAt(from) == 0 {
		return illegal(ViolationEmptySource, "Source holds no checkers", from, to)
	}

	if b.ColorAt(from) != color {
		return illegal(ViolationWrongColor, fmt.Sprintf("Source belongs to %s, %s is to move", b.ColorAt(from), color), from, to)
	}

	if board.IsOnBoard(to) && b.ColorAt(to) == color.Opponent() && b.HasAtLeast(to, 2) {
		return illegal(ViolationBlocked, "Destination is blocked", from, to)
	}

	if board.IsOnBoard(from) && board.IsOnBoard(to) && (to-from)*board.Direction(color) <= 0 {
		return illegal(ViolationDirection, fmt.Sprintf("%s cannot move in that direction", color), from, to)
	}

	if entering && !board.InEntry(color, to) {
		return illegal(ViolationEntryQuadrant, "Entering checker must land in the entry quadrant", from, to)
	}

	if !entering && b.Pending(color) > 0 {
		return illegal(ViolationMustEnter, "Pending checkers must enter first", from, to)
	}

	if bearingOff && !canRemove {
		return illegal(ViolationCannotBearOff, "Not every checker is home", from, to)
	}

	if matchDie(b, color, from, to, set) < 0 {
		return illegal(ViolationNoDie, "No unused die matches the move", from, to)
	}

	return LegalityResult{
		Legal:  true,
		Reason: "All legality checks passed",
	}
}

// MatchDie returns the index of the die a move of color from from to to
// would consume, or -1. An exact distance is preferred; a bear-off may use the
// smallest larger die once no checker of color stands behind from in its home.
func MatchDie(b *board.Board, color board.Color, from, to int, set dice.Set) int {
	return matchDie(b, color, from, to, set)
}

func matchDie(b *board.Board, color board.Color, from, to int, set dice.Set) int {
	var need int
	switch {
	case from == board.PendingSlot(color) && board.IsOnBoard(to):
		need = board.EntryDistance(color, to)
	case to == board.RemovedSlot(color) && board.IsOnBoard(from):
		need = board.BearOffDistance(color, from)
	case board.IsOnBoard(from) && board.IsOnBoard(to):
		need = abs(to - from)
	default:
		return -1
	}

	for i, d := range set {
		if !d.Used && d.Value == need {
			return i
		}
	}

	if to != board.RemovedSlot(color) || !board.InHome(color, from) || hasCheckerBehind(b, color, from) {
		return -1
	}

	best := -1
	for i, d := range set {
		if d.Used || d.Value <= need {
			continue
		}
		if best < 0 || d.Value < set[best].Value {
			best = i
		}
	}
	return best
}

// hasCheckerBehind reports whether color has a checker inside its home
// quadrant farther from the edge than from.
func hasCheckerBehind(b *board.Board, color board.Color, from int) bool {
	lo, hi := board.HomeRange(color)
	if color == board.Black {
		lo = from + 1
	} else {
		hi = from - 1
	}
	for p := lo; p <= hi; p++ {
		if b.ColorAt(p) == color {
			return true
		}
	}
	return false
}

// Target returns the destination of a checker of color leaving from with a
// die of value: the entry point for a pending checker, the removed slot when
// the move passes the edge, else the ordinary point.
func Target(color board.Color, from, value int) int {
	if from == board.PendingSlot(color) {
		return board.EntryPoint(color, value)
	}
	if !board.IsOnBoard(from) {
		return board.NoPoint
	}
	to := from + value*board.Direction(color)
	if !board.IsOnBoard(to) {
		return board.RemovedSlot(color)
	}
	return to
}

// DiceAvailable reports whether the color to move has at least one legal move
// using exactly one die of value.
func (lc *LegalityChecker) DiceAvailable(value int) bool {
	if lc == nil || lc.gameState == nil || lc.gameState.Board() == nil {
		return false
	}
	color := lc.gameState.ColorToMove()
	return diceAvailable(lc.gameState.Board(), color, lc.gameState.CanRemove(color), value)
}

func diceAvailable(b *board.Board, color board.Color, canRemove bool, value int) bool {
	single := dice.New(value)

	if b.Pending(color) > 0 {
		pending := board.PendingSlot(color)
		return evaluate(b, single, color, canRemove, pending, Target(color, pending, value)).Legal
	}

	for p := 0; p < board.Width; p++ {
		if b.ColorAt(p) != color {
			continue
		}
		if evaluate(b, single, color, canRemove, p, Target(color, p, value)).Legal {
			return true
		}
	}
	return false
}

// RefreshAllowed recomputes the Allowed flag of every die in set, which must
// be the live dice of the accessor. Used dice are never allowed. It returns
// true iff an unused allowed die remains.
func (lc *LegalityChecker) RefreshAllowed(set dice.Set) bool {
	playable := false
	for i := range set {
		if set[i].Used {
			set[i].Allowed = false
			continue
		}
		set[i].Allowed = lc.DiceAvailable(set[i].Value)
		playable = playable || set[i].Allowed
	}
	return playable
}

// ComputeCanRemove reports whether color has no pending checker and no
// checker outside its home quadrant.
func ComputeCanRemove(b *board.Board, color board.Color) bool {
	if b.Pending(color) > 0 {
		return false
	}
	for p := 0; p < board.Width; p++ {
		if b.ColorAt(p) == color && !board.InHome(color, p) {
			return false
		}
	}
	return true
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
