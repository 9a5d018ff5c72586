package rules

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trigammon/trigammon-server-go/internal/game/board"
	"github.com/trigammon/trigammon-server-go/internal/game/dice"
)

// mockGameState implements GameStateAccessor for testing.
type mockGameState struct {
	b         *board.Board
	set       dice.Set
	color     board.Color
	canRemove map[board.Color]bool
}

func newMockGameState(b *board.Board, color board.Color, values ...int) *mockGameState {
	return &mockGameState{
		b:     b,
		set:   dice.New(values...),
		color: color,
		canRemove: map[board.Color]bool{
			board.White: ComputeCanRemove(b, board.White),
			board.Black: ComputeCanRemove(b, board.Black),
		},
	}
}

func (m *mockGameState) Board() *board.Board { return m.b }
func (m *mockGameState) Dice() dice.Set { return m.set }
func (m *mockGameState) ColorToMove() board.Color { return m.color }
func (m *mockGameState) CanRemove(c board.Color) bool { return m.canRemove[c] }

// whitePendingBoard is the starting layout with one white checker from point
// 0 waiting to re-enter.
func whitePendingBoard() *board.Board {
	b := board.New()
	b.Set(0, board.White, 1)
	b.Set(board.PendingWhite, board.White, 1)
	return b
}

// whiteHomeBoard has every white checker on 21 and 23.
func whiteHomeBoard() *board.Board {
	b := board.NewEmpty()
	b.Set(21, board.White, 7)
	b.Set(23, board.White, 8)
	b.Set(5, board.Black, 15)
	return b
}

func TestCheckRejectsEachViolation(t *testing.T) {
	tests := []struct {
		name     string
		b        *board.Board
		dice     []int
		from, to int
		want     Violation
	}{
		{"undefined source", board.New(), []int{5, 3}, board.NoPoint, 3, ViolationUndefined},
		{"undefined destination", board.New(), []int{5, 3}, 0, board.NoPoint, ViolationUndefined},
		{"destination off the index space", board.New(), []int{5, 3}, 0, 30, ViolationOutOfRange},
		{"other color pending slot", board.New(), []int{5, 3}, board.PendingBlack, 2, ViolationOutOfRange},
		{"other color removed slot", board.New(), []int{5, 3}, 18, board.RemovedBlack, ViolationOutOfRange},
		{"same point", board.New(), []int{5, 3}, 0, 0, ViolationSamePoint},
		{"more than six pips", board.New(), []int{5, 3}, 0, 8, ViolationTooFar},
		{"empty source", board.New(), []int{5, 3}, 1, 4, ViolationEmptySource},
		{"enemy source", board.New(), []int{5, 3}, 5, 8, ViolationWrongColor},
		{"blocked destination", board.New(), []int{5, 3}, 0, 5, ViolationBlocked},
		{"backwards move", board.New(), []int{5, 3}, 11, 8, ViolationDirection},
		{"entry outside the entry quadrant", whitePendingBoard(), []int{5, 3}, board.PendingWhite, 9, ViolationEntryQuadrant},
		{"board move while pending", whitePendingBoard(), []int{5, 3}, 11, 14, ViolationMustEnter},
		{"no matching die", board.New(), []int{5, 3}, 0, 1, ViolationNoDie},
		{"no matching die on entry", whitePendingBoard(), []int{5, 3}, board.PendingWhite, 3, ViolationNoDie},
		{"bear-off with checkers outside home", board.New(), []int{6, 3}, 18, board.RemovedWhite, ViolationCannotBearOff},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			state := newMockGameState(tt.b, board.White, tt.dice...)
			result := NewLegalityChecker(state).Check(tt.from, tt.to)
			assert.False(t, result.Legal)
			assert.Equal(t, tt.want, result.Violation, result.Reason)
			assert.NotEmpty(t, result.Reason)
		})
	}
}

func TestCheckAcceptsLegalMoves(t *testing.T) {
	t.Run("ordinary white move", func(t *testing.T) {
		state := newMockGameState(board.New(), board.White, 5, 3)
		result := NewLegalityChecker(state).Check(0, 3)
		assert.True(t, result.Legal, result.Reason)
		assert.Equal(t, ViolationNone, result.Violation)
	})

	t.Run("ordinary black move", func(t *testing.T) {
		state := newMockGameState(board.New(), board.Black, 5, 3)
		assert.True(t, NewLegalityChecker(state).IsAllowed(12, 9))
		assert.False(t, NewLegalityChecker(state).IsAllowed(12, 15))
	})

	t.Run("white entry", func(t *testing.T) {
		state := newMockGameState(whitePendingBoard(), board.White, 5, 3)
		assert.True(t, NewLegalityChecker(state).IsAllowed(board.PendingWhite, 2))
		assert.True(t, NewLegalityChecker(state).IsAllowed(board.PendingWhite, 4))
	})

	t.Run("black entry", func(t *testing.T) {
		b := board.New()
		b.Set(12, board.Black, 4)
		b.Set(board.PendingBlack, board.Black, 1)
		state := newMockGameState(b, board.Black, 6, 2)
		assert.True(t, NewLegalityChecker(state).IsAllowed(board.PendingBlack, 22))
		assert.False(t, NewLegalityChecker(state).IsAllowed(board.PendingBlack, 18), "18 holds five white checkers")
	})

	t.Run("hitting a lone checker", func(t *testing.T) {
		b := board.New()
		b.Set(12, board.Black, 4)
		b.Set(3, board.Black, 1)
		state := newMockGameState(b, board.White, 5, 3)
		assert.True(t, NewLegalityChecker(state).IsAllowed(0, 3))
	})
}

func TestCheckIsPure(t *testing.T) {
	b := board.New()
	state := newMockGameState(b, board.White, 5, 3)
	checker := NewLegalityChecker(state)

	before := b.Checksum()
	diceBefore := state.set.Clone()

	first := checker.Check(0, 3)
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, checker.Check(0, 3))
		checker.Check(0, 5)
		checker.Check(board.PendingWhite, 2)
	}

	assert.Equal(t, before, b.Checksum())
	assert.True(t, diceBefore.Equal(state.set))
}

func TestCheckUninitialized(t *testing.T) {
	var checker *LegalityChecker
	result := checker.Check(0, 3)
	assert.False(t, result.Legal)
	assert.Equal(t, ViolationNotInitialized, result.Violation)
	assert.False(t, NewLegalityChecker(nil).DiceAvailable(3))
}

func TestBearOffGating(t *testing.T) {
	b := whiteHomeBoard()
	state := newMockGameState(b, board.White, 3, 2)
	require.True(t, state.CanRemove(board.White))
	assert.True(t, NewLegalityChecker(state).IsAllowed(21, board.RemovedWhite))

	// One checker outside home.
	b.Set(23, board.White, 7)
	b.Set(12, board.White, 1)
	state = newMockGameState(b, board.White, 3, 2)
	require.False(t, state.CanRemove(board.White))
	result := NewLegalityChecker(state).Check(21, board.RemovedWhite)
	assert.False(t, result.Legal)
	assert.Equal(t, ViolationCannotBearOff, result.Violation)
}

func TestMatchDie(t *testing.T) {
	t.Run("ordinary distance", func(t *testing.T) {
		set := dice.New(5, 3)
		assert.Equal(t, 1, MatchDie(board.New(), board.White, 0, 3, set))
		assert.Equal(t, 0, MatchDie(board.New(), board.White, 0, 5, set))
		assert.Equal(t, -1, MatchDie(board.New(), board.White, 0, 4, set))
	})

	t.Run("used dice are skipped", func(t *testing.T) {
		set := dice.New(3, 3, 3, 3)
		set[0].Used = true
		set[1].Used = true
		assert.Equal(t, 2, MatchDie(board.New(), board.White, 0, 3, set))
	})

	t.Run("entry distance", func(t *testing.T) {
		set := dice.New(6, 2)
		assert.Equal(t, 1, MatchDie(board.New(), board.White, board.PendingWhite, 1, set))
		assert.Equal(t, 0, MatchDie(board.New(), board.Black, board.PendingBlack, 18, set))
	})

	t.Run("exact bear-off preferred", func(t *testing.T) {
		set := dice.New(4, 3)
		assert.Equal(t, 1, MatchDie(whiteHomeBoard(), board.White, 21, board.RemovedWhite, set))
	})

	t.Run("smallest larger die when nothing is behind", func(t *testing.T) {
		set := dice.New(6, 5)
		assert.Equal(t, 1, MatchDie(whiteHomeBoard(), board.White, 21, board.RemovedWhite, set))
	})

	t.Run("no overage with a checker behind", func(t *testing.T) {
		b := whiteHomeBoard()
		b.Set(21, board.White, 6)
		b.Set(19, board.White, 1)
		set := dice.New(6, 4)
		assert.Equal(t, -1, MatchDie(b, board.White, 21, board.RemovedWhite, set))
		assert.Equal(t, 0, MatchDie(b, board.White, 19, board.RemovedWhite, set))
	})

	t.Run("black overage", func(t *testing.T) {
		b := board.NewEmpty()
		b.Set(2, board.Black, 7)
		b.Set(0, board.Black, 8)
		set := dice.New(5, 1)
		assert.Equal(t, 0, MatchDie(b, board.Black, 2, board.RemovedBlack, set))
		assert.Equal(t, 1, MatchDie(b, board.Black, 0, board.RemovedBlack, set))

		b.Set(4, board.Black, 1)
		b.Set(0, board.Black, 7)
		assert.Equal(t, -1, MatchDie(b, board.Black, 2, board.RemovedBlack, set))
	})
}

func TestTarget(t *testing.T) {
	assert.Equal(t, 5, Target(board.White, 0, 5))
	assert.Equal(t, board.RemovedWhite, Target(board.White, 20, 5))
	assert.Equal(t, 9, Target(board.Black, 12, 3))
	assert.Equal(t, board.RemovedBlack, Target(board.Black, 3, 4))
	assert.Equal(t, 2, Target(board.White, board.PendingWhite, 3))
	assert.Equal(t, 21, Target(board.Black, board.PendingBlack, 3))
	assert.Equal(t, board.NoPoint, Target(board.White, board.PendingBlack, 3))
}

func TestRefreshAllowed(t *testing.T) {
	t.Run("blocked entry point", func(t *testing.T) {
		b := whitePendingBoard()
		b.Set(12, board.Black, 3)
		b.Set(2, board.Black, 2)

		state := newMockGameState(b, board.White, 3, 1)
		checker := NewLegalityChecker(state)
		assert.True(t, checker.RefreshAllowed(state.set))
		assert.False(t, state.set[0].Allowed)
		assert.True(t, state.set[1].Allowed)

		state = newMockGameState(b, board.White, 3, 3, 3, 3)
		checker = NewLegalityChecker(state)
		assert.False(t, checker.RefreshAllowed(state.set))
		for _, d := range state.set {
			assert.False(t, d.Allowed)
		}
	})

	t.Run("used dice are never allowed", func(t *testing.T) {
		state := newMockGameState(board.New(), board.White, 5, 3)
		state.set[0].Used = true
		state.set[0].Allowed = true
		checker := NewLegalityChecker(state)
		assert.True(t, checker.RefreshAllowed(state.set))
		assert.False(t, state.set[0].Allowed)
		assert.True(t, state.set[1].Allowed)
	})

	t.Run("overage bear-off counts as available", func(t *testing.T) {
		state := newMockGameState(whiteHomeBoard(), board.White, 6, 5)
		checker := NewLegalityChecker(state)
		assert.True(t, checker.DiceAvailable(6))
		assert.True(t, checker.RefreshAllowed(state.set))
	})
}

func TestComputeCanRemove(t *testing.T) {
	assert.False(t, ComputeCanRemove(board.New(), board.White))
	assert.False(t, ComputeCanRemove(board.New(), board.Black))
	assert.True(t, ComputeCanRemove(whiteHomeBoard(), board.White))
	assert.True(t, ComputeCanRemove(whiteHomeBoard(), board.Black))

	b := whiteHomeBoard()
	b.Set(23, board.White, 7)
	b.Set(board.PendingWhite, board.White, 1)
	assert.False(t, ComputeCanRemove(b, board.White))
}
