package game_test

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/trigammon/trigammon-server-go/internal/game"
	"github.com/trigammon/trigammon-server-go/internal/game/board"
	"github.com/trigammon/trigammon-server-go/internal/game/dice"
	"github.com/trigammon/trigammon-server-go/internal/game/rules"
)

const (
	testTimeout = 2 * time.Second
	testTick    = 10 * time.Millisecond
)

func newTestEngine(t *testing.T, rolls []int, opts ...game.Option) (*game.Engine, *game.ManualScheduler) {
	t.Helper()
	roller, err := dice.NewSequenceRoller(rolls...)
	require.NoError(t, err)

	scheduler := game.NewManualScheduler()
	all := append([]game.Option{
		game.WithRoller(roller),
		game.WithScheduler(scheduler),
		game.WithGameID("test-game"),
	}, opts...)
	return game.NewEngine(zaptest.NewLogger(t), all...), scheduler
}

func recordEvents(e *game.Engine) *[]rules.Event {
	var seen []rules.Event
	e.Events().Subscribe(func(evt rules.Event) {
		seen = append(seen, evt)
	})
	return &seen
}

func eventTypes(events []rules.Event) []rules.EventType {
	types := make([]rules.EventType, len(events))
	for i, evt := range events {
		types[i] = evt.Type
	}
	return types
}

func TestNewEngineStartsWithWhite(t *testing.T) {
	e, _ := newTestEngine(t, []int{3, 5})

	assert.Equal(t, "test-game", e.GameID())
	assert.Equal(t, board.White, e.ColorToMove())
	assert.True(t, e.Board().Equal(board.New()))
	assert.Equal(t, 1, e.Epoch())
	assert.False(t, e.CanUndo())

	view := e.View()
	assert.Equal(t, 1, view.Turn)
	assert.Equal(t, "WHITE", view.ColorToMove)
	assert.Len(t, view.Points, board.Width)
	assert.Equal(t, board.New().Checksum(), view.Checksum)
	assert.False(t, view.CanEndTurn)
	assert.Empty(t, view.Winner)
}

func TestScenarioNonDoubleRoll(t *testing.T) {
	e, _ := newTestEngine(t, []int{3, 5})

	set := e.Dice()
	require.Len(t, set, 2)
	assert.Equal(t, []int{5, 3}, set.Values())
	assert.True(t, set[0].Allowed)
	assert.True(t, set[1].Allowed)

	require.NoError(t, e.Move(0, 3))

	set = e.Dice()
	assert.False(t, set[0].Used, "the five must stay unused")
	assert.True(t, set[1].Used, "the three must be used")
	b := e.Board()
	assert.Equal(t, board.Point{Color: board.White, Count: 1}, b.Point(0))
	assert.Equal(t, board.Point{Color: board.White, Count: 1}, b.Point(3))
	assert.True(t, e.CanUndo())
}

func TestScenarioDoubleRoll(t *testing.T) {
	e, _ := newTestEngine(t, []int{4, 4})

	set := e.Dice()
	require.Len(t, set, 4)
	for _, d := range set {
		assert.Equal(t, 4, d.Value)
	}
}

func TestScenarioCapture(t *testing.T) {
	e, _ := newTestEngine(t, []int{3, 5})
	events := recordEvents(e)

	b := board.New()
	b.Set(12, board.Black, 4)
	b.Set(3, board.Black, 1)
	require.NoError(t, e.LoadPosition(b, dice.New(5, 3), board.White))

	require.NoError(t, e.Move(0, 3))

	after := e.Board()
	assert.Equal(t, board.Point{Color: board.White, Count: 1}, after.Point(3))
	assert.Equal(t, 1, after.Pending(board.Black))
	assert.Equal(t, board.Black, after.ColorAt(board.PendingBlack))
	require.NoError(t, after.Validate())

	assert.Equal(t, []rules.EventType{rules.EventCheckerHit, rules.EventCheckerMoved}, eventTypes(*events))
	hit := (*events)[0]
	assert.Equal(t, board.Black, hit.Color)
	assert.Equal(t, 3, hit.From)
	assert.Equal(t, board.PendingBlack, hit.To)
}

func TestScenarioEndTurnRefusedWhileMovesRemain(t *testing.T) {
	e, _ := newTestEngine(t, []int{3, 5})
	events := recordEvents(e)

	require.NoError(t, e.Move(0, 3))
	require.True(t, e.CheckMovesAvailable())

	assert.False(t, e.EndTurn())
	assert.Equal(t, board.White, e.ColorToMove())
	assert.True(t, e.CanUndo(), "history must survive a refused end of turn")
	assert.False(t, e.View().CanEndTurn)
	assert.Contains(t, eventTypes(*events), rules.EventEndTurnRefused)
}

func TestScenarioGameOverReinitializes(t *testing.T) {
	e, _ := newTestEngine(t, []int{3, 5, 6, 2})
	events := recordEvents(e)

	b := board.NewEmpty()
	b.Set(23, board.White, 1)
	b.Set(board.RemovedWhite, board.White, 14)
	b.Set(5, board.Black, 5)
	b.Set(7, board.Black, 3)
	b.Set(12, board.Black, 5)
	b.Set(0, board.Black, 2)
	require.NoError(t, e.LoadPosition(b, dice.New(2, 1), board.White))
	epoch := e.Epoch()
	require.True(t, e.CanRemove(board.White))

	require.NoError(t, e.Move(23, board.RemovedWhite))

	assert.True(t, e.Board().Equal(board.New()), "board must return to the starting layout")
	assert.Equal(t, board.White, e.ColorToMove())
	assert.Equal(t, epoch+1, e.Epoch())
	assert.False(t, e.CanUndo())
	assert.Len(t, e.Dice(), 2)

	view := e.View()
	assert.Equal(t, "WHITE", view.Winner)
	assert.Equal(t, 1, view.GamesPlayed)
	assert.Equal(t, 1, view.Wins.White)
	assert.Equal(t, 1, view.Turn)

	types := eventTypes(*events)
	assert.Equal(t, []rules.EventType{
		rules.EventCheckerBorneOff,
		rules.EventGameOver,
		rules.EventGameReset,
		rules.EventDiceRolled,
	}, types)
}

func TestUndoRoundTrip(t *testing.T) {
	e, _ := newTestEngine(t, []int{3, 5})

	beforeBoard := e.Board()
	beforeDice := e.Dice()

	require.NoError(t, e.Move(0, 3))
	require.False(t, e.Board().Equal(beforeBoard))

	assert.True(t, e.Undo())
	assert.True(t, e.Board().Equal(beforeBoard))
	assert.True(t, e.Dice().Equal(beforeDice), "dice flags must be restored, got %s", e.Dice())
	assert.False(t, e.CanUndo())

	assert.False(t, e.Undo(), "undo with empty history is a no-op")
	assert.True(t, e.Board().Equal(beforeBoard))
}

func TestUndoAcrossSeveralMoves(t *testing.T) {
	e, _ := newTestEngine(t, []int{2, 2})
	start := e.Board()

	require.NoError(t, e.Move(0, 2))
	require.NoError(t, e.Move(2, 4))
	require.NoError(t, e.Move(11, 13))

	assert.True(t, e.Undo())
	assert.True(t, e.Undo())
	assert.True(t, e.Undo())
	assert.True(t, e.Board().Equal(start))
	for _, d := range e.Dice() {
		assert.False(t, d.Used)
	}
}

func TestEndTurnAfterAllDiceUsed(t *testing.T) {
	e, _ := newTestEngine(t, []int{3, 5, 2, 1})
	events := recordEvents(e)

	require.NoError(t, e.Move(0, 3))
	require.NoError(t, e.Move(11, 16))
	require.True(t, e.CanEndTurn())

	assert.True(t, e.EndTurn())
	assert.Equal(t, board.Black, e.ColorToMove())
	assert.False(t, e.CanUndo(), "history is cleared at the turn boundary")
	assert.Equal(t, []int{2, 1}, e.Dice().Values())
	assert.Equal(t, 2, e.View().Turn)
	assert.Contains(t, eventTypes(*events), rules.EventTurnEnded)
	assert.Contains(t, eventTypes(*events), rules.EventDiceRolled)
}

func TestIllegalMoveLeavesStateUntouched(t *testing.T) {
	e, _ := newTestEngine(t, []int{3, 5})
	before := e.View()

	err := e.Move(0, 5)
	require.Error(t, err)
	assert.True(t, errors.Is(err, game.ErrIllegalMove))

	assert.Equal(t, before.Checksum, e.View().Checksum)
	assert.Equal(t, before.Dice, e.View().Dice)
	assert.False(t, e.CanUndo())

	result := e.Check(0, 5)
	assert.Equal(t, rules.ViolationBlocked, result.Violation)
	assert.False(t, e.IsAllowed(0, 5))
	assert.True(t, e.IsAllowed(0, 3))
}

func TestForcedReentry(t *testing.T) {
	e, _ := newTestEngine(t, []int{3, 5})

	b := board.New()
	b.Set(0, board.White, 1)
	b.Set(board.PendingWhite, board.White, 1)
	require.NoError(t, e.LoadPosition(b, dice.New(5, 3), board.White))

	err := e.Move(11, 14)
	require.Error(t, err)
	assert.True(t, errors.Is(err, game.ErrIllegalMove))
	assert.Equal(t, rules.ViolationMustEnter, e.Check(11, 14).Violation)

	require.NoError(t, e.Move(board.PendingWhite, 2))
	assert.Equal(t, 0, e.Board().Pending(board.White))
	require.NoError(t, e.Move(11, 16))
}

func TestBearOffGatedByCanRemove(t *testing.T) {
	e, _ := newTestEngine(t, []int{3, 5})

	b := board.NewEmpty()
	b.Set(21, board.White, 6)
	b.Set(23, board.White, 8)
	b.Set(12, board.White, 1)
	b.Set(5, board.Black, 15)
	require.NoError(t, e.LoadPosition(b, dice.New(3, 2), board.White))
	require.False(t, e.CanRemove(board.White))

	err := e.Move(21, board.RemovedWhite)
	require.Error(t, err)
	assert.Equal(t, rules.ViolationCannotBearOff, e.Check(21, board.RemovedWhite).Violation)
	assert.Equal(t, 0, e.Board().Removed(board.White))

	// Bringing the straggler home flips the flag.
	b.Set(12, board.White, 0)
	b.Set(20, board.White, 1)
	require.NoError(t, e.LoadPosition(b, dice.New(3, 2), board.White))
	require.True(t, e.CanRemove(board.White))
	require.NoError(t, e.Move(21, board.RemovedWhite))
	assert.Equal(t, 1, e.Board().Removed(board.White))
}

func TestCanRemoveTracksCaptures(t *testing.T) {
	e, _ := newTestEngine(t, []int{3, 5})

	// Black is entirely home; entering on its lone checker must clear the flag.
	b := board.NewEmpty()
	b.Set(1, board.Black, 1)
	b.Set(0, board.Black, 14)
	b.Set(22, board.White, 14)
	b.Set(board.PendingWhite, board.White, 1)
	require.NoError(t, e.LoadPosition(b, dice.New(2, 1), board.White))
	require.True(t, e.CanRemove(board.Black))

	require.NoError(t, e.Move(board.PendingWhite, 1))
	assert.False(t, e.CanRemove(board.Black))
	assert.Equal(t, 1, e.Board().Pending(board.Black))
}

func TestMoveByDieValue(t *testing.T) {
	e, _ := newTestEngine(t, []int{3, 5})

	require.NoError(t, e.MoveBy(0, 3))
	assert.Equal(t, 1, e.Board().CountAt(3))

	err := e.MoveBy(0, 4)
	assert.True(t, errors.Is(err, game.ErrIllegalMove))
}

func TestMoveByConsumesTheNamedDie(t *testing.T) {
	e, _ := newTestEngine(t, []int{3, 5})

	b := board.NewEmpty()
	b.Set(19, board.White, 1)
	b.Set(22, board.White, 1)
	b.Set(board.RemovedWhite, board.White, 13)
	b.Set(10, board.Black, 15)
	require.NoError(t, e.LoadPosition(b, dice.New(5, 2), board.White))

	t.Run("overage blocked by a rearmost checker", func(t *testing.T) {
		err := e.MoveBy(22, 5)
		require.ErrorIs(t, err, game.ErrIllegalMove)
		assert.Equal(t, 1, e.Board().CountAt(22))
		set := e.Dice()
		assert.False(t, set[0].Used)
		assert.False(t, set[1].Used, "the two must not be spent in place of the five")
	})

	t.Run("value out of range or not rolled", func(t *testing.T) {
		for _, value := range []int{0, -1, 4, 7, 99} {
			assert.ErrorIs(t, e.MoveBy(19, value), game.ErrIllegalMove, "value %d", value)
		}
		assert.Equal(t, 13, e.Board().Removed(board.White))
	})

	t.Run("exact die", func(t *testing.T) {
		require.NoError(t, e.MoveBy(19, 5))
		assert.Equal(t, 14, e.Board().Removed(board.White))
		set := e.Dice()
		assert.True(t, set[0].Used)
		assert.False(t, set[1].Used)
	})
}

func TestSwapDice(t *testing.T) {
	e, _ := newTestEngine(t, []int{3, 5})

	e.SwapDice()
	assert.Equal(t, []int{3, 5}, e.Dice().Values())

	require.NoError(t, e.Move(0, 3))
	set := e.Dice()
	assert.True(t, set[0].Used, "the three moved to the front and was consumed")
}

func TestLoadPositionValidates(t *testing.T) {
	e, _ := newTestEngine(t, []int{3, 5})

	b := board.New()
	b.AddOne(4, board.White)
	assert.Error(t, e.LoadPosition(b, dice.New(3, 1), board.White))
	assert.Error(t, e.LoadPosition(nil, dice.New(3, 1), board.White))
	assert.Error(t, e.LoadPosition(board.New(), dice.New(7), board.White))
	assert.Error(t, e.LoadPosition(board.New(), dice.New(3, 1), board.Empty))
	assert.True(t, e.Board().Equal(board.New()))
}

func TestHumanCommandsRejectedForAutomatedColor(t *testing.T) {
	e, scheduler := newTestEngine(t, []int{3, 5, 2, 1}, game.WithAutomated(board.Black))

	require.NoError(t, e.Move(0, 3))
	require.NoError(t, e.Move(11, 16))
	require.True(t, e.EndTurn())
	require.Equal(t, board.Black, e.ColorToMove())

	err := e.Move(5, 3)
	assert.True(t, errors.Is(err, game.ErrNotYourTurn))
	assert.True(t, errors.Is(e.MoveBy(5, 2), game.ErrNotYourTurn))
	assert.False(t, e.EndTurn())
	assert.False(t, e.Undo())
	assert.Equal(t, 1, scheduler.Pending())
}

func TestRandomPlayConservesCheckers(t *testing.T) {
	logger := zaptest.NewLogger(t)
	scheduler := game.NewManualScheduler()
	e := game.NewEngine(logger,
		game.WithScheduler(scheduler),
		game.WithAutomated(board.White, board.Black),
	)
	defer e.Close()

	for i := 0; i < 3000; i++ {
		if !scheduler.RunNext() {
			t.Fatalf("self-play stalled after %d steps", i)
		}
		b := e.Board()
		if err := b.Validate(); err != nil {
			t.Fatalf("step %d broke an invariant: %v\n%s", i, err, b)
		}
		for p := 0; p < board.Width; p++ {
			pt := b.Point(p)
			if (pt.Count == 0) != (pt.Color == board.Empty) {
				t.Fatalf("step %d: point %d has count %d and color %s", i, p, pt.Count, pt.Color)
			}
		}
	}
}

func TestUndoTakesBackTheHit(t *testing.T) {
	e, _ := newTestEngine(t, []int{3, 5, 2, 1})

	require.NoError(t, e.Move(0, 3))
	require.NoError(t, e.Move(11, 16))
	require.True(t, e.EndTurn())

	require.NoError(t, e.Move(5, 3))
	require.True(t, e.HitThisTurn(board.Black))

	require.True(t, e.Undo())
	assert.False(t, e.HitThisTurn(board.Black))
	assert.Equal(t, 0, e.Board().Pending(board.White))
	assert.Equal(t, 1, e.Stats(board.Black).Hits, "stats keep undone moves")
	assert.Equal(t, 1, e.Stats(board.Black).Undone)
}

func TestStatsFollowTheGame(t *testing.T) {
	e, _ := newTestEngine(t, []int{3, 5, 2, 1})

	require.NoError(t, e.Move(0, 3))
	require.NoError(t, e.Move(11, 16))
	require.True(t, e.EndTurn())

	require.NoError(t, e.Move(5, 3))
	assert.True(t, e.HitThisTurn(board.Black))
	assert.False(t, e.HitThisTurn(board.White))
	require.NoError(t, e.Move(3, 2))
	require.True(t, e.EndTurn())
	assert.False(t, e.HitThisTurn(board.Black), "hits are per turn")

	view := e.View()
	assert.Equal(t, 2, view.Stats.White.Moves)
	assert.Equal(t, 8, view.Stats.White.Pips)
	assert.Equal(t, 1, view.Stats.White.Captured)
	assert.Equal(t, 1, view.Stats.White.Turns)
	assert.Equal(t, 1, view.Stats.Black.Hits)
	assert.Equal(t, 3, view.Stats.Black.Pips)
	assert.Equal(t, 1, view.Stats.Black.Turns)

	e.NewGame()
	assert.Equal(t, rules.ColorStats{}, e.Stats(board.White))
}
