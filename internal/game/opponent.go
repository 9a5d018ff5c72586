package game

import (
	"time"

	"go.uber.org/zap"

	"github.com/trigammon/trigammon-server-go/internal/game/board"
	"github.com/trigammon/trigammon-server-go/internal/game/rules"
)

// ScriptedOpponent plays automated colors with a fixed greedy policy: the
// first playable die, applied to the first legal source in index order with
// the pending slot ahead of the board.
type ScriptedOpponent struct {
	engine    *Engine
	scheduler Scheduler
	delay     time.Duration
}

func newScriptedOpponent(e *Engine, s Scheduler, delay time.Duration) *ScriptedOpponent {
	return &ScriptedOpponent{
		engine:    e,
		scheduler: s,
		delay:     delay,
	}
}

// schedule defers one step for color in game generation epoch.
func (o *ScriptedOpponent) schedule(epoch int, color board.Color) {
	o.scheduler.Schedule(o.delay, func() {
		o.engine.opponentStep(epoch, color)
	})
}

// ChooseMove returns the move the greedy policy plays in state, or ok=false
// when no die can be used.
func ChooseMove(state rules.GameStateAccessor) (from, to int, ok bool) {
	from, to, _, ok = chooseMove(state)
	return from, to, ok
}

// chooseMove also returns the index of the die the move is made with. The
// move is legal with that die alone.
func chooseMove(state rules.GameStateAccessor) (from, to, die int, ok bool) {
	checker := rules.NewLegalityChecker(state)
	set := state.Dice()
	if !checker.RefreshAllowed(set) {
		return board.NoPoint, board.NoPoint, anyDie, false
	}

	color := state.ColorToMove()
	die = set.FirstPlayable()
	value := set[die].Value

	sources := make([]int, 0, board.Width+1)
	sources = append(sources, board.PendingSlot(color))
	for p := 0; p < board.Width; p++ {
		sources = append(sources, p)
	}

	for _, from := range sources {
		to := rules.Target(color, from, value)
		if checker.CheckDie(from, to, die).Legal {
			return from, to, die, true
		}
	}
	return board.NoPoint, board.NoPoint, anyDie, false
}

// opponentStep plays one scripted move, or ends the turn when no die is
// usable. A step from an earlier game or for a color no longer to move does
// nothing.
func (e *Engine) opponentStep(epoch int, color board.Color) {
	e.mu.Lock()
	if e.closed || epoch != e.epoch || color != e.turns.ColorToMove() {
		e.mu.Unlock()
		if e.logger != nil {
			e.logger.Debug("dropped stale opponent step",
				zap.String("game_id", e.gameID),
				zap.Int("step_epoch", epoch),
				zap.String("color", color.String()),
			)
		}
		return
	}

	from, to, die, ok := chooseMove(liveState{e})
	if !ok {
		e.endTurnLocked()
	} else if err := e.moveLocked(from, to, die); err != nil {
		// ChooseMove only returns moves the checker accepted.
		if e.logger != nil {
			e.logger.Error("scripted move rejected",
				zap.String("game_id", e.gameID),
				zap.Int("from", from),
				zap.Int("to", to),
				zap.Int("die", die),
				zap.Error(err),
			)
		}
		e.endTurnLocked()
	} else if epoch == e.epoch {
		e.opponent.schedule(epoch, color)
	}

	events := e.takeEvents()
	e.mu.Unlock()
	e.publish(events)
}
