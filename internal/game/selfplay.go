package game

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/trigammon/trigammon-server-go/internal/game/board"
	"github.com/trigammon/trigammon-server-go/internal/game/dice"
	"github.com/trigammon/trigammon-server-go/internal/game/rules"
)

// ErrSelfPlayStalled is returned when no opponent step is queued or the step
// limit runs out before the requested games finished.
var ErrSelfPlayStalled = errors.New("self-play stalled")

// SelfPlayResult summarizes a series of games played by the scripted
// opponent against itself.
type SelfPlayResult struct {
	Games      int
	Steps      int
	Wins       ColorCounts
	TotalTurns int
	LongestWin int
}

// AverageTurns returns the mean game length in turns.
func (r SelfPlayResult) AverageTurns() float64 {
	if r.Games == 0 {
		return 0
	}
	return float64(r.TotalTurns) / float64(r.Games)
}

// SelfPlay automates both colors and runs opponent steps until games games
// have finished or maxSteps steps ran.
func SelfPlay(ctx context.Context, logger *zap.Logger, roller dice.Roller, games, maxSteps int) (SelfPlayResult, error) {
	var res SelfPlayResult
	if games <= 0 {
		return res, nil
	}

	scheduler := NewManualScheduler()
	e := NewEngine(logger,
		WithRoller(roller),
		WithScheduler(scheduler),
		WithAutomated(board.White, board.Black),
	)
	defer e.Close()

	e.Events().SubscribeTyped(rules.EventGameOver, func(evt rules.Event) {
		res.Games++
		res.TotalTurns += evt.Amount
		if evt.Amount > res.LongestWin {
			res.LongestWin = evt.Amount
		}
		switch evt.Color {
		case board.White:
			res.Wins.White++
		case board.Black:
			res.Wins.Black++
		}
	})

	for res.Games < games {
		if res.Steps >= maxSteps {
			return res, fmt.Errorf("%w: stopped after %d steps with %d of %d games played", ErrSelfPlayStalled, res.Steps, res.Games, games)
		}
		if res.Steps%1000 == 0 {
			if err := ctx.Err(); err != nil {
				return res, err
			}
		}
		if !scheduler.RunNext() {
			return res, ErrSelfPlayStalled
		}
		res.Steps++
	}

	if logger != nil {
		logger.Info("self-play finished",
			zap.Int("games", res.Games),
			zap.Int("steps", res.Steps),
			zap.Int("white_wins", res.Wins.White),
			zap.Int("black_wins", res.Wins.Black),
		)
	}
	return res, nil
}
