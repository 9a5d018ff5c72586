package repository

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/trigammon/trigammon-server-go/internal/game"
	"github.com/trigammon/trigammon-server-go/internal/game/rules"
)

const recordTimeout = 5 * time.Second

// Track records every game e finishes into store. The returned function
// stops tracking.
func Track(e *game.Engine, store ResultStore, logger *zap.Logger) func() {
	if logger == nil {
		logger = zap.NewNop()
	}
	gameID := e.GameID()

	handle := e.Events().SubscribeTyped(rules.EventGameOver, func(evt rules.Event) {
		result, err := ResultFromEvent(gameID, evt)
		if err != nil {
			logger.Error("invalid game result", zap.String("game_id", gameID), zap.Error(err))
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
		defer cancel()
		if err := store.RecordResult(ctx, result); err != nil {
			logger.Error("failed to record game result", zap.String("game_id", gameID), zap.Error(err))
			return
		}
		logger.Info("recorded game result",
			zap.String("game_id", gameID),
			zap.Int64("result_id", result.ID),
			zap.String("winner", result.Winner.String()),
			zap.Int("turns", result.Turns),
		)
	})

	return func() {
		e.Events().Unsubscribe(handle)
	}
}
