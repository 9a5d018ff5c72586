package game

import (
	"github.com/trigammon/trigammon-server-go/internal/game/board"
	"github.com/trigammon/trigammon-server-go/internal/game/dice"
	"github.com/trigammon/trigammon-server-go/internal/game/rules"
)

// PointView is one playable point as seen by a client.
type PointView struct {
	Index int    `json:"index"`
	Color string `json:"color"`
	Count int    `json:"count"`
}

// ColorCounts holds one number per color.
type ColorCounts struct {
	White int `json:"white"`
	Black int `json:"black"`
}

// ColorFlags holds one flag per color.
type ColorFlags struct {
	White bool `json:"white"`
	Black bool `json:"black"`
}

// ColorStatsView holds the per-game statistics of both colors.
type ColorStatsView struct {
	White rules.ColorStats `json:"white"`
	Black rules.ColorStats `json:"black"`
}

// GameView is everything a renderer needs to draw the game and decide which
// controls to offer.
type GameView struct {
	GameID      string         `json:"game_id"`
	Epoch       int            `json:"epoch"`
	Turn        int            `json:"turn"`
	ColorToMove string         `json:"color_to_move"`
	Points      []PointView    `json:"points"`
	Pending     ColorCounts    `json:"pending"`
	Removed     ColorCounts    `json:"removed"`
	Dice        []dice.Die     `json:"dice"`
	CanUndo     bool           `json:"can_undo"`
	CanEndTurn  bool           `json:"can_end_turn"`
	CanRemove   ColorFlags     `json:"can_remove"`
	Automated   ColorFlags     `json:"automated"`
	Winner      string         `json:"winner,omitempty"`
	GamesPlayed int            `json:"games_played"`
	Wins        ColorCounts    `json:"wins"`
	Stats       ColorStatsView `json:"stats"`
	HitThisTurn ColorFlags     `json:"hit_this_turn"`
	Checksum    string         `json:"checksum"`
}

// SlotIndices lists the reserved indices clients address moves with.
type SlotIndices struct {
	PendingWhite int `json:"pending_white"`
	PendingBlack int `json:"pending_black"`
	RemovedWhite int `json:"removed_white"`
	RemovedBlack int `json:"removed_black"`
}

// Slots returns the reserved indices clients use for moves.
func Slots() SlotIndices {
	return SlotIndices{
		PendingWhite: board.PendingWhite,
		PendingBlack: board.PendingBlack,
		RemovedWhite: board.RemovedWhite,
		RemovedBlack: board.RemovedBlack,
	}
}

// View returns a consistent snapshot of the game.
func (e *Engine) View() GameView {
	e.mu.Lock()
	defer e.mu.Unlock()

	playable := e.checkMovesAvailableLocked()

	points := make([]PointView, 0, board.Width)
	for p := 0; p < board.Width; p++ {
		pt := e.board.Point(p)
		points = append(points, PointView{Index: p, Color: pt.Color.String(), Count: pt.Count})
	}

	view := GameView{
		GameID:      e.gameID,
		Epoch:       e.epoch,
		Turn:        e.turns.TurnNumber(),
		ColorToMove: e.turns.ColorToMove().String(),
		Points:      points,
		Pending:     ColorCounts{White: e.board.Pending(board.White), Black: e.board.Pending(board.Black)},
		Removed:     ColorCounts{White: e.board.Removed(board.White), Black: e.board.Removed(board.Black)},
		Dice:        e.dice.Clone(),
		CanUndo:     e.history.Len() > 0,
		CanEndTurn:  !playable,
		CanRemove:   ColorFlags{White: e.canRemove[board.White], Black: e.canRemove[board.Black]},
		Automated:   ColorFlags{White: e.automated[board.White], Black: e.automated[board.Black]},
		GamesPlayed: e.gamesPlayed,
		Wins:        ColorCounts{White: e.wins[board.White], Black: e.wins[board.Black]},
		Stats:       ColorStatsView{White: e.statsLocked(board.White), Black: e.statsLocked(board.Black)},
		HitThisTurn: ColorFlags{White: e.hitLocked(board.White), Black: e.hitLocked(board.Black)},
		Checksum:    e.board.Checksum(),
	}
	if e.winner.Valid() {
		view.Winner = e.winner.String()
	}
	return view
}
