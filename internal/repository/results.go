package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/trigammon/trigammon-server-go/internal/game/board"
	"github.com/trigammon/trigammon-server-go/internal/game/rules"
)

// Tally is what one color did in a finished game. Like the engine stats it
// includes moves that were later undone.
type Tally struct {
	Moves int `json:"moves"`
	Pips  int `json:"pips"`
	Hits  int `json:"hits"`
}

// GameResult is one finished game.
type GameResult struct {
	ID     int64       `json:"id"`
	GameID string      `json:"game_id"`
	Winner board.Color `json:"-"`
	Turns  int         `json:"turns"`
	White  Tally       `json:"white"`
	Black  Tally       `json:"black"`
	Ended  time.Time   `json:"ended"`
}

// MarshalJSON writes the winner by name.
func (r GameResult) MarshalJSON() ([]byte, error) {
	type plain GameResult
	return json.Marshal(struct {
		plain
		Winner string `json:"winner"`
	}{plain(r), r.Winner.String()})
}

// Totals aggregates every stored result.
type Totals struct {
	Games     int `json:"games"`
	WhiteWins int `json:"white_wins"`
	BlackWins int `json:"black_wins"`
}

// ResultStore records finished games.
type ResultStore interface {
	RecordResult(ctx context.Context, r *GameResult) error
	RecentResults(ctx context.Context, limit int) ([]GameResult, error)
	Totals(ctx context.Context) (Totals, error)
}

// ResultFromEvent builds a result from a GAME_OVER event.
func ResultFromEvent(gameID string, evt rules.Event) (*GameResult, error) {
	if evt.Type != rules.EventGameOver {
		return nil, fmt.Errorf("event %s is not a game result", evt.Type)
	}
	if !evt.Color.Valid() {
		return nil, fmt.Errorf("game over without a winner")
	}

	r := &GameResult{
		GameID: gameID,
		Winner: evt.Color,
		Turns:  evt.Amount,
		Ended:  evt.Timestamp,
	}
	fields := []struct {
		key string
		dst *int
	}{
		{"white_moves", &r.White.Moves},
		{"white_pips", &r.White.Pips},
		{"white_hits", &r.White.Hits},
		{"black_moves", &r.Black.Moves},
		{"black_pips", &r.Black.Pips},
		{"black_hits", &r.Black.Hits},
	}
	for _, f := range fields {
		v, ok := evt.Metadata[f.key]
		if !ok {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("metadata %s: %w", f.key, err)
		}
		*f.dst = n
	}
	return r, nil
}

// ResultRepository stores results in PostgreSQL.
type ResultRepository struct {
	db *DB
}

// NewResultRepository creates a repository on db.
func NewResultRepository(db *DB) *ResultRepository {
	return &ResultRepository{db: db}
}

// RecordResult inserts r and sets its ID.
func (repo *ResultRepository) RecordResult(ctx context.Context, r *GameResult) error {
	err := repo.db.pool.QueryRow(ctx, `
		INSERT INTO game_result
			(game_id, winner, turns, white_moves, white_pips, white_hits, black_moves, black_pips, black_hits, ended)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id`,
		r.GameID, r.Winner.String(), r.Turns,
		r.White.Moves, r.White.Pips, r.White.Hits,
		r.Black.Moves, r.Black.Pips, r.Black.Hits,
		r.Ended,
	).Scan(&r.ID)
	if err != nil {
		return fmt.Errorf("insert game result: %w", err)
	}
	return nil
}

// RecentResults returns up to limit results, newest first.
func (repo *ResultRepository) RecentResults(ctx context.Context, limit int) ([]GameResult, error) {
	rows, err := repo.db.pool.Query(ctx, `
		SELECT id, game_id, winner, turns, white_moves, white_pips, white_hits, black_moves, black_pips, black_hits, ended
		FROM game_result
		ORDER BY ended DESC, id DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("query game results: %w", err)
	}

	results, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (GameResult, error) {
		var r GameResult
		var winner string
		err := row.Scan(&r.ID, &r.GameID, &winner, &r.Turns,
			&r.White.Moves, &r.White.Pips, &r.White.Hits,
			&r.Black.Moves, &r.Black.Pips, &r.Black.Hits,
			&r.Ended)
		if err != nil {
			return r, err
		}
		r.Winner, err = board.ParseColor(winner)
		return r, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan game results: %w", err)
	}
	return results, nil
}

// Totals counts games and wins per color.
func (repo *ResultRepository) Totals(ctx context.Context) (Totals, error) {
	var t Totals
	err := repo.db.pool.QueryRow(ctx, `
		SELECT COUNT(*),
			COUNT(*) FILTER (WHERE winner = 'WHITE'),
			COUNT(*) FILTER (WHERE winner = 'BLACK')
		FROM game_result`).Scan(&t.Games, &t.WhiteWins, &t.BlackWins)
	if err != nil {
		return t, fmt.Errorf("count game results: %w", err)
	}
	return t, nil
}
