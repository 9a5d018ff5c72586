package game

import (
	"bytes"
	"encoding/gob"
	"fmt"

	"github.com/trigammon/trigammon-server-go/internal/game/board"
	"github.com/trigammon/trigammon-server-go/internal/game/dice"
)

// PositionRecord is a self-contained copy of a game position that can be
// encoded, stored and loaded back into an engine.
type PositionRecord struct {
	Points      []board.Point
	Pending     ColorCounts
	Removed     ColorCounts
	Dice        dice.Set
	ColorToMove board.Color
	Turn        int
	Epoch       int
	// Checksum is the board checksum at capture time.
	Checksum string
}

// NewPositionRecord captures b, set and the side to move.
func NewPositionRecord(b *board.Board, set dice.Set, toMove board.Color, turn, epoch int) *PositionRecord {
	points := b.Points()
	return &PositionRecord{
		Points:      points[:],
		Pending:     ColorCounts{White: b.Pending(board.White), Black: b.Pending(board.Black)},
		Removed:     ColorCounts{White: b.Removed(board.White), Black: b.Removed(board.Black)},
		Dice:        set.Clone(),
		ColorToMove: toMove,
		Turn:        turn,
		Epoch:       epoch,
		Checksum:    b.Checksum(),
	}
}

// Board rebuilds and validates the recorded board.
func (p *PositionRecord) Board() (*board.Board, error) {
	if len(p.Points) != board.Width {
		return nil, fmt.Errorf("position has %d points, want %d", len(p.Points), board.Width)
	}
	b := board.NewEmpty()
	for i, pt := range p.Points {
		if pt.Count > 0 {
			b.Set(i, pt.Color, pt.Count)
		}
	}
	if p.Pending.White > 0 {
		b.Set(board.PendingWhite, board.White, p.Pending.White)
	}
	if p.Pending.Black > 0 {
		b.Set(board.PendingBlack, board.Black, p.Pending.Black)
	}
	if p.Removed.White > 0 {
		b.Set(board.RemovedWhite, board.White, p.Removed.White)
	}
	if p.Removed.Black > 0 {
		b.Set(board.RemovedBlack, board.Black, p.Removed.Black)
	}
	if err := b.Validate(); err != nil {
		return nil, err
	}
	return b, nil
}

// VerifyChecksum reports whether the rebuilt board matches the stored
// checksum.
func (p *PositionRecord) VerifyChecksum() (bool, error) {
	b, err := p.Board()
	if err != nil {
		return false, fmt.Errorf("failed to rebuild board: %w", err)
	}
	return b.Checksum() == p.Checksum, nil
}

// SerializeToBytes encodes the record with gob.
func (p *PositionRecord) SerializeToBytes() ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(p); err != nil {
		return nil, fmt.Errorf("failed to encode position: %w", err)
	}
	return buf.Bytes(), nil
}

// DeserializePosition decodes a record written by SerializeToBytes and
// checks it against its checksum.
func DeserializePosition(data []byte) (*PositionRecord, error) {
	var p PositionRecord
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&p); err != nil {
		return nil, fmt.Errorf("failed to decode position: %w", err)
	}
	ok, err := p.VerifyChecksum()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("position checksum mismatch: stored %s", p.Checksum)
	}
	return &p, nil
}

// Position captures the current game.
func (e *Engine) Position() *PositionRecord {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.positionLocked()
}

func (e *Engine) positionLocked() *PositionRecord {
	return NewPositionRecord(e.board, e.dice, e.turns.ColorToMove(), e.turns.TurnNumber(), e.epoch)
}

// Restore loads a captured position. Turn numbering and epoch continue from
// the live game.
func (e *Engine) Restore(p *PositionRecord) error {
	if p == nil {
		return fmt.Errorf("restore: nil position")
	}
	b, err := p.Board()
	if err != nil {
		return fmt.Errorf("restore: %w", err)
	}
	return e.LoadPosition(b, p.Dice, p.ColorToMove)
}
