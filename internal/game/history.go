package game

import (
	"github.com/trigammon/trigammon-server-go/internal/game/board"
	"github.com/trigammon/trigammon-server-go/internal/game/dice"
)

// snapshot is the state restored by Undo.
type snapshot struct {
	board     *board.Board
	dice      dice.Set
	canRemove map[board.Color]bool
}

// history is the undo stack of the current turn. It is guarded by the
// engine lock.
type history struct {
	items []snapshot
}

func newHistory() *history {
	return &history{
		items: make([]snapshot, 0, 8),
	}
}

// Push adds a snapshot to the top of the stack.
func (h *history) Push(s snapshot) {
	h.items = append(h.items, s)
}

// Pop removes the top snapshot.
func (h *history) Pop() (snapshot, bool) {
	if len(h.items) == 0 {
		return snapshot{}, false
	}
	idx := len(h.items) - 1
	s := h.items[idx]
	h.items = h.items[:idx]
	return s, true
}

// Len returns the number of snapshots.
func (h *history) Len() int {
	return len(h.items)
}

// Clear drops every snapshot.
func (h *history) Clear() {
	h.items = h.items[:0]
}
