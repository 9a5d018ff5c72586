package repository

import (
	"context"
	"sync"

	"github.com/trigammon/trigammon-server-go/internal/game/board"
)

// MemoryStore keeps results for the life of the process.
type MemoryStore struct {
	mu      sync.RWMutex
	results []GameResult
	nextID  int64
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{nextID: 1}
}

func (m *MemoryStore) RecordResult(_ context.Context, r *GameResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r.ID = m.nextID
	m.nextID++
	m.results = append(m.results, *r)
	return nil
}

func (m *MemoryStore) RecentResults(_ context.Context, limit int) ([]GameResult, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]GameResult, 0, min(limit, len(m.results)))
	for i := len(m.results) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, m.results[i])
	}
	return out, nil
}

func (m *MemoryStore) Totals(_ context.Context) (Totals, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	t := Totals{Games: len(m.results)}
	for _, r := range m.results {
		switch r.Winner {
		case board.White:
			t.WhiteWins++
		case board.Black:
			t.BlackWins++
		}
	}
	return t, nil
}
