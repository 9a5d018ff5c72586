package rules

import (
	"sort"
	"sync"

	"github.com/trigammon/trigammon-server-go/internal/game/board"
)

// WatcherScope decides when a watcher is reset.
type WatcherScope int

const (
	// WatcherScopeGame watchers reset when a new game starts.
	WatcherScopeGame WatcherScope = iota
	// WatcherScopeTurn watchers reset when a turn ends.
	WatcherScopeTurn
)

// String returns the string representation of the watcher scope.
func (ws WatcherScope) String() string {
	switch ws {
	case WatcherScopeGame:
		return "GAME"
	case WatcherScopeTurn:
		return "TURN"
	default:
		return "UNKNOWN"
	}
}

// Watcher observes events and keeps derived state.
type Watcher interface {
	Watch(event Event)
	Reset()
	Scope() WatcherScope
	Key() string
}

// ColorStats counts what one color did. Undone moves stay counted.
type ColorStats struct {
	Moves    int `json:"moves"`
	Pips     int `json:"pips"`
	Hits     int `json:"hits"`
	Captured int `json:"captured"`
	Entered  int `json:"entered"`
	BorneOff int `json:"borne_off"`
	Undone   int `json:"undone"`
	Turns    int `json:"turns"`
}

// StatsWatcher tallies moves per color over one game.
type StatsWatcher struct {
	stats map[board.Color]*ColorStats
}

// StatsWatcherKey identifies the stats watcher in a registry.
const StatsWatcherKey = "stats"

// NewStatsWatcher creates a zeroed watcher.
func NewStatsWatcher() *StatsWatcher {
	w := &StatsWatcher{}
	w.Reset()
	return w
}

func (w *StatsWatcher) Watch(event Event) {
	st, ok := w.stats[event.Color]
	if !ok {
		return
	}
	switch event.Type {
	case EventCheckerMoved, EventCheckerEntered, EventCheckerBorneOff:
		st.Moves++
		st.Pips += event.Amount
		switch event.Type {
		case EventCheckerEntered:
			st.Entered++
		case EventCheckerBorneOff:
			st.BorneOff++
		}
	case EventCheckerHit:
		// The event names the color that was hit.
		st.Captured++
		if hitter, ok := w.stats[event.Color.Opponent()]; ok {
			hitter.Hits++
		}
	case EventMoveUndone:
		st.Undone++
	case EventTurnEnded:
		st.Turns++
	}
}

func (w *StatsWatcher) Reset() {
	w.stats = map[board.Color]*ColorStats{
		board.White: {},
		board.Black: {},
	}
}

func (w *StatsWatcher) Scope() WatcherScope { return WatcherScopeGame }

func (w *StatsWatcher) Key() string { return StatsWatcherKey }

// Stats returns a copy of the counts for c.
func (w *StatsWatcher) Stats(c board.Color) ColorStats {
	if st, ok := w.stats[c]; ok {
		return *st
	}
	return ColorStats{}
}

// HitWatcher records whether each color has hit during the current turn.
// Undoing a move takes back the hit it made.
type HitWatcher struct {
	// hitting is set by a hit until the move event that made it arrives.
	hitting bool
	moves   map[board.Color][]bool
}

// HitWatcherKey identifies the hit watcher in a registry.
const HitWatcherKey = "turn_hits"

// NewHitWatcher creates an empty watcher.
func NewHitWatcher() *HitWatcher {
	w := &HitWatcher{}
	w.Reset()
	return w
}

func (w *HitWatcher) Watch(event Event) {
	switch event.Type {
	case EventCheckerHit:
		w.hitting = true
	case EventCheckerMoved, EventCheckerEntered, EventCheckerBorneOff:
		w.moves[event.Color] = append(w.moves[event.Color], w.hitting)
		w.hitting = false
	case EventMoveUndone:
		if n := len(w.moves[event.Color]); n > 0 {
			w.moves[event.Color] = w.moves[event.Color][:n-1]
		}
	}
}

func (w *HitWatcher) Reset() {
	w.hitting = false
	w.moves = make(map[board.Color][]bool)
}

func (w *HitWatcher) Scope() WatcherScope { return WatcherScopeTurn }

func (w *HitWatcher) Key() string { return HitWatcherKey }

// ConditionMet reports whether a move c still stands by hit a checker this
// turn.
func (w *HitWatcher) ConditionMet(c board.Color) bool {
	for _, hit := range w.moves[c] {
		if hit {
			return true
		}
	}
	return false
}

// WatcherRegistry fans events out to watchers and resets them at turn and
// game boundaries.
type WatcherRegistry struct {
	mu       sync.RWMutex
	watchers map[string]Watcher
}

// NewWatcherRegistry creates a new watcher registry.
func NewWatcherRegistry() *WatcherRegistry {
	return &WatcherRegistry{
		watchers: make(map[string]Watcher),
	}
}

// AddWatcher registers w, replacing any watcher with the same key.
func (wr *WatcherRegistry) AddWatcher(w Watcher) {
	wr.mu.Lock()
	defer wr.mu.Unlock()
	wr.watchers[w.Key()] = w
}

// RemoveWatcher removes a watcher from the registry.
func (wr *WatcherRegistry) RemoveWatcher(key string) {
	wr.mu.Lock()
	defer wr.mu.Unlock()
	delete(wr.watchers, key)
}

// GetWatcher retrieves a watcher by key.
func (wr *WatcherRegistry) GetWatcher(key string) Watcher {
	wr.mu.RLock()
	defer wr.mu.RUnlock()
	return wr.watchers[key]
}

// GetWatchersByScope returns the watchers of scope ordered by key.
func (wr *WatcherRegistry) GetWatchersByScope(scope WatcherScope) []Watcher {
	wr.mu.RLock()
	defer wr.mu.RUnlock()

	var out []Watcher
	for _, w := range wr.watchers {
		if w.Scope() == scope {
			out = append(out, w)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key() < out[j].Key() })
	return out
}

// ResetWatchersByScope resets every watcher of scope.
func (wr *WatcherRegistry) ResetWatchersByScope(scope WatcherScope) {
	wr.mu.Lock()
	defer wr.mu.Unlock()
	wr.resetLocked(scope)
}

func (wr *WatcherRegistry) resetLocked(scope WatcherScope) {
	for _, w := range wr.watchers {
		if w.Scope() == scope {
			w.Reset()
		}
	}
}

// NotifyWatchers passes event to every watcher. A game reset clears game
// and turn watchers first; a turn end clears turn watchers after they saw it.
func (wr *WatcherRegistry) NotifyWatchers(event Event) {
	wr.mu.Lock()
	defer wr.mu.Unlock()

	if event.Type == EventGameReset {
		wr.resetLocked(WatcherScopeGame)
		wr.resetLocked(WatcherScopeTurn)
	}
	for _, w := range wr.watchers {
		w.Watch(event)
	}
	if event.Type == EventTurnEnded {
		wr.resetLocked(WatcherScopeTurn)
	}
}
