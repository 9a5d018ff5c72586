package rules

import (
	"testing"

	"github.com/trigammon/trigammon-server-go/internal/game/board"
)

func TestWatcherRegistry(t *testing.T) {
	registry := NewWatcherRegistry()
	stats := NewStatsWatcher()
	hits := NewHitWatcher()
	registry.AddWatcher(stats)
	registry.AddWatcher(hits)

	if registry.GetWatcher(StatsWatcherKey) != stats {
		t.Fatal("should retrieve the stats watcher")
	}
	if got := registry.GetWatchersByScope(WatcherScopeTurn); len(got) != 1 || got[0] != hits {
		t.Fatalf("expected only the hit watcher in turn scope, got %v", got)
	}

	registry.NotifyWatchers(NewMoveEvent(EventCheckerHit, board.Black, 1, 3, board.PendingBlack, 0))
	registry.NotifyWatchers(NewMoveEvent(EventCheckerMoved, board.White, 1, 0, 3, 3))
	registry.NotifyWatchers(NewMoveEvent(EventCheckerEntered, board.Black, 1, board.PendingBlack, 20, 4))

	if !hits.ConditionMet(board.White) {
		t.Fatal("white hit this turn")
	}
	if hits.ConditionMet(board.Black) {
		t.Fatal("black did not hit")
	}

	white := stats.Stats(board.White)
	if white.Moves != 1 || white.Pips != 3 || white.Hits != 1 {
		t.Fatalf("unexpected white stats %+v", white)
	}
	black := stats.Stats(board.Black)
	if black.Entered != 1 || black.Pips != 4 || black.Captured != 1 {
		t.Fatalf("unexpected black stats %+v", black)
	}

	registry.NotifyWatchers(NewEvent(EventTurnEnded, board.White, 1))
	if hits.ConditionMet(board.White) {
		t.Fatal("turn watchers reset at turn end")
	}
	if stats.Stats(board.White).Turns != 1 {
		t.Fatal("turn end is counted before the reset")
	}

	registry.NotifyWatchers(NewEvent(EventGameReset, board.White, 2))
	if stats.Stats(board.White) != (ColorStats{}) {
		t.Fatal("game watchers reset on a new game")
	}

	registry.RemoveWatcher(HitWatcherKey)
	if registry.GetWatcher(HitWatcherKey) != nil {
		t.Fatal("watcher should be removed")
	}
}

func TestHitWatcherUndo(t *testing.T) {
	hits := NewHitWatcher()

	hits.Watch(NewMoveEvent(EventCheckerMoved, board.White, 1, 0, 2, 2))
	hits.Watch(NewMoveEvent(EventCheckerHit, board.Black, 1, 5, board.PendingBlack, 0))
	hits.Watch(NewMoveEvent(EventCheckerMoved, board.White, 1, 2, 5, 3))
	if !hits.ConditionMet(board.White) {
		t.Fatal("white hit on its second move")
	}

	hits.Watch(NewEvent(EventMoveUndone, board.White, 1))
	if hits.ConditionMet(board.White) {
		t.Fatal("undoing the hitting move clears the hit")
	}

	hits.Watch(NewEvent(EventMoveUndone, board.White, 1))
	hits.Watch(NewEvent(EventMoveUndone, board.White, 1))
	if hits.ConditionMet(board.White) {
		t.Fatal("extra undo events are ignored")
	}
}

func TestWatcherScopeString(t *testing.T) {
	if WatcherScopeGame.String() != "GAME" || WatcherScopeTurn.String() != "TURN" {
		t.Fatal("unexpected scope names")
	}
	if WatcherScope(9).String() != "UNKNOWN" {
		t.Fatal("unknown scope")
	}
}

func TestResetWatchersByScope(t *testing.T) {
	registry := NewWatcherRegistry()
	stats := NewStatsWatcher()
	registry.AddWatcher(stats)

	registry.NotifyWatchers(NewMoveEvent(EventCheckerBorneOff, board.Black, 1, 2, board.RemovedBlack, 3))
	registry.ResetWatchersByScope(WatcherScopeTurn)
	if stats.Stats(board.Black).BorneOff != 1 {
		t.Fatal("game watcher survives a turn reset")
	}
	registry.ResetWatchersByScope(WatcherScopeGame)
	if stats.Stats(board.Black).BorneOff != 0 {
		t.Fatal("game watcher cleared")
	}
}
