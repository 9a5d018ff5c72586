package game

import (
	"compress/gzip"
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/trigammon/trigammon-server-go/internal/game/board"
	"github.com/trigammon/trigammon-server-go/internal/game/rules"
)

const replayVersion = 1

// Frame is the game position right after one event.
type Frame struct {
	Event    rules.EventType
	Color    board.Color
	From     int
	To       int
	Amount   int
	Time     time.Time
	Position *PositionRecord
}

// Replay is a recorded game with a playback cursor.
type Replay struct {
	GameID       string
	Frames       []*Frame
	CurrentIndex int
	mu           sync.RWMutex
}

// NewReplay creates an empty replay.
func NewReplay(gameID string) *Replay {
	return &Replay{
		GameID: gameID,
		Frames: make([]*Frame, 0),
	}
}

// RecordFrame appends a frame.
func (r *Replay) RecordFrame(f *Frame) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.Frames = append(r.Frames, f)
}

// Start rewinds playback.
func (r *Replay) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.CurrentIndex = 0
}

// Next returns the frame under the cursor and advances, or nil at the end.
func (r *Replay) Next() *Frame {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.CurrentIndex < len(r.Frames) {
		f := r.Frames[r.CurrentIndex]
		r.CurrentIndex++
		return f
	}
	return nil
}

// Previous steps back and returns that frame, or nil at the start.
func (r *Replay) Previous() *Frame {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.CurrentIndex > 0 {
		r.CurrentIndex--
		return r.Frames[r.CurrentIndex]
	}
	return nil
}

// Skip moves the cursor by count frames, clamped to the recording.
func (r *Replay) Skip(count int) *Frame {
	r.mu.Lock()
	defer r.mu.Unlock()

	newIndex := r.CurrentIndex + count
	if newIndex >= len(r.Frames) {
		newIndex = len(r.Frames) - 1
	}
	if newIndex < 0 {
		newIndex = 0
	}

	r.CurrentIndex = newIndex
	if r.CurrentIndex < len(r.Frames) {
		return r.Frames[r.CurrentIndex]
	}
	return nil
}

// Size returns the number of frames.
func (r *Replay) Size() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.Frames)
}

// FrameAt returns frame index or nil.
func (r *Replay) FrameAt(index int) *Frame {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if index >= 0 && index < len(r.Frames) {
		return r.Frames[index]
	}
	return nil
}

func replayPath(directory, gameID string) string {
	return filepath.Join(directory, fmt.Sprintf("%s.replay", gameID))
}

// SaveToFile writes the replay as gzipped gob to directory/<game id>.replay.
func (r *Replay) SaveToFile(directory string) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if err := os.MkdirAll(directory, 0o755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	file, err := os.Create(replayPath(directory, r.GameID))
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer file.Close()

	gzipWriter := gzip.NewWriter(file)
	encoder := gob.NewEncoder(gzipWriter)

	metadata := replayMetadata{
		GameID:     r.GameID,
		Timestamp:  time.Now(),
		Version:    replayVersion,
		FrameCount: len(r.Frames),
	}
	if err := encoder.Encode(&metadata); err != nil {
		return fmt.Errorf("failed to encode metadata: %w", err)
	}
	for i, f := range r.Frames {
		if err := encoder.Encode(f); err != nil {
			return fmt.Errorf("failed to encode frame %d: %w", i, err)
		}
	}
	if err := gzipWriter.Close(); err != nil {
		return fmt.Errorf("failed to flush replay: %w", err)
	}
	return nil
}

// LoadReplayFromFile reads a replay written by SaveToFile.
func LoadReplayFromFile(directory, gameID string) (*Replay, error) {
	file, err := os.Open(replayPath(directory, gameID))
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	gzipReader, err := gzip.NewReader(file)
	if err != nil {
		return nil, fmt.Errorf("failed to create gzip reader: %w", err)
	}
	defer gzipReader.Close()

	decoder := gob.NewDecoder(gzipReader)

	var metadata replayMetadata
	if err := decoder.Decode(&metadata); err != nil {
		return nil, fmt.Errorf("failed to decode metadata: %w", err)
	}
	if metadata.Version != replayVersion {
		return nil, fmt.Errorf("unsupported replay version: %d", metadata.Version)
	}

	replay := NewReplay(metadata.GameID)
	for i := 0; i < metadata.FrameCount; i++ {
		var f Frame
		if err := decoder.Decode(&f); err != nil {
			return nil, fmt.Errorf("failed to decode frame %d: %w", i, err)
		}
		replay.Frames = append(replay.Frames, &f)
	}
	return replay, nil
}

type replayMetadata struct {
	GameID     string
	Timestamp  time.Time
	Version    int
	FrameCount int
}

// recordedEvents are the events after which the position is worth a frame.
// A hit is always followed by the move that caused it.
var recordedEvents = map[rules.EventType]bool{
	rules.EventDiceRolled:      true,
	rules.EventDiceSwapped:     true,
	rules.EventCheckerMoved:    true,
	rules.EventCheckerEntered:  true,
	rules.EventCheckerBorneOff: true,
	rules.EventMoveUndone:      true,
	rules.EventTurnEnded:       true,
	rules.EventGameOver:        true,
	rules.EventGameReset:       true,
}

// replayWatcher appends a frame for each recorded event. It runs inside the
// engine's critical section, so every frame holds the position at the moment
// its event was emitted, even when one call emits several events.
type replayWatcher struct {
	engine *Engine
	replay *Replay
}

const replayWatcherKey = "replay"

func (w *replayWatcher) Watch(evt rules.Event) {
	if !recordedEvents[evt.Type] {
		return
	}
	w.replay.RecordFrame(&Frame{
		Event:    evt.Type,
		Color:    evt.Color,
		From:     evt.From,
		To:       evt.To,
		Amount:   evt.Amount,
		Time:     evt.Timestamp,
		Position: w.engine.positionLocked(),
	})
}

// Reset does nothing: a replay spans every game the engine plays.
func (w *replayWatcher) Reset() {}

func (w *replayWatcher) Scope() rules.WatcherScope { return rules.WatcherScopeGame }

func (w *replayWatcher) Key() string { return replayWatcherKey }

// ReplayRecorder records engines into replays and stores them in saveDir.
type ReplayRecorder struct {
	logger  *zap.Logger
	mu      sync.RWMutex
	replays map[string]*Replay
	engines map[string]*Engine
	saveDir string
}

// NewReplayRecorder creates a recorder saving into saveDir.
func NewReplayRecorder(logger *zap.Logger, saveDir string) *ReplayRecorder {
	return &ReplayRecorder{
		logger:  logger,
		replays: make(map[string]*Replay),
		engines: make(map[string]*Engine),
		saveDir: saveDir,
	}
}

// StartRecording records the current position of e as the first frame, then
// a frame per event.
func (rr *ReplayRecorder) StartRecording(e *Engine) {
	gameID := e.GameID()
	replay := NewReplay(gameID)

	e.mu.Lock()
	replay.RecordFrame(&Frame{
		Event:    rules.EventGameReset,
		Color:    e.turns.ColorToMove(),
		From:     board.NoPoint,
		To:       board.NoPoint,
		Time:     time.Now(),
		Position: e.positionLocked(),
	})
	e.watchers.AddWatcher(&replayWatcher{engine: e, replay: replay})
	e.mu.Unlock()

	rr.mu.Lock()
	rr.replays[gameID] = replay
	rr.engines[gameID] = e
	rr.mu.Unlock()

	if rr.logger != nil {
		rr.logger.Info("started replay recording", zap.String("game_id", gameID))
	}
}

// StopRecording detaches from the game but keeps the replay in memory.
func (rr *ReplayRecorder) StopRecording(gameID string) {
	rr.mu.Lock()
	e, ok := rr.engines[gameID]
	delete(rr.engines, gameID)
	rr.mu.Unlock()

	if !ok {
		return
	}
	e.mu.Lock()
	e.watchers.RemoveWatcher(replayWatcherKey)
	e.mu.Unlock()

	if rr.logger != nil {
		rr.logger.Info("stopped replay recording", zap.String("game_id", gameID))
	}
}

// IsRecording reports whether gameID is subscribed.
func (rr *ReplayRecorder) IsRecording(gameID string) bool {
	rr.mu.RLock()
	defer rr.mu.RUnlock()

	_, ok := rr.engines[gameID]
	return ok
}

// GetReplay returns the in-memory replay for a game.
func (rr *ReplayRecorder) GetReplay(gameID string) (*Replay, bool) {
	rr.mu.RLock()
	defer rr.mu.RUnlock()

	replay, exists := rr.replays[gameID]
	return replay, exists
}

// SaveReplay stops recording, writes the replay to disk and drops it from
// memory.
func (rr *ReplayRecorder) SaveReplay(gameID string) error {
	rr.StopRecording(gameID)

	rr.mu.Lock()
	replay, exists := rr.replays[gameID]
	delete(rr.replays, gameID)
	rr.mu.Unlock()
	if !exists {
		return fmt.Errorf("no replay found for game %s", gameID)
	}

	if err := replay.SaveToFile(rr.saveDir); err != nil {
		return fmt.Errorf("failed to save replay: %w", err)
	}

	if rr.logger != nil {
		rr.logger.Info("saved replay to disk",
			zap.String("game_id", gameID),
			zap.Int("frame_count", replay.Size()),
			zap.String("directory", rr.saveDir),
		)
	}
	return nil
}

// LoadReplay reads a saved replay.
func (rr *ReplayRecorder) LoadReplay(gameID string) (*Replay, error) {
	replay, err := LoadReplayFromFile(rr.saveDir, gameID)
	if err != nil {
		return nil, err
	}

	if rr.logger != nil {
		rr.logger.Info("loaded replay from disk",
			zap.String("game_id", gameID),
			zap.Int("frame_count", replay.Size()),
		)
	}
	return replay, nil
}

// ClearReplay stops recording and forgets the replay without saving.
func (rr *ReplayRecorder) ClearReplay(gameID string) {
	rr.StopRecording(gameID)

	rr.mu.Lock()
	delete(rr.replays, gameID)
	rr.mu.Unlock()

	if rr.logger != nil {
		rr.logger.Debug("cleared replay from memory", zap.String("game_id", gameID))
	}
}
