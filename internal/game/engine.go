// Package game drives a trigammon game: it owns the board, the dice and the
// undo history of one game, enforces turn order and runs the scripted
// opponent for automated colors.
package game

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/trigammon/trigammon-server-go/internal/game/board"
	"github.com/trigammon/trigammon-server-go/internal/game/dice"
	"github.com/trigammon/trigammon-server-go/internal/game/rules"
)

// ErrIllegalMove is returned when the rules reject a move.
var ErrIllegalMove = rules.ErrIllegalMove

// ErrNotYourTurn is returned when a command is issued for a color the
// scripted opponent plays.
var ErrNotYourTurn = errors.New("color to move is automated")

// DefaultOpponentDelay is the thinking time between scripted moves.
const DefaultOpponentDelay = 500 * time.Millisecond

// Engine is the turn controller of a single game. All exported methods are
// safe for concurrent use; each runs as one critical section.
type Engine struct {
	logger *zap.Logger
	mu     sync.Mutex
	gameID string

	board     *board.Board
	dice      dice.Set
	canRemove map[board.Color]bool
	turns     *rules.TurnManager
	history   *history

	// epoch increments on every reinitialization so that opponent steps
	// scheduled for an earlier game do nothing.
	epoch       int
	closed      bool
	winner      board.Color
	gamesPlayed int
	wins        map[board.Color]int

	roller    dice.Roller
	automated map[board.Color]bool
	opponent  *ScriptedOpponent
	events    *rules.EventBus
	queued    []rules.Event
	watchers  *rules.WatcherRegistry
}

// Option configures an Engine.
type Option func(*Engine)

// WithRoller sets the dice source. The default draws from crypto/rand.
func WithRoller(r dice.Roller) Option {
	return func(e *Engine) {
		if r != nil {
			e.roller = r
		}
	}
}

// WithAutomated hands colors to the scripted opponent.
func WithAutomated(colors ...board.Color) Option {
	return func(e *Engine) {
		for _, c := range colors {
			if c.Valid() {
				e.automated[c] = true
			}
		}
	}
}

// WithScheduler sets how opponent steps are deferred. The default uses timers.
func WithScheduler(s Scheduler) Option {
	return func(e *Engine) {
		if s != nil {
			e.opponent.scheduler = s
		}
	}
}

// WithOpponentDelay sets the thinking time between opponent steps.
func WithOpponentDelay(d time.Duration) Option {
	return func(e *Engine) {
		if d >= 0 {
			e.opponent.delay = d
		}
	}
}

// WithGameID overrides the generated game ID.
func WithGameID(id string) Option {
	return func(e *Engine) {
		if id != "" {
			e.gameID = id
		}
	}
}

// NewEngine creates an engine with a fresh game already rolled for White.
func NewEngine(logger *zap.Logger, opts ...Option) *Engine {
	e := &Engine{
		logger:    logger,
		gameID:    uuid.NewString(),
		board:     board.New(),
		canRemove: make(map[board.Color]bool),
		turns:     rules.NewTurnManager(board.White),
		history:   newHistory(),
		wins:      make(map[board.Color]int),
		roller:    dice.CryptoRoller{},
		automated: make(map[board.Color]bool),
		events:    rules.NewEventBus(),
		watchers:  rules.NewWatcherRegistry(),
	}
	e.watchers.AddWatcher(rules.NewStatsWatcher())
	e.watchers.AddWatcher(rules.NewHitWatcher())
	e.opponent = newScriptedOpponent(e, TimerScheduler{}, DefaultOpponentDelay)
	for _, opt := range opts {
		opt(e)
	}

	e.mu.Lock()
	e.newGameLocked()
	events := e.takeEvents()
	e.mu.Unlock()
	e.publish(events)

	if e.logger != nil {
		e.logger.Info("trigammon engine started game",
			zap.String("game_id", e.gameID),
			zap.Bool("white_automated", e.automated[board.White]),
			zap.Bool("black_automated", e.automated[board.Black]),
		)
	}

	return e
}

// GameID returns the identifier used in logs and views.
func (e *Engine) GameID() string {
	return e.gameID
}

// Events returns the bus engine events are published on. Listeners run after
// the engine lock is released and may call back into the engine.
func (e *Engine) Events() *rules.EventBus {
	return e.events
}

// Close stops the scripted opponent. Steps already scheduled do nothing.
func (e *Engine) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	e.epoch++
}

// liveState exposes the engine fields to the rules package. It never locks;
// callers must hold e.mu.
type liveState struct {
	e *Engine
}

func (s liveState) Board() *board.Board {
	return s.e.board
}

func (s liveState) Dice() dice.Set {
	return s.e.dice
}

func (s liveState) ColorToMove() board.Color {
	return s.e.turns.ColorToMove()
}

func (s liveState) CanRemove(c board.Color) bool {
	return s.e.canRemove[c]
}

func (e *Engine) checker() *rules.LegalityChecker {
	return rules.NewLegalityChecker(liveState{e})
}

// ColorToMove returns the color whose turn it is.
func (e *Engine) ColorToMove() board.Color {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.turns.ColorToMove()
}

// Board returns a copy of the position.
func (e *Engine) Board() *board.Board {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.board.Clone()
}

// Dice returns a copy of the current dice.
func (e *Engine) Dice() dice.Set {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.dice.Clone()
}

// Epoch returns the game generation.
func (e *Engine) Epoch() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.epoch
}

// CanUndo reports whether the current turn has a move to take back.
func (e *Engine) CanUndo() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.history.Len() > 0
}

// CanRemove reports whether c may bear off.
func (e *Engine) CanRemove(c board.Color) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.canRemove[c]
}

// IsAutomated reports whether the scripted opponent plays c.
func (e *Engine) IsAutomated(c board.Color) bool {
	return e.automated[c]
}

// Check explains whether the color to move may move from from to to.
func (e *Engine) Check(from, to int) rules.LegalityResult {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.checker().Check(from, to)
}

// IsAllowed reports whether the color to move may move from from to to.
func (e *Engine) IsAllowed(from, to int) bool {
	return e.Check(from, to).Legal
}

// CheckMovesAvailable recomputes the allowed flags and reports whether an
// unused allowed die remains.
func (e *Engine) CheckMovesAvailable() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.checkMovesAvailableLocked()
}

// CanEndTurn reports whether EndTurn would succeed.
func (e *Engine) CanEndTurn() bool {
	return !e.CheckMovesAvailable()
}

func (e *Engine) checkMovesAvailableLocked() bool {
	return e.checker().RefreshAllowed(e.dice)
}

func (e *Engine) refreshCanRemoveLocked() {
	e.canRemove[board.White] = rules.ComputeCanRemove(e.board, board.White)
	e.canRemove[board.Black] = rules.ComputeCanRemove(e.board, board.Black)
}

// Move moves one checker of the color to move from from to to.
func (e *Engine) Move(from, to int) error {
	e.mu.Lock()
	var err error
	if e.automated[e.turns.ColorToMove()] {
		err = ErrNotYourTurn
	} else {
		err = e.moveLocked(from, to, anyDie)
	}
	events := e.takeEvents()
	e.mu.Unlock()
	e.publish(events)
	return err
}

// MoveBy moves the checker on from by value pips in the direction of the
// color to move. A pending checker enters and a checker passing the edge is
// borne off. The move consumes an unused die showing value and must be legal
// with that die alone.
func (e *Engine) MoveBy(from, value int) error {
	e.mu.Lock()
	var err error
	if e.automated[e.turns.ColorToMove()] {
		err = ErrNotYourTurn
	} else {
		err = e.moveByLocked(from, value)
	}
	events := e.takeEvents()
	e.mu.Unlock()
	e.publish(events)
	return err
}

func (e *Engine) moveByLocked(from, value int) error {
	if value < 1 || value > dice.Faces {
		return fmt.Errorf("%w: die value %d out of range 1..%d", ErrIllegalMove, value, dice.Faces)
	}
	idx := e.dice.UnusedIndex(value)
	if idx < 0 {
		return fmt.Errorf("%w: no unused die shows %d", ErrIllegalMove, value)
	}
	return e.moveLocked(from, rules.Target(e.turns.ColorToMove(), from, value), idx)
}

// anyDie lets moveLocked pick the die the way the legality checker matches it.
const anyDie = -1

// moveLocked applies one move. With die set to an index, only that die may
// carry the move and it is the one consumed.
func (e *Engine) moveLocked(from, to, die int) error {
	color := e.turns.ColorToMove()
	checker := e.checker()
	result := checker.Check(from, to)
	if die != anyDie {
		result = checker.CheckDie(from, to, die)
	}
	if !result.Legal {
		if e.logger != nil {
			e.logger.Debug("rejected move",
				zap.String("game_id", e.gameID),
				zap.String("color", color.String()),
				zap.Int("from", from),
				zap.Int("to", to),
				zap.String("violation", result.Violation.String()),
			)
		}
		return fmt.Errorf("%w: %s (%s)", ErrIllegalMove, result.Reason, result.Violation)
	}

	e.history.Push(snapshot{
		board:     e.board.Clone(),
		dice:      e.dice.Clone(),
		canRemove: map[board.Color]bool{board.White: e.canRemove[board.White], board.Black: e.canRemove[board.Black]},
	})

	var out rules.Outcome
	var err error
	if die == anyDie {
		out, err = rules.Apply(liveState{e}, from, to)
	} else {
		out, err = rules.ApplyDie(liveState{e}, from, to, die)
	}
	if err != nil {
		// Check and Apply read the same state, so this only fires on a rules bug.
		e.history.Pop()
		return err
	}

	e.refreshCanRemoveLocked()
	e.checkMovesAvailableLocked()

	if out.Captured {
		opp := color.Opponent()
		e.emit(rules.NewMoveEvent(rules.EventCheckerHit, opp, e.epoch, to, board.PendingSlot(opp), 0))
	}
	evtType := rules.EventCheckerMoved
	switch {
	case out.BorneOff:
		evtType = rules.EventCheckerBorneOff
	case out.Entered:
		evtType = rules.EventCheckerEntered
	}
	e.emit(rules.NewMoveEvent(evtType, color, e.epoch, from, to, out.Value))

	if e.logger != nil {
		e.logger.Debug("moved checker",
			zap.String("game_id", e.gameID),
			zap.String("color", color.String()),
			zap.Int("from", from),
			zap.Int("to", to),
			zap.Int("die", out.Value),
			zap.Bool("captured", out.Captured),
		)
	}

	if e.board.Removed(color) == board.CheckersPerColor {
		e.gameOverLocked(color)
	}
	return nil
}

func (e *Engine) gameOverLocked(winner board.Color) {
	e.winner = winner
	e.gamesPlayed++
	e.wins[winner]++

	evt := rules.NewEvent(rules.EventGameOver, winner, e.epoch)
	evt.Amount = e.turns.TurnNumber()
	// The watchers reset with the next game, so the final tallies travel
	// with the event.
	for _, c := range []board.Color{board.White, board.Black} {
		st := e.statsLocked(c)
		prefix := strings.ToLower(c.String()) + "_"
		evt.Metadata[prefix+"moves"] = strconv.Itoa(st.Moves)
		evt.Metadata[prefix+"pips"] = strconv.Itoa(st.Pips)
		evt.Metadata[prefix+"hits"] = strconv.Itoa(st.Hits)
	}
	e.emit(evt)

	if e.logger != nil {
		e.logger.Info("game ended",
			zap.String("game_id", e.gameID),
			zap.String("winner", winner.String()),
			zap.Int("turns", e.turns.TurnNumber()),
			zap.Int("epoch", e.epoch),
		)
	}

	e.newGameLocked()
}

// EndTurn passes the turn to the other color. It does nothing and returns
// false while a die can still be played.
func (e *Engine) EndTurn() bool {
	e.mu.Lock()
	ended := false
	if !e.automated[e.turns.ColorToMove()] {
		ended = e.endTurnLocked()
	}
	events := e.takeEvents()
	e.mu.Unlock()
	e.publish(events)
	return ended
}

func (e *Engine) endTurnLocked() bool {
	color := e.turns.ColorToMove()
	if e.checkMovesAvailableLocked() {
		e.emit(rules.NewEvent(rules.EventEndTurnRefused, color, e.epoch))
		return false
	}

	e.turns.EndTurn()
	evt := rules.NewEvent(rules.EventTurnEnded, color, e.epoch)
	evt.Amount = e.turns.TurnNumber()
	e.emit(evt)

	e.turns.AdvanceTurn()
	e.history.Clear()

	if e.logger != nil {
		e.logger.Debug("turn ended",
			zap.String("game_id", e.gameID),
			zap.String("color", color.String()),
			zap.Int("next_turn", e.turns.TurnNumber()),
		)
	}

	e.rollDiceLocked()
	return true
}

// Undo takes back the last move of the current turn. It returns false when
// there is nothing to take back.
func (e *Engine) Undo() bool {
	e.mu.Lock()
	undone := false
	if !e.automated[e.turns.ColorToMove()] {
		undone = e.undoLocked()
	}
	events := e.takeEvents()
	e.mu.Unlock()
	e.publish(events)
	return undone
}

func (e *Engine) undoLocked() bool {
	s, ok := e.history.Pop()
	if !ok {
		return false
	}
	e.board = s.board
	e.dice = s.dice
	e.canRemove = s.canRemove
	e.emit(rules.NewEvent(rules.EventMoveUndone, e.turns.ColorToMove(), e.epoch))
	return true
}

// RollDice replaces the dice of the current turn. It is called at every turn
// boundary; calling it directly rerolls.
func (e *Engine) RollDice() {
	e.mu.Lock()
	e.rollDiceLocked()
	events := e.takeEvents()
	e.mu.Unlock()
	e.publish(events)
}

func (e *Engine) rollDiceLocked() {
	color := e.turns.ColorToMove()
	e.dice = dice.Roll(e.roller)
	e.checkMovesAvailableLocked()

	evt := rules.NewEvent(rules.EventDiceRolled, color, e.epoch)
	evt.Dice = e.dice.Values()
	evt.Amount = e.turns.TurnNumber()
	e.emit(evt)

	if e.logger != nil {
		e.logger.Debug("rolled dice",
			zap.String("game_id", e.gameID),
			zap.String("color", color.String()),
			zap.Ints("dice", evt.Dice),
		)
	}

	if e.automated[color] && !e.closed {
		e.opponent.schedule(e.epoch, color)
	}
}

// SwapDice reverses the display order of the dice.
func (e *Engine) SwapDice() {
	e.mu.Lock()
	e.dice.Swap()
	e.emit(rules.NewEvent(rules.EventDiceSwapped, e.turns.ColorToMove(), e.epoch))
	events := e.takeEvents()
	e.mu.Unlock()
	e.publish(events)
}

// NewGame reinitializes to the starting layout with White to move.
func (e *Engine) NewGame() {
	e.mu.Lock()
	e.newGameLocked()
	events := e.takeEvents()
	e.mu.Unlock()
	e.publish(events)
}

func (e *Engine) newGameLocked() {
	e.epoch++
	e.board.Reset()
	e.turns.Reset(board.White)
	e.history.Clear()
	e.refreshCanRemoveLocked()
	e.emit(rules.NewEvent(rules.EventGameReset, board.White, e.epoch))
	e.rollDiceLocked()
}

// LoadPosition replaces the game state with an arbitrary position, for
// puzzles and tests. The history is cleared and a new epoch begins so any
// scheduled opponent step is dropped. Dice values are kept, flags recomputed.
func (e *Engine) LoadPosition(b *board.Board, set dice.Set, toMove board.Color) error {
	if b == nil {
		return fmt.Errorf("load position: nil board")
	}
	if err := b.Validate(); err != nil {
		return fmt.Errorf("load position: %w", err)
	}
	if !toMove.Valid() {
		return fmt.Errorf("load position: invalid color %s", toMove)
	}
	for _, d := range set {
		if d.Value < 1 || d.Value > dice.Faces {
			return fmt.Errorf("load position: die value %d out of range", d.Value)
		}
	}

	e.mu.Lock()
	e.epoch++
	e.board = b.Clone()
	e.dice = set.Clone()
	e.turns.Restore(e.turns.TurnNumber(), toMove, rules.PhaseToMove)
	e.history.Clear()
	e.refreshCanRemoveLocked()
	e.checkMovesAvailableLocked()
	if e.automated[toMove] && !e.closed {
		e.opponent.schedule(e.epoch, toMove)
	}
	e.mu.Unlock()
	return nil
}

func (e *Engine) emit(evt rules.Event) {
	e.watchers.NotifyWatchers(evt)
	e.queued = append(e.queued, evt)
}

// Stats returns what c has done in the current game.
func (e *Engine) Stats(c board.Color) rules.ColorStats {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.statsLocked(c)
}

func (e *Engine) statsLocked(c board.Color) rules.ColorStats {
	w, ok := e.watchers.GetWatcher(rules.StatsWatcherKey).(*rules.StatsWatcher)
	if !ok {
		return rules.ColorStats{}
	}
	return w.Stats(c)
}

// HitThisTurn reports whether c has hit a checker in the current turn.
func (e *Engine) HitThisTurn(c board.Color) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.hitLocked(c)
}

func (e *Engine) hitLocked(c board.Color) bool {
	w, ok := e.watchers.GetWatcher(rules.HitWatcherKey).(*rules.HitWatcher)
	return ok && w.ConditionMet(c)
}

func (e *Engine) takeEvents() []rules.Event {
	events := e.queued
	e.queued = nil
	return events
}

func (e *Engine) publish(events []rules.Event) {
	for _, evt := range events {
		e.events.Publish(evt)
	}
}
