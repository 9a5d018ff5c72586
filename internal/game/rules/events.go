package rules

import (
	"sort"
	"sync"
	"time"

	"github.com/trigammon/trigammon-server-go/internal/game/board"
)

// EventType indicates the category of a rules event.
type EventType string

const (
	// Dice events
	EventDiceRolled  EventType = "DICE_ROLLED"
	EventDiceSwapped EventType = "DICE_SWAPPED"

	// Move events
	EventCheckerMoved    EventType = "CHECKER_MOVED"
	EventCheckerHit      EventType = "CHECKER_HIT"
	EventCheckerEntered  EventType = "CHECKER_ENTERED"
	EventCheckerBorneOff EventType = "CHECKER_BORNE_OFF"
	EventMoveUndone      EventType = "MOVE_UNDONE"

	// Turn events
	EventEndTurnRefused EventType = "END_TURN_REFUSED"
	EventTurnEnded      EventType = "TURN_ENDED"

	// Game events
	EventGameOver  EventType = "GAME_OVER"
	EventGameReset EventType = "GAME_RESET"
)

// Event represents a state change that other subsystems may react to.
type Event struct {
	Type      EventType
	Color     board.Color // Color the event concerns
	From      int         // Source point or slot, NoPoint when unused
	To        int         // Destination point or slot, NoPoint when unused
	Amount    int         // Die value, turn number, etc.
	Epoch     int         // Game generation the event belongs to
	Dice      []int       // Dice values for roll events
	Timestamp time.Time
	Metadata  map[string]string
}

// Listener defines a callback that reacts to incoming events.
type Listener func(Event)

// TypedListener defines a callback that reacts to a specific event type.
type TypedListener struct {
	Handle    int
	EventType EventType
	Callback  func(Event)
}

// EventBus provides a synchronous publish/subscribe implementation with type filtering.
type EventBus struct {
	mu             sync.RWMutex
	listeners      map[int]Listener
	typedListeners map[EventType][]TypedListener
	nextHandle     int
}

// NewEventBus constructs a fresh event bus instance.
func NewEventBus() *EventBus {
	return &EventBus{
		listeners:      make(map[int]Listener),
		typedListeners: make(map[EventType][]TypedListener),
	}
}

// Subscribe registers a listener for all events and returns a handle.
func (bus *EventBus) Subscribe(listener Listener) int {
	if listener == nil {
		return -1
	}
	bus.mu.Lock()
	defer bus.mu.Unlock()
	handle := bus.nextHandle
	bus.nextHandle++
	bus.listeners[handle] = listener
	return handle
}

// SubscribeTyped registers a listener for a specific event type.
func (bus *EventBus) SubscribeTyped(eventType EventType, callback func(Event)) int {
	if callback == nil {
		return -1
	}
	bus.mu.Lock()
	defer bus.mu.Unlock()
	handle := bus.nextHandle
	bus.nextHandle++
	bus.typedListeners[eventType] = append(bus.typedListeners[eventType], TypedListener{
		Handle:    handle,
		EventType: eventType,
		Callback:  callback,
	})
	return handle
}

// Unsubscribe removes the listener identified by the provided handle,
// whether it was registered for all events or for one type.
func (bus *EventBus) Unsubscribe(handle int) {
	bus.mu.Lock()
	defer bus.mu.Unlock()
	delete(bus.listeners, handle)
	for eventType, listeners := range bus.typedListeners {
		for i := len(listeners) - 1; i >= 0; i-- {
			if listeners[i].Handle == handle {
				bus.typedListeners[eventType] = append(listeners[:i], listeners[i+1:]...)
				break
			}
		}
	}
}

// Publish delivers the event to every listener in subscription order, catch-all
// listeners first. Listeners run outside the bus lock and may unsubscribe.
func (bus *EventBus) Publish(event Event) {
	bus.mu.RLock()
	handles := make([]int, 0, len(bus.listeners))
	for h := range bus.listeners {
		handles = append(handles, h)
	}
	sort.Ints(handles)
	calls := make([]func(Event), 0, len(handles)+len(bus.typedListeners[event.Type]))
	for _, h := range handles {
		calls = append(calls, bus.listeners[h])
	}
	for _, tl := range bus.typedListeners[event.Type] {
		calls = append(calls, tl.Callback)
	}
	bus.mu.RUnlock()

	for _, call := range calls {
		call(event)
	}
}

// NewEvent creates a new event with common fields populated.
func NewEvent(eventType EventType, color board.Color, epoch int) Event {
	return Event{
		Type:      eventType,
		Color:     color,
		From:      board.NoPoint,
		To:        board.NoPoint,
		Epoch:     epoch,
		Timestamp: time.Now(),
		Metadata:  make(map[string]string),
	}
}

// NewMoveEvent creates an event describing a checker going from from to to.
func NewMoveEvent(eventType EventType, color board.Color, epoch, from, to, value int) Event {
	evt := NewEvent(eventType, color, epoch)
	evt.From = from
	evt.To = to
	evt.Amount = value
	return evt
}
