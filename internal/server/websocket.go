package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/trigammon/trigammon-server-go/internal/game"
	"github.com/trigammon/trigammon-server-go/internal/game/board"
	"github.com/trigammon/trigammon-server-go/internal/game/rules"
)

const sendBuffer = 256

// WSMessage is a client request.
type WSMessage struct {
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// WSResponse is a server reply or push. Pushes carry no ID.
type WSResponse struct {
	Type    string `json:"type"`
	ID      string `json:"id,omitempty"`
	Payload any    `json:"payload,omitempty"`
	Error   string `json:"error,omitempty"`
}

// MoveRequest addresses a move by source and destination. A missing index
// means no point.
type MoveRequest struct {
	From *int `json:"from"`
	To   *int `json:"to"`
}

// MoveByRequest addresses a move by source and die value.
type MoveByRequest struct {
	From  *int `json:"from"`
	Value int  `json:"value"`
}

// CheckResponse is the legality verdict for one proposed move.
type CheckResponse struct {
	Legal     bool              `json:"legal"`
	Violation string            `json:"violation"`
	Reason    string            `json:"reason,omitempty"`
	Details   map[string]string `json:"details,omitempty"`
}

// EndTurnResponse reports whether the turn passed.
type EndTurnResponse struct {
	Ended bool          `json:"ended"`
	State game.GameView `json:"state"`
}

// UndoResponse reports whether a move was reverted.
type UndoResponse struct {
	Undone bool          `json:"undone"`
	State  game.GameView `json:"state"`
}

// EventPayload is pushed for every engine event.
type EventPayload struct {
	Type   string            `json:"type"`
	Color  string            `json:"color"`
	From   int               `json:"from"`
	To     int               `json:"to"`
	Amount int               `json:"amount"`
	Epoch  int               `json:"epoch"`
	Dice   []int             `json:"dice,omitempty"`
	Time   time.Time         `json:"time"`
	Meta   map[string]string `json:"meta,omitempty"`
}

func eventPayload(evt rules.Event) EventPayload {
	return EventPayload{
		Type:   string(evt.Type),
		Color:  evt.Color.String(),
		From:   evt.From,
		To:     evt.To,
		Amount: evt.Amount,
		Epoch:  evt.Epoch,
		Dice:   evt.Dice,
		Time:   evt.Timestamp,
		Meta:   evt.Metadata,
	}
}

// Client is one WebSocket connection and the game it plays.
type Client struct {
	server *Server
	conn   *websocket.Conn
	engine *game.Engine
	logger *zap.Logger

	send chan WSResponse
	done chan struct{}
	once sync.Once

	subscription int
}

func (s *Server) serveWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	ss, err := s.openGame(false)
	if err != nil {
		s.logger.Error("failed to create game", zap.Error(err))
		_ = conn.Close()
		return
	}
	engine := ss.engine

	c := &Client{
		server: s,
		conn:   conn,
		engine: engine,
		logger: s.logger.With(zap.String("game_id", engine.GameID())),
		send:   make(chan WSResponse, sendBuffer),
		done:   make(chan struct{}),
	}
	c.subscription = engine.Events().Subscribe(c.onEvent)
	s.register(c)

	c.push(WSResponse{Type: "state", Payload: engine.View()})

	go c.writePump()
	go c.readPump()
}

// onEvent runs on whichever goroutine published: a request handler or the
// opponent's timer.
func (c *Client) onEvent(evt rules.Event) {
	c.push(WSResponse{Type: "event", Payload: eventPayload(evt)})
	switch evt.Type {
	case rules.EventCheckerMoved, rules.EventCheckerEntered, rules.EventCheckerBorneOff,
		rules.EventTurnEnded, rules.EventGameReset, rules.EventGameOver:
		if c.engine.IsAutomated(evt.Color) {
			c.push(WSResponse{Type: "state", Payload: c.engine.View()})
		}
	}
}

// push queues resp without blocking. A client that cannot keep up is
// disconnected on its own goroutine so the publisher is not held up.
func (c *Client) push(resp WSResponse) {
	select {
	case <-c.done:
		return
	default:
	}
	select {
	case c.send <- resp:
	case <-c.done:
	default:
		c.logger.Warn("send buffer full, closing connection")
		go c.close()
	}
}

func (c *Client) close() {
	c.once.Do(func() {
		close(c.done)
		c.engine.Events().Unsubscribe(c.subscription)
		_ = c.conn.Close()
		c.server.unregister(c)
	})
}

func (c *Client) readPump() {
	defer c.close()

	cfg := c.server.cfg
	if cfg.MaxMessageSize > 0 {
		c.conn.SetReadLimit(cfg.MaxMessageSize)
	}
	if cfg.ReadTimeout > 0 {
		_ = c.conn.SetReadDeadline(time.Now().Add(cfg.ReadTimeout))
		c.conn.SetPongHandler(func(string) error {
			return c.conn.SetReadDeadline(time.Now().Add(cfg.ReadTimeout))
		})
	}

	for {
		var msg WSMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Debug("websocket read failed", zap.Error(err))
			}
			var syntaxErr *json.SyntaxError
			var typeErr *json.UnmarshalTypeError
			if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
				c.push(WSResponse{Type: "error", Error: "invalid message"})
				continue
			}
			return
		}
		if cfg.ReadTimeout > 0 {
			_ = c.conn.SetReadDeadline(time.Now().Add(cfg.ReadTimeout))
		}
		c.handleMessage(msg)
	}
}

func (c *Client) writePump() {
	cfg := c.server.cfg
	var tick <-chan time.Time
	if cfg.PingInterval > 0 {
		ticker := time.NewTicker(cfg.PingInterval)
		defer ticker.Stop()
		tick = ticker.C
	}
	defer c.close()

	for {
		select {
		case <-c.done:
			_ = c.write(func() error {
				return c.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			})
			return
		case resp := <-c.send:
			if err := c.write(func() error { return c.conn.WriteJSON(resp) }); err != nil {
				c.logger.Debug("websocket write failed", zap.Error(err))
				return
			}
		case <-tick:
			if err := c.write(func() error { return c.conn.WriteMessage(websocket.PingMessage, nil) }); err != nil {
				return
			}
		}
	}
}

func (c *Client) write(fn func() error) error {
	if timeout := c.server.cfg.WriteTimeout; timeout > 0 {
		_ = c.conn.SetWriteDeadline(time.Now().Add(timeout))
	}
	return fn()
}

func (c *Client) reply(msg WSMessage, payload any) {
	c.push(WSResponse{Type: "result", ID: msg.ID, Payload: payload})
}

func (c *Client) fail(msg WSMessage, text string) {
	c.push(WSResponse{Type: "error", ID: msg.ID, Error: text})
}

func index(p *int) int {
	if p == nil {
		return board.NoPoint
	}
	return *p
}

func (c *Client) handleMessage(msg WSMessage) {
	c.logger.Debug("received message", zap.String("type", msg.Type), zap.String("id", msg.ID))

	switch msg.Type {
	case "state":
		c.reply(msg, c.engine.View())

	case "check":
		var req MoveRequest
		if err := json.Unmarshal(msg.Payload, &req); err != nil {
			c.fail(msg, "invalid payload")
			return
		}
		res := c.engine.Check(index(req.From), index(req.To))
		c.reply(msg, CheckResponse{
			Legal:     res.Legal,
			Violation: res.Violation.String(),
			Reason:    res.Reason,
			Details:   res.Details,
		})

	case "move":
		var req MoveRequest
		if err := json.Unmarshal(msg.Payload, &req); err != nil {
			c.fail(msg, "invalid payload")
			return
		}
		if err := c.engine.Move(index(req.From), index(req.To)); err != nil {
			c.fail(msg, err.Error())
			return
		}
		c.reply(msg, c.engine.View())

	case "move_by":
		var req MoveByRequest
		if err := json.Unmarshal(msg.Payload, &req); err != nil {
			c.fail(msg, "invalid payload")
			return
		}
		if err := c.engine.MoveBy(index(req.From), req.Value); err != nil {
			c.fail(msg, err.Error())
			return
		}
		c.reply(msg, c.engine.View())

	case "end_turn":
		ended := c.engine.EndTurn()
		c.reply(msg, EndTurnResponse{Ended: ended, State: c.engine.View()})

	case "undo":
		undone := c.engine.Undo()
		c.reply(msg, UndoResponse{Undone: undone, State: c.engine.View()})

	case "swap_dice":
		c.engine.SwapDice()
		c.reply(msg, c.engine.View())

	case "new_game":
		c.engine.NewGame()
		c.reply(msg, c.engine.View())

	case "ping":
		c.push(WSResponse{Type: "pong", ID: msg.ID})

	default:
		c.fail(msg, "unknown message type")
	}
}
