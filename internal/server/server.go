// Package server exposes trigammon games over WebSocket and gRPC. Every
// WebSocket connection owns one game engine; gRPC callers create games by ID.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"google.golang.org/grpc"

	"github.com/trigammon/trigammon-server-go/internal/config"
	"github.com/trigammon/trigammon-server-go/internal/game"
	"github.com/trigammon/trigammon-server-go/internal/game/board"
	"github.com/trigammon/trigammon-server-go/internal/repository"
)

const defaultResultLimit = 20

// Server tracks live connections and builds an engine for each.
type Server struct {
	cfg       config.WebSocketConfig
	automated []board.Color
	delay     time.Duration
	game      config.GameConfig
	logger    *zap.Logger
	upgrader  websocket.Upgrader
	grpcCfg   config.GRPCConfig
	recorder  *game.ReplayRecorder
	results   repository.ResultStore

	mu       sync.RWMutex
	clients  map[string]*Client
	sessions map[string]*session
}

// session is one live game and the bookkeeping attached to it.
type session struct {
	engine       *game.Engine
	stopTracking func()
	remote       bool

	mu       sync.Mutex
	lastUsed time.Time
}

func (ss *session) touch() {
	ss.mu.Lock()
	ss.lastUsed = time.Now()
	ss.mu.Unlock()
}

func (ss *session) idleSince() time.Time {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	return ss.lastUsed
}

// New builds a server from the loaded configuration. Finished games go to
// results, or to an in-memory store when results is nil.
func New(cfg *config.Config, logger *zap.Logger, results repository.ResultStore) (*Server, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	colors, err := cfg.Opponent.Colors()
	if err != nil {
		return nil, err
	}
	if _, err := cfg.Game.Roller(); err != nil {
		return nil, err
	}

	s := &Server{
		cfg:       cfg.Server.WebSocket,
		automated: colors,
		delay:     cfg.Opponent.Delay,
		game:      cfg.Game,
		grpcCfg:   cfg.Server.GRPC,
		logger:    logger,
		results:   results,
		clients:   make(map[string]*Client),
		sessions:  make(map[string]*session),
	}
	if s.results == nil {
		s.results = repository.NewMemoryStore()
	}
	if cfg.Replay.Enabled {
		s.recorder = game.NewReplayRecorder(logger, cfg.Replay.Directory)
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.checkOrigin,
	}
	return s, nil
}

// checkOrigin accepts any origin when none are configured, and requests
// without an Origin header.
func (s *Server) checkOrigin(r *http.Request) bool {
	if len(s.cfg.AllowedOrigins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range s.cfg.AllowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	return false
}

// Router returns the HTTP routes.
func (s *Server) Router() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/ws", s.serveWS)
	r.HandleFunc("/healthz", s.health).Methods(http.MethodGet)
	r.HandleFunc("/slots", s.slots).Methods(http.MethodGet)
	r.HandleFunc("/results", s.listResults).Methods(http.MethodGet)
	return r
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, map[string]any{
		"status": "ok",
		"games":  s.ActiveGames(),
	})
}

func (s *Server) slots(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, game.Slots())
}

// ResultsResponse is the body of GET /results.
type ResultsResponse struct {
	Totals repository.Totals       `json:"totals"`
	Recent []repository.GameResult `json:"recent"`
}

func (s *Server) listResults(w http.ResponseWriter, r *http.Request) {
	limit := defaultResultLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}

	totals, err := s.results.Totals(r.Context())
	if err != nil {
		s.logger.Error("failed to count results", zap.Error(err))
		http.Error(w, "results unavailable", http.StatusInternalServerError)
		return
	}
	recent, err := s.results.RecentResults(r.Context(), limit)
	if err != nil {
		s.logger.Error("failed to list results", zap.Error(err))
		http.Error(w, "results unavailable", http.StatusInternalServerError)
		return
	}
	writeJSON(w, ResultsResponse{Totals: totals, Recent: recent})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

// ActiveGames reports the number of live games on both transports.
func (s *Server) ActiveGames() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// openGame builds an engine and starts its replay and result tracking.
func (s *Server) openGame(remote bool) (*session, error) {
	roller, err := s.game.Roller()
	if err != nil {
		return nil, err
	}
	id := uuid.NewString()
	e := game.NewEngine(s.logger.With(zap.String("game_id", id)),
		game.WithGameID(id),
		game.WithRoller(roller),
		game.WithAutomated(s.automated...),
		game.WithOpponentDelay(s.delay),
	)

	if s.recorder != nil {
		s.recorder.StartRecording(e)
	}
	ss := &session{
		engine:       e,
		stopTracking: repository.Track(e, s.results, s.logger),
		remote:       remote,
		lastUsed:     time.Now(),
	}

	s.mu.Lock()
	s.sessions[id] = ss
	count := len(s.sessions)
	s.mu.Unlock()
	s.logger.Info("game opened",
		zap.String("game_id", id),
		zap.Bool("grpc", remote),
		zap.Int("active_games", count),
	)
	return ss, nil
}

func (s *Server) lookupGame(id string) (*session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ss, ok := s.sessions[id]
	return ss, ok
}

// closeGame stops the engine and saves its replay. The game stays counted
// until the replay is on disk.
func (s *Server) closeGame(id string) bool {
	ss, ok := s.lookupGame(id)
	if !ok {
		return false
	}
	ss.engine.Close()
	ss.stopTracking()
	if s.recorder != nil {
		if err := s.recorder.SaveReplay(id); err != nil {
			s.logger.Warn("failed to save replay",
				zap.String("game_id", id),
				zap.Error(err),
			)
		}
	}

	s.mu.Lock()
	_, stillOpen := s.sessions[id]
	delete(s.sessions, id)
	count := len(s.sessions)
	s.mu.Unlock()
	if !stillOpen {
		return false
	}
	s.logger.Info("game closed",
		zap.String("game_id", id),
		zap.Int("active_games", count),
	)
	return true
}

// closeIdle closes gRPC games untouched for longer than maxIdle.
func (s *Server) closeIdle(maxIdle time.Duration) int {
	cutoff := time.Now().Add(-maxIdle)
	s.mu.RLock()
	var stale []string
	for id, ss := range s.sessions {
		if ss.remote && !ss.idleSince().After(cutoff) {
			stale = append(stale, id)
		}
	}
	s.mu.RUnlock()

	closed := 0
	for _, id := range stale {
		if s.closeGame(id) {
			closed++
		}
	}
	return closed
}

func (s *Server) register(c *Client) {
	s.mu.Lock()
	s.clients[c.engine.GameID()] = c
	s.mu.Unlock()
	s.logger.Debug("client connected", zap.String("game_id", c.engine.GameID()))
}

func (s *Server) unregister(c *Client) {
	s.mu.Lock()
	delete(s.clients, c.engine.GameID())
	s.mu.Unlock()
	s.closeGame(c.engine.GameID())
	s.logger.Debug("client disconnected", zap.String("game_id", c.engine.GameID()))
}

// CloseAll disconnects every client and closes every game.
func (s *Server) CloseAll() {
	s.mu.RLock()
	clients := make([]*Client, 0, len(s.clients))
	for _, c := range s.clients {
		clients = append(clients, c)
	}
	s.mu.RUnlock()

	for _, c := range clients {
		c.close()
	}
	s.closeIdle(0)
}

// ListenAndServe serves WebSocket and, when an address is configured, gRPC
// until ctx is cancelled, then shuts down within shutdownTimeout.
func (s *Server) ListenAndServe(ctx context.Context, shutdownTimeout time.Duration) error {
	srv := &http.Server{
		Addr:              s.cfg.Address,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 2)
	go func() {
		s.logger.Info("starting WebSocket server", zap.String("address", s.cfg.Address))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("listen %s: %w", s.cfg.Address, err)
		}
	}()

	var grpcServer *grpc.Server
	if s.grpcCfg.Address != "" {
		lis, err := net.Listen("tcp", s.grpcCfg.Address)
		if err != nil {
			_ = srv.Close()
			return fmt.Errorf("listen %s: %w", s.grpcCfg.Address, err)
		}
		grpcServer = s.NewGRPCServer()
		go func() {
			s.logger.Info("starting gRPC server", zap.String("address", s.grpcCfg.Address))
			if err := grpcServer.Serve(lis); err != nil {
				errCh <- fmt.Errorf("serve gRPC: %w", err)
			}
		}()
		go s.reapIdleGames(ctx)
	}

	var serveErr error
	select {
	case serveErr = <-errCh:
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if grpcServer != nil {
		stopped := make(chan struct{})
		go func() {
			grpcServer.GracefulStop()
			close(stopped)
		}()
		select {
		case <-stopped:
		case <-shutdownCtx.Done():
			grpcServer.Stop()
		}
	}
	// Hijacked connections are not tracked by Shutdown.
	s.CloseAll()
	if err := srv.Shutdown(shutdownCtx); err != nil && serveErr == nil {
		serveErr = fmt.Errorf("shutdown: %w", err)
	}
	return serveErr
}
