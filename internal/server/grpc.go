package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"runtime"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/encoding"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"

	"github.com/trigammon/trigammon-server-go/internal/game"
)

// GameServiceName is the full gRPC service name.
const GameServiceName = "trigammon.v1.GameService"

// jsonCodec carries gRPC messages as JSON so the service needs no generated
// protobuf types. Clients select it with the "json" content subtype.
type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error)      { return json.Marshal(v) }
func (jsonCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }
func (jsonCodec) Name() string                       { return "json" }

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

// CreateGameRequest starts a game.
type CreateGameRequest struct{}

// GameRequest addresses a game by ID.
type GameRequest struct {
	GameID string `json:"game_id"`
}

// MoveCall is a move or legality query on one game.
type MoveCall struct {
	GameID string `json:"game_id"`
	MoveRequest
}

// MoveByCall moves by die value on one game.
type MoveByCall struct {
	GameID string `json:"game_id"`
	MoveByRequest
}

// GameReply carries the game state after a call.
type GameReply struct {
	State game.GameView `json:"state"`
}

// CloseGameReply reports whether the game existed.
type CloseGameReply struct {
	Closed bool `json:"closed"`
}

// GameServiceServer is the server API for the game service.
type GameServiceServer interface {
	CreateGame(context.Context, *CreateGameRequest) (*GameReply, error)
	GetState(context.Context, *GameRequest) (*GameReply, error)
	Check(context.Context, *MoveCall) (*CheckResponse, error)
	Move(context.Context, *MoveCall) (*GameReply, error)
	MoveBy(context.Context, *MoveByCall) (*GameReply, error)
	EndTurn(context.Context, *GameRequest) (*EndTurnResponse, error)
	Undo(context.Context, *GameRequest) (*UndoResponse, error)
	SwapDice(context.Context, *GameRequest) (*GameReply, error)
	NewGame(context.Context, *GameRequest) (*GameReply, error)
	CloseGame(context.Context, *GameRequest) (*CloseGameReply, error)
}

func unaryMethod[Req, Resp any](name string, call func(GameServiceServer, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			svc := srv.(GameServiceServer)
			if interceptor == nil {
				return call(svc, ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + GameServiceName + "/" + name}
			return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
				return call(svc, ctx, req.(*Req))
			})
		},
	}
}

var gameServiceDesc = grpc.ServiceDesc{
	ServiceName: GameServiceName,
	HandlerType: (*GameServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		unaryMethod("CreateGame", GameServiceServer.CreateGame),
		unaryMethod("GetState", GameServiceServer.GetState),
		unaryMethod("Check", GameServiceServer.Check),
		unaryMethod("Move", GameServiceServer.Move),
		unaryMethod("MoveBy", GameServiceServer.MoveBy),
		unaryMethod("EndTurn", GameServiceServer.EndTurn),
		unaryMethod("Undo", GameServiceServer.Undo),
		unaryMethod("SwapDice", GameServiceServer.SwapDice),
		unaryMethod("NewGame", GameServiceServer.NewGame),
		unaryMethod("CloseGame", GameServiceServer.CloseGame),
	},
	Streams: []grpc.StreamDesc{},
}

// RegisterGameServiceServer registers srv on s.
func RegisterGameServiceServer(s grpc.ServiceRegistrar, srv GameServiceServer) {
	s.RegisterService(&gameServiceDesc, srv)
}

// gameService implements GameServiceServer on top of the server's games.
type gameService struct {
	server *Server
}

func (g *gameService) game(id string) (*game.Engine, error) {
	if id == "" {
		return nil, status.Error(codes.InvalidArgument, "game_id is required")
	}
	ss, ok := g.server.lookupGame(id)
	if !ok || !ss.remote {
		return nil, status.Errorf(codes.NotFound, "game %s not found", id)
	}
	ss.touch()
	return ss.engine, nil
}

// gameError maps engine errors to gRPC status codes.
func gameError(err error) error {
	switch {
	case errors.Is(err, game.ErrIllegalMove):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, game.ErrNotYourTurn):
		return status.Error(codes.FailedPrecondition, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}

func (g *gameService) CreateGame(ctx context.Context, _ *CreateGameRequest) (*GameReply, error) {
	ss, err := g.server.openGame(true)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	g.server.logger.Info("game created over gRPC",
		zap.String("game_id", ss.engine.GameID()),
		zap.String("peer", peerAddress(ctx)),
	)
	return &GameReply{State: ss.engine.View()}, nil
}

func (g *gameService) GetState(_ context.Context, req *GameRequest) (*GameReply, error) {
	e, err := g.game(req.GameID)
	if err != nil {
		return nil, err
	}
	return &GameReply{State: e.View()}, nil
}

func (g *gameService) Check(_ context.Context, req *MoveCall) (*CheckResponse, error) {
	e, err := g.game(req.GameID)
	if err != nil {
		return nil, err
	}
	res := e.Check(index(req.From), index(req.To))
	return &CheckResponse{
		Legal:     res.Legal,
		Violation: res.Violation.String(),
		Reason:    res.Reason,
		Details:   res.Details,
	}, nil
}

func (g *gameService) Move(_ context.Context, req *MoveCall) (*GameReply, error) {
	e, err := g.game(req.GameID)
	if err != nil {
		return nil, err
	}
	if err := e.Move(index(req.From), index(req.To)); err != nil {
		return nil, gameError(err)
	}
	return &GameReply{State: e.View()}, nil
}

func (g *gameService) MoveBy(_ context.Context, req *MoveByCall) (*GameReply, error) {
	e, err := g.game(req.GameID)
	if err != nil {
		return nil, err
	}
	if err := e.MoveBy(index(req.From), req.Value); err != nil {
		return nil, gameError(err)
	}
	return &GameReply{State: e.View()}, nil
}

func (g *gameService) EndTurn(_ context.Context, req *GameRequest) (*EndTurnResponse, error) {
	e, err := g.game(req.GameID)
	if err != nil {
		return nil, err
	}
	ended := e.EndTurn()
	return &EndTurnResponse{Ended: ended, State: e.View()}, nil
}

func (g *gameService) Undo(_ context.Context, req *GameRequest) (*UndoResponse, error) {
	e, err := g.game(req.GameID)
	if err != nil {
		return nil, err
	}
	undone := e.Undo()
	return &UndoResponse{Undone: undone, State: e.View()}, nil
}

func (g *gameService) SwapDice(_ context.Context, req *GameRequest) (*GameReply, error) {
	e, err := g.game(req.GameID)
	if err != nil {
		return nil, err
	}
	e.SwapDice()
	return &GameReply{State: e.View()}, nil
}

func (g *gameService) NewGame(_ context.Context, req *GameRequest) (*GameReply, error) {
	e, err := g.game(req.GameID)
	if err != nil {
		return nil, err
	}
	e.NewGame()
	return &GameReply{State: e.View()}, nil
}

func (g *gameService) CloseGame(_ context.Context, req *GameRequest) (*CloseGameReply, error) {
	if _, err := g.game(req.GameID); err != nil {
		return nil, err
	}
	return &CloseGameReply{Closed: g.server.closeGame(req.GameID)}, nil
}

// NewGRPCServer builds a gRPC server exposing the game service.
func (s *Server) NewGRPCServer() *grpc.Server {
	opts := []grpc.ServerOption{
		grpc.UnaryInterceptor(ChainUnaryInterceptors(
			RecoveryInterceptor(s.logger),
			LoggingInterceptor(s.logger),
		)),
		grpc.KeepaliveParams(keepalive.ServerParameters{
			Time:    s.grpcCfg.KeepaliveTime,
			Timeout: s.grpcCfg.KeepaliveTimeout,
		}),
	}
	if s.grpcCfg.MaxConcurrentStreams > 0 {
		opts = append(opts, grpc.MaxConcurrentStreams(s.grpcCfg.MaxConcurrentStreams))
	}
	gs := grpc.NewServer(opts...)
	RegisterGameServiceServer(gs, &gameService{server: s})
	return gs
}

// reapIdleGames closes abandoned gRPC games until ctx is done.
func (s *Server) reapIdleGames(ctx context.Context) {
	timeout := s.grpcCfg.IdleGameTimeout
	if timeout <= 0 {
		return
	}
	ticker := time.NewTicker(timeout / 2)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.closeIdle(timeout); n > 0 {
				s.logger.Info("closed idle games", zap.Int("count", n))
			}
		}
	}
}

// ChainUnaryInterceptors runs interceptors in order, the first outermost.
func ChainUnaryInterceptors(interceptors ...grpc.UnaryServerInterceptor) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		chained := handler
		for i := len(interceptors) - 1; i >= 0; i-- {
			next, interceptor := chained, interceptors[i]
			chained = func(ctx context.Context, req any) (any, error) {
				return interceptor(ctx, req, info, next)
			}
		}
		return chained(ctx, req)
	}
}

// RecoveryInterceptor turns a handler panic into an Internal error.
func RecoveryInterceptor(logger *zap.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (resp any, err error) {
		defer func() {
			if r := recover(); r != nil {
				buf := make([]byte, 4096)
				buf = buf[:runtime.Stack(buf, false)]
				logger.Error("panic in gRPC handler",
					zap.String("method", info.FullMethod),
					zap.Any("panic", r),
					zap.ByteString("stack", buf),
				)
				err = status.Error(codes.Internal, fmt.Sprintf("internal error: %v", r))
			}
		}()
		return handler(ctx, req)
	}
}

// LoggingInterceptor logs every call with its duration and status code.
func LoggingInterceptor(logger *zap.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		fields := []zap.Field{
			zap.String("method", info.FullMethod),
			zap.Duration("duration", time.Since(start)),
			zap.String("code", status.Code(err).String()),
			zap.String("peer", peerAddress(ctx)),
		}
		if err != nil {
			logger.Debug("gRPC call failed", append(fields, zap.Error(err))...)
		} else {
			logger.Debug("gRPC call", fields...)
		}
		return resp, err
	}
}

func peerAddress(ctx context.Context) string {
	if p, ok := peer.FromContext(ctx); ok && p.Addr != nil {
		return p.Addr.String()
	}
	return "unknown"
}

// GameServiceClient calls the game service over a JSON-coded connection.
type GameServiceClient struct {
	cc grpc.ClientConnInterface
}

// NewGameServiceClient wraps cc.
func NewGameServiceClient(cc grpc.ClientConnInterface) *GameServiceClient {
	return &GameServiceClient{cc: cc}
}

func invoke[Resp any](ctx context.Context, cc grpc.ClientConnInterface, method string, in any, opts []grpc.CallOption) (*Resp, error) {
	out := new(Resp)
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(jsonCodec{}.Name())}, opts...)
	if err := cc.Invoke(ctx, "/"+GameServiceName+"/"+method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *GameServiceClient) CreateGame(ctx context.Context, in *CreateGameRequest, opts ...grpc.CallOption) (*GameReply, error) {
	return invoke[GameReply](ctx, c.cc, "CreateGame", in, opts)
}

func (c *GameServiceClient) GetState(ctx context.Context, in *GameRequest, opts ...grpc.CallOption) (*GameReply, error) {
	return invoke[GameReply](ctx, c.cc, "GetState", in, opts)
}

func (c *GameServiceClient) Check(ctx context.Context, in *MoveCall, opts ...grpc.CallOption) (*CheckResponse, error) {
	return invoke[CheckResponse](ctx, c.cc, "Check", in, opts)
}

func (c *GameServiceClient) Move(ctx context.Context, in *MoveCall, opts ...grpc.CallOption) (*GameReply, error) {
	return invoke[GameReply](ctx, c.cc, "Move", in, opts)
}

func (c *GameServiceClient) MoveBy(ctx context.Context, in *MoveByCall, opts ...grpc.CallOption) (*GameReply, error) {
	return invoke[GameReply](ctx, c.cc, "MoveBy", in, opts)
}

func (c *GameServiceClient) EndTurn(ctx context.Context, in *GameRequest, opts ...grpc.CallOption) (*EndTurnResponse, error) {
	return invoke[EndTurnResponse](ctx, c.cc, "EndTurn", in, opts)
}

func (c *GameServiceClient) Undo(ctx context.Context, in *GameRequest, opts ...grpc.CallOption) (*UndoResponse, error) {
	return invoke[UndoResponse](ctx, c.cc, "Undo", in, opts)
}

func (c *GameServiceClient) SwapDice(ctx context.Context, in *GameRequest, opts ...grpc.CallOption) (*GameReply, error) {
	return invoke[GameReply](ctx, c.cc, "SwapDice", in, opts)
}

func (c *GameServiceClient) NewGame(ctx context.Context, in *GameRequest, opts ...grpc.CallOption) (*GameReply, error) {
	return invoke[GameReply](ctx, c.cc, "NewGame", in, opts)
}

func (c *GameServiceClient) CloseGame(ctx context.Context, in *GameRequest, opts ...grpc.CallOption) (*CloseGameReply, error) {
	return invoke[CloseGameReply](ctx, c.cc, "CloseGame", in, opts)
}
