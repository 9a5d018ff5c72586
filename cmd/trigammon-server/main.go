package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/trigammon/trigammon-server-go/internal/config"
	"github.com/trigammon/trigammon-server-go/internal/game"
	"github.com/trigammon/trigammon-server-go/internal/game/dice"
	"github.com/trigammon/trigammon-server-go/internal/repository"
	"github.com/trigammon/trigammon-server-go/internal/server"
)

var (
	configPath = flag.String("config", "config/config.yaml", "path to configuration file")
	statistics = flag.Int("statistics", 0, "print dice statistics for this many rolls and exit")
	selfPlay   = flag.Int("selfplay", 0, "play this many games with both colors automated and exit")
	maxSteps   = flag.Int("selfplay-steps", 5_000_000, "step limit for -selfplay")
	replayID   = flag.String("replay", "", "print the saved replay with this game ID and exit")
	version    = "dev" // set via ldflags during build
)

func main() {
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := initLogger(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch {
	case *statistics > 0:
		if err := printStatistics(cfg.Game, *statistics); err != nil {
			logger.Fatal("dice statistics failed", zap.Error(err))
		}
		return
	case *replayID != "":
		if err := printReplay(cfg.Replay.Directory, *replayID); err != nil {
			logger.Fatal("replay failed", zap.Error(err))
		}
		return
	case *selfPlay > 0:
		if err := runSelfPlay(ctx, logger, cfg.Game, *selfPlay, *maxSteps); err != nil {
			logger.Fatal("self-play failed", zap.Error(err))
		}
		return
	}

	logger.Info("starting trigammon server",
		zap.String("version", version),
		zap.String("config", *configPath),
		zap.String("opponent", cfg.Opponent.Color),
		zap.Duration("opponent_delay", cfg.Opponent.Delay),
		zap.String("dice", cfg.Game.Dice),
	)

	var results repository.ResultStore
	if cfg.Database.URL != "" {
		db, err := repository.NewDB(ctx, cfg.Database, logger)
		if err != nil {
			logger.Fatal("failed to connect to database", zap.Error(err))
		}
		defer db.Close()
		stat := db.Stats()
		logger.Info("connected to database",
			zap.Int32("max_conns", stat.MaxConns()),
			zap.Int32("total_conns", stat.TotalConns()),
		)
		results = repository.NewResultRepository(db)
	}

	srv, err := server.New(cfg, logger, results)
	if err != nil {
		logger.Fatal("failed to create server", zap.Error(err))
	}

	if err := srv.ListenAndServe(ctx, cfg.Server.ShutdownTimeout); err != nil {
		logger.Fatal("server error", zap.Error(err))
	}

	logger.Info("trigammon server stopped")
}

func printStatistics(cfg config.GameConfig, rolls int) error {
	roller, err := cfg.Roller()
	if err != nil {
		return err
	}
	st := dice.Statistics(roller, rolls)

	p := message.NewPrinter(language.English)
	p.Printf("Rolls:   %d\n", st.Rolls)
	p.Printf("Doubles: %d (%.2f%%)\n", st.Doubles, percent(st.Doubles, st.Rolls))
	p.Printf("Pips:    %d (%.2f per roll)\n", st.Pips, float64(st.Pips)/float64(st.Rolls))
	faces := st.FaceCount()
	for face, n := range st.Faces {
		p.Printf("  %d: %d (%.2f%%)\n", face+1, n, percent(n, faces))
	}
	return nil
}

func runSelfPlay(ctx context.Context, logger *zap.Logger, cfg config.GameConfig, games, steps int) error {
	roller, err := cfg.Roller()
	if err != nil {
		return err
	}
	res, err := game.SelfPlay(ctx, logger, roller, games, steps)
	if err != nil {
		return err
	}

	p := message.NewPrinter(language.English)
	p.Printf("Games:      %d\n", res.Games)
	p.Printf("Steps:      %d\n", res.Steps)
	p.Printf("White wins: %d (%.2f%%)\n", res.Wins.White, percent(res.Wins.White, res.Games))
	p.Printf("Black wins: %d (%.2f%%)\n", res.Wins.Black, percent(res.Wins.Black, res.Games))
	p.Printf("Turns:      %.1f average, %d longest\n", res.AverageTurns(), res.LongestWin)
	return nil
}

func printReplay(dir, gameID string) error {
	replay, err := game.LoadReplayFromFile(dir, gameID)
	if err != nil {
		return err
	}

	p := message.NewPrinter(language.English)
	p.Printf("Replay %s, %d frames\n\n", replay.GameID, replay.Size())
	for f := replay.Next(); f != nil; f = replay.Next() {
		b, err := f.Position.Board()
		if err != nil {
			return fmt.Errorf("frame %d: %w", replay.CurrentIndex-1, err)
		}
		p.Printf("#%d %s %s turn %d dice %s\n", replay.CurrentIndex, f.Event, f.Color,
			f.Position.Turn, f.Position.Dice)
		fmt.Println(b)
	}
	return nil
}

func percent(n, total int) float64 {
	if total == 0 {
		return 0
	}
	return 100 * float64(n) / float64(total)
}

// initLogger initializes the zap logger based on configuration
func initLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = zapcore.InfoLevel
	}

	var zapCfg zap.Config
	if cfg.Format == "json" {
		zapCfg = zap.NewProductionConfig()
	} else {
		zapCfg = zap.NewDevelopmentConfig()
		zapCfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	zapCfg.Level = zap.NewAtomicLevelAt(level)

	return zapCfg.Build()
}
