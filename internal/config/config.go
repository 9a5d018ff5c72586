// Package config loads server settings from an optional YAML file and
// TRIGAMMON_ environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/trigammon/trigammon-server-go/internal/game/board"
	"github.com/trigammon/trigammon-server-go/internal/game/dice"
)

// EnvPrefix prefixes every environment override, e.g.
// TRIGAMMON_SERVER_WEBSOCKET_ADDRESS.
const EnvPrefix = "TRIGAMMON"

// Config is the full configuration tree.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Opponent OpponentConfig `mapstructure:"opponent"`
	Game     GameConfig     `mapstructure:"game"`
	Replay   ReplayConfig   `mapstructure:"replay"`
	Database DatabaseConfig `mapstructure:"database"`
}

// ServerConfig holds listener settings.
type ServerConfig struct {
	WebSocket       WebSocketConfig `mapstructure:"websocket"`
	GRPC            GRPCConfig      `mapstructure:"grpc"`
	ShutdownTimeout time.Duration   `mapstructure:"shutdown_timeout"`
}

// GRPCConfig configures the gRPC game service. An empty address disables it.
type GRPCConfig struct {
	Address              string        `mapstructure:"address"`
	MaxConcurrentStreams uint32        `mapstructure:"max_concurrent_streams"`
	KeepaliveTime        time.Duration `mapstructure:"keepalive_time"`
	KeepaliveTimeout     time.Duration `mapstructure:"keepalive_timeout"`
	// IdleGameTimeout closes gRPC games nobody touched for this long.
	IdleGameTimeout time.Duration `mapstructure:"idle_game_timeout"`
}

// WebSocketConfig configures the UI bridge.
type WebSocketConfig struct {
	Address        string        `mapstructure:"address"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	PingInterval   time.Duration `mapstructure:"ping_interval"`
	MaxMessageSize int64         `mapstructure:"max_message_size"`
	AllowedOrigins []string      `mapstructure:"allowed_origins"`
}

// LoggingConfig selects the zap level and encoder.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// OpponentConfig configures the scripted opponent.
type OpponentConfig struct {
	// Color is black, white, none or both.
	Color string        `mapstructure:"color"`
	Delay time.Duration `mapstructure:"delay"`
}

// GameConfig selects the dice source.
type GameConfig struct {
	// Dice is crypto or sequence.
	Dice     string `mapstructure:"dice"`
	Sequence []int  `mapstructure:"sequence"`
}

// ReplayConfig controls game recording.
type ReplayConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Directory string `mapstructure:"directory"`
}

// DatabaseConfig points at the PostgreSQL database finished games are
// recorded in. An empty URL keeps results in memory.
type DatabaseConfig struct {
	URL            string        `mapstructure:"url"`
	MaxConns       int32         `mapstructure:"max_conns"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.websocket.address", ":8080")
	v.SetDefault("server.websocket.read_timeout", "60s")
	v.SetDefault("server.websocket.write_timeout", "10s")
	v.SetDefault("server.websocket.ping_interval", "30s")
	v.SetDefault("server.websocket.max_message_size", 4096)
	v.SetDefault("server.websocket.allowed_origins", []string{})
	v.SetDefault("server.grpc.address", "")
	v.SetDefault("server.grpc.max_concurrent_streams", 100)
	v.SetDefault("server.grpc.keepalive_time", "30s")
	v.SetDefault("server.grpc.keepalive_timeout", "10s")
	v.SetDefault("server.grpc.idle_game_timeout", "30m")
	v.SetDefault("server.shutdown_timeout", "5s")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")

	v.SetDefault("opponent.color", "black")
	v.SetDefault("opponent.delay", "500ms")

	v.SetDefault("game.dice", "crypto")
	v.SetDefault("game.sequence", []int{})

	v.SetDefault("replay.enabled", false)
	v.SetDefault("replay.directory", "replays")

	v.SetDefault("database.url", "")
	v.SetDefault("database.max_conns", 4)
	v.SetDefault("database.connect_timeout", "5s")
}

// Load reads path when it exists, applies environment overrides and
// validates the result. A missing file is not an error.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			v.SetConfigFile(path)
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("read config %s: %w", path, err)
			}
		} else if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("stat config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks values viper cannot type-check.
func (c *Config) Validate() error {
	if c.Server.WebSocket.Address == "" {
		return errors.New("server.websocket.address is required")
	}
	if c.Opponent.Delay < 0 {
		return fmt.Errorf("opponent.delay must not be negative, got %s", c.Opponent.Delay)
	}
	if _, err := c.Opponent.Colors(); err != nil {
		return err
	}
	switch c.Game.Dice {
	case "crypto":
	case "sequence":
		if len(c.Game.Sequence) == 0 {
			return errors.New("game.sequence is required when game.dice is sequence")
		}
		for _, v := range c.Game.Sequence {
			if v < 1 || v > 6 {
				return fmt.Errorf("game.sequence value %d out of range 1..6", v)
			}
		}
	default:
		return fmt.Errorf("unknown game.dice %q", c.Game.Dice)
	}
	if c.Database.URL != "" && c.Database.MaxConns < 1 {
		return fmt.Errorf("database.max_conns must be positive, got %d", c.Database.MaxConns)
	}
	if c.Replay.Enabled && c.Replay.Directory == "" {
		return errors.New("replay.directory is required when replay is enabled")
	}
	switch c.Logging.Format {
	case "json", "console":
	default:
		return fmt.Errorf("unknown logging.format %q", c.Logging.Format)
	}
	return nil
}

// Colors returns the colors the scripted opponent plays.
func (o OpponentConfig) Colors() ([]board.Color, error) {
	switch strings.ToLower(strings.TrimSpace(o.Color)) {
	case "black":
		return []board.Color{board.Black}, nil
	case "white":
		return []board.Color{board.White}, nil
	case "both":
		return []board.Color{board.White, board.Black}, nil
	case "none", "":
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown opponent.color %q", o.Color)
	}
}

// Roller builds the dice source the game section selects.
func (g GameConfig) Roller() (dice.Roller, error) {
	switch g.Dice {
	case "sequence":
		return dice.NewSequenceRoller(g.Sequence...)
	case "crypto", "":
		return dice.CryptoRoller{}, nil
	default:
		return nil, fmt.Errorf("unknown game.dice %q", g.Dice)
	}
}
