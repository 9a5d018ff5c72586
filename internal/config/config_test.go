package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trigammon/trigammon-server-go/internal/game/board"
	"github.com/trigammon/trigammon-server-go/internal/game/dice"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadDefaultsWhenFileMissing(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.WebSocket.Address)
	assert.Equal(t, 60*time.Second, cfg.Server.WebSocket.ReadTimeout)
	assert.Equal(t, int64(4096), cfg.Server.WebSocket.MaxMessageSize)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "console", cfg.Logging.Format)
	assert.Equal(t, "black", cfg.Opponent.Color)
	assert.Equal(t, 500*time.Millisecond, cfg.Opponent.Delay)
	assert.Equal(t, "crypto", cfg.Game.Dice)
	assert.False(t, cfg.Replay.Enabled)
	assert.Equal(t, "replays", cfg.Replay.Directory)
	assert.Empty(t, cfg.Server.GRPC.Address)
	assert.Equal(t, uint32(100), cfg.Server.GRPC.MaxConcurrentStreams)
	assert.Equal(t, 30*time.Minute, cfg.Server.GRPC.IdleGameTimeout)
	assert.Empty(t, cfg.Database.URL)
	assert.Equal(t, int32(4), cfg.Database.MaxConns)
}

func TestLoadFromFile(t *testing.T) {
	path := writeConfig(t, `
server:
  websocket:
    address: "127.0.0.1:9000"
    allowed_origins: ["http://localhost:3000"]
logging:
  level: debug
  format: json
opponent:
  color: both
  delay: 50ms
game:
  dice: sequence
  sequence: [3, 5, 4, 4]
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:9000", cfg.Server.WebSocket.Address)
	assert.Equal(t, []string{"http://localhost:3000"}, cfg.Server.WebSocket.AllowedOrigins)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, 50*time.Millisecond, cfg.Opponent.Delay)
	assert.Equal(t, []int{3, 5, 4, 4}, cfg.Game.Sequence)

	colors, err := cfg.Opponent.Colors()
	require.NoError(t, err)
	assert.Equal(t, []board.Color{board.White, board.Black}, colors)
}

func TestLoadEnvironmentOverride(t *testing.T) {
	t.Setenv("TRIGAMMON_OPPONENT_COLOR", "white")
	t.Setenv("TRIGAMMON_LOGGING_LEVEL", "warn")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "white", cfg.Opponent.Color)
	assert.Equal(t, "warn", cfg.Logging.Level)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"unknown opponent color", "opponent:\n  color: green\n"},
		{"negative delay", "opponent:\n  delay: -1s\n"},
		{"unknown dice source", "game:\n  dice: loaded\n"},
		{"sequence without values", "game:\n  dice: sequence\n"},
		{"sequence value out of range", "game:\n  dice: sequence\n  sequence: [3, 9]\n"},
		{"unknown log format", "logging:\n  format: xml\n"},
		{"empty address", "server:\n  websocket:\n    address: \"\"\n"},
		{"database without connections", "database:\n  url: postgres://localhost/trigammon\n  max_conns: 0\n"},
		{"replay without directory", "replay:\n  enabled: true\n  directory: \"\"\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			assert.Error(t, err)
		})
	}
}

func TestOpponentColors(t *testing.T) {
	colors, err := OpponentConfig{Color: "none"}.Colors()
	require.NoError(t, err)
	assert.Empty(t, colors)

	colors, err = OpponentConfig{Color: " Black "}.Colors()
	require.NoError(t, err)
	assert.Equal(t, []board.Color{board.Black}, colors)
}

func TestGameRoller(t *testing.T) {
	r, err := GameConfig{Dice: "sequence", Sequence: []int{2, 6}}.Roller()
	require.NoError(t, err)
	assert.Equal(t, []int{6, 2}, dice.Roll(r).Values())

	r, err = GameConfig{Dice: "crypto"}.Roller()
	require.NoError(t, err)
	assert.IsType(t, dice.CryptoRoller{}, r)

	_, err = GameConfig{Dice: "sequence"}.Roller()
	assert.Error(t, err)
}
