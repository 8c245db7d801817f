package conf

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	zconf "github.com/yola1107/blackjack/library/log/zap/conf"
)

func writeConfig(t *testing.T, v any) string {
	t.Helper()
	b, err := yaml.Marshal(v)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, b, 0o644))
	return path
}

func TestLoadConfigMergesDefaults(t *testing.T) {
	path := writeConfig(t, map[string]any{
		"server": map[string]any{
			"websocket": map[string]any{
				"addr":         "127.0.0.1:9000",
				"writeTimeout": "3s",
			},
		},
		"game": map[string]any{
			"minBet": 10,
			"maxBet": 500,
		},
		"log": map[string]any{
			"logger": map[string]any{"level": "info"},
		},
	})

	c, bc, err := LoadConfig(path)
	require.NoError(t, err)
	defer c.Close()

	ws := bc.Server.Websocket
	assert.Equal(t, "127.0.0.1:9000", ws.Addr)
	assert.Equal(t, 3*time.Second, ws.WriteTimeout.Std())
	assert.Equal(t, "/ws", ws.Path)
	assert.Equal(t, 15*time.Second, ws.PingInterval.Std())

	assert.Equal(t, int64(10), bc.Game.MinBet)
	assert.Equal(t, int64(500), bc.Game.MaxBet)
	assert.Equal(t, int64(1000), bc.Game.StartingBalance)
	assert.Equal(t, 8, bc.Room.DefaultMaxPlayers)
	assert.Equal(t, "info", bc.Log.Logger.Level)
	assert.Equal(t, Name, bc.Log.Logger.AppName)
}

func TestLoadConfigRejectsInvalid(t *testing.T) {
	path := writeConfig(t, map[string]any{
		"server": map[string]any{
			"websocket": map[string]any{"path": "ws"},
		},
	})
	_, _, err := LoadConfig(path)
	require.Error(t, err)

	_, _, err = LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestDurationUnmarshal(t *testing.T) {
	var d Duration
	require.NoError(t, d.UnmarshalJSON([]byte(`"1m30s"`)))
	assert.Equal(t, 90*time.Second, d.Std())
	require.NoError(t, d.UnmarshalJSON([]byte(`1000`)))
	assert.Equal(t, time.Microsecond, d.Std())
	assert.Error(t, d.UnmarshalJSON([]byte(`"soon"`)))
	assert.Error(t, d.UnmarshalJSON([]byte(`true`)))
}

func TestWatcherApply(t *testing.T) {
	bc := Default()
	w := NewWatcher()

	var got []*Game
	w.Subscribe("game", func(v any) { got = append(got, v.(*Game)) })

	next := *bc.Game
	next.MinBet = 25
	assert.True(t, w.apply("game", bc.Game, &next))
	assert.Equal(t, int64(25), bc.Game.MinBet)
	require.Len(t, got, 1)
	assert.Same(t, bc.Game, got[0])

	// unchanged value is not published
	same := *bc.Game
	assert.False(t, w.apply("game", bc.Game, &same))

	// invalid value is ignored
	bad := *bc.Game
	bad.MinBet = 0
	assert.False(t, w.apply("game", bc.Game, &bad))
	assert.Equal(t, int64(25), bc.Game.MinBet)
	assert.Len(t, got, 1)
}

func TestWatcherApplyLogger(t *testing.T) {
	live := zconf.DefaultConfig()
	w := NewWatcher()
	next := zconf.DefaultConfig(zconf.WithLevel("warn"), zconf.WithSensitive([]string{"password"}))
	assert.True(t, w.apply("log.logger", live, next))
	assert.Equal(t, "warn", live.Level)
	assert.Equal(t, []string{"password"}, live.Sensitive)

	// the live copy does not share slices with the update
	next.Sensitive[0] = "token"
	assert.Equal(t, "password", live.Sensitive[0])
}
