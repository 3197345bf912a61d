package commands

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iKenshu/quodpot-game/internal/dispatch"
	"github.com/iKenshu/quodpot-game/internal/matchmaking"
	"github.com/iKenshu/quodpot-game/internal/server"
)

func TestLoadConfigAppliesOverrides(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "quodpot.hcl")
	require.NoError(t, os.WriteFile(path, []byte(`
server {
  url = "http://example.test:9000"
}
player {
  name      = "Ana"
  game_type = "race"
}
`), 0o644))

	cfg, err := LoadConfig(&GlobalFlags{Config: path, Player: "Luis", Game: "duels", Mode: "pve", LogLevel: "debug"})
	require.NoError(t, err)

	assert.Equal(t, "http://example.test:9000", cfg.Server.URL)
	assert.Equal(t, "Luis", cfg.Player.Name)
	assert.Equal(t, "duels", cfg.Player.GameType)
	assert.Equal(t, "pve", cfg.Player.Mode)
	assert.Equal(t, "debug", cfg.UI.LogLevel)
	assert.NoError(t, cfg.Validate())
}

func TestSetupRejectsInvalidConfig(t *testing.T) {
	t.Parallel()
	cfg, err := LoadConfig(&GlobalFlags{Config: filepath.Join(t.TempDir(), "missing.hcl"), Game: "poker"})
	require.NoError(t, err)

	_, _, err = setupClientConfigured(cfg, strings.NewReader("Ana\n"), &bytes.Buffer{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid game type")
	assert.Equal(t, "Ana", cfg.Player.Name)
}

func TestSetupRequiresName(t *testing.T) {
	t.Parallel()
	cfg, err := LoadConfig(&GlobalFlags{Config: filepath.Join(t.TempDir(), "missing.hcl")})
	require.NoError(t, err)

	_, _, err = setupClientConfigured(cfg, strings.NewReader("\n"), &bytes.Buffer{})
	assert.EqualError(t, err, "player name is required")
}

func TestStatsURL(t *testing.T) {
	t.Parallel()
	tests := map[string]string{
		"http://localhost:8080":  "http://localhost:8080/stats",
		"ws://localhost:8080/ws": "http://localhost:8080/stats",
		"wss://quodpot.test/ws":  "https://quodpot.test/stats",
	}
	for in, want := range tests {
		got, err := statsURL(in)
		require.NoError(t, err)
		assert.Equal(t, want, got, in)
	}
}

func TestFetchStats(t *testing.T) {
	t.Parallel()
	want := server.StatsResponse{
		Connections: 3,
		Stats: dispatch.Stats{
			Queues:         []matchmaking.QueueStats{{GameType: "race", Queued: 1, MinPlayers: 2, MaxPlayers: 50}},
			ActiveSessions: map[string]int{"duels": 1, "race": 0},
		},
	}
	hs := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/stats", r.URL.Path)
		_ = json.NewEncoder(w).Encode(want)
	}))
	defer hs.Close()

	got, err := fetchStats(hs.URL, defaultTimeout)
	require.NoError(t, err)
	assert.Equal(t, want, *got)
}

func TestFetchStatsReportsStatus(t *testing.T) {
	t.Parallel()
	hs := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusServiceUnavailable)
	}))
	defer hs.Close()

	_, err := fetchStats(hs.URL, defaultTimeout)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
}
