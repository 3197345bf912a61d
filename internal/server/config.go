package server

import (
	"fmt"
	"os"
	"time"

	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"

	"github.com/iKenshu/quodpot-game/internal/dispatch"
	"github.com/iKenshu/quodpot-game/internal/duel"
	"github.com/iKenshu/quodpot-game/internal/race"
)

// ServerConfig represents the complete server configuration
type ServerConfig struct {
	Server       ServerSettings        `hcl:"server,block"`
	Race         *RaceSettings         `hcl:"race,block"`
	Duels        *DuelSettings         `hcl:"duels,block"`
	Housekeeping *HousekeepingSettings `hcl:"housekeeping,block"`
}

// ServerSettings contains server-level configuration
type ServerSettings struct {
	Address         string `hcl:"address,optional"`
	Port            int    `hcl:"port,optional"`
	LogLevel        string `hcl:"log_level,optional"`
	WordsFile       string `hcl:"words_file,optional"`
	DefaultGameType string `hcl:"default_game_type,optional"`
	Seed            int64  `hcl:"seed,optional"`
}

// RaceSettings configures the multi-stage word race
type RaceSettings struct {
	Stages       int    `hcl:"stages,optional"`
	Attempts     int    `hcl:"attempts,optional"`
	MinPlayers   int    `hcl:"min_players,optional"`
	MaxPlayers   int    `hcl:"max_players,optional"`
	StartTimeout string `hcl:"start_timeout,optional"`
}

// DuelSettings configures spell duels
type DuelSettings struct {
	RoundsToWin   int    `hcl:"rounds_to_win,optional"`
	RoundTimer    string `hcl:"round_timer,optional"`
	ThinkingDelay string `hcl:"thinking_delay,optional"`
	OpponentName  string `hcl:"opponent_name,optional"`
	StartTimeout  string `hcl:"start_timeout,optional"`
}

// HousekeepingSettings controls the session sweeper
type HousekeepingSettings struct {
	SweepInterval string `hcl:"sweep_interval,optional"`
}

const (
	defaultAddress      = "localhost"
	defaultPort         = 8080
	defaultLogLevel     = "info"
	defaultDuelTimeout  = "60s"
	defaultSweepEvery   = "60s"
	maxSupportedPlayers = 500
)

// DefaultServerConfig returns default server configuration
func DefaultServerConfig() *ServerConfig {
	cfg := &ServerConfig{}
	cfg.applyDefaults()
	return cfg
}

// LoadServerConfig loads server configuration from HCL file. A missing file
// yields the defaults.
func LoadServerConfig(filename string) (*ServerConfig, error) {
	if _, err := os.Stat(filename); os.IsNotExist(err) {
		return DefaultServerConfig(), nil
	}

	parser := hclparse.NewParser()
	file, diags := parser.ParseHCLFile(filename)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse HCL file: %s", diags.Error())
	}

	var config ServerConfig
	diags = gohcl.DecodeBody(file.Body, nil, &config)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to decode HCL: %s", diags.Error())
	}

	config.applyDefaults()
	return &config, nil
}

func (c *ServerConfig) applyDefaults() {
	if c.Server.Address == "" {
		c.Server.Address = defaultAddress
	}
	if c.Server.Port == 0 {
		c.Server.Port = defaultPort
	}
	if c.Server.LogLevel == "" {
		c.Server.LogLevel = defaultLogLevel
	}
	if c.Server.DefaultGameType == "" {
		c.Server.DefaultGameType = race.GameType
	}

	rd := race.DefaultConfig()
	if c.Race == nil {
		c.Race = &RaceSettings{}
	}
	if c.Race.Stages == 0 {
		c.Race.Stages = rd.Stages
	}
	if c.Race.Attempts == 0 {
		c.Race.Attempts = rd.Attempts
	}
	if c.Race.MinPlayers == 0 {
		c.Race.MinPlayers = rd.MinPlayers
	}
	if c.Race.MaxPlayers == 0 {
		c.Race.MaxPlayers = rd.MaxPlayers
	}
	if c.Race.StartTimeout == "" {
		c.Race.StartTimeout = rd.StartTimeout.String()
	}

	dd := duel.DefaultConfig()
	if c.Duels == nil {
		c.Duels = &DuelSettings{}
	}
	if c.Duels.RoundsToWin == 0 {
		c.Duels.RoundsToWin = dd.RoundsToWin
	}
	if c.Duels.RoundTimer == "" {
		c.Duels.RoundTimer = dd.RoundTimer.String()
	}
	if c.Duels.ThinkingDelay == "" {
		c.Duels.ThinkingDelay = dd.ThinkingDelay.String()
	}
	if c.Duels.OpponentName == "" {
		c.Duels.OpponentName = dd.OpponentName
	}
	if c.Duels.StartTimeout == "" {
		c.Duels.StartTimeout = defaultDuelTimeout
	}

	if c.Housekeeping == nil {
		c.Housekeeping = &HousekeepingSettings{}
	}
	if c.Housekeeping.SweepInterval == "" {
		c.Housekeeping.SweepInterval = defaultSweepEvery
	}
}

// Validate validates the server configuration
func (c *ServerConfig) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Server.Port)
	}
	switch c.Server.DefaultGameType {
	case race.GameType, duel.GameType:
	default:
		return fmt.Errorf("unknown default game type: %s", c.Server.DefaultGameType)
	}

	if c.Race.Stages < 1 {
		return fmt.Errorf("race: stages must be positive")
	}
	if c.Race.Attempts < 1 {
		return fmt.Errorf("race: attempts must be positive")
	}
	if c.Race.MinPlayers < 1 || c.Race.MaxPlayers < c.Race.MinPlayers || c.Race.MaxPlayers > maxSupportedPlayers {
		return fmt.Errorf("race: players must satisfy 1 <= min (%d) <= max (%d) <= %d",
			c.Race.MinPlayers, c.Race.MaxPlayers, maxSupportedPlayers)
	}
	if c.Duels.RoundsToWin < 1 {
		return fmt.Errorf("duels: rounds to win must be positive")
	}

	durations := map[string]string{
		"race.start_timeout":          c.Race.StartTimeout,
		"duels.round_timer":           c.Duels.RoundTimer,
		"duels.thinking_delay":        c.Duels.ThinkingDelay,
		"duels.start_timeout":         c.Duels.StartTimeout,
		"housekeeping.sweep_interval": c.Housekeeping.SweepInterval,
	}
	for name, value := range durations {
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		if d <= 0 {
			return fmt.Errorf("%s must be positive", name)
		}
	}
	return nil
}

// GetServerAddress returns the full server address
func (c *ServerConfig) GetServerAddress() string {
	return fmt.Sprintf("%s:%d", c.Server.Address, c.Server.Port)
}

// RaceConfig converts the race block. Call Validate first.
func (c *ServerConfig) RaceConfig() race.Config {
	return race.Config{
		Stages:       c.Race.Stages,
		Attempts:     c.Race.Attempts,
		MinPlayers:   c.Race.MinPlayers,
		MaxPlayers:   c.Race.MaxPlayers,
		StartTimeout: mustDuration(c.Race.StartTimeout),
	}
}

// DuelConfig converts the duels block. Call Validate first.
func (c *ServerConfig) DuelConfig() duel.Config {
	return duel.Config{
		RoundsToWin:   c.Duels.RoundsToWin,
		RoundTimer:    mustDuration(c.Duels.RoundTimer),
		ThinkingDelay: mustDuration(c.Duels.ThinkingDelay),
		OpponentName:  c.Duels.OpponentName,
	}
}

// DispatchConfig returns the admission settings of both game types
func (c *ServerConfig) DispatchConfig() dispatch.Config {
	return dispatch.Config{
		Race:             c.RaceConfig(),
		DuelStartTimeout: mustDuration(c.Duels.StartTimeout),
		DefaultGameType:  c.Server.DefaultGameType,
	}
}

// SweepInterval returns how often finished sessions are swept
func (c *ServerConfig) SweepInterval() time.Duration {
	return mustDuration(c.Housekeeping.SweepInterval)
}

func mustDuration(s string) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		panic(fmt.Sprintf("server: unvalidated duration %q: %v", s, err))
	}
	return d
}
