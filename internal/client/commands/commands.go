// Package commands holds the subcommands of the quodpot terminal client.
package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/iKenshu/quodpot-game/internal/client"
)

// GlobalFlags holds common configuration for all commands
type GlobalFlags struct {
	Config   string `short:"c" long:"config" default:"quodpot.hcl" help:"Path to HCL configuration file"`
	Server   string `short:"s" long:"server" help:"Server URL to connect to (overrides config)"`
	Player   string `short:"p" long:"player" help:"Player name (overrides config)"`
	Game     string `short:"g" long:"game" help:"Game type: race or duels (overrides config)"`
	Mode     string `short:"m" long:"mode" help:"Duel mode: pvp or pve (overrides config)"`
	LogLevel string `short:"l" long:"log-level" help:"Log level (overrides config)"`
	LogFile  string `long:"log-file" help:"Log file path (overrides config)"`
}

// LoadConfig loads the client configuration and applies the flag overrides
func LoadConfig(flags *GlobalFlags) (*client.ClientConfig, error) {
	cfg, err := client.LoadClientConfig(flags.Config)
	if err != nil {
		return nil, fmt.Errorf("error loading config: %w", err)
	}

	if flags.Server != "" {
		cfg.Server.URL = flags.Server
	}
	if flags.Player != "" {
		cfg.Player.Name = flags.Player
	}
	if flags.Game != "" {
		cfg.Player.GameType = flags.Game
	}
	if flags.Mode != "" {
		cfg.Player.Mode = flags.Mode
	}
	if flags.LogLevel != "" {
		cfg.UI.LogLevel = flags.LogLevel
	}
	if flags.LogFile != "" {
		cfg.UI.LogFile = flags.LogFile
	}
	return cfg, nil
}

// SetupClientWithFileLogging connects a client that logs to the configured
// file, so the terminal stays free for the TUI.
func SetupClientWithFileLogging(flags *GlobalFlags) (*client.Client, *client.ClientConfig, *log.Logger, func(), error) {
	cfg, err := LoadConfig(flags)
	if err != nil {
		return nil, nil, nil, nil, err
	}

	// Setup logging to file (overwrite each time)
	logFile, err := os.OpenFile(cfg.UI.LogFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o666)
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("failed to open log file: %w", err)
	}

	wsClient, logger, err := setupClientConfigured(cfg, os.Stdin, logFile)
	if err != nil {
		_ = logFile.Close()
		return nil, nil, nil, nil, err
	}

	cleanup := func() {
		_ = wsClient.Disconnect()
		_ = logFile.Close()
	}
	return wsClient, cfg, logger, cleanup, nil
}

// setupClientConfigured prompts for a missing name, validates the config and
// connects.
func setupClientConfigured(cfg *client.ClientConfig, in io.Reader, logWriter io.Writer) (*client.Client, *log.Logger, error) {
	if cfg.Player.Name == "" {
		fmt.Print("Enter your player name: ")
		var input string
		_, _ = fmt.Fscanln(in, &input)
		cfg.Player.Name = strings.TrimSpace(input)
		if cfg.Player.Name == "" {
			return nil, nil, fmt.Errorf("player name is required")
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, nil, fmt.Errorf("invalid configuration: %w", err)
	}

	logger := NewLogger(logWriter, cfg.GetLogLevel())
	wsClient := client.NewClient(cfg.GetServerURL(), logger)

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.Server.ConnectTimeout)*time.Second)
	defer cancel()
	if err := wsClient.Connect(ctx); err != nil {
		return nil, nil, fmt.Errorf("failed to connect to server: %w", err)
	}
	return wsClient, logger, nil
}

// NewLogger creates a logger at the named level, defaulting to warn
func NewLogger(w io.Writer, level string) *log.Logger {
	logger := log.New(w)
	switch level {
	case "debug":
		logger.SetLevel(log.DebugLevel)
	case "info":
		logger.SetLevel(log.InfoLevel)
	case "warn":
		logger.SetLevel(log.WarnLevel)
	case "error":
		logger.SetLevel(log.ErrorLevel)
	default:
		logger.SetLevel(log.WarnLevel) // Default to warn to reduce noise
	}
	return logger
}
