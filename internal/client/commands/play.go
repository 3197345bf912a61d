package commands

import (
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/iKenshu/quodpot-game/internal/tui"
)

// PlayCommand joins a game and runs the TUI until the player quits
type PlayCommand struct {
	NoAltScreen bool `long:"no-alt-screen" help:"Render inline instead of using the alternate screen"`
}

func (cmd *PlayCommand) Run(flags *GlobalFlags) error {
	wsClient, cfg, logger, cleanup, err := SetupClientWithFileLogging(flags)
	if err != nil {
		return err
	}
	defer cleanup()

	switch cfg.UI.Theme {
	case "dark":
		lipgloss.SetHasDarkBackground(true)
	case "light":
		lipgloss.SetHasDarkBackground(false)
	}

	logger.Info("Starting quodpot client",
		"server", cfg.Server.URL,
		"player", cfg.Player.Name,
		"game", cfg.Player.GameType,
		"mode", cfg.Player.Mode)

	tuiModel := tui.NewTUIModel(cfg.Player.GameType, logger)
	tuiModel.AddLogEntry("Connected to server: " + cfg.Server.URL)
	tuiModel.AddLogEntry("Player: " + cfg.GetPlayerName())

	var opts []tea.ProgramOption
	if !cmd.NoAltScreen {
		opts = append(opts, tea.WithAltScreen())
	}
	program := tea.NewProgram(tuiModel, opts...)

	removeHandler := tui.SetupNetworkHandlers(wsClient, program)
	defer removeHandler()

	tui.StartCommandHandler(wsClient, wsClient.Done(), tuiModel)

	if err := wsClient.Join(cfg.GetPlayerName(), cfg.Player.GameType, cfg.Player.Mode); err != nil {
		return fmt.Errorf("failed to join %s: %w", cfg.Player.GameType, err)
	}

	if _, err := program.Run(); err != nil {
		return fmt.Errorf("error running TUI: %w", err)
	}
	return nil
}
