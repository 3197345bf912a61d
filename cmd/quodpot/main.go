package main

import (
	"os"

	"github.com/alecthomas/kong"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"

	"github.com/iKenshu/quodpot-game/internal/client/commands"
)

var CLI struct {
	commands.GlobalFlags

	Play  commands.PlayCommand  `cmd:"" default:"withargs" help:"Join a race or a duel and play in the terminal"`
	Stats commands.StatsCommand `cmd:"" help:"Show queues and active sessions of a server"`
}

func main() {
	ctx := kong.Parse(&CLI,
		kong.Name("quodpot"),
		kong.Description("Terminal client for quodpot races and duels"),
		kong.UsageOnError(),
	)

	// Pick the palette once, before any style renders
	lipgloss.SetColorProfile(termenv.NewOutput(os.Stdout).ColorProfile())

	err := ctx.Run(&CLI.GlobalFlags)
	ctx.FatalIfErrorf(err)
}
