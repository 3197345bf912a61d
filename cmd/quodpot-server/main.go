package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"
	"github.com/charmbracelet/log"
	"github.com/coder/quartz"
	"golang.org/x/sync/errgroup"

	"github.com/iKenshu/quodpot-game/internal/dispatch"
	"github.com/iKenshu/quodpot-game/internal/duel"
	"github.com/iKenshu/quodpot-game/internal/matchmaking"
	"github.com/iKenshu/quodpot-game/internal/race"
	"github.com/iKenshu/quodpot-game/internal/randutil"
	"github.com/iKenshu/quodpot-game/internal/server"
	"github.com/iKenshu/quodpot-game/internal/words"
)

var CLI struct {
	Config   string `short:"c" long:"config" default:"quodpot-server.hcl" help:"Path to HCL configuration file"`
	Addr     string `short:"a" long:"addr" help:"Server address to bind to (overrides config)"`
	Port     int    `short:"p" long:"port" help:"Port to listen on (overrides config)"`
	LogLevel string `short:"l" long:"log-level" help:"Log level (overrides config)"`
	Words    string `short:"w" long:"words" type:"existingfile" help:"Word list for races, one word per line (overrides config)"`
	Seed     int64  `long:"seed" help:"Random seed for words and automated spells (overrides config)"`
}

func main() {
	ctx := kong.Parse(&CLI,
		kong.Name("quodpot-server"),
		kong.Description("Session broker for quodpot races and duels"),
		kong.UsageOnError(),
	)

	cfg, err := server.LoadServerConfig(CLI.Config)
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		ctx.Exit(1)
	}

	// Apply command line overrides
	if CLI.Addr != "" {
		cfg.Server.Address = CLI.Addr
	}
	if CLI.Port != 0 {
		cfg.Server.Port = CLI.Port
	}
	if CLI.LogLevel != "" {
		cfg.Server.LogLevel = CLI.LogLevel
	}
	if CLI.Words != "" {
		cfg.Server.WordsFile = CLI.Words
	}
	if CLI.Seed != 0 {
		cfg.Server.Seed = CLI.Seed
	}

	if err := cfg.Validate(); err != nil {
		fmt.Printf("Invalid configuration: %v\n", err)
		ctx.Exit(1)
	}

	logger := log.NewWithOptions(os.Stderr, log.Options{ReportTimestamp: true})
	switch cfg.Server.LogLevel {
	case "debug":
		logger.SetLevel(log.DebugLevel)
	case "info":
		logger.SetLevel(log.InfoLevel)
	case "warn":
		logger.SetLevel(log.WarnLevel)
	case "error":
		logger.SetLevel(log.ErrorLevel)
	default:
		logger.SetLevel(log.InfoLevel)
	}

	if err := run(cfg, logger); err != nil {
		logger.Error("Server failed", "error", err)
		ctx.Exit(1)
	}
}

func run(cfg *server.ServerConfig, logger *log.Logger) error {
	seed := randutil.Seed(cfg.Server.Seed)

	var source words.Source
	if cfg.Server.WordsFile != "" {
		bank, err := words.Load(cfg.Server.WordsFile, seed)
		if err != nil {
			return err
		}
		source = bank
	} else {
		source = words.Default(seed)
	}
	raceCfg := cfg.RaceConfig()
	if err := words.Verify(source, raceCfg.Stages); err != nil {
		return err
	}

	logger.Info("Starting quodpot server",
		"addr", cfg.GetServerAddress(),
		"default_game", cfg.Server.DefaultGameType,
		"stages", raceCfg.Stages,
		"rounds_to_win", cfg.Duels.RoundsToWin)

	clock := quartz.NewReal()
	wsServer := server.NewServer(cfg.GetServerAddress(), logger)
	mm := matchmaking.New(clock, logger)
	duels := duel.NewManager(cfg.DuelConfig(), clock, wsServer, logger, seed)
	races := race.NewManager(raceCfg, clock, wsServer, source, logger)

	d, err := dispatch.New(cfg.DispatchConfig(), mm, duels, races, wsServer, logger)
	if err != nil {
		return err
	}
	wsServer.SetDispatcher(d)
	wsServer.SetQueueMembers(mm.Queued)

	sweeper := server.NewSweeper(clock, cfg.SweepInterval(), d.Sweep, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return wsServer.Run(ctx)
	})
	g.Go(func() error {
		return sweeper.Run(ctx)
	})
	g.Go(func() error {
		<-ctx.Done()
		logger.Info("Shutting down server...")
		return nil
	})
	return g.Wait()
}
