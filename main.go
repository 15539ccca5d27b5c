package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/joho/godotenv"
	"github.com/urfave/cli/v3"

	"cmdai/config"
	"cmdai/provider"
	"cmdai/router"
	"cmdai/storage"
	"cmdai/ui"
)

const Version = "v0.1.0"

func main() {
	// Load .env file if any
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "Warning: failed to load .env file: %v\n", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newApp().Run(ctx, os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newApp() *cli.Command {
	return &cli.Command{
		Name:    "cmdai",
		Usage:   "Chat with local and hosted language models from the terminal",
		Version: Version,
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Usage: "Path to a config file (.yaml or .toml)"},
		},
		Commands: []*cli.Command{
			newModelsCommand(),
			newAskCommand(),
			newConversationsCommand(),
			newSearchCommand(),
			newExportCommand(),
			newKeyCommand(),
		},
		Action: runTUI,
	}
}

// env is what every command needs: the resolved config and a router over
// the configured providers.
type env struct {
	cfg    *config.Config
	router *router.Router
	logs   io.Closer
}

func setup(cmd *cli.Command) (*env, error) {
	cfg, err := config.Load(cmd.String("config"))
	if err != nil {
		return nil, cli.Exit(err.Error(), 1)
	}
	logs := config.InitDebugLog(cfg.DataDir())
	config.DebugLog.Info().Str("version", Version).Str("config", cfg.Path()).Str("command", cmd.Name).Msg("starting")

	return &env{
		cfg:    cfg,
		router: router.FromRegistrations(provider.InitializeProviders(cfg)),
		logs:   logs,
	}, nil
}

func (e *env) Close() {
	e.logs.Close()
}

func openStore(cfg *config.Config) (*storage.ConversationStorage, error) {
	store, err := storage.NewConversationStorage(cfg.ConversationsDir)
	if err != nil {
		return nil, cli.Exit(fmt.Sprintf("Failed to open conversation storage: %v", err), 1)
	}
	return store, nil
}

func runTUI(ctx context.Context, cmd *cli.Command) error {
	e, err := setup(cmd)
	if err != nil {
		return err
	}
	defer e.Close()

	store, err := openStore(e.cfg)
	if err != nil {
		return err
	}

	// Search is optional; the chat works without an index.
	index, err := storage.OpenSearchIndex(e.cfg.SearchIndexPath())
	if err != nil {
		config.DebugLog.Warn().Err(err).Msg("search index unavailable")
		index = nil
	} else {
		defer index.Close()
		if err := index.Rebuild(ctx, store); err != nil {
			config.DebugLog.Warn().Err(err).Msg("failed to rebuild search index")
		}
	}

	p := tea.NewProgram(
		ui.NewAppView(ui.Options{
			Config: e.cfg,
			Router: e.router,
			Store:  store,
			Index:  index,
		}),
		tea.WithAltScreen(),
		tea.WithContext(ctx),
	)

	if _, err := p.Run(); err != nil {
		return cli.Exit(fmt.Sprintf("Error running cmdai: %v", err), 1)
	}
	return nil
}
