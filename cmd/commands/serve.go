package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/slingshot-ai/slingdial/internal/callstore"
	"github.com/slingshot-ai/slingdial/internal/config"
	"github.com/slingshot-ai/slingdial/internal/dialog"
	"github.com/slingshot-ai/slingdial/internal/dialog/segment"
	"github.com/slingshot-ai/slingdial/internal/events"
	"github.com/slingshot-ai/slingdial/internal/heartbeat"
	"github.com/slingshot-ai/slingdial/internal/models"
	"github.com/slingshot-ai/slingdial/internal/phonebook"
	"github.com/slingshot-ai/slingdial/internal/storage"
	"github.com/slingshot-ai/slingdial/internal/telephony"
)

// NewServeCommand returns the serve subcommand.
func NewServeCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Start the Slingdial telephony server",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "host",
				Usage: "Host to listen on",
			},
			&cli.IntFlag{
				Name:  "port",
				Usage: "Port to listen on",
			},
			&cli.BoolFlag{
				Name:  "dialer",
				Usage: "Run the outbound dialer alongside the server",
			},
		},
		Action: runServe,
	}
}

func runServe(_ context.Context, cmd *cli.Command) error {
	setupLogging(cmd)
	cfg := loadConfig(cmd)

	// CLI flags override config
	if cmd.IsSet("host") {
		cfg.Server.Host = cmd.String("host")
	}
	if cmd.IsSet("port") {
		cfg.Server.Port = cmd.Int("port")
	}
	if cmd.IsSet("dialer") {
		cfg.Dialer.Enabled = cmd.Bool("dialer")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	bus := events.NewBus(cfg.Events.BufferSize)
	defer bus.Close()

	engine, err := buildEngine(ctx, cfg, bus)
	if err != nil {
		return err
	}

	store := callstore.NewFileStore(config.CallsPath())
	languages, err := config.NewLanguageTable(cfg.Speech.DefaultLanguage, cfg.Speech.LanguagesFile)
	if err != nil {
		return fmt.Errorf("load language profiles: %w", err)
	}

	manager := telephony.NewCallManager(engine, segment.New(), store, languages, bus)

	logger := storage.NewEventLogger(config.CallLogPath(), bus)
	defer logger.Close()

	hb := heartbeat.NewWriter(config.HeartbeatPath(), func() int {
		list, err := store.List()
		if err != nil {
			return 0
		}
		return len(list)
	})
	hb.Start()
	defer hb.Stop()

	server := telephony.NewServer(manager, store, bus, cfg.Server.Host, cfg.Server.Port)

	if cfg.Dialer.Enabled {
		book, err := openPhonebook(cfg)
		if err != nil {
			return err
		}
		defer book.Close()

		dialer, err := telephony.NewDialer(book, &telephony.ManagerProvider{Manager: manager}, manager, bus, cfg.Dialer)
		if err != nil {
			return fmt.Errorf("init dialer: %w", err)
		}
		go func() {
			if err := dialer.Run(ctx); err != nil && ctx.Err() == nil {
				slog.Error("dialer stopped", "error", err)
			}
		}()
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	select {
	case <-ctx.Done():
		slog.Info("shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

// setupLogging switches the default logger to debug level when --debug is set.
func setupLogging(cmd *cli.Command) {
	if cmd.Bool("debug") {
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug})))
	}
}

// loadConfig loads the config file, falling back to defaults.
func loadConfig(cmd *cli.Command) *config.Config {
	configPath := cmd.String("config")
	cfg, err := config.Load(configPath)
	if err != nil {
		slog.Warn("config not found, using defaults", "path", configPath, "error", err)
		cfg = config.Default()
	}
	return cfg
}

// buildEngine assembles the model registry, skill set and dialog graph.
func buildEngine(ctx context.Context, cfg *config.Config, bus *events.Bus) (*dialog.Engine, error) {
	registry := models.NewRegistry(cfg.Models)

	skills := dialog.DefaultSkills()
	if len(cfg.Dialog.SkillDirs) > 0 {
		if err := skills.LoadOverrides(cfg.Dialog.SkillDirs, cfg.Dialog.SkillPatterns); err != nil {
			return nil, fmt.Errorf("load skill overrides: %w", err)
		}
	}

	engine, err := dialog.NewEngine(ctx, skills, registry, cfg.Dialog, bus)
	if err != nil {
		return nil, fmt.Errorf("build dialog graph: %w", err)
	}
	return engine, nil
}

func openPhonebook(cfg *config.Config) (*phonebook.Book, error) {
	path := cfg.Dialer.PhonebookPath
	if path == "" {
		path = filepath.Join(config.SlingdialPath(), "phonebook.db")
	}
	book, err := phonebook.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open phonebook: %w", err)
	}
	return book, nil
}
