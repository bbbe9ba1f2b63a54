package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"

	"github.com/slingshot-ai/slingdial/cmd/commands"
	"github.com/slingshot-ai/slingdial/internal/config"
	"github.com/slingshot-ai/slingdial/internal/secrets"
)

func main() {
	if err := config.LoadDotenv(config.DotenvPath()); err != nil {
		slog.Warn("failed to load .env", "error", err)
	}
	// Encrypted credentials override plain dotenv values.
	vault := secrets.NewVault(config.DotenvPath(), secrets.KeyPath())
	if err := vault.Export(); err != nil {
		slog.Warn("failed to decrypt credentials", "error", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	cmd := commands.NewRootCommand()
	if err := cmd.Run(ctx, os.Args); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}
