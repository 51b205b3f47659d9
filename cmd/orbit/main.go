package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/dohr-michael/orbit/cmd/commands"
	"github.com/dohr-michael/orbit/internal/config"
	"github.com/dohr-michael/orbit/internal/secrets"
)

func main() {
	if err := config.LoadDotenv(config.DotenvPath()); err != nil {
		slog.Warn("failed to load .env", "error", err)
	}
	decryptEnv()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cmd := commands.NewRootCommand()
	if err := cmd.Run(ctx, os.Args); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

// decryptEnv unseals ENC[age:...] values loaded from .env. Without a key
// there is nothing to decrypt.
func decryptEnv() {
	if _, err := os.Stat(config.KeyPath()); err != nil {
		return
	}
	sealer, err := secrets.OpenSealer(config.KeyPath())
	if err != nil {
		slog.Warn("failed to open age key", "error", err)
		return
	}
	if names := sealer.DecryptEnv(); len(names) > 0 {
		slog.Debug("decrypted env values", "keys", names)
	}
}
