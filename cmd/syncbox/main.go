package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/mzhadan/syncbox/internal/app"
	"github.com/mzhadan/syncbox/internal/buildinfo"
	"github.com/mzhadan/syncbox/internal/config"
	"github.com/mzhadan/syncbox/internal/logging"
	"golang.org/x/term"
	"gopkg.in/natefinch/lumberjack.v2"
)

func main() {

	buildinfo.PrintBuildData(os.Stdout)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg := config.LoadConfig()
	logger := newLogger(cfg)

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		log.Fatalf("%v", err)
	}
	defer a.Close()

	passphrase, err := readPassphrase()
	if err != nil {
		log.Fatalf("read passphrase: %v", err)
	}
	if err := a.Unlock(ctx, passphrase); err != nil {
		log.Fatalf("unlock: %v", err)
	}

	if _, err := a.Coordinator.RunNow(ctx); err != nil {
		logger.Warn(ctx, "initial sync failed", "error", err)
	}

	a.Run(ctx)
}

func newLogger(cfg *config.Config) logging.Logger {
	var w io.Writer = os.Stderr
	if cfg.LogFile != "" {
		w = &lumberjack.Logger{
			Filename:   cfg.LogFile,
			MaxSize:    10,
			MaxBackups: 3,
			MaxAge:     28,
			Compress:   true,
		}
	}
	return logging.NewSlogLogger(slog.New(slog.NewJSONHandler(w, nil)))
}

func readPassphrase() ([]byte, error) {
	fmt.Print("Passphrase: ")
	defer fmt.Println()
	return term.ReadPassword(int(os.Stdin.Fd()))
}
