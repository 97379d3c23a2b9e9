package main

import (
	"context"
	"encoding/json"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"
	"golang.org/x/xerrors"

	"github.com/yungbote/modelforge-backend/internal/app"
	"github.com/yungbote/modelforge-backend/internal/config"
	"github.com/yungbote/modelforge-backend/internal/pkg/logger"
)

func loadConfig(cctx *cli.Context) (*config.Config, *logger.Logger, error) {
	cfg, err := config.Load(cctx.String(FlagConfig.Name))
	if err != nil {
		return nil, nil, err
	}
	if mode := cctx.String(FlagLogMode.Name); mode != "" {
		cfg.LogMode = mode
	}
	log, err := logger.New(cfg.LogMode)
	if err != nil {
		return nil, nil, xerrors.Errorf("init logger: %w", err)
	}
	return cfg, log, nil
}

func openApp(cctx *cli.Context) (*app.App, error) {
	cfg, log, err := loadConfig(cctx)
	if err != nil {
		return nil, err
	}
	a, err := app.New(cctx.Context, cfg, log)
	if err != nil {
		log.Sync()
		return nil, err
	}
	return a, nil
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
