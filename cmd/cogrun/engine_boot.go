package main

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/echocog/cogrun/internal/config"
	"github.com/echocog/cogrun/internal/engine"
)

// bootEngine loads configuration, builds a zap logger matching its Debug
// flag, and wires a fully started Engine. Callers must call the returned
// stop func before exiting.
func bootEngine(ctx context.Context) (*engine.Engine, func(), error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("loading config: %w", err)
	}

	var log *zap.Logger
	if cfg.Debug {
		log, err = zap.NewDevelopment()
	} else {
		log, err = zap.NewProduction()
	}
	if err != nil {
		return nil, nil, fmt.Errorf("building logger: %w", err)
	}

	e, err := engine.New(cfg, log, engine.Options{})
	if err != nil {
		return nil, nil, fmt.Errorf("building engine: %w", err)
	}
	if err := e.Start(ctx); err != nil {
		return nil, nil, fmt.Errorf("starting engine: %w", err)
	}

	stop := func() {
		_ = e.Stop(ctx)
		_ = log.Sync()
	}
	return e, stop, nil
}
