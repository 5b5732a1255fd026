package cmd

import (
	"context"
	"fmt"
	"net"

	"grimm.is/ruleaudit/internal/api"
)

// RunServe runs the REST API until ctx is canceled. listen overrides the
// config's api.listen.
func RunServe(ctx context.Context, configFile, listen string) error {
	cfg, err := loadConfig(configFile)
	if err != nil {
		return err
	}
	if listen != "" {
		cfg.API.Listen = listen
	}
	logger, closeLog, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer closeLog()

	opts := api.ServerOptions{Config: cfg, Logger: logger}
	if cfg.History.Enabled {
		store, err := openHistory(cfg)
		if err != nil {
			return err
		}
		defer store.Close()
		opts.History = store
		logger.Info("history enabled", "path", cfg.History.Path)
	}

	server, err := api.NewServer(opts)
	if err != nil {
		return err
	}
	ln, err := net.Listen("tcp", cfg.API.Listen)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", cfg.API.Listen, err)
	}
	Printer.Fprintf(Stderr, "Listening on %s\n", ln.Addr())
	return server.Serve(ctx, ln)
}
