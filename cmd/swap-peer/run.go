package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/intercomswap/swap-core/internal/autopost"
	"github.com/intercomswap/swap-core/internal/config"
)

func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "start the automation loop and autopost scheduler",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPeer(cmd.Context())
		},
	}
}

func runPeer(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	deps, err := buildPeerDeps(ctx, cfg)
	if err != nil {
		return err
	}
	if err := deps.bus.Connect(ctx); err != nil {
		return err
	}
	defer deps.bus.Close()

	loop, err := deps.automationLoop()
	if err != nil {
		return err
	}

	autopostJobs, err := autopost.LoadJobs(cfg.AutopostJobsPath)
	if err != nil {
		return err
	}
	scheduler := deps.autopostScheduler(autopostJobs)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	loopErr := make(chan error, 1)
	go func() { loopErr <- loop.Run(ctx) }()

	ticker := time.NewTicker(cfg.AutopostInterval)
	defer ticker.Stop()

	for {
		select {
		case sig := <-quit:
			deps.log.Info("shutdown signal received", slog.String("signal", sig.String()))
			cancel()
			<-loopErr
			return nil
		case err := <-loopErr:
			return err
		case <-ticker.C:
			scheduler.Tick(ctx)
		}
	}
}
