package main

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/iudanet/famsync/internal/applier"
	"github.com/iudanet/famsync/internal/jobs"
	"github.com/iudanet/famsync/internal/observability"
	"github.com/iudanet/famsync/internal/resolver"
	"github.com/iudanet/famsync/internal/server"
	"github.com/iudanet/famsync/internal/server/handlers"
	"github.com/iudanet/famsync/internal/server/nudge"
	"github.com/iudanet/famsync/internal/server/storage/sqlite"
)

func newServeCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the sync API until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.serve(cmd.Context())
		},
	}
	cmd.Flags().StringVar(&a.addr, "addr", "", "listen address (default from config)")
	return cmd
}

func (a *app) serve(ctx context.Context) error {
	shutdownTracing, err := observability.Start(ctx, a.cfg.Telemetry, a.logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := shutdownTracing(context.WithoutCancel(ctx)); err != nil {
			a.logger.Warn("Failed to flush traces", "error", err)
		}
	}()

	store, err := sqlite.New(ctx, a.cfg.DBPath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer closeStore(a.logger, store)

	hub := nudge.NewHub(nudge.Config{}, a.logger)

	// С Redis nudge расходятся по всем репликам, без него - только локальный hub
	var publisher handlers.NudgePublisher = hub
	if a.cfg.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     a.cfg.Redis.Addr,
			Password: a.cfg.Redis.Password,
			DB:       a.cfg.Redis.DB,
		})
		defer client.Close()

		fanout := nudge.NewRedisFanout(client, hub, a.cfg.Redis.Channel, a.logger)
		go fanout.Run(ctx)
		publisher = fanout
		a.logger.Info("Nudge fan-out through Redis", "addr", a.cfg.Redis.Addr, "channel", a.cfg.Redis.Channel)
	}

	scheduler := jobs.NewScheduler(a.logger, 0)
	if a.cfg.Retention.Schedule != "" {
		retention := jobs.NewRetention(store, a.cfg.Retention.Tombstones, a.cfg.Retention.Conflicts, a.logger)
		if err := scheduler.Add(a.cfg.Retention.Schedule, "retention", retention.Run); err != nil {
			return err
		}
	}
	scheduler.Start()
	defer scheduler.Stop()

	router := server.NewRouter(server.Options{
		Store:      store,
		Applier:    applier.New(resolver.New(), a.logger),
		Hub:        hub,
		Publisher:  publisher,
		Logger:     a.logger,
		JWT:        a.jwtConfig(),
		RateWindow: a.cfg.RateLimit.Window,
		RateLimit:  a.cfg.RateLimit.Requests,
	})

	return server.New(a.cfg.Addr, router, hub, a.logger).Run(ctx)
}
