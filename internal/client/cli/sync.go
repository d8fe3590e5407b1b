package cli

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"

	httpClient "github.com/iudanet/famsync/internal/client/api"
	"github.com/iudanet/famsync/internal/client/sync"
	"github.com/iudanet/famsync/internal/jobs"
	"github.com/iudanet/famsync/pkg/api"
)

// Sync runs one sync cycle and prints what happened.
func (c *Cli) Sync(ctx context.Context) error {
	events, unsubscribe := c.sync.Subscribe()
	stats, err := c.sync.SyncOnce(ctx)
	unsubscribe()

	if err != nil {
		return explainSyncError(err)
	}

	if err := c.render(syncTemplate, stats); err != nil {
		return err
	}
	// Канал закрыт, дочитываем накопившиеся события
	for e := range events {
		c.printEvent(e)
	}
	return nil
}

func explainSyncError(err error) error {
	switch {
	case errors.Is(err, sync.ErrNotEnrolled):
		return fmt.Errorf("device is not enrolled, run 'famsync enroll --token TOKEN' first")
	case errors.Is(err, sync.ErrTokenExpired):
		return fmt.Errorf("device token expired, mint a new one with 'famsync-server token' and enroll again")
	case errors.Is(err, httpClient.ErrUnauthorized):
		return fmt.Errorf("server refused the device token, it may have been revoked: %w", err)
	case errors.Is(err, sync.ErrTransient):
		return fmt.Errorf("server unreachable, changes stay queued: %w", err)
	case errors.Is(err, sync.ErrAlreadyRunning):
		return fmt.Errorf("a sync is already in progress")
	}
	return err
}

func (c *Cli) printEvent(e sync.Event) {
	switch e.Type {
	case sync.EventConflict:
		fields := make([]string, 0, len(e.Discarded))
		for f := range e.Discarded {
			fields = append(fields, f)
		}
		sort.Strings(fields)
		c.io.Printf("! %s %s: your change to %s was replaced (%s)\n",
			e.EntityType, e.EntityID, strings.Join(fields, ", "), e.Strategy)
	case sync.EventDeadLettered:
		c.io.Printf("! %s %s rejected by server: %s (%s)\n", e.EntityType, e.EntityID, e.Reason, e.Code)
	}
}

// DaemonOptions configure the background sync loop.
type DaemonOptions struct {
	Schedule string // cron-расписание периодической синхронизации, пусто - без таймера
	Nudges   bool   // синхронизироваться по уведомлениям сервера
}

// Daemon keeps syncing until ctx is cancelled: on start, on the schedule and on
// server nudges. Failed cycles back off inside the coordinator.
func (c *Cli) Daemon(ctx context.Context, opts DaemonOptions) error {
	events, unsubscribe := c.sync.Subscribe()
	defer unsubscribe()
	go c.logEvents(events)

	scheduler := jobs.NewScheduler(c.logger, 0)
	if opts.Schedule != "" {
		err := scheduler.Add(opts.Schedule, "sync", func(ctx context.Context) error {
			c.sync.Trigger(sync.ReasonTimer)
			return nil
		})
		if err != nil {
			return err
		}
	}
	scheduler.Start()
	defer scheduler.Stop()

	if opts.Nudges {
		go c.listenNudges(ctx)
	}

	// Первый цикл сразу после запуска
	c.sync.Trigger(sync.ReasonForeground)

	c.logger.Info("Sync daemon started", "schedule", opts.Schedule, "nudges", opts.Nudges)
	err := c.sync.Run(ctx)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (c *Cli) logEvents(events <-chan sync.Event) {
	for e := range events {
		switch e.Type {
		case sync.EventConflict:
			c.logger.Info("Local edit discarded by conflict resolution",
				"entity_type", e.EntityType,
				"entity_id", e.EntityID,
				"strategy", e.Strategy)
		case sync.EventDeadLettered:
			c.logger.Warn("Mutation rejected by server",
				"seq", e.Seq,
				"entity_id", e.EntityID,
				"code", e.Code,
				"reason", e.Reason)
		}
	}
}

// listenNudges keeps the nudge websocket open and reconnects with backoff.
// A reconnect after an outage triggers a connectivity sync.
func (c *Cli) listenNudges(ctx context.Context) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = time.Second
	b.MaxInterval = time.Minute

	lost := false
	for ctx.Err() == nil {
		creds, err := c.credentials.GetCredentials(ctx)
		if err == nil {
			err = c.api.ListenNudges(ctx, creds.Token, func(n api.Nudge) {
				if lost {
					lost = false
					b.Reset()
					c.sync.Trigger(sync.ReasonConnectivity)
				}
				c.logger.Debug("Nudge received", "from_device", n.DeviceID, "server_time", n.ServerTime)
				c.sync.Trigger(sync.ReasonNudge)
			})
		}
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			lost = true
			c.logger.Debug("Nudge channel unavailable", "error", err)
		}

		timer := time.NewTimer(b.NextBackOff())
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}
