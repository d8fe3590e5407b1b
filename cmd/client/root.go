package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	httpClient "github.com/iudanet/famsync/internal/client/api"
	"github.com/iudanet/famsync/internal/client/auth"
	"github.com/iudanet/famsync/internal/client/cli"
	"github.com/iudanet/famsync/internal/client/data"
	"github.com/iudanet/famsync/internal/client/iocli"
	"github.com/iudanet/famsync/internal/client/storage/boltdb"
	"github.com/iudanet/famsync/internal/client/sync"
	"github.com/iudanet/famsync/internal/clock"
	"github.com/iudanet/famsync/internal/config"
	"github.com/iudanet/famsync/internal/logging"
)

// app holds everything a command needs; built in PersistentPreRunE
type app struct {
	cli    *cli.Cli
	cfg    *config.Client
	store  *boltdb.Storage
	logs   io.Closer
	clock  *clock.Clock
	logger *slog.Logger
	flags  rootFlags
}

type rootFlags struct {
	configFile     string
	serverURL      string
	dataPath       string
	passphraseFile string
	logLevel       string
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:           "famsync",
		Short:         "Offline-first family organizer",
		Long:          "famsync keeps family tasks, events, points and badges on this device and syncs them with the family server.",
		Version:       fmt.Sprintf("%s (built %s, commit %s)", Version, BuildDate, GitCommit),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == "help" {
				return nil
			}
			return a.open(cmd)
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return a.close()
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&a.flags.configFile, "config", "", "config file (yaml, json or toml)")
	pf.StringVar(&a.flags.serverURL, "server", "", "family server URL")
	pf.StringVar(&a.flags.dataPath, "data", "", "path to the local database")
	pf.StringVar(&a.flags.passphraseFile, "passphrase-file", "", "file with the local database passphrase")
	pf.StringVar(&a.flags.logLevel, "log-level", "", "debug, info, warn or error")

	root.AddCommand(
		newEnrollCmd(a),
		newLogoutCmd(a),
		newStatusCmd(a),
		newTaskCmd(a),
		newEventCmd(a),
		newPointsCmd(a),
		newBadgeCmd(a),
		newSyncCmd(a),
		newDaemonCmd(a),
		newDeadLetterCmd(a),
	)
	return root
}

func (a *app) loadConfig(cmd *cobra.Command) error {
	v, err := config.New(a.flags.configFile)
	if err != nil {
		return err
	}
	config.SetClientDefaults(v)

	// Флаги командной строки сильнее файла и переменных окружения
	bindings := map[string]string{
		"server":    "server_url",
		"data":      "data_path",
		"log-level": "log.level",
	}
	for flag, key := range bindings {
		if f := cmd.Flags().Lookup(flag); f != nil && f.Changed {
			if err := v.BindPFlag(key, f); err != nil {
				return fmt.Errorf("failed to bind --%s: %w", flag, err)
			}
		}
	}

	cfg, err := config.LoadClient(v)
	if err != nil {
		return err
	}
	a.cfg = cfg
	return nil
}

func (a *app) open(cmd *cobra.Command) error {
	ctx := cmd.Context()
	if err := a.loadConfig(cmd); err != nil {
		return err
	}

	logger, logs, err := logging.New(a.cfg.Log, os.Stderr)
	if err != nil {
		return err
	}
	a.logger = logger
	a.logs = logs

	store, err := boltdb.New(ctx, a.cfg.DataPath)
	if err != nil {
		return fmt.Errorf("failed to open local database: %w", err)
	}
	a.store = store

	stdio := iocli.NewStdio()
	a.cli = a.build(stdio)

	if err := a.unlock(ctx); err != nil {
		return err
	}

	// Часы устройства продолжают идти от последней выданной отметки
	last, err := store.GetClock(ctx)
	if err != nil {
		return fmt.Errorf("failed to read device clock: %w", err)
	}
	a.clock.Restore(last)
	return nil
}

func (a *app) build(stdio iocli.IO) *cli.Cli {
	apiClient := httpClient.NewClient(a.cfg.ServerURL)
	a.clock = clock.New(0)

	coordinator := sync.New(apiClient, a.store, a.clock, sync.Config{
		BatchSize:      a.cfg.Sync.BatchSize,
		RequestTimeout: a.cfg.Sync.RequestTimeout,
		InitialBackoff: a.cfg.Sync.InitialBackoff,
		MaxBackoff:     a.cfg.Sync.MaxBackoff,
	}, a.logger)

	return cli.New(cli.Deps{
		IO:          stdio,
		Data:        data.NewService(a.store, a.clock, a.logger),
		Auth:        auth.NewService(apiClient, a.store, a.logger),
		Sync:        coordinator,
		DeadLetters: a.store,
		Credentials: a.store,
		API:         apiClient,
		Logger:      a.logger,
	})
}

// unlock opens an encrypted store, or seals a fresh one when encryption is enabled
func (a *app) unlock(ctx context.Context) error {
	sealed, err := a.store.Sealed(ctx)
	if err != nil {
		return fmt.Errorf("failed to inspect local database: %w", err)
	}
	if !sealed && !a.cfg.Encrypt {
		return nil
	}

	passphrase, err := a.cli.ReadPassphrase(cli.Passphrase{FromFile: a.flags.passphraseFile})
	if err != nil {
		return err
	}
	if err := a.store.Unlock(ctx, passphrase); err != nil {
		return fmt.Errorf("failed to unlock local database: %w", err)
	}
	return nil
}

func (a *app) close() error {
	var errs []error
	if a.store != nil {
		errs = append(errs, a.store.Close())
		a.store = nil
	}
	if a.logs != nil {
		errs = append(errs, a.logs.Close())
		a.logs = nil
	}
	return errors.Join(errs...)
}
