package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/iudanet/famsync/internal/config"
	"github.com/iudanet/famsync/internal/logging"
	"github.com/iudanet/famsync/internal/server/handlers"
)

type app struct {
	cfg        *config.Server
	logger     *slog.Logger
	logs       io.Closer
	configFile string
	dbPath     string
	addr       string
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:           "famsync-server",
		Short:         "famsync family sync server",
		Version:       fmt.Sprintf("%s (built %s, commit %s)", Version, BuildDate, GitCommit),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == "help" {
				return nil
			}
			return a.load(cmd)
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if a.logs != nil {
				return a.logs.Close()
			}
			return nil
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&a.configFile, "config", "", "config file (yaml, json or toml)")
	pf.StringVar(&a.dbPath, "db", "", "path to the SQLite database")

	root.AddCommand(
		newServeCmd(a),
		newTokenCmd(a),
		newMigrateCmd(a),
		newDevicesCmd(a),
		newConflictsCmd(a),
	)
	return root
}

func (a *app) load(cmd *cobra.Command) error {
	v, err := config.New(a.configFile)
	if err != nil {
		return err
	}
	config.SetServerDefaults(v)

	for flag, key := range map[string]string{"db": "db_path", "addr": "addr"} {
		if f := cmd.Flags().Lookup(flag); f != nil && f.Changed {
			if err := v.BindPFlag(key, f); err != nil {
				return fmt.Errorf("failed to bind --%s: %w", flag, err)
			}
		}
	}

	cfg, err := config.LoadServer(v)
	if err != nil {
		return err
	}
	a.cfg = cfg

	a.logger, a.logs, err = logging.New(cfg.Log, os.Stderr)
	return err
}

func (a *app) jwtConfig() handlers.JWTConfig {
	return handlers.JWTConfig{
		Secret:   []byte(a.cfg.JWTSecret),
		TokenTTL: a.cfg.TokenTTL,
	}
}

func closeStore(logger *slog.Logger, c io.Closer) {
	if err := c.Close(); err != nil {
		logger.Error("Failed to close database", "error", err)
	}
}
