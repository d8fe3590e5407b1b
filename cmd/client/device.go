package main

import (
	"strconv"

	"github.com/spf13/cobra"

	"github.com/iudanet/famsync/internal/client/cli"
)

func newEnrollCmd(a *app) *cobra.Command {
	var token string
	cmd := &cobra.Command{
		Use:   "enroll",
		Short: "Bind this device to a family with a server-issued token",
		Long: `Bind this device to a family.

The token is minted on the server with 'famsync-server token'. Without --token
it is read from the terminal. Enrollment works offline: the server is only
checked for reachability.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.cli.Enroll(cmd.Context(), a.cfg.ServerURL, token)
		},
	}
	cmd.Flags().StringVar(&token, "token", "", "device token")
	return cmd
}

func newLogoutCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the device token, keep local data and queued changes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.cli.Logout(cmd.Context())
		},
	}
}

func newStatusCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show enrollment, last sync and queue length",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.cli.Status(cmd.Context())
		},
	}
}

func newSyncCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Run one sync cycle now",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.cli.Sync(cmd.Context())
		},
	}
}

func newDaemonCmd(a *app) *cobra.Command {
	var opts cli.DaemonOptions
	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "Keep syncing in the background until interrupted",
		Long: `Keep syncing until interrupted: once on start, on the schedule and whenever
the server announces changes from another device.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("schedule") {
				opts.Schedule = a.cfg.Sync.Schedule
			}
			if !cmd.Flags().Changed("nudges") {
				opts.Nudges = a.cfg.Sync.Nudges
			}
			return a.cli.Daemon(cmd.Context(), opts)
		},
	}
	cmd.Flags().StringVar(&opts.Schedule, "schedule", "", `cron schedule, e.g. "@every 5m" (default from config)`)
	cmd.Flags().BoolVar(&opts.Nudges, "nudges", true, "listen for server change notifications")
	return cmd
}

func newDeadLetterCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "deadletter",
		Aliases: []string{"dl"},
		Short:   "Inspect mutations the server rejected",
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List rejected mutations",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return a.cli.DeadLetterList(cmd.Context())
			},
		},
		&cobra.Command{
			Use:   "retry SEQ",
			Short: "Queue a rejected mutation again",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				seq, err := parseSeq(args[0])
				if err != nil {
					return err
				}
				return a.cli.DeadLetterRetry(cmd.Context(), seq)
			},
		},
		&cobra.Command{
			Use:   "discard SEQ",
			Short: "Drop a rejected mutation for good",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				seq, err := parseSeq(args[0])
				if err != nil {
					return err
				}
				return a.cli.DeadLetterDiscard(cmd.Context(), seq)
			},
		},
	)
	return cmd
}

func parseSeq(s string) (uint64, error) {
	return strconv.ParseUint(s, 10, 64)
}
