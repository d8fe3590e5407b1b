package main

import (
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/iudanet/famsync/internal/server/handlers"
	"github.com/iudanet/famsync/internal/server/storage"
	"github.com/iudanet/famsync/internal/server/storage/sqlite"
)

func newTokenCmd(a *app) *cobra.Command {
	var family, device, member string
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Register a device and print its token",
		Long: `Register a device of a family and print the token to enroll it with.

Without --device a new device id is generated. Running the command again for a
known device prints a fresh token for it.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			store, err := sqlite.New(ctx, a.cfg.DBPath)
			if err != nil {
				return fmt.Errorf("failed to open database: %w", err)
			}
			defer closeStore(a.logger, store)

			if device == "" {
				device = uuid.New().String()
			}
			err = store.RegisterDevice(ctx, &storage.Device{
				ID:        device,
				FamilyID:  family,
				Member:    member,
				CreatedAt: time.Now(),
			})
			switch {
			case errors.Is(err, storage.ErrDeviceAlreadyExists):
				known, err := store.GetDevice(ctx, device)
				if err != nil {
					return err
				}
				if known.FamilyID != family {
					return fmt.Errorf("device %s belongs to family %s", device, known.FamilyID)
				}
				if known.Revoked() {
					return fmt.Errorf("device %s is revoked", device)
				}
			case err != nil:
				return fmt.Errorf("failed to register device: %w", err)
			}

			token, expires, err := handlers.GenerateDeviceToken(a.jwtConfig(), family, device, member)
			if err != nil {
				return err
			}

			a.logger.Info("Device token issued", "family_id", family, "device_id", device)
			fmt.Fprintf(cmd.ErrOrStderr(), "Device %s of family %s", device, family)
			if !expires.IsZero() {
				fmt.Fprintf(cmd.ErrOrStderr(), ", token expires %s", expires.Format(time.RFC3339))
			}
			fmt.Fprintln(cmd.ErrOrStderr())
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&family, "family", "", "family id")
	cmd.Flags().StringVar(&device, "device", "", "device id (generated if empty)")
	cmd.Flags().StringVar(&member, "member", "", "family member using the device")
	_ = cmd.MarkFlagRequired("family")
	return cmd
}

func newMigrateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:       "migrate [up|down|status|version|redo]",
		Short:     "Run database migrations",
		Args:      cobra.MatchAll(cobra.MaximumNArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"up", "down", "status", "version", "redo"},
		RunE: func(cmd *cobra.Command, args []string) error {
			command := "up"
			if len(args) == 1 {
				command = args[0]
			}

			store, err := sqlite.Open(cmd.Context(), a.cfg.DBPath)
			if err != nil {
				return err
			}
			defer closeStore(a.logger, store)

			return store.Migrate(cmd.Context(), command)
		},
	}
}

func newDevicesCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "devices",
		Short: "List and revoke family devices",
	}

	var family string
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List devices of a family",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := sqlite.New(cmd.Context(), a.cfg.DBPath)
			if err != nil {
				return err
			}
			defer closeStore(a.logger, store)

			devices, err := store.ListDevices(cmd.Context(), family)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tMEMBER\tCREATED\tLAST SYNC\tSTATE")
			for _, d := range devices {
				lastSync := "never"
				if d.LastSyncAt != nil {
					lastSync = d.LastSyncAt.Format(time.RFC3339)
				}
				state := "active"
				if d.Revoked() {
					state = "revoked"
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", d.ID, d.Member, d.CreatedAt.Format(time.RFC3339), lastSync, state)
			}
			return w.Flush()
		},
	}
	listCmd.Flags().StringVar(&family, "family", "", "family id")
	_ = listCmd.MarkFlagRequired("family")

	revokeCmd := &cobra.Command{
		Use:   "revoke ID",
		Short: "Revoke a device, its token stops working immediately",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := sqlite.New(cmd.Context(), a.cfg.DBPath)
			if err != nil {
				return err
			}
			defer closeStore(a.logger, store)

			if err := store.RevokeDevice(cmd.Context(), args[0], time.Now()); err != nil {
				return err
			}
			a.logger.Info("Device revoked", "device_id", args[0])
			fmt.Fprintf(cmd.OutOrStdout(), "Device %s revoked\n", args[0])
			return nil
		},
	}

	cmd.AddCommand(listCmd, revokeCmd)
	return cmd
}

func newConflictsCmd(a *app) *cobra.Command {
	var (
		family string
		limit  int
	)
	cmd := &cobra.Command{
		Use:   "conflicts",
		Short: "Show recent conflict resolutions of a family",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := sqlite.New(cmd.Context(), a.cfg.DBPath)
			if err != nil {
				return err
			}
			defer closeStore(a.logger, store)

			records, err := store.ListConflicts(cmd.Context(), family, limit)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "RESOLVED\tENTITY\tDEVICE\tSTRATEGY\tVERSION\tLOCAL DISCARDED")
			for _, r := range records {
				fmt.Fprintf(w, "%s\t%s %s\t%s\t%s\t%d -> %d\t%t\n",
					r.ResolvedAt.Format(time.RFC3339),
					r.EntityType, r.EntityID,
					r.DeviceID,
					r.Decision.Strategy,
					r.BaseVersion, r.Version,
					r.Decision.LocalDiscarded)
			}
			return w.Flush()
		},
	}
	cmd.Flags().StringVar(&family, "family", "", "family id")
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum records")
	_ = cmd.MarkFlagRequired("family")
	return cmd
}
