package main

import (
	"github.com/spf13/cobra"

	"github.com/iudanet/famsync/internal/client/cli")

func taskFlags(cmd *cobra.Command, in *cli.TaskInput) {
	f := cmd.Flags()
	f.StringVar(&in.Title, "title", "", "task title")
	f.StringVar(&in.Description, "description", "", "details")
	f.StringVar(&in.Assignee, "assignee", "", "family member")
	f.StringVar(&in.Status, "status", "", "open, in_progress or done")
	f.StringVar(&in.Due, "due", "", `due date, "2006-01-02" or "2006-01-02 15:04"`)
	f.IntVar(&in.Points, "points", 0, "points awarded on completion")
}

func newTaskCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "task",
		Short: "Manage family tasks",
	}

	var add cli.TaskInput
	addCmd := &cobra.Command{
		Use:   "add TITLE",
		Short: "Add a task",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				add.Title = args[0]
			}
			return a.cli.TaskAdd(cmd.Context(), add)
		},
	}
	taskFlags(addCmd, &add)

	var edit cli.TaskInput
	editCmd := &cobra.Command{
		Use:   "edit ID",
		Short: "Change task fields",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.cli.TaskEdit(cmd.Context(), args[0], edit)
		},
	}
	taskFlags(editCmd, &edit)

	cmd.AddCommand(
		addCmd,
		editCmd,
		&cobra.Command{
			Use:   "done ID",
			Short: "Mark a task done",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return a.cli.TaskDone(cmd.Context(), args[0])
			},
		},
		&cobra.Command{
			Use:     "rm ID",
			Aliases: []string{"delete"},
			Short:   "Delete a task",
			Args:    cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return a.cli.TaskRemove(cmd.Context(), args[0])
			},
		},
		&cobra.Command{
			Use:     "list",
			Aliases: []string{"ls"},
			Short:   "List tasks",
			Args:    cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return a.cli.TaskList(cmd.Context())
			},
		},
	)
	return cmd
}

func newEventCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "event",
		Short: "Manage the family calendar",
	}

	var in cli.EventInput
	addCmd := &cobra.Command{
		Use:   "add TITLE",
		Short: "Add a calendar event",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				in.Title = args[0]
			}
			return a.cli.EventAdd(cmd.Context(), in)
		},
	}
	f := addCmd.Flags()
	f.StringVar(&in.Title, "title", "", "event title")
	f.StringVar(&in.Start, "start", "", "start time")
	f.StringVar(&in.End, "end", "", "end time")
	f.StringVar(&in.Location, "location", "", "where")
	f.StringVar(&in.Notes, "notes", "", "notes")
	f.StringSliceVar(&in.Members, "member", nil, "attending member, repeatable")

	cmd.AddCommand(
		addCmd,
		&cobra.Command{
			Use:     "rm ID",
			Aliases: []string{"delete"},
			Short:   "Delete an event",
			Args:    cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return a.cli.EventRemove(cmd.Context(), args[0])
			},
		},
		&cobra.Command{
			Use:     "list",
			Aliases: []string{"ls"},
			Short:   "List events by start time",
			Args:    cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return a.cli.EventList(cmd.Context())
			},
		},
	)
	return cmd
}

func newPointsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "points",
		Short: "Award points and show balances",
	}

	var (
		member string
		amount int
		reason string
		taskID string
	)
	awardCmd := &cobra.Command{
		Use:   "award",
		Short: "Award points, a negative amount spends them",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.cli.PointsAward(cmd.Context(), member, amount, reason, taskID)
		},
	}
	f := awardCmd.Flags()
	f.StringVar(&member, "member", "", "family member")
	f.IntVar(&amount, "amount", 0, "points, negative to spend")
	f.StringVar(&reason, "reason", "", "what for")
	f.StringVar(&taskID, "task", "", "related task id")
	_ = awardCmd.MarkFlagRequired("member")
	_ = awardCmd.MarkFlagRequired("amount")

	var of string
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "Show the points ledger and balances",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.cli.PointsList(cmd.Context(), of)
		},
	}
	listCmd.Flags().StringVar(&of, "member", "", "only this member")

	cmd.AddCommand(awardCmd, listCmd)
	return cmd
}

func newBadgeCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "badge",
		Short: "Grant and list badges",
	}

	var member, icon string
	grantCmd := &cobra.Command{
		Use:   "grant NAME",
		Short: "Grant a badge to a member",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.cli.BadgeGrant(cmd.Context(), member, args[0], icon)
		},
	}
	grantCmd.Flags().StringVar(&member, "member", "", "family member")
	grantCmd.Flags().StringVar(&icon, "icon", "", "badge icon")
	_ = grantCmd.MarkFlagRequired("member")

	cmd.AddCommand(
		grantCmd,
		&cobra.Command{
			Use:   "list",
			Short: "List granted badges",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return a.cli.BadgeList(cmd.Context())
			},
		},
	)
	return cmd
}
