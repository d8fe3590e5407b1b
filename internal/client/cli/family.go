package cli

import (
	"context"
	"fmt"
	"sort"

	"github.com/iudanet/famsync/internal/client/data"
	"github.com/iudanet/famsync/internal/models"
)

// EventInput holds event flags.
type EventInput struct {
	Title    string
	Location string
	Notes    string
	Start    string
	End      string
	Members  []string
}

func (c *Cli) EventAdd(ctx context.Context, in EventInput) error {
	event := &models.Event{
		Title:    in.Title,
		Location: in.Location,
		Notes:    in.Notes,
		Members:  in.Members,
	}
	if in.Start != "" {
		start, err := parseTime(in.Start)
		if err != nil {
			return fmt.Errorf("invalid start: %w", err)
		}
		event.Start = &start
	}
	if in.End != "" {
		end, err := parseTime(in.End)
		if err != nil {
			return fmt.Errorf("invalid end: %w", err)
		}
		if event.Start != nil && end.Before(*event.Start) {
			return fmt.Errorf("event cannot end before it starts")
		}
		event.End = &end
	}

	id, err := c.data.AddEvent(ctx, event)
	if err != nil {
		return fmt.Errorf("failed to add event: %w", err)
	}
	c.io.Printf("✓ Event added: %s\n", id)
	return nil
}

func (c *Cli) EventList(ctx context.Context) error {
	events, err := c.data.ListEvents(ctx)
	if err != nil {
		return fmt.Errorf("failed to list events: %w", err)
	}
	sort.SliceStable(events, func(i, j int) bool {
		a, b := events[i].Value.Start, events[j].Value.Start
		if a == nil || b == nil {
			return b == nil && a != nil
		}
		return a.Before(*b)
	})
	return c.render(eventListTemplate, events)
}

func (c *Cli) EventRemove(ctx context.Context, id string) error {
	if err := c.data.Delete(ctx, models.EntityTypeEvent, id); err != nil {
		return fmt.Errorf("failed to delete event: %w", err)
	}
	c.io.Println("✓ Event deleted")
	return nil
}

func (c *Cli) PointsAward(ctx context.Context, member string, amount int, reason, taskID string) error {
	_, err := c.data.AwardPoints(ctx, &models.PointsEntry{
		Member: member,
		Amount: amount,
		Reason: reason,
		TaskID: taskID,
	})
	if err != nil {
		return fmt.Errorf("failed to award points: %w", err)
	}
	balance, err := c.data.Balance(ctx, member)
	if err != nil {
		return err
	}
	c.io.Printf("✓ %+d points for %s, balance %d\n", amount, member, balance)
	return nil
}

type memberBalance struct {
	Member string
	Total  int
}

// PointsList prints the ledger, optionally of one member, with balances
func (c *Cli) PointsList(ctx context.Context, member string) error {
	entries, err := c.data.ListPoints(ctx)
	if err != nil {
		return fmt.Errorf("failed to list points: %w", err)
	}

	filtered := make([]*data.Item[models.PointsEntry], 0, len(entries))
	totals := make(map[string]int)
	for _, e := range entries {
		if member != "" && e.Value.Member != member {
			continue
		}
		filtered = append(filtered, e)
		totals[e.Value.Member] += e.Value.Amount
	}

	balances := make([]memberBalance, 0, len(totals))
	for m, total := range totals {
		balances = append(balances, memberBalance{Member: m, Total: total})
	}
	sort.Slice(balances, func(i, j int) bool { return balances[i].Member < balances[j].Member })

	return c.render(pointsTemplate, struct {
		Entries  []*data.Item[models.PointsEntry]
		Balances []memberBalance
	}{Entries: filtered, Balances: balances})
}

func (c *Cli) BadgeGrant(ctx context.Context, member, name, icon string) error {
	id, err := c.data.GrantBadge(ctx, &models.Badge{Member: member, Name: name, Icon: icon})
	if err != nil {
		return fmt.Errorf("failed to grant badge: %w", err)
	}
	c.io.Printf("✓ Badge %q granted to %s: %s\n", name, member, id)
	return nil
}

func (c *Cli) BadgeList(ctx context.Context) error {
	badges, err := c.data.ListBadges(ctx)
	if err != nil {
		return fmt.Errorf("failed to list badges: %w", err)
	}
	return c.render(badgeListTemplate, badges)
}
