package data

import (
	"context"
	"fmt"
	"strings"

	"github.com/iudanet/famsync/internal/models"
)

// AddTask queues a new task. An empty status becomes open.
func (s *service) AddTask(ctx context.Context, task *models.Task) (string, error) {
	if strings.TrimSpace(task.Title) == "" {
		return "", fmt.Errorf("task title is required")
	}
	t := *task
	if t.Status == "" {
		t.Status = models.TaskStatusOpen
	}
	return s.create(ctx, models.EntityTypeTask, &t)
}

// UpdateTask queues a partial edit; only non-zero fields of patch are sent.
func (s *service) UpdateTask(ctx context.Context, id string, patch *models.Task) error {
	return s.update(ctx, models.EntityTypeTask, id, patch)
}

// CompleteTask marks a task done
func (s *service) CompleteTask(ctx context.Context, id string) error {
	return s.update(ctx, models.EntityTypeTask, id, &models.Task{Status: models.TaskStatusDone})
}

func (s *service) GetTask(ctx context.Context, id string) (*Item[models.Task], error) {
	return get[models.Task](ctx, s, models.EntityTypeTask, id)
}

func (s *service) ListTasks(ctx context.Context) ([]*Item[models.Task], error) {
	return list[models.Task](ctx, s, models.EntityTypeTask)
}

// AddEvent queues a calendar event
func (s *service) AddEvent(ctx context.Context, event *models.Event) (string, error) {
	if strings.TrimSpace(event.Title) == "" {
		return "", fmt.Errorf("event title is required")
	}
	return s.create(ctx, models.EntityTypeEvent, event)
}

func (s *service) UpdateEvent(ctx context.Context, id string, patch *models.Event) error {
	return s.update(ctx, models.EntityTypeEvent, id, patch)
}

func (s *service) ListEvents(ctx context.Context) ([]*Item[models.Event], error) {
	return list[models.Event](ctx, s, models.EntityTypeEvent)
}

// AwardPoints appends a ledger entry. Negative amounts spend points.
func (s *service) AwardPoints(ctx context.Context, entry *models.PointsEntry) (string, error) {
	if entry.Member == "" {
		return "", fmt.Errorf("member is required")
	}
	if entry.Amount == 0 {
		return "", fmt.Errorf("amount must not be zero")
	}
	return s.create(ctx, models.EntityTypePointsEntry, entry)
}

func (s *service) ListPoints(ctx context.Context) ([]*Item[models.PointsEntry], error) {
	return list[models.PointsEntry](ctx, s, models.EntityTypePointsEntry)
}

// Balance sums the ledger of one member, pending entries included
func (s *service) Balance(ctx context.Context, member string) (int, error) {
	entries, err := s.ListPoints(ctx)
	if err != nil {
		return 0, err
	}
	total := 0
	for _, e := range entries {
		if e.Value.Member == member {
			total += e.Value.Amount
		}
	}
	return total, nil
}

// GrantBadge queues a badge for a member
func (s *service) GrantBadge(ctx context.Context, badge *models.Badge) (string, error) {
	if badge.Member == "" || badge.Name == "" {
		return "", fmt.Errorf("member and badge name are required")
	}
	return s.create(ctx, models.EntityTypeBadge, badge)
}

func (s *service) ListBadges(ctx context.Context) ([]*Item[models.Badge], error) {
	return list[models.Badge](ctx, s, models.EntityTypeBadge)
}
