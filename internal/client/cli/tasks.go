package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/iudanet/famsync/internal/models"
)

// TaskInput holds task flags. Empty fields are left unchanged on edit.
type TaskInput struct {
	Title       string
	Description string
	Assignee    string
	Status      string
	Due         string
	Points      int
}

func (in TaskInput) task() (*models.Task, error) {
	t := &models.Task{
		Title:       in.Title,
		Description: in.Description,
		Assignee:    in.Assignee,
		Status:      models.TaskStatus(in.Status),
		Points:      in.Points,
	}
	if in.Due != "" {
		due, err := parseTime(in.Due)
		if err != nil {
			return nil, fmt.Errorf("invalid due date: %w", err)
		}
		t.Due = &due
	}
	return t, nil
}

func (c *Cli) TaskAdd(ctx context.Context, in TaskInput) error {
	task, err := in.task()
	if err != nil {
		return err
	}
	id, err := c.data.AddTask(ctx, task)
	if err != nil {
		return fmt.Errorf("failed to add task: %w", err)
	}
	c.io.Printf("✓ Task added: %s\n", id)
	return nil
}

func (c *Cli) TaskEdit(ctx context.Context, id string, in TaskInput) error {
	patch, err := in.task()
	if err != nil {
		return err
	}
	if *patch == (models.Task{}) {
		return fmt.Errorf("nothing to change, pass at least one field")
	}
	if err := c.data.UpdateTask(ctx, id, patch); err != nil {
		return fmt.Errorf("failed to edit task: %w", err)
	}
	c.io.Println("✓ Task updated")
	return nil
}

func (c *Cli) TaskDone(ctx context.Context, id string) error {
	if err := c.data.CompleteTask(ctx, id); err != nil {
		return fmt.Errorf("failed to complete task: %w", err)
	}
	c.io.Println("✓ Task done")
	return nil
}

func (c *Cli) TaskRemove(ctx context.Context, id string) error {
	if err := c.data.Delete(ctx, models.EntityTypeTask, id); err != nil {
		return fmt.Errorf("failed to delete task: %w", err)
	}
	c.io.Println("✓ Task deleted")
	return nil
}

func (c *Cli) TaskList(ctx context.Context) error {
	tasks, err := c.data.ListTasks(ctx)
	if err != nil {
		return fmt.Errorf("failed to list tasks: %w", err)
	}
	return c.render(taskListTemplate, tasks)
}

var timeLayouts = []string{time.RFC3339, "2006-01-02 15:04", "2006-01-02"}

// parseTime accepts RFC 3339 or a local date with optional time
func parseTime(s string) (time.Time, error) {
	for _, layout := range timeLayouts {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%q is not YYYY-MM-DD, YYYY-MM-DD HH:MM or RFC 3339", s)
}
