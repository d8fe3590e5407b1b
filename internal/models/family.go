package models

import "time"

// TaskStatus is the completion state of a task.
type TaskStatus string

const (
	TaskStatusOpen       TaskStatus = "open"
	TaskStatusInProgress TaskStatus = "in_progress"
	TaskStatusDone       TaskStatus = "done"
)

// Task представляет задачу или домашнее поручение.
// Все поля omitempty, чтобы частичные правки оставались частичными.
type Task struct {
	Due         *time.Time `json:"due,omitempty"`         // Due срок выполнения
	Title       string     `json:"title,omitempty"`       // Title название задачи
	Description string     `json:"description,omitempty"` // Description подробности
	Assignee    string     `json:"assignee,omitempty"`    // Assignee член семьи
	Status      TaskStatus `json:"status,omitempty"`      // Status open | in_progress | done
	Points      int        `json:"points,omitempty"`      // Points награда за выполнение
}

// Event представляет событие семейного календаря.
type Event struct {
	Start    *time.Time `json:"start,omitempty"`
	End      *time.Time `json:"end,omitempty"`
	Title    string     `json:"title,omitempty"`
	Location string     `json:"location,omitempty"`
	Notes    string     `json:"notes,omitempty"`
	Members  []string   `json:"members,omitempty"`
}

// PointsEntry is one line of the gamification ledger. Entries are append-only.
type PointsEntry struct {
	Member string `json:"member,omitempty"`
	Reason string `json:"reason,omitempty"`
	TaskID string `json:"task_id,omitempty"`
	Amount int    `json:"amount,omitempty"`
}

// Badge is an achievement granted to a family member.
type Badge struct {
	Member string `json:"member,omitempty"`
	Name   string `json:"name,omitempty"`
	Icon   string `json:"icon,omitempty"`
}
