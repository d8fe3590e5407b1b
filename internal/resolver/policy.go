package resolver

import (
	"encoding/json"
	"slices"

	"github.com/iudanet/famsync/internal/models"
)

// StatusRule describes a completion-state field whose terminal values
// beat non-terminal ones regardless of timestamps.
type StatusRule struct {
	Field    string   // имя поля статуса
	Terminal []string // значения, которые нельзя откатить устаревшей правкой
}

// isTerminal reports whether the raw JSON value is one of the terminal statuses.
func (r *StatusRule) isTerminal(raw json.RawMessage) bool {
	if len(raw) == 0 {
		return false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return false
	}
	return slices.Contains(r.Terminal, s)
}

// Policy is the per-entity-type resolution configuration.
type Policy struct {
	Status *StatusRule
}

// DefaultPolicies returns the rules for the family organizer types.
// Only tasks carry a completion state.
func DefaultPolicies() map[models.EntityType]Policy {
	return map[models.EntityType]Policy{
		models.EntityTypeTask: {
			Status: &StatusRule{
				Field:    "status",
				Terminal: []string{string(models.TaskStatusDone)},
			},
		},
		models.EntityTypeEvent:       {},
		models.EntityTypePointsEntry: {},
		models.EntityTypeBadge:       {},
	}
}
