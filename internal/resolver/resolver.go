// Package resolver decides which of two conflicting versions of an entity wins.
//
// Resolve is pure: it reads a local mutation and the current remote state and
// returns a decision. Applying that decision is the caller's job.
//
// Rules, in order:
//  1. Deletion precedence: a delete on either side wins.
//  2. Identical content is a false conflict (retried batch) and resolves as a no-op.
//  3. Field-level merge: for task-like types a terminal status ("done") beats a
//     non-terminal one; every other differing field is settled by last-writer-wins
//     on the per-field stamp (client timestamp, then device id).
package resolver

import (
	"github.com/iudanet/famsync/internal/models"
)

// Resolver resolves conflicts using per-type policies.
type Resolver struct {
	policies map[models.EntityType]Policy
}

// New creates a resolver with DefaultPolicies.
func New() *Resolver {
	return NewWithPolicies(DefaultPolicies())
}

// NewWithPolicies creates a resolver with custom per-type policies.
func NewWithPolicies(policies map[models.EntityType]Policy) *Resolver {
	return &Resolver{policies: policies}
}

// Resolve settles local against remote. remote may be nil when the entity
// does not exist yet, in which case the local state wins outright.
func (r *Resolver) Resolve(local *models.MutationRecord, remote *models.Entity) models.ConflictDecision {
	if remote == nil {
		return models.ConflictDecision{
			Strategy:       models.StrategyNone,
			WinningPayload: local.Payload.Clone(),
			Accepted:       local.Payload.Clone(),
			Deleted:        local.Operation == models.OperationDelete,
			Changed:        local.Operation != models.OperationDelete,
		}
	}

	// 1. Удаление всегда побеждает
	if decision, ok := r.resolveDeletion(local, remote); ok {
		return decision
	}

	// 2. Ложный конфликт: содержимое совпадает, несмотря на разные версии
	if sameContent(local.Payload, remote.Fields) {
		return models.ConflictDecision{
			Strategy:       models.StrategyNoOp,
			WinningPayload: remote.Fields.Clone(),
		}
	}

	// 3. Слияние по полям
	return r.mergeFields(local, remote)
}

func (r *Resolver) resolveDeletion(local *models.MutationRecord, remote *models.Entity) (models.ConflictDecision, bool) {
	localDelete := local.Operation == models.OperationDelete

	switch {
	case localDelete && remote.Deleted:
		// Оба удалили - идемпотентно
		return models.ConflictDecision{
			Strategy:       models.StrategyNoOp,
			WinningPayload: remote.Fields.Clone(),
			Deleted:        true,
		}, true

	case localDelete:
		return models.ConflictDecision{
			Strategy:       models.StrategyDeletionPrecedence,
			WinningPayload: remote.Fields.Clone(),
			Deleted:        true,
			Changed:        true,
		}, true

	case remote.Deleted:
		// Правка над удаленной записью теряется, но не молча
		return models.ConflictDecision{
			Strategy:       models.StrategyDeletionPrecedence,
			WinningPayload: remote.Fields.Clone(),
			Discarded:      local.Payload.Clone(),
			Deleted:        true,
			LocalDiscarded: len(local.Payload) > 0,
		}, true
	}

	return models.ConflictDecision{}, false
}

func (r *Resolver) mergeFields(local *models.MutationRecord, remote *models.Entity) models.ConflictDecision {
	var rule *StatusRule
	if policy, ok := r.policies[remote.Type]; ok {
		rule = policy.Status
	}

	winning := remote.Fields.Clone()
	if winning == nil {
		winning = make(models.Fields)
	}
	accepted := make(models.Fields)
	discarded := make(models.Fields)
	strategies := make(map[string]models.Strategy)
	usedStatus := false
	localStamp := local.Stamp()

	for field, value := range local.Payload {
		if remote.Fields.Equal(field, local.Payload) {
			continue
		}

		if rule != nil && field == rule.Field {
			localTerminal := rule.isTerminal(value)
			remoteTerminal := rule.isTerminal(remote.Fields[field])
			if localTerminal != remoteTerminal {
				usedStatus = true
				strategies[field] = models.StrategyStatusPrecedence
				if localTerminal {
					accepted[field] = value
				} else {
					discarded[field] = value
				}
				continue
			}
		}

		strategies[field] = models.StrategyLastWriterWins
		if localStamp.IsNewerThan(remote.Stamps[field]) {
			accepted[field] = value
		} else {
			discarded[field] = value
		}
	}

	for field, value := range accepted {
		winning[field] = value
	}

	strategy := models.StrategyLastWriterWins
	if usedStatus {
		strategy = models.StrategyStatusPrecedence
	}

	decision := models.ConflictDecision{
		Strategy:        strategy,
		WinningPayload:  winning.Clone(),
		FieldStrategies: strategies,
		Changed:         len(accepted) > 0,
		LocalDiscarded:  len(discarded) > 0,
	}
	if len(accepted) > 0 {
		decision.Accepted = accepted.Clone()
	}
	if len(discarded) > 0 {
		decision.Discarded = discarded.Clone()
	}
	return decision
}

// sameContent reports whether every local field already holds the same value remotely.
func sameContent(local, remote models.Fields) bool {
	for field := range local {
		if !remote.Equal(field, local) {
			return false
		}
	}
	return true
}
