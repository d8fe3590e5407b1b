// Package applier applies batches of mutations to an authoritative entity store.
//
// On the server every batch runs inside one transaction: either the whole batch
// commits or none of it does. Mutations that fail validation, belong to another
// family or target a missing entity are reported as per-mutation failures and
// perform no write. Any storage error aborts the batch and the caller rolls back.
package applier

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/iudanet/famsync/internal/models"
	"github.com/iudanet/famsync/internal/resolver"
	"github.com/iudanet/famsync/internal/validation"
	"github.com/iudanet/famsync/internal/version"
)

var tracer = otel.Tracer("github.com/iudanet/famsync/internal/applier")

// Outcome is the per-mutation result of a batch.
type Outcome string

const (
	OutcomeApplied  Outcome = "applied"
	OutcomeConflict Outcome = "conflict"
	OutcomeFailed   Outcome = "failed"
)

// Result describes what happened to one mutation.
type Result struct {
	Entity   *models.Entity           // Entity авторитетное состояние после применения
	Decision *models.ConflictDecision // Decision решение резолвера для OutcomeConflict
	EntityID string
	Outcome  Outcome
	Strategy models.Strategy // Strategy no_op для ложного конфликта, none для прямой записи
	Reason   string
	Code     string
	Seq      uint64
}

// BatchResult collects per-mutation outcomes in input order.
type BatchResult struct {
	Results   []Result
	Applied   int
	Conflicts int
	Failed    int
}

// HasFailures reports whether at least one mutation failed.
func (b *BatchResult) HasFailures() bool {
	return b.Failed > 0
}

func (b *BatchResult) add(r Result) {
	b.Results = append(b.Results, r)
	switch r.Outcome {
	case OutcomeApplied:
		b.Applied++
	case OutcomeConflict:
		b.Conflicts++
	case OutcomeFailed:
		b.Failed++
	}
}

// Batch is one device's batch of mutations.
type Batch struct {
	ServerTime time.Time // ServerTime время коммита, становится UpdatedAt
	FamilyID   string
	DeviceID   string
	Mutations  []models.MutationRecord
}

// Applier applies mutation batches using a conflict resolver.
type Applier struct {
	resolver *resolver.Resolver
	logger   *slog.Logger
}

// New creates an applier.
func New(res *resolver.Resolver, logger *slog.Logger) *Applier {
	return &Applier{
		resolver: res,
		logger:   logger,
	}
}

// rebase remembers how a directly applied mutation moved an entity inside a
// batch, so that later mutations of the same chain are not treated as stale.
type rebase struct {
	from int64
	to   int64
}

// ApplyBatch applies mutations in order inside tx.
// A returned error means tx must be rolled back; nothing of the batch may commit.
func (a *Applier) ApplyBatch(ctx context.Context, tx EntityTx, batch Batch) (*BatchResult, error) {
	ctx, span := tracer.Start(ctx, "applier.ApplyBatch", trace.WithAttributes(
		attribute.String("family_id", batch.FamilyID),
		attribute.String("device_id", batch.DeviceID),
		attribute.Int("mutations", len(batch.Mutations)),
	))
	defer span.End()

	tracker := version.NewTracker(tx)
	rebased := make(map[string]rebase)
	result := &BatchResult{Results: make([]Result, 0, len(batch.Mutations))}

	for i := range batch.Mutations {
		m := batch.Mutations[i].Clone()
		m.DeviceID = batch.DeviceID

		res, err := a.applyOne(ctx, tx, tracker, &batch, m, rebased)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "batch aborted")
			return nil, fmt.Errorf("mutation %d (%s %s): %w", m.Seq, m.Operation, m.EntityID, err)
		}
		result.add(res)
	}

	span.SetAttributes(
		attribute.Int("applied", result.Applied),
		attribute.Int("conflicts", result.Conflicts),
		attribute.Int("failed", result.Failed),
	)
	return result, nil
}

func (a *Applier) applyOne(
	ctx context.Context,
	tx EntityTx,
	tracker *version.Tracker,
	batch *Batch,
	m *models.MutationRecord,
	rebased map[string]rebase,
) (Result, error) {
	if err := validation.ValidateMutation(m); err != nil {
		return failed(m, models.CodeRejected, err.Error()), nil
	}
	payload, err := m.Payload.Normalize()
	if err != nil {
		return failed(m, models.CodeRejected, err.Error()), nil
	}
	m.Payload = payload

	current, err := tx.GetEntity(ctx, m.EntityID)
	switch {
	case errors.Is(err, models.ErrEntityNotFound):
		current = nil
	case err != nil:
		return Result{}, fmt.Errorf("failed to load entity: %w", err)
	}

	if current != nil {
		if current.FamilyID != batch.FamilyID {
			return failed(m, models.CodePermissionDenied, "entity belongs to another family"), nil
		}
		if current.Type != m.EntityType {
			return failed(m, models.CodeRejected,
				fmt.Sprintf("entity is a %s, not a %s", current.Type, m.EntityType)), nil
		}
	}

	sentBase := m.BaseVersion
	if r, ok := rebased[m.EntityID]; ok && m.BaseVersion == r.from {
		m.BaseVersion = r.to
	}

	if current == nil {
		known, err := tracker.CurrentVersion(ctx, m.EntityID)
		if err != nil {
			return Result{}, fmt.Errorf("failed to read version: %w", err)
		}
		if known == 0 {
			return a.applyMissing(ctx, tx, tracker, batch, m, sentBase, rebased)
		}
		// Снимок удален очисткой tombstone, версия осталась: объект был удален
		current = &models.Entity{
			ID:       m.EntityID,
			FamilyID: batch.FamilyID,
			Type:     m.EntityType,
			Version:  known,
			Deleted:  true,
		}
	}

	if !current.Deleted && current.Version == m.BaseVersion {
		entity, err := a.applyDirect(ctx, tx, tracker, batch, m, current)
		if err != nil {
			return Result{}, err
		}
		rebased[m.EntityID] = rebase{from: sentBase, to: entity.Version}
		return applied(m, entity), nil
	}

	return a.applyResolved(ctx, tx, tracker, batch, m, current)
}

// applyMissing handles mutations for entities the store has never seen.
func (a *Applier) applyMissing(
	ctx context.Context,
	tx EntityTx,
	tracker *version.Tracker,
	batch *Batch,
	m *models.MutationRecord,
	sentBase int64,
	rebased map[string]rebase,
) (Result, error) {
	switch m.Operation {
	case models.OperationCreate:
		entity := &models.Entity{
			ID:       m.EntityID,
			FamilyID: batch.FamilyID,
			Type:     m.EntityType,
			Fields:   make(models.Fields, len(m.Payload)),
			Stamps:   make(map[string]models.FieldStamp, len(m.Payload)),
		}
		setFields(entity, m.Payload, m.Stamp())
		if err := a.write(ctx, tx, tracker, batch.ServerTime, entity); err != nil {
			return Result{}, err
		}
		rebased[m.EntityID] = rebase{from: sentBase, to: entity.Version}
		return applied(m, entity), nil

	case models.OperationDelete:
		// Удаление того, чего нет: идемпотентно, без записи
		return applied(m, &models.Entity{
			ID:       m.EntityID,
			FamilyID: batch.FamilyID,
			Type:     m.EntityType,
			Deleted:  true,
		}), nil
	}

	return failed(m, models.CodeNotFound, "entity does not exist"), nil
}

// applyDirect writes a mutation whose base version matches the current one.
func (a *Applier) applyDirect(
	ctx context.Context,
	tx EntityTx,
	tracker *version.Tracker,
	batch *Batch,
	m *models.MutationRecord,
	current *models.Entity,
) (*models.Entity, error) {
	entity := current.Clone()
	if entity.Fields == nil {
		entity.Fields = make(models.Fields)
	}
	if entity.Stamps == nil {
		entity.Stamps = make(map[string]models.FieldStamp)
	}

	if m.Operation == models.OperationDelete {
		entity.Deleted = true
	} else {
		setFields(entity, m.Payload, m.Stamp())
	}

	if err := a.write(ctx, tx, tracker, batch.ServerTime, entity); err != nil {
		return nil, err
	}
	return entity, nil
}

// applyResolved runs the resolver for a stale mutation and writes its decision.
func (a *Applier) applyResolved(
	ctx context.Context,
	tx EntityTx,
	tracker *version.Tracker,
	batch *Batch,
	m *models.MutationRecord,
	current *models.Entity,
) (Result, error) {
	decision := a.resolver.Resolve(m, current)

	if decision.IsNoOp() {
		// Ложный конфликт или повторное удаление: версия не растет
		res := applied(m, current)
		res.Strategy = models.StrategyNoOp
		return res, nil
	}

	entity := current
	if decision.Changed {
		entity = current.Clone()
		entity.Fields = decision.WinningPayload
		entity.Deleted = decision.Deleted
		if entity.Stamps == nil {
			entity.Stamps = make(map[string]models.FieldStamp)
		}
		stamp := m.Stamp()
		for field := range decision.Accepted {
			entity.Stamps[field] = stamp
		}
		if err := a.write(ctx, tx, tracker, batch.ServerTime, entity); err != nil {
			return Result{}, err
		}
	}

	if audit, ok := tx.(AuditTx); ok {
		record := ConflictRecord{
			ResolvedAt:  batch.ServerTime,
			Decision:    decision,
			FamilyID:    batch.FamilyID,
			DeviceID:    batch.DeviceID,
			EntityID:    m.EntityID,
			EntityType:  m.EntityType,
			BaseVersion: m.BaseVersion,
			Version:     entity.Version,
		}
		if err := audit.RecordConflict(ctx, record); err != nil {
			return Result{}, fmt.Errorf("failed to record conflict: %w", err)
		}
	}

	a.logger.Debug("Conflict resolved",
		"entity_id", m.EntityID,
		"entity_type", m.EntityType,
		"base_version", m.BaseVersion,
		"remote_version", current.Version,
		"strategy", decision.Strategy,
		"local_discarded", decision.LocalDiscarded)

	return Result{
		Seq:      m.Seq,
		EntityID: m.EntityID,
		Outcome:  OutcomeConflict,
		Strategy: decision.Strategy,
		Entity:   entity,
		Decision: &decision,
	}, nil
}

// write bumps the version and persists the snapshot.
func (a *Applier) write(ctx context.Context, tx EntityTx, tracker *version.Tracker, at time.Time, entity *models.Entity) error {
	next, err := tracker.Next(ctx, entity.ID)
	if err != nil {
		return err
	}
	entity.Version = next
	entity.UpdatedAt = at

	if err := tx.PutEntity(ctx, entity); err != nil {
		return fmt.Errorf("failed to store entity: %w", err)
	}
	return nil
}

func setFields(entity *models.Entity, payload models.Fields, stamp models.FieldStamp) {
	maps.Copy(entity.Fields, payload.Clone())
	for field := range payload {
		entity.Stamps[field] = stamp
	}
}

func applied(m *models.MutationRecord, entity *models.Entity) Result {
	return Result{
		Seq:      m.Seq,
		EntityID: m.EntityID,
		Outcome:  OutcomeApplied,
		Strategy: models.StrategyNone,
		Entity:   entity,
	}
}

func failed(m *models.MutationRecord, code, reason string) Result {
	return Result{
		Seq:      m.Seq,
		EntityID: m.EntityID,
		Outcome:  OutcomeFailed,
		Code:     code,
		Reason:   reason,
	}
}
