package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/iudanet/famsync/internal/applier"
	"github.com/iudanet/famsync/internal/metrics"
	"github.com/iudanet/famsync/internal/models"
	"github.com/iudanet/famsync/internal/server/storage"
	"github.com/iudanet/famsync/internal/wire"
	"github.com/iudanet/famsync/pkg/api"
)

// maxSyncBodyBytes ограничивает размер тела запроса синхронизации
const maxSyncBodyBytes = 4 << 20

// maxChangesPerResponse ограничивает число изменений в одном ответе
const maxChangesPerResponse = 500

// contextKey тип для ключей контекста
type contextKey string

// ClaimsKey ключ для хранения claims устройства в контексте
const ClaimsKey contextKey = "claims"

// WithClaims кладет claims устройства в контекст
func WithClaims(ctx context.Context, claims *api.Claims) context.Context {
	return context.WithValue(ctx, ClaimsKey, claims)
}

// GetClaims извлекает claims устройства из контекста запроса
func GetClaims(ctx context.Context) (*api.Claims, bool) {
	claims, ok := ctx.Value(ClaimsKey).(*api.Claims)
	return claims, ok && claims != nil
}

// NudgePublisher сообщает остальным устройствам семьи о новых изменениях
type NudgePublisher interface {
	Publish(ctx context.Context, nudge api.Nudge) error
}

// SyncHandler handles synchronization requests
type SyncHandler struct {
	logger       *slog.Logger
	storage      storage.SyncStorage
	applier      *applier.Applier
	publisher    NudgePublisher
	changesLimit int
}

// NewSyncHandler creates a new sync handler. publisher may be nil.
func NewSyncHandler(logger *slog.Logger, store storage.SyncStorage, a *applier.Applier, publisher NudgePublisher) *SyncHandler {
	return &SyncHandler{
		logger:       logger,
		storage:      store,
		applier:      a,
		publisher:    publisher,
		changesLimit: maxChangesPerResponse,
	}
}

// HandleSync обрабатывает POST /api/v1/sync
// Применяет батч мутаций одной транзакцией и возвращает изменения после курсора устройства
func (h *SyncHandler) HandleSync(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	status := h.handleSync(w, r)
	metrics.ObserveBatch(status, time.Since(start))
}

func (h *SyncHandler) handleSync(w http.ResponseWriter, r *http.Request) int {
	ctx := r.Context()

	if r.Method != http.MethodPost {
		return h.sendError(w, "only POST is supported", http.StatusMethodNotAllowed)
	}

	// Claims кладет AuthMiddleware
	claims, ok := GetClaims(ctx)
	if !ok {
		h.logger.Error("Claims not found in context")
		return h.sendError(w, "missing device identity", http.StatusUnauthorized)
	}

	var req api.SyncRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxSyncBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return h.sendError(w, "request body too large", http.StatusRequestEntityTooLarge)
		}
		h.logger.Warn("Failed to decode sync request", "error", err)
		return h.sendError(w, "invalid request body", http.StatusBadRequest)
	}

	if req.DeviceID != claims.DeviceID {
		h.logger.Warn("Device id mismatch",
			"token_device_id", claims.DeviceID,
			"request_device_id", req.DeviceID)
		return h.sendError(w, "device_id does not match token", http.StatusForbidden)
	}

	if len(req.Mutations) > api.MaxBatchSize {
		return h.sendError(w, "too many mutations in one batch", http.StatusRequestEntityTooLarge)
	}

	batch := applier.Batch{
		FamilyID:  claims.FamilyID,
		DeviceID:  claims.DeviceID,
		Mutations: make([]models.MutationRecord, 0, len(req.Mutations)),
	}
	for _, m := range req.Mutations {
		batch.Mutations = append(batch.Mutations, wire.FromMutation(m, claims.DeviceID))
	}

	h.logger.Info("Sync request",
		"family_id", claims.FamilyID,
		"device_id", claims.DeviceID,
		"mutations", len(batch.Mutations),
		"last_synced_at", req.LastSyncedAt)

	var (
		result     *applier.BatchResult
		changes    []*models.Entity
		hasMore    bool
		serverTime time.Time
	)

	err := h.storage.WithSyncTx(ctx, func(tx storage.SyncTx) error {
		serverTime = tx.ServerTime()
		batch.ServerTime = serverTime

		var err error
		result, err = h.applier.ApplyBatch(ctx, tx, batch)
		if err != nil {
			return err
		}

		changes, hasMore, err = tx.ChangesSince(ctx, claims.FamilyID, req.LastSyncedAt, h.changesLimit)
		if err != nil {
			return err
		}

		if err := tx.TouchDevice(ctx, claims.DeviceID); err != nil {
			if !errors.Is(err, storage.ErrDeviceNotFound) {
				return err
			}
			h.logger.Warn("Device is not registered", "device_id", claims.DeviceID)
		}
		return nil
	})
	if err != nil {
		// Батч откатан целиком, клиент повторит его без изменений
		h.logger.Error("Sync transaction failed",
			"error", err,
			"family_id", claims.FamilyID,
			"device_id", claims.DeviceID)
		return h.sendError(w, "storage error, retry the batch", http.StatusInternalServerError)
	}

	resp := api.SyncResponse{
		ServerTime: serverTime,
		Results:    make([]api.MutationResult, 0, len(result.Results)),
		Changes:    make([]api.Entity, 0, len(changes)),
		HasMore:    hasMore,
	}
	for i := range result.Results {
		res := &result.Results[i]
		resp.Results = append(resp.Results, wire.ToResult(res))
		observeResult(res, batch.Mutations[i].EntityType)
	}
	for _, e := range changes {
		resp.Changes = append(resp.Changes, *wire.ToEntity(e))
	}
	metrics.ObservePulled(len(resp.Changes))

	status := http.StatusOK
	if result.HasFailures() {
		status = http.StatusMultiStatus
	}
	h.sendJSON(w, resp, status)

	h.logger.Info("Sync completed",
		"device_id", claims.DeviceID,
		"applied", result.Applied,
		"conflicts", result.Conflicts,
		"failed", result.Failed,
		"changes", len(resp.Changes),
		"has_more", hasMore)

	if wroteAny(result) {
		h.nudge(ctx, api.Nudge{
			FamilyID:   claims.FamilyID,
			DeviceID:   claims.DeviceID,
			ServerTime: serverTime,
		})
	}

	return status
}

// nudge сообщает остальным устройствам семьи, что пора синхронизироваться
func (h *SyncHandler) nudge(ctx context.Context, n api.Nudge) {
	if h.publisher == nil {
		return
	}
	if err := h.publisher.Publish(context.WithoutCancel(ctx), n); err != nil {
		h.logger.Warn("Failed to publish nudge", "error", err, "family_id", n.FamilyID)
	}
}

// wroteAny reports whether the batch changed at least one entity.
func wroteAny(result *applier.BatchResult) bool {
	for _, r := range result.Results {
		switch r.Outcome {
		case applier.OutcomeApplied:
			if r.Strategy != models.StrategyNoOp {
				return true
			}
		case applier.OutcomeConflict:
			if r.Decision != nil && r.Decision.Changed {
				return true
			}
		}
	}
	return false
}

func observeResult(r *applier.Result, entityType models.EntityType) {
	metrics.ObserveMutation(string(entityType), string(r.Outcome))
	if r.Outcome == applier.OutcomeConflict {
		metrics.ObserveConflict(string(r.Strategy))
	}
}

// sendJSON отправляет JSON ответ
func (h *SyncHandler) sendJSON(w http.ResponseWriter, data any, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode JSON response", slog.Any("error", err))
	}
}

// sendError отправляет JSON ответ с ошибкой и возвращает статус
func (h *SyncHandler) sendError(w http.ResponseWriter, message string, statusCode int) int {
	resp := api.ErrorResponse{
		Error:   http.StatusText(statusCode),
		Message: message,
	}
	h.sendJSON(w, resp, statusCode)
	return statusCode
}
