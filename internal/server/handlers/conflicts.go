package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/iudanet/famsync/internal/server/storage"
	"github.com/iudanet/famsync/pkg/api"
)

const maxConflictsLimit = 500

// ConflictsHandler отдает журнал разрешенных конфликтов семьи
type ConflictsHandler struct {
	logger  *slog.Logger
	storage storage.AuditStorage
}

// NewConflictsHandler создает handler журнала конфликтов
func NewConflictsHandler(logger *slog.Logger, store storage.AuditStorage) *ConflictsHandler {
	return &ConflictsHandler{
		logger:  logger,
		storage: store,
	}
}

// List обрабатывает GET /api/v1/conflicts?limit=N
func (h *ConflictsHandler) List(w http.ResponseWriter, r *http.Request) {
	claims, ok := GetClaims(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	limit := 0
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			http.Error(w, "Invalid limit parameter", http.StatusBadRequest)
			return
		}
		limit = min(n, maxConflictsLimit)
	}

	records, err := h.storage.ListConflicts(r.Context(), claims.FamilyID, limit)
	if err != nil {
		h.logger.Error("Failed to list conflicts", "error", err, "family_id", claims.FamilyID)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	resp := api.ConflictsResponse{Conflicts: make([]api.ConflictRecord, 0, len(records))}
	for _, rec := range records {
		resp.Conflicts = append(resp.Conflicts, api.ConflictRecord{
			ResolvedAt:     rec.ResolvedAt,
			Accepted:       rec.Decision.Accepted,
			Discarded:      rec.Decision.Discarded,
			DeviceID:       rec.DeviceID,
			EntityID:       rec.EntityID,
			EntityType:     string(rec.EntityType),
			Strategy:       string(rec.Decision.Strategy),
			BaseVersion:    rec.BaseVersion,
			Version:        rec.Version,
			LocalDiscarded: rec.Decision.LocalDiscarded,
		})
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		h.logger.Error("failed to encode conflicts response", slog.Any("error", err))
	}
}
