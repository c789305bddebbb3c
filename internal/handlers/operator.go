package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prudhvinik1/ledgersync/internal/models"
	"github.com/prudhvinik1/ledgersync/internal/queue"
	"github.com/prudhvinik1/ledgersync/internal/services"
	"go.uber.org/zap"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 500
	deadJobsShown       = 20
)

type HistoryLister interface {
	List(ctx context.Context, filter models.HistoryFilter) ([]*models.SyncHistoryRecord, error)
}

type Replayer interface {
	Replay(ctx context.Context, tenantID uuid.UUID, eventID string) (*models.SyncHistoryRecord, error)
}

type Maintainer interface {
	RefreshTaxRates(ctx context.Context, tenantID uuid.UUID) (int, error)
	RefreshDepositAccounts(ctx context.Context, tenantID uuid.UUID) (int, error)
	SweepTokens(ctx context.Context) (services.SweepResult, error)
}

type QueueInspector interface {
	Stats(ctx context.Context) (*queue.Stats, error)
	DeadJobs(ctx context.Context, limit int64) ([]*queue.Job, error)
	RequeueDead(ctx context.Context) (int, error)
}

// OperatorHandler serves the authenticated /api/sync routes. queue is nil
// when events are dispatched inline.
type OperatorHandler struct {
	accounts AccountSource
	history  HistoryLister
	replayer Replayer
	maint    Maintainer
	queue    QueueInspector
	log      *zap.Logger
}

func NewOperatorHandler(accounts AccountSource, history HistoryLister, replayer Replayer, maint Maintainer, q QueueInspector, log *zap.Logger) *OperatorHandler {
	return &OperatorHandler{
		accounts: accounts,
		history:  history,
		replayer: replayer,
		maint:    maint,
		queue:    q,
		log:      log.Named("operator"),
	}
}

func (h *OperatorHandler) tenant(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	account, err := h.accounts.ProviderAccount(r.Context())
	if err != nil {
		writeSyncError(w, r, err)
		return uuid.Nil, false
	}
	return account.TenantID, true
}

func (h *OperatorHandler) ListHistory(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := h.tenant(w, r)
	if !ok {
		return
	}

	query := r.URL.Query()
	filter := models.HistoryFilter{TenantID: tenantID, Limit: defaultHistoryLimit}
	if status := query.Get("status"); status != "" {
		filter.Status = models.SyncStatus(status)
		if !filter.Status.Terminal() && filter.Status != models.StatusPending {
			writeError(w, r, http.StatusBadRequest, "bad_request", "unknown status "+status)
			return
		}
	}
	if eventType := query.Get("event_type"); eventType != "" {
		filter.EventType = models.EventType(eventType)
		if !filter.EventType.Supported() {
			writeError(w, r, http.StatusBadRequest, "bad_request", "unsupported event_type "+eventType)
			return
		}
	}
	if raw := query.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 1 || limit > maxHistoryLimit {
			writeError(w, r, http.StatusBadRequest, "bad_request", "limit must be between 1 and 500")
			return
		}
		filter.Limit = limit
	}

	records, err := h.history.List(r.Context(), filter)
	if err != nil {
		h.log.Error("failed to list sync history", zap.Error(err))
		writeError(w, r, http.StatusInternalServerError, "internal", "failed to list sync history")
		return
	}
	if records == nil {
		records = []*models.SyncHistoryRecord{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"records": records})
}

func (h *OperatorHandler) ReplayEvent(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := h.tenant(w, r)
	if !ok {
		return
	}
	eventID := chi.URLParam(r, "eventID")

	record, err := h.replayer.Replay(r.Context(), tenantID, eventID)
	if record == nil {
		if err == nil {
			// Disabled or unhandled event type.
			writeJSON(w, http.StatusOK, map[string]any{"status": "ignored", "event_id": eventID})
			return
		}
		writeSyncError(w, r, err)
		return
	}

	resp := map[string]any{"record": record}
	if err != nil {
		resp["error"] = err.Error()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *OperatorHandler) RefreshTaxRates(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := h.tenant(w, r)
	if !ok {
		return
	}
	n, err := h.maint.RefreshTaxRates(r.Context(), tenantID)
	if err != nil {
		writeSyncError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"tax_rates": n})
}

func (h *OperatorHandler) RefreshDepositAccounts(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := h.tenant(w, r)
	if !ok {
		return
	}
	n, err := h.maint.RefreshDepositAccounts(r.Context(), tenantID)
	if err != nil {
		writeSyncError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"deposit_accounts": n})
}

func (h *OperatorHandler) SweepTokens(w http.ResponseWriter, r *http.Request) {
	result, err := h.maint.SweepTokens(r.Context())
	if err != nil {
		h.log.Error("token sweep failed", zap.Error(err))
		writeError(w, r, http.StatusInternalServerError, "internal", "token sweep failed")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *OperatorHandler) QueueStatus(w http.ResponseWriter, r *http.Request) {
	if h.queue == nil {
		writeError(w, r, http.StatusNotFound, "not_found", "queue disabled in inline mode")
		return
	}
	stats, err := h.queue.Stats(r.Context())
	if err != nil {
		writeError(w, r, http.StatusServiceUnavailable, "unavailable", "failed to read queue")
		return
	}
	dead, err := h.queue.DeadJobs(r.Context(), deadJobsShown)
	if err != nil {
		writeError(w, r, http.StatusServiceUnavailable, "unavailable", "failed to read dead jobs")
		return
	}
	if dead == nil {
		dead = []*queue.Job{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"stats": stats, "dead": dead})
}

func (h *OperatorHandler) RequeueDead(w http.ResponseWriter, r *http.Request) {
	if h.queue == nil {
		writeError(w, r, http.StatusNotFound, "not_found", "queue disabled in inline mode")
		return
	}
	n, err := h.queue.RequeueDead(r.Context())
	if err != nil {
		writeError(w, r, http.StatusServiceUnavailable, "unavailable", "failed to requeue dead jobs")
		return
	}
	h.log.Info("requeued dead jobs", zap.Int("count", n))
	writeJSON(w, http.StatusOK, map[string]int{"requeued": n})
}
