package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/dvloznov/finance-sync/internal/api/middleware"
	"github.com/dvloznov/finance-sync/internal/app"
	"github.com/dvloznov/finance-sync/internal/domain"
	"github.com/dvloznov/finance-sync/internal/infra/sqlite"
	"github.com/dvloznov/finance-sync/internal/jobs"
	"github.com/rs/zerolog"
)

// ItemService is the part of app.Service the item endpoints use.
type ItemService interface {
	RegisterItem(ctx context.Context, cred domain.Credential) error
	ListItems(ctx context.Context) ([]*sqlite.Item, error)
	GetItem(ctx context.Context, itemID string) (*app.ItemStatus, error)
	ListRuns(ctx context.Context, itemID string, limit int) ([]*sqlite.RunRecord, error)
	ResetCursor(ctx context.Context, itemID string) error
}

// ItemsHandler handles item-related endpoints.
type ItemsHandler struct {
	svc       ItemService
	publisher jobs.Publisher
	log       zerolog.Logger
}

// NewItemsHandler creates a new items handler.
func NewItemsHandler(svc ItemService, publisher jobs.Publisher, log zerolog.Logger) *ItemsHandler {
	return &ItemsHandler{
		svc:       svc,
		publisher: publisher,
		log:       log,
	}
}

// RegisterItem handles POST /api/items
func (h *ItemsHandler) RegisterItem(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ItemID      string `json:"item_id"`
		AccessToken string `json:"access_token"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if req.ItemID == "" || req.AccessToken == "" {
		middleware.WriteError(w, http.StatusBadRequest, "item_id and access_token are required")
		return
	}

	cred := domain.Credential{ItemID: req.ItemID, AccessToken: req.AccessToken}
	if err := h.svc.RegisterItem(r.Context(), cred); err != nil {
		h.log.Error().Err(err).Str("item_id", req.ItemID).Msg("Failed to register item")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to register item")
		return
	}

	h.log.Info().Str("item_id", req.ItemID).Msg("Item registered")

	middleware.WriteJSON(w, http.StatusCreated, map[string]string{
		"item_id": req.ItemID,
		"status":  "registered",
	})
}

// ListItems handles GET /api/items
func (h *ItemsHandler) ListItems(w http.ResponseWriter, r *http.Request) {
	items, err := h.svc.ListItems(r.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list items")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to list items")
		return
	}

	if items == nil {
		items = []*sqlite.Item{}
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"items": items,
		"count": len(items),
	})
}

// GetItem handles GET /api/items/{id}
func (h *ItemsHandler) GetItem(w http.ResponseWriter, r *http.Request, itemID string) {
	item, err := h.svc.GetItem(r.Context(), itemID)
	if err != nil {
		h.writeItemError(w, err, itemID, "Failed to get item")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, item)
}

// EnqueueExport handles POST /api/items/{id}/export
func (h *ItemsHandler) EnqueueExport(w http.ResponseWriter, r *http.Request, itemID string) {
	var req struct {
		AccountIDs   []string `json:"account_ids"`
		LookbackDays int      `json:"lookback_days"`
	}

	// The body is optional.
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.LookbackDays < 0 {
		middleware.WriteError(w, http.StatusBadRequest, "lookback_days must not be negative")
		return
	}

	ctx := r.Context()

	if _, err := h.svc.GetItem(ctx, itemID); err != nil {
		h.writeItemError(w, err, itemID, "Failed to enqueue export")
		return
	}

	job := &jobs.ExportJob{
		ItemID:       itemID,
		AccountIDs:   req.AccountIDs,
		LookbackDays: req.LookbackDays,
	}

	// A worker owns the job once published; only its id is read afterwards.
	if err := h.publisher.PublishExport(ctx, job); err != nil {
		h.log.Error().Err(err).Str("item_id", itemID).Msg("Failed to enqueue export job")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to enqueue export job")
		return
	}

	h.log.Info().Str("job_id", job.JobID).Str("item_id", itemID).Msg("Export job enqueued")

	middleware.WriteJSON(w, http.StatusAccepted, map[string]string{
		"job_id":  job.JobID,
		"item_id": itemID,
		"status":  string(jobs.JobStatusPending),
	})
}

// ResetCursor handles DELETE /api/items/{id}/cursor
func (h *ItemsHandler) ResetCursor(w http.ResponseWriter, r *http.Request, itemID string) {
	ctx := r.Context()

	if _, err := h.svc.GetItem(ctx, itemID); err != nil {
		h.writeItemError(w, err, itemID, "Failed to reset cursor")
		return
	}

	if err := h.svc.ResetCursor(ctx, itemID); err != nil {
		h.log.Error().Err(err).Str("item_id", itemID).Msg("Failed to reset cursor")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to reset cursor")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]string{
		"item_id": itemID,
		"status":  "cursor_reset",
	})
}

// ListRuns handles GET /api/items/{id}/runs
func (h *ItemsHandler) ListRuns(w http.ResponseWriter, r *http.Request, itemID string) {
	limit := 20
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 {
			limit = l
		}
	}

	runs, err := h.svc.ListRuns(r.Context(), itemID, limit)
	if err != nil {
		h.log.Error().Err(err).Str("item_id", itemID).Msg("Failed to list runs")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to list runs")
		return
	}

	if runs == nil {
		runs = []*sqlite.RunRecord{}
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"runs":  runs,
		"count": len(runs),
	})
}

func (h *ItemsHandler) writeItemError(w http.ResponseWriter, err error, itemID, message string) {
	if errors.Is(err, sqlite.ErrItemNotFound) {
		middleware.WriteError(w, http.StatusNotFound, "Item not found")
		return
	}
	h.log.Error().Err(err).Str("item_id", itemID).Msg(message)
	middleware.WriteError(w, http.StatusInternalServerError, message)
}

// JobsHandler handles job-related endpoints.
type JobsHandler struct {
	store jobs.JobStore
	log   zerolog.Logger
}

// NewJobsHandler creates a new jobs handler.
func NewJobsHandler(store jobs.JobStore, log zerolog.Logger) *JobsHandler {
	return &JobsHandler{
		store: store,
		log:   log,
	}
}

// GetJob handles GET /api/jobs/{id}
func (h *JobsHandler) GetJob(w http.ResponseWriter, r *http.Request, jobID string) {
	job, err := h.store.GetJob(r.Context(), jobID)
	if errors.Is(err, jobs.ErrJobNotFound) {
		middleware.WriteError(w, http.StatusNotFound, "Job not found")
		return
	}
	if err != nil {
		h.log.Error().Err(err).Str("job_id", jobID).Msg("Failed to get job")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to get job")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, job)
}

// ListJobs handles GET /api/jobs
func (h *JobsHandler) ListJobs(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	filter := jobs.JobFilter{
		ItemID: query.Get("item_id"),
		Status: jobs.JobStatus(query.Get("status")),
	}

	if limitStr := query.Get("limit"); limitStr != "" {
		if limit, err := strconv.Atoi(limitStr); err == nil {
			filter.Limit = limit
		}
	}

	if offsetStr := query.Get("offset"); offsetStr != "" {
		if offset, err := strconv.Atoi(offsetStr); err == nil {
			filter.Offset = offset
		}
	}

	jobsList, err := h.store.ListJobs(r.Context(), filter)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list jobs")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to list jobs")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"jobs":  jobsList,
		"count": len(jobsList),
	})
}
