package handlers

import (
	"net/http"
	"time"

	"github.com/dvloznov/finance-sync/internal/api/middleware"
)

// Register adds every API route to mux.
func Register(mux *http.ServeMux, items *ItemsHandler, jobsHandler *JobsHandler) {
	// Items endpoints
	mux.HandleFunc("GET /api/items", items.ListItems)
	mux.HandleFunc("POST /api/items", items.RegisterItem)
	mux.HandleFunc("GET /api/items/{id}", func(w http.ResponseWriter, r *http.Request) {
		items.GetItem(w, r, r.PathValue("id"))
	})
	mux.HandleFunc("POST /api/items/{id}/export", func(w http.ResponseWriter, r *http.Request) {
		items.EnqueueExport(w, r, r.PathValue("id"))
	})
	mux.HandleFunc("DELETE /api/items/{id}/cursor", func(w http.ResponseWriter, r *http.Request) {
		items.ResetCursor(w, r, r.PathValue("id"))
	})
	mux.HandleFunc("GET /api/items/{id}/runs", func(w http.ResponseWriter, r *http.Request) {
		items.ListRuns(w, r, r.PathValue("id"))
	})

	// Jobs endpoints
	mux.HandleFunc("GET /api/jobs", jobsHandler.ListJobs)
	mux.HandleFunc("GET /api/jobs/{id}", func(w http.ResponseWriter, r *http.Request) {
		jobsHandler.GetJob(w, r, r.PathValue("id"))
	})

	// Health check endpoint
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		middleware.WriteJSON(w, http.StatusOK, map[string]string{
			"status": "healthy",
			"time":   time.Now().Format(time.RFC3339),
		})
	})
}
