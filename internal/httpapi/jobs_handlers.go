package httpapi

import (
	"context"
	"database/sql"
	"net/http"
	"strconv"
	"strings"

	"jobtrack-engine/internal/domain"
	"jobtrack-engine/internal/events"
	"jobtrack-engine/internal/store"
)

type JobsHandler struct {
	DB        *sql.DB
	Hub       *events.Hub
	DeleteJob func(ctx context.Context, db *sql.DB, id int64) error
}

func (h JobsHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	opts := store.ListJobsOpts{Sort: q.Get("sort"), Limit: 50000}
	if t, err := strconv.Atoi(q.Get("tier")); err == nil {
		opts.Tier = t
	}
	if n, err := strconv.Atoi(q.Get("limit")); err == nil && n > 0 {
		opts.Limit = n
	}

	jobs, err := store.ListJobs(r.Context(), h.DB, opts)
	if err != nil {
		http.Error(w, err.Error(), 500)
		return
	}
	if jobs == nil {
		jobs = []store.Job{}
	}
	writeJSON(w, jobs)
}

func (h JobsHandler) ByPriority(w http.ResponseWriter, r *http.Request) {
	levelStr := strings.TrimPrefix(r.URL.Path, "/api/priority/")
	level, err := strconv.Atoi(levelStr)
	if err != nil || level < domain.TierHigh || level > domain.TierDefault {
		http.Error(w, "invalid priority level", 400)
		return
	}

	jobs, err := store.ListJobs(r.Context(), h.DB, store.ListJobsOpts{
		Sort: "date", Tier: level, Limit: 50000,
	})
	if err != nil {
		http.Error(w, err.Error(), 500)
		return
	}
	if jobs == nil {
		jobs = []store.Job{}
	}
	writeJSON(w, jobs)
}

func (h JobsHandler) DeleteByPath(w http.ResponseWriter, r *http.Request) {
	idStr := strings.TrimPrefix(r.URL.Path, "/api/jobs/")
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil || id <= 0 {
		http.Error(w, "invalid id", 400)
		return
	}

	if err := h.DeleteJob(r.Context(), h.DB, id); err != nil {
		http.Error(w, err.Error(), 500)
		return
	}

	reqID := RequestIDFrom(r.Context())
	h.Hub.Publish(events.MakeEvent(reqID, events.TypeJobDeleted, 1, map[string]any{"id": id}))
	writeJSON(w, map[string]any{"ok": true, "id": id})
}
