package httpapi

import (
	"database/sql"
	"net/http"

	"jobtrack-engine/internal/events"
	"jobtrack-engine/internal/pipeline"
	"jobtrack-engine/internal/scheduler"
	"jobtrack-engine/internal/store"
)

type StatusHandler struct {
	DB          *sql.DB
	Runner      CycleRunner
	NextFirings func() []scheduler.Firing
	Hub         *events.Hub
}

type statusPayload struct {
	Pipeline     pipeline.Status    `json:"pipeline"`
	NextFirings  []scheduler.Firing `json:"next_firings"`
	TotalsByTier map[int]int        `json:"totals_by_tier"`
	RecentRuns   []store.RunRecord  `json:"recent_runs"`
	Subscribers  int                `json:"event_subscribers"`
}

func (h StatusHandler) Get(w http.ResponseWriter, r *http.Request) {
	p := statusPayload{Pipeline: h.Runner.Status()}

	if h.NextFirings != nil {
		p.NextFirings = h.NextFirings()
	}
	if counts, err := store.CountByTier(r.Context(), h.DB); err == nil {
		p.TotalsByTier = counts
	}
	if runs, err := store.ListRecentRuns(r.Context(), h.DB, 10); err == nil {
		p.RecentRuns = runs
	}
	if h.Hub != nil {
		p.Subscribers = h.Hub.Subscribers()
	}

	writeJSON(w, p)
}
