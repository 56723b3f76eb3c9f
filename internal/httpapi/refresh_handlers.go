package httpapi

import (
	"context"
	"errors"
	"net/http"

	"github.com/phuslu/log"

	"jobtrack-engine/internal/pipeline"
)

type RefreshHandler struct {
	Runner CycleRunner
}

// Run kicks off a manual cycle in the background. The pipeline keeps
// its own status and publishes progress on the hub, so the response is
// just an ack.
func (h RefreshHandler) Run(w http.ResponseWriter, r *http.Request) {
	if h.Runner.Running() {
		writeJSON(w, map[string]any{"ok": false, "msg": "already running"})
		return
	}

	go func() {
		_, err := h.Runner.Run(context.Background(), "manual")
		if err != nil && !errors.Is(err, pipeline.ErrAlreadyRunning) {
			log.Error().Err(err).Msg("manual cycle could not start")
		}
	}()

	writeJSON(w, map[string]any{"ok": true})
}
