package events

import (
	"encoding/json"
	"time"
)

// Event types published on the hub.
const (
	TypeCycleStarted  = "cycle_started"
	TypeCycleStage    = "cycle_stage"
	TypeCycleFinished = "cycle_finished"
	TypeJobsAdded     = "jobs_added"
	TypeJobDeleted    = "job_deleted"
	TypeConfigUpdated = "config_updated"
	TypePing          = "ping"
)

type Event struct {
	Type    string          `json:"type"`
	Version int             `json:"v"`
	At      time.Time       `json:"at"`
	RunID   string          `json:"run_id,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// MakeEvent renders one event envelope as a JSON line for the SSE feed.
func MakeEvent(runID, typ string, v int, data any) string {
	var raw json.RawMessage
	if data != nil {
		b, _ := json.Marshal(data)
		raw = b
	}
	e := Event{
		Type:    typ,
		Version: v,
		At:      time.Now().UTC(),
		RunID:   runID,
		Data:    raw,
	}
	b, _ := json.Marshal(e)
	return string(b)
}

// CycleStage notes one pipeline stage starting or ending.
type CycleStage struct {
	Stage string `json:"stage"` // read/update/mail
	State string `json:"state"` // started/done/failed
	Error string `json:"error,omitempty"`
}

// CycleResult summarizes a finished cycle.
type CycleResult struct {
	FiredBy string `json:"fired_by"`
	Fetched int    `json:"fetched"`
	Added   int    `json:"added"`
	Emailed bool   `json:"emailed"`
	Error   string `json:"error,omitempty"`
}
