package store

import (
	"context"
	"database/sql"
	"fmt"
)

// RunRecord is one pipeline cycle's bookkeeping row. Postings are never
// aged out; run history is, after 90 days.
type RunRecord struct {
	ID         int64  `json:"id"`
	RunID      string `json:"runId"`
	FiredBy    string `json:"firedBy"` // schedule | manual | startup
	StartedAt  string `json:"startedAt"`
	FinishedAt string `json:"finishedAt"`
	Fetched    int    `json:"fetched"`
	Added      int    `json:"added"`
	Emailed    bool   `json:"emailed"`
	Error      string `json:"error"`
}

func StartRun(ctx context.Context, db *sql.DB, runID, firedBy string) (int64, error) {
	res, err := db.ExecContext(ctx, `
INSERT INTO runs (run_id, fired_by, started_at)
VALUES (?, ?, ?);`,
		runID, firedBy, nowRFC3339(),
	)
	if err != nil {
		return 0, fmt.Errorf("start run: %w", err)
	}
	return res.LastInsertId()
}

func FinishRun(ctx context.Context, db *sql.DB, id int64, fetched, added int, emailed bool, runErr string) error {
	emailedInt := 0
	if emailed {
		emailedInt = 1
	}
	_, err := db.ExecContext(ctx, `
UPDATE runs
SET finished_at = ?, fetched = ?, added = ?, emailed = ?, error = ?
WHERE id = ?;`,
		nowRFC3339(), fetched, added, emailedInt, runErr, id,
	)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	return nil
}

func ListRecentRuns(ctx context.Context, db *sql.DB, limit int) ([]RunRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := db.QueryContext(ctx, `
SELECT id, run_id, fired_by, started_at, finished_at, fetched, added, emailed, error
FROM runs
ORDER BY id DESC
LIMIT ?;`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RunRecord
	for rows.Next() {
		var r RunRecord
		var emailed int
		if err := rows.Scan(&r.ID, &r.RunID, &r.FiredBy, &r.StartedAt, &r.FinishedAt, &r.Fetched, &r.Added, &emailed, &r.Error); err != nil {
			return nil, err
		}
		r.Emailed = emailed != 0
		out = append(out, r)
	}
	return out, rows.Err()
}

func PruneOldRuns(db *sql.DB) (deleted int64, err error) {
	res, err := db.Exec(`
DELETE FROM runs
WHERE started_at < datetime('now', '-90 days');
`)
	if err != nil {
		return 0, fmt.Errorf("prune old runs: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}
