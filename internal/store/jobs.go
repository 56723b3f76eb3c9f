package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

type Job struct {
	ID          int64    `json:"id"`
	Key         string   `json:"key"`
	Title       string   `json:"title"`
	Company     string   `json:"company"`
	Location    string   `json:"location"`
	Salary      string   `json:"salary"`
	URL         string   `json:"url"`
	Tier        int      `json:"tier"`
	Tags        []string `json:"tags"`
	DateAdded   string   `json:"dateAdded"`
	FirstSeenAt string   `json:"firstSeenAt"`
	Source      string   `json:"source"`
}

type JobInsert struct {
	Key         string
	Title       string
	Company     string
	Location    string
	Salary      string
	URL         string
	Tier        int
	TagsJSON    string // "[]"
	DateAdded   string // YYYY-MM-DD
	FirstSeenAt string // RFC3339
	Source      string
}

type ListJobsOpts struct {
	Sort  string // tier | date | company | title
	Tier  int    // 0 = all
	Limit int
}

func Migrate(db *sql.DB) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var v int
	if err := tx.QueryRow(`PRAGMA user_version;`).Scan(&v); err != nil {
		return err
	}

	if v >= 1 {
		return tx.Commit()
	}

	// ---- Schema v1: tables ----

	if _, err := tx.Exec(`
CREATE TABLE IF NOT EXISTS jobs (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  job_key TEXT NOT NULL DEFAULT '',
  title TEXT NOT NULL,
  company TEXT NOT NULL,
  location TEXT NOT NULL DEFAULT '',
  salary TEXT NOT NULL DEFAULT '',
  url TEXT NOT NULL,
  tier INTEGER NOT NULL DEFAULT 3,
  tags TEXT NOT NULL DEFAULT '[]',
  date_added TEXT NOT NULL,
  first_seen_at TEXT NOT NULL,
  source TEXT NOT NULL DEFAULT ''
);
`); err != nil {
		return err
	}

	if _, err := tx.Exec(`
CREATE TABLE IF NOT EXISTS runs (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  run_id TEXT NOT NULL,
  fired_by TEXT NOT NULL,
  started_at TEXT NOT NULL,
  finished_at TEXT NOT NULL DEFAULT '',
  fetched INTEGER NOT NULL DEFAULT 0,
  added INTEGER NOT NULL DEFAULT 0,
  emailed INTEGER NOT NULL DEFAULT 0,
  error TEXT NOT NULL DEFAULT ''
);
`); err != nil {
		return err
	}

	// ---- Schema v1: indexes ----

	if _, err := tx.Exec(`
CREATE UNIQUE INDEX IF NOT EXISTS idx_jobs_job_key
ON jobs(job_key)
WHERE job_key != '';
`); err != nil {
		return err
	}

	if _, err := tx.Exec(`
CREATE INDEX IF NOT EXISTS idx_jobs_tier
ON jobs(tier);
`); err != nil {
		return err
	}

	if _, err := tx.Exec(`
CREATE INDEX IF NOT EXISTS idx_jobs_first_seen
ON jobs(first_seen_at);
`); err != nil {
		return err
	}

	if _, err := tx.Exec(`
CREATE INDEX IF NOT EXISTS idx_runs_started
ON runs(started_at);
`); err != nil {
		return err
	}

	if _, err := tx.Exec(`PRAGMA user_version = 1;`); err != nil {
		return err
	}

	return tx.Commit()
}

// InsertJobIgnore inserts a posting unless its job_key is already present.
// The unique index makes re-runs with the same candidates a no-op.
func InsertJobIgnore(ctx context.Context, db *sql.DB, j JobInsert) (added bool, err error) {
	_, err = db.ExecContext(ctx, `
INSERT OR IGNORE INTO jobs (job_key, title, company, location, salary, url, tier, tags, date_added, first_seen_at, source)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?);`,
		j.Key, j.Title, j.Company, j.Location, j.Salary, j.URL, j.Tier, j.TagsJSON, j.DateAdded, j.FirstSeenAt, j.Source,
	)
	if err != nil {
		return false, fmt.Errorf("insert job: %w", err)
	}

	// INSERT OR IGNORE does not report rows affected reliably across
	// drivers; changes() does.
	var changes int
	if e := db.QueryRowContext(ctx, `SELECT changes();`).Scan(&changes); e == nil {
		return changes > 0, nil
	}
	return true, nil
}

func ListJobs(ctx context.Context, db *sql.DB, opts ListJobsOpts) ([]Job, error) {
	if opts.Sort == "" {
		opts.Sort = "tier"
	}
	if opts.Limit <= 0 {
		opts.Limit = 1000
	}

	// whitelist sort columns (prevents SQL injection)
	orderBy := map[string]string{
		"tier":    "tier ASC, first_seen_at DESC, id ASC",
		"date":    "first_seen_at DESC, id ASC",
		"company": "company COLLATE NOCASE ASC, tier ASC",
		"title":   "title COLLATE NOCASE ASC, tier ASC",
	}[opts.Sort]
	if orderBy == "" {
		orderBy = "tier ASC, first_seen_at DESC, id ASC"
	}

	where := ""
	args := []any{}
	if opts.Tier > 0 {
		where = "WHERE tier = ?"
		args = append(args, opts.Tier)
	}
	args = append(args, opts.Limit)

	query := fmt.Sprintf(`
SELECT id, job_key, title, company, location, salary, url, tier, tags, date_added, first_seen_at, source
FROM jobs
%s
ORDER BY %s
LIMIT ?;
`, where, orderBy)

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Job
	for rows.Next() {
		var j Job
		var tagsJSON string
		if err := rows.Scan(
			&j.ID,
			&j.Key,
			&j.Title,
			&j.Company,
			&j.Location,
			&j.Salary,
			&j.URL,
			&j.Tier,
			&tagsJSON,
			&j.DateAdded,
			&j.FirstSeenAt,
			&j.Source,
		); err != nil {
			return nil, err
		}
		_ = json.Unmarshal([]byte(tagsJSON), &j.Tags)
		out = append(out, j)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// CountByTier returns row counts keyed by tier.
func CountByTier(ctx context.Context, db *sql.DB) (map[int]int, error) {
	rows, err := db.QueryContext(ctx, `SELECT tier, COUNT(*) FROM jobs GROUP BY tier;`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := map[int]int{}
	for rows.Next() {
		var tier, n int
		if err := rows.Scan(&tier, &n); err != nil {
			return nil, err
		}
		out[tier] = n
	}
	return out, rows.Err()
}

func DeleteJob(ctx context.Context, db *sql.DB, id int64) error {
	_, err := db.ExecContext(ctx, `DELETE FROM jobs WHERE id = ?;`, id)
	return err
}

// RetierJobs recomputes tier and tags for every stored row, for when the
// rule set changed. Returns how many rows moved tier.
func RetierJobs(ctx context.Context, db *sql.DB, classify func(title, company string) (int, []string)) (changed int, err error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	rows, err := tx.QueryContext(ctx, `SELECT id, title, company, tier FROM jobs;`)
	if err != nil {
		return 0, err
	}

	type update struct {
		id   int64
		tier int
		tags string
	}
	var updates []update
	for rows.Next() {
		var id int64
		var title, company string
		var tier int
		if err := rows.Scan(&id, &title, &company, &tier); err != nil {
			rows.Close()
			return 0, err
		}
		newTier, tags := classify(title, company)
		tagsB, _ := json.Marshal(tags)
		updates = append(updates, update{id: id, tier: newTier, tags: string(tagsB)})
		if newTier != tier {
			changed++
		}
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return 0, err
	}
	rows.Close()

	for _, u := range updates {
		if _, err := tx.ExecContext(ctx, `UPDATE jobs SET tier = ?, tags = ? WHERE id = ?;`, u.tier, u.tags, u.id); err != nil {
			return 0, err
		}
	}

	return changed, tx.Commit()
}

// nowRFC3339 keeps timestamps uniform across the package.
func nowRFC3339() string { return time.Now().UTC().Format(time.RFC3339) }
