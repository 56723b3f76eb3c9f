package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "jobs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, Migrate(db.Pool))
	return db
}

func testInsert(key, title, company string, tier int) JobInsert {
	return JobInsert{
		Key:         key,
		Title:       title,
		Company:     company,
		Location:    "Dallas, TX",
		URL:         "https://www.linkedin.com/jobs/view/123",
		Tier:        tier,
		TagsJSON:    "[]",
		DateAdded:   time.Now().UTC().Format("2006-01-02"),
		FirstSeenAt: time.Now().UTC().Format(time.RFC3339),
		Source:      "email",
	}
}

func TestMigrateIsIdempotent(t *testing.T) {
	db := openTestDB(t)
	require.NoError(t, Migrate(db.Pool))
}

func TestInsertJobIgnoreDedupes(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	added, err := InsertJobIgnore(ctx, db.Pool, testInsert("linkedin:1", "Oracle ERP Manager", "PwC", 1))
	require.NoError(t, err)
	assert.True(t, added)

	// same key again: ignored
	added, err = InsertJobIgnore(ctx, db.Pool, testInsert("linkedin:1", "Oracle ERP Manager", "PwC", 1))
	require.NoError(t, err)
	assert.False(t, added)

	jobs, err := ListJobs(ctx, db.Pool, ListJobsOpts{})
	require.NoError(t, err)
	assert.Len(t, jobs, 1)
}

func TestInsertTwiceSameCandidatesRowCountUnchanged(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	candidates := []JobInsert{
		testInsert("linkedin:10", "Oracle ERP Manager", "PwC", 1),
		testInsert("linkedin:11", "Oracle HCM Analyst", "Initech", 2),
		testInsert("linkedin:12", "Barista", "Coffee Co", 3),
	}

	for _, c := range candidates {
		_, err := InsertJobIgnore(ctx, db.Pool, c)
		require.NoError(t, err)
	}
	first, err := ListJobs(ctx, db.Pool, ListJobsOpts{})
	require.NoError(t, err)

	for _, c := range candidates {
		added, err := InsertJobIgnore(ctx, db.Pool, c)
		require.NoError(t, err)
		assert.False(t, added)
	}
	second, err := ListJobs(ctx, db.Pool, ListJobsOpts{})
	require.NoError(t, err)
	assert.Equal(t, len(first), len(second))
}

func TestListJobsTierOrder(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	_, err := InsertJobIgnore(ctx, db.Pool, testInsert("k3", "Barista", "Coffee Co", 3))
	require.NoError(t, err)
	_, err = InsertJobIgnore(ctx, db.Pool, testInsert("k1", "Oracle ERP Manager", "PwC", 1))
	require.NoError(t, err)
	_, err = InsertJobIgnore(ctx, db.Pool, testInsert("k2", "Oracle HCM Analyst", "Initech", 2))
	require.NoError(t, err)

	jobs, err := ListJobs(ctx, db.Pool, ListJobsOpts{Sort: "tier"})
	require.NoError(t, err)
	require.Len(t, jobs, 3)
	assert.Equal(t, 1, jobs[0].Tier)
	assert.Equal(t, 2, jobs[1].Tier)
	assert.Equal(t, 3, jobs[2].Tier)
}

func TestListJobsTierFilter(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	_, err := InsertJobIgnore(ctx, db.Pool, testInsert("k1", "Oracle ERP Manager", "PwC", 1))
	require.NoError(t, err)
	_, err = InsertJobIgnore(ctx, db.Pool, testInsert("k2", "Oracle HCM Analyst", "Initech", 2))
	require.NoError(t, err)

	jobs, err := ListJobs(ctx, db.Pool, ListJobsOpts{Tier: 2})
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, "Oracle HCM Analyst", jobs[0].Title)
}

func TestCountByTier(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	_, err := InsertJobIgnore(ctx, db.Pool, testInsert("k1", "A", "B", 1))
	require.NoError(t, err)
	_, err = InsertJobIgnore(ctx, db.Pool, testInsert("k2", "C", "D", 1))
	require.NoError(t, err)
	_, err = InsertJobIgnore(ctx, db.Pool, testInsert("k3", "E", "F", 3))
	require.NoError(t, err)

	counts, err := CountByTier(ctx, db.Pool)
	require.NoError(t, err)
	assert.Equal(t, 2, counts[1])
	assert.Equal(t, 0, counts[2])
	assert.Equal(t, 1, counts[3])
}

func TestDeleteJob(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	_, err := InsertJobIgnore(ctx, db.Pool, testInsert("k1", "A", "B", 1))
	require.NoError(t, err)
	jobs, err := ListJobs(ctx, db.Pool, ListJobsOpts{})
	require.NoError(t, err)
	require.Len(t, jobs, 1)

	require.NoError(t, DeleteJob(ctx, db.Pool, jobs[0].ID))
	jobs, err = ListJobs(ctx, db.Pool, ListJobsOpts{})
	require.NoError(t, err)
	assert.Empty(t, jobs)
}

func TestRetierJobs(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	_, err := InsertJobIgnore(ctx, db.Pool, testInsert("k1", "Oracle ERP Manager", "PwC", 3))
	require.NoError(t, err)
	_, err = InsertJobIgnore(ctx, db.Pool, testInsert("k2", "Barista", "Coffee Co", 3))
	require.NoError(t, err)

	changed, err := RetierJobs(ctx, db.Pool, func(title, company string) (int, []string) {
		if title == "Oracle ERP Manager" {
			return 1, []string{"target-role"}
		}
		return 3, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, changed)

	jobs, err := ListJobs(ctx, db.Pool, ListJobsOpts{Sort: "tier"})
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	assert.Equal(t, 1, jobs[0].Tier)
	assert.Equal(t, []string{"target-role"}, jobs[0].Tags)
}

func TestRunLifecycle(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	id, err := StartRun(ctx, db.Pool, "run-abc", "schedule")
	require.NoError(t, err)
	require.NoError(t, FinishRun(ctx, db.Pool, id, 5, 2, true, ""))

	runs, err := ListRecentRuns(ctx, db.Pool, 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "run-abc", runs[0].RunID)
	assert.Equal(t, "schedule", runs[0].FiredBy)
	assert.Equal(t, 5, runs[0].Fetched)
	assert.Equal(t, 2, runs[0].Added)
	assert.True(t, runs[0].Emailed)
	assert.Empty(t, runs[0].Error)
	assert.NotEmpty(t, runs[0].FinishedAt)
}

func TestPruneOldRuns(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	_, err := db.Pool.ExecContext(ctx, `
INSERT INTO runs (run_id, fired_by, started_at) VALUES ('old', 'schedule', '2020-01-01T00:00:00Z');`)
	require.NoError(t, err)
	_, err = StartRun(ctx, db.Pool, "fresh", "manual")
	require.NoError(t, err)

	deleted, err := PruneOldRuns(db.Pool)
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	runs, err := ListRecentRuns(ctx, db.Pool, 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "fresh", runs[0].RunID)
}
