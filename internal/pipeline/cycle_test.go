package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/emersion/go-imap/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jobtrack-engine/internal/config"
	"jobtrack-engine/internal/domain"
	"jobtrack-engine/internal/events"
	"jobtrack-engine/internal/mailbox"
	"jobtrack-engine/internal/mailer"
	"jobtrack-engine/internal/rank"
	"jobtrack-engine/internal/store"
)

type stubBatch struct {
	alerts   []mailbox.Alert
	fetchErr error
	acked    []imap.UID
	closed   bool
}

func (b *stubBatch) Alerts(_ context.Context) ([]mailbox.Alert, error) {
	return b.alerts, b.fetchErr
}
func (b *stubBatch) Ack(uids []imap.UID) error { b.acked = append(b.acked, uids...); return nil }
func (b *stubBatch) Close()                    { b.closed = true }

type stubSource struct {
	batch   *stubBatch
	openErr error
	opens   int
}

func (s *stubSource) Open(_ context.Context) (AlertBatch, error) {
	s.opens++
	if s.openErr != nil {
		return nil, s.openErr
	}
	return s.batch, nil
}

type stubSheet struct {
	paths []string
	jobs  [][]domain.JobPosting
	err   error
}

func (s *stubSheet) Write(path string, jobs []domain.JobPosting) error {
	if s.err != nil {
		return s.err
	}
	s.paths = append(s.paths, path)
	s.jobs = append(s.jobs, jobs)
	return nil
}

type stubMailer struct {
	err   error
	sums  []mailer.RunSummary
	paths []string
}

func (m *stubMailer) SendRunReport(_ context.Context, _ string, wbPath string, sum mailer.RunSummary) error {
	if m.err != nil {
		return m.err
	}
	m.sums = append(m.sums, sum)
	m.paths = append(m.paths, wbPath)
	return nil
}

type stubEnricher struct {
	called int
}

func (e *stubEnricher) Hydrate(_ context.Context, p *domain.JobPosting) error {
	e.called++
	if p.Location == "" {
		p.Location = "Austin, TX"
	}
	if p.Title == "" {
		p.Title = "Hydrated Title"
	}
	return nil
}

func newTestRunner(t *testing.T, src AlertSource, mutate func(*config.Config)) (*Runner, *stubSheet, *stubMailer) {
	t.Helper()

	dir := t.TempDir()
	db, err := store.Open(filepath.Join(dir, "t.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, store.Migrate(db.Pool))

	cfg := config.Default()
	cfg.App.DataDir = dir
	cfg.Scrape.Enabled = false
	if mutate != nil {
		mutate(&cfg)
	}

	sheet := &stubSheet{}
	mail := &stubMailer{}
	r := &Runner{
		DB:     db.Pool,
		Cfg:    func() config.Config { return cfg },
		Source: src,
		Scorer: rank.KeywordScorer{Cfg: cfg},
		Sheet:  sheet,
		Mail:   mail,
		Hub:    events.NewHub(),
	}
	return r, sheet, mail
}

func alertFixture() mailbox.Alert {
	return mailbox.Alert{
		UID:     61,
		Subject: "30 new jobs for oracle erp",
		From:    "jobalerts-noreply@linkedin.com",
		Date:    time.Now(),
		Jobs: []mailbox.LinkedInJob{
			{
				Title:    "Oracle ERP Senior Manager",
				Company:  "PwC",
				Location: "Dallas, TX",
				Salary:   "$150,000 - $180,000/year",
				URL:      "https://www.linkedin.com/comm/jobs/view/4012345678?trk=email",
				SourceID: "linkedin:4012345678",
			},
			{
				Title:    "Barista",
				Company:  "Coffee Co",
				URL:      "https://www.linkedin.com/jobs/view/4099887766/",
				SourceID: "linkedin:4099887766",
			},
		},
	}
}

func TestRunHappyPath(t *testing.T) {
	batch := &stubBatch{alerts: []mailbox.Alert{alertFixture()}}
	src := &stubSource{batch: batch}
	r, sheet, mail := newTestRunner(t, src, nil)

	res, err := r.Run(context.Background(), "manual")
	require.NoError(t, err)
	require.NoError(t, res.Err)

	assert.Equal(t, 1, res.Fetched)
	assert.Equal(t, 2, res.Added)
	assert.True(t, res.Emailed)

	// the alert is acked on the same session, then the session closes
	assert.Equal(t, []imap.UID{61}, batch.acked)
	assert.True(t, batch.closed)

	// workbook regenerated from the ledger, hot tier first
	require.Len(t, sheet.jobs, 1)
	rows := sheet.jobs[0]
	require.Len(t, rows, 2)
	assert.Equal(t, "Oracle ERP Senior Manager", rows[0].Title)
	assert.Equal(t, domain.TierHigh, rows[0].Tier)
	assert.Equal(t, "https://www.linkedin.com/jobs/view/4012345678", rows[0].URL)
	assert.Equal(t, domain.TierDefault, rows[1].Tier)

	cfg := r.Cfg()
	wantPath := filepath.Join(cfg.App.DataDir, cfg.Workbook.Filename)
	assert.Equal(t, wantPath, sheet.paths[0])

	// the report carries the cycle numbers
	require.Len(t, mail.sums, 1)
	assert.Equal(t, 1, mail.sums[0].Fetched)
	assert.Equal(t, 2, mail.sums[0].Added)
	assert.Equal(t, 2, mail.sums[0].Total)
	assert.Equal(t, map[int]int{domain.TierHigh: 1, domain.TierDefault: 1}, mail.sums[0].ByTier)
	assert.Equal(t, wantPath, mail.paths[0])

	// run bookkeeping
	recs, err := store.ListRecentRuns(context.Background(), r.DB, 5)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "manual", recs[0].FiredBy)
	assert.Equal(t, 2, recs[0].Added)
	assert.True(t, recs[0].Emailed)
	assert.Empty(t, recs[0].Error)
	assert.NotEmpty(t, recs[0].FinishedAt)

	st := r.Status()
	assert.False(t, st.Running)
	assert.Equal(t, res.RunID, st.LastRunID)
	assert.Equal(t, 2, st.LastAdded)
	assert.True(t, st.LastEmailed)
	assert.Empty(t, st.LastError)
}

func TestRunIsIdempotent(t *testing.T) {
	batch := &stubBatch{alerts: []mailbox.Alert{alertFixture()}}
	src := &stubSource{batch: batch}
	r, sheet, _ := newTestRunner(t, src, nil)

	first, err := r.Run(context.Background(), "schedule")
	require.NoError(t, err)
	assert.Equal(t, 2, first.Added)

	// same alerts again: nothing new lands, the cycle still completes
	second, err := r.Run(context.Background(), "schedule")
	require.NoError(t, err)
	require.NoError(t, second.Err)
	assert.Equal(t, 0, second.Added)
	assert.True(t, second.Emailed)

	require.Len(t, sheet.jobs, 2)
	assert.Len(t, sheet.jobs[1], 2)
}

func TestRunMailerFailureDoesNotAbort(t *testing.T) {
	batch := &stubBatch{alerts: []mailbox.Alert{alertFixture()}}
	src := &stubSource{batch: batch}
	r, _, mail := newTestRunner(t, src, nil)
	mail.err = errors.New("smtp down")

	res, err := r.Run(context.Background(), "schedule")
	require.NoError(t, err)

	// postings merged and acked even though the mail never went out
	assert.Equal(t, 2, res.Added)
	assert.False(t, res.Emailed)
	require.Error(t, res.Err)
	assert.Contains(t, res.Err.Error(), "mail")

	recs, err := store.ListRecentRuns(context.Background(), r.DB, 5)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.False(t, recs[0].Emailed)
	assert.Contains(t, recs[0].Error, "smtp down")

	// the next firing runs normally once the mailer recovers
	mail.err = nil
	res2, err := r.Run(context.Background(), "schedule")
	require.NoError(t, err)
	require.NoError(t, res2.Err)
	assert.Equal(t, 0, res2.Added)
	assert.True(t, res2.Emailed)
}

func TestRunReaderFailureStillShipsLedger(t *testing.T) {
	src := &stubSource{openErr: errors.New("imap: connection refused")}
	r, sheet, mail := newTestRunner(t, src, nil)

	res, err := r.Run(context.Background(), "schedule")
	require.NoError(t, err)

	require.Error(t, res.Err)
	assert.Contains(t, res.Err.Error(), "read")
	assert.Zero(t, res.Fetched)
	assert.Zero(t, res.Added)

	// updater and mailer still ran on the existing (empty) ledger
	require.Len(t, sheet.jobs, 1)
	assert.Empty(t, sheet.jobs[0])
	assert.Len(t, mail.sums, 1)
	assert.True(t, res.Emailed)
}

func TestRunRejectsConcurrentCycle(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	src := &gateSource{entered: entered, release: release}
	r, _, _ := newTestRunner(t, src, nil)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, _ = r.Run(context.Background(), "schedule")
	}()

	<-entered
	assert.True(t, r.Running())
	_, err := r.Run(context.Background(), "manual")
	assert.ErrorIs(t, err, ErrAlreadyRunning)

	close(release)
	wg.Wait()
	assert.False(t, r.Running())
}

type gateSource struct {
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (s *gateSource) Open(_ context.Context) (AlertBatch, error) {
	s.once.Do(func() { close(s.entered) })
	<-s.release
	return &stubBatch{}, nil
}

func TestRunEnrichmentFillsMissingFields(t *testing.T) {
	bare := mailbox.Alert{
		UID: 7,
		Jobs: []mailbox.LinkedInJob{
			{URL: "https://www.linkedin.com/jobs/view/777", SourceID: "linkedin:777"},
		},
	}
	src := &stubSource{batch: &stubBatch{alerts: []mailbox.Alert{bare}}}
	enr := &stubEnricher{}
	r, sheet, _ := newTestRunner(t, src, func(c *config.Config) { c.Scrape.Enabled = true })
	r.Enrich = enr

	res, err := r.Run(context.Background(), "manual")
	require.NoError(t, err)
	require.NoError(t, res.Err)
	assert.Equal(t, 1, enr.called)

	require.Len(t, sheet.jobs, 1)
	require.Len(t, sheet.jobs[0], 1)
	row := sheet.jobs[0][0]
	assert.Equal(t, "Hydrated Title", row.Title)
	assert.Equal(t, "Unknown", row.Company)
	assert.Equal(t, "Austin, TX", row.Location)
	assert.Equal(t, "email+page", row.Source)
}

func TestRunEnrichmentDisabledUsesPlaceholders(t *testing.T) {
	bare := mailbox.Alert{
		UID: 7,
		Jobs: []mailbox.LinkedInJob{
			{URL: "https://www.linkedin.com/jobs/view/777", SourceID: "linkedin:777"},
		},
	}
	src := &stubSource{batch: &stubBatch{alerts: []mailbox.Alert{bare}}}
	enr := &stubEnricher{}
	r, sheet, _ := newTestRunner(t, src, nil) // scrape disabled by helper
	r.Enrich = enr

	res, err := r.Run(context.Background(), "manual")
	require.NoError(t, err)
	require.NoError(t, res.Err)
	assert.Zero(t, enr.called)

	row := sheet.jobs[0][0]
	assert.Equal(t, "Job Posting", row.Title)
	assert.Equal(t, "Unknown", row.Company)
	assert.Empty(t, row.Location)
	assert.Equal(t, "email", row.Source)
}

func TestRunPublishesCycleEvents(t *testing.T) {
	batch := &stubBatch{alerts: []mailbox.Alert{alertFixture()}}
	src := &stubSource{batch: batch}
	r, _, _ := newTestRunner(t, src, nil)

	ch := r.Hub.Subscribe()
	defer r.Hub.Unsubscribe(ch)

	res, err := r.Run(context.Background(), "manual")
	require.NoError(t, err)

	var types []string
	for len(ch) > 0 {
		var evt events.Event
		require.NoError(t, json.Unmarshal([]byte(<-ch), &evt))
		assert.Equal(t, res.RunID, evt.RunID)
		types = append(types, evt.Type)
	}
	require.NotEmpty(t, types)
	assert.Equal(t, events.TypeCycleStarted, types[0])
	assert.Contains(t, types, events.TypeJobsAdded)
	assert.Equal(t, events.TypeCycleFinished, types[len(types)-1])
}

func TestRunStartBookkeepingFailure(t *testing.T) {
	src := &stubSource{batch: &stubBatch{}}
	r, _, _ := newTestRunner(t, src, nil)

	// a closed pool means the run row can never be written
	require.NoError(t, r.DB.Close())

	_, err := r.Run(context.Background(), "manual")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrAlreadyRunning)
	assert.Zero(t, src.opens)
}

func TestPostingFromAlert(t *testing.T) {
	zone := time.FixedZone("CST", -6*3600)

	t.Run("linkedin id key", func(t *testing.T) {
		p := postingFromAlert(mailbox.LinkedInJob{
			Title:    "  Oracle EPM Consultant ",
			Company:  "Acme",
			URL:      "https://www.linkedin.com/comm/jobs/view/123?trk=email",
			SourceID: "linkedin:123",
		}, zone)
		assert.Equal(t, "linkedin:123", p.Key)
		assert.Equal(t, "Oracle EPM Consultant", p.Title)
		assert.Equal(t, "https://www.linkedin.com/jobs/view/123", p.URL)
		assert.Equal(t, time.Now().In(zone).Format("2006-01-02"), p.DateAdded)
		assert.Equal(t, "email", p.Source)
	})

	t.Run("fallback key from url", func(t *testing.T) {
		a := postingFromAlert(mailbox.LinkedInJob{Title: "X", URL: "https://example.com/a"}, zone)
		b := postingFromAlert(mailbox.LinkedInJob{Title: "X", URL: "https://example.com/b"}, zone)
		assert.NotEmpty(t, a.Key)
		assert.NotEqual(t, a.Key, b.Key)
	})
}

func TestToInsertTagsJSON(t *testing.T) {
	in := toInsert(domain.JobPosting{Tags: nil})
	assert.Equal(t, "[]", in.TagsJSON)

	in = toInsert(domain.JobPosting{Tags: []string{"target-role"}})
	assert.JSONEq(t, `["target-role"]`, in.TagsJSON)
}
