package pipeline

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/emersion/go-imap/v2"
	"github.com/google/uuid"
	"github.com/phuslu/log"

	"jobtrack-engine/internal/config"
	"jobtrack-engine/internal/domain"
	"jobtrack-engine/internal/events"
	"jobtrack-engine/internal/mailbox"
	"jobtrack-engine/internal/mailer"
	"jobtrack-engine/internal/rank"
	"jobtrack-engine/internal/scrape"
	"jobtrack-engine/internal/store"
)

// ErrAlreadyRunning is returned when a cycle is requested while the
// previous one is still going. The caller just skips that firing.
var ErrAlreadyRunning = errors.New("pipeline: cycle already running")

const (
	stageRead   = "read"
	stageUpdate = "update"
	stageMail   = "mail"
)

// SMTP submit budget per cycle.
const mailTimeout = time.Minute

// Result is one cycle's outcome. Err collects stage failures; a failed
// stage never stops the stages after it, so Err can hold several.
type Result struct {
	RunID   string
	FiredBy string
	Fetched int
	Added   int
	Emailed bool
	Err     error
}

// Status is the runner's externally visible state, served by the API.
type Status struct {
	Running      bool   `json:"running"`
	LastRunID    string `json:"last_run_id,omitempty"`
	LastFiredBy  string `json:"last_fired_by,omitempty"`
	LastStarted  string `json:"last_started,omitempty"`
	LastFinished string `json:"last_finished,omitempty"`
	LastFetched  int    `json:"last_fetched"`
	LastAdded    int    `json:"last_added"`
	LastEmailed  bool   `json:"last_emailed"`
	LastError    string `json:"last_error,omitempty"`
}

// Runner drives the read -> update -> mail cycle. Stages run strictly
// in order; a stage that fails is logged and recorded, then the next
// stage still runs on whatever state exists.
type Runner struct {
	DB     *sql.DB
	Cfg    func() config.Config
	Source AlertSource
	Enrich JobEnricher // nil disables page enrichment
	Scorer rank.Scorer
	Sheet  SheetWriter
	Mail   ReportSender // nil disables the report mail
	Hub    *events.Hub  // nil disables event publishing

	running atomic.Bool
	mu      sync.Mutex
	status  Status
}

// Run executes one full cycle. Only one cycle runs at a time; a second
// call while busy returns ErrAlreadyRunning without touching anything.
func (r *Runner) Run(ctx context.Context, firedBy string) (Result, error) {
	if !r.running.CompareAndSwap(false, true) {
		return Result{}, ErrAlreadyRunning
	}
	defer r.running.Store(false)

	cfg := r.Cfg()
	zone, err := cfg.Location()
	if err != nil {
		log.Warn().Err(err).Str("tz", cfg.Schedule.Timezone).Msg("bad timezone, using local")
		zone = time.Local
	}

	runID := uuid.NewString()
	rowID, err := store.StartRun(ctx, r.DB, runID, firedBy)
	if err != nil {
		return Result{}, fmt.Errorf("start run: %w", err)
	}

	startedAt := time.Now()
	r.setStatus(func(st *Status) {
		*st = Status{Running: true, LastRunID: runID, LastFiredBy: firedBy, LastStarted: startedAt.UTC().Format(time.RFC3339)}
	})
	r.publish(runID, events.TypeCycleStarted, events.CycleResult{FiredBy: firedBy})
	log.Info().Str("run_id", runID).Str("fired_by", firedBy).Msg("cycle started")

	res := Result{RunID: runID, FiredBy: firedBy}
	var stageErrs []error

	// ---- read ----
	var alerts []mailbox.Alert
	var batch AlertBatch
	if err := r.stage(runID, stageRead, func() error {
		b, err := r.Source.Open(ctx)
		if err != nil {
			return err
		}
		batch = b
		alerts, err = b.Alerts(ctx)
		return err
	}); err != nil {
		stageErrs = append(stageErrs, err)
	}
	res.Fetched = len(alerts)

	// ---- update ----
	var okUIDs []imap.UID
	if err := r.stage(runID, stageUpdate, func() error {
		var errs []error
		added, acked, err := r.merge(ctx, cfg, zone, alerts)
		res.Added = added
		okUIDs = acked
		if err != nil {
			errs = append(errs, err)
		}
		if err := r.refreshSheet(ctx, workbookPath(cfg)); err != nil {
			errs = append(errs, fmt.Errorf("workbook: %w", err))
		}
		return errors.Join(errs...)
	}); err != nil {
		stageErrs = append(stageErrs, err)
	}

	// Acks only cover alerts whose postings all landed, so anything that
	// failed gets picked up again next cycle.
	if batch != nil {
		if len(okUIDs) > 0 {
			if err := batch.Ack(okUIDs); err != nil {
				log.Warn().Err(err).Int("uids", len(okUIDs)).Msg("mark processed failed")
			}
		}
		batch.Close()
	}

	if res.Added > 0 {
		r.publish(runID, events.TypeJobsAdded, map[string]int{"added": res.Added})
	}

	// ---- mail ----
	if r.Mail == nil {
		log.Debug().Str("run_id", runID).Msg("report mail disabled")
	} else if err := r.stage(runID, stageMail, func() error {
		sum := mailer.RunSummary{
			When:    time.Now().In(zone),
			Fetched: res.Fetched,
			Added:   res.Added,
		}
		if counts, err := store.CountByTier(ctx, r.DB); err == nil {
			sum.ByTier = counts
			for _, n := range counts {
				sum.Total += n
			}
		}
		mctx, cancel := context.WithTimeout(ctx, mailTimeout)
		defer cancel()
		return r.Mail.SendRunReport(mctx, cfg.Mail.SubjectPrefix, workbookPath(cfg), sum)
	}); err != nil {
		stageErrs = append(stageErrs, err)
	} else {
		res.Emailed = true
	}

	res.Err = errors.Join(stageErrs...)
	errStr := ""
	if res.Err != nil {
		errStr = res.Err.Error()
	}
	if err := store.FinishRun(ctx, r.DB, rowID, res.Fetched, res.Added, res.Emailed, errStr); err != nil {
		log.Warn().Err(err).Str("run_id", runID).Msg("finish run bookkeeping failed")
	}

	r.setStatus(func(st *Status) {
		st.Running = false
		st.LastFinished = time.Now().UTC().Format(time.RFC3339)
		st.LastFetched = res.Fetched
		st.LastAdded = res.Added
		st.LastEmailed = res.Emailed
		st.LastError = errStr
	})
	r.publish(runID, events.TypeCycleFinished, events.CycleResult{
		FiredBy: firedBy,
		Fetched: res.Fetched,
		Added:   res.Added,
		Emailed: res.Emailed,
		Error:   errStr,
	})

	log.Info().
		Str("run_id", runID).
		Int("fetched", res.Fetched).
		Int("added", res.Added).
		Str("took", time.Since(startedAt).Round(time.Millisecond).String()).
		Msg("cycle finished")

	return res, nil
}

// Running reports whether a cycle is in flight.
func (r *Runner) Running() bool { return r.running.Load() }

// Status returns a copy of the runner state.
func (r *Runner) Status() Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	st := r.status
	st.Running = r.running.Load()
	return st
}

func (r *Runner) setStatus(mut func(*Status)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	mut(&r.status)
}

// stage wraps one pipeline phase with logging and event publishing. The
// returned error is the phase error tagged with the stage name.
func (r *Runner) stage(runID, name string, fn func() error) error {
	r.publish(runID, events.TypeCycleStage, events.CycleStage{Stage: name, State: "started"})
	err := fn()
	if err != nil {
		log.Error().Err(err).Str("run_id", runID).Str("stage", name).Msg("stage failed")
		r.publish(runID, events.TypeCycleStage, events.CycleStage{Stage: name, State: "failed", Error: err.Error()})
		return fmt.Errorf("%s: %w", name, err)
	}
	r.publish(runID, events.TypeCycleStage, events.CycleStage{Stage: name, State: "done"})
	return nil
}

func (r *Runner) publish(runID, typ string, data any) {
	if r.Hub == nil {
		return
	}
	r.Hub.Publish(events.MakeEvent(runID, typ, 1, data))
}

// merge folds the cycle's alerts into the ledger. An alert is acked only
// when every posting in it inserted cleanly.
func (r *Runner) merge(ctx context.Context, cfg config.Config, zone *time.Location, alerts []mailbox.Alert) (added int, acked []imap.UID, err error) {
	seen := map[string]bool{}
	var errs []error

	for _, al := range alerts {
		alertOK := true
		for _, lj := range al.Jobs {
			p := postingFromAlert(lj, zone)
			if seen[p.Key] {
				continue
			}
			seen[p.Key] = true

			if r.Enrich != nil && cfg.Scrape.Enabled && needsHydration(p) {
				if herr := r.Enrich.Hydrate(ctx, &p); herr != nil {
					log.Debug().Err(herr).Str("url", p.URL).Msg("page enrichment skipped")
				} else {
					p.Source = "email+page"
				}
			}
			if p.Title == "" {
				p.Title = "Job Posting"
			}
			if p.Company == "" {
				p.Company = "Unknown"
			}
			p.Tier, p.Tags = r.Scorer.Score(p)

			ok, ierr := store.InsertJobIgnore(ctx, r.DB, toInsert(p))
			if ierr != nil {
				alertOK = false
				errs = append(errs, ierr)
				continue
			}
			if ok {
				added++
				log.Info().
					Str("title", p.Title).
					Str("company", p.Company).
					Int("tier", p.Tier).
					Msg("new posting")
			}
		}
		if alertOK {
			acked = append(acked, al.UID)
		}
	}
	return added, acked, errors.Join(errs...)
}

// refreshSheet regenerates the workbook as a projection of the ledger.
func (r *Runner) refreshSheet(ctx context.Context, path string) error {
	rows, err := store.ListJobs(ctx, r.DB, store.ListJobsOpts{Sort: "tier", Limit: 10000})
	if err != nil {
		return err
	}
	jobs := make([]domain.JobPosting, 0, len(rows))
	for _, j := range rows {
		jobs = append(jobs, postingFromRow(j))
	}
	return r.Sheet.Write(path, jobs)
}

func workbookPath(cfg config.Config) string {
	return filepath.Join(cfg.App.DataDir, cfg.Workbook.Filename)
}

func postingFromAlert(lj mailbox.LinkedInJob, zone *time.Location) domain.JobPosting {
	u := scrape.CanonicalizeJobURL(lj.URL)
	key := lj.SourceID
	if key == "" {
		key = mailbox.FallbackSourceID(u, lj.Title, lj.Company)
	}
	now := time.Now()
	return domain.JobPosting{
		Key:         key,
		Title:       strings.TrimSpace(lj.Title),
		Company:     strings.TrimSpace(lj.Company),
		Location:    strings.TrimSpace(lj.Location),
		Salary:      strings.TrimSpace(lj.Salary),
		URL:         u,
		Tier:        domain.TierDefault,
		DateAdded:   now.In(zone).Format("2006-01-02"),
		FirstSeenAt: now.UTC(),
		Source:      "email",
	}
}

func postingFromRow(j store.Job) domain.JobPosting {
	first, _ := time.Parse(time.RFC3339, j.FirstSeenAt)
	return domain.JobPosting{
		Key:         j.Key,
		Title:       j.Title,
		Company:     j.Company,
		Location:    j.Location,
		Salary:      j.Salary,
		URL:         j.URL,
		Tier:        j.Tier,
		Tags:        j.Tags,
		DateAdded:   j.DateAdded,
		FirstSeenAt: first,
		Source:      j.Source,
	}
}

func needsHydration(p domain.JobPosting) bool {
	return p.Title == "" || p.Company == "" || p.Location == ""
}

func toInsert(p domain.JobPosting) store.JobInsert {
	tags := "[]"
	if len(p.Tags) > 0 {
		if b, err := json.Marshal(p.Tags); err == nil {
			tags = string(b)
		}
	}
	return store.JobInsert{
		Key:         p.Key,
		Title:       p.Title,
		Company:     p.Company,
		Location:    p.Location,
		Salary:      p.Salary,
		URL:         p.URL,
		Tier:        p.Tier,
		TagsJSON:    tags,
		DateAdded:   p.DateAdded,
		FirstSeenAt: p.FirstSeenAt.Format(time.RFC3339),
		Source:      p.Source,
	}
}
