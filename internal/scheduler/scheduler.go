package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/phuslu/log"
	"github.com/robfig/cron/v3"

	"jobtrack-engine/internal/config"
	"jobtrack-engine/internal/pipeline"
)

// CycleRunner is what the scheduler fires. *pipeline.Runner satisfies it.
type CycleRunner interface {
	Run(ctx context.Context, firedBy string) (pipeline.Result, error)
}

// Firing is one scheduled slot and when it next goes off.
type Firing struct {
	Clock string    `json:"clock"`
	Next  time.Time `json:"next"`
}

type slot struct {
	clock string
	id    cron.EntryID
}

// Scheduler fires the pipeline at fixed wall-clock times in the
// configured zone. Overlap control lives in the runner; the scheduler
// just skips a firing the runner refuses.
type Scheduler struct {
	cron   *cron.Cron
	zone   *time.Location
	runner CycleRunner
	window time.Duration
	clocks []string

	mu      sync.Mutex
	slots   []slot
	running bool
}

func New(cfg config.Config, runner CycleRunner) (*Scheduler, error) {
	zone, err := cfg.Location()
	if err != nil {
		return nil, fmt.Errorf("schedule timezone: %w", err)
	}

	s := &Scheduler{
		cron:   cron.New(cron.WithLocation(zone)),
		zone:   zone,
		runner: runner,
		window: time.Duration(cfg.Schedule.CatchupMinutes) * time.Minute,
		clocks: append([]string(nil), cfg.Schedule.Times...),
	}

	for _, clock := range cfg.Schedule.Times {
		h, m, err := config.ParseClock(clock)
		if err != nil {
			return nil, err
		}
		clock := clock
		id, err := s.cron.AddFunc(fmt.Sprintf("%d %d * * *", m, h), func() {
			s.fire("schedule", clock)
		})
		if err != nil {
			return nil, fmt.Errorf("add slot %s: %w", clock, err)
		}
		s.slots = append(s.slots, slot{clock: clock, id: id})
	}

	return s, nil
}

// AddDaily registers an extra daily task, for housekeeping that should
// not ride on the pipeline slots.
func (s *Scheduler) AddDaily(clock string, fn func()) error {
	h, m, err := config.ParseClock(clock)
	if err != nil {
		return err
	}
	_, err = s.cron.AddFunc(fmt.Sprintf("%d %d * * *", m, h), fn)
	return err
}

// Start launches the cron loop. When the process comes up inside the
// catch-up window after a slot, that slot's cycle runs immediately so a
// restart does not swallow a firing.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return errors.New("scheduler already running")
	}
	s.running = true
	s.mu.Unlock()

	s.cron.Start()
	log.Info().
		Int("slots", len(s.clocks)).
		Str("zone", s.zone.String()).
		Msg("scheduler started")

	if clock, ok := MissedSlot(s.clocks, time.Now().In(s.zone), s.window); ok {
		log.Info().Str("slot", clock).Msg("inside catch-up window, firing now")
		go s.fire("startup", clock)
	}
	return nil
}

// Stop halts new firings. The returned context is done once any cycle
// the cron started has finished.
func (s *Scheduler) Stop() context.Context {
	s.mu.Lock()
	s.running = false
	s.mu.Unlock()
	return s.cron.Stop()
}

// Next lists the slots ordered by upcoming fire time. Empty until Start.
func (s *Scheduler) Next() []Firing {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Firing, 0, len(s.slots))
	for _, sl := range s.slots {
		e := s.cron.Entry(sl.id)
		next := e.Next
		if next.IsZero() && e.Schedule != nil {
			// the cron loop fills Next on its first pass; compute it
			// ourselves until then
			next = e.Schedule.Next(time.Now().In(s.zone))
		}
		out = append(out, Firing{Clock: sl.clock, Next: next})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Next.Before(out[j].Next) })
	return out
}

func (s *Scheduler) fire(firedBy, clock string) {
	res, err := s.runner.Run(context.Background(), firedBy)
	switch {
	case errors.Is(err, pipeline.ErrAlreadyRunning):
		log.Warn().Str("slot", clock).Msg("previous cycle still running, slot skipped")
	case err != nil:
		log.Error().Err(err).Str("slot", clock).Msg("cycle could not start")
	default:
		log.Info().
			Str("slot", clock).
			Int("added", res.Added).
			Msg("scheduled cycle done")
	}
}

// MissedSlot reports the most recent slot inside the catch-up window,
// checking yesterday's slots too for windows that straddle midnight.
func MissedSlot(clocks []string, now time.Time, window time.Duration) (string, bool) {
	if window <= 0 {
		return "", false
	}
	best := ""
	bestAge := window + time.Second
	for _, clock := range clocks {
		h, m, err := config.ParseClock(clock)
		if err != nil {
			continue
		}
		slot := time.Date(now.Year(), now.Month(), now.Day(), h, m, 0, 0, now.Location())
		for _, cand := range []time.Time{slot, slot.AddDate(0, 0, -1)} {
			age := now.Sub(cand)
			if age >= 0 && age <= window && age < bestAge {
				best = clock
				bestAge = age
			}
		}
	}
	return best, best != ""
}
