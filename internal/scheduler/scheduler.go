package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"funda-finder/internal/config"
	"funda-finder/internal/etl"
	"funda-finder/internal/models"
	"funda-finder/internal/source"

	"github.com/robfig/cron/v3"
)

// ErrAlreadyRunning is returned when a batch is requested while one is in flight
var ErrAlreadyRunning = errors.New("a scrape batch is already running")

// BatchRunner runs the pipeline over many scopes
type BatchRunner interface {
	RunBatch(ctx context.Context, cities []string, types []models.ListingType, base source.Filters) []etl.RunResult
}

// RunReaper finalizes runs left in flight by a previous process
type RunReaper interface {
	ReapStaleRuns(ctx context.Context, maxAge time.Duration) ([]string, error)
}

// Scheduler handles scheduled scraping batches. At most one batch runs at a
// time, whether started by cron, RunNow or Trigger.
type Scheduler struct {
	cron   *cron.Cron
	runner BatchRunner
	reaper RunReaper
	config *config.Config

	running sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	isRunning bool
}

// NewScheduler creates a new scheduler. reaper may be nil.
func NewScheduler(runner BatchRunner, reaper RunReaper, cfg *config.Config) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		runner: runner,
		reaper: reaper,
		config: cfg,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start reaps stale runs and, when scheduling is enabled, starts the cron loop
func (s *Scheduler) Start() error {
	s.reapStaleRuns()

	if !s.config.Scheduling.Enabled {
		log.Println("Scheduler: Scheduled runs are disabled in configuration")
		return nil
	}

	spec := s.cronSpec()
	loc := s.location()
	s.cron = cron.New(
		cron.WithLocation(loc),
		cron.WithChain(cron.SkipIfStillRunning(cron.PrintfLogger(log.Default()))),
	)

	_, err := s.cron.AddFunc(spec, func() {
		log.Println("Scheduler: Starting scheduled scrape batch...")
		results, err := s.RunNow(s.ctx)
		if err != nil {
			log.Printf("Scheduler: Scheduled batch skipped: %v", err)
			return
		}
		log.Printf("Scheduler: Scheduled batch finished (%d scopes)", len(results))
	})
	if err != nil {
		return fmt.Errorf("invalid schedule %q: %w", spec, err)
	}

	s.cron.Start()
	s.isRunning = true
	log.Printf("Scheduler: Started (cron: %s, timezone: %s)", spec, loc)
	return nil
}

// Stop stops the cron loop, cancels an in-flight batch and waits for it
func (s *Scheduler) Stop() {
	s.cancel()
	if s.isRunning {
		<-s.cron.Stop().Done()
		s.isRunning = false
	}
	s.wg.Wait()
	log.Println("Scheduler: Stopped")
}

// RunNow runs one batch over the configured scopes and waits for it
func (s *Scheduler) RunNow(ctx context.Context) ([]etl.RunResult, error) {
	if !s.running.TryLock() {
		return nil, ErrAlreadyRunning
	}
	defer s.running.Unlock()
	return s.runBatch(ctx)
}

// Trigger starts one batch in the background. It fails immediately when a
// batch is already running.
func (s *Scheduler) Trigger() error {
	plan, err := etl.PlanFromConfig(s.config.Scraping)
	if err != nil {
		return err
	}
	if !s.running.TryLock() {
		return ErrAlreadyRunning
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.running.Unlock()
		log.Printf("Scheduler: Manual trigger - running %d scopes", plan.Scopes())
		s.runner.RunBatch(s.ctx, plan.Cities, plan.Types, plan.Base)
	}()
	return nil
}

func (s *Scheduler) runBatch(ctx context.Context) ([]etl.RunResult, error) {
	plan, err := etl.PlanFromConfig(s.config.Scraping)
	if err != nil {
		return nil, err
	}
	return s.runner.RunBatch(ctx, plan.Cities, plan.Types, plan.Base), nil
}

func (s *Scheduler) reapStaleRuns() {
	if s.reaper == nil {
		return
	}
	maxAge := s.config.Cleanup.GetStaleRunAge()
	if maxAge <= 0 {
		return
	}
	reaped, err := s.reaper.ReapStaleRuns(s.ctx, maxAge)
	if err != nil {
		log.Printf("Scheduler: Failed to reap stale runs: %v", err)
		return
	}
	if len(reaped) > 0 {
		log.Printf("Scheduler: Finalized %d abandoned runs", len(reaped))
	}
}

// cronSpec prefers the cron expression and falls back to the daily run time
func (s *Scheduler) cronSpec() string {
	if s.config.Scheduling.Cron != "" {
		return s.config.Scheduling.Cron
	}
	return parseDailyRunTime(s.config.Scheduling.DailyRunTime)
}

func (s *Scheduler) location() *time.Location {
	tz := s.config.Scheduling.Timezone
	if tz == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		log.Printf("Scheduler: Unknown timezone %q, using UTC: %v", tz, err)
		return time.UTC
	}
	return loc
}

// parseDailyRunTime converts HH:MM format to cron specification
// Example: "02:00" -> "0 2 * * *" (run at 2:00 AM every day)
func parseDailyRunTime(timeStr string) string {
	var hour, minute int
	n, _ := fmt.Sscanf(timeStr, "%d:%d", &hour, &minute)
	if n == 2 && hour >= 0 && hour < 24 && minute >= 0 && minute < 60 {
		return fmt.Sprintf("%d %d * * *", minute, hour)
	}

	log.Printf("Scheduler: Failed to parse time '%s', using default 06:00", timeStr)
	return "0 6 * * *"
}
