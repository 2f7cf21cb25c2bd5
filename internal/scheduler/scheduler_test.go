package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"funda-finder/internal/config"
	"funda-finder/internal/etl"
	"funda-finder/internal/models"
	"funda-finder/internal/source"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type batchCall struct {
	cities []string
	types  []models.ListingType
	base   source.Filters
}

type fakeRunner struct {
	mu      sync.Mutex
	calls   []batchCall
	release chan struct{}
	started chan struct{}
}

func (f *fakeRunner) RunBatch(ctx context.Context, cities []string, types []models.ListingType, base source.Filters) []etl.RunResult {
	f.mu.Lock()
	f.calls = append(f.calls, batchCall{cities: cities, types: types, base: base})
	f.mu.Unlock()

	if f.started != nil {
		f.started <- struct{}{}
	}
	if f.release != nil {
		select {
		case <-f.release:
		case <-ctx.Done():
		}
	}

	results := make([]etl.RunResult, 0, len(cities)*len(types))
	for _, c := range cities {
		for _, lt := range types {
			results = append(results, etl.RunResult{Scope: models.Scope{City: c, ListingType: lt}, Success: true})
		}
	}
	return results
}

func (f *fakeRunner) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type fakeReaper struct {
	maxAge time.Duration
	calls  int
}

func (f *fakeReaper) ReapStaleRuns(_ context.Context, maxAge time.Duration) ([]string, error) {
	f.calls++
	f.maxAge = maxAge
	return []string{"abc"}, nil
}

func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Scraping.Cities = []string{"amsterdam", "utrecht"}
	cfg.Scraping.ListingTypes = []string{"buy", "rent"}
	cfg.Scheduling.Timezone = "UTC"
	return cfg
}

func TestParseDailyRunTime(t *testing.T) {
	assert.Equal(t, "0 2 * * *", parseDailyRunTime("02:00"))
	assert.Equal(t, "30 14 * * *", parseDailyRunTime("14:30"))
	assert.Equal(t, "0 6 * * *", parseDailyRunTime("noon"))
	assert.Equal(t, "0 6 * * *", parseDailyRunTime("25:00"))
}

func TestCronSpecPrefersExpression(t *testing.T) {
	cfg := testConfig()
	cfg.Scheduling.Cron = "15 5 * * 1"
	cfg.Scheduling.DailyRunTime = "02:00"
	assert.Equal(t, "15 5 * * 1", NewScheduler(&fakeRunner{}, nil, cfg).cronSpec())

	cfg.Scheduling.Cron = ""
	assert.Equal(t, "0 2 * * *", NewScheduler(&fakeRunner{}, nil, cfg).cronSpec())
}

func TestLocationFallsBackToUTC(t *testing.T) {
	cfg := testConfig()
	cfg.Scheduling.Timezone = "Nowhere/Atlantis"
	assert.Equal(t, time.UTC, NewScheduler(&fakeRunner{}, nil, cfg).location())
}

func TestRunNowCoversConfiguredScopes(t *testing.T) {
	runner := &fakeRunner{}
	s := NewScheduler(runner, nil, testConfig())

	results, err := s.RunNow(context.Background())
	require.NoError(t, err)
	assert.Len(t, results, 4)

	require.Equal(t, 1, runner.callCount())
	call := runner.calls[0]
	assert.Equal(t, []string{"amsterdam", "utrecht"}, call.cities)
	assert.Equal(t, []models.ListingType{models.ListingTypeBuy, models.ListingTypeRent}, call.types)
	assert.Equal(t, 500, call.base.MaxResults)
}

func TestOnlyOneBatchAtATime(t *testing.T) {
	runner := &fakeRunner{release: make(chan struct{}), started: make(chan struct{}, 1)}
	s := NewScheduler(runner, nil, testConfig())

	require.NoError(t, s.Trigger())
	<-runner.started

	_, err := s.RunNow(context.Background())
	assert.ErrorIs(t, err, ErrAlreadyRunning)
	assert.ErrorIs(t, s.Trigger(), ErrAlreadyRunning)

	close(runner.release)
	s.Stop()

	runner.release = nil
	runner.started = nil
	_, err = s.RunNow(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, 2, runner.callCount())
}

func TestStopCancelsTriggeredBatch(t *testing.T) {
	runner := &fakeRunner{release: make(chan struct{}), started: make(chan struct{}, 1)}
	s := NewScheduler(runner, nil, testConfig())

	require.NoError(t, s.Trigger())
	<-runner.started

	done := make(chan struct{})
	go func() {
		s.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return")
	}
}

func TestStartReapsStaleRuns(t *testing.T) {
	reaper := &fakeReaper{}
	cfg := testConfig()
	cfg.Cleanup.StaleRunMinutes = 45

	s := NewScheduler(&fakeRunner{}, reaper, cfg)
	require.NoError(t, s.Start())
	defer s.Stop()

	assert.Equal(t, 1, reaper.calls)
	assert.Equal(t, 45*time.Minute, reaper.maxAge)
	assert.False(t, s.isRunning)
}

func TestStartWithSchedule(t *testing.T) {
	cfg := testConfig()
	cfg.Scheduling.Enabled = true
	cfg.Scheduling.Cron = "0 6 * * *"

	s := NewScheduler(&fakeRunner{}, nil, cfg)
	require.NoError(t, s.Start())
	assert.True(t, s.isRunning)
	assert.Len(t, s.cron.Entries(), 1)
	s.Stop()
	assert.False(t, s.isRunning)
}

func TestStartRejectsInvalidCron(t *testing.T) {
	cfg := testConfig()
	cfg.Scheduling.Enabled = true
	cfg.Scheduling.Cron = "every morning"

	s := NewScheduler(&fakeRunner{}, nil, cfg)
	assert.Error(t, s.Start())
}
