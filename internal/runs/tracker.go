package runs

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"funda-finder/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

var (
	// ErrRunNotFound is returned when no run has the given id
	ErrRunNotFound = errors.New("run not found")
	// ErrRunFinalized is returned when mutating a run that already finished
	ErrRunFinalized = errors.New("run already finalized")
)

// Counts are the per-run tallies written when a run is finalized
type Counts struct {
	Found            int
	New              int
	Updated          int
	Inactive         int
	ValidationErrors int
	DBErrors         int
}

// Errors is the total error count stored on the run record
func (c Counts) Errors() int {
	return c.ValidationErrors + c.DBErrors
}

// Tracker persists ScrapeMeta rows. Every mutation is guarded by
// finished_at IS NULL so a finalized run is never touched again.
type Tracker struct {
	db  *gorm.DB
	now func() time.Time
}

// NewTracker creates a run tracker. A nil clock means time.Now.
func NewTracker(db *gorm.DB, now func() time.Time) *Tracker {
	if now == nil {
		now = time.Now
	}
	return &Tracker{db: db, now: now}
}

func (t *Tracker) stamp() time.Time {
	return t.now().UTC().Truncate(time.Millisecond)
}

// Start opens a new run for scope
func (t *Tracker) Start(ctx context.Context, scope models.Scope) (*models.ScrapeMeta, error) {
	run := &models.ScrapeMeta{
		RunID:       strings.ReplaceAll(uuid.NewString(), "-", ""),
		City:        scope.City,
		ListingType: scope.ListingType,
		Status:      models.RunStatusRunning,
		StartedAt:   t.stamp(),
	}
	if err := t.db.WithContext(ctx).Create(run).Error; err != nil {
		return nil, fmt.Errorf("failed to start run for %s: %w", scope, err)
	}
	log.Printf("Tracker: started run %s for %s", run.RunID, scope)
	return run, nil
}

// RecordFound stores how many listings the source returned
func (t *Tracker) RecordFound(ctx context.Context, runID string, found int) error {
	return t.update(ctx, runID, map[string]any{"listings_found": found})
}

// Update writes intermediate counts without finalizing the run
func (t *Tracker) Update(ctx context.Context, runID string, c Counts) error {
	return t.update(ctx, runID, countColumns(c))
}

// Finish marks the run completed with its final counts
func (t *Tracker) Finish(ctx context.Context, runID string, c Counts) error {
	cols := countColumns(c)
	cols["status"] = models.RunStatusCompleted
	cols["finished_at"] = t.stamp()
	if err := t.update(ctx, runID, cols); err != nil {
		return err
	}
	log.Printf("Tracker: run %s completed (found=%d new=%d updated=%d inactive=%d errors=%d)",
		runID, c.Found, c.New, c.Updated, c.Inactive, c.Errors())
	return nil
}

// Fail marks the run failed, keeping whatever counts were reached
func (t *Tracker) Fail(ctx context.Context, runID string, c Counts, message string) error {
	cols := countColumns(c)
	cols["status"] = models.RunStatusFailed
	cols["finished_at"] = t.stamp()
	cols["error_message"] = message
	if err := t.update(ctx, runID, cols); err != nil {
		return err
	}
	log.Printf("Tracker: run %s failed: %s", runID, message)
	return nil
}

func (t *Tracker) update(ctx context.Context, runID string, cols map[string]any) error {
	res := t.db.WithContext(ctx).Model(&models.ScrapeMeta{}).
		Where("run_id = ? AND finished_at IS NULL", runID).
		Updates(cols)
	if res.Error != nil {
		return fmt.Errorf("failed to update run %s: %w", runID, res.Error)
	}
	if res.RowsAffected > 0 {
		return nil
	}

	// MySQL reports changed rows, not matched rows, so zero can also mean
	// the values were already current
	run, err := t.Get(ctx, runID)
	if err != nil {
		return err
	}
	if run.InProgress() {
		return nil
	}
	return fmt.Errorf("run %s: %w", runID, ErrRunFinalized)
}

// Get returns one run by id
func (t *Tracker) Get(ctx context.Context, runID string) (*models.ScrapeMeta, error) {
	var run models.ScrapeMeta
	err := t.db.WithContext(ctx).Where("run_id = ?", runID).Take(&run).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("run %s: %w", runID, ErrRunNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &run, nil
}

// Recent returns the latest runs, most recent first
func (t *Tracker) Recent(ctx context.Context, limit int) ([]models.ScrapeMeta, error) {
	if limit <= 0 {
		limit = 20
	}
	var runs []models.ScrapeMeta
	err := t.db.WithContext(ctx).
		Order("started_at DESC").Order("id DESC").
		Limit(limit).
		Find(&runs).Error
	if err != nil {
		return nil, err
	}
	return runs, nil
}

// InProgress returns runs that have not been finalized, oldest first
func (t *Tracker) InProgress(ctx context.Context) ([]models.ScrapeMeta, error) {
	var runs []models.ScrapeMeta
	err := t.db.WithContext(ctx).
		Where("finished_at IS NULL").
		Order("started_at ASC").
		Find(&runs).Error
	if err != nil {
		return nil, err
	}
	return runs, nil
}

func countColumns(c Counts) map[string]any {
	return map[string]any{
		"listings_found":    c.Found,
		"listings_new":      c.New,
		"listings_updated":  c.Updated,
		"listings_inactive": c.Inactive,
		"validation_errors": c.ValidationErrors,
		"db_errors":         c.DBErrors,
		"errors":            c.Errors(),
	}
}
