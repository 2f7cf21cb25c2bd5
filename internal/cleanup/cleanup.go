package cleanup

import (
	"context"
	"fmt"
	"log"
	"time"

	"funda-finder/internal/models"
	"funda-finder/internal/runs"

	"gorm.io/gorm"
)

// Service handles housekeeping: abandoned runs and long-inactive properties
type Service struct {
	db      *gorm.DB
	tracker *runs.Tracker
	now     func() time.Time
}

// NewService creates a new cleanup service. A nil clock means time.Now.
func NewService(db *gorm.DB, tracker *runs.Tracker, now func() time.Time) *Service {
	if now == nil {
		now = time.Now
	}
	return &Service{db: db, tracker: tracker, now: now}
}

// PurgeConfig holds configuration for purge operations
type PurgeConfig struct {
	RetentionDays    int  // Days an inactive property is kept after its last change
	MaxDeletionCount int  // Safety limit for one run
	DryRun           bool // Only report what would be deleted
}

// DefaultPurgeConfig returns default configuration. Dry run is on.
func DefaultPurgeConfig() PurgeConfig {
	return PurgeConfig{
		RetentionDays:    180,
		MaxDeletionCount: 10000,
		DryRun:           true,
	}
}

// PurgeResult holds the result of a purge operation
type PurgeResult struct {
	TargetCount  int       `json:"target_count"`
	DeletedCount int       `json:"deleted_count"`
	ErrorCount   int       `json:"error_count"`
	DryRun       bool      `json:"dry_run"`
	ExecutedAt   time.Time `json:"executed_at"`
	DeletedIDs   []string  `json:"deleted_ids"`
	Errors       []string  `json:"errors,omitempty"`
}

// ReapStaleRuns finalizes runs that are still in flight after maxAge as
// failed, keeping the counts they had reached. It returns the reaped run ids.
func (s *Service) ReapStaleRuns(ctx context.Context, maxAge time.Duration) ([]string, error) {
	inFlight, err := s.tracker.InProgress(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list in-flight runs: %w", err)
	}

	cutoff := s.now().UTC().Add(-maxAge)
	var reaped []string
	for _, run := range inFlight {
		if !run.StartedAt.Before(cutoff) {
			continue
		}
		counts := runs.Counts{
			Found:            run.ListingsFound,
			New:              run.ListingsNew,
			Updated:          run.ListingsUpdated,
			Inactive:         run.ListingsInactive,
			ValidationErrors: run.ValidationErrors,
			DBErrors:         run.DBErrors,
		}
		msg := fmt.Sprintf("abandoned: still running after %s", maxAge)
		if err := s.tracker.Fail(ctx, run.RunID, counts, msg); err != nil {
			log.Printf("Cleanup: failed to reap run %s: %v", run.RunID, err)
			continue
		}
		reaped = append(reaped, run.RunID)
	}

	if len(reaped) > 0 {
		log.Printf("Cleanup: reaped %d stale runs", len(reaped))
	}
	return reaped, nil
}

// FindExpired returns inactive properties whose last change is older than retentionDays
func (s *Service) FindExpired(ctx context.Context, retentionDays int) ([]models.Property, error) {
	var properties []models.Property
	cutoff := s.now().UTC().AddDate(0, 0, -retentionDays)

	err := s.db.WithContext(ctx).
		Where("status = ? AND updated_at < ?", models.PropertyStatusInactive, cutoff).
		Order("id ASC").
		Find(&properties).Error
	if err != nil {
		return nil, fmt.Errorf("failed to find expired properties: %w", err)
	}
	return properties, nil
}

// PurgeInactive physically deletes expired inactive properties together
// with their price history, one transaction per property
func (s *Service) PurgeInactive(ctx context.Context, cfg PurgeConfig) (*PurgeResult, error) {
	result := &PurgeResult{
		DryRun:     cfg.DryRun,
		ExecutedAt: s.now().UTC(),
	}

	expired, err := s.FindExpired(ctx, cfg.RetentionDays)
	if err != nil {
		return nil, err
	}
	result.TargetCount = len(expired)
	if result.TargetCount == 0 {
		return result, nil
	}

	if cfg.MaxDeletionCount > 0 && result.TargetCount > cfg.MaxDeletionCount {
		return nil, fmt.Errorf("safety check failed: %d properties exceed max deletion limit of %d",
			result.TargetCount, cfg.MaxDeletionCount)
	}

	log.Printf("Cleanup: purging %d inactive properties (retention: %d days, dry-run: %v)",
		result.TargetCount, cfg.RetentionDays, cfg.DryRun)

	for i := range expired {
		prop := expired[i]
		if cfg.DryRun {
			log.Printf("Cleanup: [DRY-RUN] would delete property %s (%s, last change %s)",
				prop.ExternalID, prop.City, prop.UpdatedAt.Format("2006-01-02"))
			result.DeletedIDs = append(result.DeletedIDs, prop.ExternalID)
			result.DeletedCount++
			continue
		}

		err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := tx.Where("property_id = ?", prop.ID).Delete(&models.PriceHistory{}).Error; err != nil {
				return fmt.Errorf("delete history: %w", err)
			}
			return tx.Delete(&models.Property{}, prop.ID).Error
		})
		if err != nil {
			msg := fmt.Sprintf("failed to delete property %s: %v", prop.ExternalID, err)
			log.Printf("Cleanup: %s", msg)
			result.Errors = append(result.Errors, msg)
			result.ErrorCount++
			continue
		}
		result.DeletedIDs = append(result.DeletedIDs, prop.ExternalID)
		result.DeletedCount++
	}

	log.Printf("Cleanup: purge completed: %d/%d deleted, %d errors (dry-run: %v)",
		result.DeletedCount, result.TargetCount, result.ErrorCount, cfg.DryRun)
	return result, nil
}

// Stats summarizes what housekeeping would act on
type Stats struct {
	ActiveProperties   int64 `json:"active_properties"`
	InactiveProperties int64 `json:"inactive_properties"`
	ExpiredProperties  int64 `json:"expired_properties"`
	HistoryRows        int64 `json:"history_rows"`
	RunsInProgress     int64 `json:"runs_in_progress"`
}

// GetStats returns housekeeping counters for the given retention
func (s *Service) GetStats(ctx context.Context, retentionDays int) (*Stats, error) {
	db := s.db.WithContext(ctx)
	stats := &Stats{}

	if err := db.Model(&models.Property{}).
		Where("status = ?", models.PropertyStatusActive).
		Count(&stats.ActiveProperties).Error; err != nil {
		return nil, err
	}
	if err := db.Model(&models.Property{}).
		Where("status = ?", models.PropertyStatusInactive).
		Count(&stats.InactiveProperties).Error; err != nil {
		return nil, err
	}
	cutoff := s.now().UTC().AddDate(0, 0, -retentionDays)
	if err := db.Model(&models.Property{}).
		Where("status = ? AND updated_at < ?", models.PropertyStatusInactive, cutoff).
		Count(&stats.ExpiredProperties).Error; err != nil {
		return nil, err
	}
	if err := db.Model(&models.PriceHistory{}).Count(&stats.HistoryRows).Error; err != nil {
		return nil, err
	}
	if err := db.Model(&models.ScrapeMeta{}).
		Where("finished_at IS NULL").
		Count(&stats.RunsInProgress).Error; err != nil {
		return nil, err
	}
	return stats, nil
}
