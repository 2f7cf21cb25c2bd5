package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"funda-finder/internal/history"
	"funda-finder/internal/models"
	"funda-finder/internal/validation"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const defaultBatchSize = 100

// LoadResult tallies what a reconciliation did to the store
type LoadResult struct {
	New       int      `json:"new"`
	Updated   int      `json:"updated"`
	Unchanged int      `json:"unchanged"`
	Inactive  int      `json:"inactive"`
	DBErrors  int      `json:"db_errors"`
	Errors    []string `json:"errors,omitempty"`
}

// Options configures a Reconciler
type Options struct {
	BatchSize int
	Now       func() time.Time
}

// Reconciler brings the stored properties of a scope in line with the
// latest scrape of that scope
type Reconciler struct {
	db        *gorm.DB
	batchSize int
	now       func() time.Time
}

// New creates a reconciler writing through db
func New(db *gorm.DB, opts Options) *Reconciler {
	if opts.BatchSize <= 0 {
		opts.BatchSize = defaultBatchSize
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Reconciler{db: db, batchSize: opts.BatchSize, now: opts.Now}
}

type outcome int

const (
	outcomeUnchanged outcome = iota
	outcomeNew
	outcomeUpdated
)

type batchTally struct {
	new, updated, unchanged, dbErrors int
	errors                            []string
}

// Reconcile upserts listings in batches and then marks every active
// property of scope that was not seen as inactive.
//
// Each batch commits on its own and each listing runs in a savepoint, so a
// bad row costs one db error, not the batch. A batch whose commit fails
// counts all of its listings as db errors. On cancellation the counts of
// the batches committed so far are returned along with the error; a batch
// that has started always runs to completion.
func (r *Reconciler) Reconcile(ctx context.Context, scope models.Scope, listings []validation.Listing) (*LoadResult, error) {
	result := &LoadResult{}
	now := validation.NormalizeTime(r.now())

	seen := make(map[string]struct{}, len(listings))
	for i := range listings {
		seen[listings[i].ExternalID] = struct{}{}
	}

	for start := 0; start < len(listings); start += r.batchSize {
		if err := ctx.Err(); err != nil {
			return result, fmt.Errorf("reconcile %s interrupted after %d of %d listings: %w", scope, start, len(listings), err)
		}

		end := start + r.batchSize
		if end > len(listings) {
			end = len(listings)
		}
		batch := listings[start:end]

		var tally batchTally
		err := r.db.WithContext(context.WithoutCancel(ctx)).Transaction(func(tx *gorm.DB) error {
			tally = r.loadBatch(tx, batch, now)
			return nil
		})
		if err != nil {
			log.Printf("Reconciler: batch %d-%d for %s failed to commit: %v", start, end, scope, err)
			result.DBErrors += len(batch)
			result.Errors = append(result.Errors, fmt.Sprintf("batch %d-%d: commit failed: %v", start, end, err))
			continue
		}

		result.New += tally.new
		result.Updated += tally.updated
		result.Unchanged += tally.unchanged
		result.DBErrors += tally.dbErrors
		result.Errors = append(result.Errors, tally.errors...)
	}

	if err := ctx.Err(); err != nil {
		return result, fmt.Errorf("reconcile %s interrupted before delisting: %w", scope, err)
	}

	inactive, err := r.markInactive(ctx, scope, seen, now)
	result.Inactive = inactive
	if err != nil {
		return result, fmt.Errorf("failed to mark inactive properties for %s: %w", scope, err)
	}

	log.Printf("Reconciler: %s new=%d updated=%d unchanged=%d inactive=%d db_errors=%d",
		scope, result.New, result.Updated, result.Unchanged, result.Inactive, result.DBErrors)
	return result, nil
}

func (r *Reconciler) loadBatch(tx *gorm.DB, batch []validation.Listing, now time.Time) batchTally {
	var tally batchTally
	for i := range batch {
		l := &batch[i]

		var out outcome
		err := tx.Transaction(func(itx *gorm.DB) error {
			var err error
			out, err = r.apply(itx, l, now)
			return err
		})
		if err != nil {
			log.Printf("Reconciler: failed to store listing %s: %v", l.ExternalID, err)
			tally.dbErrors++
			tally.errors = append(tally.errors, fmt.Sprintf("%s: %v", l.ExternalID, err))
			continue
		}

		switch out {
		case outcomeNew:
			tally.new++
		case outcomeUpdated:
			tally.updated++
		default:
			tally.unchanged++
		}
	}
	return tally
}

// apply inserts or updates one listing inside tx
func (r *Reconciler) apply(tx *gorm.DB, l *validation.Listing, now time.Time) (outcome, error) {
	var existing models.Property
	err := tx.Where("external_id = ?", l.ExternalID).Take(&existing).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return outcomeNew, r.insert(tx, l, now)
	}
	if err != nil {
		return outcomeUnchanged, fmt.Errorf("lookup: %w", err)
	}

	changes := diff(&existing, l)
	reactivated := !existing.IsActive()
	if len(changes) == 0 && !reactivated {
		return outcomeUnchanged, nil
	}

	_, priceChanged := changes["price"]
	changes["status"] = models.PropertyStatusActive
	changes["updated_at"] = now
	if raw := l.RawJSON(); raw != nil {
		changes["raw_json"] = datatypes.JSON(raw)
	}

	if err := tx.Model(&models.Property{}).Where("id = ?", existing.ID).Updates(changes).Error; err != nil {
		return outcomeUnchanged, fmt.Errorf("update: %w", err)
	}
	if priceChanged {
		if err := history.Append(tx, existing.ID, l.Price, l.ScrapedAt); err != nil {
			return outcomeUnchanged, err
		}
	}
	if reactivated {
		log.Printf("Reconciler: %s is listed again", l.ExternalID)
	}
	return outcomeUpdated, nil
}

func (r *Reconciler) insert(tx *gorm.DB, l *validation.Listing, now time.Time) error {
	price := l.Price
	p := models.Property{
		ExternalID:  l.ExternalID,
		URL:         l.URL,
		Address:     l.Address,
		City:        l.City,
		PostalCode:  l.PostalCode,
		Price:       &price,
		LivingArea:  l.LivingArea,
		PlotArea:    l.PlotArea,
		Rooms:       l.Rooms,
		Bedrooms:    l.Bedrooms,
		Bathrooms:   l.Bathrooms,
		YearBuilt:   l.YearBuilt,
		EnergyLabel: l.EnergyLabel,
		Lat:         l.Lat,
		Lon:         l.Lon,
		Description: l.Description,
		ListingType: l.ListingType,
		Status:      models.PropertyStatusActive,
		FirstSeenAt: l.ScrapedAt,
		ScrapedAt:   l.ScrapedAt,
		UpdatedAt:   now,
	}
	if raw := l.RawJSON(); raw != nil {
		p.RawJSON = datatypes.JSON(raw)
	}
	if err := tx.Create(&p).Error; err != nil {
		return fmt.Errorf("insert: %w", err)
	}
	return history.Append(tx, p.ID, l.Price, l.ScrapedAt)
}

// markInactive delists active properties of scope missing from seen. City
// names are compared by slug so "Den Haag" and "den-haag" are one scope.
func (r *Reconciler) markInactive(ctx context.Context, scope models.Scope, seen map[string]struct{}, now time.Time) (int, error) {
	if scope.Slug() == "" || !scope.ListingType.Valid() {
		return 0, nil
	}

	db := r.db.WithContext(context.WithoutCancel(ctx))

	var active []struct {
		ID         uint
		ExternalID string
	}
	err := db.Model(&models.Property{}).
		Select("id", "external_id").
		Where("status = ? AND listing_type = ?", models.PropertyStatusActive, scope.ListingType).
		Where("LOWER(REPLACE(city, ' ', '-')) = ?", scope.Slug()).
		Find(&active).Error
	if err != nil {
		return 0, err
	}

	var stale []uint
	for _, p := range active {
		if _, ok := seen[p.ExternalID]; !ok {
			stale = append(stale, p.ID)
		}
	}

	marked := 0
	for start := 0; start < len(stale); start += r.batchSize {
		end := start + r.batchSize
		if end > len(stale) {
			end = len(stale)
		}
		res := db.Model(&models.Property{}).
			Where("id IN ? AND status = ?", stale[start:end], models.PropertyStatusActive).
			Updates(map[string]any{
				"status":     models.PropertyStatusInactive,
				"updated_at": now,
			})
		if res.Error != nil {
			return marked, res.Error
		}
		marked += int(res.RowsAffected)
	}

	if marked > 0 {
		log.Printf("Reconciler: marked %d properties inactive in %s", marked, scope)
	}
	return marked, nil
}
