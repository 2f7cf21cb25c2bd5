package history

import (
	"context"
	"errors"
	"fmt"
	"time"

	"funda-finder/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Service reads and appends the price ledger
type Service struct {
	db *gorm.DB
}

// NewService creates a new price history service
func NewService(db *gorm.DB) *Service {
	return &Service{db: db}
}

// PriceChange is one ledger entry that moved the price away from the
// previous observation
type PriceChange struct {
	PropertyID    uint      `json:"property_id"`
	ExternalID    string    `json:"external_id"`
	City          string    `json:"city"`
	OldPrice      int       `json:"old_price"`
	NewPrice      int       `json:"new_price"`
	ChangePercent float64   `json:"change_percent"`
	ObservedAt    time.Time `json:"observed_at"`
}

// Append records a price observation inside tx. A second observation at the
// same instant overwrites the first instead of failing the unique key.
func Append(tx *gorm.DB, propertyID uint, price int, observedAt time.Time) error {
	row := models.PriceHistory{
		PropertyID: propertyID,
		Price:      price,
		ObservedAt: observedAt,
	}
	err := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "property_id"}, {Name: "observed_at"}},
		DoUpdates: clause.AssignmentColumns([]string{"price"}),
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("append price history for property %d: %w", propertyID, err)
	}
	return nil
}

// ForProperty returns the full ledger of a property, oldest first
func (s *Service) ForProperty(ctx context.Context, propertyID uint) ([]models.PriceHistory, error) {
	var rows []models.PriceHistory
	err := s.db.WithContext(ctx).
		Where("property_id = ?", propertyID).
		Order("observed_at ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// Window returns the observations of a property at or after since, oldest first
func (s *Service) Window(ctx context.Context, propertyID uint, since time.Time) ([]models.PriceHistory, error) {
	var rows []models.PriceHistory
	err := s.db.WithContext(ctx).
		Where("property_id = ? AND observed_at >= ?", propertyID, since).
		Order("observed_at ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// RecentChanges returns price movements observed at or after since, newest
// first. Initial observations have nothing to compare with and are skipped.
func (s *Service) RecentChanges(ctx context.Context, since time.Time, limit int) ([]PriceChange, error) {
	db := s.db.WithContext(ctx)

	var rows []models.PriceHistory
	query := db.Where("observed_at >= ?", since).Order("observed_at DESC").Order("id DESC")
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}

	changes := make([]PriceChange, 0, len(rows))
	propertyIDs := make(map[uint]struct{})
	for _, row := range rows {
		var prev models.PriceHistory
		err := db.Where("property_id = ? AND observed_at < ?", row.PropertyID, row.ObservedAt).
			Order("observed_at DESC").
			Take(&prev).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			continue
		} else if err != nil {
			return nil, err
		}
		if prev.Price == row.Price {
			continue
		}

		change := PriceChange{
			PropertyID: row.PropertyID,
			OldPrice:   prev.Price,
			NewPrice:   row.Price,
			ObservedAt: row.ObservedAt,
		}
		if prev.Price > 0 {
			change.ChangePercent = float64(row.Price-prev.Price) / float64(prev.Price) * 100
		}
		changes = append(changes, change)
		propertyIDs[row.PropertyID] = struct{}{}

		if limit > 0 && len(changes) >= limit {
			break
		}
	}

	if len(changes) == 0 {
		return changes, nil
	}

	ids := make([]uint, 0, len(propertyIDs))
	for id := range propertyIDs {
		ids = append(ids, id)
	}
	var props []models.Property
	if err := db.Select("id", "external_id", "city").Where("id IN ?", ids).Find(&props).Error; err != nil {
		return nil, err
	}
	byID := make(map[uint]models.Property, len(props))
	for _, p := range props {
		byID[p.ID] = p
	}
	for i := range changes {
		p := byID[changes[i].PropertyID]
		changes[i].ExternalID = p.ExternalID
		changes[i].City = p.City
	}

	return changes, nil
}
