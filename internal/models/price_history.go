package models

import "time"

// PriceHistory is one observation in a property's append-only price ledger.
// A row is written on first sighting and whenever the observed price differs
// from the stored one.
type PriceHistory struct {
	ID         uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	PropertyID uint      `gorm:"not null;uniqueIndex:uq_property_observation,priority:1" json:"property_id"`
	Price      int       `gorm:"not null" json:"price"`
	ObservedAt time.Time `gorm:"not null;uniqueIndex:uq_property_observation,priority:2;index:idx_observed_at" json:"observed_at"`
}

// TableName specifies the table name
func (PriceHistory) TableName() string {
	return "price_history"
}
