package models

import (
	"time"

	"gorm.io/datatypes"
)

// Property is the durable record for one upstream listing, keyed by ExternalID.
type Property struct {
	ID         uint   `gorm:"primaryKey;autoIncrement" json:"id"`
	ExternalID string `gorm:"type:varchar(64);not null;uniqueIndex" json:"external_id"`
	URL        string `gorm:"type:varchar(500);not null" json:"url"`

	// Address
	Address    string  `gorm:"type:varchar(255)" json:"address"`
	City       string  `gorm:"type:varchar(100);not null;index:idx_property_scope,priority:1" json:"city"`
	PostalCode *string `gorm:"type:varchar(10)" json:"postal_code,omitempty"`

	// Attributes used for cohorts and scoring
	Price       *int     `gorm:"index" json:"price,omitempty"`
	LivingArea  *int     `json:"living_area,omitempty"`
	PlotArea    *int     `json:"plot_area,omitempty"`
	Rooms       *int     `gorm:"index" json:"rooms,omitempty"`
	Bedrooms    *int     `json:"bedrooms,omitempty"`
	Bathrooms   *int     `json:"bathrooms,omitempty"`
	YearBuilt   *int     `json:"year_built,omitempty"`
	EnergyLabel *string  `gorm:"type:varchar(8)" json:"energy_label,omitempty"`
	Lat         *float64 `json:"lat,omitempty"`
	Lon         *float64 `json:"lon,omitempty"`
	Description *string  `gorm:"type:text" json:"description,omitempty"`

	ListingType ListingType    `gorm:"type:varchar(10);not null;index:idx_property_scope,priority:2" json:"listing_type"`
	Status      PropertyStatus `gorm:"type:varchar(20);not null;default:'active';index:idx_property_scope,priority:3" json:"status"`
	RawJSON     datatypes.JSON `json:"raw_json,omitempty"`

	FirstSeenAt time.Time `gorm:"not null" json:"first_seen_at"`
	ScrapedAt   time.Time `gorm:"not null;index" json:"scraped_at"`
	CreatedAt   time.Time `gorm:"not null;autoCreateTime" json:"created_at"`
	// UpdatedAt records the last material change, so the ORM must not touch it.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime:false" json:"updated_at"`

	PriceHistory []PriceHistory `gorm:"foreignKey:PropertyID;constraint:OnDelete:CASCADE" json:"price_history,omitempty"`
}

// ListingType distinguishes sale listings from rentals
type ListingType string

const (
	ListingTypeBuy  ListingType = "buy"
	ListingTypeRent ListingType = "rent"
)

// Valid reports whether t is a known listing type
func (t ListingType) Valid() bool {
	return t == ListingTypeBuy || t == ListingTypeRent
}

// ParseListingType accepts "buy"/"rent" and the Dutch "koop"/"huur"
func ParseListingType(s string) (ListingType, bool) {
	switch s {
	case "buy", "koop":
		return ListingTypeBuy, true
	case "rent", "huur":
		return ListingTypeRent, true
	}
	return "", false
}

// PropertyStatus is the lifecycle state within a scrape scope
type PropertyStatus string

const (
	PropertyStatusActive   PropertyStatus = "active"
	PropertyStatusInactive PropertyStatus = "inactive"
)

// TableName pins the table name
func (Property) TableName() string {
	return "properties"
}

// IsActive reports whether the property was present in the latest scrape
func (p *Property) IsActive() bool {
	return p.Status == PropertyStatusActive
}

// PricePerSqm returns price divided by living area, or false when either is missing
func (p *Property) PricePerSqm() (float64, bool) {
	if p.Price == nil || p.LivingArea == nil || *p.Price <= 0 || *p.LivingArea <= 0 {
		return 0, false
	}
	return float64(*p.Price) / float64(*p.LivingArea), true
}
