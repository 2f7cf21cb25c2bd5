package reconcile

import (
	"funda-finder/internal/models"
	"funda-finder/internal/validation"
)

// diff compares the tracked fields of a stored property with an incoming
// listing and returns the columns that need updating
func diff(p *models.Property, l *validation.Listing) map[string]any {
	changes := map[string]any{}

	if p.Price == nil || *p.Price != l.Price {
		changes["price"] = l.Price
	}
	if p.URL != l.URL {
		changes["url"] = l.URL
	}
	if p.Address != l.Address {
		changes["address"] = l.Address
	}
	if !strPtrEqual(p.PostalCode, l.PostalCode) {
		changes["postal_code"] = l.PostalCode
	}
	if !intPtrEqual(p.LivingArea, l.LivingArea) {
		changes["living_area"] = l.LivingArea
	}
	if !intPtrEqual(p.PlotArea, l.PlotArea) {
		changes["plot_area"] = l.PlotArea
	}
	if !intPtrEqual(p.Rooms, l.Rooms) {
		changes["rooms"] = l.Rooms
	}
	if !intPtrEqual(p.Bedrooms, l.Bedrooms) {
		changes["bedrooms"] = l.Bedrooms
	}
	if !intPtrEqual(p.Bathrooms, l.Bathrooms) {
		changes["bathrooms"] = l.Bathrooms
	}
	if !intPtrEqual(p.YearBuilt, l.YearBuilt) {
		changes["year_built"] = l.YearBuilt
	}
	if !strPtrEqual(p.EnergyLabel, l.EnergyLabel) {
		changes["energy_label"] = l.EnergyLabel
	}
	if !float64PtrEqual(p.Lat, l.Lat) {
		changes["lat"] = l.Lat
	}
	if !float64PtrEqual(p.Lon, l.Lon) {
		changes["lon"] = l.Lon
	}
	if !strPtrEqual(p.Description, l.Description) {
		changes["description"] = l.Description
	}
	if !p.ScrapedAt.Equal(l.ScrapedAt) {
		changes["scraped_at"] = l.ScrapedAt
	}

	return changes
}

func intPtrEqual(a, b *int) bool {
	if a == nil && b == nil {
		return true
	}
	if a == nil || b == nil {
		return false
	}
	return *a == *b
}

func float64PtrEqual(a, b *float64) bool {
	if a == nil && b == nil {
		return true
	}
	if a == nil || b == nil {
		return false
	}
	return *a == *b
}

func strPtrEqual(a, b *string) bool {
	if a == nil && b == nil {
		return true
	}
	if a == nil || b == nil {
		return false
	}
	return *a == *b
}
