package source

import (
	"context"
	"errors"
	"strings"
	"time"

	"funda-finder/internal/models"
)

// ErrAllSourcesExhausted is matched by errors.Is when every configured source failed
var ErrAllSourcesExhausted = errors.New("all listing sources exhausted")

// RawListing is a listing as produced by a source, before validation.
// Price and the area fields stay loosely typed; sources hand over whatever
// the upstream returned ("€ 450.000 k.k.", "120 m²", 450000).
type RawListing struct {
	ExternalID  string
	URL         string
	Address     string
	City        string
	PostalCode  string
	ListingType string
	Price       any
	LivingArea  any
	PlotArea    any
	Rooms       *int
	Bedrooms    *int
	Bathrooms   *int
	YearBuilt   *int
	EnergyLabel string
	Lat         *float64
	Lon         *float64
	Description string
	Source      string
	Raw         map[string]any
	ScrapedAt   time.Time
}

// Filters are the search parameters passed to a Source
type Filters struct {
	City        string
	ListingType models.ListingType
	PriceMin    *int
	PriceMax    *int
	MaxResults  int
}

// Source produces raw listings for a search
type Source interface {
	Name() string
	Search(ctx context.Context, filters Filters) ([]RawListing, error)
}

// ExhaustedError carries the failure of every source in a fallback chain
type ExhaustedError struct {
	Errs []error
}

func (e *ExhaustedError) Error() string {
	if len(e.Errs) == 0 {
		return ErrAllSourcesExhausted.Error()
	}
	msgs := make([]string, len(e.Errs))
	for i, err := range e.Errs {
		msgs[i] = err.Error()
	}
	return ErrAllSourcesExhausted.Error() + ": " + strings.Join(msgs, "; ")
}

func (e *ExhaustedError) Is(target error) bool {
	return target == ErrAllSourcesExhausted
}

func (e *ExhaustedError) Unwrap() []error {
	return e.Errs
}

// citySlug turns "Den Haag" into "den-haag"
func citySlug(city string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(city)), " ", "-")
}

// listingPath is the Dutch path segment used by funda URLs
func listingPath(t models.ListingType) string {
	if t == models.ListingTypeRent {
		return "huur"
	}
	return "koop"
}

func withinPriceRange(price int, f Filters) bool {
	if f.PriceMin != nil && price < *f.PriceMin {
		return false
	}
	if f.PriceMax != nil && price > *f.PriceMax {
		return false
	}
	return true
}
