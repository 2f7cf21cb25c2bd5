package etl

import (
	"fmt"
	"strings"

	"funda-finder/internal/config"
	"funda-finder/internal/models"
	"funda-finder/internal/source"
)

// Plan is the set of scopes one batch covers and the filters shared by all of them
type Plan struct {
	Cities []string
	Types  []models.ListingType
	Base   source.Filters
}

// PlanFromConfig builds a batch plan from the scraping section
func PlanFromConfig(cfg config.ScrapingConfig) (Plan, error) {
	plan := Plan{Base: source.Filters{MaxResults: cfg.MaxResults}}

	for _, city := range cfg.Cities {
		if city = strings.TrimSpace(city); city != "" {
			plan.Cities = append(plan.Cities, city)
		}
	}
	if len(plan.Cities) == 0 {
		return Plan{}, fmt.Errorf("no cities configured")
	}

	types := cfg.ListingTypes
	if len(types) == 0 {
		types = []string{string(models.ListingTypeBuy)}
	}
	for _, s := range types {
		lt, ok := models.ParseListingType(strings.ToLower(strings.TrimSpace(s)))
		if !ok {
			return Plan{}, fmt.Errorf("unknown listing type %q", s)
		}
		plan.Types = append(plan.Types, lt)
	}

	if cfg.PriceRange.Min > 0 {
		v := cfg.PriceRange.Min
		plan.Base.PriceMin = &v
	}
	if cfg.PriceRange.Max > 0 {
		v := cfg.PriceRange.Max
		plan.Base.PriceMax = &v
	}
	return plan, nil
}

// Scopes returns the number of runs the plan produces
func (p Plan) Scopes() int {
	return len(p.Cities) * len(p.Types)
}
