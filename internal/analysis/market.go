package analysis

import (
	"context"
	"fmt"
	"strings"

	"funda-finder/internal/models"
)

// MarketQuery filters MarketStats
type MarketQuery struct {
	City        string
	ListingType models.ListingType
	GroupByCity bool
}

// MarketStats describes the active, priced population. With GroupByCity
// the per-city figures are in Groups and only the total is set at the top.
type MarketStats struct {
	TotalProperties int                     `json:"total_properties"`
	Note            string                  `json:"note,omitempty"`
	Price           *Summary                `json:"price,omitempty"`
	LivingArea      *Summary                `json:"living_area,omitempty"`
	PricePerSqm     *Summary                `json:"price_per_sqm,omitempty"`
	GroupedBy       string                  `json:"grouped_by,omitempty"`
	Groups          map[string]*MarketStats `json:"groups,omitempty"`
}

const noPropertiesNote = "No properties found"

// MarketStats aggregates price, living area and price per m² over active
// properties matching query. An empty population is a result, not an error.
func (a *Analyzer) MarketStats(ctx context.Context, query MarketQuery) (*MarketStats, error) {
	q := usable(a.db.WithContext(ctx).Model(&models.Property{}))
	if query.City != "" {
		q = q.Where("LOWER(city) LIKE ?", "%"+strings.ToLower(query.City)+"%")
	}
	if query.ListingType != "" {
		q = q.Where("listing_type = ?", query.ListingType)
	}

	var props []models.Property
	if err := q.Order("id ASC").Find(&props).Error; err != nil {
		return nil, fmt.Errorf("failed to load market population: %w", err)
	}

	if len(props) == 0 {
		return &MarketStats{TotalProperties: 0, Note: noPropertiesNote}, nil
	}
	if !query.GroupByCity {
		return aggregate(props), nil
	}

	byCity := make(map[string][]models.Property)
	for _, p := range props {
		byCity[p.City] = append(byCity[p.City], p)
	}
	groups := make(map[string]*MarketStats, len(byCity))
	for city, cityProps := range byCity {
		groups[city] = aggregate(cityProps)
	}
	return &MarketStats{
		TotalProperties: len(props),
		GroupedBy:       "city",
		Groups:          groups,
	}, nil
}

func aggregate(props []models.Property) *MarketStats {
	prices := make([]float64, 0, len(props))
	areas := make([]float64, 0, len(props))
	pps := make([]float64, 0, len(props))
	for i := range props {
		v, ok := props[i].PricePerSqm()
		if !ok {
			continue
		}
		prices = append(prices, float64(*props[i].Price))
		areas = append(areas, float64(*props[i].LivingArea))
		pps = append(pps, v)
	}

	stats := &MarketStats{TotalProperties: len(props)}
	if len(prices) == 0 {
		stats.Note = "Insufficient data"
		return stats
	}
	stats.Price = rounded(summarize(prices))
	stats.LivingArea = rounded(summarize(areas))
	stats.PricePerSqm = rounded(summarize(pps))
	return stats
}

func rounded(s Summary) *Summary {
	return &Summary{
		Mean:   round2(s.Mean),
		Median: round2(s.Median),
		Std:    round2(s.Std),
		Min:    round2(s.Min),
		Max:    round2(s.Max),
	}
}
