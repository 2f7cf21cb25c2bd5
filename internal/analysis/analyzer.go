package analysis

import (
	"context"
	"fmt"
	"math"
	"time"

	"funda-finder/internal/history"
	"funda-finder/internal/models"

	"gorm.io/gorm"
)

// Options tunes cohort selection and scoring
type Options struct {
	MaxYearDiff         int
	PriceDropWindowDays int
	// Concurrency bounds how many properties FindUndervalued scores at once
	Concurrency int
}

// DefaultOptions returns a ±20 year cohort, a 90 day drop window and four workers
func DefaultOptions() Options {
	return Options{
		MaxYearDiff:         20,
		PriceDropWindowDays: 90,
		Concurrency:         4,
	}
}

// ComparableGroup summarizes a cohort of comparable properties
type ComparableGroup struct {
	City              string             `json:"city"`
	ListingType       models.ListingType `json:"listing_type"`
	Rooms             *int               `json:"rooms,omitempty"`
	YearRange         *string            `json:"year_range,omitempty"`
	Count             int                `json:"count"`
	MedianPrice       float64            `json:"median_price"`
	MeanPrice         float64            `json:"mean_price"`
	StdPrice          float64            `json:"std_price"`
	MedianPricePerSqm float64            `json:"median_price_per_sqm"`
	MeanPricePerSqm   float64            `json:"mean_price_per_sqm"`
	StdPricePerSqm    float64            `json:"std_price_per_sqm"`
}

// PropertyScore is the undervalue analysis of one property
type PropertyScore struct {
	PropertyID      uint               `json:"property_id"`
	ExternalID      string             `json:"external_id"`
	Address         string             `json:"address"`
	City            string             `json:"city"`
	ListingType     models.ListingType `json:"listing_type"`
	Price           int                `json:"price"`
	LivingArea      int                `json:"living_area"`
	PricePerSqm     float64            `json:"price_per_sqm"`
	CompositeScore  float64            `json:"composite_score"`
	PercentileRank  float64            `json:"percentile_rank"`
	ScoreComponents map[string]float64 `json:"score_components"`
	Explanation     string             `json:"explanation"`
	ComparableGroup *ComparableGroup   `json:"comparable_group,omitempty"`
}

// Analyzer scores properties against their comparables. It only reads.
type Analyzer struct {
	db      *gorm.DB
	history *history.Service
	now     func() time.Time
	opts    Options
}

// NewAnalyzer creates an analyzer. Zero option fields take their defaults.
func NewAnalyzer(db *gorm.DB, now func() time.Time, opts Options) *Analyzer {
	defaults := DefaultOptions()
	if opts.MaxYearDiff <= 0 {
		opts.MaxYearDiff = defaults.MaxYearDiff
	}
	if opts.PriceDropWindowDays <= 0 {
		opts.PriceDropWindowDays = defaults.PriceDropWindowDays
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = defaults.Concurrency
	}
	if now == nil {
		now = time.Now
	}
	return &Analyzer{
		db:      db,
		history: history.NewService(db),
		now:     now,
		opts:    opts,
	}
}

// usable restricts a query to active properties with a positive price and area
func usable(q *gorm.DB) *gorm.DB {
	return q.Where("status = ?", models.PropertyStatusActive).
		Where("price IS NOT NULL AND price > 0").
		Where("living_area IS NOT NULL AND living_area > 0")
}

// Comparables returns the cohort for p: active properties in the same city
// and listing type, with the same room count and a year built within
// MaxYearDiff when p has those. The cohort is never widened when empty.
func (a *Analyzer) Comparables(ctx context.Context, p *models.Property) ([]models.Property, error) {
	q := usable(a.db.WithContext(ctx).Model(&models.Property{})).
		Where("id <> ? AND city = ? AND listing_type = ?", p.ID, p.City, p.ListingType)

	if p.Rooms != nil {
		q = q.Where("rooms = ?", *p.Rooms)
	}
	if p.YearBuilt != nil {
		q = q.Where("year_built IS NOT NULL AND year_built BETWEEN ? AND ?",
			*p.YearBuilt-a.opts.MaxYearDiff, *p.YearBuilt+a.opts.MaxYearDiff)
	}

	var cohort []models.Property
	if err := q.Order("id ASC").Find(&cohort).Error; err != nil {
		return nil, fmt.Errorf("comparables for property %d: %w", p.ID, err)
	}
	return cohort, nil
}

// AnalyzeProperty builds the cohort of p and scores p against it
func (a *Analyzer) AnalyzeProperty(ctx context.Context, p *models.Property) (*PropertyScore, error) {
	cohort, err := a.Comparables(ctx, p)
	if err != nil {
		return nil, err
	}
	stats := GroupStats(cohort)

	score, components, explanation, err := a.Score(ctx, p, stats)
	if err != nil {
		return nil, err
	}

	result := &PropertyScore{
		PropertyID:      p.ID,
		ExternalID:      p.ExternalID,
		Address:         p.Address,
		City:            p.City,
		ListingType:     p.ListingType,
		CompositeScore:  score,
		PercentileRank:  percentileRank(score),
		ScoreComponents: components,
		Explanation:     explanation,
		ComparableGroup: stats,
	}
	if p.Price != nil {
		result.Price = *p.Price
	}
	if p.LivingArea != nil {
		result.LivingArea = *p.LivingArea
	}
	if pps, ok := p.PricePerSqm(); ok {
		result.PricePerSqm = round2(pps)
	}
	return result, nil
}

// percentileRank currently equals the composite score. It is not a rank
// within the population; see the pinned test before changing it.
func percentileRank(score float64) float64 {
	return score
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
