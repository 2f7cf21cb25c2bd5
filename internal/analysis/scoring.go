package analysis

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"funda-finder/internal/models"
)

// Component keys of PropertyScore.ScoreComponents
const (
	ComponentPricePerSqm  = "price_per_sqm_score"
	ComponentDaysOnMarket = "days_on_market_score"
	ComponentPriceDrop    = "price_drop_score"
	ComponentComposite    = "composite"
)

const (
	weightPricePerSqm  = 0.40
	weightDaysOnMarket = 0.20
	weightPriceDrop    = 0.40

	neutralScore = 50.0
	noDropScore  = 30.0
)

// DaysOnMarket is the number of whole days since the property was first seen
func (a *Analyzer) DaysOnMarket(p *models.Property) int {
	days := int(math.Floor(a.now().Sub(p.FirstSeenAt).Hours() / 24))
	if days < 0 {
		return 0
	}
	return days
}

// PriceDrop compares the first and last observation within the last
// windowDays. The drop is nil when there are fewer than two observations or
// the price did not go down; the observation count is always returned.
func (a *Analyzer) PriceDrop(ctx context.Context, propertyID uint, windowDays int) (*float64, int, error) {
	since := a.now().UTC().Add(-time.Duration(windowDays) * 24 * time.Hour)
	rows, err := a.history.Window(ctx, propertyID, since)
	if err != nil {
		return nil, 0, fmt.Errorf("price history for property %d: %w", propertyID, err)
	}
	if len(rows) < 2 {
		return nil, len(rows), nil
	}

	first, last := rows[0].Price, rows[len(rows)-1].Price
	if first > last {
		drop := float64(first-last) / float64(first) * 100
		return &drop, len(rows), nil
	}
	return nil, len(rows), nil
}

// Score computes the composite undervalue score of p against stats, which
// may be nil. It returns the score, its components and an explanation.
func (a *Analyzer) Score(ctx context.Context, p *models.Property, stats *ComparableGroup) (float64, map[string]float64, string, error) {
	pps, ok := p.PricePerSqm()
	if !ok {
		return 0, map[string]float64{}, "Insufficient price or area data", nil
	}

	drop, observations, err := a.PriceDrop(ctx, p.ID, a.opts.PriceDropWindowDays)
	if err != nil {
		return 0, nil, "", err
	}

	score, components, explanation := composeScore(scoreInput{
		pricePerSqm:  pps,
		stats:        stats,
		days:         a.DaysOnMarket(p),
		drop:         drop,
		observations: observations,
		windowDays:   a.opts.PriceDropWindowDays,
	})
	return score, components, explanation, nil
}

type scoreInput struct {
	pricePerSqm  float64
	stats        *ComparableGroup
	days         int
	drop         *float64
	observations int
	windowDays   int
}

func composeScore(in scoreInput) (float64, map[string]float64, string) {
	components := make(map[string]float64, 4)
	var parts []string

	ppsScore := neutralScore
	switch {
	case in.stats == nil:
		parts = append(parts, fmt.Sprintf("€%.0f/m² (no comparables for scoring)", in.pricePerSqm))
	case in.stats.StdPricePerSqm > 0:
		ppsScore = pricePerSqmScore(ZScore(in.pricePerSqm, in.stats.MeanPricePerSqm, in.stats.StdPricePerSqm))
		parts = append(parts, describePricePerSqm(in.pricePerSqm, in.stats.MeanPricePerSqm))
	default:
		parts = append(parts, fmt.Sprintf("€%.0f/m² (comparables show no price spread)", in.pricePerSqm))
	}
	components[ComponentPricePerSqm] = round2(ppsScore)

	domScore := daysOnMarketScore(in.days)
	components[ComponentDaysOnMarket] = round2(domScore)
	parts = append(parts, fmt.Sprintf("%d days on market", in.days))

	dropScore := priceDropScore(in.drop)
	components[ComponentPriceDrop] = round2(dropScore)
	if in.drop != nil && *in.drop > 0 {
		parts = append(parts, fmt.Sprintf("Price dropped %.1f%% in last %d days", *in.drop, in.windowDays))
	} else if in.observations >= 2 {
		parts = append(parts, fmt.Sprintf("No price drops in last %d days", in.windowDays))
	}

	composite := round2(clamp(
		ppsScore*weightPricePerSqm + domScore*weightDaysOnMarket + dropScore*weightPriceDrop,
	))
	components[ComponentComposite] = composite

	return composite, components, strings.Join(parts, ". ") + "."
}

func describePricePerSqm(pps, mean float64) string {
	pct := (pps - mean) / mean * 100
	switch {
	case pct < -10:
		return fmt.Sprintf("€%.0f/m² is %.1f%% below comparable properties (€%.0f/m²)", pps, -pct, mean)
	case pct > 10:
		return fmt.Sprintf("€%.0f/m² is %.1f%% above comparable properties (€%.0f/m²)", pps, pct, mean)
	default:
		return fmt.Sprintf("€%.0f/m² is near average for comparable properties", pps)
	}
}

// pricePerSqmScore maps a z-score to 0-100: z=-2 gives 100, z=0 gives 50
func pricePerSqmScore(z float64) float64 {
	return clamp(50 - 25*z)
}

// daysOnMarketScore ramps 0→40 over the first 30 days, 40→70 up to day 60
// and 70→100 up to day 120
func daysOnMarketScore(days int) float64 {
	d := float64(days)
	var score float64
	switch {
	case d <= 30:
		score = math.Min(40, d/30*40)
	case d <= 60:
		score = 40 + (d-30)/30*30
	default:
		score = 70 + math.Min(30, (d-60)/60*30)
	}
	return clamp(score)
}

// priceDropScore is 30 without a drop; drops ramp 60→75 up to 5%, 75→90 up
// to 10% and 90→100 up to 20%
func priceDropScore(drop *float64) float64 {
	if drop == nil || *drop <= 0 {
		return noDropScore
	}
	d := *drop
	var score float64
	switch {
	case d <= 5:
		score = 60 + d/5*15
	case d <= 10:
		score = 75 + (d-5)/5*15
	default:
		score = 90 + math.Min(10, d-10)
	}
	return clamp(score)
}

func clamp(v float64) float64 {
	return math.Max(0, math.Min(100, v))
}
