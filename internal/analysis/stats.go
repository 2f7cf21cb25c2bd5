package analysis

import (
	"fmt"
	"sort"

	"funda-finder/internal/models"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Summary holds the descriptive statistics of one series
type Summary struct {
	Mean   float64 `json:"mean"`
	Median float64 `json:"median"`
	Std    float64 `json:"std"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
}

// summarize computes mean, population standard deviation, min, max and the
// element at index n/2 of the sorted series. values must not be empty.
func summarize(values []float64) Summary {
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	mean, std := stat.PopMeanStdDev(sorted, nil)
	lo, hi := floats.Min(sorted), floats.Max(sorted)
	if lo == hi {
		// identical values; keep rounding noise out of the z-score
		std = 0
	}

	return Summary{
		Mean:   mean,
		Median: sorted[len(sorted)/2],
		Std:    std,
		Min:    lo,
		Max:    hi,
	}
}

// GroupStats summarizes a cohort. Members without a positive price and
// living area are ignored; nil means no member was usable.
func GroupStats(cohort []models.Property) *ComparableGroup {
	if len(cohort) == 0 {
		return nil
	}

	var prices, pps []float64
	for i := range cohort {
		v, ok := cohort[i].PricePerSqm()
		if !ok {
			continue
		}
		prices = append(prices, float64(*cohort[i].Price))
		pps = append(pps, v)
	}
	if len(prices) == 0 {
		return nil
	}

	priceStats := summarize(prices)
	ppsStats := summarize(pps)

	first := cohort[0]
	group := &ComparableGroup{
		City:              first.City,
		ListingType:       first.ListingType,
		Rooms:             first.Rooms,
		Count:             len(cohort),
		MedianPrice:       priceStats.Median,
		MeanPrice:         priceStats.Mean,
		StdPrice:          priceStats.Std,
		MedianPricePerSqm: ppsStats.Median,
		MeanPricePerSqm:   ppsStats.Mean,
		StdPricePerSqm:    ppsStats.Std,
	}

	minYear, maxYear, haveYear := 0, 0, false
	for i := range cohort {
		y := cohort[i].YearBuilt
		if y == nil {
			continue
		}
		if !haveYear || *y < minYear {
			minYear = *y
		}
		if !haveYear || *y > maxYear {
			maxYear = *y
		}
		haveYear = true
	}
	if haveYear {
		yr := fmt.Sprintf("%d-%d", minYear, maxYear)
		group.YearRange = &yr
	}

	return group
}

// ZScore is the number of standard deviations value lies from mean; 0 when
// std is 0
func ZScore(value, mean, std float64) float64 {
	if std == 0 {
		return 0
	}
	return (value - mean) / std
}
