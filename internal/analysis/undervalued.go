package analysis

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"

	"funda-finder/internal/models"

	"golang.org/x/sync/errgroup"
)

// UndervaluedQuery filters FindUndervalued
type UndervaluedQuery struct {
	City        string
	ListingType models.ListingType
	MinScore    *float64
	Limit       int
}

const defaultLimit = 50

// FindUndervalued scores up to twice Limit candidates and returns the best
// Limit by composite score. A property whose scoring fails is skipped.
func (a *Analyzer) FindUndervalued(ctx context.Context, query UndervaluedQuery) ([]PropertyScore, error) {
	if query.Limit <= 0 {
		query.Limit = defaultLimit
	}
	if query.ListingType == "" {
		query.ListingType = models.ListingTypeBuy
	}

	q := usable(a.db.WithContext(ctx).Model(&models.Property{})).
		Where("listing_type = ?", query.ListingType)
	if query.City != "" {
		q = q.Where("LOWER(city) LIKE ?", "%"+strings.ToLower(query.City)+"%")
	}

	var candidates []models.Property
	if err := q.Order("id ASC").Limit(query.Limit * 2).Find(&candidates).Error; err != nil {
		return nil, fmt.Errorf("failed to load candidates: %w", err)
	}

	scores := make([]*PropertyScore, len(candidates))
	var g errgroup.Group
	g.SetLimit(a.opts.Concurrency)
	for i := range candidates {
		i := i
		g.Go(func() error {
			defer func() {
				if r := recover(); r != nil {
					log.Printf("Analyzer: scoring property %d panicked: %v", candidates[i].ID, r)
				}
			}()
			score, err := a.AnalyzeProperty(ctx, &candidates[i])
			if err != nil {
				log.Printf("Analyzer: skipping property %d: %v", candidates[i].ID, err)
				return nil
			}
			scores[i] = score
			return nil
		})
	}
	g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return rankScores(scores, query.MinScore, query.Limit), nil
}

// rankScores drops nil entries and scores below minScore, sorts by composite
// score descending keeping input order for ties, and truncates to limit
func rankScores(scores []*PropertyScore, minScore *float64, limit int) []PropertyScore {
	ranked := make([]PropertyScore, 0, len(scores))
	for _, s := range scores {
		if s == nil {
			continue
		}
		if minScore != nil && s.CompositeScore < *minScore {
			continue
		}
		ranked = append(ranked, *s)
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].CompositeScore > ranked[j].CompositeScore
	})

	if limit > 0 && len(ranked) > limit {
		ranked = ranked[:limit]
	}
	return ranked
}
