package etl

import (
	"testing"

	"funda-finder/internal/config"
	"funda-finder/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlanFromConfig(t *testing.T) {
	cfg := config.DefaultConfig().Scraping
	cfg.Cities = []string{"amsterdam", " ", "den-haag"}
	cfg.ListingTypes = []string{"koop", "Rent"}
	cfg.PriceRange = config.PriceRangeConf{Min: 200000}
	cfg.MaxResults = 50

	plan, err := PlanFromConfig(cfg)
	require.NoError(t, err)
	assert.Equal(t, []string{"amsterdam", "den-haag"}, plan.Cities)
	assert.Equal(t, []models.ListingType{models.ListingTypeBuy, models.ListingTypeRent}, plan.Types)
	require.NotNil(t, plan.Base.PriceMin)
	assert.Equal(t, 200000, *plan.Base.PriceMin)
	assert.Nil(t, plan.Base.PriceMax)
	assert.Equal(t, 50, plan.Base.MaxResults)
	assert.Equal(t, 4, plan.Scopes())
}

func TestPlanFromConfigDefaultsToBuy(t *testing.T) {
	cfg := config.ScrapingConfig{Cities: []string{"utrecht"}}

	plan, err := PlanFromConfig(cfg)
	require.NoError(t, err)
	assert.Equal(t, []models.ListingType{models.ListingTypeBuy}, plan.Types)
}

func TestPlanFromConfigErrors(t *testing.T) {
	_, err := PlanFromConfig(config.ScrapingConfig{})
	assert.Error(t, err)

	_, err = PlanFromConfig(config.ScrapingConfig{Cities: []string{"utrecht"}, ListingTypes: []string{"lease"}})
	assert.Error(t, err)
}
