package database

import (
	"testing"
	"time"

	"funda-finder/internal/config"
	"funda-finder/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDB(t *testing.T) *GormDB {
	t.Helper()
	gdb, err := NewInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { gdb.Close() })
	return gdb
}

func seedProperty(t *testing.T, gdb *GormDB, externalID, city string, status models.PropertyStatus, price int) models.Property {
	t.Helper()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	p := models.Property{
		ExternalID:  externalID,
		URL:         "https://www.funda.nl/koop/" + externalID + "/",
		City:        city,
		Price:       &price,
		ListingType: models.ListingTypeBuy,
		Status:      status,
		FirstSeenAt: now,
		ScrapedAt:   now,
		UpdatedAt:   now,
	}
	require.NoError(t, gdb.DB().Create(&p).Error)
	return p
}

func TestNewGormDBRejectsUnknownType(t *testing.T) {
	_, err := NewGormDB(config.DatabaseConfig{Type: "oracle"}, "silent")
	assert.Error(t, err)
}

func TestGetPropertyLookups(t *testing.T) {
	gdb := newTestDB(t)
	p := seedProperty(t, gdb, "42", "Amsterdam", models.PropertyStatusActive, 400000)

	got, err := gdb.GetPropertyByID(p.ID)
	require.NoError(t, err)
	assert.Equal(t, "42", got.ExternalID)

	got, err = gdb.GetPropertyByExternalID("42")
	require.NoError(t, err)
	assert.Equal(t, p.ID, got.ID)

	_, err = gdb.GetPropertyByID(p.ID + 100)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = gdb.GetPropertyByExternalID("nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListPropertiesFiltersAndSorts(t *testing.T) {
	gdb := newTestDB(t)
	seedProperty(t, gdb, "1", "Amsterdam", models.PropertyStatusActive, 500000)
	seedProperty(t, gdb, "2", "Amsterdam", models.PropertyStatusActive, 300000)
	seedProperty(t, gdb, "3", "Amsterdam", models.PropertyStatusInactive, 100000)
	seedProperty(t, gdb, "4", "Utrecht", models.PropertyStatusActive, 200000)

	got, err := gdb.ListProperties(PropertyFilters{
		City:   "amsterdam",
		Status: models.PropertyStatusActive,
		SortBy: "price_asc",
	})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "2", got[0].ExternalID)
	assert.Equal(t, "1", got[1].ExternalID)
}

func TestStatusCounts(t *testing.T) {
	gdb := newTestDB(t)
	seedProperty(t, gdb, "1", "Amsterdam", models.PropertyStatusActive, 1)
	seedProperty(t, gdb, "2", "Amsterdam", models.PropertyStatusActive, 1)
	seedProperty(t, gdb, "3", "Amsterdam", models.PropertyStatusInactive, 1)

	counts, err := gdb.StatusCounts()
	require.NoError(t, err)
	assert.Equal(t, int64(2), counts[models.PropertyStatusActive])
	assert.Equal(t, int64(1), counts[models.PropertyStatusInactive])
}

func TestPriceHistoryCascadesOnDelete(t *testing.T) {
	gdb := newTestDB(t)
	p := seedProperty(t, gdb, "1", "Amsterdam", models.PropertyStatusActive, 1)
	require.NoError(t, gdb.DB().Create(&models.PriceHistory{
		PropertyID: p.ID,
		Price:      1,
		ObservedAt: p.ScrapedAt,
	}).Error)

	require.NoError(t, gdb.DB().Delete(&models.Property{}, p.ID).Error)

	var n int64
	require.NoError(t, gdb.DB().Model(&models.PriceHistory{}).Count(&n).Error)
	assert.Zero(t, n)
}
