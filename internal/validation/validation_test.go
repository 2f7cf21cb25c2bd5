package validation

import (
	"errors"
	"testing"
	"time"

	"funda-finder/internal/models"
	"funda-finder/internal/source"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2026, 4, 1, 9, 30, 0, 123456789, time.UTC)

func intPtr(v int) *int { return &v }

func floatPtr(v float64) *float64 { return &v }

func validRaw() source.RawListing {
	return source.RawListing{
		ExternalID:  "42424242",
		URL:         "https://www.funda.nl/koop/amsterdam/huis-42424242/",
		Address:     " Prinsengracht 10 ",
		City:        "amsterdam",
		PostalCode:  "1016gv",
		ListingType: "buy",
		Price:       "€ 500.000 k.k.",
		LivingArea:  "120 m²",
		Rooms:       intPtr(4),
		Bedrooms:    intPtr(2),
		YearBuilt:   intPtr(1920),
		EnergyLabel: "a+",
		Lat:         floatPtr(52.37),
		Lon:         floatPtr(4.88),
		Source:      "api",
	}
}

func fieldOf(t *testing.T, err error) string {
	t.Helper()
	var verr *Error
	require.True(t, errors.As(err, &verr), "expected *Error, got %v", err)
	return verr.Field
}

func TestValidateNormalizesFields(t *testing.T) {
	l, err := Validate(validRaw(), now)
	require.NoError(t, err)

	assert.Equal(t, "42424242", l.ExternalID)
	assert.Equal(t, "Prinsengracht 10", l.Address)
	assert.Equal(t, "Amsterdam", l.City)
	require.NotNil(t, l.PostalCode)
	assert.Equal(t, "1016 GV", *l.PostalCode)
	assert.Equal(t, models.ListingTypeBuy, l.ListingType)
	assert.Equal(t, 500000, l.Price)
	require.NotNil(t, l.LivingArea)
	assert.Equal(t, 120, *l.LivingArea)
	assert.Nil(t, l.PlotArea)
	require.NotNil(t, l.EnergyLabel)
	assert.Equal(t, "A+", *l.EnergyLabel)
	assert.Nil(t, l.Description)
	assert.Equal(t, now.Truncate(time.Millisecond), l.ScrapedAt, "zero scrape time defaults to now")
}

func TestValidateKeepsSourceScrapeTime(t *testing.T) {
	raw := validRaw()
	raw.ScrapedAt = time.Date(2026, 3, 31, 12, 0, 0, 999999, time.FixedZone("CEST", 2*3600))

	l, err := Validate(raw, now)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 3, 31, 10, 0, 0, 0, time.UTC), l.ScrapedAt)
	assert.Equal(t, time.UTC, l.ScrapedAt.Location())
}

func TestValidatePriceForms(t *testing.T) {
	cases := []struct {
		name  string
		price any
		want  int
	}{
		{"int", 450000, 450000},
		{"json number", 450000.0, 450000},
		{"dutch thousands", "€ 450.000", 450000},
		{"rent suffix", "€ 1.750 /maand", 1750},
		{"spaces", " 325 000 ", 325000},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			raw := validRaw()
			raw.Price = tc.price
			l, err := Validate(raw, now)
			require.NoError(t, err)
			assert.Equal(t, tc.want, l.Price)
		})
	}
}

func TestValidateRejectsBadPrices(t *testing.T) {
	for name, price := range map[string]any{
		"missing":    nil,
		"no digits":  "Prijs op aanvraag",
		"zero":       0,
		"negative":   "-5000",
		"fractional": 1234.5,
		"bool":       true,
	} {
		t.Run(name, func(t *testing.T) {
			raw := validRaw()
			raw.Price = price
			_, err := Validate(raw, now)
			require.Error(t, err)
			assert.Equal(t, "price", fieldOf(t, err))
		})
	}
}

func TestValidateRequiredFieldsInOrder(t *testing.T) {
	raw := validRaw()
	raw.ExternalID = " "
	raw.URL = "short"
	_, err := Validate(raw, now)
	assert.Equal(t, "external_id", fieldOf(t, err), "external id is checked first")

	raw = validRaw()
	raw.URL = "http://x"
	_, err = Validate(raw, now)
	assert.Equal(t, "url", fieldOf(t, err))

	raw = validRaw()
	raw.City = "  "
	_, err = Validate(raw, now)
	assert.Equal(t, "city", fieldOf(t, err))

	raw = validRaw()
	raw.ListingType = "lease"
	_, err = Validate(raw, now)
	assert.Equal(t, "listing_type", fieldOf(t, err))
}

func TestValidateListingTypeAliases(t *testing.T) {
	raw := validRaw()
	raw.ListingType = "Huur"
	l, err := Validate(raw, now)
	require.NoError(t, err)
	assert.Equal(t, models.ListingTypeRent, l.ListingType)
}

func TestValidateAreas(t *testing.T) {
	raw := validRaw()
	raw.LivingArea = "onbekend"
	raw.PlotArea = 250.0
	l, err := Validate(raw, now)
	require.NoError(t, err)
	assert.Nil(t, l.LivingArea, "unparseable area is dropped")
	require.NotNil(t, l.PlotArea)
	assert.Equal(t, 250, *l.PlotArea)

	raw = validRaw()
	raw.LivingArea = "0 m²"
	_, err = Validate(raw, now)
	assert.Equal(t, "living_area", fieldOf(t, err))

	raw = validRaw()
	raw.PlotArea = -10
	_, err = Validate(raw, now)
	assert.Equal(t, "plot_area", fieldOf(t, err))
}

func TestValidatePostalCodeAndEnergyLabel(t *testing.T) {
	raw := validRaw()
	raw.PostalCode = "1016 G"
	_, err := Validate(raw, now)
	assert.Equal(t, "postal_code", fieldOf(t, err))

	raw = validRaw()
	raw.PostalCode = ""
	l, err := Validate(raw, now)
	require.NoError(t, err)
	assert.Nil(t, l.PostalCode)

	raw = validRaw()
	raw.EnergyLabel = "H"
	_, err = Validate(raw, now)
	assert.Equal(t, "energy_label", fieldOf(t, err))

	raw = validRaw()
	raw.EnergyLabel = "a++++"
	l, err = Validate(raw, now)
	require.NoError(t, err)
	assert.Equal(t, "A++++", *l.EnergyLabel)
}

func TestValidateRanges(t *testing.T) {
	cases := []struct {
		field  string
		mutate func(*source.RawListing)
	}{
		{"rooms", func(r *source.RawListing) { r.Rooms = intPtr(0) }},
		{"rooms", func(r *source.RawListing) { r.Rooms = intPtr(51) }},
		{"bedrooms", func(r *source.RawListing) { r.Bedrooms = intPtr(31) }},
		{"bathrooms", func(r *source.RawListing) { r.Bathrooms = intPtr(21) }},
		{"year_built", func(r *source.RawListing) { r.YearBuilt = intPtr(1599) }},
		{"year_built", func(r *source.RawListing) { r.YearBuilt = intPtr(2031) }},
		{"lat", func(r *source.RawListing) { r.Lat = floatPtr(91) }},
		{"lon", func(r *source.RawListing) { r.Lon = floatPtr(-181) }},
		{"bedrooms", func(r *source.RawListing) { r.Rooms = intPtr(2); r.Bedrooms = intPtr(3) }},
	}
	for _, tc := range cases {
		raw := validRaw()
		tc.mutate(&raw)
		_, err := Validate(raw, now)
		require.Error(t, err)
		assert.Equal(t, tc.field, fieldOf(t, err))
	}
}

func TestNormalizeCity(t *testing.T) {
	assert.Equal(t, "Den Haag", NormalizeCity("  den haag "))
	assert.Equal(t, "'S-Hertogenbosch", NormalizeCity("'s-hertogenbosch"))
	assert.Equal(t, "Amsterdam", NormalizeCity("AMSTERDAM"))
	assert.Equal(t, "Alphen Aan Den Rijn", NormalizeCity("alphen aan den rijn"))
}

func TestValidateBatchKeepsOrderAndRejections(t *testing.T) {
	bad := validRaw()
	bad.ExternalID = "bad"
	bad.Price = "n.o.t.k."

	second := validRaw()
	second.ExternalID = "second"

	valid, rejected := ValidateBatch([]source.RawListing{validRaw(), bad, second}, now)

	require.Len(t, valid, 2)
	assert.Equal(t, "42424242", valid[0].ExternalID)
	assert.Equal(t, "second", valid[1].ExternalID)

	require.Len(t, rejected, 1)
	assert.Equal(t, "bad", rejected[0].Raw.ExternalID)
	assert.Equal(t, "n.o.t.k.", rejected[0].Raw.Price, "rejections keep the raw form")
	assert.Equal(t, "price", fieldOf(t, rejected[0].Err))
}

func TestListingRawJSON(t *testing.T) {
	l := Listing{}
	assert.Nil(t, l.RawJSON())

	l.Raw = map[string]any{"id": "1"}
	assert.JSONEq(t, `{"id":"1"}`, string(l.RawJSON()))
}
