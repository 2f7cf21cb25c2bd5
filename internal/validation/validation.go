package validation

import (
	"encoding/json"
	"fmt"
	"log"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"

	"funda-finder/internal/models"
	"funda-finder/internal/source"
)

// Listing is a raw listing that passed validation. Optional fields are nil
// when the source did not provide them.
type Listing struct {
	ExternalID  string
	URL         string
	Address     string
	City        string
	PostalCode  *string
	ListingType models.ListingType
	Price       int
	LivingArea  *int
	PlotArea    *int
	Rooms       *int
	Bedrooms    *int
	Bathrooms   *int
	YearBuilt   *int
	EnergyLabel *string
	Lat         *float64
	Lon         *float64
	Description *string
	Source      string
	Raw         map[string]any
	ScrapedAt   time.Time
}

// RawJSON returns the raw source payload as JSON, or nil when there is none
func (l *Listing) RawJSON() []byte {
	if len(l.Raw) == 0 {
		return nil
	}
	b, err := json.Marshal(l.Raw)
	if err != nil {
		return nil
	}
	return b
}

// Error describes the first rule a raw listing violated
type Error struct {
	Field   string
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func invalid(field, format string, args ...any) *Error {
	return &Error{Field: field, Message: fmt.Sprintf(format, args...)}
}

// Rejection pairs a raw listing with the reason it was rejected
type Rejection struct {
	Raw source.RawListing
	Err error
}

const minURLLength = 10

var (
	postalCodePattern = regexp.MustCompile(`^(\d{4})\s*([A-Z]{2})$`)
	numberToken       = regexp.MustCompile(`-?\d+(?:[.,]\d+)?`)
	energyLabels      = map[string]bool{
		"A++++": true, "A+++": true, "A++": true, "A+": true,
		"A": true, "B": true, "C": true, "D": true, "E": true, "F": true, "G": true,
	}
)

type intRange struct {
	field    string
	min, max int
}

var (
	roomsRange     = intRange{"rooms", 1, 50}
	bedroomsRange  = intRange{"bedrooms", 0, 30}
	bathroomsRange = intRange{"bathrooms", 0, 20}
	yearRange      = intRange{"year_built", 1600, 2030}
)

// Validate converts a raw listing into a typed Listing. Rules are checked in
// a fixed order and the first violation is returned as an *Error.
func Validate(raw source.RawListing, now time.Time) (*Listing, error) {
	externalID := strings.TrimSpace(raw.ExternalID)
	if externalID == "" {
		return nil, invalid("external_id", "is required")
	}
	url := strings.TrimSpace(raw.URL)
	if len(url) < minURLLength {
		return nil, invalid("url", "must be at least %d characters", minURLLength)
	}
	city := NormalizeCity(raw.City)
	if city == "" {
		return nil, invalid("city", "is required")
	}
	listingType, ok := models.ParseListingType(strings.ToLower(strings.TrimSpace(raw.ListingType)))
	if !ok {
		return nil, invalid("listing_type", "must be buy or rent, got %q", raw.ListingType)
	}

	price, err := parsePrice(raw.Price)
	if err != nil {
		return nil, err
	}

	livingArea, err := parseArea("living_area", raw.LivingArea)
	if err != nil {
		return nil, err
	}
	plotArea, err := parseArea("plot_area", raw.PlotArea)
	if err != nil {
		return nil, err
	}

	postalCode, err := normalizePostalCode(raw.PostalCode)
	if err != nil {
		return nil, err
	}
	energyLabel, err := normalizeEnergyLabel(raw.EnergyLabel)
	if err != nil {
		return nil, err
	}

	for _, check := range []struct {
		r intRange
		v *int
	}{
		{roomsRange, raw.Rooms},
		{bedroomsRange, raw.Bedrooms},
		{bathroomsRange, raw.Bathrooms},
		{yearRange, raw.YearBuilt},
	} {
		if check.v != nil && (*check.v < check.r.min || *check.v > check.r.max) {
			return nil, invalid(check.r.field, "%d is outside [%d, %d]", *check.v, check.r.min, check.r.max)
		}
	}
	if raw.Lat != nil && (*raw.Lat < -90 || *raw.Lat > 90) {
		return nil, invalid("lat", "%v is outside [-90, 90]", *raw.Lat)
	}
	if raw.Lon != nil && (*raw.Lon < -180 || *raw.Lon > 180) {
		return nil, invalid("lon", "%v is outside [-180, 180]", *raw.Lon)
	}

	if raw.Rooms != nil && raw.Bedrooms != nil && *raw.Bedrooms > *raw.Rooms {
		return nil, invalid("bedrooms", "%d bedrooms exceeds %d rooms", *raw.Bedrooms, *raw.Rooms)
	}

	scrapedAt := raw.ScrapedAt
	if scrapedAt.IsZero() {
		scrapedAt = now
	}

	return &Listing{
		ExternalID:  externalID,
		URL:         url,
		Address:     strings.TrimSpace(raw.Address),
		City:        city,
		PostalCode:  postalCode,
		ListingType: listingType,
		Price:       price,
		LivingArea:  livingArea,
		PlotArea:    plotArea,
		Rooms:       raw.Rooms,
		Bedrooms:    raw.Bedrooms,
		Bathrooms:   raw.Bathrooms,
		YearBuilt:   raw.YearBuilt,
		EnergyLabel: energyLabel,
		Lat:         raw.Lat,
		Lon:         raw.Lon,
		Description: optionalString(raw.Description),
		Source:      raw.Source,
		Raw:         raw.Raw,
		ScrapedAt:   NormalizeTime(scrapedAt),
	}, nil
}

// ValidateBatch validates every raw listing independently. Valid listings
// keep their input order; a rejection never stops the batch.
func ValidateBatch(raws []source.RawListing, now time.Time) ([]Listing, []Rejection) {
	valid := make([]Listing, 0, len(raws))
	var rejected []Rejection
	for _, raw := range raws {
		listing, err := Validate(raw, now)
		if err != nil {
			log.Printf("Validator: rejected listing %q: %v", raw.ExternalID, err)
			rejected = append(rejected, Rejection{Raw: raw, Err: err})
			continue
		}
		valid = append(valid, *listing)
	}
	return valid, rejected
}

// NormalizeTime converts t to UTC with millisecond precision so values
// survive a round-trip through any of the supported databases unchanged
func NormalizeTime(t time.Time) time.Time {
	return t.UTC().Truncate(time.Millisecond)
}

// NormalizeCity trims the name and upper-cases the first letter of every
// word, where a word is any run of letters ("'s-hertogenbosch" becomes
// "'S-Hertogenbosch").
func NormalizeCity(city string) string {
	city = strings.TrimSpace(city)
	var b strings.Builder
	b.Grow(len(city))
	prevLetter := false
	for _, r := range city {
		if unicode.IsLetter(r) {
			if prevLetter {
				b.WriteRune(unicode.ToLower(r))
			} else {
				b.WriteRune(unicode.ToUpper(r))
			}
			prevLetter = true
			continue
		}
		b.WriteRune(r)
		prevLetter = false
	}
	return b.String()
}

func parsePrice(v any) (int, error) {
	var price int
	switch t := v.(type) {
	case nil:
		return 0, invalid("price", "is required")
	case int:
		price = t
	case int64:
		price = int(t)
	case float64:
		if t != math.Trunc(t) {
			return 0, invalid("price", "%v is not a whole amount", t)
		}
		price = int(t)
	case json.Number:
		n, err := strconv.Atoi(t.String())
		if err != nil {
			return 0, invalid("price", "%q is not a whole amount", t)
		}
		price = n
	case string:
		s := strings.TrimSpace(t)
		var digits strings.Builder
		for _, r := range s {
			if r >= '0' && r <= '9' {
				digits.WriteRune(r)
			}
		}
		if digits.Len() == 0 {
			return 0, invalid("price", "no digits in %q", t)
		}
		n, err := strconv.Atoi(digits.String())
		if err != nil {
			return 0, invalid("price", "cannot parse %q", t)
		}
		if strings.HasPrefix(s, "-") {
			n = -n
		}
		price = n
	default:
		return 0, invalid("price", "unsupported type %T", v)
	}
	if price <= 0 {
		return 0, invalid("price", "must be positive, got %d", price)
	}
	return price, nil
}

func parseArea(field string, v any) (*int, error) {
	var area int
	switch t := v.(type) {
	case nil:
		return nil, nil
	case int:
		area = t
	case int64:
		area = int(t)
	case float64:
		area = int(t)
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return nil, nil
		}
		area = int(f)
	case string:
		m := numberToken.FindString(t)
		if m == "" {
			return nil, nil
		}
		f, err := strconv.ParseFloat(strings.ReplaceAll(m, ",", "."), 64)
		if err != nil {
			return nil, nil
		}
		area = int(f)
	default:
		return nil, nil
	}
	if area <= 0 {
		return nil, invalid(field, "must be positive, got %d", area)
	}
	return &area, nil
}

func normalizePostalCode(s string) (*string, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" {
		return nil, nil
	}
	m := postalCodePattern.FindStringSubmatch(s)
	if m == nil {
		return nil, invalid("postal_code", "%q is not a Dutch postal code", s)
	}
	code := m[1] + " " + m[2]
	return &code, nil
}

func normalizeEnergyLabel(s string) (*string, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" {
		return nil, nil
	}
	if !energyLabels[s] {
		return nil, invalid("energy_label", "unknown label %q", s)
	}
	return &s, nil
}

func optionalString(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
