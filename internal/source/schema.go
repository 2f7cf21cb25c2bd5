package source

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

// Canonical field names of a RawListing
const (
	FieldExternalID  = "external_id"
	FieldURL         = "url"
	FieldAddress     = "address"
	FieldCity        = "city"
	FieldPostalCode  = "postal_code"
	FieldPrice       = "price"
	FieldLivingArea  = "living_area"
	FieldPlotArea    = "plot_area"
	FieldRooms       = "rooms"
	FieldBedrooms    = "bedrooms"
	FieldBathrooms   = "bathrooms"
	FieldYearBuilt   = "year_built"
	FieldEnergyLabel = "energy_label"
	FieldLat         = "lat"
	FieldLon         = "lon"
	FieldDescription = "description"
)

// Schema maps each canonical field to the upstream keys that may carry it,
// in order of preference. Supporting a new upstream format means adding a
// Schema value, not new branching code.
type Schema struct {
	Name   string
	Fields map[string][]string
}

// APISchema describes records returned by the listing JSON API
var APISchema = Schema{
	Name: "api",
	Fields: map[string][]string{
		FieldExternalID:  {"global_id", "id", "listing_id"},
		FieldURL:         {"url", "detail_url"},
		FieldAddress:     {"title", "address"},
		FieldCity:        {"city"},
		FieldPostalCode:  {"postcode", "postal_code", "zip_code"},
		FieldPrice:       {"price", "asking_price"},
		FieldLivingArea:  {"living_area", "floor_area"},
		FieldPlotArea:    {"plot_area", "land_area"},
		FieldRooms:       {"rooms", "num_of_rooms"},
		FieldBedrooms:    {"bedrooms", "num_of_bedrooms"},
		FieldBathrooms:   {"bathrooms", "num_of_bathrooms"},
		FieldYearBuilt:   {"construction_year", "year_built"},
		FieldEnergyLabel: {"energy_label"},
		FieldLat:         {"latitude", "lat"},
		FieldLon:         {"longitude", "lon", "lng"},
		FieldDescription: {"description", "desc"},
	},
}

// HTMLSchema describes records scraped from search result cards
var HTMLSchema = Schema{
	Name: "html",
	Fields: map[string][]string{
		FieldExternalID:  {"listing_id", "id"},
		FieldURL:         {"url"},
		FieldAddress:     {"address"},
		FieldCity:        {"city"},
		FieldPostalCode:  {"zip_code", "postal_code"},
		FieldPrice:       {"price"},
		FieldLivingArea:  {"living_area", "floor_area"},
		FieldPlotArea:    {"plot_area", "land_area"},
		FieldRooms:       {"num_of_rooms", "rooms"},
		FieldBedrooms:    {"num_of_bedrooms", "bedrooms"},
		FieldBathrooms:   {"num_of_bathrooms", "bathrooms"},
		FieldYearBuilt:   {"year_built", "construction_year"},
		FieldEnergyLabel: {"energy_label"},
		FieldLat:         {"latitude", "lat"},
		FieldLon:         {"longitude", "lon"},
		FieldDescription: {"description", "desc"},
	},
}

// Lookup returns the first alias of field holding a non-empty value
func (s Schema) Lookup(record map[string]any, field string) (any, bool) {
	for _, key := range s.Fields[field] {
		v, ok := record[key]
		if !ok || v == nil {
			continue
		}
		if str, isStr := v.(string); isStr && strings.TrimSpace(str) == "" {
			continue
		}
		return v, true
	}
	return nil, false
}

// Normalize maps an upstream record onto a RawListing. Listing type, source
// tag and scrape time are left for the caller.
func (s Schema) Normalize(record map[string]any) RawListing {
	raw := RawListing{
		ExternalID:  s.strField(record, FieldExternalID),
		URL:         s.strField(record, FieldURL),
		Address:     s.strField(record, FieldAddress),
		City:        s.strField(record, FieldCity),
		PostalCode:  s.strField(record, FieldPostalCode),
		EnergyLabel: s.strField(record, FieldEnergyLabel),
		Description: s.strField(record, FieldDescription),
		Rooms:       s.intField(record, FieldRooms),
		Bedrooms:    s.intField(record, FieldBedrooms),
		Bathrooms:   s.intField(record, FieldBathrooms),
		YearBuilt:   s.intField(record, FieldYearBuilt),
		Lat:         s.floatField(record, FieldLat),
		Lon:         s.floatField(record, FieldLon),
		Source:      s.Name,
		Raw:         record,
	}
	raw.Price, _ = s.Lookup(record, FieldPrice)
	raw.LivingArea, _ = s.Lookup(record, FieldLivingArea)
	raw.PlotArea, _ = s.Lookup(record, FieldPlotArea)
	return raw
}

func (s Schema) strField(record map[string]any, field string) string {
	v, ok := s.Lookup(record, field)
	if !ok {
		return ""
	}
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case float64:
		// JSON ids arrive as numbers
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return strings.TrimSpace(fmt.Sprint(t))
	}
}

var intToken = regexp.MustCompile(`-?\d+`)

func (s Schema) intField(record map[string]any, field string) *int {
	v, ok := s.Lookup(record, field)
	if !ok {
		return nil
	}
	switch t := v.(type) {
	case int:
		return &t
	case int64:
		n := int(t)
		return &n
	case float64:
		if t != math.Trunc(t) {
			return nil
		}
		n := int(t)
		return &n
	case json.Number:
		n, err := strconv.Atoi(t.String())
		if err != nil {
			return nil
		}
		return &n
	case string:
		m := intToken.FindString(t)
		if m == "" {
			return nil
		}
		n, err := strconv.Atoi(m)
		if err != nil {
			return nil
		}
		return &n
	}
	return nil
}

func (s Schema) floatField(record map[string]any, field string) *float64 {
	v, ok := s.Lookup(record, field)
	if !ok {
		return nil
	}
	switch t := v.(type) {
	case float64:
		return &t
	case int:
		f := float64(t)
		return &f
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return nil
		}
		return &f
	case string:
		f, err := strconv.ParseFloat(strings.ReplaceAll(strings.TrimSpace(t), ",", "."), 64)
		if err != nil {
			return nil
		}
		return &f
	}
	return nil
}
