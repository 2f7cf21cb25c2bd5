package models

import (
	"fmt"
	"strings"
)

// Scope is the unit a run reconciles: one city and one listing type.
// Delisting only ever happens within the scope that was scraped.
type Scope struct {
	City        string      `json:"city"`
	ListingType ListingType `json:"listing_type"`
}

// Slug returns the lower-case, dash-separated city name ("Den Haag" becomes "den-haag")
func (s Scope) Slug() string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s.City)), " ", "-")
}

func (s Scope) String() string {
	return fmt.Sprintf("%s/%s", s.Slug(), s.ListingType)
}
