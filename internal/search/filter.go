package search

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/meilisearch/meilisearch-go"
)

// ErrInvalidSort is returned for a sort key the index cannot sort by
var ErrInvalidSort = errors.New("unsupported sort")

type FilterParams struct {
	Query        string
	City         string
	ListingType  string
	Status       string // "" means active, "all" disables the filter
	MinPrice     *int
	MaxPrice     *int
	MinRooms     *int
	MinArea      *int
	EnergyLabels []string
	SortBy       string
	Limit        int64
	Offset       int64
}

var sortFields = map[string]bool{
	"price":         true,
	"price_per_sqm": true,
	"living_area":   true,
	"first_seen_at": true,
	"updated_at":    true,
}

// FilterSearch performs a full-text search narrowed by params
func (s *SearchClient) FilterSearch(params FilterParams) (*SearchResult, error) {
	sort, err := parseSort(params.SortBy)
	if err != nil {
		return nil, err
	}
	if params.Limit <= 0 {
		params.Limit = 20
	}

	req := &meilisearch.SearchRequest{
		Limit:  params.Limit,
		Offset: params.Offset,
	}
	if filter := buildFilter(params); filter != "" {
		req.Filter = filter
	}
	if len(sort) > 0 {
		req.Sort = sort
	}
	return s.search(params.Query, req)
}

// buildFilter renders params as a Meilisearch filter expression
func buildFilter(params FilterParams) string {
	var filters []string

	switch params.Status {
	case "all":
	case "":
		filters = append(filters, fmt.Sprintf("status = %s", quote("active")))
	default:
		filters = append(filters, fmt.Sprintf("status = %s", quote(params.Status)))
	}

	if params.City != "" {
		filters = append(filters, fmt.Sprintf("city = %s", quote(params.City)))
	}
	if params.ListingType != "" {
		filters = append(filters, fmt.Sprintf("listing_type = %s", quote(params.ListingType)))
	}
	if params.MinPrice != nil {
		filters = append(filters, fmt.Sprintf("price >= %d", *params.MinPrice))
	}
	if params.MaxPrice != nil {
		filters = append(filters, fmt.Sprintf("price <= %d", *params.MaxPrice))
	}
	if params.MinRooms != nil {
		filters = append(filters, fmt.Sprintf("rooms >= %d", *params.MinRooms))
	}
	if params.MinArea != nil {
		filters = append(filters, fmt.Sprintf("living_area >= %d", *params.MinArea))
	}

	if len(params.EnergyLabels) > 0 {
		labels := make([]string, len(params.EnergyLabels))
		for i, label := range params.EnergyLabels {
			labels[i] = fmt.Sprintf("energy_label = %s", quote(label))
		}
		filters = append(filters, fmt.Sprintf("(%s)", strings.Join(labels, " OR ")))
	}

	return strings.Join(filters, " AND ")
}

// parseSort accepts "field" or "field:asc|desc" for sortable fields
func parseSort(sortBy string) ([]string, error) {
	if sortBy == "" {
		return nil, nil
	}
	field, dir, found := strings.Cut(sortBy, ":")
	if !found {
		dir = "asc"
	}
	if !sortFields[field] || (dir != "asc" && dir != "desc") {
		return nil, fmt.Errorf("%w %q", ErrInvalidSort, sortBy)
	}
	return []string{field + ":" + dir}, nil
}

func quote(s string) string {
	return strconv.Quote(s)
}
