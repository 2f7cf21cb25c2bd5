package search

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"funda-finder/internal/database"
	"funda-finder/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intPtr(v int) *int { return &v }

func TestBuildFilter(t *testing.T) {
	assert.Equal(t, `status = "active"`, buildFilter(FilterParams{}))
	assert.Equal(t, "", buildFilter(FilterParams{Status: "all"}))

	got := buildFilter(FilterParams{
		City:         "Den Haag",
		ListingType:  "buy",
		Status:       "inactive",
		MinPrice:     intPtr(250000),
		MaxPrice:     intPtr(500000),
		MinRooms:     intPtr(3),
		MinArea:      intPtr(70),
		EnergyLabels: []string{"A", "A+"},
	})
	assert.Equal(t,
		`status = "inactive" AND city = "Den Haag" AND listing_type = "buy" AND price >= 250000 AND price <= 500000 AND rooms >= 3 AND living_area >= 70 AND (energy_label = "A" OR energy_label = "A+")`,
		got)
}

func TestBuildFilterQuotesValues(t *testing.T) {
	got := buildFilter(FilterParams{Status: "all", City: `'s-Hertogenbosch" OR 1=1`})
	assert.Equal(t, `city = "'s-Hertogenbosch\" OR 1=1"`, got)
}

func TestParseSort(t *testing.T) {
	sort, err := parseSort("price")
	require.NoError(t, err)
	assert.Equal(t, []string{"price:asc"}, sort)

	sort, err = parseSort("price_per_sqm:desc")
	require.NoError(t, err)
	assert.Equal(t, []string{"price_per_sqm:desc"}, sort)

	sort, err = parseSort("")
	require.NoError(t, err)
	assert.Nil(t, sort)

	_, err = parseSort("address:asc")
	assert.Error(t, err)
	_, err = parseSort("price:up")
	assert.Error(t, err)
}

func TestNewDocument(t *testing.T) {
	seen := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	postal, label := "1012 AB", "B"
	p := &models.Property{
		ID:          7,
		ExternalID:  "43210",
		City:        "Amsterdam",
		PostalCode:  &postal,
		EnergyLabel: &label,
		ListingType: models.ListingTypeBuy,
		Status:      models.PropertyStatusActive,
		Price:       intPtr(500000),
		LivingArea:  intPtr(75),
		FirstSeenAt: seen,
		UpdatedAt:   seen.Add(time.Hour),
	}

	doc := NewDocument(p)
	assert.Equal(t, uint(7), doc.ID)
	assert.Equal(t, "1012 AB", doc.PostalCode)
	assert.Equal(t, "B", doc.EnergyLabel)
	assert.Equal(t, "buy", doc.ListingType)
	require.NotNil(t, doc.PricePerSqm)
	assert.InDelta(t, 6666.67, *doc.PricePerSqm, 0.001)
	assert.Equal(t, seen.Unix(), doc.FirstSeenAt)

	p.LivingArea = nil
	assert.Nil(t, NewDocument(p).PricePerSqm)
}

// fakeMeili records document additions and answers searches with canned hits
type fakeMeili struct {
	mu   sync.Mutex
	docs []Document
	hits []Document
}

func (f *fakeMeili) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	switch {
	case strings.HasSuffix(r.URL.Path, "/documents"):
		var docs []Document
		if err := json.NewDecoder(r.Body).Decode(&docs); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		f.mu.Lock()
		f.docs = append(f.docs, docs...)
		f.mu.Unlock()
		w.WriteHeader(http.StatusAccepted)
		w.Write([]byte(`{"taskUid":1,"indexUid":"properties","status":"enqueued","type":"documentAdditionOrUpdate","enqueuedAt":"2026-06-01T06:00:00Z"}`))
	case strings.HasSuffix(r.URL.Path, "/search"):
		body, _ := json.Marshal(map[string]any{
			"hits":               f.hits,
			"estimatedTotalHits": len(f.hits),
			"processingTimeMs":   3,
			"query":              "",
			"limit":              20,
			"offset":             0,
		})
		w.Write(body)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func TestIndexScopePushesScopeProperties(t *testing.T) {
	gdb, err := database.NewInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { gdb.Close() })
	db := gdb.DB()

	seen := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	for _, p := range []models.Property{
		{ExternalID: "1", URL: "https://www.funda.nl/1", City: "Den Haag", ListingType: models.ListingTypeBuy, Status: models.PropertyStatusActive},
		{ExternalID: "2", URL: "https://www.funda.nl/2", City: "Den Haag", ListingType: models.ListingTypeBuy, Status: models.PropertyStatusInactive},
		{ExternalID: "3", URL: "https://www.funda.nl/3", City: "Den Haag", ListingType: models.ListingTypeRent, Status: models.PropertyStatusActive},
		{ExternalID: "4", URL: "https://www.funda.nl/4", City: "Utrecht", ListingType: models.ListingTypeBuy, Status: models.PropertyStatusActive},
	} {
		p.FirstSeenAt, p.ScrapedAt, p.UpdatedAt = seen, seen, seen
		require.NoError(t, db.Create(&p).Error)
	}

	fake := &fakeMeili{}
	srv := httptest.NewServer(fake)
	defer srv.Close()

	client := NewSearchClient(srv.URL, "", "", db)
	err = client.IndexScope(context.Background(), models.Scope{City: "den-haag", ListingType: models.ListingTypeBuy})
	require.NoError(t, err)

	require.Len(t, fake.docs, 2)
	assert.Equal(t, "1", fake.docs[0].ExternalID)
	assert.Equal(t, "active", fake.docs[0].Status)
	assert.Equal(t, "2", fake.docs[1].ExternalID)
	assert.Equal(t, "inactive", fake.docs[1].Status)
}

func TestFilterSearchDecodesHits(t *testing.T) {
	fake := &fakeMeili{hits: []Document{
		{ID: 1, ExternalID: "1", City: "Utrecht", Price: intPtr(350000)},
	}}
	srv := httptest.NewServer(fake)
	defer srv.Close()

	client := NewSearchClient(srv.URL, "", "properties", nil)
	res, err := client.FilterSearch(FilterParams{Query: "utrecht", SortBy: "price:asc"})
	require.NoError(t, err)
	require.Len(t, res.Hits, 1)
	assert.Equal(t, "Utrecht", res.Hits[0].City)
	assert.Equal(t, 350000, *res.Hits[0].Price)
	assert.Equal(t, int64(1), res.TotalHits)
}

func TestFilterSearchRejectsUnknownSort(t *testing.T) {
	client := NewSearchClient("http://127.0.0.1:1", "", "", nil)
	_, err := client.FilterSearch(FilterParams{SortBy: "address"})
	assert.Error(t, err)
}
