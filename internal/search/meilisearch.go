package search

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"funda-finder/internal/models"

	"github.com/meilisearch/meilisearch-go"
	"gorm.io/gorm"
)

const defaultIndex = "properties"

// documentBatch bounds one AddDocuments call
const documentBatch = 1000

// Document is the search representation of a property
type Document struct {
	ID          uint     `json:"id"`
	ExternalID  string   `json:"external_id"`
	URL         string   `json:"url"`
	Address     string   `json:"address"`
	City        string   `json:"city"`
	PostalCode  string   `json:"postal_code,omitempty"`
	ListingType string   `json:"listing_type"`
	Status      string   `json:"status"`
	Price       *int     `json:"price,omitempty"`
	LivingArea  *int     `json:"living_area,omitempty"`
	Rooms       *int     `json:"rooms,omitempty"`
	Bedrooms    *int     `json:"bedrooms,omitempty"`
	YearBuilt   *int     `json:"year_built,omitempty"`
	EnergyLabel string   `json:"energy_label,omitempty"`
	PricePerSqm *float64 `json:"price_per_sqm,omitempty"`
	Lat         *float64 `json:"lat,omitempty"`
	Lon         *float64 `json:"lon,omitempty"`
	FirstSeenAt int64    `json:"first_seen_at"`
	UpdatedAt   int64    `json:"updated_at"`
}

// NewDocument flattens a property for indexing
func NewDocument(p *models.Property) Document {
	doc := Document{
		ID:          p.ID,
		ExternalID:  p.ExternalID,
		URL:         p.URL,
		Address:     p.Address,
		City:        p.City,
		ListingType: string(p.ListingType),
		Status:      string(p.Status),
		Price:       p.Price,
		LivingArea:  p.LivingArea,
		Rooms:       p.Rooms,
		Bedrooms:    p.Bedrooms,
		YearBuilt:   p.YearBuilt,
		Lat:         p.Lat,
		Lon:         p.Lon,
		FirstSeenAt: p.FirstSeenAt.Unix(),
		UpdatedAt:   p.UpdatedAt.Unix(),
	}
	if p.PostalCode != nil {
		doc.PostalCode = *p.PostalCode
	}
	if p.EnergyLabel != nil {
		doc.EnergyLabel = *p.EnergyLabel
	}
	if pps, ok := p.PricePerSqm(); ok {
		v := float64(int(pps*100+0.5)) / 100
		doc.PricePerSqm = &v
	}
	return doc
}

type SearchClient struct {
	client *meilisearch.Client
	index  string
	db     *gorm.DB
}

// NewSearchClient connects to Meilisearch. db is used to load the documents
// of a scope when indexing.
func NewSearchClient(host, apiKey, index string, db *gorm.DB) *SearchClient {
	client := meilisearch.NewClient(meilisearch.ClientConfig{
		Host:    host,
		APIKey:  apiKey,
		Timeout: 10 * time.Second,
	})
	if index == "" {
		index = defaultIndex
	}

	return &SearchClient{
		client: client,
		index:  index,
		db:     db,
	}
}

// InitIndex initializes the Meilisearch index
func (s *SearchClient) InitIndex() error {
	_, err := s.client.CreateIndex(&meilisearch.IndexConfig{
		Uid:        s.index,
		PrimaryKey: "id",
	})
	// Ignore error if index already exists
	if err != nil && !strings.Contains(err.Error(), "index_already_exists") {
		return err
	}

	idx := s.client.Index(s.index)
	if _, err := idx.UpdateSearchableAttributes(&[]string{
		"address",
		"city",
		"postal_code",
		"external_id",
	}); err != nil {
		return err
	}

	if _, err := idx.UpdateFilterableAttributes(&[]string{
		"city",
		"listing_type",
		"status",
		"price",
		"living_area",
		"rooms",
		"energy_label",
		"year_built",
	}); err != nil {
		return err
	}

	if _, err := idx.UpdateSortableAttributes(&[]string{
		"price",
		"price_per_sqm",
		"living_area",
		"first_seen_at",
		"updated_at",
	}); err != nil {
		return err
	}
	return nil
}

// IndexProperties indexes multiple properties
func (s *SearchClient) IndexProperties(properties []models.Property) error {
	for start := 0; start < len(properties); start += documentBatch {
		end := start + documentBatch
		if end > len(properties) {
			end = len(properties)
		}
		docs := make([]Document, 0, end-start)
		for i := start; i < end; i++ {
			docs = append(docs, NewDocument(&properties[i]))
		}
		if _, err := s.client.Index(s.index).AddDocuments(docs, "id"); err != nil {
			return fmt.Errorf("failed to index %d documents: %w", len(docs), err)
		}
	}
	return nil
}

// IndexScope pushes every property of scope, inactive ones included so their
// status is updated in the index. It runs after each successful reconcile.
func (s *SearchClient) IndexScope(ctx context.Context, scope models.Scope) error {
	var properties []models.Property
	err := s.db.WithContext(ctx).
		Where("LOWER(REPLACE(city, ' ', '-')) = ? AND listing_type = ?", scope.Slug(), scope.ListingType).
		Order("id ASC").
		Find(&properties).Error
	if err != nil {
		return fmt.Errorf("failed to load %s for indexing: %w", scope, err)
	}
	if err := s.IndexProperties(properties); err != nil {
		return err
	}
	log.Printf("Search: indexed %d properties for %s", len(properties), scope)
	return nil
}

// SearchResult represents search results
type SearchResult struct {
	Hits           []Document `json:"hits"`
	TotalHits      int64      `json:"total_hits"`
	ProcessingTime int64      `json:"processing_time_ms"`
}

// search runs one query and decodes the hits as documents
func (s *SearchClient) search(query string, req *meilisearch.SearchRequest) (*SearchResult, error) {
	searchRes, err := s.client.Index(s.index).Search(query, req)
	if err != nil {
		return nil, err
	}

	docs := make([]Document, 0, len(searchRes.Hits))
	for _, hit := range searchRes.Hits {
		hitJSON, err := json.Marshal(hit)
		if err != nil {
			continue
		}
		var doc Document
		if err := json.Unmarshal(hitJSON, &doc); err != nil {
			continue
		}
		docs = append(docs, doc)
	}

	return &SearchResult{
		Hits:           docs,
		TotalHits:      searchRes.EstimatedTotalHits,
		ProcessingTime: searchRes.ProcessingTimeMs,
	}, nil
}
