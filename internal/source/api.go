package source

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"funda-finder/internal/ratelimit"
)

// APISource queries the listing JSON search endpoint
type APISource struct {
	baseURL   string
	client    *http.Client
	limiter   *ratelimit.Limiter
	userAgent string
	schema    Schema
	now       func() time.Time
}

// APIConfig configures an APISource
type APIConfig struct {
	BaseURL   string
	Timeout   time.Duration
	UserAgent string
	Limiter   *ratelimit.Limiter
	Now       func() time.Time
}

// NewAPISource creates an API-backed source
func NewAPISource(cfg APIConfig) *APISource {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &APISource{
		baseURL:   cfg.BaseURL,
		client:    &http.Client{Timeout: cfg.Timeout},
		limiter:   cfg.Limiter,
		userAgent: cfg.UserAgent,
		schema:    APISchema,
		now:       cfg.Now,
	}
}

func (s *APISource) Name() string {
	return "api"
}

type searchResponse struct {
	Listings []map[string]any `json:"listings"`
}

// Search fetches one result page and normalizes every record
func (s *APISource) Search(ctx context.Context, filters Filters) ([]RawListing, error) {
	endpoint, err := s.searchURL(filters)
	if err != nil {
		return nil, Permanent(err)
	}

	if s.limiter != nil {
		if err := s.limiter.Acquire(ctx); err != nil {
			return nil, err
		}
		defer s.limiter.Release()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, Permanent(err)
	}
	req.Header.Set("Accept", "application/json")
	if s.userAgent != "" {
		req.Header.Set("User-Agent", s.userAgent)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("api request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		err := fmt.Errorf("api returned status %d", resp.StatusCode)
		// Don't retry client errors except 429
		if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
			return nil, Permanent(err)
		}
		return nil, err
	}

	var body searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("failed to decode api response: %w", err)
	}

	scrapedAt := s.now().UTC()
	listings := make([]RawListing, 0, len(body.Listings))
	for _, record := range body.Listings {
		raw := s.schema.Normalize(record)
		raw.ListingType = string(filters.ListingType)
		raw.ScrapedAt = scrapedAt
		if raw.City == "" {
			raw.City = filters.City
		}
		if raw.URL == "" && raw.ExternalID != "" {
			raw.URL = fmt.Sprintf("https://www.funda.nl/%s/%s/%s/",
				listingPath(filters.ListingType), citySlug(raw.City), raw.ExternalID)
		}
		listings = append(listings, raw)
		if filters.MaxResults > 0 && len(listings) >= filters.MaxResults {
			break
		}
	}
	return listings, nil
}

func (s *APISource) searchURL(filters Filters) (string, error) {
	u, err := url.Parse(s.baseURL)
	if err != nil {
		return "", fmt.Errorf("invalid api base url: %w", err)
	}
	u = u.JoinPath("search")

	q := u.Query()
	q.Set("city", citySlug(filters.City))
	q.Set("type", string(filters.ListingType))
	if filters.PriceMin != nil {
		q.Set("price_min", strconv.Itoa(*filters.PriceMin))
	}
	if filters.PriceMax != nil {
		q.Set("price_max", strconv.Itoa(*filters.PriceMax))
	}
	if filters.MaxResults > 0 {
		q.Set("limit", strconv.Itoa(filters.MaxResults))
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}
