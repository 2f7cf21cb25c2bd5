package source

import (
	"context"
	"fmt"
	"io"
	"log"
	"math/rand"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"funda-finder/internal/ratelimit"

	"github.com/PuerkitoBio/goquery"
)

// Fetcher retrieves the HTML of a page
type Fetcher interface {
	Fetch(ctx context.Context, pageURL string) (string, error)
}

var userAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:121.0) Gecko/20100101 Firefox/121.0",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
}

// HTTPFetcher fetches pages with a plain HTTP client, rotating user agents
type HTTPFetcher struct {
	client *http.Client
}

// NewHTTPFetcher creates a fetcher with the given timeout
func NewHTTPFetcher(timeout time.Duration) *HTTPFetcher {
	return &HTTPFetcher{client: &http.Client{Timeout: timeout}}
}

func (f *HTTPFetcher) Fetch(ctx context.Context, pageURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return "", Permanent(err)
	}
	req.Header.Set("User-Agent", userAgents[rand.Intn(len(userAgents))])
	req.Header.Set("Accept", "text/html,application/xhtml+xml")
	req.Header.Set("Accept-Language", "nl-NL,nl;q=0.9,en;q=0.8")

	resp, err := f.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch %s: %w", pageURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		err := fmt.Errorf("fetch %s: status %d", pageURL, resp.StatusCode)
		if resp.StatusCode == http.StatusNotFound {
			return "", Permanent(err)
		}
		return "", err
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", pageURL, err)
	}
	return string(body), nil
}

// HTMLSource scrapes search result pages. Each listing card is an element
// carrying data-listing-id; its fields are children tagged data-field="key",
// where key is one of the HTMLSchema aliases.
type HTMLSource struct {
	baseURL string
	fetcher Fetcher
	limiter *ratelimit.Limiter
	schema  Schema
	now     func() time.Time
}

// HTMLConfig configures an HTMLSource
type HTMLConfig struct {
	BaseURL string
	Fetcher Fetcher
	Limiter *ratelimit.Limiter
	Now     func() time.Time
}

// NewHTMLSource creates an HTML-backed source
func NewHTMLSource(cfg HTMLConfig) *HTMLSource {
	if cfg.Fetcher == nil {
		cfg.Fetcher = NewHTTPFetcher(30 * time.Second)
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &HTMLSource{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		fetcher: cfg.Fetcher,
		limiter: cfg.Limiter,
		schema:  HTMLSchema,
		now:     cfg.Now,
	}
}

func (s *HTMLSource) Name() string {
	return "html"
}

// Search fetches the first result page for the filters and parses its cards.
// Price bounds are applied here since the page itself is unfiltered.
func (s *HTMLSource) Search(ctx context.Context, filters Filters) ([]RawListing, error) {
	pageURL := s.searchURL(filters)

	if s.limiter != nil {
		if err := s.limiter.Acquire(ctx); err != nil {
			return nil, err
		}
		defer s.limiter.Release()
	}

	html, err := s.fetcher.Fetch(ctx, pageURL)
	if err != nil {
		return nil, err
	}

	records, err := s.parseCards(html)
	if err != nil {
		return nil, err
	}
	log.Printf("HTMLSource: parsed %d cards from %s", len(records), pageURL)

	scrapedAt := s.now().UTC()
	listings := make([]RawListing, 0, len(records))
	for _, record := range records {
		raw := s.schema.Normalize(record)
		raw.ListingType = string(filters.ListingType)
		raw.ScrapedAt = scrapedAt
		if raw.City == "" {
			raw.City = filters.City
		}
		if filters.PriceMin != nil || filters.PriceMax != nil {
			if price, ok := digitsOnly(raw.Price); ok && !withinPriceRange(price, filters) {
				continue
			}
		}
		listings = append(listings, raw)
		if filters.MaxResults > 0 && len(listings) >= filters.MaxResults {
			break
		}
	}
	return listings, nil
}

func (s *HTMLSource) searchURL(filters Filters) string {
	area := fmt.Sprintf(`["%s"]`, citySlug(filters.City))
	return fmt.Sprintf("%s/zoeken/%s?selected_area=%s",
		s.baseURL, listingPath(filters.ListingType), url.QueryEscape(area))
}

func (s *HTMLSource) parseCards(html string) ([]map[string]any, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("failed to parse html: %w", err)
	}

	var records []map[string]any
	doc.Find("[data-listing-id]").Each(func(_ int, card *goquery.Selection) {
		record := map[string]any{
			"listing_id": strings.TrimSpace(card.AttrOr("data-listing-id", "")),
		}
		if href, ok := card.Find("a[href]").First().Attr("href"); ok {
			record["url"] = s.resolve(href)
		}
		if lat, ok := card.Attr("data-lat"); ok {
			record["lat"] = lat
		}
		if lon, ok := card.Attr("data-lon"); ok {
			record["lon"] = lon
		}
		card.Find("[data-field]").Each(func(_ int, field *goquery.Selection) {
			key := field.AttrOr("data-field", "")
			if key == "" {
				return
			}
			record[key] = strings.Join(strings.Fields(field.Text()), " ")
		})
		records = append(records, record)
	})
	return records, nil
}

func (s *HTMLSource) resolve(href string) string {
	ref, err := url.Parse(href)
	if err != nil {
		return href
	}
	base, err := url.Parse(s.baseURL + "/")
	if err != nil {
		return href
	}
	return base.ResolveReference(ref).String()
}

// digitsOnly extracts the digits of a loosely typed price
func digitsOnly(v any) (int, bool) {
	switch t := v.(type) {
	case float64:
		return int(t), true
	case int:
		return t, true
	case string:
		var b strings.Builder
		for _, r := range t {
			if r >= '0' && r <= '9' {
				b.WriteRune(r)
			}
		}
		n, err := strconv.Atoi(b.String())
		return n, err == nil
	}
	return 0, false
}
