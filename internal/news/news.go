// Package news fetches and filters Google News headlines for alert enrichment.
package news

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mmcdole/gofeed/rss"
	"github.com/rs/zerolog"

	"github.com/mjessen/stockalerts/internal/models"
)

// Config holds the headline fetch parameters.
type Config struct {
	Limit         int
	LookbackHours int
	Lang          string
	Country       string
	Endpoint      string
	Timeout       time.Duration
}

// Fetcher retrieves headlines from a Google News RSS search feed.
type Fetcher struct {
	cfg    Config
	parser *rss.Parser
	client *http.Client
	now    func() time.Time
	log    zerolog.Logger
}

// New creates a fetcher. Endpoint defaults to the Google News RSS search URL.
func New(cfg Config, log zerolog.Logger) *Fetcher {
	if cfg.Endpoint == "" {
		cfg.Endpoint = "https://news.google.com/rss/search"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.Limit <= 0 {
		cfg.Limit = 2
	}
	if cfg.LookbackHours <= 0 {
		cfg.LookbackHours = 12
	}
	return &Fetcher{
		cfg:    cfg,
		parser: &rss.Parser{},
		client: &http.Client{Timeout: cfg.Timeout},
		now:    time.Now,
		log:    log,
	}
}

// BuildQuery composes the search expression for a company.
func BuildQuery(name, ticker string) string {
	return fmt.Sprintf("%s %s finance", name, ticker)
}

// searchURL builds the feed URL: percent-encoded query with a recency
// qualifier, localized by language and country.
func (f *Fetcher) searchURL(query string) string {
	q := url.QueryEscape(fmt.Sprintf("%s when:%dh", query, f.cfg.LookbackHours))
	return fmt.Sprintf("%s?q=%s&hl=%s-%s&gl=%s&ceid=%s:%s",
		f.cfg.Endpoint, q,
		f.cfg.Lang, f.cfg.Country,
		f.cfg.Country,
		f.cfg.Country, f.cfg.Lang,
	)
}

// FetchHeadlines queries the feed and returns up to Limit fresh items.
// Entries older than the lookback window or without a usable title and
// publication date are skipped; a single malformed entry never aborts
// the fetch.
func (f *Fetcher) FetchHeadlines(ctx context.Context, query string) ([]models.HeadlineItem, error) {
	feedURL := f.searchURL(query)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feedURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build feed request: %w", err)
	}
	req.Header.Set("Accept", "application/rss+xml, application/xml")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch feed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("feed returned status %d", resp.StatusCode)
	}

	feed, err := f.parser.Parse(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse feed: %w", err)
	}

	cutoff := f.now().UTC().Add(-time.Duration(f.cfg.LookbackHours) * time.Hour)

	var items []models.HeadlineItem
	for _, entry := range feed.Items {
		if len(items) >= f.cfg.Limit {
			break
		}
		if entry == nil || entry.Title == "" || entry.PubDateParsed == nil {
			continue
		}
		if entry.PubDateParsed.UTC().Before(cutoff) {
			continue
		}

		source := ""
		if entry.Source != nil {
			source = entry.Source.Title
		}
		if source == "" && len(entry.Categories) > 0 && entry.Categories[0] != nil {
			source = entry.Categories[0].Value
		}

		items = append(items, models.HeadlineItem{
			Title:  entry.Title,
			Source: source,
			Link:   entry.Link,
		})
	}

	f.log.Debug().Str("query", query).Int("kept", len(items)).Int("total", len(feed.Items)).Msg("fetched headlines")
	return items, nil
}

// FilterTitles keeps only items whose title contains any required keyword,
// case-insensitively. An empty keyword set passes everything through
// unchanged, order preserved.
func FilterTitles(items []models.HeadlineItem, required []string) []models.HeadlineItem {
	if len(required) == 0 {
		return items
	}

	var kept []models.HeadlineItem
	for _, item := range items {
		title := strings.ToLower(item.Title)
		for _, kw := range required {
			if kw == "" {
				continue
			}
			if strings.Contains(title, strings.ToLower(kw)) {
				kept = append(kept, item)
				break
			}
		}
	}
	return kept
}

// AlertHeadlines is the full pipeline used per alert: build the query,
// fetch candidates, and drop titles that never mention the company.
func (f *Fetcher) AlertHeadlines(ctx context.Context, name, ticker string, required []string) ([]models.HeadlineItem, error) {
	items, err := f.FetchHeadlines(ctx, BuildQuery(name, ticker))
	if err != nil {
		return nil, err
	}
	return FilterTitles(items, required), nil
}
