// Package company resolves ticker symbols to display names and the keyword
// set used for headline relevance filtering. Lookups go against the Yahoo
// quote endpoint and are cached in a local JSON file; every failure mode
// degrades to using the raw ticker, never blocking an alert.
package company

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Legal suffixes stripped from company names so the news keyword stays
// clean ("Apple Inc." -> "Apple", "SAP SE" -> "SAP").
var legalSuffixes = map[string]struct{}{
	"inc": {}, "inc.": {}, "incorporated": {},
	"corp": {}, "corp.": {}, "corporation": {},
	"co": {}, "co.": {}, "company": {},
	"ltd": {}, "ltd.": {}, "limited": {},
	"plc": {}, "se": {}, "ag": {}, "sa": {}, "s.a.": {}, "nv": {}, "n.v.": {},
	"oyj": {}, "ab": {}, "asa": {}, "spa": {}, "kgaa": {},
	"holding": {}, "holdings": {}, "group": {},
}

// Config holds the resolver settings.
type Config struct {
	CacheFile  string
	Endpoint   string
	Timeout    time.Duration
	MaxRetries int
}

// Meta is the cached metadata for one ticker.
type Meta struct {
	Ticker     string `json:"ticker"`
	Name       string `json:"name"`
	RawName    string `json:"raw_name"`
	Source     string `json:"source"`
	BaseTicker string `json:"base_ticker"`
}

// Resolver looks up and caches company metadata.
type Resolver struct {
	cfg    Config
	client *http.Client
	log    zerolog.Logger
}

// New creates a resolver.
func New(cfg Config, log zerolog.Logger) *Resolver {
	if cfg.Endpoint == "" {
		cfg.Endpoint = "https://query1.finance.yahoo.com"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 2
	}
	return &Resolver{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		log:    log,
	}
}

// AutoKeywords returns the display name for a ticker and the keyword set a
// headline title must contain. Lookup failure falls back to the base ticker.
func (r *Resolver) AutoKeywords(ctx context.Context, symbol string) (string, []string) {
	meta := r.resolve(ctx, symbol)

	name := meta.Name
	if name == "" {
		name = meta.BaseTicker
	}

	keywords := []string{name}
	if meta.BaseTicker != "" && !strings.EqualFold(meta.BaseTicker, name) {
		keywords = append(keywords, meta.BaseTicker)
	}
	return name, keywords
}

func (r *Resolver) resolve(ctx context.Context, symbol string) Meta {
	cache := r.loadCache()
	if meta, ok := cache[symbol]; ok {
		return meta
	}

	meta := Meta{
		Ticker:     symbol,
		Source:     "fallback",
		BaseTicker: BaseTicker(symbol),
	}

	rawName, source, err := r.fetchName(ctx, symbol)
	if err != nil {
		r.log.Warn().Err(err).Str("ticker", symbol).Msg("company lookup failed, using ticker as name")
		return meta
	}

	meta.RawName = rawName
	meta.Source = source
	if clean := StripLegalSuffixes(rawName); clean != "" {
		meta.Name = clean
	}

	cache[symbol] = meta
	r.saveCache(cache)
	return meta
}

type quoteResponse struct {
	QuoteResponse struct {
		Result []struct {
			Symbol      string `json:"symbol"`
			LongName    string `json:"longName"`
			ShortName   string `json:"shortName"`
			DisplayName string `json:"displayName"`
		} `json:"result"`
	} `json:"quoteResponse"`
}

func (r *Resolver) fetchName(ctx context.Context, symbol string) (string, string, error) {
	reqURL := fmt.Sprintf("%s/v7/finance/quote?symbols=%s", r.cfg.Endpoint, url.QueryEscape(symbol))

	var lastErr error
	for i := 0; i < r.cfg.MaxRetries+1; i++ {
		if i > 0 {
			time.Sleep(time.Duration(i) * 400 * time.Millisecond)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
		if err != nil {
			return "", "", err
		}
		req.Header.Set("Accept", "application/json")
		req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; stockalerts/1.0)")

		resp, err := r.client.Do(req)
		if err != nil {
			lastErr = err
			continue
		}

		var qr quoteResponse
		err = json.NewDecoder(resp.Body).Decode(&qr)
		resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("failed to decode quote response: %w", err)
			continue
		}
		if len(qr.QuoteResponse.Result) == 0 {
			lastErr = fmt.Errorf("no quote result for %s", symbol)
			continue
		}

		res := qr.QuoteResponse.Result[0]
		switch {
		case res.LongName != "":
			return res.LongName, "longName", nil
		case res.ShortName != "":
			return res.ShortName, "shortName", nil
		case res.DisplayName != "":
			return res.DisplayName, "displayName", nil
		}
		lastErr = fmt.Errorf("quote result for %s carries no name", symbol)
	}
	return "", "", lastErr
}

// StripLegalSuffixes removes trailing legal-form words from a company name.
func StripLegalSuffixes(name string) string {
	parts := strings.Fields(name)
	for i := range parts {
		parts[i] = strings.Trim(parts[i], ",. ")
	}
	for len(parts) > 0 {
		if _, ok := legalSuffixes[strings.ToLower(parts[len(parts)-1])]; !ok {
			break
		}
		parts = parts[:len(parts)-1]
	}
	if len(parts) == 0 {
		return strings.TrimSpace(name)
	}
	return strings.Join(parts, " ")
}

// BaseTicker simplifies an exchange-qualified symbol: "SAP.DE" -> "SAP",
// while index symbols like "^GDAXI" stay unchanged.
func BaseTicker(symbol string) string {
	if strings.HasPrefix(symbol, "^") {
		return symbol
	}
	if i := strings.Index(symbol, "."); i > 0 {
		return symbol[:i]
	}
	return symbol
}

func (r *Resolver) loadCache() map[string]Meta {
	cache := map[string]Meta{}
	if r.cfg.CacheFile == "" {
		return cache
	}
	data, err := os.ReadFile(r.cfg.CacheFile)
	if err != nil {
		return cache
	}
	if err := json.Unmarshal(data, &cache); err != nil {
		r.log.Debug().Err(err).Msg("ignoring unreadable company cache")
		return map[string]Meta{}
	}
	return cache
}

func (r *Resolver) saveCache(cache map[string]Meta) {
	if r.cfg.CacheFile == "" {
		return
	}
	if err := os.MkdirAll(filepath.Dir(r.cfg.CacheFile), 0o755); err != nil {
		r.log.Debug().Err(err).Msg("failed to create company cache directory")
		return
	}
	data, err := json.Marshal(cache)
	if err != nil {
		return
	}
	if err := os.WriteFile(r.cfg.CacheFile, data, 0o644); err != nil {
		r.log.Debug().Err(err).Msg("failed to write company cache")
	}
}
