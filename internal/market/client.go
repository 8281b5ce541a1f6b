// Package market retrieves intraday open and last prices for a ticker.
package market

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog"
)

// Config holds the price source settings.
type Config struct {
	Endpoint       string
	Timeout        time.Duration
	MaxRetries     int
	RetryDelayBase time.Duration
}

// Client fetches quotes from the Yahoo chart API.
type Client struct {
	cfg        Config
	httpClient *http.Client
	log        zerolog.Logger
}

// New creates a price client.
func New(cfg Config, log zerolog.Logger) *Client {
	if cfg.Endpoint == "" {
		cfg.Endpoint = "https://query1.finance.yahoo.com"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryDelayBase <= 0 {
		cfg.RetryDelayBase = time.Second
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		log:        log,
	}
}

// chartResponse mirrors the subset of the Yahoo chart payload we read.
// Price fields are pointers: the API reports missing candles as nulls.
type chartResponse struct {
	Chart struct {
		Result []struct {
			Meta struct {
				RegularMarketPrice *float64 `json:"regularMarketPrice"`
				ChartPreviousClose *float64 `json:"chartPreviousClose"`
			} `json:"meta"`
			Indicators struct {
				Quote []struct {
					Open  []*float64 `json:"open"`
					Close []*float64 `json:"close"`
				} `json:"quote"`
			} `json:"indicators"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

// OpenAndLast returns the session open and the most recent price.
// The open prefers the first intraday candle, falling back to the previous
// close when the session has no candles yet. Any failure is a per-ticker
// recoverable error for the caller.
func (c *Client) OpenAndLast(ctx context.Context, ticker string) (float64, float64, error) {
	reqURL := fmt.Sprintf("%s/v8/finance/chart/%s?range=1d&interval=1m",
		c.cfg.Endpoint, url.PathEscape(ticker))

	resp, err := c.doRequest(ctx, reqURL)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to fetch chart for %s: %w", ticker, err)
	}
	defer resp.Body.Close()

	var cr chartResponse
	if err := json.NewDecoder(resp.Body).Decode(&cr); err != nil {
		return 0, 0, fmt.Errorf("failed to decode chart for %s: %w", ticker, err)
	}
	if cr.Chart.Error != nil {
		return 0, 0, fmt.Errorf("chart API error for %s: %s", ticker, cr.Chart.Error.Description)
	}
	if len(cr.Chart.Result) == 0 {
		return 0, 0, fmt.Errorf("no chart result for %s", ticker)
	}

	result := cr.Chart.Result[0]

	var open float64
	if len(result.Indicators.Quote) > 0 {
		for _, v := range result.Indicators.Quote[0].Open {
			if v != nil && *v > 0 {
				open = *v
				break
			}
		}
	}
	if open == 0 && result.Meta.ChartPreviousClose != nil {
		open = *result.Meta.ChartPreviousClose
	}

	var last float64
	if result.Meta.RegularMarketPrice != nil {
		last = *result.Meta.RegularMarketPrice
	}
	if last == 0 && len(result.Indicators.Quote) > 0 {
		closes := result.Indicators.Quote[0].Close
		for i := len(closes) - 1; i >= 0; i-- {
			if closes[i] != nil && *closes[i] > 0 {
				last = *closes[i]
				break
			}
		}
	}

	if last == 0 {
		return 0, 0, fmt.Errorf("no usable price data for %s", ticker)
	}

	c.log.Debug().Str("ticker", ticker).Float64("open", open).Float64("last", last).Msg("fetched prices")
	return open, last, nil
}

// doRequest performs an HTTP request with linear-backoff retry on network
// failures and server errors.
func (c *Client) doRequest(ctx context.Context, urlStr string) (*http.Response, error) {
	var lastErr error

	for i := 0; i < c.cfg.MaxRetries; i++ {
		if i > 0 {
			time.Sleep(c.cfg.RetryDelayBase * time.Duration(i))
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, urlStr, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")
		req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; stockalerts/1.0)")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = err
			continue
		}

		if resp.StatusCode >= 500 {
			resp.Body.Close()
			lastErr = fmt.Errorf("server error: %d", resp.StatusCode)
			continue
		}
		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			return nil, fmt.Errorf("unexpected status: %d", resp.StatusCode)
		}

		return resp, nil
	}

	return nil, fmt.Errorf("max retries exceeded: %w", lastErr)
}
