// Package ntfy sends push notifications through an ntfy server.
package ntfy

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Config holds the push channel settings. The topic acts as the opaque
// shared secret for the channel.
type Config struct {
	Server         string
	Topic          string
	Priority       string
	DryRun         bool
	Timeout        time.Duration
	MaxRetries     int
	RetryDelayBase time.Duration
}

// Notification is one message to publish.
type Notification struct {
	Title    string
	Message  string
	ClickURL string
	Markdown bool
}

// Client publishes notifications to a single ntfy topic.
type Client struct {
	cfg        Config
	httpClient *http.Client
	log        zerolog.Logger
}

// New creates a client with sensible fallbacks for unset options.
func New(cfg Config, log zerolog.Logger) *Client {
	if cfg.Priority == "" {
		cfg.Priority = "high"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 20 * time.Second
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

// Publish sends one notification with linear-backoff retry. In dry-run
// mode the message is logged and no request leaves the process.
func (c *Client) Publish(ctx context.Context, n Notification) error {
	if c.cfg.DryRun {
		c.log.Info().
			Str("title", n.Title).
			Str("message", n.Message).
			Str("click_url", n.ClickURL).
			Msg("dry run: skipping ntfy publish")
		return nil
	}

	target := strings.TrimRight(c.cfg.Server, "/") + "/" + c.cfg.Topic

	var lastErr error
	for i := 0; i < c.cfg.MaxRetries; i++ {
		if i > 0 {
			time.Sleep(c.cfg.RetryDelayBase * time.Duration(i))
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, strings.NewReader(n.Message))
		if err != nil {
			return fmt.Errorf("failed to build ntfy request: %w", err)
		}
		req.Header.Set("Title", n.Title)
		req.Header.Set("Priority", c.cfg.Priority)
		if n.Markdown {
			req.Header.Set("Markdown", "yes")
		}
		if n.ClickURL != "" {
			req.Header.Set("Click", n.ClickURL)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = err
			continue
		}
		resp.Body.Close()

		if resp.StatusCode >= 500 {
			lastErr = fmt.Errorf("ntfy server error: %d", resp.StatusCode)
			continue
		}
		if resp.StatusCode >= 400 {
			return fmt.Errorf("ntfy rejected notification: %d", resp.StatusCode)
		}

		c.log.Debug().Str("title", n.Title).Msg("published notification")
		return nil
	}

	return fmt.Errorf("failed after %d retries: %w", c.cfg.MaxRetries, lastErr)
}
