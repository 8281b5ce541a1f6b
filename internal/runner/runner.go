// Package runner executes one monitoring cycle over the configured tickers.
package runner

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/rs/zerolog"

	"github.com/mjessen/stockalerts/internal/delta"
	"github.com/mjessen/stockalerts/internal/models"
	"github.com/mjessen/stockalerts/internal/ntfy"
)

// Gate reports whether the trading window is open.
type Gate interface {
	Open() bool
}

// StateStore loads and persists the per-ticker snapshots.
type StateStore interface {
	Load() map[string]models.TickerSnapshot
	Save(map[string]models.TickerSnapshot) error
}

// PriceSource fetches the session open and last price for a ticker.
type PriceSource interface {
	OpenAndLast(ctx context.Context, ticker string) (open, last float64, err error)
}

// Resolver maps a ticker to a display name and the keywords a relevant
// headline must contain. It degrades internally and never fails.
type Resolver interface {
	AutoKeywords(ctx context.Context, ticker string) (name string, required []string)
}

// HeadlineSource fetches, filters, and formats news headlines.
type HeadlineSource interface {
	AlertHeadlines(ctx context.Context, name, ticker string, required []string) ([]models.HeadlineItem, error)
	FormatHeadlines(ctx context.Context, items []models.HeadlineItem) string
}

// Pusher dispatches the primary push notification.
type Pusher interface {
	Publish(ctx context.Context, n ntfy.Notification) error
}

// Mirror is an optional secondary notification channel.
type Mirror interface {
	SendAlert(rec models.AlertRecord, headlines []models.HeadlineItem) error
}

// Recorder is an optional alert-history sink.
type Recorder interface {
	Record(rec models.AlertRecord) error
}

// Config holds the cycle parameters.
type Config struct {
	Tickers           []string
	NewsEnabled       bool
	BypassMarketHours bool
}

// Deps bundles the collaborators of one cycle. Headlines, Mirror, and
// Recorder may be nil when the corresponding feature is disabled.
type Deps struct {
	Gate      Gate
	State     StateStore
	Prices    PriceSource
	Evaluator *delta.Evaluator
	Resolver  Resolver
	Headlines HeadlineSource
	Pusher    Pusher
	Mirror    Mirror
	Recorder  Recorder
}

// Runner orchestrates one monitoring pass.
type Runner struct {
	cfg  Config
	deps Deps
	log  zerolog.Logger
	now  func() time.Time
}

// New creates a runner.
func New(cfg Config, deps Deps, log zerolog.Logger) *Runner {
	return &Runner{cfg: cfg, deps: deps, log: log, now: time.Now}
}

// Run executes one cycle. Per-ticker failures are contained in the report;
// there is no cycle-level error. A closed gate without bypass is a normal
// no-op terminal state.
func (r *Runner) Run(ctx context.Context) models.CycleReport {
	var report models.CycleReport

	if !r.deps.Gate.Open() {
		if !r.cfg.BypassMarketHours {
			r.log.Info().Msg("outside market hours, skipping cycle")
			report.Skipped = true
			return report
		}
		r.log.Warn().Msg("outside market hours, proceeding due to test bypass")
	}

	st := r.deps.State.Load()

	for _, ticker := range r.cfg.Tickers {
		snapshot, terr := r.processTicker(ctx, ticker)
		if terr != nil {
			r.log.Error().Err(terr).Str("ticker", ticker).Str("stage", terr.Stage).Msg("ticker processing failed")
			report.Failures = append(report.Failures, terr)
		}
		if snapshot.Ticker == "" {
			continue
		}

		report.Snapshots = append(report.Snapshots, snapshot)
		if snapshot.Alerted {
			report.Alerted++
		}

		// Write-through per ticker: progress stays durable even when a
		// later ticker crashes the process.
		st[ticker] = snapshot
		if err := r.deps.State.Save(st); err != nil {
			r.log.Warn().Err(err).Str("ticker", ticker).Msg("failed to persist alert state")
		}
	}

	return report
}

// processTicker runs the pipeline for one ticker. A zero-valued snapshot
// (empty Ticker) means the failure happened before a snapshot existed and
// nothing must be persisted.
func (r *Runner) processTicker(ctx context.Context, ticker string) (models.TickerSnapshot, *models.TickerError) {
	open, last, err := r.deps.Prices.OpenAndLast(ctx, ticker)
	if err != nil {
		return models.TickerSnapshot{}, &models.TickerError{Ticker: ticker, Stage: "price", Err: err}
	}

	ev, err := r.deps.Evaluator.Evaluate(ticker, open, last)
	if err != nil {
		return models.TickerSnapshot{}, &models.TickerError{Ticker: ticker, Stage: "delta", Err: err}
	}

	r.log.Info().
		Str("ticker", ticker).
		Float64("open", open).
		Float64("last", ev.LastPrice).
		Float64("delta_pct", ev.DeltaPct).
		Bool("alert", ev.Triggered).
		Msg("evaluated ticker")

	snapshot := models.TickerSnapshot{
		Ticker:    ticker,
		OpenPrice: open,
		LastPrice: ev.LastPrice,
		Alerted:   ev.Triggered,
	}

	if !ev.Triggered {
		return snapshot, nil
	}

	if err := r.dispatch(ctx, ticker, open, ev); err != nil {
		// The decision stands and the snapshot is still persisted; only
		// the delivery failed.
		return snapshot, &models.TickerError{Ticker: ticker, Stage: "push", Err: err}
	}
	return snapshot, nil
}

// dispatch resolves the company, gathers headlines, and sends the
// notification(s) for a fired alert.
func (r *Runner) dispatch(ctx context.Context, ticker string, open float64, ev delta.Evaluation) error {
	name, required := r.deps.Resolver.AutoKeywords(ctx, ticker)
	if name == "" {
		name = ticker
	}

	var headlines []models.HeadlineItem
	var newsBlock string
	if r.cfg.NewsEnabled && r.deps.Headlines != nil {
		items, err := r.deps.Headlines.AlertHeadlines(ctx, name, ticker, required)
		if err != nil {
			r.log.Warn().Err(err).Str("ticker", ticker).Msg("headline fetch failed, sending alert without news")
		} else {
			headlines = items
			newsBlock = r.deps.Headlines.FormatHeadlines(ctx, items)
		}
	}

	title := fmt.Sprintf("Stock alert: %s %+.2f%%", ticker, ev.DeltaPct)
	message := fmt.Sprintf("%s %s (%s) %+.2f%% vs open\nOpen: %.2f  Last: %.2f",
		ev.Direction.Icon(), name, ticker, ev.DeltaPct, open, ev.LastPrice) + newsBlock

	n := ntfy.Notification{
		Title:    title,
		Message:  message,
		ClickURL: "https://finance.yahoo.com/quote/" + url.PathEscape(ticker),
		Markdown: newsBlock != "",
	}
	if err := r.deps.Pusher.Publish(ctx, n); err != nil {
		return err
	}

	rec := models.AlertRecord{
		Ticker:        ticker,
		DeltaPct:      ev.DeltaPct,
		OpenPrice:     open,
		LastPrice:     ev.LastPrice,
		Direction:     string(ev.Direction),
		HeadlineCount: len(headlines),
		SentAt:        r.now(),
	}

	if r.deps.Mirror != nil {
		if err := r.deps.Mirror.SendAlert(rec, headlines); err != nil {
			r.log.Warn().Err(err).Str("ticker", ticker).Msg("telegram mirror failed")
		}
	}
	if r.deps.Recorder != nil {
		if err := r.deps.Recorder.Record(rec); err != nil {
			r.log.Warn().Err(err).Str("ticker", ticker).Msg("failed to record alert history")
		}
	}

	return nil
}
