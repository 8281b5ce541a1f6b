// Package models defines the core domain entities: ticker snapshots, headlines, and alert records.
package models

import (
	"errors"
	"fmt"
	"time"
)

// TickerSnapshot is the per-ticker anti-spam record persisted between cycles.
// One entry per ticker; overwritten on every cycle the ticker is processed.
type TickerSnapshot struct {
	Ticker    string  `json:"ticker"`
	OpenPrice float64 `json:"open_price"`
	LastPrice float64 `json:"last_price"`
	Alerted   bool    `json:"alerted"`
}

// Validate checks snapshot field constraints.
func (s *TickerSnapshot) Validate() error {
	if s.Ticker == "" {
		return errors.New("ticker must not be empty")
	}
	if s.OpenPrice < 0 {
		return errors.New("open price must not be negative")
	}
	if s.LastPrice < 0 {
		return errors.New("last price must not be negative")
	}
	return nil
}

// HeadlineItem is a single news headline attached to an alert.
// Source and Link may be empty when the feed omits them.
type HeadlineItem struct {
	Title  string `json:"title"`
	Source string `json:"source"`
	Link   string `json:"link"`
}

// AlertRecord describes one dispatched notification.
type AlertRecord struct {
	ID            string
	Ticker        string
	DeltaPct      float64
	OpenPrice     float64
	LastPrice     float64
	Direction     string
	HeadlineCount int
	SentAt        time.Time
}

// TickerError is a per-ticker failure captured during a cycle. Stage names
// the pipeline step that failed (price, delta, push).
type TickerError struct {
	Ticker string
	Stage  string
	Err    error
}

func (e *TickerError) Error() string {
	return fmt.Sprintf("ticker %s: %s: %v", e.Ticker, e.Stage, e.Err)
}

func (e *TickerError) Unwrap() error {
	return e.Err
}

// CycleReport summarizes one monitoring cycle. Per-ticker failures are
// collected here instead of aborting the cycle.
type CycleReport struct {
	Skipped   bool
	Snapshots []TickerSnapshot
	Alerted   int
	Failures  []*TickerError
}
