// Package history provides an optional SQLite log of dispatched alerts.
package history

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/mjessen/stockalerts/internal/models"
)

// Store wraps a SQLite database holding one row per dispatched alert.
type Store struct {
	db        *sql.DB
	maxAlerts int
}

// New opens or creates the SQLite database at dbPath.
// An empty dbPath defaults to $TMPDIR/stockalerts/history.db.
func New(dbPath string, maxAlerts int) (*Store, error) {
	if dbPath == "" {
		dbPath = filepath.Join(os.TempDir(), "stockalerts", "history.db")
	}
	if maxAlerts < 1 {
		maxAlerts = 1000
	}
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create history directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open history database: %w", err)
	}
	db.SetMaxOpenConns(1) // single writer; WAL allows concurrent readers
	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		return nil, fmt.Errorf("failed to set WAL mode: %w", err)
	}

	s := &Store{db: db, maxAlerts: maxAlerts}
	if err := s.createTable(); err != nil {
		return nil, fmt.Errorf("failed to create history table: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) createTable() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS alerts (
			id             TEXT PRIMARY KEY,
			ticker         TEXT NOT NULL,
			delta_pct      REAL NOT NULL,
			open_price     REAL NOT NULL,
			last_price     REAL NOT NULL,
			direction      TEXT NOT NULL,
			headline_count INTEGER NOT NULL DEFAULT 0,
			sent_at        INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_alerts_sent_at ON alerts(sent_at DESC)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// Record inserts one alert row and rotates out the oldest rows beyond the
// configured cap. A missing ID gets a fresh UUID.
func (s *Store) Record(rec models.AlertRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.SentAt.IsZero() {
		rec.SentAt = time.Now()
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	_, err = tx.Exec(`
		INSERT INTO alerts
			(id, ticker, delta_pct, open_price, last_price, direction, headline_count, sent_at)
		VALUES (?,?,?,?,?,?,?,?)`,
		rec.ID, rec.Ticker, rec.DeltaPct, rec.OpenPrice, rec.LastPrice,
		rec.Direction, rec.HeadlineCount, rec.SentAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert alert: %w", err)
	}

	if _, err = tx.Exec(`
		DELETE FROM alerts WHERE id NOT IN (
			SELECT id FROM alerts ORDER BY sent_at DESC LIMIT ?
		)`, s.maxAlerts); err != nil {
		return fmt.Errorf("failed to enforce alert cap: %w", err)
	}

	return tx.Commit()
}

// Recent returns the newest n alerts, most recent first.
func (s *Store) Recent(n int) ([]models.AlertRecord, error) {
	rows, err := s.db.Query(`
		SELECT id, ticker, delta_pct, open_price, last_price, direction, headline_count, sent_at
		FROM alerts ORDER BY sent_at DESC LIMIT ?`, n)
	if err != nil {
		return nil, fmt.Errorf("failed to query alerts: %w", err)
	}
	defer rows.Close()

	var alerts []models.AlertRecord
	for rows.Next() {
		var rec models.AlertRecord
		var sentAtNano int64
		if err := rows.Scan(
			&rec.ID, &rec.Ticker, &rec.DeltaPct, &rec.OpenPrice, &rec.LastPrice,
			&rec.Direction, &rec.HeadlineCount, &sentAtNano,
		); err != nil {
			return nil, fmt.Errorf("failed to scan alert: %w", err)
		}
		rec.SentAt = time.Unix(0, sentAtNano)
		alerts = append(alerts, rec)
	}
	return alerts, rows.Err()
}
