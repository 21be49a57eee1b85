// Package store persists the durable state of the tracker: the symbol
// subscription set and the append-only price history log. History is never
// compacted or evicted; growth is unbounded by design.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/Phil1999/TickrShell-Common/pkg/models"
)

// ErrPersistence reports a durable read or write that could not complete.
var ErrPersistence = errors.New("persistence failure")

// DefaultPath is used when no database path is configured.
const DefaultPath = "tickrshell.db"

// Store wraps the SQLite database. The mutex serializes this process's
// access; the store assumes a single writing process and does no
// cross-process locking.
type Store struct {
	db     *sql.DB
	logger *zap.Logger
	mu     sync.Mutex
}

// Open opens (or creates) the database at path and runs migrations.
func Open(path string, logger *zap.Logger) (*Store, error) {
	if path == "" {
		path = DefaultPath
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", ErrPersistence, path, err)
	}
	s := &Store{db: db, logger: logger}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	logger.Info("store opened", zap.String("path", path))
	return s, nil
}

func (s *Store) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS price_history (
			symbol         TEXT NOT NULL,
			price          REAL NOT NULL,
			timestamp      INTEGER NOT NULL,
			change_percent REAL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_history_symbol_ts ON price_history(symbol, timestamp)`,

		`CREATE TABLE IF NOT EXISTS subscriptions (
			symbol   TEXT PRIMARY KEY,
			added_at INTEGER NOT NULL
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("%w: migrate: %v", ErrPersistence, err)
		}
	}
	return nil
}

// SavePrice appends one history record. Timestamps are stored as integer
// milliseconds since epoch.
func (s *Store) SavePrice(q models.Quote) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var change sql.NullFloat64
	if q.ChangePercent != nil {
		change = sql.NullFloat64{Float64: *q.ChangePercent, Valid: true}
	}
	_, err := s.db.Exec(
		`INSERT INTO price_history (symbol, price, timestamp, change_percent) VALUES (?, ?, ?, ?)`,
		q.Symbol, q.Price, q.Timestamp.UnixMilli(), change,
	)
	if err != nil {
		return fmt.Errorf("%w: save price for %s: %v", ErrPersistence, q.Symbol, err)
	}
	return nil
}

// GetPriceHistory returns up to limit records for symbol, most recent
// first. A non-positive limit yields an empty result.
func (s *Store) GetPriceHistory(symbol string, limit int) ([]models.Quote, error) {
	if limit <= 0 {
		return nil, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(
		`SELECT symbol, price, timestamp, change_percent
		 FROM price_history
		 WHERE symbol = ?
		 ORDER BY timestamp DESC
		 LIMIT ?`, symbol, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: query history for %s: %v", ErrPersistence, symbol, err)
	}
	defer rows.Close()

	var history []models.Quote
	for rows.Next() {
		var (
			q      models.Quote
			ts     int64
			change sql.NullFloat64
		)
		if err := rows.Scan(&q.Symbol, &q.Price, &ts, &change); err != nil {
			return nil, fmt.Errorf("%w: scan history row: %v", ErrPersistence, err)
		}
		q.Timestamp = time.UnixMilli(ts).UTC()
		if change.Valid {
			v := change.Float64
			q.ChangePercent = &v
		}
		// History is recorded in the base currency.
		q.Currency = models.DefaultCurrency
		history = append(history, q)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: read history for %s: %v", ErrPersistence, symbol, err)
	}
	return history, nil
}

// SaveSubscription upserts the symbol: re-subscribing refreshes added_at
// and never errors on duplicates.
func (s *Store) SaveSubscription(symbol string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(
		`INSERT OR REPLACE INTO subscriptions (symbol, added_at) VALUES (?, ?)`,
		symbol, time.Now().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("%w: save subscription %s: %v", ErrPersistence, symbol, err)
	}
	return nil
}

// RemoveSubscription deletes the symbol; removing an absent symbol is a
// no-op, not an error.
func (s *Store) RemoveSubscription(symbol string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`DELETE FROM subscriptions WHERE symbol = ?`, symbol)
	if err != nil {
		return fmt.Errorf("%w: remove subscription %s: %v", ErrPersistence, symbol, err)
	}
	return nil
}

// Subscriptions returns all subscribed symbols in ascending lexicographic
// order. The primary key guarantees uniqueness.
func (s *Store) Subscriptions() ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(`SELECT symbol FROM subscriptions ORDER BY symbol`)
	if err != nil {
		return nil, fmt.Errorf("%w: query subscriptions: %v", ErrPersistence, err)
	}
	defer rows.Close()

	var symbols []string
	for rows.Next() {
		var symbol string
		if err := rows.Scan(&symbol); err != nil {
			return nil, fmt.Errorf("%w: scan subscription row: %v", ErrPersistence, err)
		}
		symbols = append(symbols, symbol)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: read subscriptions: %v", ErrPersistence, err)
	}
	return symbols, nil
}

func (s *Store) Close() error {
	s.logger.Info("closing store")
	return s.db.Close()
}
