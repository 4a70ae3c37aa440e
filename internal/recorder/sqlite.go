package recorder

import (
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"marketfeed/internal/model"
)

// SQLite appends fetched price bars to a SQLite database.
type SQLite struct {
	db *sql.DB
	mu sync.Mutex
}

// NewSQLite opens (or creates) the database and runs migrations.
func NewSQLite(dbPath string) (*SQLite, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// WAL mode so readers don't block the write path.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	r := &SQLite{db: db}
	if err := r.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return r, nil
}

func (r *SQLite) migrate() error {
	_, err := r.db.Exec(`
		CREATE TABLE IF NOT EXISTS price_bars (
			ticker     TEXT NOT NULL,
			bar_time   TEXT NOT NULL,
			open       REAL,
			high       REAL,
			low        REAL,
			close      REAL,
			volume     INTEGER,
			fetched_at INTEGER NOT NULL,
			PRIMARY KEY (ticker, bar_time)
		);
		CREATE INDEX IF NOT EXISTS idx_price_bars_fetched ON price_bars(fetched_at);
	`)
	return err
}

func (r *SQLite) RecordPrices(ticker string, prices []model.Price) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	stmt, err := tx.Prepare(`
		INSERT OR REPLACE INTO price_bars
			(ticker, bar_time, open, high, low, close, volume, fetched_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()

	now := time.Now().Unix()
	for _, p := range prices {
		if _, err := stmt.Exec(ticker, p.Time, p.Open, p.High, p.Low, p.Close, p.Volume, now); err != nil {
			tx.Rollback()
			return fmt.Errorf("insert bar %s: %w", p.Time, err)
		}
	}
	return tx.Commit()
}

func (r *SQLite) Close() error { return r.db.Close() }
