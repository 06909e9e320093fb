package execution

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"trading-bands/internal/model"

	_ "github.com/mattn/go-sqlite3"
)

// Journal persists executed trades to SQLite for audit and reporting.
// It implements model.TradeRecorder and model.TradeReader.
type Journal struct {
	mu sync.Mutex
	db *sql.DB
}

// NewJournal opens (or creates) a SQLite journal database.
func NewJournal(dbPath string) (*Journal, error) {
	if dir := filepath.Dir(dbPath); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("journal dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", dbPath+"?_journal=WAL&_sync=NORMAL")
	if err != nil {
		return nil, err
	}

	schema := `
	CREATE TABLE IF NOT EXISTS trades (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		order_id    TEXT NOT NULL,
		pair        TEXT NOT NULL,
		action      TEXT NOT NULL,
		amount      REAL NOT NULL,
		price       REAL NOT NULL,
		dry_run     INTEGER NOT NULL DEFAULT 0,
		reason      TEXT,
		filled_at   INTEGER NOT NULL,
		created_at  DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_trades_pair ON trades(pair);
	CREATE INDEX IF NOT EXISTS idx_trades_filled_at ON trades(filled_at);
	`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, err
	}

	log.Printf("[journal] opened trade journal at %s", dbPath)
	return &Journal{db: db}, nil
}

// Record persists one trade.
func (j *Journal) Record(ctx context.Context, rec model.TradeRecord) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	_, err := j.db.ExecContext(ctx,
		`INSERT INTO trades (order_id, pair, action, amount, price, dry_run, reason, filled_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.OrderID,
		rec.Pair,
		rec.Action,
		rec.Amount,
		rec.Price,
		rec.DryRun,
		rec.Reason,
		rec.TS.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("journal insert %s: %w", rec.OrderID, err)
	}
	return nil
}

const selectTrades = `SELECT id, order_id, pair, action, amount, price, dry_run, COALESCE(reason, ''), filled_at FROM trades`

// TradesSince returns trades filled at or after since, oldest first.
func (j *Journal) TradesSince(ctx context.Context, since time.Time) ([]model.TradeRecord, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	rows, err := j.db.QueryContext(ctx, selectTrades+` WHERE filled_at >= ? ORDER BY filled_at ASC, id ASC`, since.UnixMilli())
	if err != nil {
		return nil, err
	}
	return scanTrades(rows)
}

// RecentTrades returns the last limit trades, newest first.
func (j *Journal) RecentTrades(ctx context.Context, limit int) ([]model.TradeRecord, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	rows, err := j.db.QueryContext(ctx, selectTrades+` ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	return scanTrades(rows)
}

func scanTrades(rows *sql.Rows) ([]model.TradeRecord, error) {
	defer rows.Close()

	trades := make([]model.TradeRecord, 0)
	for rows.Next() {
		var t model.TradeRecord
		var filledAt int64
		if err := rows.Scan(&t.ID, &t.OrderID, &t.Pair, &t.Action, &t.Amount,
			&t.Price, &t.DryRun, &t.Reason, &filledAt); err != nil {
			return nil, err
		}
		t.TS = time.UnixMilli(filledAt).UTC()
		trades = append(trades, t)
	}
	return trades, rows.Err()
}

// Ping checks the database connection.
func (j *Journal) Ping(ctx context.Context) error {
	return j.db.PingContext(ctx)
}

// Close closes the journal database.
func (j *Journal) Close() error {
	return j.db.Close()
}
