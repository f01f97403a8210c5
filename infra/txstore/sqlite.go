// Package txstore provides persistent transaction.Store backends.
package txstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/kilianp07/ocppbridge/core/transaction"
)

// SQLiteStore persists charging sessions in a SQLite database so that
// transaction ids survive restarts.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens or creates the database and ensures schema.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	schema := `CREATE TABLE IF NOT EXISTS transactions (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        device_id TEXT NOT NULL,
        connector_id INTEGER NOT NULL,
        id_tag TEXT,
        meter_start INTEGER,
        started_at INTEGER,
        meter_stop INTEGER,
        stopped_at INTEGER
    );
    CREATE INDEX IF NOT EXISTS transactions_device ON transactions(device_id);`
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &SQLiteStore{db: db}, nil
}

// Start inserts the session and returns it with its assigned id.
func (s *SQLiteStore) Start(ctx context.Context, tx transaction.Transaction) (transaction.Transaction, error) {
	res, err := s.db.ExecContext(ctx, `INSERT INTO transactions (device_id, connector_id, id_tag, meter_start, started_at)
        VALUES (?, ?, ?, ?, ?)`,
		tx.DeviceID, tx.ConnectorID, tx.IDTag, tx.MeterStart, tx.StartedAt.UnixNano())
	if err != nil {
		return transaction.Transaction{}, fmt.Errorf("insert transaction: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return transaction.Transaction{}, err
	}
	tx.ID = int(id)
	tx.MeterStop = nil
	tx.StoppedAt = nil
	return tx, nil
}

// Stop records the final meter value of the session.
func (s *SQLiteStore) Stop(ctx context.Context, id, meterStop int, ts time.Time) (transaction.Transaction, error) {
	res, err := s.db.ExecContext(ctx, `UPDATE transactions SET meter_stop = ?, stopped_at = ? WHERE id = ?`,
		meterStop, ts.UnixNano(), id)
	if err != nil {
		return transaction.Transaction{}, fmt.Errorf("update transaction %d: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return transaction.Transaction{}, fmt.Errorf("%w: %d", transaction.ErrNotFound, id)
	}
	return s.Get(ctx, id)
}

// Get loads a session by id.
func (s *SQLiteStore) Get(ctx context.Context, id int) (transaction.Transaction, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, device_id, connector_id, id_tag, meter_start, started_at, meter_stop, stopped_at
        FROM transactions WHERE id = ?`, id)
	var (
		tx        transaction.Transaction
		idTag     sql.NullString
		started   int64
		meterStop sql.NullInt64
		stopped   sql.NullInt64
	)
	err := row.Scan(&tx.ID, &tx.DeviceID, &tx.ConnectorID, &idTag, &tx.MeterStart, &started, &meterStop, &stopped)
	if errors.Is(err, sql.ErrNoRows) {
		return transaction.Transaction{}, fmt.Errorf("%w: %d", transaction.ErrNotFound, id)
	}
	if err != nil {
		return transaction.Transaction{}, err
	}
	tx.IDTag = idTag.String
	tx.StartedAt = time.Unix(0, started).UTC()
	if meterStop.Valid {
		v := int(meterStop.Int64)
		tx.MeterStop = &v
	}
	if stopped.Valid {
		ts := time.Unix(0, stopped.Int64).UTC()
		tx.StoppedAt = &ts
	}
	return tx, nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error { return s.db.Close() }
