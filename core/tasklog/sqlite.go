package tasklog

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	_ "modernc.org/sqlite"
)

// SQLiteStore persists records to a SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens or creates the database at path and ensures schema.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	schema := `CREATE TABLE IF NOT EXISTS task_log (
        task_id INTEGER,
        ts INTEGER,
        kind TEXT,
        result TEXT,
        record TEXT
    );
    CREATE TABLE IF NOT EXISTS task_log_targets (
        task_id INTEGER,
        ts INTEGER,
        device_id TEXT
    );
    CREATE INDEX IF NOT EXISTS task_log_targets_device ON task_log_targets(device_id);`
	if _, err := db.Exec(schema); err != nil {
		if cerr := db.Close(); cerr != nil {
			return nil, fmt.Errorf("close db: %v (schema err: %w)", cerr, err)
		}
		return nil, err
	}
	return &SQLiteStore{db: db}, nil
}

// Append writes the record and its targets in one transaction.
func (s *SQLiteStore) Append(ctx context.Context, rec Record) error {
	b, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	ts := rec.Timestamp.UnixNano()
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO task_log (task_id, ts, kind, result, record) VALUES (?, ?, ?, ?, ?)`,
		uint64(rec.TaskID), ts, string(rec.Kind), rec.Result, string(b)); err != nil {
		_ = tx.Rollback()
		return err
	}
	for _, id := range rec.Targets {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO task_log_targets (task_id, ts, device_id) VALUES (?, ?, ?)`,
			uint64(rec.TaskID), ts, id); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

// Query returns records matching q ordered by timestamp.
func (s *SQLiteStore) Query(ctx context.Context, q Query) ([]Record, error) {
	var args []any
	query := `SELECT l.record FROM task_log l WHERE 1=1`
	if !q.Start.IsZero() {
		query += ` AND l.ts >= ?`
		args = append(args, q.Start.UnixNano())
	}
	if !q.End.IsZero() {
		query += ` AND l.ts <= ?`
		args = append(args, q.End.UnixNano())
	}
	if q.Kind != "" {
		query += ` AND l.kind = ?`
		args = append(args, string(q.Kind))
	}
	if q.DeviceID != "" {
		query += ` AND EXISTS (SELECT 1 FROM task_log_targets t WHERE t.task_id = l.task_id AND t.ts = l.ts AND t.device_id = ?)`
		args = append(args, q.DeviceID)
	}
	query += ` ORDER BY l.ts`
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var res []Record
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		var r Record
		if err := json.Unmarshal([]byte(data), &r); err != nil {
			return nil, fmt.Errorf("unmarshal record: %w", err)
		}
		res = append(res, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return res, nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error { return s.db.Close() }
