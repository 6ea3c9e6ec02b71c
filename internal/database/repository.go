package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// Repository reads and writes the call log.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repository over conn.
func NewRepository(conn *Connection) *Repository {
	return &Repository{db: conn.DB}
}

// GetDB returns the underlying sql.DB.
func (r *Repository) GetDB() *sql.DB {
	return r.db
}

const callLogColumns = "phone, telecom_call_id, address, direction, cause, created_at, connected_at, disconnected_at, duration_sec, hold_sec, multiparty"

// buildInsert returns one multi-row INSERT for logs. Rows whose telecom
// call id is already stored are skipped.
func buildInsert(logs []CallLog) (string, []interface{}) {
	var b strings.Builder
	b.WriteString("INSERT IGNORE INTO callcore_call_log (")
	b.WriteString(callLogColumns)
	b.WriteString(") VALUES ")

	args := make([]interface{}, 0, len(logs)*11)
	for i, l := range logs {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString("(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)")
		args = append(args,
			l.Phone, l.TelecomCallID, l.Address, l.Direction, l.Cause,
			l.CreatedAt, l.ConnectedAt, l.DisconnectedAt, l.DurationSec, l.HoldSec, l.Multiparty,
		)
	}
	return b.String(), args
}

// InsertCallLogs stores logs in a single statement.
func (r *Repository) InsertCallLogs(ctx context.Context, logs []CallLog) error {
	if len(logs) == 0 {
		return nil
	}
	query, args := buildInsert(logs)
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("inserting %d call logs: %w", len(logs), err)
	}
	return nil
}

const defaultHistoryLimit = 100

func buildList(f HistoryFilter) (string, []interface{}) {
	query := "SELECT id, " + callLogColumns + " FROM callcore_call_log WHERE 1=1"
	var args []interface{}

	if f.Phone != "" {
		query += " AND phone = ?"
		args = append(args, f.Phone)
	}
	if !f.From.IsZero() {
		query += " AND created_at >= ?"
		args = append(args, f.From)
	}
	if !f.To.IsZero() {
		query += " AND created_at < ?"
		args = append(args, f.To)
	}

	limit := f.Limit
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	query += " ORDER BY created_at DESC LIMIT ?"
	args = append(args, limit)
	return query, args
}

// ListCallLogs returns the most recent logs matching f, newest first.
func (r *Repository) ListCallLogs(ctx context.Context, f HistoryFilter) ([]CallLog, error) {
	query, args := buildList(f)
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying call logs: %w", err)
	}
	defer rows.Close()

	logs := make([]CallLog, 0)
	for rows.Next() {
		var l CallLog
		var connected sql.NullTime
		err := rows.Scan(
			&l.ID, &l.Phone, &l.TelecomCallID, &l.Address, &l.Direction, &l.Cause,
			&l.CreatedAt, &connected, &l.DisconnectedAt, &l.DurationSec, &l.HoldSec, &l.Multiparty,
		)
		if err != nil {
			return nil, fmt.Errorf("scanning call log: %w", err)
		}
		if connected.Valid {
			t := connected.Time
			l.ConnectedAt = &t
		}
		logs = append(logs, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading call logs: %w", err)
	}
	return logs, nil
}
