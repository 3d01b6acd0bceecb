// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package recorder keeps a SQLite log of fused modem poses together with
// the raw acoustic fix and buoy position they came from, so that offsets
// can be calibrated offline.
package recorder

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"gonum.org/v1/gonum/spatial/r3"
	_ "modernc.org/sqlite"
)

// Entry is one recorded bundle.
type Entry struct {
	BundleID string
	Path     string // "direct" or "angular"
	Stamp    time.Time
	Frame    string
	Position r3.Vec
	Variance r3.Vec // x, y, z diagonal
	BuoyLat  float64
	BuoyLon  float64
	RawFix   json.RawMessage
}

const schema = `
CREATE TABLE IF NOT EXISTS modem_fixes (
	bundle_id TEXT PRIMARY KEY,
	path TEXT NOT NULL,
	stamp_unix_nanos INTEGER NOT NULL,
	frame TEXT NOT NULL,
	x REAL, y REAL, z REAL,
	var_x REAL, var_y REAL, var_z REAL,
	buoy_lat REAL, buoy_lon REAL,
	raw_fix_json TEXT
);
CREATE INDEX IF NOT EXISTS idx_modem_fixes_stamp ON modem_fixes (stamp_unix_nanos);
`

// SQLite writes entries to a database file.
type SQLite struct {
	db *sql.DB
}

// Open creates or opens the database at path and applies the schema.
func Open(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("exec %q: %w", pragma, err)
		}
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &SQLite{db: db}, nil
}

// Record inserts e. A repeated bundle id replaces the earlier row.
func (s *SQLite) Record(ctx context.Context, e Entry) error {
	var raw sql.NullString
	if len(e.RawFix) > 0 {
		raw = sql.NullString{String: string(e.RawFix), Valid: true}
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO modem_fixes
			(bundle_id, path, stamp_unix_nanos, frame, x, y, z, var_x, var_y, var_z, buoy_lat, buoy_lon, raw_fix_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.BundleID, e.Path, e.Stamp.UnixNano(), e.Frame,
		e.Position.X, e.Position.Y, e.Position.Z,
		e.Variance.X, e.Variance.Y, e.Variance.Z,
		e.BuoyLat, e.BuoyLon, raw,
	)
	if err != nil {
		return fmt.Errorf("insert %s: %w", e.BundleID, err)
	}
	return nil
}

// Recent returns up to limit entries, newest first.
func (s *SQLite) Recent(ctx context.Context, limit int) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT bundle_id, path, stamp_unix_nanos, frame, x, y, z, var_x, var_y, var_z, buoy_lat, buoy_lon, raw_fix_json
		FROM modem_fixes ORDER BY stamp_unix_nanos DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query recent: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			e     Entry
			nanos int64
			raw   sql.NullString
		)
		if err := rows.Scan(&e.BundleID, &e.Path, &nanos, &e.Frame,
			&e.Position.X, &e.Position.Y, &e.Position.Z,
			&e.Variance.X, &e.Variance.Y, &e.Variance.Z,
			&e.BuoyLat, &e.BuoyLon, &raw); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		e.Stamp = time.Unix(0, nanos)
		if raw.Valid {
			e.RawFix = json.RawMessage(raw.String)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Count returns the number of stored entries.
func (s *SQLite) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM modem_fixes`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count: %w", err)
	}
	return n, nil
}

// Close closes the database.
func (s *SQLite) Close() error {
	return s.db.Close()
}
