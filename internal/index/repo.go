package index

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// CalibrationRow represents a row in the calibrations table.
type CalibrationRow struct {
	ID             string
	Source         string
	AnchorX        int
	AnchorY        int
	TemplateWidth  int
	TemplateHeight int
	CreatedAt      time.Time
}

// KeyRow is one calibrated key of a calibration.
type KeyRow struct {
	Semitone   int
	X, Y       int
	R, G, B    uint8
	Accidental bool
	Matched    int
}

// FrameRow records a processed frame.
type FrameRow struct {
	Name        string
	Checksum    string
	Transitions int
	ProcessedAt time.Time
}

// EventRow represents a row in the key_events table.
type EventRow struct {
	ID            int64
	CalibrationID string
	Frame         string
	Code          int
	Name          string
	Pressed       bool
	Distance      int
	At            time.Time
}

// EventFilter narrows ListEvents. Zero values mean no filter.
type EventFilter struct {
	Code   *int
	Frame  string
	Limit  int
	Offset int
}

// InsertCalibration stores a calibration and its keys within a transaction.
func (db *DB) InsertCalibration(c CalibrationRow, keys []KeyRow) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	_, err = tx.Exec(`
		INSERT INTO calibrations (id, source, anchor_x, anchor_y, template_width, template_height, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, c.ID, c.Source, c.AnchorX, c.AnchorY, c.TemplateWidth, c.TemplateHeight, c.CreatedAt)
	if err != nil {
		return fmt.Errorf("index: insert calibration: %w", err)
	}

	stmt, err := tx.Prepare(`
		INSERT INTO calibration_keys (calibration_id, semitone, x, y, r, g, b, accidental, matched)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("index: prepare key insert: %w", err)
	}
	defer stmt.Close()
	for _, k := range keys {
		if _, err := stmt.Exec(c.ID, k.Semitone, k.X, k.Y, k.R, k.G, k.B, k.Accidental, k.Matched); err != nil {
			return fmt.Errorf("index: insert key: %w", err)
		}
	}

	return tx.Commit()
}

// LatestCalibration returns the most recent calibration and its keys in
// semitone order, or (nil, nil, nil) when none exists.
func (db *DB) LatestCalibration() (*CalibrationRow, []KeyRow, error) {
	var c CalibrationRow
	err := db.conn.QueryRow(`
		SELECT id, source, anchor_x, anchor_y, template_width, template_height, created_at
		FROM calibrations
		ORDER BY created_at DESC, rowid DESC
		LIMIT 1
	`).Scan(&c.ID, &c.Source, &c.AnchorX, &c.AnchorY, &c.TemplateWidth, &c.TemplateHeight, &c.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("index: latest calibration: %w", err)
	}

	rows, err := db.conn.Query(`
		SELECT semitone, x, y, r, g, b, accidental, matched
		FROM calibration_keys
		WHERE calibration_id = ?
		ORDER BY semitone
	`, c.ID)
	if err != nil {
		return nil, nil, fmt.Errorf("index: calibration keys: %w", err)
	}
	defer rows.Close()

	var keys []KeyRow
	for rows.Next() {
		var k KeyRow
		if err := rows.Scan(&k.Semitone, &k.X, &k.Y, &k.R, &k.G, &k.B, &k.Accidental, &k.Matched); err != nil {
			return nil, nil, err
		}
		keys = append(keys, k)
	}
	return &c, keys, rows.Err()
}

// RecordFrame upserts a processed frame and appends its key events within a transaction.
func (db *DB) RecordFrame(f FrameRow, events []EventRow) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if f.ProcessedAt.IsZero() {
		f.ProcessedAt = time.Now().UTC()
	}
	_, err = tx.Exec(`
		INSERT INTO frames (name, checksum, transitions, processed_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			checksum     = excluded.checksum,
			transitions  = excluded.transitions,
			processed_at = excluded.processed_at
	`, f.Name, f.Checksum, f.Transitions, f.ProcessedAt)
	if err != nil {
		return fmt.Errorf("index: upsert frame: %w", err)
	}

	if len(events) > 0 {
		stmt, err := tx.Prepare(`
			INSERT INTO key_events (calibration_id, frame, code, name, pressed, distance, at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`)
		if err != nil {
			return fmt.Errorf("index: prepare event insert: %w", err)
		}
		defer stmt.Close()
		for _, e := range events {
			at := e.At
			if at.IsZero() {
				at = f.ProcessedAt
			}
			if _, err := stmt.Exec(e.CalibrationID, f.Name, e.Code, e.Name, e.Pressed, e.Distance, at); err != nil {
				return fmt.Errorf("index: insert event: %w", err)
			}
		}
	}

	return tx.Commit()
}

// FrameChecksums returns the stored checksum of every processed frame.
func (db *DB) FrameChecksums() (map[string]string, error) {
	rows, err := db.conn.Query(`SELECT name, checksum FROM frames`)
	if err != nil {
		return nil, fmt.Errorf("index: frame checksums: %w", err)
	}
	defer rows.Close()
	out := make(map[string]string)
	for rows.Next() {
		var name, cs string
		if err := rows.Scan(&name, &cs); err != nil {
			return nil, err
		}
		out[name] = cs
	}
	return out, rows.Err()
}

// FrameChecksum returns the stored checksum for a frame, or empty string if
// it was never processed.
func (db *DB) FrameChecksum(name string) (string, error) {
	var cs string
	err := db.conn.QueryRow(`SELECT checksum FROM frames WHERE name = ?`, name).Scan(&cs)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("index: frame checksum: %w", err)
	}
	return cs, nil
}

// DeleteFrame forgets a processed frame. Its key events are kept as history.
func (db *DB) DeleteFrame(name string) error {
	if _, err := db.conn.Exec(`DELETE FROM frames WHERE name = ?`, name); err != nil {
		return fmt.Errorf("index: delete frame: %w", err)
	}
	return nil
}

// ListEvents returns key events newest first, plus the total matching count.
func (db *DB) ListEvents(filter EventFilter) ([]EventRow, int, error) {
	if filter.Limit <= 0 {
		filter.Limit = 100
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}

	var where []string
	var args []any
	if filter.Code != nil {
		where = append(where, "code = ?")
		args = append(args, *filter.Code)
	}
	if filter.Frame != "" {
		where = append(where, "frame = ?")
		args = append(args, filter.Frame)
	}
	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := db.conn.QueryRow(`SELECT count(*) FROM key_events`+clause, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("index: count events: %w", err)
	}

	rows, err := db.conn.Query(`
		SELECT id, calibration_id, frame, code, name, pressed, distance, at
		FROM key_events`+clause+`
		ORDER BY id DESC
		LIMIT ? OFFSET ?
	`, append(args, filter.Limit, filter.Offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("index: list events: %w", err)
	}
	defer rows.Close()

	var out []EventRow
	for rows.Next() {
		var e EventRow
		if err := rows.Scan(&e.ID, &e.CalibrationID, &e.Frame, &e.Code, &e.Name, &e.Pressed, &e.Distance, &e.At); err != nil {
			return nil, 0, err
		}
		out = append(out, e)
	}
	return out, total, rows.Err()
}
