package library

import (
	"encoding/json"
	"fmt"
	"time"
)

// ShowRow represents a row in the shows table.
type ShowRow struct {
	Path       string
	Name       string
	Format     string
	Checksum   string
	Duration   float64
	TrackCount int
	Protocols  []string
	UpdatedAt  time.Time
}

// SearchResult represents one search hit.
type SearchResult struct {
	Path    string `json:"path"`
	Name    string `json:"name"`
	Snippet string `json:"snippet"`
}

// UpsertShow inserts or replaces a show and its FTS entry within a
// transaction. body is the searchable text (show name and track names).
func (db *DB) UpsertShow(row ShowRow, body string) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("library: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	protoJSON, _ := json.Marshal(row.Protocols)

	_, err = tx.Exec(`
		INSERT INTO shows (path, name, format, checksum, duration, track_count, protocols, body, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			name        = excluded.name,
			format      = excluded.format,
			checksum    = excluded.checksum,
			duration    = excluded.duration,
			track_count = excluded.track_count,
			protocols   = excluded.protocols,
			body        = excluded.body,
			updated_at  = excluded.updated_at
	`, row.Path, row.Name, row.Format, row.Checksum, row.Duration, row.TrackCount, string(protoJSON), body, row.UpdatedAt)
	if err != nil {
		return fmt.Errorf("library: upsert show: %w", err)
	}

	// FTS upsert (no-op when FTS5 tag is absent).
	if err := ftsUpsert(tx, row.Path, row.Name, body); err != nil {
		return err
	}

	return tx.Commit()
}

// DeleteShow removes a show and its FTS entry.
func (db *DB) DeleteShow(path string) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("library: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	ftsDelete(tx, path)
	_, _ = tx.Exec(`DELETE FROM shows WHERE path = ?`, path)

	return tx.Commit()
}

// GetChecksum returns the stored checksum for a show, or empty string if
// not found.
func (db *DB) GetChecksum(path string) (string, error) {
	var cs string
	err := db.conn.QueryRow(`SELECT checksum FROM shows WHERE path = ?`, path).Scan(&cs)
	if err != nil {
		return "", nil // not found is fine
	}
	return cs, nil
}

// GetShow returns one catalog row, or nil when the path is not cataloged.
func (db *DB) GetShow(path string) (*ShowRow, error) {
	var row ShowRow
	var protoJSON string
	err := db.conn.QueryRow(`
		SELECT path, name, format, checksum, duration, track_count, protocols, updated_at
		FROM shows WHERE path = ?
	`, path).Scan(&row.Path, &row.Name, &row.Format, &row.Checksum,
		&row.Duration, &row.TrackCount, &protoJSON, &row.UpdatedAt)
	if err != nil {
		return nil, nil
	}
	_ = json.Unmarshal([]byte(protoJSON), &row.Protocols)
	return &row, nil
}

// ListShows returns a page of catalog rows plus the total count.
// protocol filters to shows containing the given protocol; sort is one of
// "name", "duration", "updated" (default "name").
func (db *DB) ListShows(limit, offset int, protocol, sort string) ([]ShowRow, int, error) {
	if limit <= 0 {
		limit = 50
	}

	where := ""
	args := []any{}
	if protocol != "" {
		where = `WHERE protocols LIKE ?`
		args = append(args, `%"`+protocol+`"%`)
	}

	var total int
	if err := db.conn.QueryRow(`SELECT COUNT(*) FROM shows `+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("library: count shows: %w", err)
	}

	order := "name ASC"
	switch sort {
	case "duration":
		order = "duration DESC"
	case "updated":
		order = "updated_at DESC"
	}

	args = append(args, limit, offset)
	rows, err := db.conn.Query(`
		SELECT path, name, format, checksum, duration, track_count, protocols, updated_at
		FROM shows `+where+` ORDER BY `+order+` LIMIT ? OFFSET ?
	`, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("library: list shows: %w", err)
	}
	defer rows.Close()

	var out []ShowRow
	for rows.Next() {
		var row ShowRow
		var protoJSON string
		if err := rows.Scan(&row.Path, &row.Name, &row.Format, &row.Checksum,
			&row.Duration, &row.TrackCount, &protoJSON, &row.UpdatedAt); err != nil {
			return nil, 0, err
		}
		_ = json.Unmarshal([]byte(protoJSON), &row.Protocols)
		out = append(out, row)
	}
	return out, total, rows.Err()
}

// AllChecksums returns every cataloged path with its checksum.
func (db *DB) AllChecksums() (map[string]string, error) {
	rows, err := db.conn.Query(`SELECT path, checksum FROM shows`)
	if err != nil {
		return nil, fmt.Errorf("library: all checksums: %w", err)
	}
	defer rows.Close()
	out := make(map[string]string)
	for rows.Next() {
		var p, cs string
		if err := rows.Scan(&p, &cs); err != nil {
			return nil, err
		}
		out[p] = cs
	}
	return out, rows.Err()
}
