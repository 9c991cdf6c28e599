package location

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/roach88/outpack/internal/failure"
)

// Location summarises one location in the inventory.
type Location struct {
	Name string         `json:"name" yaml:"name"`
	Type string         `json:"type" yaml:"type"`
	Args map[string]any `json:"args" yaml:"args"`

	// Packets is the number of packets recorded for the location.
	Packets int `json:"packets" yaml:"packets"`
	// LastKnownTime is the greatest recorded packet time, 0 when empty.
	LastKnownTime float64 `json:"last_known_time" yaml:"last_known_time"`
	// Cursor is the greatest sequence number recorded, for Since.
	Cursor int64 `json:"cursor" yaml:"cursor"`
}

// Locations returns every location in registration order.
func (s *Store) Locations(ctx context.Context) ([]Location, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT l.name, l.type, l.args,
		       COUNT(p.packet), COALESCE(MAX(p.time), 0), COALESCE(MAX(p.seq), 0)
		FROM locations l
		LEFT JOIN location_packets p ON p.location = l.name
		GROUP BY l.rowid
		ORDER BY l.rowid ASC
	`)
	if err != nil {
		return nil, failure.IO("query locations", err)
	}
	defer rows.Close()

	locations := []Location{}
	for rows.Next() {
		var (
			loc      Location
			argsJSON string
		)
		if err := rows.Scan(&loc.Name, &loc.Type, &argsJSON, &loc.Packets, &loc.LastKnownTime, &loc.Cursor); err != nil {
			return nil, failure.IO("scan location", err)
		}
		if err := json.Unmarshal([]byte(argsJSON), &loc.Args); err != nil {
			return nil, fmt.Errorf("location %s args: %w", loc.Name, err)
		}
		locations = append(locations, loc)
	}
	if err := rows.Err(); err != nil {
		return nil, failure.IO("iterate locations", err)
	}
	return locations, nil
}

// Entries returns every packet recorded for location, ordered by time then
// packet id. Returns an empty slice (not nil) for an empty location.
func (s *Store) Entries(ctx context.Context, location string) ([]Entry, error) {
	if err := requireLocation(ctx, s.db, location); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT packet, time, hash, seq
		FROM location_packets
		WHERE location = ?
		ORDER BY time ASC, packet COLLATE BINARY ASC
	`, location)
	if err != nil {
		return nil, failure.IO("query location packets", err)
	}
	return scanEntries(rows)
}

// Since returns entries recorded for location after cursor, in insertion
// order, with the cursor to pass next time.
func (s *Store) Since(ctx context.Context, location string, cursor int64) ([]Entry, int64, error) {
	if err := requireLocation(ctx, s.db, location); err != nil {
		return nil, cursor, err
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT packet, time, hash, seq
		FROM location_packets
		WHERE location = ? AND seq > ?
		ORDER BY seq ASC
	`, location, cursor)
	if err != nil {
		return nil, cursor, failure.IO("query location packets", err)
	}
	entries, err := scanEntries(rows)
	if err != nil {
		return nil, cursor, err
	}
	if n := len(entries); n > 0 {
		cursor = entries[n-1].Seq
	}
	return entries, cursor, nil
}

// Known returns the set of packet ids recorded for location.
func (s *Store) Known(ctx context.Context, location string) (map[string]bool, error) {
	entries, err := s.Entries(ctx, location)
	if err != nil {
		return nil, err
	}
	known := make(map[string]bool, len(entries))
	for _, e := range entries {
		known[e.Packet] = true
	}
	return known, nil
}

func scanEntries(rows *sql.Rows) ([]Entry, error) {
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.Packet, &e.Time, &e.Hash, &e.Seq); err != nil {
			return nil, failure.IO("scan location packet", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, failure.IO("iterate location packets", err)
	}
	return entries, nil
}
