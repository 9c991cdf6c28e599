package location

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/roach88/outpack/internal/config"
	"github.com/roach88/outpack/internal/failure"
)

// Entry records that a location holds a packet.
type Entry struct {
	Packet string  `json:"packet" yaml:"packet"`
	Time   float64 `json:"time" yaml:"time"`
	Hash   string  `json:"hash" yaml:"hash"`
	Seq    int64   `json:"-" yaml:"-"`
}

// AddLocation registers loc, or refreshes its type and args if a location
// with that name already exists. Entries already recorded are kept.
func (s *Store) AddLocation(ctx context.Context, loc config.Location) error {
	args := loc.Args
	if args == nil {
		args = map[string]any{}
	}
	argsJSON, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("add location %s: %w", loc.Name, err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO locations (name, type, args)
		VALUES (?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET type = excluded.type, args = excluded.args
	`, loc.Name, loc.Type, string(argsJSON))
	if err != nil {
		return failure.IO("add location "+loc.Name, err)
	}
	return nil
}

// Sync registers every location in cfg.
func (s *Store) Sync(ctx context.Context, cfg *config.Config) error {
	for _, loc := range cfg.Location {
		if err := s.AddLocation(ctx, loc); err != nil {
			return err
		}
	}
	return nil
}

// Mark records that location holds e.Packet. Returns inserted=false when the
// packet was already recorded for that location; the first record wins.
//
// Note: a different hash for an already recorded packet is METADATA_CONFLICT.
func (s *Store) Mark(ctx context.Context, location string, e Entry) (inserted bool, err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, failure.IO("mark packet: begin tx", err)
	}
	defer tx.Rollback()

	if err := requireLocation(ctx, tx, location); err != nil {
		return false, err
	}

	result, err := tx.ExecContext(ctx, `
		INSERT INTO location_packets (location, packet, time, hash)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(location, packet) DO NOTHING
	`, location, e.Packet, e.Time, e.Hash)
	if err != nil {
		return false, failure.IO("mark packet", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, failure.IO("mark packet: rows affected", err)
	}

	if rows == 0 {
		var existing string
		err := tx.QueryRowContext(ctx, `
			SELECT hash FROM location_packets WHERE location = ? AND packet = ?
		`, location, e.Packet).Scan(&existing)
		if err != nil {
			return false, failure.IO("mark packet: read existing", err)
		}
		if existing != e.Hash {
			return false, failure.Integrity(failure.CodeMetadataConflict,
				fmt.Sprintf("location %s already records a different hash", location)).
				WithPacket(e.Packet).WithDetail("existing", existing).WithDetail("hash", e.Hash)
		}
		return false, nil
	}

	if err := tx.Commit(); err != nil {
		return false, failure.IO("mark packet: commit", err)
	}
	return true, nil
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func requireLocation(ctx context.Context, q queryRower, name string) error {
	var found string
	err := q.QueryRowContext(ctx, `SELECT name FROM locations WHERE name = ?`, name).Scan(&found)
	if errors.Is(err, sql.ErrNoRows) {
		return failure.NotFound(failure.CodeLocationNotFound, "location not found").
			WithDetail("location", name)
	}
	if err != nil {
		return failure.IO("look up location "+name, err)
	}
	return nil
}
