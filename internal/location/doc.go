// Package location records which packets each location claims to hold.
//
// A location is a named peer (or "local", this repository itself). Locations
// are not authoritative over content, only over which packet ids and
// metadata hashes they report. The inventory is an append-only SQLite log:
//
//   - locations: one row per configured location
//   - location_packets: one row per (location, packet), with the packet time,
//     the metadata hash and an insertion sequence number
//
// Marking a packet twice is a no-op (ON CONFLICT DO NOTHING). Listings are
// ordered by packet time then id (ORDER BY time ASC, packet COLLATE BINARY
// ASC) so results are identical across reopenings; Since pages through a
// location by sequence cursor instead.
//
// # Database Configuration
//
//   - WAL mode: concurrent reads during writes
//   - synchronous=NORMAL
//   - busy_timeout=5000
//   - foreign_keys=ON: packets can only be marked in a known location
package location
