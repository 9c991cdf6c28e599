// Package packet defines the immutable provenance record stored for every
// produced artifact, and its persisted JSON form.
//
// A Packet is never modified once committed. The core reads the fields it
// needs (id, name, time, parameters, files, dependencies) and passes custom
// metadata through untouched.
package packet

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/roach88/outpack/internal/failure"
	"github.com/roach88/outpack/internal/hash"
)

// SchemaVersion is written into metadata produced by this module.
const SchemaVersion = "0.1.1"

// File is one entry of a packet's file manifest.
type File struct {
	Path string `json:"path"`
	Size int64  `json:"size"`
	Hash string `json:"hash"`
}

// DependencyFile maps a file in the dependent packet (Here) to the file of
// the upstream packet it was copied from (There).
type DependencyFile struct {
	Here  string `json:"here"`
	There string `json:"there"`
}

// Dependency records an upstream packet and the subset of its files used.
type Dependency struct {
	Packet string           `json:"packet"`
	Query  string           `json:"query,omitempty"`
	Files  []DependencyFile `json:"files"`
}

// Packet is the parsed metadata record for one packet.
type Packet struct {
	SchemaVersion string
	ID            string
	Name          string

	// Time is the creation time in seconds since the epoch. It is the
	// ordering key for "latest" and for since-queries.
	Time float64

	// End is the completion time; equal to Time when the record only
	// carries a single timestamp.
	End float64

	Parameters Parameters
	Files      []File
	Depends    []Dependency

	// Git and Custom are passed through unexamined.
	Git    json.RawMessage
	Custom json.RawMessage
}

// Less orders packets by time, breaking ties by id.
func Less(a, b *Packet) bool {
	if a.Time != b.Time {
		return a.Time < b.Time
	}
	return a.ID < b.ID
}

// Compare is the three-way form of Less, for slices.SortFunc.
func Compare(a, b *Packet) int {
	switch {
	case Less(a, b):
		return -1
	case Less(b, a):
		return 1
	default:
		return 0
	}
}

// FileByPath returns the manifest entry for path.
func (p *Packet) FileByPath(path string) (File, bool) {
	for _, f := range p.Files {
		if f.Path == path {
			return f, true
		}
	}
	return File{}, false
}

// DependencyIDs returns the ids of upstream packets in record order.
func (p *Packet) DependencyIDs() []string {
	ids := make([]string, 0, len(p.Depends))
	for _, d := range p.Depends {
		ids = append(ids, d.Packet)
	}
	return ids
}

// wirePacket is the persisted JSON shape.
type wirePacket struct {
	SchemaVersion string          `json:"schema_version"`
	ID            string          `json:"id"`
	Name          string          `json:"name"`
	Time          json.RawMessage `json:"time"`
	Parameters    Parameters      `json:"parameters"`
	Files         []File          `json:"files"`
	Depends       []Dependency    `json:"depends"`
	Git           json.RawMessage `json:"git,omitempty"`
	Custom        json.RawMessage `json:"custom,omitempty"`
}

type wireTime struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// MarshalJSON encodes the packet in the persisted record format.
func (p *Packet) MarshalJSON() ([]byte, error) {
	end := p.End
	if end == 0 {
		end = p.Time
	}
	t, err := json.Marshal(wireTime{Start: p.Time, End: end})
	if err != nil {
		return nil, err
	}
	files := p.Files
	if files == nil {
		files = []File{}
	}
	depends := make([]Dependency, len(p.Depends))
	copy(depends, p.Depends)
	for i := range depends {
		if depends[i].Files == nil {
			depends[i].Files = []DependencyFile{}
		}
	}
	version := p.SchemaVersion
	if version == "" {
		version = SchemaVersion
	}
	return json.Marshal(wirePacket{
		SchemaVersion: version,
		ID:            p.ID,
		Name:          p.Name,
		Time:          t,
		Parameters:    p.Parameters,
		Files:         files,
		Depends:       depends,
		Git:           p.Git,
		Custom:        p.Custom,
	})
}

// UnmarshalJSON decodes the persisted record format. The time field may be
// a number or an object with start and end.
func (p *Packet) UnmarshalJSON(data []byte) error {
	var w wirePacket
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}

	start, end, err := decodeTime(w.Time)
	if err != nil {
		return err
	}

	*p = Packet{
		SchemaVersion: w.SchemaVersion,
		ID:            w.ID,
		Name:          w.Name,
		Time:          start,
		End:           end,
		Parameters:    w.Parameters,
		Files:         w.Files,
		Depends:       w.Depends,
		Git:           w.Git,
		Custom:        w.Custom,
	}
	return nil
}

func decodeTime(raw json.RawMessage) (start, end float64, err error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return 0, 0, fmt.Errorf("time is required")
	}
	if raw[0] == '{' {
		var wt wireTime
		if err := json.Unmarshal(raw, &wt); err != nil {
			return 0, 0, fmt.Errorf("time: %w", err)
		}
		if wt.End == 0 {
			wt.End = wt.Start
		}
		return wt.Start, wt.End, nil
	}
	var t float64
	if err := json.Unmarshal(raw, &t); err != nil {
		return 0, 0, fmt.Errorf("time: %w", err)
	}
	return t, t, nil
}

// Decode parses and validates a persisted metadata record.
//
// Returns a MALFORMED_METADATA integrity error if the record cannot be
// decoded or is structurally invalid (missing id or name, invalid file
// hashes, invalid dependency ids).
func Decode(data []byte) (*Packet, error) {
	var p Packet
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, failure.Wrap(failure.KindIntegrity, failure.CodeMalformedMetadata, "cannot decode metadata", err)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

// Validate checks structural invariants of a packet record.
func (p *Packet) Validate() error {
	bad := func(msg string) error {
		return failure.Integrity(failure.CodeMalformedMetadata, msg).WithPacket(p.ID)
	}

	if err := ValidateID(p.ID); err != nil {
		return bad(err.Error())
	}
	if p.Name == "" {
		return bad("name is required")
	}

	seen := make(map[string]bool, len(p.Files))
	for i, f := range p.Files {
		if f.Path == "" {
			return bad(fmt.Sprintf("files[%d]: path is required", i))
		}
		if seen[f.Path] {
			return bad(fmt.Sprintf("files[%d]: duplicate path %q", i, f.Path))
		}
		seen[f.Path] = true
		if _, err := hash.Parse(f.Hash); err != nil {
			return bad(fmt.Sprintf("files[%d]: %v", i, err))
		}
		if f.Size < 0 {
			return bad(fmt.Sprintf("files[%d]: negative size", i))
		}
	}

	for i, d := range p.Depends {
		if err := ValidateID(d.Packet); err != nil {
			return bad(fmt.Sprintf("depends[%d]: %v", i, err))
		}
		if d.Packet == p.ID {
			return bad(fmt.Sprintf("depends[%d]: packet depends on itself", i))
		}
	}

	return nil
}
