package packet

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

// outpackIDPattern matches ids produced by NewID: a UTC timestamp followed by
// eight hex characters.
var outpackIDPattern = regexp.MustCompile(`^[0-9]{8}-[0-9]{6}-[0-9a-f]{8}$`)

// NewID generates a packet id for a packet created at t.
//
// The format is YYYYMMDD-HHMMSS-xxxxxxxx. The first four hex characters encode
// the sub-second part of t, the last four are random, so ids sort by creation
// time at millisecond resolution.
func NewID(t time.Time) string {
	t = t.UTC()
	frac := uint16(t.Nanosecond() / 1e6 * 65536 / 1000)
	r := uuid.New()
	return fmt.Sprintf("%s-%04x%02x%02x", t.Format("20060102-150405"), frac, r[0], r[1])
}

// IsOutpackID reports whether id has the timestamped format produced by NewID.
func IsOutpackID(id string) bool {
	return outpackIDPattern.MatchString(id)
}

// ValidateID checks that id can be used as a primary key and a file name in
// the metadata area. Ids are otherwise opaque.
func ValidateID(id string) error {
	if id == "" {
		return fmt.Errorf("packet id is empty")
	}
	if strings.HasPrefix(id, ".") {
		return fmt.Errorf("packet id %q must not start with '.'", id)
	}
	for i, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case r == '-' || r == '_' || r == '.':
		default:
			return fmt.Errorf("packet id %q has invalid character %q at offset %d", id, r, i)
		}
	}
	return nil
}
