// Package ids generates the identifiers used throughout the data model:
// split ids and index incarnation suffixes are ULIDs so that ascending
// lexical order equals ascending creation order, which list_splits
// depends on for its deterministic tie-break.
package ids

import (
	"crypto/rand"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid"
)

// NewULID returns a new, monotonically-increasing-enough ULID string.
// Collisions within the same millisecond are avoided by drawing fresh
// entropy from crypto/rand per call, matching ulid's recommended usage
// for non-monotonic but high-entropy generation.
func NewULID() string {
	t := ulid.Timestamp(time.Now())
	id, err := ulid.New(t, rand.Reader)
	if err != nil {
		// crypto/rand read failures are effectively unrecoverable; fall
		// back to a zero-entropy ULID rather than panic.
		id = ulid.MustNew(t, nil)
	}
	return id.String()
}

// NewSplitID returns a new split_id (a ULID).
func NewSplitID() string { return NewULID() }

// IndexUID composes a stable index_id with a fresh incarnation ULID:
// index_uid = index_id:ulid.
func IndexUID(indexID string) string {
	return fmt.Sprintf("%s:%s", indexID, NewULID())
}

// SplitIndexID extracts the stable index_id from an index_uid.
func SplitIndexID(indexUID string) string {
	if i := strings.LastIndex(indexUID, ":"); i >= 0 {
		return indexUID[:i]
	}
	return indexUID
}
