package storage

import (
	"strings"

	"github.com/google/uuid"
)

// NewKey returns a fresh object key of the form "<uuidv7>.<ext>".
//
// UUIDv7 sorts by creation time and carries 74 random bits, so keys from
// concurrent requests and separate processes do not collide in practice. No
// round trip to the store or database is made; collisions are not detected.
func NewKey(ext string) string {
	id, err := uuid.NewV7()
	if err != nil {
		// NewV7 only fails when the random source does.
		id = uuid.New()
	}
	ext = strings.TrimPrefix(ext, ".")
	if ext == "" {
		return id.String()
	}
	return id.String() + "." + ext
}
