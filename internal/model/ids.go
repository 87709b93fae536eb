package model

import (
	"strings"

	"github.com/google/uuid"
)

var idNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://github.com/sells-group/property-scorer"))

// StableID derives a deterministic UUID (v5) from a kind and its key parts.
// The same inputs always produce the same ID.
func StableID(kind string, parts ...string) string {
	name := kind + ":" + strings.Join(parts, "|")
	return uuid.NewSHA1(idNamespace, []byte(name)).String()
}

// NewID returns a random UUID for entities without a natural key.
func NewID() string {
	return uuid.NewString()
}
