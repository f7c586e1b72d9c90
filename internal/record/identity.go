package record

import (
	"strings"

	"github.com/google/uuid"
)

// TempIDPrefix marks locally-generated identifiers for records the
// server has never seen. Every component classifies ids through
// ParseIdentity rather than sniffing the prefix itself.
const TempIDPrefix = "offline_"

// Identity is a tagged variant over record identifiers: either a
// server-assigned permanent id or a locally-generated temporary one.
type Identity struct {
	value     string
	temporary bool
}

// NewTemporaryIdentity generates a collision-resistant temporary
// identity carrying the reserved offline prefix.
func NewTemporaryIdentity() Identity {
	return Identity{
		value:     TempIDPrefix + uuid.NewString(),
		temporary: true,
	}
}

// ParseIdentity classifies an id string into a permanent or temporary
// identity.
func ParseIdentity(id string) Identity {
	return Identity{
		value:     id,
		temporary: strings.HasPrefix(id, TempIDPrefix),
	}
}

// String returns the raw identifier.
func (i Identity) String() string { return i.value }

// IsTemporary reports whether the identity was generated locally and
// is unknown to the server.
func (i Identity) IsTemporary() bool { return i.temporary }

// IsPermanent reports whether the identity was assigned by the server.
func (i Identity) IsPermanent() bool { return i.value != "" && !i.temporary }
